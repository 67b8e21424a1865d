// internal/models/contact.go
package models

import "time"

// ContactAction is the kind of remote mutation recorded in the history ledger.
type ContactAction int16

const (
	ContactActionCreated ContactAction = 1
	ContactActionUpdated ContactAction = 2
)

func (a ContactAction) String() string {
	switch a {
	case ContactActionCreated:
		return "CREATED"
	case ContactActionUpdated:
		return "UPDATED"
	default:
		return "UNKNOWN"
	}
}

// Contact is the local shadow of a CRM contact, keyed by the remote id.
type Contact struct {
	ID        int64     `json:"id"`
	ContactID string    `json:"contactId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ContactHistory is an append-only ledger entry for one successful create or
// update against the CRM. ActionData is the JSON actually sent or returned.
type ContactHistory struct {
	ID         int64         `json:"id"`
	ContactID  int64         `json:"contactId"`
	PoolID     int64         `json:"poolId"`
	Action     ContactAction `json:"action"`
	ActionName string        `json:"actionName"`
	ActionData string        `json:"actionData"`
	CreatedAt  time.Time     `json:"createdAt"`
}
