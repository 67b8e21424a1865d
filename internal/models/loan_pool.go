// internal/models/loan_pool.go
package models

import "time"

// PoolStatus is the processing state of a queued loan record. The numeric
// values are persisted; 2 belonged to a retired transitional state and is
// never written.
type PoolStatus int16

const (
	PoolStatusUnprocessed   PoolStatus = 1
	PoolStatusProcessed     PoolStatus = 3
	PoolStatusUnprocessable PoolStatus = 4
)

func (s PoolStatus) String() string {
	switch s {
	case PoolStatusUnprocessed:
		return "UNPROCESSED"
	case PoolStatusProcessed:
		return "PROCESSED"
	case PoolStatusUnprocessable:
		return "UNPROCESSABLE"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether s is one of the three persisted states.
func (s PoolStatus) Valid() bool {
	switch s {
	case PoolStatusUnprocessed, PoolStatusProcessed, PoolStatusUnprocessable:
		return true
	}
	return false
}

// LoanPool is a queued loan-origination record awaiting reconciliation.
// Payload holds the raw JSON exactly as received.
type LoanPool struct {
	ID         int64      `json:"id"`
	Status     PoolStatus `json:"status"`
	StatusName string     `json:"statusName"`
	Payload    string     `json:"payload"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// Record parses the stored payload.
func (p *LoanPool) Record() (*LoanRecord, error) {
	return ParseLoanRecord([]byte(p.Payload))
}

// IsUnprocessed is the guard checked before every remote mutation.
func (p *LoanPool) IsUnprocessed() bool {
	return p.Status == PoolStatusUnprocessed
}
