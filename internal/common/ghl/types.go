package ghl

import (
	"bytes"
	"encoding/json"

	"loan-pool-sync/internal/models"
)

// Contact is a CRM contact as returned by lookup, create and update.
type Contact struct {
	ID          string             `json:"id"`
	Email       string             `json:"email,omitempty"`
	FirstName   string             `json:"firstName,omitempty"`
	LastName    string             `json:"lastName,omitempty"`
	Phone       string             `json:"phone,omitempty"`
	Address1    string             `json:"address1,omitempty"`
	City        string             `json:"city,omitempty"`
	State       string             `json:"state,omitempty"`
	PostalCode  string             `json:"postalCode,omitempty"`
	CustomField []CustomFieldValue `json:"customField,omitempty"`

	// Raw is the contact object exactly as the CRM returned it.
	Raw json.RawMessage `json:"-"`
}

// UnmarshalJSON accepts numbers and booleans in the core string fields. The
// CRM returns values such as postal codes unquoted for some contacts.
func (c *Contact) UnmarshalJSON(data []byte) error {
	var wire struct {
		ID          looseString        `json:"id"`
		Email       looseString        `json:"email"`
		FirstName   looseString        `json:"firstName"`
		LastName    looseString        `json:"lastName"`
		Phone       looseString        `json:"phone"`
		Address1    looseString        `json:"address1"`
		City        looseString        `json:"city"`
		State       looseString        `json:"state"`
		PostalCode  looseString        `json:"postalCode"`
		CustomField []CustomFieldValue `json:"customField"`
	}
	if err := decode(data, &wire); err != nil {
		return err
	}

	*c = Contact{
		ID:          string(wire.ID),
		Email:       string(wire.Email),
		FirstName:   string(wire.FirstName),
		LastName:    string(wire.LastName),
		Phone:       string(wire.Phone),
		Address1:    string(wire.Address1),
		City:        string(wire.City),
		State:       string(wire.State),
		PostalCode:  string(wire.PostalCode),
		CustomField: wire.CustomField,
	}
	return nil
}

// looseString decodes a JSON string, number or boolean as its text. Null,
// objects and arrays decode to "".
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0, bytes.Equal(data, []byte("null")):
		*s = ""
	case data[0] == '"':
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = looseString(str)
	case data[0] == '{', data[0] == '[':
		*s = ""
	default:
		*s = looseString(data)
	}
	return nil
}

type CustomFieldValue struct {
	ID    models.CustomFieldID `json:"id"`
	Value interface{}          `json:"value"`
}

// CustomFieldString returns the coerced value of a custom field. ok is false
// when the field is missing or falsy.
func (c *Contact) CustomFieldString(id models.CustomFieldID) (string, bool) {
	for _, f := range c.CustomField {
		if f.ID == id {
			return models.CoerceString(f.Value)
		}
	}
	return "", false
}

// CustomFieldMap flattens the contact's custom field list.
func (c *Contact) CustomFieldMap() models.CustomFields {
	out := make(models.CustomFields, len(c.CustomField))
	for _, f := range c.CustomField {
		out[f.ID] = f.Value
	}
	return out
}

// CreateFields is the body of a create call. Zero values are not sent.
type CreateFields struct {
	Email       string              `json:"email"`
	FirstName   string              `json:"firstName,omitempty"`
	LastName    string              `json:"lastName,omitempty"`
	Phone       string              `json:"phone,omitempty"`
	Address1    string              `json:"address1,omitempty"`
	City        string              `json:"city,omitempty"`
	State       string              `json:"state,omitempty"`
	PostalCode  string              `json:"postalCode,omitempty"`
	Website     string              `json:"website,omitempty"`
	Timezone    string              `json:"timezone,omitempty"`
	DND         bool                `json:"dnd,omitempty"`
	Tags        []string            `json:"tags,omitempty"`
	Source      string              `json:"source,omitempty"`
	CustomField models.CustomFields `json:"customField,omitempty"`
}

// UpdateFields is the body of an update call. Zero values are not sent, so
// an omitted field is left unchanged on the CRM side.
type UpdateFields struct {
	Email       string              `json:"email,omitempty"`
	FirstName   string              `json:"firstName,omitempty"`
	LastName    string              `json:"lastName,omitempty"`
	Phone       string              `json:"phone,omitempty"`
	Address1    string              `json:"address1,omitempty"`
	City        string              `json:"city,omitempty"`
	State       string              `json:"state,omitempty"`
	PostalCode  string              `json:"postalCode,omitempty"`
	Website     string              `json:"website,omitempty"`
	Timezone    string              `json:"timezone,omitempty"`
	DND         bool                `json:"dnd,omitempty"`
	Tags        []string            `json:"tags,omitempty"`
	Source      string              `json:"source,omitempty"`
	CustomField models.CustomFields `json:"customField,omitempty"`
}
