// internal/models/loan_record.go
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// LoanRecord is the parsed form of a queued payload. Every field is optional
// except Email; an empty string means the source key was absent or falsy.
type LoanRecord struct {
	Email     string
	FirstName string
	LastName  string
	DayPhone  string
	Street    string
	City      string
	State     string
	ZipCode   string

	LeadStage               string
	PropertyZipCode         string
	PropertyStreet          string
	PropertyCity            string
	PropertyState           string
	ContactID               string
	OriginatorName          string
	OriginatorBusinessEmail string
	LoanStatus              string
	LoanID                  string
}

type recordField struct {
	sourceKey string
	target    func(r *LoanRecord) *string
}

// loanRecordMapping is the source key -> LoanRecord field table applied once
// at parse time.
var loanRecordMapping = []recordField{
	{"Email", func(r *LoanRecord) *string { return &r.Email }},
	{"FirstName", func(r *LoanRecord) *string { return &r.FirstName }},
	{"LastName", func(r *LoanRecord) *string { return &r.LastName }},
	{"DayPhone", func(r *LoanRecord) *string { return &r.DayPhone }},
	{"Street", func(r *LoanRecord) *string { return &r.Street }},
	{"City", func(r *LoanRecord) *string { return &r.City }},
	{"State", func(r *LoanRecord) *string { return &r.State }},
	{"ZipCode", func(r *LoanRecord) *string { return &r.ZipCode }},
	{"LeadStage", func(r *LoanRecord) *string { return &r.LeadStage }},
	{"PropertyZipCode", func(r *LoanRecord) *string { return &r.PropertyZipCode }},
	{"PropertyStreet", func(r *LoanRecord) *string { return &r.PropertyStreet }},
	{"PropertyCity", func(r *LoanRecord) *string { return &r.PropertyCity }},
	{"PropertyState", func(r *LoanRecord) *string { return &r.PropertyState }},
	{"ContactId", func(r *LoanRecord) *string { return &r.ContactID }},
	{"OriginatorName", func(r *LoanRecord) *string { return &r.OriginatorName }},
	{"OriginatorBusinessEmail", func(r *LoanRecord) *string { return &r.OriginatorBusinessEmail }},
	{"LoanStatus", func(r *LoanRecord) *string { return &r.LoanStatus }},
	{"LoanId", func(r *LoanRecord) *string { return &r.LoanID }},
}

// ParseLoanRecord decodes a raw loan payload. It fails when the payload is not
// a JSON object or carries no usable Email.
func ParseLoanRecord(payload []byte) (*LoanRecord, error) {
	raw, err := DecodePayload(payload)
	if err != nil {
		return nil, err
	}

	record := &LoanRecord{}
	for _, f := range loanRecordMapping {
		if value, ok := CoerceString(raw[f.sourceKey]); ok {
			*f.target(record) = value
		}
	}

	if record.Email == "" {
		return nil, fmt.Errorf("payload has no Email")
	}
	return record, nil
}

// DecodePayload unmarshals a JSON object keeping numbers as their literal text.
func DecodePayload(payload []byte) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("payload is not a JSON object")
	}
	return raw, nil
}

// CoerceString renders a decoded JSON value as a string. ok is false for
// falsy values: null, "", 0, false, empty arrays and objects.
func CoerceString(v interface{}) (string, bool) {
	switch value := v.(type) {
	case nil:
		return "", false
	case string:
		return value, value != ""
	case json.Number:
		if f, err := value.Float64(); err == nil && f == 0 {
			return "", false
		}
		return value.String(), true
	case float64:
		if value == 0 {
			return "", false
		}
		return strconv.FormatFloat(value, 'f', -1, 64), true
	case int:
		return strconv.Itoa(value), value != 0
	case int64:
		return strconv.FormatInt(value, 10), value != 0
	case bool:
		return strconv.FormatBool(value), value
	case []interface{}:
		if len(value) == 0 {
			return "", false
		}
	case map[string]interface{}:
		if len(value) == 0 {
			return "", false
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v), true
	}
	return strings.TrimSpace(string(b)), true
}
