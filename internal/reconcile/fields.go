// Package reconcile holds the pure field mapping between a parsed loan record
// and the CRM contact representation.
package reconcile

import (
	"loan-pool-sync/internal/common/ghl"
	"loan-pool-sync/internal/models"
)

// BuildCustomFields returns the custom field values carried by the record.
// Absent attributes produce no key.
func BuildCustomFields(record *models.LoanRecord) models.CustomFields {
	fields := make(models.CustomFields)
	set := func(id models.CustomFieldID, value string) {
		if value != "" {
			fields[id] = value
		}
	}

	set(models.FieldLeadStage, record.LeadStage)
	set(models.FieldSubjectPropertyZipCode, record.PropertyZipCode)
	set(models.FieldSubjectPropertyAddress, record.PropertyStreet)
	set(models.FieldSubjectPropertyCity, record.PropertyCity)
	set(models.FieldSubjectPropertyState, record.PropertyState)
	set(models.FieldContactID, record.ContactID)
	set(models.FieldLoanOfficerName, record.OriginatorName)
	set(models.FieldLoanOfficerEmail, record.OriginatorBusinessEmail)
	set(models.FieldLoanStatus, record.LoanStatus)
	set(models.FieldLoanID, record.LoanID)

	return fields
}

// BuildCreateFields maps a record onto a create call.
func BuildCreateFields(record *models.LoanRecord) ghl.CreateFields {
	return ghl.CreateFields{
		Email:       record.Email,
		FirstName:   record.FirstName,
		LastName:    record.LastName,
		Phone:       record.DayPhone,
		Address1:    record.Street,
		City:        record.City,
		State:       record.State,
		PostalCode:  record.ZipCode,
		CustomField: BuildCustomFields(record),
	}
}

// BuildUpdateDiff computes the minimal update for contact. A core field is
// sent only when the record has a value that differs from the contact's.
// Custom fields are the union of both sides, preferring the record's value;
// a remote custom field is never cleared.
func BuildUpdateDiff(contact *ghl.Contact, record *models.LoanRecord) ghl.UpdateFields {
	diff := ghl.UpdateFields{
		Email:      changed(record.Email, contact.Email),
		FirstName:  changed(record.FirstName, contact.FirstName),
		LastName:   changed(record.LastName, contact.LastName),
		Phone:      changed(record.DayPhone, contact.Phone),
		Address1:   changed(record.Street, contact.Address1),
		City:       changed(record.City, contact.City),
		State:      changed(record.State, contact.State),
		PostalCode: changed(record.ZipCode, contact.PostalCode),
	}

	merged := contact.CustomFieldMap()
	for id, value := range BuildCustomFields(record) {
		merged[id] = value
	}
	if len(merged) > 0 {
		diff.CustomField = merged
	}

	return diff
}

// MatchingLoanContacts keeps the contacts whose loan id custom field equals
// loanID, preserving API order. A record without a loan id matches contacts
// that carry none.
func MatchingLoanContacts(contacts []ghl.Contact, loanID string) []ghl.Contact {
	var matches []ghl.Contact
	for _, c := range contacts {
		remote, _ := c.CustomFieldString(models.FieldLoanID)
		if remote == loanID {
			matches = append(matches, c)
		}
	}
	return matches
}

func changed(recordValue, remoteValue string) string {
	if recordValue == "" || recordValue == remoteValue {
		return ""
	}
	return recordValue
}
