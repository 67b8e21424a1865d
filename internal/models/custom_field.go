// internal/models/custom_field.go
package models

// CustomFieldID is the CRM's opaque identifier for a custom contact field.
type CustomFieldID string

const (
	FieldLeadStage              CustomFieldID = "b2Vx4rQ8nLmT0aZc1kPd"
	FieldSubjectPropertyZipCode CustomFieldID = "Hs7uWq2eYt5RjN9vCx3L"
	FieldSubjectPropertyAddress CustomFieldID = "pF1gK6dMz8XbE4oQw0Ty"
	FieldSubjectPropertyCity    CustomFieldID = "V3nJ9cLr7Ua2Ik5Gs8Ze"
	FieldSubjectPropertyState   CustomFieldID = "tY6hB0mWq4Nx1Df7Rk9P"
	FieldContactID              CustomFieldID = "aL8zS3vE5pCj2Xo6Ug1M"
	FieldLoanOfficerName        CustomFieldID = "Qe4Tn7Kb1Ws9Hy3Fd6Ji"
	FieldLoanOfficerEmail       CustomFieldID = "mR2cZ5Lx8Vg0Pq7Ba4Yn"
	FieldLoanStatus             CustomFieldID = "Ku9Ew1Sd6Ot3Mh5Nc2Xr"
	FieldLoanID                 CustomFieldID = "Gj0Ab7Yp4Rf8Lz1Qt5We"
)

// CustomFields maps custom field ids to the values pushed to the CRM.
type CustomFields map[CustomFieldID]interface{}
