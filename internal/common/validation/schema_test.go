package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(i int) *int { return &i }

func testSchema() JSONSchema {
	return JSONSchema{
		Type:     "object",
		Required: []string{"Email"},
		Properties: map[string]Property{
			"Email":  {Type: "string", MinLength: intPtr(1)},
			"LoanId": {Type: []string{"string", "number", "null"}},
		},
		AdditionalProperties: true,
	}
}

func TestValidateJSON(t *testing.T) {
	tests := []struct {
		name      string
		document  string
		wantValid bool
		wantField string
	}{
		{name: "valid", document: `{"Email":"a@x.com","LoanId":77,"Other":"x"}`, wantValid: true},
		{name: "string loan id", document: `{"Email":"a@x.com","LoanId":"77"}`, wantValid: true},
		{name: "missing email", document: `{"LoanId":"1"}`, wantField: "(root)"},
		{name: "empty email", document: `{"Email":""}`, wantField: "Email"},
		{name: "numeric email", document: `{"Email":5}`, wantField: "Email"},
		{name: "array document", document: `[{"Email":"a@x.com"}]`, wantField: "(root)"},
		{name: "object loan id", document: `{"Email":"a@x.com","LoanId":{}}`, wantField: "LoanId"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateJSON([]byte(tt.document), testSchema())
			assert.Equal(t, tt.wantValid, result.Valid, result.GetErrorMessages())
			if !tt.wantValid {
				require.NotEmpty(t, result.Errors)
				assert.True(t, result.HasErrors(tt.wantField), result.GetErrorMessages())
			}
		})
	}
}

func TestValidateInput_GoValue(t *testing.T) {
	result := ValidateInput(map[string]interface{}{"Email": "a@x.com"}, testSchema())
	assert.True(t, result.Valid)
	assert.Empty(t, result.GetErrorMessages())
}

func TestGetSchemaFromJSON(t *testing.T) {
	schema, err := GetSchemaFromJSON(`{"type":"object","required":["Email"],"additionalProperties":true}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"Email"}, schema.Required)

	_, err = GetSchemaFromJSON(`{`)
	assert.Error(t, err)
}
