package processdatapools

import "loan-pool-sync/internal/common/validation"

func GetInputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type: "object",
		Properties: map[string]validation.Property{
			"poolId": {
				Type:        []string{"integer", "null"},
				Description: "Process only this loan pool record",
				Minimum:     float64Ptr(1),
			},
		},
		AdditionalProperties: true,
	}
}

func float64Ptr(f float64) *float64 {
	return &f
}
