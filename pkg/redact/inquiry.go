package redact

// InquirySchema derives a SecretSchema from the JSON schema embedded in an
// inquiry result. Only the top-level properties are considered.
func InquirySchema(schema map[string]any) SecretSchema {
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		return SecretSchema{}
	}
	return FromParameterSpec(props)
}

// MaskInquiryResponse returns a copy of response with the properties that
// schema declares secret masked.
func MaskInquiryResponse(response, schema map[string]any) map[string]any {
	return MaskParameters(response, InquirySchema(schema))
}

// maskInquiryResult masks result.response in place when both the response and
// its schema are present and non-empty.
func maskInquiryResult(result map[string]any) {
	schema, _ := result["schema"].(map[string]any)
	response, _ := result["response"].(map[string]any)
	if len(schema) == 0 || len(response) == 0 {
		return
	}
	result["response"] = MaskInquiryResponse(response, schema)
}
