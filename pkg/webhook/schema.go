package webhook

import (
	"context"
	"log/slog"

	"github.com/xeipuuv/gojsonschema"
)

// envelopeSchema is a loose structural description of the provider webhook
// body. It is advisory only: a payload that fails the check is still
// processed, because the provider occasionally ships fields ahead of its
// published schema.
const envelopeSchema = `{
	"type": "object",
	"required": ["object", "entry"],
	"properties": {
		"object": {"type": "string"},
		"entry": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["changes"],
				"properties": {
					"id": {"type": "string"},
					"changes": {
						"type": "array",
						"items": {
							"type": "object",
							"required": ["value"],
							"properties": {
								"field": {"type": "string"},
								"value": {
									"type": "object",
									"properties": {
										"metadata": {
											"type": "object",
											"required": ["phone_number_id"]
										},
										"messages": {"type": "array"},
										"statuses": {"type": "array"}
									}
								}
							}
						}
					}
				}
			}
		}
	}
}`

var compiledSchema = gojsonschema.NewStringLoader(envelopeSchema)

// checkEnvelope validates the raw body against the envelope schema and logs
// any deviations. It never blocks processing.
func checkEnvelope(ctx context.Context, logger *slog.Logger, body []byte) {
	result, err := gojsonschema.Validate(compiledSchema, gojsonschema.NewBytesLoader(body))
	if err != nil {
		logger.DebugContext(ctx, "Webhook schema validation errored", "error", err)

		return
	}

	if !result.Valid() {
		for _, desc := range result.Errors() {
			logger.WarnContext(ctx, "Webhook payload deviates from envelope schema",
				"field", desc.Field(), "description", desc.Description())
		}
	}
}
