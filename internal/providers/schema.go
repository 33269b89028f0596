package providers

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
)

// detailsValidator checks payment_details against compiled JSON Schemas, one
// per operation.
type detailsValidator struct {
	schemas map[Operation]*gojsonschema.Schema
}

var validatedOps = []Operation{
	OpCreatePayment,
	OpCreateSubscription,
	OpUpdateSubscription,
}

func newDetailsValidator(a Adapter) (*detailsValidator, error) {
	v := &detailsValidator{schemas: make(map[Operation]*gojsonschema.Schema)}
	for _, op := range validatedOps {
		raw := a.DetailsSchema(op)
		if raw == "" {
			continue
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(raw))
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", op, err)
		}
		v.schemas[op] = schema
	}
	return v, nil
}

// Validate returns a ValidationError listing every violation. A nil document
// is checked as an empty object.
func (v *detailsValidator) Validate(op Operation, details map[string]any) error {
	schema, ok := v.schemas[op]
	if !ok {
		return nil
	}
	if details == nil {
		details = map[string]any{}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(details))
	if err != nil {
		return domainErrors.NewValidationError("payment_details", err.Error())
	}
	if result.Valid() {
		return nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		violations = append(violations, e.String())
	}
	return domainErrors.NewValidationError("payment_details", "does not match provider schema", violations...)
}
