package validation

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/mariovalmir/chatwoot/internal/errors"
	"github.com/mariovalmir/chatwoot/internal/payload"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed envelope.schema.json
var envelopeSchema string

const envelopeSchemaURL = "https://waingest.local/schemas/envelope.json"

// EnvelopeValidator checks the outer shape of a webhook body before it is
// routed. Element level problems are left to the handlers, which skip the
// offending element instead of rejecting the batch.
type EnvelopeValidator struct {
	schema *jsonschema.Schema
}

func NewEnvelopeValidator() (*EnvelopeValidator, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(envelopeSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to parse envelope schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(envelopeSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("failed to load envelope schema: %w", err)
	}
	schema, err := c.Compile(envelopeSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile envelope schema: %w", err)
	}
	return &EnvelopeValidator{schema: schema}, nil
}

// Validate returns an invalid input error describing the first violation.
func (v *EnvelopeValidator) Validate(envelope payload.Payload) error {
	if envelope == nil {
		return errors.New(errors.ErrCodeInvalidInput, "webhook body must be a JSON object")
	}
	if err := v.schema.Validate(map[string]any(envelope)); err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid webhook envelope")
	}
	return nil
}
