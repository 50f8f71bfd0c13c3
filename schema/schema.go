// Package schema validates envelopes against a JSON Schema before they reach
// the broker.
package schema

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/trickstertwo/xeda"
)

//go:embed envelope.schema.json
var envelopeSchema string

const envelopeSchemaURL = "https://xeda.schemas.local/envelope.schema.json"

// ErrInvalidEnvelope is returned by Guard when an envelope does not match the
// schema. The validation details are wrapped alongside it.
var ErrInvalidEnvelope = errors.New("schema: envelope failed validation")

// Validator checks envelopes against a compiled schema.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the built-in envelope schema.
func NewValidator() (*Validator, error) {
	return Compile(envelopeSchema)
}

// Compile builds a Validator from a Draft 2020-12 schema document.
func Compile(doc string) (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(envelopeSchemaURL, strings.NewReader(doc)); err != nil {
		return nil, fmt.Errorf("schema load failed: %w", err)
	}
	compiled, err := c.Compile(envelopeSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("schema compile failed: %w", err)
	}
	return &Validator{schema: compiled}, nil
}

// Validate checks the JSON form of env.
func (v *Validator) Validate(env xeda.Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return v.ValidateJSON(raw)
}

// ValidateJSON checks an encoded envelope.
func (v *Validator) ValidateJSON(raw []byte) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEnvelope, err)
	}
	return nil
}

// Guard is a Dispatcher decorator that refuses envelopes the Validator
// rejects. Rejected envelopes never reach next.
type Guard struct {
	validator *Validator
	next      xeda.Dispatcher
}

// NewGuard wraps next with v.
func NewGuard(v *Validator, next xeda.Dispatcher) *Guard {
	return &Guard{validator: v, next: next}
}

func (g *Guard) Dispatch(ctx context.Context, topic string, env xeda.Envelope) error {
	if g.next == nil {
		return errors.New("schema: guard has no dispatcher")
	}
	if err := g.validator.Validate(env); err != nil {
		return fmt.Errorf("%s %s: %w", env.Type, env.ID, err)
	}
	return g.next.Dispatch(ctx, topic, env)
}

var _ xeda.Dispatcher = (*Guard)(nil)
