package ingest

import (
	_ "embed"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/deal-associate/server/internal/agent/model"
)

//go:embed schema/deal_record.schema.json
var recordSchema []byte

// Validator checks structured records against the deal record JSON schema.
// Violations are warnings; ingestion carries on.
type Validator struct {
	schema *gojsonschema.Schema
}

func NewValidator() (*Validator, error) {
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(recordSchema))
	if err != nil {
		return nil, fmt.Errorf("load deal record schema: %w", err)
	}
	return &Validator{schema: s}, nil
}

func (v *Validator) Validate(record map[string]any) []string {
	result, err := v.schema.Validate(gojsonschema.NewGoLoader(record))
	if err != nil {
		return []string{fmt.Sprintf("validation error: %v", err)}
	}
	if result.Valid() {
		return nil
	}
	errs := make([]string, len(result.Errors()))
	for i, desc := range result.Errors() {
		errs[i] = desc.String()
	}
	return errs
}

var _ model.RecordValidator = (*Validator)(nil)
