package config

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// paramsSchema constrains a YAML parameter file. The definition is closed,
// so unknown keys are rejected.
const paramsSchema = `
#Params: {
	in?:              string & !=""
	out?:             string & !=""
	niter?:           int & >=1 & <=1000
	pixsize?:         number & >=0.01 & <=1000
	config?:          string & !=""
	itermap?:         string
	ref?:             string
	mask2?:           string
	mask3?:           string
	extra?:           string
	retain?:          bool
	workdir?:         string
	last_masking?:    "coupled" | "per-model"
	cleaned_pattern?: string & !=""
	ext_pattern?:     string & !=""
}
`

var (
	schemaOnce sync.Once
	schemaCtx  *cue.Context
	schemaDef  cue.Value
	schemaErr  error
)

func loadSchema() {
	schemaCtx = cuecontext.New()
	val := schemaCtx.CompileString(paramsSchema, cue.Filename("params.cue"))
	if err := val.Err(); err != nil {
		schemaErr = fmt.Errorf("failed to compile params schema: %w", err)
		return
	}
	schemaDef = val.LookupPath(cue.ParsePath("#Params"))
	schemaErr = schemaDef.Err()
}

// ValidateParamsDocument checks decoded parameter-file data against the
// parameter schema.
func ValidateParamsDocument(data map[string]interface{}) error {
	schemaOnce.Do(loadSchema)
	if schemaErr != nil {
		return schemaErr
	}

	if data == nil {
		data = map[string]interface{}{}
	}
	unified := schemaDef.Unify(schemaCtx.Encode(data))
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}
