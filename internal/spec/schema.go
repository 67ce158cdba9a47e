package spec

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/hugo-lorenzo-mato/toolflow/internal/core"
)

//go:embed workflow.schema.json
var workflowSchema []byte

// Schema returns the JSON Schema workflow documents are checked against.
func Schema() []byte {
	return workflowSchema
}

// FieldError is one schema violation.
type FieldError struct {
	Field       string
	Description string
}

func (e FieldError) String() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Description)
}

// CheckSchema validates a JSON document against the embedded schema and
// reports every violation in one INVALID_SPEC error.
func CheckSchema(jsonData []byte) error {
	schemaLoader := gojsonschema.NewBytesLoader(workflowSchema)
	documentLoader := gojsonschema.NewBytesLoader(jsonData)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return core.ErrPlanning(core.CodeInvalidSpec, "schema validation failed").WithCause(err)
	}
	if result.Valid() {
		return nil
	}

	fields := make([]FieldError, 0, len(result.Errors()))
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		fe := FieldError{Field: e.Field(), Description: e.Description()}
		fields = append(fields, fe)
		msgs = append(msgs, fe.String())
	}
	return core.ErrPlanning(core.CodeInvalidSpec, "workflow document does not match schema: "+strings.Join(msgs, "; ")).
		WithDetail("fields", fields)
}
