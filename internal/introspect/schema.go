package introspect

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/mordonez-me/capibara/internal/capability"
)

// DeclarationFile is the shape of a YAML or JSON declaration file.
type DeclarationFile struct {
	Capabilities []capability.Record `json:"capabilities" jsonschema:"required,description=Capability declarations"`
}

// DeclarationSchema returns the JSON schema of DeclarationFile, for editor
// completion on declaration files.
func DeclarationSchema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true,
	}
	schema := reflector.Reflect(&DeclarationFile{})

	b, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return b, nil
}
