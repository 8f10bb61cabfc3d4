package stat

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// schemaFile is the on-disk shape of a stat schema document.
type schemaFile struct {
	Definitions []Definition `yaml:"definitions"`
}

// LoadDefinitions parses stat-group definitions from YAML and validates each
// one. The returned map is keyed by definition id.
func LoadDefinitions(r io.Reader) (map[string]Definition, error) {
	var file schemaFile
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode stat schema: %w", err)
	}

	definitions := make(map[string]Definition, len(file.Definitions))
	for _, def := range file.Definitions {
		if def.ID == "" {
			return nil, invalidDefinition("", "definition id is required")
		}
		if _, dup := definitions[def.ID]; dup {
			return nil, invalidDefinition(def.ID, "duplicate definition id")
		}
		if err := def.Validate(); err != nil {
			return nil, err
		}
		definitions[def.ID] = def
	}
	return definitions, nil
}
