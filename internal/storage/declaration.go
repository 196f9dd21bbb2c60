package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// RootPlaceholder is replaced by the root directory in local backend roots.
const RootPlaceholder = "{{ROOT_DIR}}"

// ErrInvalidDeclarations is returned when a declaration file does not
// satisfy the declaration schema.
var ErrInvalidDeclarations = errors.New("storage: invalid backend declarations")

// Declaration is one entry of the storage backend file.
type Declaration struct {
	Name           string   `yaml:"-"`
	Type           Kind     `yaml:"type"`
	Root           string   `yaml:"root,omitempty"`
	BucketPatterns []string `yaml:"bucket_patterns,omitempty"`
	Region         string   `yaml:"region,omitempty"`
	Endpoint       string   `yaml:"endpoint,omitempty"`
	Description    string   `yaml:"description,omitempty"`
}

const declarationSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": {
    "type": "object",
    "required": ["type"],
    "additionalProperties": false,
    "properties": {
      "type": {"enum": ["local", "server", "s3"]},
      "root": {"type": "string", "minLength": 1},
      "bucket_patterns": {"type": "array", "items": {"type": "string"}, "minItems": 1},
      "region": {"type": "string"},
      "endpoint": {"type": "string"},
      "description": {"type": "string"}
    },
    "allOf": [
      {
        "if": {"properties": {"type": {"enum": ["local", "server"]}}},
        "then": {"required": ["root"]}
      },
      {
        "if": {"properties": {"type": {"const": "s3"}}},
        "then": {"required": ["bucket_patterns"]}
      }
    ]
  }
}`

var compiledDeclarationSchema = jsonschema.MustCompileString("storage_backends.json", declarationSchema)

// DefaultDeclarations are used when no declaration file exists.
func DefaultDeclarations(rootDir string) []Declaration {
	return []Declaration{
		{Name: "local_data", Type: KindLocal, Root: filepath.Join(rootDir, "data"), Description: "Local Data Files"},
		{Name: "local_configs", Type: KindLocal, Root: filepath.Join(rootDir, "configs"), Description: "Configuration Files"},
	}
}

// Load reads and validates the declaration file at path.
func Load(path, rootDir string) ([]Declaration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	return Parse(data, rootDir)
}

// Parse decodes a YAML declaration document, keeping the document order of
// the backends. The "server" type is accepted as an alias of "local".
func Parse(data []byte, rootDir string) ([]Declaration, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("storage: parse declarations: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, fmt.Errorf("%w: no backends declared", ErrInvalidDeclarations)
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: top level must be a mapping of backend names", ErrInvalidDeclarations)
	}
	if err := validateDeclarations(root); err != nil {
		return nil, err
	}

	decls := make([]Declaration, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		var d Declaration
		if err := root.Content[i+1].Decode(&d); err != nil {
			return nil, fmt.Errorf("storage: decode %s: %w", root.Content[i].Value, err)
		}
		d.Name = root.Content[i].Value
		if d.Type == "server" {
			d.Type = KindLocal
		}
		if d.Type == KindLocal {
			d.Root = strings.ReplaceAll(d.Root, RootPlaceholder, rootDir)
			if !filepath.IsAbs(d.Root) {
				d.Root = filepath.Join(rootDir, d.Root)
			}
		}
		decls = append(decls, d)
	}
	if len(decls) == 0 {
		return nil, fmt.Errorf("%w: no backends declared", ErrInvalidDeclarations)
	}
	return decls, nil
}

func validateDeclarations(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("storage: decode declarations: %w", err)
	}
	// The validator expects JSON-decoded values.
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("storage: encode declarations: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("storage: decode declarations: %w", err)
	}
	if err := compiledDeclarationSchema.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDeclarations, err)
	}
	return nil
}
