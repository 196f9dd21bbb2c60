package nextflow

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrInvalidParams is returned when parameters do not satisfy a schema.
var ErrInvalidParams = errors.New("nextflow: invalid parameters")

// Schema is a pipeline parameter schema with its definitions normalised
// from "definitions", "$defs" or "defs".
type Schema struct {
	Title       string
	Description string
	Groups      []Group

	raw      []byte
	once     sync.Once
	compiled *jsonschema.Schema
	compErr  error
}

// Group is one definitions entry: a titled set of parameters.
type Group struct {
	Name        string
	Title       string
	Description string
	Icon        string
	Parameters  []Parameter
}

// Parameter is a single pipeline parameter.
type Parameter struct {
	Name        string `json:"-"`
	Type        Type   `json:"type"`
	Description string `json:"description"`
	HelpText    string `json:"help_text"`
	Format      string `json:"format"`
	Pattern     string `json:"pattern"`
	Icon        string `json:"fa_icon"`
	Default     any    `json:"default"`
	Enum        []any  `json:"enum"`
	Hidden      bool   `json:"hidden"`
	Required    bool   `json:"-"`
}

// Type is a JSON schema type name. A list of types is joined with "|".
type Type string

// UnmarshalJSON accepts a single type name or an array of names.
func (t *Type) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*t = Type(one)
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("nextflow: schema type: %w", err)
	}
	*t = Type(strings.Join(many, "|"))
	return nil
}

type rawGroup struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Icon        string          `json:"fa_icon"`
	Required    []string        `json:"required"`
	Properties  json.RawMessage `json:"properties"`
}

type schemaRef struct {
	Ref string `json:"$ref"`
}

type rawSchema struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Definitions json.RawMessage `json:"definitions"`
	Defs        json.RawMessage `json:"$defs"`
	LegacyDefs  json.RawMessage `json:"defs"`
	AllOf       []schemaRef     `json:"allOf"`
	Properties  json.RawMessage `json:"properties"`
	Required    []string        `json:"required"`
}

// LoadSchema parses nextflow_schema.json content. A schema without any
// definitions block yields no groups rather than an error.
func LoadSchema(data []byte) (*Schema, error) {
	var rs rawSchema
	if err := json.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("nextflow: parse schema: %w", err)
	}
	s := &Schema{Title: rs.Title, Description: rs.Description, raw: data}

	defs := rs.Definitions
	if len(defs) == 0 {
		defs = rs.Defs
	}
	if len(defs) == 0 {
		defs = rs.LegacyDefs
	}
	if len(defs) > 0 {
		names, err := orderedKeys(defs)
		if err != nil {
			return nil, fmt.Errorf("nextflow: schema definitions: %w", err)
		}
		var groups map[string]rawGroup
		if err := json.Unmarshal(defs, &groups); err != nil {
			return nil, fmt.Errorf("nextflow: schema definitions: %w", err)
		}
		for _, name := range refOrder(rs.AllOf, names) {
			g, err := buildGroup(name, groups[name])
			if err != nil {
				return nil, err
			}
			s.Groups = append(s.Groups, g)
		}
	}
	if len(rs.Properties) > 0 {
		g, err := buildGroup("", rawGroup{Title: "Other parameters", Required: rs.Required, Properties: rs.Properties})
		if err != nil {
			return nil, err
		}
		s.Groups = append(s.Groups, g)
	}
	return s, nil
}

// refOrder lists definition names in allOf $ref order, then any remaining
// names in document order.
func refOrder(allOf []schemaRef, names []string) []string {
	known := make(map[string]bool, len(names))
	for _, n := range names {
		known[n] = true
	}
	seen := make(map[string]bool)
	var out []string
	for _, entry := range allOf {
		ref := entry.Ref
		i := strings.LastIndex(ref, "/")
		if i < 0 {
			continue
		}
		name := ref[i+1:]
		if known[name] && !seen[name] {
			out = append(out, name)
			seen[name] = true
		}
	}
	for _, n := range names {
		if !seen[n] {
			out = append(out, n)
		}
	}
	return out
}

func buildGroup(name string, rg rawGroup) (Group, error) {
	g := Group{Name: name, Title: rg.Title, Description: rg.Description, Icon: rg.Icon}
	if g.Title == "" {
		g.Title = name
	}
	if len(rg.Properties) == 0 {
		return g, nil
	}
	order, err := orderedKeys(rg.Properties)
	if err != nil {
		return g, fmt.Errorf("nextflow: %s properties: %w", name, err)
	}
	var props map[string]Parameter
	if err := json.Unmarshal(rg.Properties, &props); err != nil {
		return g, fmt.Errorf("nextflow: %s properties: %w", name, err)
	}
	required := make(map[string]bool, len(rg.Required))
	for _, r := range rg.Required {
		required[r] = true
	}
	for _, key := range order {
		p := props[key]
		p.Name = key
		p.Required = required[key]
		g.Parameters = append(g.Parameters, p)
	}
	return g, nil
}

// orderedKeys returns the keys of a JSON object in document order.
func orderedKeys(obj json.RawMessage) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(obj))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("expected a JSON object")
	}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, errors.New("expected an object key")
		}
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// Parameters returns every parameter across groups, sorted by name.
func (s *Schema) Parameters() []Parameter {
	var out []Parameter
	for _, g := range s.Groups {
		out = append(out, g.Parameters...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Defaults returns the default value of every parameter that declares one.
func (s *Schema) Defaults() map[string]any {
	out := make(map[string]any)
	for _, g := range s.Groups {
		for _, p := range g.Parameters {
			if p.Default != nil {
				out[p.Name] = p.Default
			}
		}
	}
	return out
}

// Validate checks params against the schema. Unknown formats such as
// "file-path" are not asserted.
func (s *Schema) Validate(params map[string]any) error {
	s.once.Do(func() {
		s.compiled, s.compErr = jsonschema.CompileString(SchemaFile, string(s.raw))
	})
	if s.compErr != nil {
		return fmt.Errorf("nextflow: compile schema: %w", s.compErr)
	}
	// Round-trip so values have the JSON types the validator expects.
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("nextflow: encode params: %w", err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("nextflow: decode params: %w", err)
	}
	if err := s.compiled.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return nil
}
