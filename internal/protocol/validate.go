package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const schemaBase = "https://cyberfarm.ai/schemas/"

// Validator checks messages against the embedded JSON schemas.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020

	entries, err := fs.ReadDir(schemaFS, "schemas")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		b, err := schemaFS.ReadFile(path.Join("schemas", e.Name()))
		if err != nil {
			return nil, err
		}
		if err := c.AddResource(schemaBase+e.Name(), bytes.NewReader(b)); err != nil {
			return nil, fmt.Errorf("schema %s: %w", e.Name(), err)
		}
		names = append(names, e.Name())
	}

	v := &Validator{schemas: make(map[string]*jsonschema.Schema, len(names))}
	for _, name := range names {
		s, err := c.Compile(schemaBase + name)
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", name, err)
		}
		v.schemas[strings.TrimSuffix(name, ".schema.json")] = s
	}
	return v, nil
}

// Schema returns the compiled schema for a message name such as "start".
func (v *Validator) Schema(name string) *jsonschema.Schema {
	return v.schemas[name]
}

// Inbound validates a client message and returns its type.
func (v *Validator) Inbound(b []byte) (string, error) {
	var doc interface{}
	if err := json.Unmarshal(b, &doc); err != nil {
		return "", fmt.Errorf("bad json: %w", err)
	}
	base, err := DecodeBase(b)
	if err != nil {
		return "", fmt.Errorf("bad message: %w", err)
	}
	var s *jsonschema.Schema
	switch base.Type {
	case TypeStart:
		s = v.schemas["start"]
	case TypeStep, TypeAck, TypeAbort:
		s = v.schemas["control"]
	default:
		return base.Type, fmt.Errorf("unknown message type %q", base.Type)
	}
	if err := s.Validate(doc); err != nil {
		return base.Type, err
	}
	return base.Type, nil
}

// Validate checks any message value against the named schema.
func (v *Validator) Validate(name string, msg interface{}) error {
	s, ok := v.schemas[name]
	if !ok {
		return fmt.Errorf("no schema named %q", name)
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	var doc interface{}
	if err := json.Unmarshal(b, &doc); err != nil {
		return err
	}
	return s.Validate(doc)
}
