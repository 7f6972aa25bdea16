package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const schemaBase = "https://agentworld.ai/schemas/"

var schemaFiles = map[string]string{
	TypeHello:   "hello.schema.json",
	TypeWelcome: "welcome.schema.json",
	TypeInput:   "input.schema.json",
	TypeState:   "state.schema.json",
	TypeError:   "error.schema.json",
}

var (
	schemasOnce sync.Once
	schemas     map[string]*jsonschema.Schema
	schemasErr  error
)

func loadSchemas() (map[string]*jsonschema.Schema, error) {
	schemasOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft7
		names, err := fs.Glob(schemaFS, "schemas/*.schema.json")
		if err != nil {
			schemasErr = err
			return
		}
		for _, n := range names {
			b, err := schemaFS.ReadFile(n)
			if err != nil {
				schemasErr = err
				return
			}
			if err := c.AddResource(schemaBase+n[len("schemas/"):], bytes.NewReader(b)); err != nil {
				schemasErr = fmt.Errorf("schema %s: %w", n, err)
				return
			}
		}
		out := make(map[string]*jsonschema.Schema, len(schemaFiles))
		for typ, file := range schemaFiles {
			s, err := c.Compile(schemaBase + file)
			if err != nil {
				schemasErr = fmt.Errorf("compile %s: %w", file, err)
				return
			}
			out[typ] = s
		}
		schemas = out
	})
	return schemas, schemasErr
}

// Validate checks a JSON document against the schema of message type typ.
func Validate(typ string, raw []byte) error {
	all, err := loadSchemas()
	if err != nil {
		return err
	}
	s, ok := all[typ]
	if !ok {
		return fmt.Errorf("no schema for message type %q", typ)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	return s.Validate(doc)
}

// ValidateValue marshals v to JSON and validates it as message type typ.
func ValidateValue(typ string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return Validate(typ, b)
}
