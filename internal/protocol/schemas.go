package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaBaseURL prefixes every embedded schema; relative $refs resolve against it.
const SchemaBaseURL = "https://rovergrid.ai/schemas/"

const (
	SchemaMission = "mission.schema.json"
	SchemaRun     = "run.schema.json"
	SchemaStep    = "step.schema.json"
	SchemaResult  = "result.schema.json"
	SchemaError   = "error.schema.json"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

var schemaCache struct {
	mu       sync.Mutex
	compiled map[string]*jsonschema.Schema
}

func SchemaJSON(name string) ([]byte, error) {
	return schemaFS.ReadFile("schemas/" + name)
}

// CompileSchema compiles one of the embedded schemas. Results are cached.
func CompileSchema(name string) (*jsonschema.Schema, error) {
	schemaCache.mu.Lock()
	defer schemaCache.mu.Unlock()
	if s, ok := schemaCache.compiled[name]; ok {
		return s, nil
	}

	c := jsonschema.NewCompiler()
	ents, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, err
	}
	for _, e := range ents {
		b, err := schemaFS.ReadFile("schemas/" + e.Name())
		if err != nil {
			return nil, err
		}
		if err := c.AddResource(SchemaBaseURL+e.Name(), bytes.NewReader(b)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", e.Name(), err)
		}
	}
	s, err := c.Compile(SchemaBaseURL + name)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}
	if schemaCache.compiled == nil {
		schemaCache.compiled = map[string]*jsonschema.Schema{}
	}
	schemaCache.compiled[name] = s
	return s, nil
}

// ValidateJSON checks raw JSON against the named schema.
func ValidateJSON(name string, raw []byte) error {
	s, err := CompileSchema(name)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	return s.Validate(v)
}
