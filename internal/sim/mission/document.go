package mission

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"rovergrid.ai/internal/protocol"
)

type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
)

// FormatFromPath picks the document format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".toml":
		return FormatTOML, nil
	}
	return "", fmt.Errorf("mission %s: unknown extension (want .yaml, .yml, .json or .toml)", filepath.Base(path))
}

// Load reads and decodes a mission file. The result is schema-checked and validated.
func Load(path string) (Mission, error) {
	f, err := FormatFromPath(path)
	if err != nil {
		return Mission{}, &Error{Code: protocol.ErrProtoBadRequest, Msg: "load mission", Err: err}
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Mission{}, err
	}
	m, err := Decode(raw, f)
	if err != nil {
		return Mission{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return m, nil
}

// Decode parses a mission document of the given format. Every format is first
// turned into JSON so that one schema covers all of them.
func Decode(raw []byte, f Format) (Mission, error) {
	canon, err := canonicalJSON(raw, f)
	if err != nil {
		return Mission{}, &Error{Code: protocol.ErrProtoBadRequest, Msg: "decode " + string(f) + " mission", Err: err}
	}
	if err := protocol.ValidateJSON(protocol.SchemaMission, canon); err != nil {
		return Mission{}, &Error{Code: protocol.ErrSchema, Msg: "mission does not match schema", Err: err}
	}
	var doc protocol.MissionDoc
	if err := json.Unmarshal(canon, &doc); err != nil {
		return Mission{}, &Error{Code: protocol.ErrProtoBadRequest, Msg: "decode mission", Err: err}
	}
	m := FromDoc(doc)
	if err := m.Validate(); err != nil {
		return Mission{}, err
	}
	return m, nil
}

// DecodeDoc validates a document that already arrived as a struct (HTTP, RUN).
func DecodeDoc(doc protocol.MissionDoc) (Mission, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return Mission{}, err
	}
	return Decode(b, FormatJSON)
}

func canonicalJSON(raw []byte, f Format) ([]byte, error) {
	switch f {
	case FormatJSON:
		if !json.Valid(bytes.TrimSpace(raw)) {
			return nil, fmt.Errorf("invalid json")
		}
		return raw, nil
	case FormatYAML:
		var v any
		if err := yaml.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return json.Marshal(v)
	case FormatTOML:
		var v map[string]any
		if err := toml.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return json.Marshal(v)
	}
	return nil, fmt.Errorf("unknown format %q", f)
}
