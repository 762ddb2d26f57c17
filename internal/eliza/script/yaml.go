package script

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"io"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaSource string

var documentSchema = jsonschema.MustCompileString("script.schema.json", schemaSource)

// ParseYAML validates data against the script schema, decodes it and
// compiles it. Errors are *FormatError without line numbers.
func ParseYAML(data []byte, name string) (*Script, error) {
	doc, err := DecodeYAML(data, name)
	if err != nil {
		return nil, err
	}
	return Compile(doc, name)
}

// DecodeYAML validates and decodes the YAML form into a Document.
func DecodeYAML(data []byte, name string) (*Document, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, formatErrorf(name, 0, "invalid YAML: %v", err)
	}
	if raw == nil {
		return nil, formatErrorf(name, 0, "script is empty")
	}

	// The validator expects JSON values, so go through encoding/json.
	js, err := json.Marshal(raw)
	if err != nil {
		return nil, formatErrorf(name, 0, "script is not representable as JSON: %v", err)
	}
	dec := json.NewDecoder(bytes.NewReader(js))
	dec.UseNumber()
	var inst any
	if err := dec.Decode(&inst); err != nil {
		return nil, formatErrorf(name, 0, "re-decode script: %v", err)
	}
	if err := documentSchema.Validate(inst); err != nil {
		return nil, formatErrorf(name, 0, "schema: %v", err)
	}

	var doc Document
	yd := yaml.NewDecoder(bytes.NewReader(data))
	yd.KnownFields(true)
	if err := yd.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, formatErrorf(name, 0, "decode script: %v", err)
	}
	return &doc, nil
}

// MarshalYAML renders doc in the YAML form.
func MarshalYAML(doc *Document) ([]byte, error) {
	return yaml.Marshal(doc)
}
