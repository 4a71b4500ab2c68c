// Package network reads raceway network documents. A document is checked
// against an embedded JSON Schema before it is decoded, then validated as a
// graph.
package network

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/mohammed-shakir/raceway-cad/internal/core/model"
)

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "network.schema.json"

var compiled = sync.OnceValues(func() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	s, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return s, nil
})

// Load decodes and validates a network document. Shape and graph errors
// wrap model.ErrInvalidNetwork.
func Load(r io.Reader) (model.Network, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return model.Network{}, fmt.Errorf("read network: %w", err)
	}
	schema, err := compiled()
	if err != nil {
		return model.Network{}, err
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return model.Network{}, fmt.Errorf("%w: %v", model.ErrInvalidNetwork, err)
	}
	if err := schema.Validate(doc); err != nil {
		return model.Network{}, fmt.Errorf("%w: %v", model.ErrInvalidNetwork, err)
	}

	var net model.Network
	if err := json.Unmarshal(data, &net); err != nil {
		return model.Network{}, fmt.Errorf("%w: %v", model.ErrInvalidNetwork, err)
	}
	if err := net.Validate(); err != nil {
		return model.Network{}, err
	}
	return net, nil
}

func LoadFile(path string) (model.Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.Network{}, fmt.Errorf("open network: %w", err)
	}
	defer func() { _ = f.Close() }()
	net, err := Load(f)
	if err != nil {
		return model.Network{}, fmt.Errorf("%s: %w", path, err)
	}
	return net, nil
}
