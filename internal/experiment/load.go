// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package experiment

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/spf13/afero"
	"github.com/zclconf/go-cty/cty"
)

const hclExt = ".hcl"

var (
	// ErrReadDefinition is returned when the definition file cannot be read.
	ErrReadDefinition = errors.New("failed to read experiment definition")
	// ErrInvalidYaml is returned when a YAML definition cannot be decoded.
	ErrInvalidYaml = errors.New("invalid YAML")
	// ErrInvalidHcl is returned when an HCL definition cannot be decoded.
	ErrInvalidHcl = errors.New("invalid HCL")
)

// Load reads and decodes the definition at path using FsFactory.
func Load(path string) (*Definition, error) {
	data, err := afero.ReadFile(FsFactory(), path)
	if err != nil {
		return nil, errors.Join(ErrReadDefinition, err)
	}

	return Parse(path, data)
}

// Parse decodes a definition. The format is chosen by the file extension of filename.
func Parse(filename string, data []byte) (*Definition, error) {
	if strings.EqualFold(filepath.Ext(filename), hclExt) {
		return parseHCL(filename, data)
	}

	return parseYAML(data)
}

func parseYAML(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.UnmarshalWithOptions(data, &def, yaml.Strict()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYaml, err)
	}

	return &def, nil
}

func parseHCL(filename string, data []byte) (*Definition, error) {
	var def Definition
	if err := hclsimple.Decode(filename, data, evalContext(), &def); err != nil {
		return nil, errors.Join(ErrInvalidHcl, err)
	}

	return &def, nil
}

// evalContext exposes the process environment as the env object.
func evalContext() *hcl.EvalContext {
	vars := make(map[string]cty.Value)

	for _, kv := range environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}

		vars[k] = cty.StringVal(v)
	}

	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": cty.ObjectVal(vars),
		},
	}
}

// MarshalYAML renders a definition as YAML.
func MarshalYAML(def *Definition) ([]byte, error) {
	return yaml.Marshal(def)
}
