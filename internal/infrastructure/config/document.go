package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Custom YAML tags understood by the loader.
const (
	tagEnv     = "!env"
	tagInclude = "!include"

	// maxIncludeDepth bounds nested !include resolution so that include
	// loops fail instead of recursing forever.
	maxIncludeDepth = 8
)

// ErrIncludeDepth is returned when !include nesting exceeds maxIncludeDepth.
var ErrIncludeDepth = errors.New("config: include nesting too deep")

// Document is a loaded configuration document: domain name to raw value.
type Document map[string]any

// Domain returns the raw value of a domain and whether it is present.
func (d Document) Domain(name string) (any, bool) {
	v, ok := d[name]
	return v, ok
}

// Source produces a fresh configuration document on every call.
type Source interface {
	Load() (Document, error)
}

// FileSource reads the document from a YAML file.
type FileSource struct {
	Path string
}

// Load reads and parses the file, resolving !env and !include tags.
func (s FileSource) Load() (Document, error) {
	return LoadDocument(s.Path)
}

// LoadDocument reads a YAML configuration document from path.
//
// Tags:
//   - !env VAR [default]: replaced by the environment variable VAR, or by
//     default when VAR is unset
//   - !include file.yaml: replaced by the contents of file.yaml, resolved
//     relative to the including file
//
// Returns an empty Document for an empty file.
func LoadDocument(path string) (Document, error) {
	root, err := parseFile(path, 0)
	if err != nil {
		return nil, err
	}

	doc := Document{}
	if root == nil {
		return doc, nil
	}
	if err := root.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding config file %s: %w", path, err)
	}
	return doc, nil
}

// ParseDocument parses an in-memory YAML document. !include is resolved
// relative to the working directory.
func ParseDocument(data []byte) (Document, error) {
	root, err := parseBytes(data, ".", 0)
	if err != nil {
		return nil, err
	}
	doc := Document{}
	if root == nil {
		return doc, nil
	}
	if err := root.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding config document: %w", err)
	}
	return doc, nil
}

func parseFile(path string, depth int) (*yaml.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	node, err := parseBytes(data, filepath.Dir(path), depth)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return node, nil
}

// parseBytes returns the resolved top-level node, or nil for an empty
// document.
func parseBytes(data []byte, baseDir string, depth int) (*yaml.Node, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, nil
	}

	node := root.Content[0]
	if err := resolveTags(node, baseDir, depth); err != nil {
		return nil, err
	}
	return node, nil
}

// resolveTags walks the node tree and replaces custom tagged nodes in place.
func resolveTags(node *yaml.Node, baseDir string, depth int) error {
	switch node.Tag {
	case tagEnv:
		return resolveEnv(node)
	case tagInclude:
		return resolveInclude(node, baseDir, depth)
	}

	for _, child := range node.Content {
		if err := resolveTags(child, baseDir, depth); err != nil {
			return err
		}
	}
	return nil
}

func resolveEnv(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: %s expects a scalar", node.Line, tagEnv)
	}

	name, fallback, _ := strings.Cut(strings.TrimSpace(node.Value), " ")
	if name == "" {
		return fmt.Errorf("line %d: %s requires a variable name", node.Line, tagEnv)
	}

	value, ok := os.LookupEnv(name)
	if !ok {
		value = strings.TrimSpace(fallback)
	}

	// An empty tag lets yaml.v3 resolve the scalar type implicitly, so
	// "!env PORT 1883" decodes as an int.
	node.Tag = ""
	node.Style = 0
	node.Value = value
	return nil
}

func resolveInclude(node *yaml.Node, baseDir string, depth int) error {
	if depth >= maxIncludeDepth {
		return ErrIncludeDepth
	}
	if node.Kind != yaml.ScalarNode || node.Value == "" {
		return fmt.Errorf("line %d: %s expects a file name", node.Line, tagInclude)
	}

	path := node.Value
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}

	included, err := parseFile(path, depth+1)
	if err != nil {
		return err
	}
	if included == nil {
		*node = yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null"}
		return nil
	}
	*node = *included
	return nil
}

// Decode maps a raw or approved domain value onto a typed struct using its
// yaml tags. Fields absent from value keep whatever out already holds, so
// callers can pre-populate defaults.
func Decode(value any, out any) error {
	if value == nil {
		return nil
	}
	data, err := yaml.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding domain value: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding domain value: %w", err)
	}
	return nil
}
