// Package template renders YAML configuration documents through Go
// templates, for authoring the config documents submitted alongside
// artifacts.
package template

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"gopkg.in/yaml.v3"
)

// InvalidTemplateError indicates a document that failed to render or did
// not produce valid YAML.
type InvalidTemplateError struct {
	Name string
	Err  error
}

func (e *InvalidTemplateError) Error() string {
	return fmt.Sprintf("invalid template %s: %v", e.Name, e.Err)
}

func (e *InvalidTemplateError) Unwrap() error { return e.Err }

// RenderFile renders the template at path with params and validates the
// output parses as YAML.
func RenderFile(path string, params map[string]any) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &InvalidTemplateError{Name: path, Err: err}
	}
	return Render(filepath.Base(path), string(data), params)
}

// Render renders text as a template with params. Referencing a parameter
// that was not supplied is an error rather than an empty substitution, so
// typos fail loudly.
func Render(name, text string, params map[string]any) (string, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", &InvalidTemplateError{Name: name, Err: err}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, params); err != nil {
		return "", &InvalidTemplateError{Name: name, Err: err}
	}

	var doc any
	if err := yaml.Unmarshal(buf.Bytes(), &doc); err != nil {
		return "", &InvalidTemplateError{Name: name, Err: fmt.Errorf("rendered output is not valid YAML: %w", err)}
	}
	return buf.String(), nil
}

// RenderToMap renders and decodes the document into a generic mapping, the
// shape the API's body parameters take.
func RenderToMap(name, text string, params map[string]any) (map[string]any, error) {
	rendered, err := Render(name, text, params)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := yaml.Unmarshal([]byte(rendered), &doc); err != nil {
		return nil, &InvalidTemplateError{Name: name, Err: err}
	}
	return doc, nil
}
