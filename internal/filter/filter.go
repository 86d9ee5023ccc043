// Package filter applies jq expressions to decoded API responses for CLI
// output shaping.
package filter

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/itchyny/gojq"
)

// normalize fixes shell-escaped operators. Zsh escapes ! to \! even in
// single quotes, breaking operators like !=.
func normalize(expr string) string {
	return strings.ReplaceAll(expr, `\!`, `!`)
}

// Apply runs a jq expression over data. A single result is returned as-is;
// multiple results collapse into a slice. An empty expression is the
// identity.
func Apply(data any, expression string) (any, error) {
	if strings.TrimSpace(expression) == "" {
		return data, nil
	}

	query, err := gojq.Parse(normalize(expression))
	if err != nil {
		return nil, fmt.Errorf("invalid query expression: %w", err)
	}

	iter := query.Run(data)
	var results []any
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := v.(error); ok {
			return nil, fmt.Errorf("query error: %w", err)
		}
		results = append(results, v)
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}

// ApplyRaw decodes a JSON payload, applies the expression, and re-encodes
// the result with indentation for terminal output.
func ApplyRaw(payload []byte, expression string) ([]byte, error) {
	var data any
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &data); err != nil {
			return nil, fmt.Errorf("response is not JSON: %w", err)
		}
	}
	result, err := Apply(data, expression)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(result, "", "  ")
}
