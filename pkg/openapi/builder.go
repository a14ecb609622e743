// Package openapi assembles a minimal OpenAPI 3.1 document from registered
// operations.
package openapi

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
)

// Operation is one HTTP operation to document.
type Operation struct {
	Method      string
	Path        string
	Summary     string
	Tags        []string
	RequestBody map[string]any // JSON schema of the body, nil for none
	// Responses maps status codes to descriptions.
	Responses map[string]string
	// Public operations accept anonymous callers.
	Public bool
}

type Registry struct {
	ops []Operation
}

func NewRegistry() *Registry { return &Registry{} }

func (r *Registry) Register(op Operation) {
	op.Method = strings.ToLower(op.Method)
	r.ops = append(r.ops, op)
}

// Build renders the registered operations. Non-2xx responses reference the
// shared problem+json schema; cookieName names the session cookie scheme.
func (r *Registry) Build(serviceName, version, cookieName string) map[string]any {
	paths := map[string]any{}
	for _, op := range r.ops {
		item, ok := paths[op.Path].(map[string]any)
		if !ok {
			item = map[string]any{}
			paths[op.Path] = item
		}
		responses := map[string]any{}
		codes := make([]string, 0, len(op.Responses))
		for code := range op.Responses {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		for _, code := range codes {
			resp := map[string]any{"description": op.Responses[code]}
			if !strings.HasPrefix(code, "2") && !strings.HasPrefix(code, "3") {
				resp["content"] = map[string]any{
					"application/problem+json": map[string]any{"schema": map[string]any{"$ref": "#/components/schemas/Problem"}},
				}
			}
			responses[code] = resp
		}
		m := map[string]any{
			"summary":   op.Summary,
			"tags":      op.Tags,
			"responses": responses,
		}
		if op.RequestBody != nil {
			m["requestBody"] = map[string]any{
				"required": true,
				"content":  map[string]any{"application/json": map[string]any{"schema": op.RequestBody}},
			}
		}
		if op.Public {
			m["security"] = []map[string]any{{}}
		}
		item[op.Method] = m
	}
	return map[string]any{
		"openapi": "3.1.0",
		"info":    map[string]any{"title": serviceName, "version": version},
		"paths":   paths,
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"bearer":  map[string]any{"type": "http", "scheme": "bearer", "bearerFormat": "JWT"},
				"session": map[string]any{"type": "apiKey", "in": "cookie", "name": cookieName},
			},
			"schemas": map[string]any{
				"Problem": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"type":   map[string]any{"type": "string"},
						"title":  map[string]any{"type": "string"},
						"status": map[string]any{"type": "integer"},
						"detail": map[string]any{"type": "string"},
					},
				},
			},
		},
		"security": []map[string]any{{"bearer": []string{}}, {"session": []string{}}},
	}
}

// ServeHandler serves the built document as JSON.
func (r *Registry) ServeHandler(serviceName, version, cookieName string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(r.Build(serviceName, version, cookieName))
	}
}
