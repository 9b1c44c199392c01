package tools

import (
	"fmt"
	"sort"
	"strings"

	"github.com/platinummonkey/tollgate/pkg/apierr"
)

// RunFunc computes a tool result from a validated input
type RunFunc func(in Input) (interface{}, error)

// Tool is a pure text or data utility
type Tool struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Required    []string `json:"requiredFields"`
	Optional    []string `json:"optionalFields,omitempty"`
	Run         RunFunc  `json:"-"`
}

// Validate reports the required fields absent from in
func (t Tool) Validate(in Input) *apierr.Error {
	var missing []string
	for _, field := range t.Required {
		if !in.Has(field) {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return apierr.MissingFields(missing...)
	}
	return nil
}

// Registry holds the available tools by ID
type Registry struct {
	tools map[string]Tool
}

// NewRegistry creates a registry from tools. Duplicate IDs are an error.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if t.ID == "" || t.Run == nil {
			return nil, fmt.Errorf("tool %q is incomplete", t.ID)
		}
		if _, exists := r.tools[t.ID]; exists {
			return nil, fmt.Errorf("duplicate tool %q", t.ID)
		}
		r.tools[t.ID] = t
	}
	return r, nil
}

// DefaultRegistry returns every built-in tool
func DefaultRegistry() *Registry {
	r, err := NewRegistry(Builtin()...)
	if err != nil {
		panic(err)
	}
	return r
}

// Get returns the tool with the given ID
func (r *Registry) Get(id string) (Tool, bool) {
	t, ok := r.tools[strings.ToLower(id)]
	return t, ok
}

// List returns all tools sorted by ID
func (r *Registry) List() []Tool {
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Builtin returns the built-in tools
func Builtin() []Tool {
	return []Tool{
		{
			ID:          "word-counter",
			Name:        "Word Counter",
			Description: "Count words, characters, sentences and paragraphs",
			Required:    []string{"text"},
			Run:         wordCounter,
		},
		{
			ID:          "character-counter",
			Name:        "Character Counter",
			Description: "Count characters, bytes, letters, digits and lines",
			Required:    []string{"text"},
			Run:         characterCounter,
		},
		{
			ID:          "json-formatter",
			Name:        "JSON Formatter",
			Description: "Validate, pretty-print or minify JSON",
			Required:    []string{"json"},
			Optional:    []string{"indent", "minify"},
			Run:         jsonFormatter,
		},
		{
			ID:          "case-converter",
			Name:        "Case Converter",
			Description: "Convert text between upper, lower, title, sentence, camel, snake and kebab case",
			Required:    []string{"text", "case"},
			Run:         caseConverter,
		},
		{
			ID:          "color-converter",
			Name:        "Color Converter",
			Description: "Convert colors between hex, rgb and hsl",
			Required:    []string{"color"},
			Run:         colorConverter,
		},
		{
			ID:          "base64",
			Name:        "Base64",
			Description: "Encode or decode base64",
			Required:    []string{"text"},
			Optional:    []string{"mode"},
			Run:         base64Tool,
		},
		{
			ID:          "hash-generator",
			Name:        "Hash Generator",
			Description: "Hash text with md5, sha1, sha256 or sha512",
			Required:    []string{"text"},
			Optional:    []string{"algorithm"},
			Run:         hashGenerator,
		},
		{
			ID:          "slug-generator",
			Name:        "Slug Generator",
			Description: "Turn text into a URL slug",
			Required:    []string{"text"},
			Run:         slugGenerator,
		},
		{
			ID:          "uuid-generator",
			Name:        "UUID Generator",
			Description: "Generate random v4 UUIDs",
			Optional:    []string{"count"},
			Run:         uuidGenerator,
		},
	}
}
