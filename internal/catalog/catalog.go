// Package catalog holds the immutable registry of simulation templates. The
// registry is built once at startup from a YAML document and injected into
// the pipeline and HTTP layers.
package catalog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/seantiz/tsunami/internal/model"
)

//go:embed templates.yaml
var defaultTemplates []byte

//go:embed templates.schema.yaml
var documentSchema []byte

// Summary is the listing form of a template.
type Summary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type document struct {
	Templates []model.Template `yaml:"templates"`
}

// Registry is a read-only set of templates in document order.
type Registry struct {
	order     []string
	templates map[string]model.Template
}

// New builds a registry from templates, rejecting invalid and duplicate entries.
func New(templates []model.Template) (*Registry, error) {
	r := &Registry{
		order:     make([]string, 0, len(templates)),
		templates: make(map[string]model.Template, len(templates)),
	}
	for _, t := range templates {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.templates[t.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate template id %q", model.ErrInvalidTemplate, t.ID)
		}
		t.SnapshotTimes = append([]float64(nil), t.SnapshotTimes...)
		r.templates[t.ID] = t
		r.order = append(r.order, t.ID)
	}
	return r, nil
}

// Default returns the registry of built-in templates.
func Default() (*Registry, error) {
	return Load(defaultTemplates)
}

// LoadFile reads a template document from path.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates file: %w", err)
	}
	return Load(data)
}

// Load validates a YAML template document against the catalog schema and
// builds a registry from it.
func Load(data []byte) (*Registry, error) {
	schema, err := compileSchema()
	if err != nil {
		return nil, err
	}

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse templates document: %w", err)
	}
	// The schema validator expects JSON-decoded values.
	asJSON, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("convert templates document: %w", err)
	}
	var instance any
	if err := json.Unmarshal(asJSON, &instance); err != nil {
		return nil, fmt.Errorf("convert templates document: %w", err)
	}
	if err := schema.Validate(instance); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidTemplate, err)
	}

	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode templates document: %w", err)
	}
	for i := range doc.Templates {
		if doc.Templates[i].Subfault.ReferencePoint == "" {
			doc.Templates[i].Subfault.ReferencePoint = model.RefTopCenter
		}
	}
	return New(doc.Templates)
}

func compileSchema() (*jsonschema.Schema, error) {
	var raw any
	if err := yaml.Unmarshal(documentSchema, &raw); err != nil {
		return nil, fmt.Errorf("parse templates schema: %w", err)
	}
	asJSON, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("marshal templates schema: %w", err)
	}
	schema, err := jsonschema.CompileString("templates.schema.json", string(asJSON))
	if err != nil {
		return nil, fmt.Errorf("compile templates schema: %w", err)
	}
	return schema, nil
}

// List returns every template id and display name in document order.
func (r *Registry) List() []Summary {
	out := make([]Summary, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, Summary{ID: id, Name: r.templates[id].Name()})
	}
	return out
}

// Get returns the template with the given id.
func (r *Registry) Get(id string) (model.Template, error) {
	t, ok := r.templates[id]
	if !ok {
		return model.Template{}, fmt.Errorf("%w: %q", model.ErrTemplateNotFound, id)
	}
	t.SnapshotTimes = append([]float64(nil), t.SnapshotTimes...)
	return t, nil
}
