package schema

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the model of every registered resource, plus the junction
// models synthesized from their many-to-many relationships.
type Registry struct {
	models map[string]*Model
	mu     sync.RWMutex
}

// NewRegistry creates a new model registry
func NewRegistry() *Registry {
	return &Registry{
		models: make(map[string]*Model),
	}
}

// Register adds a model. Junction models for its belongsToMany relationships
// are registered alongside it unless a model of that name already exists.
func (r *Registry) Register(model *Model) error {
	if model == nil || model.Name == "" {
		return fmt.Errorf("model name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, exists := r.models[model.Name]; exists && !existing.Junction {
		return fmt.Errorf("model %s is already registered", model.Name)
	}
	normalized := make(map[string]*Relationship, len(model.Relationships))
	for name, rel := range model.Relationships {
		if rel == nil {
			return fmt.Errorf("model %s: relationship %s is nil", model.Name, name)
		}
		n := rel.Normalized(model.Name, name)
		if err := n.Validate(); err != nil {
			return fmt.Errorf("model %s: %w", model.Name, err)
		}
		normalized[name] = n
	}
	model.Relationships = normalized
	if model.Table == "" {
		model.Table = model.Name
	}
	r.models[model.Name] = model

	for _, rel := range model.Relationships {
		if rel.Type != RelationshipBelongsToMany {
			continue
		}
		if _, exists := r.models[rel.Through]; !exists {
			r.models[rel.Through] = rel.JunctionModel(model.Name)
		}
	}
	return nil
}

// Get retrieves a model by name
func (r *Registry) Get(name string) (*Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, exists := r.models[name]
	return m, exists
}

// Exists checks if a model is registered
func (r *Registry) Exists(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// TableName returns the table backing a model, falling back to the name itself
func (r *Registry) TableName(name string) string {
	if m, ok := r.Get(name); ok && m.Table != "" {
		return m.Table
	}
	return name
}

// All returns a copy of all registered models
func (r *Registry) All() map[string]*Model {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]*Model, len(r.models))
	for k, v := range r.models {
		result[k] = v
	}
	return result
}

// List returns the sorted names of all registered models
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetRelationships returns all relationships for a model
func (r *Registry) GetRelationships(name string) (map[string]*Relationship, error) {
	m, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("model %s not found", name)
	}
	return m.Relationships, nil
}

// GetRelationship returns a single named relationship of a model
func (r *Registry) GetRelationship(model, name string) (*Relationship, error) {
	rels, err := r.GetRelationships(model)
	if err != nil {
		return nil, err
	}
	rel, ok := rels[name]
	if !ok {
		return nil, fmt.Errorf("model %s has no relationship %s", model, name)
	}
	return rel, nil
}

// GetFields returns all fields for a model
func (r *Registry) GetFields(name string) (map[string]*FieldAttribute, error) {
	m, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("model %s not found", name)
	}
	return m.Fields, nil
}

// ValidateAll checks that every relationship and reference targets a known model
func (r *Registry) ValidateAll() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	graph := NewRelationshipGraph(r.models)
	return graph.ValidateGraph()
}

// GetDependencyOrder returns models in dependency order (safe for migrations)
func (r *Registry) GetDependencyOrder() ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	graph := NewRelationshipGraph(r.models)
	return graph.TopologicalSort()
}
