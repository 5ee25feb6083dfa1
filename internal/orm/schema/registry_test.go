package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestModel(name string, rels map[string]*Relationship) *Model {
	m := NewModel(name)
	m.Fields["id"] = &FieldAttribute{Type: TypeString, Required: true}
	for k, v := range rels {
		m.Relationships[k] = v
	}
	return m
}

func TestRegistry(t *testing.T) {
	t.Run("register and get", func(t *testing.T) {
		registry := NewRegistry()
		require.NoError(t, registry.Register(newTestModel("post", nil)))

		m, ok := registry.Get("post")
		require.True(t, ok)
		assert.Equal(t, "post", m.Table)
	})

	t.Run("duplicate registration", func(t *testing.T) {
		registry := NewRegistry()
		require.NoError(t, registry.Register(newTestModel("post", nil)))
		assert.Error(t, registry.Register(newTestModel("post", nil)))
	})

	t.Run("relationship defaults", func(t *testing.T) {
		registry := NewRegistry()
		require.NoError(t, registry.Register(newTestModel("category", map[string]*Relationship{
			"parent":   {Type: RelationshipBelongsTo, Target: "category"},
			"children": {Type: RelationshipHasMany, Target: "category", ForeignKey: "parentId"},
		})))

		parent, err := registry.GetRelationship("category", "parent")
		require.NoError(t, err)
		assert.Equal(t, "parentId", parent.ForeignKey)
		assert.Equal(t, "id", parent.TargetKey)

		children, err := registry.GetRelationship("category", "children")
		require.NoError(t, err)
		assert.Equal(t, "id", children.LocalKey)
		assert.Equal(t, "children", children.Name)
	})

	t.Run("junction model registered", func(t *testing.T) {
		registry := NewRegistry()
		require.NoError(t, registry.Register(newTestModel("product", map[string]*Relationship{
			"tags": BelongsToMany("tag", "product_tags", "productId", "tagId"),
		})))
		require.NoError(t, registry.Register(newTestModel("tag", nil)))

		junction, ok := registry.Get("product_tags")
		require.True(t, ok)
		assert.True(t, junction.Junction)
		assert.Contains(t, junction.Fields, "productId")
		assert.Contains(t, junction.Fields, "tagId")
		assert.Equal(t, []string{"product", "product_tags", "tag"}, registry.List())
		assert.NoError(t, registry.ValidateAll())
	})

	t.Run("invalid relationship rejected", func(t *testing.T) {
		registry := NewRegistry()
		err := registry.Register(newTestModel("post", map[string]*Relationship{
			"tags": {Type: RelationshipBelongsToMany, Target: "tag", LocalKey: "k", TargetKey: "k"},
		}))
		assert.Error(t, err)
	})

	t.Run("unknown target fails validation", func(t *testing.T) {
		registry := NewRegistry()
		require.NoError(t, registry.Register(newTestModel("post", map[string]*Relationship{
			"author": BelongsTo("user", "authorId"),
		})))
		assert.Error(t, registry.ValidateAll())
	})
}

func TestRegistry_DependencyOrder(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(newTestModel("comment", map[string]*Relationship{
		"post": BelongsTo("post", "postId"),
	})))
	require.NoError(t, registry.Register(newTestModel("post", map[string]*Relationship{
		"author": BelongsTo("user", "authorId"),
		"parent": BelongsTo("post", "parentId"),
	})))
	require.NoError(t, registry.Register(newTestModel("user", nil)))

	order, err := registry.GetDependencyOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"user", "post", "comment"}, order)
}

func TestRelationshipGraph_Cycles(t *testing.T) {
	a := newTestModel("a", map[string]*Relationship{"b": BelongsTo("b", "bId")})
	b := newTestModel("b", map[string]*Relationship{"a": BelongsTo("a", "aId")})

	graph := NewRelationshipGraph(map[string]*Model{"a": a, "b": b})
	assert.NotEmpty(t, graph.DetectCycles())

	_, err := graph.TopologicalSort()
	assert.Error(t, err)
}
