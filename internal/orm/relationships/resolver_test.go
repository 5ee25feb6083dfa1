package relationships

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armelgeek/better-query/internal/orm/adapter"
	"github.com/armelgeek/better-query/internal/orm/adapter/memory"
	"github.com/armelgeek/better-query/internal/orm/schema"
)

// countingAdapter counts FindMany calls to verify batching
type countingAdapter struct {
	adapter.Adapter
	finds int
}

func (c *countingAdapter) FindMany(ctx context.Context, model string, q adapter.Query) ([]adapter.Record, error) {
	c.finds++
	return c.Adapter.FindMany(ctx, model, q)
}

func newCatalog(t *testing.T) (*schema.Registry, *memory.Adapter) {
	t.Helper()
	registry := schema.NewRegistry()

	category := schema.NewModel("category")
	category.Fields["name"] = &schema.FieldAttribute{Type: schema.TypeString, Required: true}
	category.Fields["parentId"] = &schema.FieldAttribute{Type: schema.TypeString}
	category.Relationships["parent"] = schema.BelongsTo("category", "parentId")
	category.Relationships["children"] = &schema.Relationship{
		Type: schema.RelationshipHasMany, Target: "category", ForeignKey: "parentId", OrderBy: "name",
	}
	require.NoError(t, registry.Register(category))

	product := schema.NewModel("product")
	product.Fields["name"] = &schema.FieldAttribute{Type: schema.TypeString, Required: true}
	product.Fields["categoryId"] = &schema.FieldAttribute{Type: schema.TypeString}
	product.Relationships["category"] = &schema.Relationship{
		Type: schema.RelationshipBelongsTo, Target: "category", ForeignKey: "categoryId", IncludeByDefault: true,
	}
	product.Relationships["tags"] = schema.BelongsToMany("tag", "product_tags", "productId", "tagId")
	product.Relationships["review"] = schema.HasOne("review", "productId")
	require.NoError(t, registry.Register(product))

	tag := schema.NewModel("tag")
	tag.Fields["name"] = &schema.FieldAttribute{Type: schema.TypeString, Required: true}
	require.NoError(t, registry.Register(tag))

	review := schema.NewModel("review")
	review.Fields["productId"] = &schema.FieldAttribute{Type: schema.TypeString}
	require.NoError(t, registry.Register(review))

	return registry, memory.New(registry)
}

func seed(t *testing.T, a adapter.Adapter, model string, records ...adapter.Record) {
	t.Helper()
	for _, r := range records {
		_, err := a.Create(context.Background(), model, r)
		require.NoError(t, err)
	}
}

func TestResolver_SelfReferential(t *testing.T) {
	registry, store := newCatalog(t)
	seed(t, store, "category",
		adapter.Record{"id": "root", "name": "Root", "parentId": nil},
		adapter.Record{"id": "mid", "name": "Mid", "parentId": "root"},
		adapter.Record{"id": "leaf", "name": "Leaf", "parentId": "mid"},
		adapter.Record{"id": "b", "name": "B", "parentId": "root"},
	)
	r := NewResolver(store, registry)
	ctx := context.Background()

	t.Run("flat include attaches exactly one level", func(t *testing.T) {
		leaf, err := store.FindFirst(ctx, "category", []adapter.Where{adapter.Eq("id", "leaf")}, nil)
		require.NoError(t, err)

		out, err := r.Resolve(ctx, "category", leaf, adapter.NewInclude("parent"))
		require.NoError(t, err)

		parent, ok := out["parent"].(adapter.Record)
		require.True(t, ok)
		assert.Equal(t, "mid", parent["id"])
		assert.NotContains(t, parent, "parent")
		assert.NotContains(t, leaf, "parent", "input record must not be mutated")
	})

	t.Run("nested include recurses", func(t *testing.T) {
		leaf, _ := store.FindFirst(ctx, "category", []adapter.Where{adapter.Eq("id", "leaf")}, nil)
		out, err := r.Resolve(ctx, "category", leaf, adapter.NewInclude("parent.parent"))
		require.NoError(t, err)

		parent := out["parent"].(adapter.Record)
		grand := parent["parent"].(adapter.Record)
		assert.Equal(t, "root", grand["id"])
		assert.NotContains(t, grand, "parent")
	})

	t.Run("root has nil parent", func(t *testing.T) {
		root, _ := store.FindFirst(ctx, "category", []adapter.Where{adapter.Eq("id", "root")}, nil)
		out, err := r.Resolve(ctx, "category", root, adapter.NewInclude("parent"))
		require.NoError(t, err)
		assert.Contains(t, out, "parent")
		assert.Nil(t, out["parent"])
	})

	t.Run("children ordered and empty list for leaves", func(t *testing.T) {
		records, err := store.FindMany(ctx, "category", adapter.Query{
			Where: []adapter.Where{adapter.In("id", []interface{}{"root", "leaf"})},
		})
		require.NoError(t, err)

		out, err := r.ResolveMany(ctx, "category", records, adapter.NewInclude("children"))
		require.NoError(t, err)
		byID := map[interface{}]adapter.Record{}
		for _, rec := range out {
			byID[rec["id"]] = rec
		}

		children := byID["root"]["children"].([]adapter.Record)
		require.Len(t, children, 2)
		assert.Equal(t, "B", children[0]["name"])
		assert.Equal(t, "Mid", children[1]["name"])

		leafChildren := byID["leaf"]["children"].([]adapter.Record)
		assert.NotNil(t, leafChildren)
		assert.Empty(t, leafChildren)
	})

	t.Run("depth ceiling caps nesting", func(t *testing.T) {
		inc, err := adapter.ParseInclude(`{"parent":{"parent":true},"_depth":1}`)
		require.NoError(t, err)
		leaf, _ := store.FindFirst(ctx, "category", []adapter.Where{adapter.Eq("id", "leaf")}, nil)

		out, err := r.Resolve(ctx, "category", leaf, inc)
		require.NoError(t, err)
		parent := out["parent"].(adapter.Record)
		assert.NotContains(t, parent, "parent")
	})
}

func TestResolver_MaxDepthChain(t *testing.T) {
	registry := schema.NewRegistry()
	node := schema.NewModel("node")
	node.Fields["parentId"] = &schema.FieldAttribute{Type: schema.TypeString}
	node.Relationships["parent"] = &schema.Relationship{
		Type: schema.RelationshipBelongsTo, Target: "node", ForeignKey: "parentId", MaxDepth: 3,
	}
	require.NoError(t, registry.Register(node))
	store := memory.New(registry)
	seed(t, store, "node",
		adapter.Record{"id": "n0"},
		adapter.Record{"id": "n1", "parentId": "n0"},
		adapter.Record{"id": "n2", "parentId": "n1"},
		adapter.Record{"id": "n3", "parentId": "n2"},
		adapter.Record{"id": "n4", "parentId": "n3"},
	)

	r := NewResolver(store, registry)
	n4, _ := store.FindFirst(context.Background(), "node", []adapter.Where{adapter.Eq("id", "n4")}, nil)
	out, err := r.Resolve(context.Background(), "node", n4, adapter.NewInclude("parent"))
	require.NoError(t, err)

	depth := 0
	cur := out
	for {
		next, ok := cur["parent"].(adapter.Record)
		if !ok {
			break
		}
		depth++
		cur = next
	}
	assert.Equal(t, 3, depth)
	assert.Equal(t, "n1", cur["id"])
}

func TestResolver_BatchesAndRelations(t *testing.T) {
	registry, store := newCatalog(t)
	seed(t, store, "category", adapter.Record{"id": "c1", "name": "Tools"})
	seed(t, store, "tag",
		adapter.Record{"id": "t1", "name": "sale"},
		adapter.Record{"id": "t2", "name": "new"},
	)
	seed(t, store, "product",
		adapter.Record{"id": "p1", "name": "Hammer", "categoryId": "c1"},
		adapter.Record{"id": "p2", "name": "Saw", "categoryId": "c1"},
		adapter.Record{"id": "p3", "name": "Glue"},
	)
	seed(t, store, "review", adapter.Record{"id": "r1", "productId": "p1"})

	counting := &countingAdapter{Adapter: store}
	r := NewResolver(counting, registry)
	ctx := context.Background()
	require.NoError(t, r.ManageManyToMany(ctx, "product", "tags", "p1", Set, []interface{}{"t2", "t1"}))

	products, err := store.FindMany(ctx, "product", adapter.Query{OrderBy: []adapter.OrderBy{{Field: "id"}}})
	require.NoError(t, err)

	counting.finds = 0
	out, err := r.ResolveMany(ctx, "product", products, adapter.NewInclude("category", "tags", "review"))
	require.NoError(t, err)
	// category: 1, review: 1, tags: junction + targets
	assert.Equal(t, 4, counting.finds)

	assert.Equal(t, "Tools", out[0]["category"].(adapter.Record)["name"])
	assert.Nil(t, out[2]["category"])
	assert.Equal(t, "r1", out[0]["review"].(adapter.Record)["id"])
	assert.Nil(t, out[1]["review"])

	tags := out[0]["tags"].([]adapter.Record)
	require.Len(t, tags, 2)
	assert.Equal(t, "t2", tags[0]["id"], "junction order is kept")
	assert.Equal(t, "t1", tags[1]["id"])
	assert.Empty(t, out[1]["tags"])

	// attached records are distinct copies
	out[0]["category"].(adapter.Record)["name"] = "changed"
	assert.Equal(t, "Tools", out[1]["category"].(adapter.Record)["name"])
}

func TestResolver_UnknownRelationship(t *testing.T) {
	registry, store := newCatalog(t)
	r := NewResolver(store, registry)

	_, err := r.Resolve(context.Background(), "product", adapter.Record{"id": "p1"}, adapter.NewInclude("owner"))
	assert.ErrorIs(t, err, ErrUnknownRelationship)
}

func TestResolver_DefaultInclude(t *testing.T) {
	registry, store := newCatalog(t)
	r := NewResolver(store, registry)

	assert.Equal(t, []string{"category"}, r.DefaultInclude("product").Names())
	assert.Nil(t, r.DefaultInclude("tag"))
}

func TestManageManyToMany(t *testing.T) {
	registry, store := newCatalog(t)
	seed(t, store, "product", adapter.Record{"id": "p1", "name": "Hammer"})
	seed(t, store, "tag",
		adapter.Record{"id": "t1", "name": "a"},
		adapter.Record{"id": "t2", "name": "b"},
		adapter.Record{"id": "t3", "name": "c"},
	)
	r := NewResolver(store, registry)
	ctx := context.Background()

	linked := func() []string {
		out, err := r.Resolve(ctx, "product", adapter.Record{"id": "p1"}, adapter.NewInclude("tags"))
		require.NoError(t, err)
		var ids []string
		for _, tag := range out["tags"].([]adapter.Record) {
			ids = append(ids, tag["id"].(string))
		}
		return ids
	}

	require.NoError(t, r.ManageManyToMany(ctx, "product", "tags", "p1", Set, []interface{}{"t1", "t2", "t1"}))
	assert.Equal(t, []string{"t1", "t2"}, linked())

	// set is idempotent
	require.NoError(t, r.ManageManyToMany(ctx, "product", "tags", "p1", Set, []interface{}{"t1", "t2"}))
	n, err := store.Count(ctx, "product_tags", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, r.ManageManyToMany(ctx, "product", "tags", "p1", Add, []interface{}{"t2", "t3"}))
	assert.Equal(t, []string{"t1", "t2", "t3"}, linked())

	require.NoError(t, r.ManageManyToMany(ctx, "product", "tags", "p1", Remove, []interface{}{"t1"}))
	assert.Equal(t, []string{"t2", "t3"}, linked())

	err = r.ManageManyToMany(ctx, "product", "category", "p1", Set, nil)
	assert.ErrorIs(t, err, ErrInvalidRelationType)

	_, err = ParseManyToManyOp("replace")
	assert.ErrorIs(t, err, ErrInvalidOperation)
}
