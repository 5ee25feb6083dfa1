package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armelgeek/better-query/internal/orm/adapter"
	"github.com/armelgeek/better-query/internal/orm/schema"
)

func TestAdapter_CRUD(t *testing.T) {
	a := New(nil)
	ctx := context.Background()

	created, err := a.Create(ctx, "post", adapter.Record{"id": "1", "title": "Hello", "views": 3})
	require.NoError(t, err)
	assert.Equal(t, "Hello", created["title"])

	// returned records are copies
	created["title"] = "mutated"
	found, err := a.FindFirst(ctx, "post", []adapter.Where{adapter.Eq("id", "1")}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello", found["title"])

	updated, err := a.Update(ctx, "post", []adapter.Where{adapter.Eq("id", "1")}, adapter.Record{"views": 4})
	require.NoError(t, err)
	assert.Equal(t, 4, updated["views"])
	assert.Equal(t, "Hello", updated["title"])

	none, err := a.Update(ctx, "post", []adapter.Where{adapter.Eq("id", "2")}, adapter.Record{"views": 1})
	require.NoError(t, err)
	assert.Nil(t, none)

	require.NoError(t, a.Delete(ctx, "post", []adapter.Where{adapter.Eq("id", "1")}))
	n, err := a.Count(ctx, "post", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAdapter_FindMany(t *testing.T) {
	a := New(nil)
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		_, err := a.Create(ctx, "item", adapter.Record{"id": fmt.Sprint(i), "rank": float64(i % 3)})
		require.NoError(t, err)
	}

	records, err := a.FindMany(ctx, "item", adapter.Query{
		OrderBy: []adapter.OrderBy{{Field: "rank", Desc: true}, {Field: "id"}},
		Offset:  1,
		Limit:   3,
		Select:  []string{"id"},
	})
	require.NoError(t, err)

	ids := make([]interface{}, 0, len(records))
	for _, r := range records {
		ids = append(ids, r["id"])
		assert.Len(t, r, 1)
	}
	// rank 2: 2,5; rank 1: 1,4; rank 0: 3
	assert.Equal(t, []interface{}{"5", "1", "4"}, ids)

	records, err = a.FindMany(ctx, "item", adapter.Query{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestAdapter_UniqueAndReferences(t *testing.T) {
	registry := schema.NewRegistry()
	user := schema.NewModel("user")
	user.Fields["email"] = &schema.FieldAttribute{Type: schema.TypeString, Unique: true}
	require.NoError(t, registry.Register(user))
	post := schema.NewModel("post")
	post.Fields["authorId"] = &schema.FieldAttribute{Type: schema.TypeString, References: &schema.Reference{Model: "user", Field: "id"}}
	require.NoError(t, registry.Register(post))

	a := New(registry)
	ctx := context.Background()

	_, err := a.Create(ctx, "user", adapter.Record{"id": "u1", "email": "a@example.com"})
	require.NoError(t, err)
	_, err = a.Create(ctx, "user", adapter.Record{"id": "u2", "email": "a@example.com"})
	assert.ErrorIs(t, err, adapter.ErrUniqueViolation)
	_, err = a.Create(ctx, "user", adapter.Record{"id": "u1"})
	assert.ErrorIs(t, err, adapter.ErrUniqueViolation)

	assert.NoError(t, a.ValidateReferences(ctx, "post", adapter.Record{"authorId": "u1"}))
	assert.ErrorIs(t, a.ValidateReferences(ctx, "post", adapter.Record{"authorId": "ghost"}), adapter.ErrForeignKeyViolation)
}

func TestAdapter_ConcurrentWrites(t *testing.T) {
	a := New(nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = a.Create(ctx, "hit", adapter.Record{"id": fmt.Sprint(i)})
			_, _ = a.Count(ctx, "hit", nil)
		}(i)
	}
	wg.Wait()

	n, err := a.Count(ctx, "hit", nil)
	require.NoError(t, err)
	assert.Equal(t, 50, n)
}
