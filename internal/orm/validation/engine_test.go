package validation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armelgeek/better-query/internal/orm/schema"
)

func productSchema() *schema.TypeSpec {
	return schema.Object(map[string]*schema.TypeSpec{
		"name":        schema.String().MinLen(1).MaxLen(20),
		"price":       schema.Number().Gte(0),
		"stock":       schema.Int().WithDefault(0),
		"status":      schema.String().OneOf("draft", "published").WithDefault("draft"),
		"email":       schema.String().Email().Optional(),
		"releasedAt":  schema.Date().Optional(),
		"tags":        schema.Array(schema.String()).Optional(),
		"description": schema.String().Nullable(),
	})
}

func TestEngine_ParseCreate(t *testing.T) {
	engine := NewEngine()

	out, err := engine.Parse(productSchema(), map[string]interface{}{
		"name":        "Widget",
		"price":       9.5,
		"releasedAt":  "2024-03-01T10:00:00Z",
		"tags":        []interface{}{"a", "b"},
		"description": nil,
		"unknown":     "dropped",
		"id":          "p1",
	}, ModeCreate)
	require.NoError(t, err)

	assert.Equal(t, "Widget", out["name"])
	assert.Equal(t, 0, out["stock"])
	assert.Equal(t, "draft", out["status"])
	assert.Equal(t, "p1", out["id"])
	assert.NotContains(t, out, "unknown")
	assert.NotContains(t, out, "email")
	assert.Nil(t, out["description"])

	released, ok := out["releasedAt"].(time.Time)
	require.True(t, ok)
	assert.True(t, released.Equal(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, []interface{}{"a", "b"}, out["tags"])
}

func TestEngine_ParseCreateAcceptsNativeDate(t *testing.T) {
	engine := NewEngine()
	now := time.Now()

	out, err := engine.Parse(productSchema(), map[string]interface{}{
		"name": "Widget", "price": 1, "releasedAt": now, "description": "x",
	}, ModeCreate)
	require.NoError(t, err)
	assert.Equal(t, now, out["releasedAt"])
	assert.Equal(t, float64(1), out["price"])
}

func TestEngine_ParseErrors(t *testing.T) {
	engine := NewEngine()

	tests := []struct {
		name  string
		data  map[string]interface{}
		field string
	}{
		{"missing required", map[string]interface{}{"price": 1, "description": "x"}, "name"},
		{"too long", map[string]interface{}{"name": "abcdefghijklmnopqrstuvwxyz", "price": 1, "description": "x"}, "name"},
		{"negative", map[string]interface{}{"name": "a", "price": -1, "description": "x"}, "price"},
		{"wrong type", map[string]interface{}{"name": "a", "price": "1", "description": "x"}, "price"},
		{"not integer", map[string]interface{}{"name": "a", "price": 1, "stock": 1.5, "description": "x"}, "stock"},
		{"bad enum", map[string]interface{}{"name": "a", "price": 1, "status": "gone", "description": "x"}, "status"},
		{"bad email", map[string]interface{}{"name": "a", "price": 1, "email": "nope", "description": "x"}, "email"},
		{"bad date", map[string]interface{}{"name": "a", "price": 1, "releasedAt": "yesterday", "description": "x"}, "releasedAt"},
		{"bad array element", map[string]interface{}{"name": "a", "price": 1, "tags": []interface{}{1}, "description": "x"}, "tags[0]"},
		{"null required", map[string]interface{}{"name": nil, "price": 1, "description": "x"}, "name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Parse(productSchema(), tt.data, ModeCreate)
			require.Error(t, err)

			var verr *ValidationErrors
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tt.field)
		})
	}
}

func TestEngine_ParseUpdateIsPartial(t *testing.T) {
	engine := NewEngine()

	out, err := engine.Parse(productSchema(), map[string]interface{}{"price": 3}, ModeUpdate)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"price": float64(3)}, out)

	_, err = engine.Parse(productSchema(), map[string]interface{}{"name": ""}, ModeUpdate)
	assert.Error(t, err)
}

func TestEngine_NestedObject(t *testing.T) {
	engine := NewEngine()
	spec := schema.Object(map[string]*schema.TypeSpec{
		"meta": schema.Object(map[string]*schema.TypeSpec{
			"color": schema.String(),
		}),
		"labels": schema.Record(schema.Number()),
	})

	_, err := engine.Parse(spec, map[string]interface{}{
		"meta":   map[string]interface{}{},
		"labels": map[string]interface{}{"a": 1},
	}, ModeCreate)

	var verr *ValidationErrors
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "meta.color")
	assert.Equal(t, 1, verr.Count())
}

func TestValidationErrors_Error(t *testing.T) {
	errs := NewValidationErrors()
	assert.Equal(t, "validation failed", errs.Error())

	errs.Add("name", "is required")
	assert.Equal(t, "validation failed: name: is required", errs.Error())

	errs.Add("price", "must be a number")
	assert.Contains(t, errs.Error(), "  - name: is required\n  - price: must be a number")
}
