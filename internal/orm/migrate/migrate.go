// Package migrate creates storage for registered models at startup
package migrate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/goccy/go-json"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/armelgeek/better-query/internal/orm/adapter"
	"github.com/armelgeek/better-query/internal/orm/schema"
)

// Result reports what AutoMigrate did
type Result struct {
	// Order is the creation order of every model
	Order []string
	// Created lists models whose storage was created or confirmed
	Created []string
	// Drifted lists models whose definition changed since they were recorded.
	// Existing tables are never altered.
	Drifted []string
	// Err accumulates every failure; migration continues past each one
	Err error
}

// Options configures AutoMigrate
type Options struct {
	// History records applied model fingerprints; nil disables drift detection
	History *History
	Logger  *zap.Logger
}

// Plan returns the models of registry with dependencies first. A cyclic
// graph falls back to name order together with the cycle error.
func Plan(registry *schema.Registry) ([]*schema.Model, error) {
	order, err := registry.GetDependencyOrder()
	if err != nil {
		order = registry.List()
		sort.Strings(order)
	}
	models := make([]*schema.Model, 0, len(order))
	for _, name := range order {
		if m, ok := registry.Get(name); ok {
			models = append(models, m)
		}
	}
	return models, err
}

// AutoMigrate creates storage for every registered model when the adapter
// implements adapter.SchemaCreator. Failures are logged and returned in
// Result.Err; they never stop the remaining models.
func AutoMigrate(ctx context.Context, registry *schema.Registry, a adapter.Adapter, opts Options) *Result {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("migrate")
	res := &Result{}

	creator, ok := a.(adapter.SchemaCreator)
	if !ok {
		logger.Debug("adapter does not create schemas, skipping migration")
		return res
	}

	models, err := Plan(registry)
	if err != nil {
		logger.Warn("relationship graph has cycles, using name order", zap.Error(err))
	}
	for _, m := range models {
		res.Order = append(res.Order, m.Name)
	}

	var recorded map[string]string
	if opts.History != nil {
		if err := opts.History.Init(ctx); err != nil {
			res.Err = multierr.Append(res.Err, err)
			logger.Error("schema history unavailable", zap.Error(err))
		} else if recorded, err = opts.History.Applied(ctx); err != nil {
			res.Err = multierr.Append(res.Err, err)
			logger.Error("failed to read schema history", zap.Error(err))
		}
	}

	for _, m := range models {
		sum, err := Fingerprint(m)
		if err != nil {
			res.Err = multierr.Append(res.Err, err)
			continue
		}
		if prev, ok := recorded[m.Name]; ok {
			if prev != sum {
				res.Drifted = append(res.Drifted, m.Name)
				logger.Warn("model changed since its table was created; existing columns are not altered",
					zap.String("model", m.Name))
			} else {
				res.Created = append(res.Created, m.Name)
			}
			continue
		}

		if err := creator.CreateSchema(ctx, []*schema.Model{m}); err != nil {
			res.Err = multierr.Append(res.Err, err)
			logger.Error("failed to create schema", zap.String("model", m.Name), zap.Error(err))
			continue
		}
		res.Created = append(res.Created, m.Name)
		if opts.History != nil {
			if err := opts.History.Record(ctx, m.Name, sum); err != nil {
				res.Err = multierr.Append(res.Err, err)
				logger.Error("failed to record schema", zap.String("model", m.Name), zap.Error(err))
			}
		}
	}

	logger.Info("migration finished",
		zap.Int("models", len(models)),
		zap.Int("drifted", len(res.Drifted)),
		zap.Int("errors", len(multierr.Errors(res.Err))))
	return res
}

type fingerprintField struct {
	Type       schema.FieldType  `json:"type"`
	Required   bool              `json:"required"`
	Unique     bool              `json:"unique"`
	Default    interface{}       `json:"default,omitempty"`
	MaxLength  *int              `json:"maxLength,omitempty"`
	References *schema.Reference `json:"references,omitempty"`
}

// Fingerprint hashes the storage-relevant definition of a model
func Fingerprint(m *schema.Model) (string, error) {
	fields := make(map[string]fingerprintField, len(m.Fields))
	for name, f := range m.Fields {
		fields[name] = fingerprintField{
			Type:       f.Type,
			Required:   f.Required,
			Unique:     f.Unique,
			Default:    f.Default,
			MaxLength:  f.MaxLength,
			References: f.References,
		}
	}
	data, err := json.Marshal(struct {
		Table  string                      `json:"table"`
		Fields map[string]fingerprintField `json:"fields"`
	}{m.Table, fields})
	if err != nil {
		return "", fmt.Errorf("model %s: fingerprint: %w", m.Name, err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
