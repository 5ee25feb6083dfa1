package relationships

import (
	"context"
	"fmt"
	"sort"

	"github.com/armelgeek/better-query/internal/orm/adapter"
	"github.com/armelgeek/better-query/internal/orm/schema"
)

// loadBelongsTo loads belongsTo relationships with one batched IN query
// Example: Product belongsTo Category
//   - Collect all unique categoryId values from products
//   - Single query: categories WHERE id IN (...)
//   - Map categories back to products
func (r *Resolver) loadBelongsTo(ctx context.Context, records []adapter.Record, rel *schema.Relationship) ([]adapter.Record, error) {
	ids := collectKeys(records, rel.ForeignKey)
	related := make(map[string]adapter.Record)
	if len(ids) > 0 {
		results, err := r.adapter.FindMany(ctx, rel.Target, adapter.Query{
			Where: []adapter.Where{adapter.In(rel.TargetKey, ids)},
		})
		if err != nil {
			return nil, err
		}
		for _, rec := range results {
			related[key(rec[rel.TargetKey])] = rec
		}
	}

	var attached []adapter.Record
	for _, record := range records {
		target, ok := related[key(record[rel.ForeignKey])]
		if !ok || record[rel.ForeignKey] == nil {
			record[rel.Name] = nil
			continue
		}
		cp := copyRecord(target)
		record[rel.Name] = cp
		attached = append(attached, cp)
	}
	return attached, nil
}

// loadHasOne attaches the first related record or nil
func (r *Resolver) loadHasOne(ctx context.Context, records []adapter.Record, rel *schema.Relationship) ([]adapter.Record, error) {
	groups, err := r.loadByForeignKey(ctx, records, rel)
	if err != nil {
		return nil, err
	}

	var attached []adapter.Record
	for _, record := range records {
		group := groups[key(record[rel.LocalKey])]
		if len(group) == 0 || record[rel.LocalKey] == nil {
			record[rel.Name] = nil
			continue
		}
		cp := copyRecord(group[0])
		record[rel.Name] = cp
		attached = append(attached, cp)
	}
	return attached, nil
}

// loadHasMany loads hasMany relationships with one batched IN query
// Example: Category hasMany Product
//   - Collect all category ids
//   - Single query: products WHERE categoryId IN (...)
//   - Group products by categoryId and attach, an empty list when none
func (r *Resolver) loadHasMany(ctx context.Context, records []adapter.Record, rel *schema.Relationship) ([]adapter.Record, error) {
	groups, err := r.loadByForeignKey(ctx, records, rel)
	if err != nil {
		return nil, err
	}

	var attached []adapter.Record
	for _, record := range records {
		var group []adapter.Record
		if record[rel.LocalKey] != nil {
			group = groups[key(record[rel.LocalKey])]
		}
		list := make([]adapter.Record, 0, len(group))
		for _, rec := range group {
			cp := copyRecord(rec)
			list = append(list, cp)
			attached = append(attached, cp)
		}
		record[rel.Name] = list
	}
	return attached, nil
}

// loadByForeignKey fetches the targets of a hasOne/hasMany relationship
// grouped by the foreign key value they carry
func (r *Resolver) loadByForeignKey(ctx context.Context, records []adapter.Record, rel *schema.Relationship) (map[string][]adapter.Record, error) {
	groups := make(map[string][]adapter.Record)
	ids := collectKeys(records, rel.LocalKey)
	if len(ids) == 0 {
		return groups, nil
	}

	results, err := r.adapter.FindMany(ctx, rel.Target, adapter.Query{
		Where:   []adapter.Where{adapter.In(rel.ForeignKey, ids)},
		OrderBy: orderBy(rel),
	})
	if err != nil {
		return nil, err
	}
	for _, rec := range results {
		k := key(rec[rel.ForeignKey])
		groups[k] = append(groups[k], rec)
	}
	return groups, nil
}

// loadBelongsToMany loads many-to-many relationships through the junction table
// Example: Product belongsToMany Tag through product_tags
//   - Query 1: product_tags WHERE productId IN (product ids)
//   - Query 2: tags WHERE id IN (collected tagId values)
//   - Attach tags per product in junction order
func (r *Resolver) loadBelongsToMany(ctx context.Context, records []adapter.Record, rel *schema.Relationship) ([]adapter.Record, error) {
	sourceIDs := collectKeys(records, "id")
	links := make(map[string][]string)
	related := make(map[string]adapter.Record)
	position := make(map[string]int)

	if len(sourceIDs) > 0 {
		rows, err := r.adapter.FindMany(ctx, rel.Through, adapter.Query{
			Where: []adapter.Where{adapter.In(rel.LocalKey, sourceIDs)},
		})
		if err != nil {
			return nil, err
		}

		var targetIDs []interface{}
		seen := make(map[string]bool)
		for _, row := range rows {
			if row[rel.TargetKey] == nil {
				continue
			}
			source, target := key(row[rel.LocalKey]), key(row[rel.TargetKey])
			links[source] = append(links[source], target)
			if !seen[target] {
				seen[target] = true
				targetIDs = append(targetIDs, row[rel.TargetKey])
			}
		}

		if len(targetIDs) > 0 {
			targets, err := r.adapter.FindMany(ctx, rel.Target, adapter.Query{
				Where:   []adapter.Where{adapter.In("id", targetIDs)},
				OrderBy: orderBy(rel),
			})
			if err != nil {
				return nil, err
			}
			for i, rec := range targets {
				k := key(rec["id"])
				related[k] = rec
				position[k] = i
			}
		}
	}

	var attached []adapter.Record
	for _, record := range records {
		var targets []string
		if record["id"] != nil {
			targets = links[key(record["id"])]
		}
		if rel.OrderBy != "" {
			targets = append([]string(nil), targets...)
			sort.SliceStable(targets, func(i, j int) bool {
				return position[targets[i]] < position[targets[j]]
			})
		}

		list := make([]adapter.Record, 0, len(targets))
		for _, id := range targets {
			rec, ok := related[id]
			if !ok {
				continue
			}
			cp := copyRecord(rec)
			list = append(list, cp)
			attached = append(attached, cp)
		}
		record[rel.Name] = list
	}
	return attached, nil
}

// collectKeys returns the distinct non-nil values of field across records
func collectKeys(records []adapter.Record, field string) []interface{} {
	var ids []interface{}
	seen := make(map[string]bool)
	for _, record := range records {
		v := record[field]
		if v == nil {
			continue
		}
		k := key(v)
		if seen[k] {
			continue
		}
		seen[k] = true
		ids = append(ids, v)
	}
	return ids
}

func orderBy(rel *schema.Relationship) []adapter.OrderBy {
	if rel.OrderBy == "" {
		return nil
	}
	return []adapter.OrderBy{{Field: rel.OrderBy}}
}

// key normalizes a key value for map lookups across driver representations
func key(v interface{}) string {
	return fmt.Sprint(v)
}
