package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/cnyre/internal/canon"
)

// hashedTables lists the domain tables in digest order with their natural
// key ordering. Operational tables (pipeline_runs, rejected_records) are
// excluded: they record that a run happened, not what it produced.
var hashedTables = []struct {
	name    string
	orderBy string
}{
	{"municipality_assessment_ratios", "municipality_code COLLATE BINARY, rate_year"},
	{"properties", "id COLLATE BINARY"},
	{"ny_property_assessments", "property_id COLLATE BINARY, roll_year"},
	{"property_trends", "property_id COLLATE BINARY, roll_year"},
	{"property_trend_summaries", "property_id COLLATE BINARY"},
}

// ContentHash digests every domain table in key order.
//
// Each row is encoded as canonical JSON keyed by column name, so the hash
// depends on values only and not on column order or physical layout. Two
// stores that hold the same data produce the same hash.
func (s *Store) ContentHash(ctx context.Context) (string, error) {
	h := canon.NewHasher(canon.DomainStore)
	for _, t := range hashedTables {
		h.Section(t.name)
		if err := s.hashTable(ctx, h, t.name, t.orderBy); err != nil {
			return "", fmt.Errorf("content hash: %w", err)
		}
	}
	return h.Sum(), nil
}

func (s *Store) hashTable(ctx context.Context, h *canon.Hasher, table, orderBy string) error {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s ORDER BY %s", table, orderBy))
	if err != nil {
		return fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("columns of %s: %w", table, err)
	}

	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("scan %s: %w", table, err)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[strings.ToLower(col)] = values[i]
		}
		if err := h.Row(row); err != nil {
			return fmt.Errorf("%s: %w", table, err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate %s: %w", table, err)
	}
	return nil
}

// TableCounts returns the row count of every domain table.
func (s *Store) TableCounts(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64, len(hashedTables))
	for _, t := range hashedTables {
		var n int64
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+t.name).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", t.name, err)
		}
		counts[t.name] = n
	}
	return counts, nil
}
