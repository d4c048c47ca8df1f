package database

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"gorm.io/gorm"

	"github.com/camden-git/photovault/models"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// TimelineKey identifies one row of the merged timeline.
type TimelineKey struct {
	Kind     models.Kind
	ID       uint
	SortDate int64
}

// TimelineFilter narrows the merged timeline.
type TimelineFilter struct {
	Kinds         []models.Kind // empty means all kinds
	FavoritesOnly bool
	Limit         uint64
	Offset        uint64
}

// ListFilenames returns the set of catalogued filenames for one kind as a
// point-in-time snapshot.
func ListFilenames(ctx context.Context, db *gorm.DB, kind models.Kind) (map[string]struct{}, error) {
	table := kind.TableName()
	if table == "" {
		return nil, fmt.Errorf("unknown media kind %q", kind)
	}

	sqlStr, args, err := psql.Select("filename").From(table).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL query for ListFilenames: %w", err)
	}

	rows, err := db.WithContext(ctx).Raw(sqlStr, args...).Rows()
	if err != nil {
		return nil, fmt.Errorf("failed to list filenames for %s: %w", table, err)
	}
	defer rows.Close()

	names := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan filename from %s: %w", table, err)
		}
		names[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating filenames for %s: %w", table, err)
	}
	return names, nil
}

// timelineQuery builds a UNION ALL over the kind tables ordered by capture
// date, falling back to creation time.
func timelineQuery(filter TimelineFilter) (string, []interface{}, error) {
	kinds := filter.Kinds
	if len(kinds) == 0 {
		kinds = models.AllKinds
	}

	parts := make([]string, 0, len(kinds))
	var args []interface{}
	for _, kind := range kinds {
		table := kind.TableName()
		if table == "" {
			return "", nil, fmt.Errorf("unknown media kind %q", kind)
		}
		b := psql.Select(
			fmt.Sprintf("'%s' AS kind", kind),
			"id",
			"COALESCE(capture_date, created_at) AS sort_date",
		).From(table)
		if filter.FavoritesOnly {
			b = b.Where(sq.Eq{"is_favorite": true})
		}
		s, a, err := b.ToSql()
		if err != nil {
			return "", nil, fmt.Errorf("failed to build timeline part for %s: %w", table, err)
		}
		parts = append(parts, s)
		args = append(args, a...)
	}

	outer := psql.Select("kind", "id", "sort_date").
		From("("+strings.Join(parts, " UNION ALL ")+") AS timeline").
		OrderBy("sort_date DESC", "kind ASC", "id DESC")
	if filter.Limit > 0 {
		outer = outer.Limit(filter.Limit).Offset(filter.Offset)
	}

	s, a, err := outer.ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("failed to build timeline query: %w", err)
	}
	// the union arguments precede the outer ones (LIMIT/OFFSET are inlined)
	return s, append(args, a...), nil
}

// Timeline returns ordered (kind, id) keys across all kind tables.
func Timeline(ctx context.Context, db *gorm.DB, filter TimelineFilter) ([]TimelineKey, error) {
	sqlStr, args, err := timelineQuery(filter)
	if err != nil {
		return nil, err
	}

	rows, err := db.WithContext(ctx).Raw(sqlStr, args...).Rows()
	if err != nil {
		return nil, fmt.Errorf("failed to query timeline: %w", err)
	}
	defer rows.Close()

	var keys []TimelineKey
	for rows.Next() {
		var k TimelineKey
		var kind string
		if err := rows.Scan(&kind, &k.ID, &k.SortDate); err != nil {
			return nil, fmt.Errorf("failed to scan timeline row: %w", err)
		}
		k.Kind = models.Kind(kind)
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating timeline rows: %w", err)
	}
	return keys, nil
}
