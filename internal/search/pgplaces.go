package search

import (
	"context"
	"database/sql"
	"fmt"
)

// PgPlaces is the Postgres fallback searcher: a plain ILIKE scan over the
// places table. Always healthy; quality is worse than the index but the
// endpoint keeps working when Meilisearch is down.
type PgPlaces struct {
	db *sql.DB
}

func NewPgPlaces(db *sql.DB) *PgPlaces {
	return &PgPlaces{db: db}
}

func (p *PgPlaces) Healthy() bool { return true }

func (p *PgPlaces) Search(q Query) ([]Result, int, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}

	rows, err := p.db.QueryContext(context.Background(), `
		SELECT id, name, latitude, longitude, COALESCE(address, ''), COALESCE(provider, ''), COALESCE(external_id, '')
		FROM places
		WHERE name ILIKE '%' || $1 || '%' OR COALESCE(address, '') ILIKE '%' || $1 || '%'
		ORDER BY name ASC, id ASC
		LIMIT $2
	`, q.Text, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("pg place search: %w", err)
	}
	defer rows.Close()

	results := make([]Result, 0)
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Name, &r.Latitude, &r.Longitude, &r.Address, &r.Provider, &r.ExternalID); err != nil {
			return nil, 0, fmt.Errorf("scan place result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate place results: %w", err)
	}
	return results, len(results), nil
}
