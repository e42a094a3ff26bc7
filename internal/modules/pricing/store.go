// README: Cost variable registry backed by PostgreSQL.
package pricing

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// ActiveVariables returns the active cost variables keyed by code.
func (s *Store) ActiveVariables(ctx context.Context) (map[string]float64, error) {
	rows, err := s.db.Query(ctx, `
        SELECT code, value
        FROM cost_variables
        WHERE active = TRUE`)
	if err != nil {
		return nil, fmt.Errorf("query cost variables: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var code string
		var value float64
		if err := rows.Scan(&code, &value); err != nil {
			return nil, fmt.Errorf("scan cost variable: %w", err)
		}
		out[code] = value
	}
	return out, rows.Err()
}
