// README: Settings store reading the latest published parameter version from PostgreSQL.
package settings

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

// LatestPublished returns key/value pairs under prefix from the newest PUBLISHED version.
// An empty map means nothing has been published yet.
func (s *Store) LatestPublished(ctx context.Context, prefix string) (map[string]string, error) {
	rows, err := s.db.Query(ctx, `
        SELECT v.key, v.value
        FROM parameter_values v
        WHERE v.version_id = (
            SELECT id FROM parameter_versions
            WHERE status = 'PUBLISHED'
            ORDER BY version DESC
            LIMIT 1
        )
          AND v.key LIKE $1 || '%'`, prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("query parameters: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan parameter: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}
