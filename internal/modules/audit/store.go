// README: Audit store backed by PostgreSQL (insert + list only).
package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, e Entry) error {
	oldValue, err := marshalOptional(e.OldValue)
	if err != nil {
		return err
	}
	newValue, err := marshalOptional(e.NewValue)
	if err != nil {
		return err
	}
	metadata, err := marshalOptional(e.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
        INSERT INTO carpool_audit_logs (
            group_id, host_booking_id, joiner_booking_id, action_type,
            actor_id, old_value, new_value, metadata, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.GroupID, e.HostBookingID, e.JoinerBookingID, string(e.Action),
		e.ActorID, oldValue, newValue, metadata, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

func (s *Store) ListByGroup(ctx context.Context, groupID int64) ([]Entry, error) {
	rows, err := s.db.Query(ctx, `
        SELECT id, group_id, host_booking_id, joiner_booking_id, action_type,
               actor_id, old_value, new_value, metadata, created_at
        FROM carpool_audit_logs
        WHERE group_id = $1
        ORDER BY created_at DESC, id DESC`, groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var action string
		var oldValue, newValue, metadata []byte
		if err := rows.Scan(
			&e.ID, &e.GroupID, &e.HostBookingID, &e.JoinerBookingID, &action,
			&e.ActorID, &oldValue, &newValue, &metadata, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		e.Action = Action(action)
		e.OldValue = rawOrNil(oldValue)
		e.NewValue = rawOrNil(newValue)
		e.Metadata = rawOrNil(metadata)
		out = append(out, e)
	}
	return out, rows.Err()
}

func marshalOptional(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal audit value: %w", err)
	}
	return b, nil
}

func rawOrNil(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return json.RawMessage(b)
}
