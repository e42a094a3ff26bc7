// README: Booking store backed by PostgreSQL (read model + carpool linkage writes).
package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"carpool/internal/types"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx so the same store runs inside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	db DBTX
}

func NewStore(db DBTX) *Store {
	return &Store{db: db}
}

func (s *Store) Get(ctx context.Context, id int64) (*Booking, error) {
	row := s.db.QueryRow(ctx, `
        SELECT id, requester_id, start_at, end_at, passenger_count, status, group_id
        FROM bookings
        WHERE id = $1`, id,
	)
	b, err := scanBooking(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get booking %d: %w", id, err)
	}
	segs, err := s.segments(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	b.Segments = segs[id]
	return b, nil
}

// GetForUpdate row-locks the booking inside a transaction; segments are not loaded.
func (s *Store) GetForUpdate(ctx context.Context, id int64) (*Booking, error) {
	row := s.db.QueryRow(ctx, `
        SELECT id, requester_id, start_at, end_at, passenger_count, status, group_id
        FROM bookings
        WHERE id = $1
        FOR UPDATE`, id,
	)
	b, err := scanBooking(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock booking %d: %w", id, err)
	}
	return b, nil
}

func (s *Store) ListMatchable(ctx context.Context, f Filter) ([]*Booking, error) {
	statuses := make([]string, len(f.Statuses))
	for i, st := range f.Statuses {
		statuses[i] = string(st)
	}
	rows, err := s.db.Query(ctx, `
        SELECT id, requester_id, start_at, end_at, passenger_count, status, group_id
        FROM bookings
        WHERE status = ANY($1)
          AND start_at BETWEEN $2 AND $3
          AND group_id IS NULL
          AND id <> $4
          AND ($5 = '' OR requester_id <> $5)
        ORDER BY start_at ASC, id ASC`,
		statuses, f.StartFrom, f.StartTo, f.ExcludeBookingID, f.ExcludeRequesterID,
	)
	if err != nil {
		return nil, fmt.Errorf("list matchable bookings: %w", err)
	}
	defer rows.Close()

	var out []*Booking
	var ids []int64
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		out = append(out, b)
		ids = append(ids, b.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}

	segs, err := s.segments(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, b := range out {
		b.Segments = segs[b.ID]
	}
	return out, nil
}

// SetCarpoolState writes the booking status and group linkage; a nil groupID clears it.
func (s *Store) SetCarpoolState(ctx context.Context, id int64, status Status, groupID *int64) error {
	tag, err := s.db.Exec(ctx, `
        UPDATE bookings
        SET status = $1,
            group_id = $2,
            updated_at = NOW()
        WHERE id = $3`,
		string(status), groupID, id,
	)
	if err != nil {
		return fmt.Errorf("update booking %d: %w", id, err)
	}
	if tag.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) segments(ctx context.Context, ids []int64) (map[int64][]Segment, error) {
	rows, err := s.db.Query(ctx, `
        SELECT id, booking_id, seq, from_text, to_text,
               from_lat, from_lng, to_lat, to_lng,
               route_path, validated, distance_km, duration_min
        FROM booking_segments
        WHERE booking_id = ANY($1)
        ORDER BY booking_id ASC, seq ASC`, ids,
	)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]Segment, len(ids))
	for rows.Next() {
		var seg Segment
		var fromLat, fromLng, toLat, toLng *float64
		var path *string
		if err := rows.Scan(
			&seg.ID, &seg.BookingID, &seg.Seq, &seg.FromText, &seg.ToText,
			&fromLat, &fromLng, &toLat, &toLng,
			&path, &seg.Validated, &seg.DistanceKm, &seg.DurationMin,
		); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		seg.From = toPoint(fromLat, fromLng)
		seg.To = toPoint(toLat, toLng)
		if path != nil {
			seg.RoutePath = *path
		}
		out[seg.BookingID] = append(out[seg.BookingID], seg)
	}
	return out, rows.Err()
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	var status string
	if err := row.Scan(&b.ID, &b.RequesterID, &b.StartAt, &b.EndAt, &b.PassengerCount, &status, &b.GroupID); err != nil {
		return nil, err
	}
	b.Status = Status(status)
	return &b, nil
}

func toPoint(lat, lng *float64) *types.Point {
	if lat == nil || lng == nil {
		return nil
	}
	return &types.Point{Lat: *lat, Lng: *lng}
}
