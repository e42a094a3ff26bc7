// README: Audit service records carpool actions best-effort; failures never reach the caller.
package audit

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
)

// writeTimeout bounds how long an audit write may hold up the request that produced it.
const writeTimeout = 2 * time.Second

// Sink is the durable append-only backend.
type Sink interface {
	Append(ctx context.Context, e Entry) error
	ListByGroup(ctx context.Context, groupID int64) ([]Entry, error)
}

type Service struct {
	sink    Sink
	log     *zap.Logger
	now     func() time.Time
	timeout time.Duration
}

func NewService(sink Sink, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{sink: sink, log: log, now: time.Now, timeout: writeTimeout}
}

// LogAction appends e synchronously so the entry is readable once the action returns.
// The write is detached from the caller's cancellation and bounded by the write timeout;
// errors are logged and dropped.
func (s *Service) LogAction(ctx context.Context, e Entry) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("audit sink panicked", zap.String("action", string(e.Action)), zap.Any("panic", r))
		}
	}()
	if err := s.sink.Append(ctx, e); err != nil {
		s.log.Warn("audit write failed",
			zap.String("action", string(e.Action)),
			zap.Int64p("group_id", e.GroupID),
			zap.String("actor_id", e.ActorID),
			zap.Error(err),
		)
	}
}

// GetAuditLogs returns the group's entries newest first, or an empty slice on failure.
func (s *Service) GetAuditLogs(ctx context.Context, groupID int64) []Entry {
	entries, err := s.sink.ListByGroup(ctx, groupID)
	if err != nil {
		s.log.Warn("audit read failed", zap.Int64("group_id", groupID), zap.Error(err))
		return []Entry{}
	}
	if entries == nil {
		return []Entry{}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	return entries
}

// Int64 returns a pointer to v, for the optional id fields.
func Int64(v int64) *int64 {
	return &v
}
