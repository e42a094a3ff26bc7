// README: Settings service resolves effective carpool parameters, degrading to defaults.
package settings

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"carpool/internal/config"
)

const (
	keyPrefix                 = "carpool."
	keyTimeWindowMinutes      = "carpool.time_window_minutes"
	keySimilarityThreshold    = "carpool.route_similarity_threshold"
	keyMaxDetourPercentage    = "carpool.max_detour_percentage"
	keyInviteExpiryMinutes    = "carpool.default_invite_expiry_minutes"
	keyMaxVehicleSeatCapacity = "carpool.max_vehicle_seat_capacity"
)

// ParameterSource is the external versioned parameter store.
type ParameterSource interface {
	LatestPublished(ctx context.Context, prefix string) (map[string]string, error)
}

type Service struct {
	source   ParameterSource
	defaults config.CarpoolConfig
	log      *zap.Logger
}

func NewService(source ParameterSource, defaults config.CarpoolConfig, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{source: source, defaults: defaults, log: log}
}

// Carpool returns the effective parameters. It never fails: a missing source, a read
// error or an unparsable value falls back to the defaults field by field.
func (s *Service) Carpool(ctx context.Context) config.CarpoolConfig {
	cfg := s.defaults
	if s.source == nil {
		return cfg
	}
	values, err := s.source.LatestPublished(ctx, keyPrefix)
	if err != nil {
		s.log.Warn("carpool settings unavailable, using defaults", zap.Error(err))
		return cfg
	}

	cfg.TimeWindowMinutes = s.intValue(values, keyTimeWindowMinutes, cfg.TimeWindowMinutes)
	cfg.RouteSimilarityThreshold = s.floatValue(values, keySimilarityThreshold, cfg.RouteSimilarityThreshold)
	cfg.MaxDetourPercentage = s.floatValue(values, keyMaxDetourPercentage, cfg.MaxDetourPercentage)
	cfg.DefaultInviteExpiryMinutes = s.intValue(values, keyInviteExpiryMinutes, cfg.DefaultInviteExpiryMinutes)
	cfg.MaxVehicleSeatCapacity = s.intValue(values, keyMaxVehicleSeatCapacity, cfg.MaxVehicleSeatCapacity)
	return cfg
}

func (s *Service) intValue(values map[string]string, key string, def int) int {
	raw, ok := values[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		s.log.Warn("ignoring invalid carpool parameter", zap.String("key", key), zap.String("value", raw))
		return def
	}
	return n
}

func (s *Service) floatValue(values map[string]string, key string, def float64) float64 {
	raw, ok := values[key]
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || f < 0 {
		s.log.Warn("ignoring invalid carpool parameter", zap.String("key", key), zap.String("value", raw))
		return def
	}
	return f
}
