// Package quota enforces the daily per-identity parse limits.
package quota

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/use-agent/adsaver/config"
	"github.com/use-agent/adsaver/models"
	"github.com/use-agent/adsaver/store"
)

// counterTTL keeps a day's counter a little past midnight in every timezone.
const counterTTL = 48 * time.Hour

// UserPrefix marks identities of signed-in users; everything else is a guest.
const UserPrefix = "user:"

// Service counts successful parses per identity and UTC day.
type Service struct {
	store store.Store
	cfg   config.QuotaConfig
	now   func() time.Time
}

// New creates a Service.
func New(s store.Store, cfg config.QuotaConfig) *Service {
	return &Service{store: s, cfg: cfg, now: time.Now}
}

// Limit returns the daily limit for identity.
func (s *Service) Limit(identity string) int {
	if IsUser(identity) {
		return s.cfg.UserDaily
	}
	return s.cfg.GuestDaily
}

// IsUser reports whether identity belongs to a signed-in user.
func IsUser(identity string) bool {
	return strings.HasPrefix(identity, UserPrefix)
}

func (s *Service) key(identity string) string {
	return fmt.Sprintf("%s%s:%s", s.cfg.KeyPrefix, identity, s.now().UTC().Format(time.DateOnly))
}

// Stats returns today's count, the limit and what remains.
func (s *Service) Stats(ctx context.Context, identity string) (models.UsageResponse, error) {
	n, err := s.store.Count(ctx, s.key(identity))
	if err != nil {
		return models.UsageResponse{}, err
	}
	limit := s.Limit(identity)
	return models.UsageResponse{
		Count:     int(n),
		Limit:     limit,
		Remaining: max(limit-int(n), 0),
	}, nil
}

// Check returns a QUOTA_EXCEEDED error when identity has no parses left
// today.
func (s *Service) Check(ctx context.Context, identity string) error {
	st, err := s.Stats(ctx, identity)
	if err != nil {
		return err
	}
	if st.Remaining > 0 {
		return nil
	}
	return s.exceeded(identity)
}

// Reserve takes one parse from identity's allowance before the work starts,
// so concurrent requests cannot overshoot the limit. It returns
// QUOTA_EXCEEDED when nothing is left. On success the returned refund gives
// the parse back; call it when the work fails.
func (s *Service) Reserve(ctx context.Context, identity string) (refund func(context.Context), err error) {
	key := s.key(identity)
	n, err := s.store.Incr(ctx, key, counterTTL)
	if err != nil {
		return nil, err
	}
	refund = func(ctx context.Context) {
		if _, err := s.store.Decr(ctx, key); err != nil {
			slog.Warn("refunding quota failed", "identity", identity, "error", err)
		}
	}
	if n > int64(s.Limit(identity)) {
		refund(ctx)
		return nil, s.exceeded(identity)
	}
	return refund, nil
}

func (s *Service) exceeded(identity string) error {
	msg := models.MsgQuotaGuest
	if IsUser(identity) {
		msg = models.MsgQuotaUser
	}
	return models.NewAdError(models.ErrCodeQuotaExceeded, msg, nil)
}

// Consume records one successful parse.
func (s *Service) Consume(ctx context.Context, identity string) error {
	_, err := s.store.Incr(ctx, s.key(identity), counterTTL)
	return err
}
