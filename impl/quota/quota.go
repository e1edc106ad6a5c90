package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"larder/entity"
	"larder/internal/metrics"
	"larder/lib/clock"
	"larder/lib/sl"
)

const (
	callerKnown     = "known"
	callerAnonymous = "anonymous"
)

type Database interface {
	GetQuota(ctx context.Context, userID, monthKey string) (*entity.OcrQuota, error)
	CreateQuota(ctx context.Context, quota *entity.OcrQuota) error
	IncrementQuota(ctx context.Context, quota *entity.OcrQuota) error
}

type Recognizer interface {
	Recognize(ctx context.Context, imageBase64 string, mode entity.OcrMode) (*entity.OcrResult, error)
}

type Config struct {
	MonthlyLimit    int
	AnonymousPolicy entity.AnonymousPolicy
	AnonymousLimit  int
	AnonymousWindow time.Duration
}

// Service meters OCR calls per user and month and forwards them upstream.
// A charge is taken before the upstream call and is not refunded if the
// provider fails.
type Service struct {
	db      Database
	ocr     Recognizer
	conf    Config
	limiter *windowLimiter
	now     func() time.Time
	metrics *metrics.Metrics
	log     *slog.Logger
}

func New(db Database, ocr Recognizer, conf Config, m *metrics.Metrics, log *slog.Logger) *Service {
	s := &Service{
		db:      db,
		ocr:     ocr,
		conf:    conf,
		now:     time.Now,
		metrics: m,
		log:     log.With(sl.Module("impl.quota")),
	}
	if conf.AnonymousPolicy == "" {
		s.conf.AnonymousPolicy = entity.AnonymousAllow
	}
	if conf.AnonymousPolicy == entity.AnonymousLimit {
		s.limiter = newWindowLimiter(conf.AnonymousLimit, conf.AnonymousWindow)
	}
	return s
}

func (s *Service) Recognize(ctx context.Context, caller entity.CallerIdentity, req *entity.OcrRequest) (*entity.OcrResult, error) {
	if req == nil || req.ImageBase64 == "" {
		return nil, fmt.Errorf("%w: imageBase64 required", entity.ErrValidation)
	}

	kind, err := s.admit(ctx, caller)
	if err != nil {
		s.metrics.OcrCall(kind, metrics.ResultRejected)
		return nil, err
	}

	result, err := s.ocr.Recognize(ctx, req.ImageBase64, req.Mode.Normalize())
	if err != nil {
		s.metrics.OcrCall(kind, metrics.ResultError)
		return nil, err
	}
	s.metrics.OcrCall(kind, metrics.ResultOk)
	return result, nil
}

// admit applies the caller's policy: known users are charged against their
// monthly quota, anonymous callers follow the configured anonymous policy.
func (s *Service) admit(ctx context.Context, caller entity.CallerIdentity) (string, error) {
	switch c := caller.(type) {
	case entity.KnownCaller:
		if c.User == nil {
			return callerKnown, fmt.Errorf("%w: empty user", entity.ErrUnauthorized)
		}
		return callerKnown, s.charge(ctx, c.User.ID)
	case entity.AnonymousCaller:
		return callerAnonymous, s.admitAnonymous(c)
	default:
		return callerAnonymous, fmt.Errorf("%w: unknown caller %T", entity.ErrUnauthorized, caller)
	}
}

func (s *Service) admitAnonymous(c entity.AnonymousCaller) error {
	switch s.conf.AnonymousPolicy {
	case entity.AnonymousAllow:
		return nil
	case entity.AnonymousLimit:
		key := c.IP
		if key == "" {
			key = "unknown"
		}
		if !s.limiter.Allow(key) {
			s.log.Info("anonymous ocr rate limited", slog.String("ip", c.IP))
			return entity.ErrRateLimited
		}
		return nil
	default:
		return fmt.Errorf("%w: %s", entity.ErrUnauthorized, c.Reason)
	}
}

func (s *Service) charge(ctx context.Context, userID string) error {
	monthKey := clock.MonthKey(s.now())
	log := s.log.With(slog.String("user", userID), slog.String("month", monthKey))

	q, err := s.db.GetQuota(ctx, userID, monthKey)
	if err != nil {
		return fmt.Errorf("get quota: %w", err)
	}
	if q == nil {
		q = &entity.OcrQuota{
			UserID:   userID,
			MonthKey: monthKey,
			Used:     0,
			Limit:    s.conf.MonthlyLimit,
		}
		if err = s.db.CreateQuota(ctx, q); err != nil {
			return fmt.Errorf("create quota: %w", err)
		}
		log.Debug("quota created", slog.Int("limit", q.Limit))
	}

	if q.Exhausted() {
		log.Info("quota exceeded", slog.Int("used", q.Used), slog.Int("limit", q.Limit))
		return &entity.QuotaExceededError{Used: q.Used, Limit: q.Limit}
	}

	err = s.db.IncrementQuota(ctx, q)
	if errors.Is(err, entity.ErrConflict) {
		// another call took the last unit between the read and the write
		if fresh, e := s.db.GetQuota(ctx, userID, monthKey); e == nil && fresh != nil {
			q = fresh
		}
		log.Info("quota exceeded on increment", slog.Int("used", q.Used), slog.Int("limit", q.Limit))
		return &entity.QuotaExceededError{Used: q.Used, Limit: q.Limit}
	}
	if err != nil {
		return fmt.Errorf("increment quota: %w", err)
	}
	return nil
}
