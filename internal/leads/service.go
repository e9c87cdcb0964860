package leads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// Hooks observe submission outcomes; the site wires them to metrics.
type Hooks struct {
	OnOutcome func(status Status)
}

type Service struct {
	store       *Store
	relay       Relayer
	triager     Triager
	notifier    Notifier
	logger      *zap.Logger
	hooks       Hooks
	maxAttempts int
}

type Option func(*Service)

func WithTriager(t Triager) Option   { return func(s *Service) { s.triager = t } }
func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }
func WithHooks(h Hooks) Option       { return func(s *Service) { s.hooks = h } }

// WithMaxAttempts caps how many times a lead is relayed before it is left failed.
func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

func NewService(store *Store, relay Relayer, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{store: store, relay: relay, logger: logger, maxAttempts: 3}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates, stores and relays a lead. A filled honeypot is stored as
// spam and reported as accepted. When the relay fails the lead stays pending
// for the retrier and the returned error wraps ErrRelayFailed.
func (s *Service) Submit(ctx context.Context, sub Submission) (*Lead, error) {
	ctx, span := tracer.Start(ctx, "leads.submit")
	defer span.End()

	lead := NewLead(sub)
	span.SetAttributes(attribute.String("lead.id", lead.ID))

	// Honeypot hits are accepted whatever else they contain.
	if lead.IsSpam() {
		lead.Status = StatusSpam
		if err := s.store.Save(ctx, lead); err != nil {
			return nil, err
		}
		s.logger.Info("lead rejected by honeypot", zap.String("lead_id", lead.ID))
		s.outcome(StatusSpam)
		return lead, nil
	}

	if err := lead.Validate(); err != nil {
		return nil, err
	}

	s.triage(ctx, lead)

	if err := s.store.Save(ctx, lead); err != nil {
		return nil, err
	}
	if err := s.relayOne(ctx, lead); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return lead, fmt.Errorf("%w: %v", ErrRelayFailed, err)
	}
	return lead, nil
}

func (s *Service) triage(ctx context.Context, lead *Lead) {
	if s.triager == nil {
		return
	}
	tctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	t, err := s.triager.Triage(tctx, lead)
	if err != nil {
		s.logger.Warn("lead triage failed", zap.String("lead_id", lead.ID), zap.Error(err))
		return
	}
	lead.Segment = t.Segment
	lead.Priority = t.Priority
}

// relayOne makes one relay attempt and records its outcome.
func (s *Service) relayOne(ctx context.Context, lead *Lead) error {
	err := s.relay.Relay(ctx, lead)
	lead.RelayAttempts++
	if err == nil {
		lead.Status = StatusRelayed
		lead.LastError = ""
		if mErr := s.store.MarkRelayed(ctx, lead.ID); mErr != nil {
			s.logger.Error("mark lead relayed", zap.String("lead_id", lead.ID), zap.Error(mErr))
		}
		s.logger.Info("lead relayed", zap.String("lead_id", lead.ID), zap.Int("attempts", lead.RelayAttempts))
		s.outcome(StatusRelayed)
		s.notify(ctx, lead)
		return nil
	}

	permanent := !IsTransient(err) || lead.RelayAttempts >= s.maxAttempts
	lead.LastError = err.Error()
	lead.Status = StatusPending
	if permanent {
		lead.Status = StatusFailed
	}
	if mErr := s.store.MarkAttemptFailed(ctx, lead.ID, err.Error(), permanent); mErr != nil {
		s.logger.Error("mark lead attempt failed", zap.String("lead_id", lead.ID), zap.Error(mErr))
	}
	s.logger.Warn("lead relay failed",
		zap.String("lead_id", lead.ID),
		zap.Int("attempts", lead.RelayAttempts),
		zap.Bool("permanent", permanent),
		zap.Error(err))
	s.outcome(lead.Status)
	return err
}

func (s *Service) notify(ctx context.Context, lead *Lead) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, lead); err != nil {
		s.logger.Warn("lead notify failed", zap.String("lead_id", lead.ID), zap.Error(err))
	}
}

func (s *Service) outcome(st Status) {
	if s.hooks.OnOutcome != nil {
		s.hooks.OnOutcome(st)
	}
}

// RetryPending re-relays up to limit pending leads and returns how many succeeded.
func (s *Service) RetryPending(ctx context.Context, limit int) (int, error) {
	pending, err := s.store.ListPending(ctx, s.maxAttempts, limit)
	if err != nil {
		return 0, err
	}
	ok := 0
	for _, lead := range pending {
		if ctx.Err() != nil {
			return ok, ctx.Err()
		}
		if err := s.relayOne(ctx, lead); err == nil {
			ok++
		}
	}
	return ok, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Lead, error) {
	return s.store.Get(ctx, id)
}

// Retrier periodically re-relays pending leads.
type Retrier struct {
	svc      *Service
	interval time.Duration
	batch    int
}

func NewRetrier(svc *Service, interval time.Duration) *Retrier {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Retrier{svc: svc, interval: interval, batch: 50}
}

// Run blocks until ctx is cancelled.
func (r *Retrier) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.svc.RetryPending(ctx, r.batch)
			if err != nil && !errors.Is(err, context.Canceled) {
				r.svc.logger.Warn("lead retry pass failed", zap.Error(err))
				continue
			}
			if n > 0 {
				r.svc.logger.Info("lead retry pass", zap.Int("relayed", n))
			}
		}
	}
}
