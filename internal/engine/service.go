// Package engine drives reminder delivery: a periodic scan claims due rows,
// sends them, and finalizes the claim; a reaper returns stale claims from
// crashed or stuck workers; a horizon sweep keeps recurring chains seeded
// with their next occurrence.
package engine

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"remindbot/internal/eventbus"
	"remindbot/internal/storage"
	"remindbot/internal/tz"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

// Config controls the delivery engine cadences.
type Config struct {
	Enabled         bool
	ScanInterval    time.Duration // due-row sweep cadence
	BatchSize       int           // max claims per sweep
	ReapInterval    time.Duration // stale-claim sweep cadence
	StaleAfter      time.Duration // claim age before the reaper takes it back
	HorizonInterval time.Duration // recurrence sweep cadence
	Horizon         time.Duration // how far ahead occurrences are materialized
	SendTimeout     time.Duration // per-delivery send budget
	RetryMax        int           // delivery attempts before terminal failure
}

// Sender is the outbound half of the transport adapter.
type Sender interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
}

// Service owns the engine's cron loops. One Service per process; the
// claim owner id makes concurrent processes safe against each other.
type Service struct {
	mu sync.Mutex

	cfg   Config
	log   logx.Logger
	store storage.Store
	send  Sender
	tzr   *tz.Resolver
	bus   eventbus.Bus

	workerID string
	cron     *cron.Cron
	runCtx   context.Context
	cancel   context.CancelFunc
}

func New(cfg Config, store storage.Store, send Sender, tzr *tz.Resolver, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	host, _ := os.Hostname()
	if host == "" {
		host = "remindbot"
	}
	s := &Service{
		log:      log,
		store:    store,
		send:     send,
		tzr:      tzr,
		bus:      bus,
		workerID: fmt.Sprintf("%s-%s", host, uuid.NewString()[:8]),
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

// WorkerID returns this process's claim owner identity.
func (s *Service) WorkerID() string {
	return s.workerID
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	old := s.cfg
	s.applyLocked(cfg)
	var prev *cron.Cron
	if s.cron != nil && cadencesChanged(old, s.cfg) {
		prev = s.cron
		s.cron = s.buildCron(s.runCtx, s.cfg)
	}
	s.mu.Unlock()

	// Wait for the old cron outside the lock. An in-flight job reads the
	// config through snapshot(), which takes the same lock.
	if prev != nil {
		<-prev.Stop().Done()
	}
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = 5 * time.Minute
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 5 * time.Minute
	}
	if cfg.HorizonInterval <= 0 {
		cfg.HorizonInterval = time.Hour
	}
	if cfg.Horizon <= 0 {
		cfg.Horizon = 24 * time.Hour
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 3
	}
	if cfg.StaleAfter <= cfg.SendTimeout {
		// A claim must outlive its send, or the reaper steals in-flight work.
		cfg.StaleAfter = cfg.SendTimeout + time.Minute
	}
	s.cfg = cfg
}

func cadencesChanged(a, b Config) bool {
	return a.ScanInterval != b.ScanInterval ||
		a.ReapInterval != b.ReapInterval ||
		a.HorizonInterval != b.HorizonInterval
}

// Start is idempotent. The engine only launches when enabled.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil || !s.cfg.Enabled {
		return
	}
	s.runCtx, s.cancel = context.WithCancel(ctx)
	s.cron = s.buildCron(s.runCtx, s.cfg)
	s.log.Info("engine started",
		logx.String("worker", s.workerID),
		logx.Duration("scan", s.cfg.ScanInterval),
		logx.Duration("reap", s.cfg.ReapInterval),
		logx.Duration("horizon_every", s.cfg.HorizonInterval))
}

// buildCron creates and starts a cron with the given cadences. It takes no
// lock; callers swap the returned pointer in under s.mu and retire the old
// cron unlocked.
func (s *Service) buildCron(ctx context.Context, cfg Config) *cron.Cron {
	c := cron.New()

	add := func(name string, every time.Duration, fn func(context.Context)) {
		spec := "@every " + every.String()
		if _, err := c.AddFunc(spec, func() {
			if ctx.Err() != nil {
				return
			}
			fn(ctx)
		}); err != nil {
			s.log.Error("engine schedule rejected", logx.String("job", name), logx.Err(err))
		}
	}

	add("scan", cfg.ScanInterval, s.scan)
	add("reap", cfg.ReapInterval, s.reap)
	add("horizon", cfg.HorizonInterval, s.horizon)

	c.Start()
	return c
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.cron
	cancel := s.cancel
	s.cron = nil
	s.cancel = nil
	s.runCtx = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	if cancel != nil {
		defer cancel()
	}

	done := c.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
		// In-flight jobs hold claims; the reaper recovers them if we bail.
		if cancel != nil {
			cancel()
		}
	}
	s.log.Info("engine stopped")
}

func (s *Service) snapshot() Config {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()
	return cfg
}
