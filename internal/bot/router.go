// Package bot routes inbound chat updates: slash commands are handled
// directly, everything else goes through the conversation machine.
package bot

import (
	"context"
	"runtime"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"remindbot/internal/eventbus"
	rtsup "remindbot/internal/runtime/supervisor"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

// Conversation is the slice of the dialog machine the router needs.
type Conversation interface {
	HandleUtterance(ctx context.Context, ownerID, chatID int64, text string, now time.Time) (string, error)
	ListText(ctx context.Context, ownerID int64) (string, error)
	CancelByIndex(ctx context.Context, ownerID int64, index int) (string, error)
	Snooze(ctx context.Context, ownerID int64, minutes int, now time.Time) (string, error)
}

// NotifierPort sends out-of-band messages (failure notices, expiry notices)
// through the async notifier pipeline.
type NotifierPort interface {
	Notify(ctx context.Context, n kit.Notification) error
}

type Config struct {
	// OwnerUserIDs restricts who may talk to the bot. Empty means anyone.
	OwnerUserIDs []int64

	Workers       int
	QueueSize     int
	HandleTimeout time.Duration
}

type Router struct {
	mu  sync.RWMutex
	cfg Config

	log     logx.Logger
	adapter kit.Adapter
	convo   Conversation
	notif   NotifierPort
	bus     eventbus.Bus

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor
	jobs    chan func()
}

func New(cfg Config, adapter kit.Adapter, convo Conversation, notif NotifierPort, bus eventbus.Bus, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = withDefaults(cfg)
	return &Router{
		cfg:     cfg,
		log:     log,
		adapter: adapter,
		convo:   convo,
		notif:   notif,
		bus:     bus,
		jobs:    make(chan func(), cfg.QueueSize),
	}
}

func withDefaults(cfg Config) Config {
	cfg.OwnerUserIDs = append([]int64(nil), cfg.OwnerUserIDs...)
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Workers < 2 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 128
	}
	if cfg.HandleTimeout <= 0 {
		cfg.HandleTimeout = 15 * time.Second
	}
	return cfg
}

// Apply updates the owner allow-list. Worker and queue sizing stays fixed
// until restart.
func (r *Router) Apply(cfg Config) {
	cfg = withDefaults(cfg)
	r.mu.Lock()
	r.cfg.OwnerUserIDs = cfg.OwnerUserIDs
	r.cfg.HandleTimeout = cfg.HandleTimeout
	r.mu.Unlock()
}

func (r *Router) snapshot() Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg := r.cfg
	cfg.OwnerUserIDs = append([]int64(nil), r.cfg.OwnerUserIDs...)
	return cfg
}

func (r *Router) allowed(fromID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.cfg.OwnerUserIDs) == 0 {
		return true
	}
	for _, id := range r.cfg.OwnerUserIDs {
		if id == fromID {
			return true
		}
	}
	return false
}

// Run consumes updates until ctx is done or the channel closes. It blocks,
// so callers run it under their own supervisor.
func (r *Router) Run(ctx context.Context, updates <-chan kit.Update) error {
	cfg := r.snapshot()

	sup := rtsup.New(ctx,
		rtsup.WithLogger(r.log.With(logx.String("comp", "bot.router"))),
		rtsup.WithCancelOnError(false),
	)
	r.runMu.Lock()
	r.sup = sup
	r.running = true
	r.runMu.Unlock()

	r.log.Info("router started",
		logx.Int("workers", cfg.Workers),
		logx.Int("queue_cap", cap(r.jobs)),
		logx.Int("owners", len(cfg.OwnerUserIDs)))

	var closeOnce sync.Once
	closeJobs := func() {
		closeOnce.Do(func() {
			r.runMu.Lock()
			r.running = false
			r.runMu.Unlock()
			close(r.jobs)
		})
	}

	for i := 0; i < cfg.Workers; i++ {
		idx := i
		sup.GoRestart("bot.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-r.jobs:
					if !ok {
						return nil
					}
					if job == nil {
						continue
					}
					func() {
						defer func() {
							if rec := recover(); rec != nil {
								r.log.Error("panic in update handler",
									logx.Int("worker", idx),
									logx.Any("panic", rec),
									logx.String("stack", string(debug.Stack())))
							}
						}()
						job()
					}()
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithPublishFirstError(true),
			rtsup.WithStopOnCleanExit(true),
		)
	}

	if r.bus != nil && r.notif != nil {
		sup.Go0("bot.events", func(c context.Context) { r.watchEvents(c) })
	}

	if up, ok := r.adapter.(kit.CommandMenuUpdater); ok {
		sup.Go0("bot.menu.update", func(c context.Context) {
			mctx, cancel := context.WithTimeout(c, 5*time.Second)
			defer cancel()
			if err := up.UpdateMenuCommands(mctx, menuCommands()); err != nil {
				r.log.Warn("menu update failed", logx.Err(err))
			}
		})
	}

	defer func() {
		closeJobs()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		r.runMu.Lock()
		r.sup = nil
		r.runMu.Unlock()
		r.log.Info("router stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				r.log.Info("router stopped (updates channel closed)")
				return nil
			}
			r.route(ctx, up)
		}
	}
}

func (r *Router) route(root context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		if up.Message == nil {
			return
		}
		msg := *up.Message
		if !r.allowed(msg.FromID) {
			r.log.Debug("update from unlisted user ignored",
				logx.Int64("from_id", msg.FromID), logx.Int64("chat_id", msg.ChatID))
			return
		}
		r.enqueue(root, func(ctx context.Context) { r.handleMessage(ctx, msg) },
			kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID})
	case kit.UpdateCallback:
		if up.Callback == nil {
			return
		}
		cb := *up.Callback
		if !r.allowed(cb.FromID) {
			return
		}
		r.enqueue(root, func(ctx context.Context) { r.handleCallback(ctx, cb) },
			kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID})
	}
}

func (r *Router) enqueue(root context.Context, fn func(ctx context.Context), chat kit.ChatTarget) {
	timeout := r.snapshot().HandleTimeout
	job := func() {
		ctx, cancel := context.WithTimeout(root, timeout)
		defer cancel()
		fn(ctx)
	}

	ok := func() (ok bool) {
		defer func() {
			if rec := recover(); rec != nil {
				ok = false
			}
		}()
		r.runMu.Lock()
		running := r.running
		r.runMu.Unlock()
		if !running {
			return false
		}
		select {
		case r.jobs <- job:
			return true
		default:
			return false
		}
	}()
	if !ok {
		_, _ = r.adapter.SendText(root, chat, "I'm a bit backed up, try again in a moment.", nil)
	}
}
