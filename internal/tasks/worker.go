package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/tariron/saasodoo-sub008/internal/clock"
	"github.com/tariron/saasodoo-sub008/internal/faults"
	"github.com/tariron/saasodoo-sub008/internal/tasks/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Handler executes one task. Handlers run under at-least-once delivery
// and must tolerate redelivery of work that already happened.
type Handler func(ctx context.Context, task domain.Task) error

// Registration binds a task type to its handler. Feature modules
// contribute these through the "task-handlers" fx group.
type Registration struct {
	Type    domain.Type
	Handler Handler
}

// Config controls the worker pool.
type Config struct {
	Workers      int
	BatchSize    int
	PollInterval time.Duration
	ExecTimeout  time.Duration
	MaxAttempts  int
	BackoffBase  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.ExecTimeout <= 0 {
		c.ExecTimeout = 5 * time.Minute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 10 * time.Second
	}
	return c
}

type WorkerParams struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	Clock         clock.Clock
	Repo          domain.Repository
	Registrations []Registration `group:"task-handlers"`
	Config        Config         `optional:"true"`
}

// Worker drains the durable queue. Several workers run per process and
// several processes run per deployment; claim CAS plus idempotent
// handlers make that safe.
type Worker struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	repo     domain.Repository
	handlers map[domain.Type]Handler
	cfg      Config
}

func NewWorker(p WorkerParams) *Worker {
	handlers := make(map[domain.Type]Handler, len(p.Registrations))
	for _, reg := range p.Registrations {
		handlers[reg.Type] = reg.Handler
	}
	return &Worker{
		db:       p.DB,
		log:      p.Log.Named("tasks.worker"),
		clock:    p.Clock,
		repo:     p.Repo,
		handlers: handlers,
		cfg:      p.Config.withDefaults(),
	}
}

// RunForever polls the queue until the context is cancelled.
func (w *Worker) RunForever(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil {
			w.log.Warn("task batch failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce claims one batch and executes it, returning the number of
// tasks processed.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	now := w.clock.Now()

	var claimed []domain.Task
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		claimed, err = w.repo.ClaimDue(ctx, tx, now, w.cfg.BatchSize)
		return err
	})
	if err != nil {
		return 0, err
	}

	for _, task := range claimed {
		w.execute(ctx, task)
	}
	return len(claimed), nil
}

func (w *Worker) execute(ctx context.Context, task domain.Task) {
	log := w.log.With(
		zap.String("task_id", task.ID.String()),
		zap.String("instance_id", task.InstanceID.String()),
		zap.String("task_type", string(task.Type)),
		zap.Int("attempt", task.Attempts),
	)

	handler, ok := w.handlers[task.Type]
	if !ok {
		log.Error("no handler registered for task type")
		_ = w.repo.MarkFailed(ctx, w.db, task.ID, "no handler for task type "+string(task.Type), w.clock.Now())
		return
	}

	execCtx, cancel := context.WithTimeout(ctx, w.cfg.ExecTimeout)
	err := handler(execCtx, task)
	cancel()

	now := w.clock.Now()
	if err == nil {
		if markErr := w.repo.MarkSucceeded(ctx, w.db, task.ID, now); markErr != nil {
			log.Error("mark succeeded failed", zap.Error(markErr))
		}
		return
	}

	maxAttempts := task.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = w.cfg.MaxAttempts
	}
	if faults.Retryable(err) && task.Attempts < maxAttempts {
		delay := w.backoff(task.Attempts)
		log.Warn("task failed, requeueing", zap.Error(err), zap.Duration("backoff", delay))
		if reqErr := w.repo.Requeue(ctx, w.db, task.ID, now.Add(delay), err.Error()); reqErr != nil {
			log.Error("requeue failed", zap.Error(reqErr))
		}
		return
	}

	log.Error("task failed permanently", zap.Error(err))
	if markErr := w.repo.MarkFailed(ctx, w.db, task.ID, err.Error(), now); markErr != nil {
		log.Error("mark failed failed", zap.Error(markErr))
	}
}

// backoff doubles per attempt: base, 2*base, 4*base and so on.
func (w *Worker) backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	shift := attempts - 1
	if shift > 6 {
		shift = 6
	}
	return w.cfg.BackoffBase << uint(shift)
}

// Pool starts cfg.Workers goroutines over a shared Worker.
type Pool struct {
	worker *Worker
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPool wires the pool; Start and Stop hang off the fx lifecycle.
func NewPool(worker *Worker) *Pool {
	return &Pool{worker: worker}
}

func (p *Pool) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})

	n := p.worker.cfg.Workers
	running := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		running <- struct{}{}
		go func() {
			defer func() { <-running }()
			p.worker.RunForever(ctx)
		}()
	}
	go func() {
		<-ctx.Done()
		for i := 0; i < n; i++ {
			running <- struct{}{}
		}
		close(p.done)
	}()
}

func (p *Pool) Stop(ctx context.Context) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker pool shutdown: %w", ctx.Err())
	}
}
