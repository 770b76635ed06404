package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/tariron/saasodoo-sub008/internal/faults"
	"github.com/tariron/saasodoo-sub008/internal/tasks/domain"
	"github.com/tariron/saasodoo-sub008/internal/tasks/repository"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func TestRunOnceExecutesHandlerAndMarksSucceeded(t *testing.T) {
	db := setupWorkerTestDB(t)
	clk := &fakeClock{now: time.Now().UTC()}
	repo := repository.Provide()

	var handled []snowflake.ID
	worker := newTestWorker(db, clk, repo, map[domain.Type]Handler{
		domain.TypeProvision: func(ctx context.Context, task domain.Task) error {
			handled = append(handled, task.ID)
			return nil
		},
	})

	enqueueTestTask(t, db, repo, 200, 1, clk.now.Add(-time.Second))

	n, err := worker.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 task processed, got %d", n)
	}
	if len(handled) != 1 || handled[0] != 200 {
		t.Fatalf("expected handler to see task 200, got %v", handled)
	}
	assertTaskStatus(t, db, 200, domain.StatusSucceeded)
}

func TestRunOnceRequeuesRetryableFailure(t *testing.T) {
	db := setupWorkerTestDB(t)
	clk := &fakeClock{now: time.Now().UTC()}
	repo := repository.Provide()

	worker := newTestWorker(db, clk, repo, map[domain.Type]Handler{
		domain.TypeProvision: func(ctx context.Context, task domain.Task) error {
			return faults.ErrResourceUnavailable
		},
	})

	enqueueTestTask(t, db, repo, 210, 2, clk.now.Add(-time.Second))

	if _, err := worker.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	assertTaskStatus(t, db, 210, domain.StatusQueued)

	var task domain.Task
	if err := db.First(&task, "id = ?", 210).Error; err != nil {
		t.Fatalf("load task: %v", err)
	}
	wantRunAt := clk.now.Add(time.Second)
	if task.RunAt.Before(wantRunAt) {
		t.Fatalf("expected run_at pushed past %v, got %v", wantRunAt, task.RunAt)
	}
	if task.LastError == nil || *task.LastError == "" {
		t.Fatalf("expected last_error recorded")
	}
}

func TestRunOnceFailsAfterMaxAttempts(t *testing.T) {
	db := setupWorkerTestDB(t)
	clk := &fakeClock{now: time.Now().UTC()}
	repo := repository.Provide()

	worker := newTestWorker(db, clk, repo, map[domain.Type]Handler{
		domain.TypeProvision: func(ctx context.Context, task domain.Task) error {
			return faults.ErrDownstreamTimeout
		},
	})

	enqueueTestTask(t, db, repo, 220, 3, clk.now.Add(-time.Second))

	for i := 0; i < 3; i++ {
		if _, err := worker.RunOnce(context.Background()); err != nil {
			t.Fatalf("run once %d: %v", i, err)
		}
		clk.now = clk.now.Add(time.Hour)
	}
	assertTaskStatus(t, db, 220, domain.StatusFailed)
}

func TestRunOnceFailsFatalErrorImmediately(t *testing.T) {
	db := setupWorkerTestDB(t)
	clk := &fakeClock{now: time.Now().UTC()}
	repo := repository.Provide()

	worker := newTestWorker(db, clk, repo, map[domain.Type]Handler{
		domain.TypeProvision: func(ctx context.Context, task domain.Task) error {
			return errors.New("bad request payload")
		},
	})

	enqueueTestTask(t, db, repo, 230, 4, clk.now.Add(-time.Second))

	if _, err := worker.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	assertTaskStatus(t, db, 230, domain.StatusFailed)
}

func TestRunOnceFailsTaskWithoutHandler(t *testing.T) {
	db := setupWorkerTestDB(t)
	clk := &fakeClock{now: time.Now().UTC()}
	repo := repository.Provide()

	worker := newTestWorker(db, clk, repo, map[domain.Type]Handler{})

	enqueueTestTask(t, db, repo, 240, 5, clk.now.Add(-time.Second))

	if _, err := worker.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	assertTaskStatus(t, db, 240, domain.StatusFailed)
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	worker := &Worker{cfg: Config{BackoffBase: 10 * time.Second}.withDefaults()}

	cases := []struct {
		attempts int
		want     time.Duration
	}{
		{1, 10 * time.Second},
		{2, 20 * time.Second},
		{3, 40 * time.Second},
		{7, 640 * time.Second},
		{20, 640 * time.Second},
	}
	for _, tc := range cases {
		if got := worker.backoff(tc.attempts); got != tc.want {
			t.Fatalf("backoff(%d) = %v, want %v", tc.attempts, got, tc.want)
		}
	}
}

func newTestWorker(db *gorm.DB, clk *fakeClock, repo domain.Repository, handlers map[domain.Type]Handler) *Worker {
	return &Worker{
		db:       db,
		log:      zap.NewNop(),
		clock:    clk,
		repo:     repo,
		handlers: handlers,
		cfg:      Config{MaxAttempts: 3, BackoffBase: time.Second}.withDefaults(),
	}
}

func enqueueTestTask(t *testing.T, db *gorm.DB, repo domain.Repository, id, instanceID int64, runAt time.Time) {
	t.Helper()
	task := &domain.Task{
		ID:          snowflake.ID(id),
		InstanceID:  snowflake.ID(instanceID),
		Type:        domain.TypeProvision,
		Status:      domain.StatusQueued,
		MaxAttempts: 3,
		RunAt:       runAt,
	}
	if _, err := repo.Enqueue(context.Background(), db, task); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
}

func assertTaskStatus(t *testing.T, db *gorm.DB, id int64, want domain.Status) {
	t.Helper()
	var task domain.Task
	if err := db.First(&task, "id = ?", id).Error; err != nil {
		t.Fatalf("load task %d: %v", id, err)
	}
	if task.Status != want {
		t.Fatalf("task %d status = %s, want %s", id, task.Status, want)
	}
}

func setupWorkerTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.Exec(
		`CREATE TABLE IF NOT EXISTS provisioning_tasks (
			id BIGINT PRIMARY KEY,
			instance_id BIGINT NOT NULL,
			task_type TEXT NOT NULL,
			status TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			max_attempts INTEGER NOT NULL DEFAULT 5,
			run_at TIMESTAMP NOT NULL,
			last_error TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
	).Error; err != nil {
		t.Fatalf("create provisioning_tasks: %v", err)
	}
	return db
}
