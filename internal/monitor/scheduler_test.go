package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/opslink/statuswatch/internal/domain"
	"github.com/opslink/statuswatch/internal/incidents"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePoller struct {
	outcomes map[string]RawOutcome
}

func (p *fakePoller) Poll(_ context.Context, svc domain.Service) RawOutcome {
	return p.outcomes[svc.ID]
}

type processed struct {
	serviceID string
	status    domain.Status
	reason    string
}

type fakePipeline struct {
	mu      sync.Mutex
	calls   []processed
	failFor string
}

func (p *fakePipeline) ProcessCheck(_ context.Context, serviceID string, status domain.Status, reason string) (*domain.Check, *incidents.Transition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, processed{serviceID, status, reason})
	if serviceID == p.failFor {
		return nil, nil, errors.New("storage unavailable")
	}
	return &domain.Check{ServiceID: serviceID, Status: status}, nil, nil
}

func (p *fakePipeline) byService() map[string]processed {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string]processed, len(p.calls))
	for _, c := range p.calls {
		out[c.serviceID] = c
	}
	return out
}

func (p *fakePipeline) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

type fakePruner struct {
	mu        sync.Mutex
	retention time.Duration
	calls     int
}

func (p *fakePruner) Prune(_ context.Context, retention time.Duration) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.retention = retention
	return 3, nil
}

var testServices = []domain.Service{
	{ID: "a", Name: "A"},
	{ID: "b", Name: "B"},
	{ID: "c", Name: "C"},
}

func TestScheduler_TickClassifiesEveryService(t *testing.T) {
	poller := &fakePoller{outcomes: map[string]RawOutcome{
		"a": {LifecycleState: StateRunning},
		"b": {LifecycleState: StateStopping},
		"c": {Failed: true, Err: errors.New("dial tcp: refused")},
	}}
	pipeline := &fakePipeline{}

	s := NewScheduler(SchedulerConfig{Interval: time.Minute, Concurrency: 2}, testServices, poller, pipeline, nil)
	s.Tick(context.Background())

	got := pipeline.byService()
	require.Len(t, got, 3)
	assert.Equal(t, processed{"a", domain.StatusUp, ""}, got["a"])
	assert.Equal(t, processed{"b", domain.StatusDegraded, ReasonStopping}, got["b"])
	assert.Equal(t, processed{"c", domain.StatusDown, ReasonUnreachable}, got["c"])
}

func TestScheduler_FailureIsolatedPerService(t *testing.T) {
	poller := &fakePoller{outcomes: map[string]RawOutcome{}}
	pipeline := &fakePipeline{failFor: "a"}

	s := NewScheduler(SchedulerConfig{Interval: time.Minute}, testServices, poller, pipeline, nil)
	s.Tick(context.Background())

	assert.Len(t, pipeline.byService(), 3)
}

func TestScheduler_RunTicksImmediatelyAndStops(t *testing.T) {
	poller := &fakePoller{outcomes: map[string]RawOutcome{}}
	pipeline := &fakePipeline{}
	pruner := &fakePruner{}

	s := NewScheduler(SchedulerConfig{Interval: time.Hour, Retention: 48 * time.Hour}, testServices, poller, pipeline, pruner)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return pipeline.count() == 3 }, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}

	pruner.mu.Lock()
	defer pruner.mu.Unlock()
	assert.Equal(t, 1, pruner.calls)
	assert.Equal(t, 48*time.Hour, pruner.retention)
}

func TestScheduler_RunRepeatsOnInterval(t *testing.T) {
	poller := &fakePoller{outcomes: map[string]RawOutcome{}}
	pipeline := &fakePipeline{}

	s := NewScheduler(SchedulerConfig{Interval: 20 * time.Millisecond}, testServices[:1], poller, pipeline, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	require.Eventually(t, func() bool { return pipeline.count() >= 3 }, 2*time.Second, 5*time.Millisecond)
}
