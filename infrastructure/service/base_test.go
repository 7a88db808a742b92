package service

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakePinger struct{ err error }

func (f fakePinger) PingContext(_ context.Context) error { return f.err }

func TestBaseService_StartRunsHydrateBeforeWorkers(t *testing.T) {
	var order []string
	b := NewBase(Config{ID: "svc", Name: "svc", Version: "v1"}).
		WithHydrate(func(context.Context) error { order = append(order, "hydrate"); return nil }).
		AddWorker(func(context.Context) { order = append(order, "worker") })

	require.NoError(t, b.Start(context.Background()))
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, []string{"hydrate", "worker"}, order)
}

func TestBaseService_StopIsIdempotent(t *testing.T) {
	b := NewBase(Config{ID: "svc"})
	require.NotPanics(t, func() {
		require.NoError(t, b.Stop())
		require.NoError(t, b.Stop())
	})
}

func TestBaseService_TickerWorkerRunsImmediatelyWhenConfigured(t *testing.T) {
	calls := make(chan struct{}, 2)
	b := NewBase(Config{ID: "svc"}).
		AddTickerWorker(time.Hour, func(context.Context) error { calls <- struct{}{}; return nil }, WithTickerWorkerImmediate())

	require.NoError(t, b.Start(context.Background()))
	select {
	case <-calls:
	case <-time.After(time.Second):
		t.Fatal("ticker worker did not run immediately")
	}
}

func TestBaseService_HealthStatusReflectsDBPing(t *testing.T) {
	b := NewBase(Config{ID: "svc", DB: fakePinger{}})
	require.Equal(t, "healthy", b.HealthStatus())

	b = NewBase(Config{ID: "svc", DB: fakePinger{err: errors.New("down")}})
	require.Equal(t, "unhealthy", b.HealthStatus())
}

func TestBaseService_HealthyWithNoDBDependency(t *testing.T) {
	b := NewBase(Config{ID: "svc"})
	require.Equal(t, "healthy", b.HealthStatus())
}

func TestRouter_ReadyzReflectsStatus(t *testing.T) {
	b := NewBase(Config{ID: "svc", Name: "svc", Version: "v1", DB: fakePinger{err: errors.New("down")}})
	router := b.Router()

	req := httptest.NewRequest("GET", "/readyz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, 503, rec.Code)
}
