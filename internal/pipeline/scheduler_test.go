package pipeline_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/disaster-hotspot-etl/internal/pipeline"
)

type countingPasser struct {
	runs      atomic.Int32
	cancelled atomic.Bool
	block     bool
}

func (p *countingPasser) RunPass(ctx context.Context) (pipeline.PassSummary, error) {
	p.runs.Add(1)
	if p.block {
		<-ctx.Done()
		p.cancelled.Store(true)
		return pipeline.PassSummary{}, ctx.Err()
	}
	return pipeline.PassSummary{}, nil
}

func TestNewScheduler_InvalidSpec(t *testing.T) {
	_, err := pipeline.NewScheduler("every now and then", &countingPasser{}, discardLogger())
	require.Error(t, err)
}

func TestScheduler_RunsPasses(t *testing.T) {
	passer := &countingPasser{}
	s, err := pipeline.NewScheduler("@every 1s", passer, discardLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return passer.runs.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestScheduler_StopCancelsRunningPass(t *testing.T) {
	passer := &countingPasser{block: true}
	s, err := pipeline.NewScheduler("@every 1s", passer, discardLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return passer.runs.Load() == 1 }, 3*time.Second, 50*time.Millisecond)
	// Later ticks are skipped while the first pass is still running.
	time.Sleep(1200 * time.Millisecond)
	assert.Equal(t, int32(1), passer.runs.Load())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.True(t, passer.cancelled.Load())
}
