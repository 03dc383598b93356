package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Proton-105/lesson-ledger/internal/progress"
)

type staticLister struct {
	list []*progress.UserProgress
	err  error
}

func (s staticLister) List(context.Context) ([]*progress.UserProgress, error) {
	return s.list, s.err
}

func TestAccountsCollector_Collect(t *testing.T) {
	c := NewAccountsCollector(staticLister{list: []*progress.UserProgress{
		{CompletedLessons: []string{"a", "b"}},
		{CompletedLessons: []string{"c"}},
	}}, time.Minute, nil)

	require.NoError(t, c.Collect(context.Background()))
	assert.Equal(t, 2.0, testutil.ToFloat64(activeAccounts))
	assert.Equal(t, 3.0, testutil.ToFloat64(completedLessons))

	failing := NewAccountsCollector(staticLister{err: errors.New("down")}, time.Minute, nil)
	assert.Error(t, failing.Collect(context.Background()))
}

func TestAccountsCollector_RunStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c := NewAccountsCollector(staticLister{}, time.Hour, nil)
	go func() {
		c.Run(ctx)
		close(done)
	}()

	cancel()
	<-done
}

func TestRecordInstruction_DefaultsLabels(t *testing.T) {
	before := testutil.ToFloat64(instructionsTotal.WithLabelValues("unknown", "unknown"))
	RecordInstruction("", "", time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(instructionsTotal.WithLabelValues("unknown", "unknown")))
}
