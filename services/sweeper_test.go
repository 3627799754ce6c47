package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSweeper struct {
	calls atomic.Int32
	panic bool
	err   error
}

func (c *countingSweeper) Sweep(time.Time) (int, error) {
	c.calls.Add(1)
	if c.panic {
		panic("boom")
	}
	if c.err != nil {
		return 0, c.err
	}
	return 1, nil
}

func TestRunSessionSweeper_StopsOnCancel(t *testing.T) {
	log, _ := logtest.NewNullLogger()
	s := &countingSweeper{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		RunSessionSweeper(ctx, s, 5*time.Millisecond, log)
		close(done)
	}()

	assert.Eventually(t, func() bool { return s.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestSweepOnce_RecoversPanic(t *testing.T) {
	log, hook := logtest.NewNullLogger()

	assert.NotPanics(t, func() { sweepOnce(&countingSweeper{panic: true}, time.Now(), log) })
	assert.Contains(t, hook.LastEntry().Message, "Session sweeper panic")
}

func TestSweepOnce_LogsStoreError(t *testing.T) {
	log, hook := logtest.NewNullLogger()

	sweepOnce(&countingSweeper{err: errors.New("connection refused")}, time.Now(), log)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "Session sweep failed", entry.Message)
	assert.EqualError(t, entry.Data[logrus.ErrorKey].(error), "connection refused")
}
