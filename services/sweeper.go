package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Sweepable is a session store that can drop expired entries itself.
type Sweepable interface {
	Sweep(now time.Time) (int, error)
}

// RunSessionSweeper removes expired sessions every interval until ctx is done.
func RunSessionSweeper(ctx context.Context, sessions Sweepable, interval time.Duration, log *logrus.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			sweepOnce(sessions, now, log)
		}
	}
}

func sweepOnce(sessions Sweepable, now time.Time, log *logrus.Logger) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Session sweeper panic: %v", r)
		}
	}()

	n, err := sessions.Sweep(now)
	if err != nil {
		log.WithError(err).Warn("Session sweep failed")
		return
	}
	if n > 0 {
		log.WithField("removed", n).Debug("Expired sessions swept")
	}
}
