package maintain

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"algoedge.xyz/alarm-relay-service/pkg/common"
)

// Scheduler drives the maintenance work on two cadences: a short sweep
// interval for retention bounds, and a daily wall-clock slot for the heavier
// reconcile plus vacuum pass.
type Scheduler struct {
	Sweeper    *Sweeper
	Reconciler *Reconciler
	// CleanAt is the daily "HH:MM" slot for the full pass; empty disables it.
	CleanAt string
	// SweepEvery is the retention sweep interval; zero disables it.
	SweepEvery     time.Duration
	ReconcileDaily bool

	stop chan struct{}
}

// Start launches the timer goroutines. Call Stop to terminate them.
func (s *Scheduler) Start() {
	s.stop = make(chan struct{})
	logger := common.GetLoggerWith(common.LoggerNameMaintain)

	if s.SweepEvery > 0 {
		go func() {
			ticker := time.NewTicker(s.SweepEvery)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if _, err := s.Sweeper.Sweep(); err != nil {
						logger.Warn("Scheduled sweep failed", zap.Error(err))
					}
				case <-s.stop:
					return
				}
			}
		}()
	}

	if s.CleanAt != "" {
		go func() {
			for {
				wait, err := untilNext(s.CleanAt, time.Now())
				if err != nil {
					logger.Warn("Invalid daily clean slot, daily pass disabled",
						zap.String("clean_at", s.CleanAt))
					return
				}
				timer := time.NewTimer(wait)
				select {
				case <-timer.C:
					s.runDaily(logger)
				case <-s.stop:
					timer.Stop()
					return
				}
			}
		}()
	}
}

func (s *Scheduler) runDaily(logger *zap.Logger) {
	if _, err := s.Sweeper.Sweep(); err != nil {
		logger.Warn("Daily sweep failed", zap.Error(err))
	}
	if s.ReconcileDaily && s.Reconciler != nil {
		if _, err := s.Reconciler.Run(); err != nil {
			logger.Warn("Daily reconciliation failed", zap.Error(err))
		}
	}
}

// Stop terminates the timer goroutines. Safe to call once after Start.
func (s *Scheduler) Stop() {
	if s.stop != nil {
		close(s.stop)
	}
}

// untilNext computes the delay until the next wall-clock occurrence of an
// "HH:MM" slot.
func untilNext(hhmm string, now time.Time) (time.Duration, error) {
	var h, m int
	if _, err := fmt.Sscanf(hhmm, "%d:%d", &h, &m); err != nil {
		return 0, err
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("slot out of range: %s", hhmm)
	}
	next := time.Date(now.Year(), now.Month(), now.Day(), h, m, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now), nil
}
