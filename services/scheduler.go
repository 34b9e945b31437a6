// services/scheduler.go
package services

import (
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartLifecycleScheduler drives the bulk sweeps once a minute. The wall
// clock is read exactly here, at the scheduling boundary, and handed to the
// sweeps as an explicit `now` — the sweeps themselves never touch the clock.
func (s *SweepService) StartLifecycleScheduler() (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			now := time.Now().UTC()

			if result, err := s.LockSweep(now); err != nil {
				log.Printf("❌ [SWEEP] lock sweep failed: %v", err)
			} else if result.Count > 0 {
				log.Printf("✅ [SWEEP] locked %d contest(s): %v", result.Count, result.ChangedIDs)
			}

			if result, err := s.StartSweep(now); err != nil {
				log.Printf("❌ [SWEEP] start sweep failed: %v", err)
			} else if result.Count > 0 {
				log.Printf("✅ [SWEEP] set %d contest(s) live: %v", result.Count, result.ChangedIDs)
			}

			if result, err := s.SettlementSweep(now); err != nil {
				log.Printf("❌ [SWEEP] settlement sweep failed: %v", err)
			} else if result.Count > 0 {
				log.Printf("✅ [SWEEP] completed %d contest(s) via settlement: %v", result.Count, result.ChangedIDs)
			}
		}),
	)
	if err != nil {
		return nil, err
	}

	sched.Start()
	return sched, nil
}
