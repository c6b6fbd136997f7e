// services/scheduler.go
package services

import (
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartPayoutScheduler runs daily batch generation: every approved affiliate
// gets a payout for the previous calendar month. Generation is idempotent,
// so re-running a period that is already allocated produces nothing.
func (s *PayoutService) StartPayoutScheduler(affiliates *AffiliateService) {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(24*time.Hour),
		gocron.NewTask(func() {
			periodStart, periodEnd := previousMonth(time.Now())

			approved, err := affiliates.ListApproved()
			if err != nil {
				log.Printf("❌ [Scheduler] failed to list affiliates: %v", err)
				return
			}

			for _, aff := range approved {
				payout, err := s.Generate(aff.ID, periodStart, periodEnd)
				if err != nil {
					log.Printf("❌ [Scheduler] payout generation failed for %s: %v", aff.ID, err)
					continue
				}
				if payout != nil {
					log.Printf("✅ [Scheduler] generated payout %s for %s: %d cents", payout.ID, aff.ID, payout.TotalCents)
				}
			}
		}),
	)
}

// previousMonth returns the [start, end) bounds of the month before now.
func previousMonth(now time.Time) (time.Time, time.Time) {
	end := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	start := end.AddDate(0, -1, 0)
	return start, end
}
