package scheduler

import (
	"log"

	"followup-gateway/internal/flow"
	"followup-gateway/internal/followup"

	"github.com/robfig/cron/v3"
)

// Scheduler drives the hourly follow-up tick. Each tick makes sure the stock
// flow configuration exists, then dispatches every journey whose next message
// is due.
type Scheduler struct {
	Engine *followup.Engine
	Flows  *flow.Store

	cron *cron.Cron
}

func New(engine *followup.Engine, flows *flow.Store) *Scheduler {
	return &Scheduler{
		Engine: engine,
		Flows:  flows,
		cron:   cron.New(),
	}
}

// Start registers the hourly tick and launches the cron loop. Errors inside a
// tick are logged, never fatal; the next tick retries naturally because due
// journeys stay due.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc("0 * * * *", s.Tick)
	if err != nil {
		return err
	}
	s.cron.Start()
	log.Println("[Scheduler] Follow-up scheduler started (hourly)")
	return nil
}

// Tick runs one scheduling pass. Exported so an admin endpoint or test can
// force a pass without waiting for the hour.
func (s *Scheduler) Tick() {
	if err := s.Flows.EnsureDefaults(); err != nil {
		log.Printf("[Scheduler] Error ensuring default flow config: %v", err)
	}
	if err := s.Engine.ProcessScheduledMessages(); err != nil {
		log.Printf("[Scheduler] Error processing scheduled messages: %v", err)
	}
}

// Stop halts the cron loop and waits for a running tick to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
