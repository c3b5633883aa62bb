package scheduler

import (
	"context"
	"fmt"
	"log"

	"BetaBasket/internal/model"
	"BetaBasket/internal/session"

	"github.com/robfig/cron/v3"
)

// CatalogRefresher rebuilds the instrument catalog.
type CatalogRefresher interface {
	Refresh(ctx context.Context) []model.Instrument
	Invalidate()
}

// Scheduler manages all cron tasks.
type Scheduler struct {
	Cron     *cron.Cron
	Catalog  CatalogRefresher
	Sessions *session.Registry
	Ctx      context.Context
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, cat CatalogRefresher, sessions *session.Registry) *Scheduler {
	return &Scheduler{
		Cron:     cron.New(cron.WithSeconds()),
		Catalog:  cat,
		Sessions: sessions,
		Ctx:      ctx,
	}
}

// RegisterAll registers the catalog warm-up and the periodic session recompute.
func (s *Scheduler) RegisterAll(catalogCron, recomputeCron string) error {
	if _, err := s.Cron.AddFunc(catalogCron, s.catalogTask); err != nil {
		return fmt.Errorf("register catalog task: %w", err)
	}
	if _, err := s.Cron.AddFunc(recomputeCron, s.recomputeTask); err != nil {
		return fmt.Errorf("register recompute task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Println("[INFO] scheduler started")
}

// Stop stops the cron scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	log.Println("[INFO] scheduler stopped")
}

// RunCatalogNow refreshes the catalog immediately (startup warm-up). A list
// that is still fresh is reused.
func (s *Scheduler) RunCatalogNow() int {
	return s.refreshCatalog()
}

// catalogTask rebuilds the list on every tick, regardless of its age.
func (s *Scheduler) catalogTask() {
	s.Catalog.Invalidate()
	s.refreshCatalog()
}

func (s *Scheduler) refreshCatalog() int {
	list := s.Catalog.Refresh(s.Ctx)
	if len(list) == 0 {
		log.Println("[WARN] catalog refresh returned no instruments")
	}
	return len(list)
}

// RunRecomputeNow refreshes every non-empty session immediately.
func (s *Scheduler) RunRecomputeNow() int {
	return s.recompute()
}

func (s *Scheduler) recomputeTask() {
	s.recompute()
}

func (s *Scheduler) recompute() int {
	n := 0
	s.Sessions.Each(func(sess *session.Session) {
		if s.Ctx.Err() != nil {
			return
		}
		if len(sess.Engine.Selections()) == 0 {
			return
		}
		snap := sess.Engine.Refresh(s.Ctx)
		n++
		if last, ok := snap.Last(); ok {
			log.Printf("[INFO] session %s recomputed: index %.2f (%d points)", sess.ID, last.Value, len(snap.Points))
		} else {
			log.Printf("[WARN] session %s recomputed with no overlapping data", sess.ID)
		}
	})
	return n
}
