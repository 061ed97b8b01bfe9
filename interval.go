package smsverify

import (
	"context"
	"time"
)

type IntervalService struct {
	quit []chan struct{}
}

func (is *IntervalService) Stop() {
	for _, q := range is.quit {
		close(q)
	}
	is.quit = nil
}

func (is *IntervalService) every(d time.Duration, fn func()) {
	ticker := time.NewTicker(d)
	quit := make(chan struct{})
	is.quit = append(is.quit, quit)
	go func() {
		for {
			select {
			case <-ticker.C:
				fn()
			case <-quit:
				ticker.Stop()
				return
			}
		}
	}()
}

// startInterval removes expired sessions every Session.PurgeInterval, and checks the
// delivery status of recent sends every DeliveryStatus.UpdateInterval.
func (s *VerifyServer) startInterval() {
	if d, ok := s.parseInterval("session purge", s.Config.Session.PurgeInterval); ok {
		s.Log.Infof("Starting ticker to purge expired sessions every %v", d)
		s.Interval.every(d, s.purgeSessions)
	}

	if !s.Config.DeliveryStatus.Enabled {
		return
	}
	if s.DB.db == nil {
		s.Log.Warnf("Delivery status checks need a DBConnection, not starting them")
		return
	}
	// This may not work well when a code is sent just before the start of the new interval.
	// The message will then likely not have a final state (delivered or failed) yet, and is
	// only checked again if it still falls inside the next period.
	if d, ok := s.parseInterval("delivery status", s.Config.DeliveryStatus.UpdateInterval); ok {
		s.Log.Infof("Starting ticker to check delivery status every %v", d)
		s.Interval.every(d, func() { s.updateStatus(d) })
	}
}

func (s *VerifyServer) parseInterval(what, value string) (time.Duration, bool) {
	if value == "" {
		return 0, false
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		s.Log.Warnf("Could not start %v ticker due to invalid interval %q: %v", what, value, err)
		return 0, false
	}
	return d, true
}

func (s *VerifyServer) purgeSessions() {
	n, err := s.Sessions.PurgeExpired(time.Now())
	if err != nil {
		s.Log.Errorf("Session purge failed: %v", err)
		return
	}
	if n > 0 {
		s.Log.Debugf("Purged %v expired session entries", n)
	}
}

// updateStatus finds all unresolved sends from the last period and retrieves their
// delivery status from the agent that sent them.
func (s *VerifyServer) updateStatus(period time.Duration) {
	pending, err := s.DB.UnresolvedSends(period)
	if err != nil {
		s.Log.Errorf("UpdateStatus failed: %v", err)
		return
	}
	s.resolveSends(context.Background(), &s.DB, pending)
}

type sendStatusUpdater interface {
	UpdateSendStatus(id int64, status, description string) error
}

func (s *VerifyServer) resolveSends(ctx context.Context, db sendStatusUpdater, pending []pendingSend) {
	m := s.NewManager("")
	for _, p := range pending {
		a, err := m.Agent(p.Agent)
		if err != nil {
			s.Log.Warnf("Cannot check delivery of %v: %v", p.MessageID, err)
			continue
		}
		sa, ok := a.(StatusAgent)
		if !ok {
			continue
		}
		status, desc, err := sa.MessageStatus(ctx, p.MessageID)
		if err != nil {
			s.Log.Warnf("Delivery status of %v from %v: %v", p.MessageID, p.Agent, err)
			continue
		}
		if status == Sent {
			continue
		}
		if err = db.UpdateSendStatus(p.ID, status, desc); err != nil {
			s.Log.Errorf("Recording delivery status of %v: %v", p.MessageID, err)
			continue
		}
		s.Metrics.sent(p.Agent, status)
	}
}
