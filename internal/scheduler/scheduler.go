// Package scheduler runs the two periodic jobs: polling pending crypto
// transactions for confirmation and sweeping expired subscriptions. Both
// jobs are idempotent and safe to miss or double-run; the engine rejects
// non-PENDING activations and the sweep is constrained on source status.
package scheduler

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/guildpay/guildpay/internal/engine"
	"github.com/guildpay/guildpay/internal/gateway"
	"github.com/guildpay/guildpay/internal/models"
)

const (
	defaultPollInterval = 60 * time.Second
)

// Scheduler drives the crypto poller and the expiry sweep.
type Scheduler struct {
	engine   *engine.Engine
	crypto   gateway.PaymentGateway
	interval time.Duration
}

// New constructs a Scheduler over the engine and the crypto gateway.
func New(eng *engine.Engine, crypto gateway.PaymentGateway) *Scheduler {
	return &Scheduler{
		engine:   eng,
		crypto:   crypto,
		interval: defaultPollInterval,
	}
}

// Start launches both job loops in background goroutines.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go s.runPoller(ctx)
	go s.runSweep(ctx)
	log.Infof("scheduler started (poll interval=%s)", s.interval)
}

func (s *Scheduler) runPoller(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		s.PollPending(ctx)
		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return
		case <-timer.C:
		}
	}
}

func (s *Scheduler) runSweep(ctx context.Context) {
	for {
		timer := time.NewTimer(untilNextMidnightUTC(time.Now().UTC()))
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return
		case <-timer.C:
		}
		if _, errSweep := s.engine.ExpireSweep(ctx); errSweep != nil {
			log.Errorf("expiry sweep failed: %v", errSweep)
		}
	}
}

// PollPending checks every crypto-mode PENDING subscription against the
// processor and applies the resulting transition. Rows are handled one at a
// time so the store lock is yielded between them.
func (s *Scheduler) PollPending(ctx context.Context) {
	pending, errList := s.engine.Store().PendingCryptoSubscriptions(ctx)
	if errList != nil {
		log.Errorf("crypto poller: list pending: %v", errList)
		return
	}

	for i := range pending {
		sub := &pending[i]
		if ctx.Err() != nil {
			return
		}
		s.pollOne(ctx, sub)
	}
}

func (s *Scheduler) pollOne(ctx context.Context, sub *models.Subscription) {
	status, errPoll := s.crypto.PollStatus(ctx, &sub.Owner, sub.ExternalID)
	if errPoll != nil {
		// Transport failures were already retried inside the gateway; leave
		// the row for the next cycle either way.
		log.WithField("external_id", sub.ExternalID).
			Warnf("crypto poller: status check failed: %v", errPoll)
		return
	}

	switch status {
	case gateway.StatusSuccess:
		if errActivate := s.engine.Activate(ctx, sub.ExternalID); errActivate != nil {
			if errors.Is(errActivate, engine.ErrAlreadyActive) {
				log.WithField("external_id", sub.ExternalID).
					Info("crypto poller: pending row dropped, subscriber already active")
				return
			}
			log.WithField("external_id", sub.ExternalID).
				Errorf("crypto poller: activation failed: %v", errActivate)
		}
	case gateway.StatusFailed:
		if errFail := s.engine.FailPending(ctx, sub.ExternalID); errFail != nil {
			log.WithField("external_id", sub.ExternalID).
				Errorf("crypto poller: failure handling failed: %v", errFail)
		}
	case gateway.StatusPending:
		// Still confirming on-chain.
	}
}

// untilNextMidnightUTC returns the wait until the next 00:00 UTC boundary.
func untilNextMidnightUTC(now time.Time) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	return next.Sub(now)
}
