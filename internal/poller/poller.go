// Package poller waits for an STK push to settle by querying the payment
// status endpoint on a fixed interval.
package poller

import (
	"context"
	"log/slog"
	"time"

	"github.com/herderhub/herderhub-api/internal/apperr"
	"github.com/herderhub/herderhub-api/internal/models"
)

const (
	DefaultInterval    = 3 * time.Second
	DefaultMaxAttempts = 30
)

type State string

const (
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateTimedOut  State = "timed_out"
)

type StatusFetcher interface {
	Status(ctx context.Context, checkoutRequestID string) (models.PaymentStatus, error)
}

type TimeoutReporter interface {
	ReportTimeout(ctx context.Context, transactionID string) (models.Transaction, error)
}

type Result struct {
	State    State
	Status   models.PaymentStatus
	Attempts int
	// Message is suitable for showing to the buyer.
	Message string
}

type Poller struct {
	Fetcher     StatusFetcher
	Reporter    TimeoutReporter
	Interval    time.Duration
	MaxAttempts int
	// OnAttempt, when set, is called after every fetch.
	OnAttempt func(attempt int, st models.PaymentStatus, err error)
	Logger    *slog.Logger
}

func New(f StatusFetcher, r TimeoutReporter) *Poller {
	return &Poller{
		Fetcher:     f,
		Reporter:    r,
		Interval:    DefaultInterval,
		MaxAttempts: DefaultMaxAttempts,
		Logger:      slog.Default(),
	}
}

// Run fetches immediately and then once per Interval until the payment is
// settled or MaxAttempts fetches were made. Fetch errors count as attempts.
// On exhaustion the transaction is reported as a client timeout. Cancelling
// ctx stops the loop with ctx.Err() and no further requests.
func (p *Poller) Run(ctx context.Context, transactionID, checkoutRequestID string) (Result, error) {
	interval, maxAttempts := p.Interval, p.MaxAttempts
	if interval <= 0 {
		interval = DefaultInterval
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	log := p.logger().With("transaction_id", transactionID, "checkout_request_id", checkoutRequestID)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last models.PaymentStatus
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return Result{Status: last, Attempts: attempt - 1}, ctx.Err()
			case <-ticker.C:
			}
		}
		if err := ctx.Err(); err != nil {
			return Result{Status: last, Attempts: attempt - 1}, err
		}

		st, err := p.Fetcher.Status(ctx, checkoutRequestID)
		if p.OnAttempt != nil {
			p.OnAttempt(attempt, st, err)
		}
		if err != nil {
			if ctx.Err() != nil {
				return Result{Status: last, Attempts: attempt}, ctx.Err()
			}
			log.DebugContext(ctx, "status fetch failed", "attempt", attempt, "err", err)
			continue
		}
		last = st
		if res, done := settled(st); done {
			res.Attempts = attempt
			return res, nil
		}
	}

	log.InfoContext(ctx, "payment confirmation timed out", "attempts", maxAttempts)
	res := Result{State: StateTimedOut, Status: last, Attempts: maxAttempts, Message: apperr.MsgTimedOut}
	if p.Reporter == nil {
		return res, nil
	}
	tx, err := p.Reporter.ReportTimeout(ctx, transactionID)
	if err != nil {
		return res, err
	}
	// A callback may have settled the transaction between the last fetch
	// and the report; the server keeps the first settlement.
	if tx.FailureReason != nil && *tx.FailureReason == models.ReasonClientTimeout {
		return res, nil
	}
	if final, done := settled(models.NewPaymentStatus(tx)); done {
		final.Attempts = maxAttempts
		return final, nil
	}
	return res, nil
}

func settled(st models.PaymentStatus) (Result, bool) {
	switch st.Status {
	case models.DisplayCompleted:
		return Result{State: StateCompleted, Status: st, Message: "Payment received. Receipt " + st.MpesaReceiptNumber + "."}, true
	case models.DisplayFailed, models.DisplayCancelled:
		msg := st.FailureReason
		if msg == "" {
			msg = apperr.MsgGeneric
		}
		return Result{State: StateFailed, Status: st, Message: msg}, true
	}
	return Result{}, false
}

func (p *Poller) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}
