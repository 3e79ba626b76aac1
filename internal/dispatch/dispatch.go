// Package dispatch delivers message batches to subscribers at a bounded rate.
package dispatch

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// DefaultPerMinute is the default global send rate.
const DefaultPerMinute = 50

// Sender delivers a single message to a recipient.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Limiter blocks until the next send is allowed.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Outcome is the delivery result for one recipient.
type Outcome struct {
	ChatID int64
	Sent   int
	Failed int
	// Err is the last error seen for the recipient.
	Err error
}

// Report summarizes a delivery run.
type Report struct {
	Outcomes []Outcome
	Sent     int
	Failed   int
}

// FailedRecipients returns the recipients with at least one failed batch.
func (r Report) FailedRecipients() []int64 {
	var ids []int64
	for _, o := range r.Outcomes {
		if o.Failed > 0 {
			ids = append(ids, o.ChatID)
		}
	}
	return ids
}

// Dispatcher sends every batch to every recipient, spacing consecutive sends
// globally.
type Dispatcher struct {
	sender  Sender
	limiter Limiter
	log     *slog.Logger
}

// Interval returns the spacing between two sends at perMinute messages per minute.
func Interval(perMinute int) time.Duration {
	if perMinute <= 0 {
		perMinute = DefaultPerMinute
	}
	return time.Minute / time.Duration(perMinute)
}

// New creates a Dispatcher limited to perMinute messages per minute.
func New(sender Sender, perMinute int, log *slog.Logger) *Dispatcher {
	return NewWithLimiter(sender, rate.NewLimiter(rate.Every(Interval(perMinute)), 1), log)
}

// NewWithLimiter creates a Dispatcher with a custom limiter (useful for testing).
func NewWithLimiter(sender Sender, limiter Limiter, log *slog.Logger) *Dispatcher {
	return &Dispatcher{sender: sender, limiter: limiter, log: log}
}

// Deliver sends all batches, in order, to each recipient. A failing recipient
// does not stop delivery to the others. When ctx ends, the recipients not yet
// served are marked failed and nothing is retried.
func (d *Dispatcher) Deliver(ctx context.Context, batches []string, recipients []int64) Report {
	var rep Report
	if len(batches) == 0 {
		return rep
	}

	d.log.Info("delivering", "batches", len(batches), "recipients", len(recipients))

	for _, chatID := range recipients {
		out := Outcome{ChatID: chatID}
		for _, text := range batches {
			if err := d.limiter.Wait(ctx); err != nil {
				out.Failed++
				out.Err = err
				continue
			}
			if err := d.sender.Send(ctx, chatID, text); err != nil {
				d.log.Error("send message", "chat_id", chatID, "error", err)
				out.Failed++
				out.Err = err
				continue
			}
			out.Sent++
		}
		rep.Outcomes = append(rep.Outcomes, out)
		rep.Sent += out.Sent
		rep.Failed += out.Failed
	}

	if rep.Failed > 0 {
		d.log.Warn("delivery finished with failures",
			"sent", rep.Sent, "failed", rep.Failed, "recipients", len(rep.FailedRecipients()))
	} else {
		d.log.Info("delivery finished", "sent", rep.Sent)
	}
	return rep
}
