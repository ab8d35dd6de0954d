package notify

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/pelusa-v/dispatchdesk/internal/models"
)

// Sink receives one notice. Sinks are called in order; one failing does not
// stop the rest.
type Sink interface {
	Deliver(ctx context.Context, n models.Notification) error
}

// Dispatcher turns mention and direct-message events into notices and hands
// them to every sink.
type Dispatcher struct {
	sinks []Sink
	now   func() time.Time
}

func NewDispatcher(sinks ...Sink) *Dispatcher {
	return &Dispatcher{sinks: sinks, now: time.Now}
}

func (d *Dispatcher) NotifyMention(ctx context.Context, target, from, text string) error {
	return d.dispatch(ctx, models.Notification{Kind: models.NotifyMention, Target: target, From: from, Text: text})
}

func (d *Dispatcher) NotifyDirectMessage(ctx context.Context, recipient, from, text string) error {
	return d.dispatch(ctx, models.Notification{Kind: models.NotifyDirectMessage, Target: recipient, From: from, Text: text})
}

func (d *Dispatcher) dispatch(ctx context.Context, n models.Notification) error {
	n.CreatedAt = d.now()
	var errs []error
	for _, s := range d.sinks {
		if err := s.Deliver(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log writes every notice to the structured log.
type Log struct {
	log *zap.Logger
}

func NewLog(log *zap.Logger) *Log {
	return &Log{log: log}
}

func (l *Log) Deliver(_ context.Context, n models.Notification) error {
	l.log.Info("notification",
		zap.String("kind", string(n.Kind)),
		zap.String("target", n.Target),
		zap.String("from", n.From),
		zap.Int("text_len", len(n.Text)))
	return nil
}

// Recorder is the part of the store that keeps the notification log.
type Recorder interface {
	RecordNotification(ctx context.Context, n models.Notification) error
}

// Record persists notices so they can be listed later.
type Record struct {
	rec Recorder
}

func NewRecord(rec Recorder) *Record {
	return &Record{rec: rec}
}

func (r *Record) Deliver(ctx context.Context, n models.Notification) error {
	return r.rec.RecordNotification(ctx, n)
}
