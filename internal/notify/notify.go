// Package notify delivers customer email and operator messages.
package notify

import (
	"context"
	"errors"

	"venuebook/internal/metrics"

	"github.com/rs/zerolog"
)

// Email templates.
const (
	TemplateBookingConfirmed = "booking_confirmed"
	TemplateBalanceDue       = "balance_due"
	TemplateBookingCancelled = "booking_cancelled"
)

// ErrNotConfigured is returned by a channel that has no transport set up.
var ErrNotConfigured = errors.New("notification channel not configured")

// Message is a templated email.
type Message struct {
	To       string         `json:"to"`
	Template string         `json:"template"`
	Data     map[string]any `json:"data,omitempty"`
}

// EmailSender sends templated email.
type EmailSender interface {
	SendEmail(ctx context.Context, msg Message) error
}

// OpsSender sends a plain text message to the operations team.
type OpsSender interface {
	SendOps(ctx context.Context, text string) error
}

// Router dispatches to the configured channels and counts outcomes. A nil
// channel yields ErrNotConfigured so job handlers can decide how to treat it.
type Router struct {
	email  EmailSender
	ops    OpsSender
	logger zerolog.Logger
}

func NewRouter(email EmailSender, ops OpsSender, logger *zerolog.Logger) *Router {
	return &Router{
		email:  email,
		ops:    ops,
		logger: logger.With().Str("component", "notify").Logger(),
	}
}

func (r *Router) SendEmail(ctx context.Context, msg Message) error {
	if r.email == nil {
		return ErrNotConfigured
	}
	err := r.email.SendEmail(ctx, msg)
	r.observe("email", err)
	if err != nil {
		r.logger.Warn().Err(err).Str("template", msg.Template).Msg("Email not sent")
		return err
	}
	r.logger.Debug().Str("template", msg.Template).Msg("Email sent")
	return nil
}

func (r *Router) SendOps(ctx context.Context, text string) error {
	if r.ops == nil {
		return ErrNotConfigured
	}
	err := r.ops.SendOps(ctx, text)
	r.observe("telegram", err)
	if err != nil {
		r.logger.Warn().Err(err).Msg("Ops message not sent")
	}
	return err
}

func (r *Router) observe(channel string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.IncNotification(channel, result)
}
