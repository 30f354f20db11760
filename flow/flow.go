// Package flow wires the ordering core into the message-processing
// pipeline: quota check, session resolution, prompt assembly, order
// extraction, payment-link creation and turn persistence.
//
// Text generation, payment links and outbound delivery are external
// collaborators injected as interfaces; this package never talks to a
// vendor SDK directly.
package flow

import (
	"context"
	"errors"
	"fmt"

	"github.com/camperolabs/ordering"
	"github.com/camperolabs/ordering/order"
	"github.com/camperolabs/ordering/parse"
	"github.com/camperolabs/ordering/quota"
	"github.com/camperolabs/ordering/session"
)

// Completer generates the assistant's reply for a prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// PaymentLinker creates a payment link for an order aggregate.
type PaymentLinker interface {
	CreateLink(ctx context.Context, o *order.Order) (string, error)
}

// Notifier delivers a message to a user over the transport channel.
type Notifier interface {
	Send(ctx context.Context, userID, body string) error
}

// Archiver records completed order aggregates for reporting.
type Archiver interface {
	InsertOrder(ctx context.Context, o *order.Order) error
}

// Reply is the outcome of processing one inbound message.
type Reply struct {
	SessionID string `json:"session_id"`
	Body      string `json:"bot"`
	// Warning carries the low-allowance notice when the user is close to
	// the quota limit. Callers surface it alongside the reply.
	Warning string `json:"warning,omitempty"`
}

// Processor runs the conversation pipeline.
type Processor struct {
	sessions *session.Manager
	limiter  *quota.Limiter
	complete Completer
	payments PaymentLinker
	notifier Notifier // optional
	archive  Archiver // optional
	prompt   PromptBudget
	logger   ordering.Logger
}

// PromptBudget bounds how much history is replayed into each prompt.
// Zero values disable the respective cap.
type PromptBudget struct {
	MaxMessages int
	MaxTokens   int
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithNotifier wires outbound delivery of replies.
func WithNotifier(n Notifier) ProcessorOption {
	return func(p *Processor) { p.notifier = n }
}

// WithArchiver wires a sink for completed orders.
func WithArchiver(a Archiver) ProcessorOption {
	return func(p *Processor) { p.archive = a }
}

// WithPromptBudget sets the history caps applied before prompt assembly.
func WithPromptBudget(b PromptBudget) ProcessorOption {
	return func(p *Processor) { p.prompt = b }
}

// WithProcessorLogger sets the logger.
func WithProcessorLogger(l ordering.Logger) ProcessorOption {
	return func(p *Processor) { p.logger = l }
}

// NewProcessor creates a Processor.
func NewProcessor(sessions *session.Manager, limiter *quota.Limiter, c Completer, pay PaymentLinker, opts ...ProcessorOption) *Processor {
	p := &Processor{
		sessions: sessions,
		limiter:  limiter,
		complete: c,
		payments: pay,
		logger:   ordering.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessMessage handles one inbound user message end to end and returns
// the assistant's reply.
//
// When the reply carries an order summary, the order is extracted, priced,
// given a payment link, and stored on the session before the turn is
// recorded. A denied quota check surfaces as session.ErrQuotaExceeded with
// Reply.Body already holding the user-facing cooldown text.
func (p *Processor) ProcessMessage(ctx context.Context, userID, message, sessionID string) (Reply, error) {
	decision, err := p.limiter.Check(ctx, userID)
	if err != nil {
		if errors.Is(err, session.ErrQuotaExceeded) {
			return Reply{Body: decision.Message}, err
		}
		return Reply{}, err
	}

	sessionID, err = p.resolveSession(ctx, userID, sessionID)
	if err != nil {
		return Reply{}, err
	}

	history, err := p.sessions.Get(ctx, sessionID)
	if err != nil {
		return Reply{}, err
	}
	if !ValidateHistory(history) {
		return Reply{}, fmt.Errorf("session %s has a corrupted history", sessionID)
	}

	history = TruncateHistory(history, p.prompt.MaxTokens, p.prompt.MaxMessages)
	botReply, err := p.complete.Complete(ctx, BuildPrompt(history, message))
	if err != nil {
		return Reply{}, fmt.Errorf("generate reply: %w", err)
	}

	if parse.ContainsSummary(botReply) {
		botReply, err = p.handleOrderSummary(ctx, sessionID, userID, botReply)
		if err != nil {
			return Reply{}, err
		}
	}

	if err := p.sessions.AppendTurn(ctx, sessionID, userID, message, botReply); err != nil {
		if errors.Is(err, session.ErrQuotaExceeded) {
			return Reply{SessionID: sessionID, Body: quota.BlockedMessage}, err
		}
		return Reply{}, err
	}

	reply := Reply{SessionID: sessionID, Body: botReply, Warning: decision.Message}
	if p.notifier != nil {
		if err := p.notifier.Send(ctx, userID, botReply); err != nil {
			return reply, fmt.Errorf("deliver reply to %s: %w", userID, err)
		}
	}
	return reply, nil
}

// resolveSession finds the caller's session or creates one. A lost
// creation race folds back into the lookup: some concurrent request made
// the session, so it is used.
func (p *Processor) resolveSession(ctx context.Context, userID, sessionID string) (string, error) {
	if sessionID != "" {
		return sessionID, nil
	}
	sessionID, err := p.sessions.GetByUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if sessionID != "" {
		return sessionID, nil
	}

	sessionID, err = p.sessions.Create(ctx, userID)
	if errors.Is(err, session.ErrDuplicateSession) {
		return p.sessions.GetByUser(ctx, userID)
	}
	return sessionID, err
}

// handleOrderSummary extracts the order from a summary reply, prices it,
// stores it with a fresh payment link and appends the link to the reply.
func (p *Processor) handleOrderSummary(ctx context.Context, sessionID, userID, botReply string) (string, error) {
	built, err := order.Build(parse.Message(botReply), userID)
	if err != nil {
		// An empty or invalid summary is the assistant rambling about
		// orders, not a finalized one; pass the reply through untouched.
		p.logger.Warn("summary did not yield an order", map[string]interface{}{
			"session_id": sessionID,
			"error":      err.Error(),
		})
		return botReply, nil
	}

	// A fresh summary supersedes any earlier payment attempt.
	if err := p.sessions.ClearPaymentLink(ctx, sessionID); err != nil {
		return "", err
	}

	link, err := p.payments.CreateLink(ctx, built)
	if err != nil {
		return "", fmt.Errorf("create payment link for order %s: %w", built.OrderID, err)
	}

	if err := p.sessions.SetOrderData(ctx, sessionID, built); err != nil {
		return "", err
	}
	if err := p.sessions.SetPaymentLink(ctx, sessionID, link); err != nil {
		return "", err
	}

	p.logger.Info("order extracted", map[string]interface{}{
		"session_id": sessionID,
		"order_id":   built.OrderID,
		"total":      built.Total,
	})
	return botReply + "\n\nPuedes pagar tu pedido en el siguiente enlace: " + link, nil
}

// RetryPayment reissues the session's order under a fresh order id and
// returns a new payment link. The order contents and the conversation are
// left as they are; the gateway simply sees a new attempt.
func (p *Processor) RetryPayment(ctx context.Context, sessionID string) (string, error) {
	if _, err := p.sessions.RegenerateOrderID(ctx, sessionID); err != nil {
		return "", err
	}
	o, err := p.sessions.OrderData(ctx, sessionID)
	if err != nil {
		return "", err
	}

	link, err := p.payments.CreateLink(ctx, o)
	if err != nil {
		return "", fmt.Errorf("create payment link for order %s: %w", o.OrderID, err)
	}
	if err := p.sessions.SetPaymentLink(ctx, sessionID, link); err != nil {
		return "", err
	}
	return link, nil
}

// CompleteOrder finishes the cycle after payment confirmation: the order
// is archived when a sink is wired, and the session is reset so the same
// user binding rolls into the next order.
func (p *Processor) CompleteOrder(ctx context.Context, sessionID string) error {
	if p.archive != nil {
		o, err := p.sessions.OrderData(ctx, sessionID)
		if err != nil {
			return err
		}
		if o != nil {
			if err := p.archive.InsertOrder(ctx, o); err != nil {
				return fmt.Errorf("archive order %s: %w", o.OrderID, err)
			}
		}
	}
	return p.sessions.Reset(ctx, sessionID)
}
