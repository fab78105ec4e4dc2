// Package bus routes commands and events to their handlers. Handling is a
// FIFO drain: the initial message is processed and any events queued by its
// handler are appended and processed in order, breadth first, until the queue
// is empty.
package bus

import (
	"context"
	"errors"
	"fmt"

	"github.com/spraakbanken/karp-backend/internal/logging"
	"github.com/spraakbanken/karp-backend/internal/server/domain"
)

// Message is either a domain.Command or a domain.Event.
type Message any

// Emitter collects follow-up events queued by a handler. The bus appends
// them to its queue after the handler returns.
type Emitter struct {
	pending []domain.Event
}

// Queue schedules an event for dispatch after the current handler finishes.
func (e *Emitter) Queue(evt domain.Event) {
	e.pending = append(e.pending, evt)
}

// CommandHandler processes one command. Exactly one handler serves each
// command kind and its error aborts the whole drain.
type CommandHandler func(ctx context.Context, em *Emitter, cmd domain.Command) error

// EventHandler reacts to one event. Several handlers may serve the same event
// kind; a failing handler does not stop the others.
type EventHandler func(ctx context.Context, em *Emitter, evt domain.Event) error

// MessageBus dispatches messages to registered handlers.
type MessageBus struct {
	log              logging.Logger
	commandHandlers  map[domain.CommandKind]CommandHandler
	eventHandlers    map[domain.EventKind][]EventHandler
	raiseOnAllErrors bool
}

// Option configures a MessageBus.
type Option func(*MessageBus)

// WithRaiseOnAllErrors makes Handle return event handler errors instead of
// only logging them. Commands queued after the failing event still run; the
// collected errors are joined and returned once the queue is drained.
func WithRaiseOnAllErrors() Option {
	return func(b *MessageBus) { b.raiseOnAllErrors = true }
}

func NewMessageBus(log logging.Logger, opts ...Option) *MessageBus {
	b := &MessageBus{
		log:             log,
		commandHandlers: make(map[domain.CommandKind]CommandHandler),
		eventHandlers:   make(map[domain.EventKind][]EventHandler),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// RegisterCommand binds the single handler for a command kind. Registering a
// second handler for the same kind is a wiring mistake and panics.
func (b *MessageBus) RegisterCommand(kind domain.CommandKind, h CommandHandler) {
	if _, ok := b.commandHandlers[kind]; ok {
		panic(fmt.Sprintf("bus: duplicate handler for command %s", kind))
	}
	b.commandHandlers[kind] = h
}

// RegisterEvent appends a handler for an event kind.
func (b *MessageBus) RegisterEvent(kind domain.EventKind, h EventHandler) {
	b.eventHandlers[kind] = append(b.eventHandlers[kind], h)
}

// Handle processes msg and every event its handlers queue, in FIFO order.
//
// A command handler error aborts the drain and is returned. Event handler
// errors are logged and suppressed so one failing consumer cannot block the
// others; in raise-on-all-errors mode they are collected and returned joined
// after the drain completes.
func (b *MessageBus) Handle(ctx context.Context, msg Message) error {
	queue := []Message{msg}
	var eventErrs []error

	for len(queue) > 0 {
		m := queue[0]
		queue = queue[1:]

		switch t := m.(type) {
		case domain.Command:
			handler, ok := b.commandHandlers[t.CommandKind()]
			if !ok {
				return fmt.Errorf("bus: no handler registered for command %s", t.CommandKind())
			}
			em := &Emitter{}
			if err := handler(ctx, em, t); err != nil {
				return fmt.Errorf("handling command %s: %w", t.CommandKind(), err)
			}
			queue = append(queue, toMessages(em.pending)...)

		case domain.Event:
			for _, handler := range b.eventHandlers[t.EventKind()] {
				em := &Emitter{}
				if err := handler(ctx, em, t); err != nil {
					b.log.Error(ctx, "event handler failed",
						"event", t.EventKind().String(), "error", err)
					eventErrs = append(eventErrs, fmt.Errorf("handling event %s: %w", t.EventKind(), err))
					continue
				}
				queue = append(queue, toMessages(em.pending)...)
			}

		default:
			return fmt.Errorf("bus: message %T is neither command nor event", m)
		}
	}

	if b.raiseOnAllErrors && len(eventErrs) > 0 {
		return errors.Join(eventErrs...)
	}
	return nil
}

func toMessages(events []domain.Event) []Message {
	out := make([]Message, len(events))
	for i, e := range events {
		out[i] = e
	}
	return out
}
