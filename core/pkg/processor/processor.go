// Package processor provides the command processor façade: the single
// entry point application code calls to dispatch a Request, in place of
// wiring pipeline.Builder, mediator.Mediator, and scheduler.Scheduler
// directly, the same role app.App plays over handler.Registry in the
// teacher.
package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/madcok-co/conduit/core/pkg/contracts"
	"github.com/madcok-co/conduit/core/pkg/message"
	"github.com/madcok-co/conduit/core/pkg/mediator"
	"github.com/madcok-co/conduit/core/pkg/pipeline"
	"github.com/madcok-co/conduit/core/pkg/registry"
	"github.com/madcok-co/conduit/core/pkg/request"
	"github.com/madcok-co/conduit/core/pkg/rterrors"
	"github.com/madcok-co/conduit/core/pkg/scheduler"
	"github.com/madcok-co/conduit/core/pkg/transform"
)

// Processor is the façade over the dispatch runtime: Send routes a
// Command to its single handler, Publish fans an Event out to every
// registered handler and aggregates their errors, Post wraps a Document
// and deposits it in the outbox, and DepositPost lets a caller supply its
// own transaction handle so the deposit joins a business write.
type Processor struct {
	subscribers *registry.SubscriberRegistry
	policies    *registry.PolicyRegistry
	producers   *registry.ProducerRegistry
	builder     *pipeline.Builder
	mediator    *mediator.Mediator
	transforms  *transform.Cache
	scheduler   *scheduler.Scheduler
	logger      contracts.Logger

	shutdownHooks []func(context.Context) error
}

// Config groups the collaborators a Processor is built from.
type Config struct {
	Subscribers *registry.SubscriberRegistry
	Policies    *registry.PolicyRegistry
	Producers   *registry.ProducerRegistry
	Builder     *pipeline.Builder
	Mediator    *mediator.Mediator
	Transforms  *transform.Cache
	Logger      contracts.Logger
}

// New builds a Processor. The scheduler is attached separately via
// AttachScheduler once constructed, since the scheduler's Backend needs a
// Fire callback that closes over the Processor itself.
func New(cfg Config) *Processor {
	return &Processor{
		subscribers: cfg.Subscribers,
		policies:    cfg.Policies,
		producers:   cfg.Producers,
		builder:     cfg.Builder,
		mediator:    cfg.Mediator,
		transforms:  cfg.Transforms,
		logger:      cfg.Logger,
	}
}

// AttachScheduler installs the scheduler; see Fire for how scheduled
// entries replay into Send/Publish/Post.
func (p *Processor) AttachScheduler(s *scheduler.Scheduler) {
	p.scheduler = s
}

// Fire is the callback a scheduler.Backend invokes when a scheduled
// request becomes due. Per the resolved Open Question: scheduled
// Send/Publish dispatch directly in-process and never touch the outbox;
// scheduled Post goes through the same wrap+deposit+mediator path as a
// non-scheduled Post.
func (p *Processor) Fire(ctx context.Context, fr scheduler.FireSchedulerRequest) error {
	switch fr.Kind {
	case scheduler.DispatchSend:
		_, err := p.Send(ctx, fr.Request)
		return err
	case scheduler.DispatchPublish:
		return p.Publish(ctx, fr.Request)
	case scheduler.DispatchPost:
		_, err := p.Post(ctx, fr.Request)
		return err
	default:
		return rterrors.NewConfigurationError(fmt.Sprintf("unknown scheduled dispatch kind %q", fr.Kind), nil)
	}
}

// Schedule defers req's dispatch until due, replayed as kind when it
// fires.
func (p *Processor) Schedule(due time.Time, kind scheduler.DispatchKind, req *request.Request) (string, error) {
	if p.scheduler == nil {
		return "", rterrors.NewConfigurationError("no scheduler attached to processor", nil)
	}
	return p.scheduler.Schedule(due, kind, req)
}

// Reschedule moves a previously scheduled entry to a new due time.
func (p *Processor) Reschedule(id string, due time.Time) error {
	if p.scheduler == nil {
		return rterrors.NewConfigurationError("no scheduler attached to processor", nil)
	}
	return p.scheduler.Reschedule(id, due)
}

// CancelSchedule removes a previously scheduled entry before it fires.
func (p *Processor) CancelSchedule(id string) error {
	if p.scheduler == nil {
		return rterrors.NewConfigurationError("no scheduler attached to processor", nil)
	}
	return p.scheduler.Cancel(id)
}

// Send dispatches a Command to its single registered handler. It is a
// configuration error for the request's request type to resolve to more
// than one handler.
func (p *Processor) Send(ctx context.Context, req *request.Request) (any, error) {
	types, err := p.subscribers.HandlerTypes(string(req.RequestType()), registry.One)
	if err != nil {
		return nil, err
	}
	return p.builder.Dispatch(ctx, types[0], req)
}

// Publish fans an Event out to every handler registered for its request
// type, invoking each even if an earlier one fails, and aggregates every
// failure into a single error.
func (p *Processor) Publish(ctx context.Context, req *request.Request) error {
	types, err := p.subscribers.HandlerTypes(string(req.RequestType()), registry.Many)
	if err != nil {
		return err
	}
	var errs []error
	for _, ht := range types {
		if _, dispatchErr := p.builder.Dispatch(ctx, ht, req); dispatchErr != nil {
			errs = append(errs, fmt.Errorf("handler %s: %w", ht, dispatchErr))
		}
	}
	return rterrors.NewAggregateError(errs)
}

// Post wraps req as a Document message and deposits it in the outbox
// using no caller-supplied transaction (the mediator's store runs it
// outside any ambient business transaction), then attempts an immediate
// best-effort clear.
func (p *Processor) Post(ctx context.Context, req *request.Request) ([]string, error) {
	return p.DepositPost(ctx, nil, req)
}

// DepositPost wraps req as a Document message and deposits it in the
// outbox inside txn, the caller's transaction handle, so the deposit is
// durable exactly when the caller's own business write commits. The
// caller is responsible for committing txn; DepositPost then attempts a
// best-effort immediate clear.
func (p *Processor) DepositPost(ctx context.Context, txn any, req *request.Request) ([]string, error) {
	msg, err := transform.WrapRequest(p.transforms, req, req.ID(), message.TypeDocument, req.HandlerType())
	if err != nil {
		return nil, err
	}
	ids, err := p.mediator.Deposit(ctx, txn, req.HandlerType(), msg)
	if err != nil {
		return nil, err
	}
	p.mediator.ClearAfterCommit(ctx, ids)
	return ids, nil
}

// ClearOutbox attempts an immediate dispatch of the given outbox message
// ids, typically called right after the caller's own transaction commits
// when DepositPost's automatic best-effort clear is not wanted (e.g. a
// caller batching several deposits before clearing them together).
func (p *Processor) ClearOutbox(ctx context.Context, ids []string) error {
	return p.mediator.Clear(ctx, ids)
}

// ClearOutstandingFromOutbox is the manual operator action backing
// internal/adminapi's POST /outbox/clear: it re-reads every currently
// Outstanding entry and attempts to clear it, independent of the
// background sweep's schedule.
func (p *Processor) ClearOutstandingFromOutbox(ctx context.Context, olderThan time.Time, limit int) (int, error) {
	ids, err := p.mediator.Outstanding(ctx, olderThan, limit)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	return len(ids), p.mediator.Clear(ctx, ids)
}

// OnShutdown registers a hook Shutdown runs, in registration order.
func (p *Processor) OnShutdown(hook func(context.Context) error) {
	p.shutdownHooks = append(p.shutdownHooks, hook)
}

// Shutdown runs every registered shutdown hook, collecting and
// aggregating failures rather than stopping at the first one, so every
// hook gets a chance to release its resources.
func (p *Processor) Shutdown(ctx context.Context) error {
	var errs []error
	for _, hook := range p.shutdownHooks {
		if err := hook(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return rterrors.NewAggregateError(errs)
}
