// Package decorators provides the built-in pipeline middleware: retry,
// circuit breaker (composed inner-retry/outer-breaker), inbox
// idempotency, outbox deposit, logging, validation, and fallback —
// ported from core/pkg/middleware and core/pkg/resilience and
// generalized from an HTTP *context.Context to the pipeline's
// context.Context + *request.Request shape.
package decorators

import (
	"context"
	"fmt"

	"github.com/madcok-co/conduit/core/pkg/contracts"
	"github.com/madcok-co/conduit/core/pkg/inbox"
	"github.com/madcok-co/conduit/core/pkg/mediator"
	"github.com/madcok-co/conduit/core/pkg/message"
	"github.com/madcok-co/conduit/core/pkg/pipeline"
	"github.com/madcok-co/conduit/core/pkg/registry"
	"github.com/madcok-co/conduit/core/pkg/request"
	"github.com/madcok-co/conduit/core/pkg/rterrors"
	"github.com/madcok-co/conduit/core/pkg/transform"
)

// Retry wraps next in the named PolicyRegistry entry's retryer only
// (no breaker). Use CircuitBreaker instead when a breaker should also
// apply — composing both decorators independently would retry against an
// already-open breaker on every attempt instead of once, which is the
// exact anti-pattern spec.md's retry-inside-breaker design note warns
// against.
func Retry(policies *registry.PolicyRegistry, policyName string) pipeline.Middleware {
	return func(next pipeline.Executor) pipeline.Executor {
		return func(ctx context.Context, req *request.Request) (any, error) {
			policy := policies.Get(policyName)
			if policy == nil {
				return nil, rterrors.NewConfigurationError(
					fmt.Sprintf("policy %q not registered", policyName), nil)
			}
			var result any
			err := policy.ExecuteWithContext(ctx, func(ctx context.Context) error {
				var innerErr error
				result, innerErr = next(ctx, req)
				return innerErr
			})
			return result, err
		}
	}
}

// CircuitBreaker is Retry's composed form: it resolves the same named
// policy (which carries both a Retryer and a CircuitBreaker for the
// CIRCUITBREAKER/CIRCUITBREAKERASYNC well-known names) and executes
// retry-inside-breaker via Policy.ExecuteWithContext. Functionally
// identical to Retry for a policy that has a breaker configured — kept
// as a distinct decorator name so chains read as declaring a breaker is
// in effect, matching the teacher's preference for explicit
// `circuitbreaker.ExecuteWithRetry` call sites over implicit composition.
func CircuitBreaker(policies *registry.PolicyRegistry, policyName string) pipeline.Middleware {
	return Retry(policies, policyName)
}

// Inbox checks contextKey's idempotency record for the request id before
// invoking next. On a replay, it applies violation's policy: Warn logs
// and still invokes next, Throw raises rterrors.OnceOnlyViolation, Skip
// returns (nil, nil) without invoking next.
func Inbox(store inbox.Store, contextKey string, violation inbox.Violation, logger contracts.Logger) pipeline.Middleware {
	return func(next pipeline.Executor) pipeline.Executor {
		return func(ctx context.Context, req *request.Request) (any, error) {
			body, err := marshalBody(req.Body)
			if err != nil {
				return nil, rterrors.NewMessageMappingError("wrap", err)
			}
			inserted, err := store.Add(ctx, inbox.Entry{
				RequestID:   req.ID(),
				ContextKey:  contextKey,
				RequestBody: body,
			})
			if err != nil {
				return nil, fmt.Errorf("inbox decorator: %w", err)
			}
			if inserted {
				return next(ctx, req)
			}

			switch violation {
			case inbox.Throw:
				return nil, &rterrors.OnceOnlyViolation{RequestID: req.ID(), ContextKey: contextKey}
			case inbox.Skip:
				return nil, nil
			default:
				if logger != nil {
					logger.Warn("inbox: duplicate request re-handled", "request_id", req.ID(), "context_key", contextKey)
				}
				return next(ctx, req)
			}
		}
	}
}

func marshalBody(body any) ([]byte, error) {
	switch v := body.(type) {
	case []byte:
		return v, nil
	case nil:
		return nil, nil
	default:
		return fmt.Appendf(nil, "%v", v), nil
	}
}

// OutboxProducerConfig binds the transform cache and mediator an
// OutboxProducer decorator needs to wrap a handler's own outbound
// messages through the outbox instead of sending them directly.
type OutboxProducerConfig struct {
	Transforms *transform.Cache
	Mediator   *mediator.Mediator
	// RoutingKey resolves the producer/policy this handler's output is
	// sent through, for handler results that themselves represent an
	// outbound request rather than a direct return value.
	RoutingKey string
	// ResultRequestType is not read by OutboxProducer: a handler result
	// that is not itself a *request.Request passes through without a
	// deposit.
	ResultRequestType string
}

// OutboxProducer wraps next: after the handler returns its result, if
// the result is a *request.Request, it is wrapped and deposited into the
// outbox (inside the transaction handle txnFromContext returns for ctx;
// with a nil txnFromContext the deposit uses no transaction) and
// cleared best-effort after next returns, rather than sent directly.
// Handlers that do not themselves produce outbound messages should not
// use this decorator.
func OutboxProducer(cfg OutboxProducerConfig, txnFromContext func(context.Context) any) pipeline.Middleware {
	return func(next pipeline.Executor) pipeline.Executor {
		return func(ctx context.Context, req *request.Request) (any, error) {
			result, err := next(ctx, req)
			if err != nil {
				return result, err
			}
			outReq, ok := result.(*request.Request)
			if !ok {
				return result, nil
			}

			msg, err := transform.WrapRequest(cfg.Transforms, outReq, outReq.ID(), message.TypeDocument, cfg.RoutingKey)
			if err != nil {
				return result, err
			}

			var txn any
			if txnFromContext != nil {
				txn = txnFromContext(ctx)
			}
			ids, err := cfg.Mediator.Deposit(ctx, txn, req.HandlerType(), msg)
			if err != nil {
				return result, err
			}
			cfg.Mediator.ClearAfterCommit(ctx, ids)
			return result, nil
		}
	}
}

// Logging wraps next with a start/end log line at Debug, and an Error
// log line (with the error attached) if next fails.
func Logging(logger contracts.Logger) pipeline.Middleware {
	return func(next pipeline.Executor) pipeline.Executor {
		return func(ctx context.Context, req *request.Request) (any, error) {
			logger.Debug("dispatching", "request_id", req.ID(), "handler_type", req.HandlerType())
			result, err := next(ctx, req)
			if err != nil {
				logger.WithError(err).Error("dispatch failed", "request_id", req.ID(), "handler_type", req.HandlerType())
				return result, err
			}
			logger.Debug("dispatched", "request_id", req.ID(), "handler_type", req.HandlerType())
			return result, nil
		}
	}
}

// Validation runs contracts.Validator.Validate on req.Body before
// invoking next, short-circuiting with the validation error on failure.
func Validation(validator contracts.Validator) pipeline.Middleware {
	return func(next pipeline.Executor) pipeline.Executor {
		return func(ctx context.Context, req *request.Request) (any, error) {
			if err := validator.Validate(req.Body); err != nil {
				return nil, fmt.Errorf("validation failed for %s: %w", req.HandlerType(), err)
			}
			return next(ctx, req)
		}
	}
}

// Fallback invokes next, and on failure invokes fallback with the
// original request and error to compute a substitute result.
func Fallback(fallback func(ctx context.Context, req *request.Request, err error) (any, error)) pipeline.Middleware {
	return func(next pipeline.Executor) pipeline.Executor {
		return func(ctx context.Context, req *request.Request) (any, error) {
			result, err := next(ctx, req)
			if err == nil {
				return result, nil
			}
			return fallback(ctx, req, err)
		}
	}
}
