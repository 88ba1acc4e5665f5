package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"mercator-hq/tutor/pkg/completion"
	"mercator-hq/tutor/pkg/content"
	"mercator-hq/tutor/pkg/limits/ratelimit"
	"mercator-hq/tutor/pkg/resilience"
	"mercator-hq/tutor/pkg/session"
	"mercator-hq/tutor/pkg/telemetry/logging"
	"mercator-hq/tutor/pkg/telemetry/tracing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// DefaultScope prefixes rate-limit identifiers when a request names none.
const DefaultScope = "chat"

// Completer produces an assistant reply from the conversation history.
type Completer interface {
	Complete(ctx context.Context, history []session.Message, prompt string) (completion.Reply, error)
}

// Config configures a Service.
type Config struct {
	// HistorySize is how many recent messages are sent to the completer.
	// Default: 20
	HistorySize int

	// MaxInFlight caps concurrent completions; turns over the cap are
	// served from fallback content. Zero disables the cap.
	MaxInFlight int
}

// Deps are the components a Service composes.
type Deps struct {
	Sessions     *session.Manager
	Limiter      *ratelimit.Limiter
	Orchestrator *content.Orchestrator[completion.Reply]
	Breaker      *resilience.CircuitBreaker
	Completer    Completer

	// Tiers resolves per-owner limits. Nil applies the limiter defaults.
	Tiers ratelimit.TierResolver
}

// TurnRequest is one learner message.
type TurnRequest struct {
	// OwnerID is the authenticated learner. Either OwnerID or ClientKey is required.
	OwnerID string

	// SessionID continues an existing session. Empty, unknown or expired
	// ids start a new one.
	SessionID string

	// Scope namespaces the rate limit (e.g., "chat", "lesson").
	// Default: DefaultScope
	Scope string

	// ClientKey identifies anonymous callers (usually the client IP).
	ClientKey string

	// Context is used when a new session is opened.
	Context session.Context

	Message string
}

// TurnResult is the outcome of a successful turn.
type TurnResult struct {
	SessionID string

	Reply completion.Reply

	// Source tells whether the reply came from the model, the cache or the
	// static defaults.
	Source content.Source

	IsFallback bool

	// Attempts is how many times the completer was invoked. Zero when the
	// breaker rejected the call or capacity was exhausted.
	Attempts int

	// Degraded is true when the reply is fallback content or the rate limit
	// was decided by the local fallback.
	Degraded bool

	RateLimit *ratelimit.Decision

	// NewSession is true when this turn opened the session.
	NewSession bool
}

// Service runs chat turns through the rate limiter, the session manager
// and the fallback orchestrator.
type Service struct {
	deps     Deps
	config   Config
	inflight *ratelimit.InFlightLimiter
	logger   *slog.Logger
}

// NewService creates a conversation service.
func NewService(deps Deps, config Config, logger *slog.Logger) (*Service, error) {
	switch {
	case deps.Sessions == nil:
		return nil, fmt.Errorf("session manager is required")
	case deps.Limiter == nil:
		return nil, fmt.Errorf("rate limiter is required")
	case deps.Orchestrator == nil:
		return nil, fmt.Errorf("content orchestrator is required")
	case deps.Breaker == nil:
		return nil, fmt.Errorf("circuit breaker is required")
	case deps.Completer == nil:
		return nil, fmt.Errorf("completer is required")
	}
	if config.HistorySize <= 0 {
		config.HistorySize = 20
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		deps:     deps,
		config:   config,
		inflight: ratelimit.NewInFlightLimiter(config.MaxInFlight),
		logger:   logger.With("component", "conversation"),
	}, nil
}

// Turn handles one learner message end to end.
//
// Errors are returned only for invalid requests (*ValidationError), quota
// denials (*RateLimitedError) and a ctx that ended before the rate limit was
// decided. Upstream and storage failures are absorbed into a fallback reply
// flagged in the result.
func (s *Service) Turn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	ctx, span := otel.Tracer(tracing.InstrumentationName).Start(ctx, "conversation.turn")
	defer span.End()

	if err := validateTurn(req); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	identifier := RateLimitIdentifier(req.Scope, req.OwnerID, req.ClientKey)
	span.SetAttributes(
		attribute.String(tracing.AttrOwner, req.OwnerID),
		attribute.String(tracing.AttrScope, identifier),
	)

	decision, err := s.checkLimit(ctx, identifier, req.OwnerID)
	if err != nil {
		tracing.SetError(span, err)
		return nil, err
	}
	tracing.SetRateLimitAttributes(span, decision.Allowed, decision.Remaining, decision.Degraded)
	if !decision.Allowed {
		s.logger.Info("turn rate limited",
			"identifier", identifier,
			"retry_after", decision.RetryAfter,
		)
		return nil, &RateLimitedError{
			Decision: decision,
			Quota: &resilience.QuotaError{
				Identifier: identifier,
				Limit:      decision.Limit,
				RetryAfter: decision.RetryAfter,
			},
		}
	}

	sess, isNew := s.openSession(req)
	ctx = logging.WithSession(logging.WithOwner(ctx, req.OwnerID), sess.ID)

	history := sess.Messages
	if len(history) > s.config.HistorySize {
		history = history[len(history)-s.config.HistorySize:]
	}

	userMsg := session.Message{Role: session.RoleUser, Content: req.Message}
	if _, ok := s.deps.Sessions.AddMessage(sess.ID, userMsg); !ok {
		// Cleared or expired between lookup and append.
		sess = s.deps.Sessions.CreateSession(req.OwnerID, sess.Context)
		isNew = true
		history = nil
		s.deps.Sessions.AddMessage(sess.ID, userMsg)
	}

	attempts := 0
	generate := func(ctx context.Context) (completion.Reply, error) {
		release, ok := s.inflight.TryAcquire()
		if !ok {
			return completion.Reply{}, ErrOverloaded
		}
		defer release()

		res, err := resilience.Execute(ctx, s.deps.Breaker, func(ctx context.Context) (completion.Reply, error) {
			return s.deps.Completer.Complete(ctx, history, req.Message)
		})
		attempts = res.Attempts
		return res.Value, err
	}

	result := s.deps.Orchestrator.GetWithFallback(ctx, ReplyCacheKey(sess.Context), generate)
	tracing.SetContentAttributes(span, string(result.Source), result.IsFallback, attempts)
	span.SetAttributes(
		attribute.String(tracing.AttrSession, sess.ID),
		attribute.Bool(tracing.AttrNewSession, isNew),
		attribute.Bool(tracing.AttrDegraded, result.IsFallback || decision.Degraded),
	)

	assistantMsg := session.Message{
		Role:    session.RoleAssistant,
		Content: result.Content.Text,
		Metadata: map[string]any{
			"source": string(result.Source),
		},
	}
	if _, ok := s.deps.Sessions.AddMessage(sess.ID, assistantMsg); !ok {
		s.logger.Warn("session ended before reply was recorded", "session_id", sess.ID)
	}

	return &TurnResult{
		SessionID:  sess.ID,
		Reply:      result.Content,
		Source:     result.Source,
		IsFallback: result.IsFallback,
		Attempts:   attempts,
		Degraded:   result.IsFallback || decision.Degraded,
		RateLimit:  decision,
		NewSession: isNew,
	}, nil
}

// EndConversation deletes every session of ownerID and returns the count.
func (s *Service) EndConversation(ownerID string) int {
	n := s.deps.Sessions.ClearSessionsForOwner(ownerID)
	s.logger.Info("conversation ended", "owner_id", ownerID, "sessions", n)
	return n
}

// InFlight returns the number of completions currently running.
func (s *Service) InFlight() int64 {
	return s.inflight.InFlight()
}

func (s *Service) checkLimit(ctx context.Context, identifier, ownerID string) (*ratelimit.Decision, error) {
	if s.deps.Tiers != nil {
		limit, window, err := s.deps.Tiers.LimitFor(ctx, ownerID)
		if err != nil {
			s.logger.Warn("tier lookup failed, using default limit", "owner_id", ownerID, "error", err)
		} else if limit > 0 && window > 0 {
			return s.deps.Limiter.Check(ctx, identifier, limit, window)
		}
	}
	return s.deps.Limiter.CheckDefault(ctx, identifier)
}

// openSession returns the live session named by req or a fresh one.
// Sessions belonging to another owner are never continued.
func (s *Service) openSession(req TurnRequest) (*session.Session, bool) {
	if req.SessionID != "" {
		if sess, ok := s.deps.Sessions.GetSession(req.SessionID); ok && sess.OwnerID == req.OwnerID {
			return sess, false
		}
	}
	return s.deps.Sessions.CreateSession(req.OwnerID, req.Context), true
}

func validateTurn(req TurnRequest) error {
	if strings.TrimSpace(req.Message) == "" {
		return &ValidationError{Field: "message", Message: "cannot be empty"}
	}
	if req.OwnerID == "" && req.ClientKey == "" {
		return &ValidationError{Field: "owner_id", Message: "owner id or client key is required"}
	}
	if strings.Contains(req.Scope, ":") {
		return &ValidationError{Field: "scope", Message: "cannot contain ':'"}
	}
	return nil
}

// RateLimitIdentifier builds "<scope>:<owner-or-client>".
func RateLimitIdentifier(scope, ownerID, clientKey string) string {
	if scope == "" {
		scope = DefaultScope
	}
	subject := ownerID
	if subject == "" {
		subject = clientKey
	}
	return scope + ":" + subject
}

// ReplyCacheKey builds the fallback cache key for a lesson context.
func ReplyCacheKey(sctx session.Context) string {
	topic := sctx.Topic
	if topic == "" {
		topic = "general"
	}
	language := sctx.Language
	if language == "" {
		language = "en"
	}
	return "reply:" + topic + ":" + language
}

// IsQuotaDenied reports whether err is a rate limit denial.
func IsQuotaDenied(err error) bool {
	var quota *resilience.QuotaError
	return errors.As(err, &quota)
}
