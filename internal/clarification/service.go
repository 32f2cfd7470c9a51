// Package clarification owns the single outstanding clarification of a
// conversation: picking which ambiguity to ask about, storing it, and
// interpreting the user's reply.
package clarification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/ambiguity"
	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/specification"
)

// PendingStore is the single pending-clarification slot per user. Get
// returns nil, nil when the slot is empty.
type PendingStore interface {
	SetPendingClarification(ctx context.Context, userID string, payload []byte) error
	GetPendingClarification(ctx context.Context, userID string) ([]byte, error)
	ClearPendingClarification(ctx context.Context, userID string) error
}

// Status is the outcome of interpreting a clarification reply.
type Status string

const (
	// StatusResolved means the reply settled the question.
	StatusResolved Status = "resolved"
	// StatusSkipped means the user passed on the question.
	StatusSkipped Status = "skipped"
	// StatusAlternative means a named default was turned down. The question
	// is closed and the user is asked what they want instead.
	StatusAlternative Status = "alternative"
	// StatusFollowUp means half an answer arrived; the question stays open.
	StatusFollowUp Status = "follow_up"
	// StatusHelp means the user asked for an explanation.
	StatusHelp Status = "help"
	// StatusRetry means nothing usable was found; the question is re-asked.
	StatusRetry Status = "retry"
)

// Request is the clarification chosen for this turn.
type Request struct {
	Ambiguity ambiguity.Ambiguity
	Prompt    string
}

// Result describes what a reply did to the conversation.
type Result struct {
	Status  Status
	Message string
	// Spec is the specification after merging; unchanged unless Closed.
	Spec specification.Specification
	// Fields are the values the reply contributed, deferred fields included.
	Fields specification.Specification
	// Pending is the still-open clarification, nil once closed.
	Pending *PendingClarification
}

// Closed reports whether the pending slot was emptied by this reply.
func (r Result) Closed() bool {
	return r.Pending == nil
}

// Continue reports whether the turn can go on to validation.
func (r Result) Continue() bool {
	return r.Status == StatusResolved || r.Status == StatusSkipped
}

// Service picks, stores and resolves clarifications.
type Service struct {
	detector *ambiguity.Detector
	store    PendingStore
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a new clarification service
func NewService(detector *ambiguity.Detector, store PendingStore, opts ...Option) *Service {
	s := &Service{
		detector: detector,
		store:    store,
		logger:   slog.Default(),
		tracer:   otel.Tracer("clarification-service"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateClarificationRequest picks one ambiguity by category priority
// (operation, size, glass, grilles), then by confidence, and prefixes its
// prompt with the size and operation already known. It returns nil when
// nothing usable was passed in.
func (s *Service) GenerateClarificationRequest(ambiguities []ambiguity.Ambiguity, spec specification.Specification) *Request {
	candidates := make([]ambiguity.Ambiguity, 0, len(ambiguities))
	for _, a := range ambiguities {
		if a != nil && a.Valid() && a.Category().IsValid() {
			candidates = append(candidates, a)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		ri, rj := candidates[i].Category().Rank(), candidates[j].Category().Rank()
		if ri != rj {
			return ri < rj
		}
		return candidates[i].Score() > candidates[j].Score()
	})

	chosen := candidates[0]
	prompt := chosen.ClarifyPrompt()
	if prefix := contextPrefix(spec); prefix != "" {
		prompt = prefix + lowerFirst(prompt)
	}
	return &Request{Ambiguity: chosen, Prompt: prompt}
}

// contextPrefix mentions the known size and operation, e.g.
// `For your 36" x 48" casement window, `.
func contextPrefix(spec specification.Specification) string {
	var parts []string
	w, okW := spec.Number(specification.FieldWidth)
	h, okH := spec.Number(specification.FieldHeight)
	if okW && okH {
		parts = append(parts, ambiguity.FormatSize(w, h))
	}
	if op, ok := spec.String(specification.FieldOperation); ok {
		parts = append(parts, op)
	}
	if len(parts) == 0 {
		return ""
	}
	return "For your " + strings.Join(parts, " ") + " window, "
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// SavePendingClarification stores req as the conversation's single open
// question. It fails with ErrClarificationPending when one is already open.
func (s *Service) SavePendingClarification(ctx context.Context, userID string, req *Request, deferred specification.Specification) (*PendingClarification, error) {
	ctx, span := s.tracer.Start(ctx, "clarification.save",
		trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	if req == nil || req.Ambiguity == nil {
		return nil, errors.New("clarification request has no ambiguity")
	}

	existing := s.GetPendingClarification(ctx, userID)
	lifecycle, err := NewLifecycle(userID, existing != nil)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.Transition(EventAsk); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	pending := &PendingClarification{
		ID:             uuid.New(),
		Ambiguity:      req.Ambiguity,
		CreatedAt:      s.now().UTC(),
		DeferredFields: nilIfEmpty(deferred),
	}
	if err := s.write(ctx, userID, pending); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.String("clarification.id", pending.ID.String()),
		attribute.String("clarification.category", string(req.Ambiguity.Category())),
	)
	return pending, nil
}

// GetPendingClarification returns the open question, or nil. Read failures
// and unreadable payloads degrade to nil.
func (s *Service) GetPendingClarification(ctx context.Context, userID string) *PendingClarification {
	payload, err := s.store.GetPendingClarification(ctx, userID)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to read pending clarification",
			slog.String("user_id", userID), slog.Any("error", err))
		return nil
	}
	if len(payload) == 0 {
		return nil
	}

	var pending PendingClarification
	if err := json.Unmarshal(payload, &pending); err != nil {
		s.logger.WarnContext(ctx, "discarding unreadable pending clarification",
			slog.String("user_id", userID), slog.Any("error", err))
		if clearErr := s.store.ClearPendingClarification(ctx, userID); clearErr != nil {
			s.logger.WarnContext(ctx, "failed to clear unreadable pending clarification",
				slog.String("user_id", userID), slog.Any("error", clearErr))
		}
		return nil
	}
	return &pending
}

// ClearPendingClarification empties the slot.
func (s *Service) ClearPendingClarification(ctx context.Context, userID string) error {
	if err := s.store.ClearPendingClarification(ctx, userID); err != nil {
		return fmt.Errorf("failed to clear pending clarification: %w", err)
	}
	return nil
}

// AbandonPendingClarification drops pending without an answer, e.g. when the
// user moved on to another topic. It returns the deferred fields, which the
// caller still owes to the specification.
func (s *Service) AbandonPendingClarification(ctx context.Context, userID string, pending *PendingClarification) (specification.Specification, error) {
	if pending == nil {
		return nil, ErrNoClarification
	}
	lifecycle, err := NewLifecycle(userID, true)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.Transition(EventAbandon); err != nil {
		return nil, err
	}
	if err := s.ClearPendingClarification(ctx, userID); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "clarification abandoned",
		slog.String("user_id", userID),
		slog.String("clarification_id", pending.ID.String()),
		slog.Int("attempts", pending.Attempts),
	)
	return specification.Specification{}.Merge(pending.DeferredFields), nil
}

// ResolveFromFields closes pending when fields, together with half an answer
// given earlier, settle what the question is about: both dimensions for a
// size, any target field otherwise. It reports false and leaves the slot
// untouched when they don't.
func (s *Service) ResolveFromFields(ctx context.Context, userID string, pending *PendingClarification, spec, fields specification.Specification) (Result, bool, error) {
	if pending == nil || pending.Ambiguity == nil {
		return Result{}, false, ErrNoClarification
	}
	answer, ok := answeredTargets(pending, fields)
	if !ok {
		return Result{}, false, nil
	}
	lifecycle, err := NewLifecycle(userID, true)
	if err != nil {
		return Result{}, false, err
	}
	res, err := s.close(ctx, userID, lifecycle, EventResolve, StatusResolved, pending, spec, answer, confirmation(pending.Ambiguity, answer))
	if err != nil {
		return Result{}, false, err
	}
	return res, true, nil
}

// DeferFields stores fields on the open question so they are applied when it
// closes. Values for the question's own target fields are kept as half an
// answer instead.
func (s *Service) DeferFields(ctx context.Context, userID string, pending *PendingClarification, fields specification.Specification) (*PendingClarification, error) {
	if pending == nil || pending.Ambiguity == nil {
		return nil, ErrNoClarification
	}
	if len(fields) == 0 {
		return pending, nil
	}

	targets := pending.Ambiguity.Category().Targets()
	deferred := specification.Specification{}.Merge(pending.DeferredFields)
	partial := specification.Specification{}.Merge(pending.PartialFields)
	for name, v := range fields {
		if slices.Contains(targets, name) {
			partial[name] = v
			continue
		}
		deferred[name] = v
	}

	next := *pending
	next.DeferredFields = nilIfEmpty(deferred)
	next.PartialFields = nilIfEmpty(partial)
	if err := s.write(ctx, userID, &next); err != nil {
		return nil, err
	}
	return &next, nil
}

func answeredTargets(pending *PendingClarification, fields specification.Specification) (specification.Specification, bool) {
	answer := specification.Specification{}
	fresh := false
	for _, name := range pending.Ambiguity.Category().Targets() {
		switch {
		case fields.IsPresent(name):
			answer[name] = fields[name]
			fresh = true
		case pending.PartialFields.IsPresent(name):
			answer[name] = pending.PartialFields[name]
		}
	}
	if pending.Ambiguity.Category() == ambiguity.CategorySize {
		return answer, fresh && len(answer) == 2
	}
	return answer, fresh
}

func (s *Service) write(ctx context.Context, userID string, pending *PendingClarification) error {
	payload, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("failed to encode pending clarification: %w", err)
	}
	if err := s.store.SetPendingClarification(ctx, userID, payload); err != nil {
		return fmt.Errorf("failed to store pending clarification: %w", err)
	}
	return nil
}

var heightWords = regexp.MustCompile(`(?i)\b(?:height|high|tall)\b`)

// ProcessUserClarification interprets response as the answer to pending.
// Unresolved replies fall back to help text, then skip, then a best-effort
// extraction, then a shorter re-ask. Errors are returned only for store
// failures.
func (s *Service) ProcessUserClarification(ctx context.Context, userID, response string, pending *PendingClarification, spec specification.Specification) (Result, error) {
	ctx, span := s.tracer.Start(ctx, "clarification.process",
		trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	if pending == nil || pending.Ambiguity == nil {
		return Result{}, ErrNoClarification
	}
	span.SetAttributes(
		attribute.String("clarification.id", pending.ID.String()),
		attribute.String("clarification.category", string(pending.Ambiguity.Category())),
	)

	lifecycle, err := NewLifecycle(userID, true)
	if err != nil {
		return Result{}, err
	}

	result, err := s.interpret(ctx, userID, response, pending, spec, lifecycle)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	span.SetAttributes(attribute.String("clarification.status", string(result.Status)))
	return result, nil
}

func (s *Service) interpret(ctx context.Context, userID, response string, pending *PendingClarification, spec specification.Specification, lifecycle *Lifecycle) (Result, error) {
	a := pending.Ambiguity

	if ambiguity.IsHelpRequest(response) {
		return Result{
			Status:  StatusHelp,
			Message: helpText(a) + "\n\n" + a.ClarifyPrompt(),
			Spec:    spec,
			Pending: pending,
		}, nil
	}

	if fields, ok := completeDimension(pending, response); ok {
		return s.close(ctx, userID, lifecycle, EventResolve, StatusResolved, pending, spec, fields, confirmation(a, fields))
	}

	if res, ok := s.detector.Resolve(a, response); ok {
		switch {
		case res.Complete():
			return s.close(ctx, userID, lifecycle, EventResolve, StatusResolved, pending, spec, res.Fields, confirmation(a, res.Fields))
		case res.NeedsAlternative:
			return s.close(ctx, userID, lifecycle, EventResolve, StatusAlternative, pending, spec, nil, alternativeQuestion(a))
		case res.SingleDimension > 0:
			return s.keepPartial(ctx, userID, pending, spec, response, res.SingleDimension)
		}
	}

	if ambiguity.IsSkip(response) || ambiguity.IsUncertain(response) {
		return s.close(ctx, userID, lifecycle, EventSkip, StatusSkipped, pending, spec, nil,
			"No problem, we can come back to that later.")
	}

	if fields, ok := s.detector.Extract(a, response); ok {
		return s.close(ctx, userID, lifecycle, EventResolve, StatusResolved, pending, spec, fields, confirmation(a, fields))
	}

	retry := *pending
	retry.Attempts++
	if err := s.write(ctx, userID, &retry); err != nil {
		return Result{}, err
	}
	return Result{
		Status:  StatusRetry,
		Message: simplifiedPrompt(a),
		Spec:    spec,
		Pending: &retry,
	}, nil
}

// close merges deferred and resolved fields, empties the slot and moves the
// lifecycle back to idle.
func (s *Service) close(ctx context.Context, userID string, lifecycle *Lifecycle, event string, status Status, pending *PendingClarification, spec, resolved specification.Specification, message string) (Result, error) {
	if err := lifecycle.Transition(event); err != nil {
		return Result{}, err
	}
	if err := s.ClearPendingClarification(ctx, userID); err != nil {
		return Result{}, err
	}

	fields := specification.Specification{}.Merge(pending.DeferredFields).Merge(resolved)
	s.logger.InfoContext(ctx, "clarification closed",
		slog.String("user_id", userID),
		slog.String("clarification_id", pending.ID.String()),
		slog.String("category", string(pending.Ambiguity.Category())),
		slog.String("status", string(status)),
		slog.Int("fields", len(fields)),
	)
	return Result{
		Status:  status,
		Message: message,
		Spec:    spec.Merge(fields),
		Fields:  fields,
	}, nil
}

// keepPartial records one dimension of a size answer and asks for the other.
func (s *Service) keepPartial(ctx context.Context, userID string, pending *PendingClarification, spec specification.Specification, response string, value float64) (Result, error) {
	known, missing := specification.FieldWidth, "height"
	if heightWords.MatchString(response) {
		known, missing = specification.FieldHeight, "width"
	}

	next := *pending
	next.PartialFields = specification.Specification{}.Merge(pending.PartialFields)
	next.PartialFields[known] = specification.NumberValue(value)
	if err := s.write(ctx, userID, &next); err != nil {
		return Result{}, err
	}
	return Result{
		Status:  StatusFollowUp,
		Message: fmt.Sprintf("Got it, %s inches %s. What's the %s in inches?", ambiguity.FormatNumber(value), sideWord(known), missing),
		Spec:    spec,
		Pending: &next,
	}, nil
}

// completeDimension finishes a size answer when one side was given earlier
// and the reply carries a single number.
func completeDimension(pending *PendingClarification, response string) (specification.Specification, bool) {
	if pending.Ambiguity.Category() != ambiguity.CategorySize || len(pending.PartialFields) == 0 {
		return nil, false
	}
	if _, _, pair := ambiguity.ParseSize(response); pair {
		return nil, false
	}
	numbers := ambiguity.ExtractNumbers(response)
	if len(numbers) != 1 || numbers[0] <= 0 {
		return nil, false
	}

	fields := pending.PartialFields.Clone()
	if fields.IsPresent(specification.FieldWidth) {
		fields[specification.FieldHeight] = specification.NumberValue(numbers[0])
	} else {
		fields[specification.FieldWidth] = specification.NumberValue(numbers[0])
	}
	return fields, true
}

func sideWord(field string) string {
	if field == specification.FieldHeight {
		return "tall"
	}
	return "wide"
}
