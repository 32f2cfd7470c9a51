// Package conversation runs one turn of the quoting conversation: it settles
// any open clarification, looks for new vague terms, merges what the user
// said and decides what to ask or offer next.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/ambiguity"
	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/clarification"
	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/metrics"
	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/questions"
	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/specification"
	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/storage"
)

// DefaultExpiration is how long a conversation may sit idle before its
// open choices are filled with defaults.
const DefaultExpiration = 30 * 24 * time.Hour

// SpecificationStore persists the partial specification and activity time.
// Reads of an unknown user return storage.ErrNotFound.
type SpecificationStore interface {
	GetPartialSpecification(ctx context.Context, userID string) (specification.Specification, error)
	SavePartialSpecification(ctx context.Context, userID string, spec specification.Specification) error
	GetLastActivityTime(ctx context.Context, userID string) (time.Time, error)
	UpdateLastActivity(ctx context.Context, userID string) error
	ClearPartialSpecification(ctx context.Context, userID string) error
}

// QuestionGenerator renders question and progress text.
type QuestionGenerator interface {
	GenerateQuestion(field specification.FieldDefinition, spec specification.Specification, action string) (string, error)
	GenerateProgressMessage(percent int, missing []string) (string, error)
}

// FlowService orchestrates conversation turns. Turns for one user must be
// serialized by the caller.
type FlowService struct {
	store      SpecificationStore
	clarifier  *clarification.Service
	detector   *ambiguity.Detector
	questions  QuestionGenerator
	validator  *specification.Validator
	metrics    *metrics.TurnMetrics
	logger     *slog.Logger
	tracer     trace.Tracer
	now        func() time.Time
	expiration time.Duration
}

// Option configures a FlowService.
type Option func(*FlowService)

// WithValidator replaces the window validator.
func WithValidator(v *specification.Validator) Option {
	return func(s *FlowService) {
		s.validator = v
	}
}

// WithMetrics records turn metrics.
func WithMetrics(m *metrics.TurnMetrics) Option {
	return func(s *FlowService) {
		s.metrics = m
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *FlowService) {
		s.logger = logger
	}
}

// WithClock replaces time.Now when checking expiry.
func WithClock(now func() time.Time) Option {
	return func(s *FlowService) {
		s.now = now
	}
}

// WithExpiration sets the idle window after which a conversation expires.
func WithExpiration(d time.Duration) Option {
	return func(s *FlowService) {
		if d > 0 {
			s.expiration = d
		}
	}
}

// NewFlowService creates a new conversation flow service
func NewFlowService(store SpecificationStore, clarifier *clarification.Service, detector *ambiguity.Detector, questions QuestionGenerator, opts ...Option) *FlowService {
	s := &FlowService{
		store:      store,
		clarifier:  clarifier,
		detector:   detector,
		questions:  questions,
		validator:  specification.NewWindowValidator(),
		logger:     slog.Default(),
		tracer:     otel.Tracer("conversation-flow"),
		now:        time.Now,
		expiration: DefaultExpiration,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Validator returns the validator the service checks specifications with.
func (s *FlowService) Validator() *specification.Validator {
	return s.validator
}

// ProcessUserMessage handles one inbound message. extracted holds the field
// values an upstream parser already pulled out of message. It never returns
// an error: failures become an ERROR outcome.
func (s *FlowService) ProcessUserMessage(ctx context.Context, userID, message string, extracted specification.Specification) (out Outcome) {
	ctx, span := s.tracer.Start(ctx, "conversation.process_message",
		trace.WithAttributes(attribute.String("user.id", userID)))
	finish := s.begin(ctx, "message")
	defer func() {
		if r := recover(); r != nil {
			out = s.fail(ctx, span, userID, "message", "panic", fmt.Errorf("panic: %v", r))
		}
		finish(userID, out)
		span.End()
	}()

	out, err := s.processMessage(ctx, span, userID, message, cleanFields(extracted))
	if err != nil {
		return s.fail(ctx, span, userID, "message", "collaborator", err)
	}
	return out
}

func (s *FlowService) processMessage(ctx context.Context, span trace.Span, userID, message string, extracted specification.Specification) (Outcome, error) {
	spec, _, err := s.loadSpecification(ctx, userID)
	if err != nil {
		// The turn would save over the stored specification.
		return Outcome{}, err
	}
	fields := extracted
	prefix := ""

	s.enter(ctx, span, stateCheckPending)
	if pending := s.clarifier.GetPendingClarification(ctx, userID); pending != nil {
		s.enter(ctx, span, stateProcessResponse)
		category := pending.Ambiguity.Category()

		res, resolved, err := s.clarifier.ResolveFromFields(ctx, userID, pending, spec, extracted)
		if err != nil {
			return Outcome{}, err
		}
		if !resolved {
			res, err = s.clarifier.ProcessUserClarification(ctx, userID, message, pending, spec)
			if err != nil {
				return Outcome{}, err
			}
		}
		s.recordClarification(ctx, category, string(res.Status))

		switch {
		case res.Continue():
			prefix = res.Message
			fields = extracted.Merge(res.Fields)
		case res.Status == clarification.StatusAlternative:
			return s.askAlternative(ctx, userID, spec.Merge(extracted.Merge(res.Fields)), category, res.Message)
		case res.Status == clarification.StatusRetry && leavesTopic(extracted, category):
			deferred, err := s.clarifier.AbandonPendingClarification(ctx, userID, res.Pending)
			if err != nil {
				return Outcome{}, err
			}
			s.recordClarification(ctx, category, "abandoned")
			fields = deferred.Merge(extracted)
		default:
			if _, err := s.clarifier.DeferFields(ctx, userID, res.Pending, extracted); err != nil {
				return Outcome{}, err
			}
			if err := s.store.UpdateLastActivity(ctx, userID); err != nil {
				return Outcome{}, fmt.Errorf("failed to update last activity: %w", err)
			}
			return s.clarificationOutcome(spec, pending.Ambiguity, res.Message), nil
		}
	} else {
		s.enter(ctx, span, stateDetectAmbiguity)
		overlay := spec.Merge(extracted)
		found := s.detector.Detect(message, overlay)
		if req := s.clarifier.GenerateClarificationRequest(found, overlay); req != nil {
			s.enter(ctx, span, stateEmitClarification)
			if _, err := s.clarifier.SavePendingClarification(ctx, userID, req, extracted); err != nil {
				return Outcome{}, err
			}
			if err := s.store.UpdateLastActivity(ctx, userID); err != nil {
				return Outcome{}, fmt.Errorf("failed to update last activity: %w", err)
			}
			s.recordClarification(ctx, req.Ambiguity.Category(), "asked")
			return s.clarificationOutcome(spec, req.Ambiguity, req.Prompt), nil
		}
	}

	s.enter(ctx, span, stateMergeAndValidate)
	merged := spec.Merge(fields)
	if err := s.persist(ctx, userID, merged); err != nil {
		return Outcome{}, err
	}
	return s.determineNextStep(ctx, span, merged, prefix)
}

// HandleReturningUser greets a user who comes back to a conversation. An
// expired conversation gets its open choices filled with defaults.
func (s *FlowService) HandleReturningUser(ctx context.Context, userID string) (out Outcome) {
	ctx, span := s.tracer.Start(ctx, "conversation.returning_user",
		trace.WithAttributes(attribute.String("user.id", userID)))
	finish := s.begin(ctx, "resume")
	defer func() {
		if r := recover(); r != nil {
			out = s.fail(ctx, span, userID, "resume", "panic", fmt.Errorf("panic: %v", r))
		}
		finish(userID, out)
		span.End()
	}()

	out, err := s.resume(ctx, span, userID)
	if err != nil {
		return s.fail(ctx, span, userID, "resume", "collaborator", err)
	}
	return out
}

func (s *FlowService) resume(ctx context.Context, span trace.Span, userID string) (Outcome, error) {
	spec, found, _ := s.loadSpecification(ctx, userID)

	if found && s.expired(ctx, userID) {
		span.SetAttributes(attribute.Bool("conversation.expired", true))
		return s.expire(ctx, span, userID, spec)
	}

	if pending := s.clarifier.GetPendingClarification(ctx, userID); pending != nil {
		prompt := pending.Ambiguity.ClarifyPrompt()
		if req := s.clarifier.GenerateClarificationRequest([]ambiguity.Ambiguity{pending.Ambiguity}, spec); req != nil {
			prompt = req.Prompt
		}
		return s.clarificationOutcome(spec, pending.Ambiguity, joinMessage("Welcome back!", prompt)), nil
	}

	if !found || len(spec) == 0 {
		return s.determineNextStep(ctx, span, specification.Specification{}, greetingMessage)
	}
	result := s.validator.Validate(spec)
	return s.determineNextStep(ctx, span, spec, welcomeBack(result.CompletionPercentage))
}

// expire drops any open clarification, fills defaults and reports which
// fields were defaulted and which the user supplied.
func (s *FlowService) expire(ctx context.Context, span trace.Span, userID string, spec specification.Specification) (Outcome, error) {
	if err := s.clarifier.ClearPendingClarification(ctx, userID); err != nil {
		return Outcome{}, err
	}
	withDefaults := s.validator.ApplyDefaults(spec)
	defaulted := s.validator.DefaultedFields(spec, withDefaults)
	supplied := s.suppliedFields(spec)
	if err := s.persist(ctx, userID, withDefaults); err != nil {
		return Outcome{}, err
	}

	s.logger.InfoContext(ctx, "conversation expired, defaults applied",
		slog.String("user_id", userID),
		slog.Any("defaulted", defaulted),
		slog.Any("supplied", supplied),
	)

	out, err := s.determineNextStep(ctx, span, withDefaults, expiredMessage(s.labels(defaulted), s.labels(supplied)))
	if err != nil {
		return Outcome{}, err
	}
	out.DefaultedFields = defaulted
	out.SuppliedFields = supplied
	return out, nil
}

// Reset forgets the user's specification and any open clarification.
func (s *FlowService) Reset(ctx context.Context, userID string) error {
	if err := s.clarifier.ClearPendingClarification(ctx, userID); err != nil {
		return err
	}
	if err := s.store.ClearPartialSpecification(ctx, userID); err != nil {
		return fmt.Errorf("failed to clear specification: %w", err)
	}
	s.logger.InfoContext(ctx, "conversation reset", slog.String("user_id", userID))
	return nil
}

// Summary returns the stored specification and its validation. It returns
// storage.ErrNotFound for an unknown user.
func (s *FlowService) Summary(ctx context.Context, userID string) (specification.Specification, specification.ValidationResult, error) {
	spec, err := s.store.GetPartialSpecification(ctx, userID)
	if err != nil {
		return nil, specification.ValidationResult{}, err
	}
	spec = spec.Normalized()
	return spec, s.validator.Validate(spec), nil
}

func (s *FlowService) determineNextStep(ctx context.Context, span trace.Span, spec specification.Specification, prefix string) (Outcome, error) {
	s.enter(ctx, span, stateDetermineNextStep)
	result := s.validator.Validate(spec)
	out := Outcome{
		Specs:      spec,
		Completion: result.CompletionPercentage,
		Warnings:   result.Warnings,
	}
	notes := strings.Join(result.Warnings, " ")

	switch {
	case result.IsValid:
		out.Type = OutcomeGenerateQuote
		out.Message = joinMessage(prefix, readyMessage, notes)
		out.SuppliedFields = s.suppliedFields(spec)

	case result.CanGenerateQuote:
		withDefaults := s.validator.ApplyDefaults(spec)
		defaulted := s.validator.DefaultedFields(spec, withDefaults)
		described := make([]string, 0, len(defaulted))
		for _, name := range defaulted {
			if f, ok := s.validator.Field(name); ok {
				described = append(described, describe(f, withDefaults[name]))
			}
		}
		out.Type = OutcomeOfferQuoteWithDefaults
		out.Message = joinMessage(prefix, offerMessage(described), notes)
		out.RequiresInput = true
		out.Specs = withDefaults
		out.DefaultedFields = defaulted
		out.SuppliedFields = s.suppliedFields(spec)

	default:
		issue, _ := specification.NextField(result)
		action := questions.ActionAsk
		if issue.Kind == specification.IssueInvalid {
			action = questions.ActionCorrect
		}
		question, err := s.questions.GenerateQuestion(issue.Field, spec, action)
		if err != nil {
			return Outcome{}, fmt.Errorf("failed to generate question for %s: %w", issue.Name, err)
		}
		progress, err := s.questions.GenerateProgressMessage(result.CompletionPercentage, result.MissingNames())
		if err != nil {
			return Outcome{}, fmt.Errorf("failed to generate progress message: %w", err)
		}
		out.Type = OutcomeCollectInformation
		out.Message = joinMessage(prefix, progress, question)
		out.RequiresInput = true
		out.NextField = issue.Name
	}
	return out, nil
}

// askAlternative handles a rejected named default: the clarification is
// closed and the user is asked what they want instead.
func (s *FlowService) askAlternative(ctx context.Context, userID string, spec specification.Specification, category ambiguity.Category, message string) (Outcome, error) {
	if err := s.persist(ctx, userID, spec); err != nil {
		return Outcome{}, err
	}
	out := Outcome{
		Type:          OutcomeCollectInformation,
		Message:       message,
		RequiresInput: true,
		Specs:         spec,
		Completion:    s.validator.Validate(spec).CompletionPercentage,
	}
	if targets := category.Targets(); len(targets) > 0 {
		out.NextField = targets[0]
	}
	return out, nil
}

func (s *FlowService) clarificationOutcome(spec specification.Specification, a ambiguity.Ambiguity, message string) Outcome {
	out := Outcome{
		Type:              OutcomeNeedsClarification,
		Message:           message,
		RequiresInput:     true,
		Specs:             spec,
		Ambiguity:         a,
		AmbiguityCategory: a.Category(),
		Completion:        s.validator.Validate(spec).CompletionPercentage,
	}
	if targets := a.Category().Targets(); len(targets) > 0 {
		out.NextField = targets[0]
	}
	return out
}

// loadSpecification reads the stored specification; found reports a stored
// one. Missing or unreadable state degrades to an empty specification, and
// err is set only when the read failed for another reason than ErrNotFound.
func (s *FlowService) loadSpecification(ctx context.Context, userID string) (spec specification.Specification, found bool, err error) {
	spec, err = s.store.GetPartialSpecification(ctx, userID)
	switch {
	case err == nil:
		return spec.Normalized(), true, nil
	case errors.Is(err, storage.ErrNotFound):
		return specification.Specification{}, false, nil
	}
	s.logger.WarnContext(ctx, "failed to read specification",
		slog.String("user_id", userID), slog.Any("error", err))
	return specification.Specification{}, false, fmt.Errorf("failed to read specification: %w", err)
}

func (s *FlowService) expired(ctx context.Context, userID string) bool {
	last, err := s.store.GetLastActivityTime(ctx, userID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.WarnContext(ctx, "failed to read last activity",
				slog.String("user_id", userID), slog.Any("error", err))
		}
		return false
	}
	return s.now().Sub(last) > s.expiration
}

// persist saves spec before anything else can fail, then touches activity.
func (s *FlowService) persist(ctx context.Context, userID string, spec specification.Specification) error {
	if err := s.store.SavePartialSpecification(ctx, userID, spec); err != nil {
		return fmt.Errorf("failed to save specification: %w", err)
	}
	if err := s.store.UpdateLastActivity(ctx, userID); err != nil {
		return fmt.Errorf("failed to update last activity: %w", err)
	}
	return nil
}

func (s *FlowService) suppliedFields(spec specification.Specification) []string {
	var names []string
	for _, f := range s.validator.Fields() {
		if spec.IsPresent(f.Name) {
			names = append(names, f.Name)
		}
	}
	return names
}

func (s *FlowService) labels(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if f, ok := s.validator.Field(name); ok {
			out = append(out, f.Label)
			continue
		}
		out = append(out, name)
	}
	return out
}

func (s *FlowService) enter(ctx context.Context, span trace.Span, state turnState) {
	span.AddEvent(string(state))
	s.logger.DebugContext(ctx, "turn state", slog.String("state", string(state)))
}

// begin starts turn metrics and returns the matching completion hook.
func (s *FlowService) begin(ctx context.Context, entry string) func(userID string, out Outcome) {
	start := s.now()
	if s.metrics != nil {
		s.metrics.RecordTurnStarted(ctx, entry)
	}
	return func(userID string, out Outcome) {
		elapsed := s.now().Sub(start)
		if s.metrics != nil {
			s.metrics.RecordTurnCompleted(ctx, entry, string(out.Type), elapsed)
		}
		s.logger.InfoContext(ctx, "turn completed",
			slog.String("user_id", userID),
			slog.String("entry", entry),
			slog.String("outcome", string(out.Type)),
			slog.Int("completion", out.Completion),
			slog.Int64("duration_ms", elapsed.Milliseconds()),
		)
	}
}

func (s *FlowService) fail(ctx context.Context, span trace.Span, userID, entry, errorType string, err error) Outcome {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if s.metrics != nil {
		s.metrics.RecordTurnFailed(ctx, entry, errorType)
	}
	s.logger.ErrorContext(ctx, "turn failed",
		slog.String("user_id", userID),
		slog.String("entry", entry),
		slog.String("error_type", errorType),
		slog.Any("error", err),
	)
	return Outcome{
		Type:          OutcomeError,
		Message:       errorMessage,
		RequiresInput: true,
	}
}

func (s *FlowService) recordClarification(ctx context.Context, category ambiguity.Category, status string) {
	if s.metrics != nil {
		s.metrics.RecordClarification(ctx, string(category), status)
	}
}

// cleanFields drops absent values and blank keys from parser output.
func cleanFields(fields specification.Specification) specification.Specification {
	out := specification.Specification{}
	for k, v := range fields.Normalized() {
		key := strings.TrimSpace(k)
		if key == "" || !fields.IsPresent(k) {
			continue
		}
		if str, ok := v.(string); ok {
			v = strings.TrimSpace(str)
		}
		out[key] = v
	}
	return out
}

// leavesTopic reports whether extracted carries a field the pending
// clarification isn't about.
func leavesTopic(extracted specification.Specification, category ambiguity.Category) bool {
	targets := category.Targets()
	for name := range extracted {
		if !slices.Contains(targets, name) {
			return true
		}
	}
	return false
}
