// Package orchestrator drives one user message through the full pipeline:
// parse, validate, resolve, corroborate, guard, plan, execute.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"po-copilot/internal/backend"
	commonerrors "po-copilot/internal/common/errors"
	"po-copilot/internal/common/logger"
	"po-copilot/internal/common/metrics"
	"po-copilot/internal/genai"
	"po-copilot/internal/models"
)

// EventSink receives fire-and-forget stage updates. Implementations must
// not block; emission failures never reach the pipeline.
type EventSink interface {
	Emit(update models.StageUpdate)
}

// NoopSink is the default sink.
type NoopSink struct{}

func (NoopSink) Emit(models.StageUpdate) {}

// Collaborator contracts. Concrete implementations live in the sibling
// pipeline packages and internal/store; tests substitute fakes.
type (
	Parser interface {
		Parse(ctx context.Context, message string, convCtx *models.ConversationContext) (*models.ParseResult, error)
	}
	Validator interface {
		AllMissingFields(intents []models.ParsedIntent) []string
	}
	Resolver interface {
		Resolve(ctx context.Context, intent models.ParsedIntent, convCtx *models.ConversationContext) (*models.ResolvedIntent, error)
	}
	Corroborator interface {
		Corroborate(intent models.ParsedIntent, resolved *models.ResolvedIntent, rawMessage string) *models.CorroborationResult
	}
	GuardEngine interface {
		Evaluate(resolvedIntents []models.ResolvedIntent) *models.GuardReport
	}
	PlanBuilder interface {
		Build(conversationID string, resolvedIntents []models.ResolvedIntent, advisories []models.GuardViolation) (*models.ExecutionPlan, error)
	}
	Executor interface {
		Execute(ctx context.Context, plan *models.ExecutionPlan) *models.ExecutionResult
	}
	ConversationStore interface {
		Get(ctx context.Context, id string) (*models.Conversation, error)
		AppendMessage(ctx context.Context, id string, msg models.Message) error
		GetContext(ctx context.Context, id string) (*models.ConversationContext, error)
		RememberEntities(ctx context.Context, id string, entities []models.ActiveEntity) error
	}
	PlanStore interface {
		Save(ctx context.Context, plan *models.ExecutionPlan) error
		Get(ctx context.Context, planID string) (*models.ExecutionPlan, error)
		Approve(ctx context.Context, planID string) error
		Reject(ctx context.Context, planID string) error
		MarkExecuted(ctx context.Context, planID string, success bool) error
	}
	AuditLog interface {
		Log(ctx context.Context, entry models.AuditEntry) error
	}
	HealthProbe interface {
		Health(ctx context.Context) (*backend.HealthStatus, error)
	}
	Notifier interface {
		PlanAwaitingApproval(ctx context.Context, plan *models.ExecutionPlan)
	}
	// Observer traces pipeline stages and records request-level telemetry.
	// A nil observer disables both.
	Observer interface {
		StartSpan(ctx context.Context, name string) (context.Context, trace.Span)
		RecordRequest(ctx context.Context, outcome string)
		RecordRequestDuration(ctx context.Context, duration time.Duration, outcome string)
	}
)

type Orchestrator struct {
	parser        Parser
	validator     Validator
	resolver      Resolver
	corroborator  Corroborator
	guard         GuardEngine
	builder       PlanBuilder
	executor      Executor
	conversations ConversationStore
	plans         PlanStore
	audit         AuditLog
	health        HealthProbe
	notifier      Notifier
	sink          EventSink
	observer      Observer
	threshold     float64
	logger        logger.Logger
}

type Params struct {
	Parser        Parser
	Validator     Validator
	Resolver      Resolver
	Corroborator  Corroborator
	Guard         GuardEngine
	Builder       PlanBuilder
	Executor      Executor
	Conversations ConversationStore
	Plans         PlanStore
	Audit         AuditLog
	Health        HealthProbe
	Notifier      Notifier
	Sink          EventSink
	Observer      Observer
	Threshold     float64
	Logger        logger.Logger
}

func New(p Params) *Orchestrator {
	if p.Sink == nil {
		p.Sink = NoopSink{}
	}
	return &Orchestrator{
		parser:        p.Parser,
		validator:     p.Validator,
		resolver:      p.Resolver,
		corroborator:  p.Corroborator,
		guard:         p.Guard,
		builder:       p.Builder,
		executor:      p.Executor,
		conversations: p.Conversations,
		plans:         p.Plans,
		audit:         p.Audit,
		health:        p.Health,
		notifier:      p.Notifier,
		sink:          p.Sink,
		observer:      p.Observer,
		threshold:     p.Threshold,
		logger:        p.Logger.WithFields(map[string]interface{}{"component": "orchestrator"}),
	}
}

// Handle runs one user message to a terminal outcome. Unexpected panics are
// caught here and surfaced as an error result; the caller never sees an
// unhandled fault.
func (o *Orchestrator) Handle(ctx context.Context, conversationID, message string) (resp *models.Response) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("pipeline panic", map[string]interface{}{
				"conversation_id": conversationID,
				"panic":           fmt.Sprintf("%v", r),
			})
			resp = errorResponse(commonerrors.NewInternalError(fmt.Errorf("%v", r)),
				"an unexpected error interrupted the request")
		}
		metrics.PipelineRequests.WithLabelValues(string(resp.Outcome)).Inc()
		if o.observer != nil {
			o.observer.RecordRequest(ctx, string(resp.Outcome))
			o.observer.RecordRequestDuration(ctx, time.Since(start), string(resp.Outcome))
		}
	}()

	if _, err := o.conversations.Get(ctx, conversationID); err != nil {
		return errorResponse(err, "unknown conversation")
	}
	if err := o.conversations.AppendMessage(ctx, conversationID, models.Message{Role: "user", Content: message}); err != nil {
		o.logger.WithError(err).Warn("message append failed", map[string]interface{}{"conversation_id": conversationID})
	}

	convCtx, err := o.conversations.GetContext(ctx, conversationID)
	if err != nil {
		return errorResponse(commonerrors.NewConversationError(conversationID), "conversation context unavailable")
	}

	// parse
	parseResult, parseErr := o.parse(ctx, conversationID, message, convCtx)
	if parseErr != nil {
		return errorResponse(parseErr, "the request could not be understood")
	}
	if len(parseResult.Intents) == 0 {
		msg := parseResult.UnhandledContent
		if msg == "" {
			msg = "I could not find an actionable purchase-order operation in that message. Could you rephrase it?"
		}
		return &models.Response{Outcome: models.OutcomeClarification, Message: msg}
	}

	// validate
	if missing := o.validate(ctx, conversationID, parseResult.Intents); len(missing) > 0 {
		return &models.Response{
			Outcome:       models.OutcomeClarification,
			Message:       "Some required details are missing: " + strings.Join(missing, ", "),
			MissingFields: missing,
		}
	}

	// resolve (with pre-flight health probe)
	resolved, resolveResp := o.resolve(ctx, conversationID, message, parseResult.Intents, convCtx)
	if resolveResp != nil {
		return resolveResp
	}

	// guard
	report := o.guard.Evaluate(resolved)
	if !report.Passed {
		return &models.Response{
			Outcome:    models.OutcomeClarification,
			Message:    blockingMessage(report),
			Violations: report.Violations,
		}
	}

	// plan
	o.emit(models.StagePlanning, models.StageStarted, nil)
	ctx, planSpan := o.span(ctx, "pipeline.plan")
	planStart := time.Now()
	plan, err := o.builder.Build(conversationID, resolved, report.AdvisoryViolations())
	if err != nil {
		planSpan.End()
		o.emit(models.StagePlanning, models.StageErrored, nil)
		o.writeAudit(ctx, conversationID, "", models.PhaseError, nil, map[string]interface{}{"error": err.Error()}, 0, nil)
		return errorResponse(commonerrors.NewPlanFailedError(err), "the request could not be turned into a plan")
	}
	planSpan.End()
	o.writeAudit(ctx, conversationID, plan.PlanID, models.PhasePlan,
		map[string]interface{}{"intents": intentIDs(parseResult.Intents)},
		map[string]interface{}{"summary": plan.Summary, "requires_approval": plan.RequiresApproval},
		time.Since(planStart).Milliseconds(), nil)
	o.emit(models.StagePlanning, models.StageCompleted, map[string]interface{}{"planId": plan.PlanID})
	metrics.StageDuration.WithLabelValues("plan").Observe(time.Since(planStart).Seconds())

	if err := o.plans.Save(ctx, plan); err != nil {
		return errorResponse(err, "the plan could not be stored")
	}

	if plan.RequiresApproval {
		metrics.PlansAwaitingApproval.Inc()
		if o.notifier != nil {
			o.notifier.PlanAwaitingApproval(ctx, plan)
		}
		return &models.Response{
			Outcome: models.OutcomePlanPending,
			Message: "The plan needs approval before it runs: " + plan.Summary,
			Plan:    plan,
		}
	}

	return o.runPlan(ctx, conversationID, plan)
}

// Approve executes a pending plan after human sign-off. Re-approval of an
// executed or rejected plan fails with a status conflict from the store.
func (o *Orchestrator) Approve(ctx context.Context, planID string) (resp *models.Response) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("approval panic", map[string]interface{}{"plan_id": planID, "panic": fmt.Sprintf("%v", r)})
			resp = errorResponse(commonerrors.NewInternalError(fmt.Errorf("%v", r)),
				"an unexpected error interrupted the approval")
		}
	}()

	if err := o.plans.Approve(ctx, planID); err != nil {
		return errorResponse(err, "the plan could not be approved")
	}
	plan, err := o.plans.Get(ctx, planID)
	if err != nil {
		return errorResponse(err, "the approved plan could not be loaded")
	}
	metrics.PlansAwaitingApproval.Dec()
	o.writeAudit(ctx, plan.ConversationID, planID, models.PhaseApprove, nil,
		map[string]interface{}{"approved": true}, 0, nil)

	return o.runPlan(ctx, plan.ConversationID, plan)
}

// Reject marks a pending plan as rejected.
func (o *Orchestrator) Reject(ctx context.Context, planID string) error {
	if err := o.plans.Reject(ctx, planID); err != nil {
		return err
	}
	metrics.PlansAwaitingApproval.Dec()
	if plan, err := o.plans.Get(ctx, planID); err == nil {
		o.writeAudit(ctx, plan.ConversationID, planID, models.PhaseApprove, nil,
			map[string]interface{}{"approved": false}, 0, nil)
	}
	return nil
}

func (o *Orchestrator) runPlan(ctx context.Context, conversationID string, plan *models.ExecutionPlan) *models.Response {
	ctx, span := o.span(ctx, "pipeline.execute")
	defer span.End()
	o.emit(models.StageExecuting, models.StageStarted, map[string]interface{}{"planId": plan.PlanID})
	start := time.Now()

	result := o.executor.Execute(ctx, plan)

	metrics.StageDuration.WithLabelValues("execute").Observe(time.Since(start).Seconds())
	if err := o.plans.MarkExecuted(ctx, plan.PlanID, result.OverallSuccess); err != nil {
		o.logger.WithError(err).Warn("plan status update failed", map[string]interface{}{"plan_id": plan.PlanID})
	}
	o.emit(models.StageExecuting, models.StageCompleted, map[string]interface{}{
		"planId":         plan.PlanID,
		"overallSuccess": result.OverallSuccess,
	})

	summary := plan.Summary
	if !result.OverallSuccess {
		summary += " (some actions failed)"
	}
	if err := o.conversations.AppendMessage(ctx, conversationID, models.Message{Role: "assistant", Content: summary}); err != nil {
		o.logger.WithError(err).Warn("assistant message append failed", map[string]interface{}{"conversation_id": conversationID})
	}

	return &models.Response{
		Outcome:   models.OutcomeExecuted,
		Message:   summary,
		Plan:      plan,
		Execution: result,
	}
}

func (o *Orchestrator) parse(ctx context.Context, conversationID, message string, convCtx *models.ConversationContext) (*models.ParseResult, error) {
	ctx, span := o.span(ctx, "pipeline.parse")
	defer span.End()
	o.emit(models.StageParsing, models.StageStarted, nil)
	start := time.Now()

	result, err := o.parser.Parse(ctx, message, convCtx)

	duration := time.Since(start)
	metrics.StageDuration.WithLabelValues("parse").Observe(duration.Seconds())
	if err != nil {
		o.emit(models.StageParsing, models.StageErrored, nil)
		o.writeAudit(ctx, conversationID, "", models.PhaseError, map[string]interface{}{"message": message},
			map[string]interface{}{"error": err.Error()}, duration.Milliseconds(), nil)
		return nil, classificationError(err)
	}

	o.writeAudit(ctx, conversationID, "", models.PhaseParse,
		map[string]interface{}{"message": message},
		map[string]interface{}{"intents": intentIDs(result.Intents)},
		duration.Milliseconds(), result.Usage)
	o.emit(models.StageParsing, models.StageCompleted, map[string]interface{}{"intentCount": len(result.Intents)})
	return result, nil
}

func (o *Orchestrator) validate(ctx context.Context, conversationID string, intents []models.ParsedIntent) []string {
	ctx, span := o.span(ctx, "pipeline.validate")
	defer span.End()
	o.emit(models.StageValidating, models.StageStarted, nil)
	start := time.Now()

	missing := o.validator.AllMissingFields(intents)

	metrics.StageDuration.WithLabelValues("validate").Observe(time.Since(start).Seconds())
	o.writeAudit(ctx, conversationID, "", models.PhaseValidate,
		map[string]interface{}{"intents": intentIDs(intents)},
		map[string]interface{}{"missing_fields": missing},
		time.Since(start).Milliseconds(), nil)

	status := models.StageCompleted
	if len(missing) > 0 {
		status = models.StageErrored
	}
	o.emit(models.StageValidating, status, map[string]interface{}{"missingFields": missing})
	return missing
}

// resolve fans out one concurrent resolution per intent and joins before
// returning. A failed resolution is logged and discarded; sibling intents
// proceed. The second return value is a terminal response, set when the
// whole stage must short-circuit.
func (o *Orchestrator) resolve(ctx context.Context, conversationID, message string, intents []models.ParsedIntent, convCtx *models.ConversationContext) ([]models.ResolvedIntent, *models.Response) {
	ctx, span := o.span(ctx, "pipeline.resolve")
	defer span.End()
	if status, err := o.health.Health(ctx); err != nil || status.Status == "error" {
		detail := "backend unreachable"
		if err != nil {
			detail = err.Error()
		} else if status.Message != "" {
			detail = status.Message
		}
		o.emit(models.StageResolving, models.StageErrored, map[string]interface{}{"reason": detail})
		o.writeAudit(ctx, conversationID, "", models.PhaseResolve,
			map[string]interface{}{"message": message},
			map[string]interface{}{"health": "error", "detail": detail}, 0, nil)
		return nil, errorResponse(commonerrors.NewBackendUnavailableError(detail),
			"the order-management backend is currently unavailable; please try again later")
	}

	o.emit(models.StageResolving, models.StageStarted, map[string]interface{}{"intentCount": len(intents)})
	start := time.Now()

	results := make([]*models.ResolvedIntent, len(intents))
	var wg sync.WaitGroup
	for i, intent := range intents {
		wg.Add(1)
		go func(idx int, in models.ParsedIntent) {
			defer wg.Done()
			ri, err := o.resolver.Resolve(ctx, in, convCtx)
			if err != nil {
				o.logger.WithError(err).Warn("resolution failed", map[string]interface{}{
					"conversation_id": conversationID,
					"intent":          in.ID,
				})
				return
			}
			results[idx] = ri
		}(i, intent)
	}
	wg.Wait()
	metrics.StageDuration.WithLabelValues("resolve").Observe(time.Since(start).Seconds())

	var resolved []models.ResolvedIntent
	var active []models.ActiveEntity
	lowConfidence := false
	for _, ri := range results {
		if ri == nil {
			continue
		}
		corr := o.corroborator.Corroborate(ri.Intent, ri, message)
		ri.Intent.Confidence = corr.FinalConfidence
		if corr.FinalConfidence < o.threshold {
			lowConfidence = true
		}
		for _, e := range ri.Entities {
			active = append(active, models.ActiveEntity{Type: e.EntityType, Value: e.ResolvedValue, Label: e.ResolvedLabel})
		}
		resolved = append(resolved, *ri)
	}

	o.writeAudit(ctx, conversationID, "", models.PhaseResolve,
		map[string]interface{}{"intents": intentIDs(intents)},
		map[string]interface{}{"resolved": len(resolved), "discarded": len(intents) - len(resolved)},
		time.Since(start).Milliseconds(), nil)
	o.emit(models.StageResolving, models.StageCompleted, map[string]interface{}{"resolvedCount": len(resolved)})

	if len(resolved) == 0 {
		return nil, errorResponse(
			commonerrors.NewResolutionFailedError(errors.New("every referenced record failed to resolve")),
			"none of the referenced records could be found")
	}
	if lowConfidence {
		return nil, &models.Response{
			Outcome: models.OutcomeClarification,
			Message: "I am not confident I understood the request correctly. Could you confirm the order and item you mean?",
		}
	}

	if err := o.conversations.RememberEntities(ctx, conversationID, active); err != nil {
		o.logger.WithError(err).Warn("context update failed", map[string]interface{}{"conversation_id": conversationID})
	}
	return resolved, nil
}

// span opens a stage span when an observer is wired; without one it hands
// back a no-op span from the context.
func (o *Orchestrator) span(ctx context.Context, name string) (context.Context, trace.Span) {
	if o.observer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return o.observer.StartSpan(ctx, name)
}

// emit never blocks or fails the pipeline, even against a panicking sink.
func (o *Orchestrator) emit(stage models.Stage, status models.StageStatus, data map[string]interface{}) {
	defer func() { _ = recover() }()
	o.sink.Emit(models.StageUpdate{Stage: stage, Status: status, Data: data})
}

func (o *Orchestrator) writeAudit(ctx context.Context, conversationID, planID string, phase models.AuditPhase, input, output map[string]interface{}, durationMs int64, usage *models.TokenUsage) {
	if o.audit == nil {
		return
	}
	entry := models.AuditEntry{
		ConversationID: conversationID,
		PlanID:         planID,
		Phase:          phase,
		Input:          input,
		Output:         output,
		DurationMs:     durationMs,
		Usage:          usage,
		CreatedAt:      time.Now().UTC(),
	}
	if err := o.audit.Log(ctx, entry); err != nil {
		o.logger.WithError(err).Warn("audit write failed", map[string]interface{}{
			"conversation_id": conversationID,
			"phase":           string(phase),
		})
	}
}

// classificationError maps parser failures onto the error taxonomy. Errors
// already carrying a taxonomy code pass through untouched.
func classificationError(err error) error {
	var std *commonerrors.StandardError
	if errors.As(err, &std) {
		return err
	}
	if errors.Is(err, genai.ErrIntentAPITimeout) {
		return commonerrors.NewIntentAPITimeoutError(err.Error())
	}
	return commonerrors.NewParseFailedError(err)
}

func errorResponse(err error, message string) *models.Response {
	return &models.Response{Outcome: models.OutcomeError, Message: message, ErrorCode: string(commonerrors.CodeOf(err))}
}

func blockingMessage(report *models.GuardReport) string {
	blocks := report.BlockingViolations()
	parts := make([]string, 0, len(blocks))
	for _, v := range blocks {
		parts = append(parts, v.Message)
	}
	return "The request cannot proceed: " + strings.Join(parts, "; ")
}

func intentIDs(intents []models.ParsedIntent) []string {
	ids := make([]string, 0, len(intents))
	for _, in := range intents {
		ids = append(ids, string(in.ID))
	}
	return ids
}
