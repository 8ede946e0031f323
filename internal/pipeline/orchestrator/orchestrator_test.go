// internal/pipeline/orchestrator/orchestrator_test.go
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"po-copilot/internal/backend"
	commonerrors "po-copilot/internal/common/errors"
	"po-copilot/internal/common/logger"
	"po-copilot/internal/genai"
	"po-copilot/internal/models"
	"po-copilot/internal/pipeline/corroborate"
	"po-copilot/internal/pipeline/guard"
	"po-copilot/internal/pipeline/plan"
	"po-copilot/internal/pipeline/validate"
	"po-copilot/pkg/registry"
)

// ==========================================
// Fakes
// ==========================================

type fakeParser struct {
	result *models.ParseResult
	err    error
	panics bool
}

func (f *fakeParser) Parse(_ context.Context, _ string, _ *models.ConversationContext) (*models.ParseResult, error) {
	if f.panics {
		panic("classifier client is nil")
	}
	return f.result, f.err
}

type fakeResolver struct {
	resolved map[models.IntentID]*models.ResolvedIntent
	err      error
	calls    int
}

func (f *fakeResolver) Resolve(_ context.Context, intent models.ParsedIntent, _ *models.ConversationContext) (*models.ResolvedIntent, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	ri, ok := f.resolved[intent.ID]
	if !ok {
		return nil, fmt.Errorf("no record for %s", intent.ID)
	}
	// carry the parsed fields through like the real resolver does
	out := *ri
	out.Intent = intent
	return &out, nil
}

type fakeExecutor struct {
	fail bool
}

func (f *fakeExecutor) Execute(_ context.Context, p *models.ExecutionPlan) *models.ExecutionResult {
	result := &models.ExecutionResult{PlanID: p.PlanID, OverallSuccess: !f.fail}
	for _, a := range p.Actions {
		result.Results = append(result.Results, models.ActionResult{IntentID: a.IntentID, Success: !f.fail})
	}
	return result
}

type memConversations struct {
	conversations map[string]*models.Conversation
	contexts      map[string]*models.ConversationContext
	messages      map[string][]models.Message
}

func newMemConversations(ids ...string) *memConversations {
	m := &memConversations{
		conversations: map[string]*models.Conversation{},
		contexts:      map[string]*models.ConversationContext{},
		messages:      map[string][]models.Message{},
	}
	for _, id := range ids {
		m.conversations[id] = &models.Conversation{ID: id}
		m.contexts[id] = &models.ConversationContext{ConversationID: id}
	}
	return m
}

func (m *memConversations) Get(_ context.Context, id string) (*models.Conversation, error) {
	c, ok := m.conversations[id]
	if !ok {
		return nil, commonerrors.NewConversationError(id)
	}
	return c, nil
}

func (m *memConversations) AppendMessage(_ context.Context, id string, msg models.Message) error {
	m.messages[id] = append(m.messages[id], msg)
	return nil
}

func (m *memConversations) GetContext(_ context.Context, id string) (*models.ConversationContext, error) {
	return m.contexts[id], nil
}

func (m *memConversations) RememberEntities(_ context.Context, id string, entities []models.ActiveEntity) error {
	for _, e := range entities {
		m.contexts[id].AddEntity(e, 0)
	}
	return nil
}

type memPlans struct {
	plans map[string]*models.ExecutionPlan
}

func newMemPlans() *memPlans { return &memPlans{plans: map[string]*models.ExecutionPlan{}} }

func (m *memPlans) Save(_ context.Context, p *models.ExecutionPlan) error {
	m.plans[p.PlanID] = p
	return nil
}

func (m *memPlans) Get(_ context.Context, planID string) (*models.ExecutionPlan, error) {
	p, ok := m.plans[planID]
	if !ok {
		return nil, commonerrors.NewPlanNotFoundError(planID)
	}
	return p, nil
}

func (m *memPlans) Approve(_ context.Context, planID string) error {
	return m.transition(planID, models.PlanApproved, models.PlanPending)
}

func (m *memPlans) Reject(_ context.Context, planID string) error {
	return m.transition(planID, models.PlanRejected, models.PlanPending)
}

func (m *memPlans) MarkExecuted(_ context.Context, planID string, success bool) error {
	to := models.PlanExecuted
	if !success {
		to = models.PlanFailed
	}
	return m.transition(planID, to, models.PlanPending, models.PlanApproved)
}

func (m *memPlans) transition(planID string, to models.PlanStatus, from ...models.PlanStatus) error {
	p, ok := m.plans[planID]
	if !ok {
		return commonerrors.NewPlanNotFoundError(planID)
	}
	for _, f := range from {
		if p.Status == f {
			p.Status = to
			return nil
		}
	}
	return commonerrors.NewPlanStatusConflictError(planID, string(to))
}

type recordingAudit struct {
	entries []models.AuditEntry
}

func (r *recordingAudit) Log(_ context.Context, entry models.AuditEntry) error {
	r.entries = append(r.entries, entry)
	return nil
}

func (r *recordingAudit) phases() []models.AuditPhase {
	out := make([]models.AuditPhase, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Phase)
	}
	return out
}

type fakeHealth struct {
	status *backend.HealthStatus
	err    error
}

func (f *fakeHealth) Health(_ context.Context) (*backend.HealthStatus, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.status, nil
}

type fakeNotifier struct {
	notified []*models.ExecutionPlan
}

func (f *fakeNotifier) PlanAwaitingApproval(_ context.Context, p *models.ExecutionPlan) {
	f.notified = append(f.notified, p)
}

type fakeObserver struct {
	spans    []string
	outcomes []string
}

func (f *fakeObserver) StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	f.spans = append(f.spans, name)
	return ctx, trace.SpanFromContext(ctx)
}

func (f *fakeObserver) RecordRequest(_ context.Context, outcome string) {
	f.outcomes = append(f.outcomes, outcome)
}

func (f *fakeObserver) RecordRequestDuration(_ context.Context, _ time.Duration, _ string) {}

// ==========================================
// Fixture
// ==========================================

type fixture struct {
	orchestrator  *Orchestrator
	parser        *fakeParser
	resolver      *fakeResolver
	executor      *fakeExecutor
	conversations *memConversations
	plans         *memPlans
	audit         *recordingAudit
	health        *fakeHealth
	notifier      *fakeNotifier
	observer      *fakeObserver
	sink          *ChannelSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logger.NewNoOpLogger()
	reg := registry.Builtin()
	f := &fixture{
		parser:        &fakeParser{},
		resolver:      &fakeResolver{resolved: map[models.IntentID]*models.ResolvedIntent{}},
		executor:      &fakeExecutor{},
		conversations: newMemConversations("conv-1"),
		plans:         newMemPlans(),
		audit:         &recordingAudit{},
		health:        &fakeHealth{status: &backend.HealthStatus{Status: "ok"}},
		notifier:      &fakeNotifier{},
		observer:      &fakeObserver{},
		sink:          NewChannelSink(64),
	}
	f.orchestrator = New(Params{
		Parser:        f.parser,
		Validator:     validate.NewValidator(reg),
		Resolver:      f.resolver,
		Corroborator:  corroborate.NewCorroborator(log),
		Guard:         guard.NewEngine(reg, log),
		Builder:       plan.NewBuilder(reg, log),
		Executor:      f.executor,
		Conversations: f.conversations,
		Plans:         f.plans,
		Audit:         f.audit,
		Health:        f.health,
		Notifier:      f.notifier,
		Sink:          f.sink,
		Observer:      f.observer,
		Threshold:     0.6,
		Logger:        log,
	})
	return f
}

func (f *fixture) drainEvents() []models.StageUpdate {
	var out []models.StageUpdate
	for {
		select {
		case u := <-f.sink.C:
			out = append(out, u)
		default:
			return out
		}
	}
}

func orderedEntity() models.ResolvedEntity {
	return models.ResolvedEntity{
		OriginalValue: "4500001234",
		ResolvedValue: "4500001234",
		ResolvedLabel: "4500001234 (ACME Industrial)",
		Confidence:    models.ResolutionExact,
		MatchType:     models.MatchLiteral,
		EntityType:    models.EntityPurchaseOrder,
		Metadata: &models.RecordSnapshot{
			EntityType: models.EntityPurchaseOrder,
			Order: &models.OrderSnapshot{
				OrderNumber:     "4500001234",
				SupplierName:    "ACME Industrial",
				Currency:        "EUR",
				ReleaseComplete: true,
			},
		},
	}
}

func lineItemEntity(item *models.ItemSnapshot) models.ResolvedEntity {
	return models.ResolvedEntity{
		OriginalValue: item.ItemNumber,
		ResolvedValue: item.ItemNumber,
		ResolvedLabel: fmt.Sprintf("item %s (%s)", item.ItemNumber, item.Description),
		Confidence:    models.ResolutionExact,
		MatchType:     models.MatchLiteral,
		EntityType:    models.EntityPOItem,
		Metadata:      &models.RecordSnapshot{EntityType: models.EntityPOItem, Item: item},
	}
}

func noteIntent() models.ParsedIntent {
	return models.ParsedIntent{
		ID:         models.IntentAddPONote,
		Confidence: 0.9,
		Fields: map[string]interface{}{
			"orderNumber": "4500001234",
			"note":        "supplier confirmed the shipment",
		},
	}
}

// ==========================================
// Terminal outcomes
// ==========================================

func TestHandle_AutoExecutedNote(t *testing.T) {
	f := newFixture(t)
	f.parser.result = &models.ParseResult{Intents: []models.ParsedIntent{noteIntent()}}
	f.resolver.resolved[models.IntentAddPONote] = &models.ResolvedIntent{
		Entities: []models.ResolvedEntity{orderedEntity()},
	}

	resp := f.orchestrator.Handle(context.Background(), "conv-1", "note on order 4500001234: supplier confirmed the shipment")

	require.Equal(t, models.OutcomeExecuted, resp.Outcome)
	require.NotNil(t, resp.Plan)
	require.NotNil(t, resp.Execution)
	assert.True(t, resp.Execution.OverallSuccess)
	// notes bypass approval entirely
	assert.False(t, resp.Plan.RequiresApproval)
	assert.Empty(t, f.notifier.notified)

	stored, err := f.plans.Get(context.Background(), resp.Plan.PlanID)
	require.NoError(t, err)
	assert.Equal(t, models.PlanExecuted, stored.Status)

	// user turn plus assistant summary were persisted
	msgs := f.conversations.messages["conv-1"]
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "assistant", msgs[1].Role)
}

func TestHandle_WritePlanAwaitsApproval(t *testing.T) {
	f := newFixture(t)
	item := &models.ItemSnapshot{OrderNumber: "4500001234", ItemNumber: "00010", Description: "steel bolts M8", Quantity: 100, Currency: "EUR"}
	f.parser.result = &models.ParseResult{Intents: []models.ParsedIntent{{
		ID:         models.IntentUpdatePOItem,
		Confidence: 0.9,
		Fields: map[string]interface{}{
			"orderNumber": "4500001234",
			"itemNumber":  "10",
			"updates":     map[string]interface{}{"quantity": float64(150)},
		},
	}}}
	f.resolver.resolved[models.IntentUpdatePOItem] = &models.ResolvedIntent{
		Entities: []models.ResolvedEntity{orderedEntity(), lineItemEntity(item)},
	}

	resp := f.orchestrator.Handle(context.Background(), "conv-1", "set item 10 on order 4500001234 to 150")

	require.Equal(t, models.OutcomePlanPending, resp.Outcome)
	require.NotNil(t, resp.Plan)
	assert.True(t, resp.Plan.RequiresApproval)
	require.Len(t, f.notifier.notified, 1)

	stored, err := f.plans.Get(context.Background(), resp.Plan.PlanID)
	require.NoError(t, err)
	assert.Equal(t, models.PlanPending, stored.Status)

	// approval runs the stored plan to completion
	approveResp := f.orchestrator.Approve(context.Background(), resp.Plan.PlanID)
	require.Equal(t, models.OutcomeExecuted, approveResp.Outcome)
	stored, err = f.plans.Get(context.Background(), resp.Plan.PlanID)
	require.NoError(t, err)
	assert.Equal(t, models.PlanExecuted, stored.Status)

	// a second approval hits the lifecycle guard
	again := f.orchestrator.Approve(context.Background(), resp.Plan.PlanID)
	require.Equal(t, models.OutcomeError, again.Outcome)
	assert.Equal(t, string(commonerrors.ErrCodePlanStatusConflict), again.ErrorCode)
}

func TestHandle_MissingFieldsClarification(t *testing.T) {
	f := newFixture(t)
	f.parser.result = &models.ParseResult{Intents: []models.ParsedIntent{{
		ID:         models.IntentGetPurchaseOrder,
		Confidence: 0.9,
		Fields:     map[string]interface{}{},
	}}}

	resp := f.orchestrator.Handle(context.Background(), "conv-1", "show me that order")

	require.Equal(t, models.OutcomeClarification, resp.Outcome)
	assert.Equal(t, []string{"orderNumber"}, resp.MissingFields)
	assert.Contains(t, resp.Message, "orderNumber")
	// the pipeline never reached resolution
	assert.Zero(t, f.resolver.calls)
}

func TestHandle_NoIntentsClarification(t *testing.T) {
	f := newFixture(t)
	f.parser.result = &models.ParseResult{UnhandledContent: "That looks like a question about invoices, which I cannot handle."}

	resp := f.orchestrator.Handle(context.Background(), "conv-1", "why was invoice 990 short-paid?")

	require.Equal(t, models.OutcomeClarification, resp.Outcome)
	assert.Equal(t, "That looks like a question about invoices, which I cannot handle.", resp.Message)
}

func TestHandle_UnknownConversation(t *testing.T) {
	f := newFixture(t)

	resp := f.orchestrator.Handle(context.Background(), "nope", "show order 4500001234")

	require.Equal(t, models.OutcomeError, resp.Outcome)
	assert.Equal(t, string(commonerrors.ErrCodeConversationError), resp.ErrorCode)
}

func TestHandle_GuardBlockClarification(t *testing.T) {
	f := newFixture(t)
	item := &models.ItemSnapshot{OrderNumber: "4500001234", ItemNumber: "00010", Description: "steel bolts M8", Quantity: 100}
	f.parser.result = &models.ParseResult{Intents: []models.ParsedIntent{{
		ID:         models.IntentUpdatePOItem,
		Confidence: 0.9,
		Fields: map[string]interface{}{
			"orderNumber": "4500001234",
			"itemNumber":  "10",
			"updates":     map[string]interface{}{"quantity": float64(-44)},
		},
	}}}
	f.resolver.resolved[models.IntentUpdatePOItem] = &models.ResolvedIntent{
		Entities: []models.ResolvedEntity{orderedEntity(), lineItemEntity(item)},
	}

	resp := f.orchestrator.Handle(context.Background(), "conv-1", "set item 10 to -44")

	require.Equal(t, models.OutcomeClarification, resp.Outcome)
	assert.Contains(t, resp.Message, "cannot proceed")
	require.NotEmpty(t, resp.Violations)
	// nothing was planned or executed
	assert.Empty(t, f.plans.plans)
}

// ==========================================
// Resolution stage
// ==========================================

func TestHandle_BackendDownShortCircuits(t *testing.T) {
	f := newFixture(t)
	f.health.err = errors.New("connection refused")
	f.parser.result = &models.ParseResult{Intents: []models.ParsedIntent{noteIntent()}}

	resp := f.orchestrator.Handle(context.Background(), "conv-1", "note it down")

	require.Equal(t, models.OutcomeError, resp.Outcome)
	assert.Equal(t, string(commonerrors.ErrCodeBackendUnavailable), resp.ErrorCode)
	assert.Zero(t, f.resolver.calls)
	// the aborted probe still leaves a resolve-phase audit trail
	assert.Contains(t, f.audit.phases(), models.PhaseResolve)
}

func TestHandle_DegradedBackendStillResolves(t *testing.T) {
	f := newFixture(t)
	f.health.status = &backend.HealthStatus{Status: "degraded", Message: "replica lag"}
	f.parser.result = &models.ParseResult{Intents: []models.ParsedIntent{noteIntent()}}
	f.resolver.resolved[models.IntentAddPONote] = &models.ResolvedIntent{
		Entities: []models.ResolvedEntity{orderedEntity()},
	}

	resp := f.orchestrator.Handle(context.Background(), "conv-1", "note: supplier confirmed")

	assert.Equal(t, models.OutcomeExecuted, resp.Outcome)
	assert.Equal(t, 1, f.resolver.calls)
}

func TestHandle_AllResolutionsFail(t *testing.T) {
	f := newFixture(t)
	f.parser.result = &models.ParseResult{Intents: []models.ParsedIntent{noteIntent()}}
	f.resolver.err = errors.New("no purchase order matches")

	resp := f.orchestrator.Handle(context.Background(), "conv-1", "note on order 99")

	require.Equal(t, models.OutcomeError, resp.Outcome)
	assert.Equal(t, string(commonerrors.ErrCodeResolutionFailed), resp.ErrorCode)
}

func TestHandle_PartialResolutionProceeds(t *testing.T) {
	f := newFixture(t)
	f.parser.result = &models.ParseResult{Intents: []models.ParsedIntent{
		noteIntent(),
		{ID: models.IntentGetPurchaseOrder, Confidence: 0.9, Fields: map[string]interface{}{"orderNumber": "4500000000"}},
	}}
	// only the note's order resolves; the second intent fails and is dropped
	f.resolver.resolved[models.IntentAddPONote] = &models.ResolvedIntent{
		Entities: []models.ResolvedEntity{orderedEntity()},
	}

	resp := f.orchestrator.Handle(context.Background(), "conv-1", "note it, and show order 4500000000")

	require.Equal(t, models.OutcomeExecuted, resp.Outcome)
	require.Len(t, resp.Plan.Actions, 1)
	assert.Equal(t, models.IntentAddPONote, resp.Plan.Actions[0].IntentID)
}

func TestHandle_LowConfidenceClarification(t *testing.T) {
	f := newFixture(t)
	intent := noteIntent()
	intent.Confidence = 0.3
	f.parser.result = &models.ParseResult{Intents: []models.ParsedIntent{intent}}
	f.resolver.resolved[models.IntentAddPONote] = &models.ResolvedIntent{
		Entities: []models.ResolvedEntity{orderedEntity()},
	}

	resp := f.orchestrator.Handle(context.Background(), "conv-1", "note something somewhere")

	require.Equal(t, models.OutcomeClarification, resp.Outcome)
	assert.Contains(t, resp.Message, "confident")
}

func TestHandle_RemembersResolvedEntities(t *testing.T) {
	f := newFixture(t)
	f.parser.result = &models.ParseResult{Intents: []models.ParsedIntent{noteIntent()}}
	f.resolver.resolved[models.IntentAddPONote] = &models.ResolvedIntent{
		Entities: []models.ResolvedEntity{orderedEntity()},
	}

	_ = f.orchestrator.Handle(context.Background(), "conv-1", "note: supplier confirmed")

	active := f.conversations.contexts["conv-1"].LatestEntity(models.EntityPurchaseOrder)
	require.NotNil(t, active)
	assert.Equal(t, "4500001234", active.Value)
}

// ==========================================
// Fault handling and eventing
// ==========================================

func TestHandle_ParseFailureCarriesTaxonomyCode(t *testing.T) {
	f := newFixture(t)
	f.parser.err = fmt.Errorf("%w: classifier returned 500", genai.ErrParseFailed)

	resp := f.orchestrator.Handle(context.Background(), "conv-1", "update the order")

	require.Equal(t, models.OutcomeError, resp.Outcome)
	assert.Equal(t, string(commonerrors.ErrCodeParseFailed), resp.ErrorCode)
}

func TestHandle_ClassifierTimeoutCarriesTimeoutCode(t *testing.T) {
	f := newFixture(t)
	f.parser.err = genai.ErrIntentAPITimeout

	resp := f.orchestrator.Handle(context.Background(), "conv-1", "update the order")

	require.Equal(t, models.OutcomeError, resp.Outcome)
	assert.Equal(t, string(commonerrors.ErrCodeIntentAPITimeout), resp.ErrorCode)
}

func TestHandle_PanicBecomesErrorOutcome(t *testing.T) {
	f := newFixture(t)
	f.parser.panics = true

	resp := f.orchestrator.Handle(context.Background(), "conv-1", "anything")

	require.Equal(t, models.OutcomeError, resp.Outcome)
	assert.Equal(t, string(commonerrors.ErrCodeInternal), resp.ErrorCode)
}

func TestHandle_SpansEveryStage(t *testing.T) {
	f := newFixture(t)
	f.parser.result = &models.ParseResult{Intents: []models.ParsedIntent{noteIntent()}}
	f.resolver.resolved[models.IntentAddPONote] = &models.ResolvedIntent{
		Entities: []models.ResolvedEntity{orderedEntity()},
	}

	resp := f.orchestrator.Handle(context.Background(), "conv-1", "note: supplier confirmed")

	require.Equal(t, models.OutcomeExecuted, resp.Outcome)
	assert.Equal(t, []string{
		"pipeline.parse",
		"pipeline.validate",
		"pipeline.resolve",
		"pipeline.plan",
		"pipeline.execute",
	}, f.observer.spans)
	assert.Equal(t, []string{"executed"}, f.observer.outcomes)
}

func TestHandle_EmitsStageSequence(t *testing.T) {
	f := newFixture(t)
	f.parser.result = &models.ParseResult{Intents: []models.ParsedIntent{noteIntent()}}
	f.resolver.resolved[models.IntentAddPONote] = &models.ResolvedIntent{
		Entities: []models.ResolvedEntity{orderedEntity()},
	}

	resp := f.orchestrator.Handle(context.Background(), "conv-1", "note: supplier confirmed")
	require.Equal(t, models.OutcomeExecuted, resp.Outcome)

	var sequence []string
	for _, u := range f.drainEvents() {
		sequence = append(sequence, string(u.Stage)+":"+string(u.Status))
	}
	assert.Equal(t, []string{
		"parsing:started", "parsing:completed",
		"validating:started", "validating:completed",
		"resolving:started", "resolving:completed",
		"planning:started", "planning:completed",
		"executing:started", "executing:completed",
	}, sequence)
}

func TestHandle_PanickingSinkIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.parser.result = &models.ParseResult{Intents: []models.ParsedIntent{noteIntent()}}
	f.resolver.resolved[models.IntentAddPONote] = &models.ResolvedIntent{
		Entities: []models.ResolvedEntity{orderedEntity()},
	}
	f.orchestrator.sink = panickingSink{}

	resp := f.orchestrator.Handle(context.Background(), "conv-1", "note: supplier confirmed")

	assert.Equal(t, models.OutcomeExecuted, resp.Outcome)
}

type panickingSink struct{}

func (panickingSink) Emit(models.StageUpdate) { panic("sink gone") }

func TestHandle_AuditTrailCoversPhases(t *testing.T) {
	f := newFixture(t)
	f.parser.result = &models.ParseResult{
		Intents: []models.ParsedIntent{noteIntent()},
		Usage:   &models.TokenUsage{PromptTokens: 812, CompletionTokens: 96},
	}
	f.resolver.resolved[models.IntentAddPONote] = &models.ResolvedIntent{
		Entities: []models.ResolvedEntity{orderedEntity()},
	}

	_ = f.orchestrator.Handle(context.Background(), "conv-1", "note: supplier confirmed")

	phases := f.audit.phases()
	assert.Contains(t, phases, models.PhaseParse)
	assert.Contains(t, phases, models.PhaseValidate)
	assert.Contains(t, phases, models.PhaseResolve)
	assert.Contains(t, phases, models.PhasePlan)

	// classifier usage is carried into the parse entry
	for _, e := range f.audit.entries {
		if e.Phase == models.PhaseParse {
			require.NotNil(t, e.Usage)
			assert.Equal(t, 812, e.Usage.PromptTokens)
		}
	}
}

func TestReject_MarksPlanRejected(t *testing.T) {
	f := newFixture(t)
	p := &models.ExecutionPlan{PlanID: "plan-9", ConversationID: "conv-1", Status: models.PlanPending}
	require.NoError(t, f.plans.Save(context.Background(), p))

	require.NoError(t, f.orchestrator.Reject(context.Background(), "plan-9"))

	stored, err := f.plans.Get(context.Background(), "plan-9")
	require.NoError(t, err)
	assert.Equal(t, models.PlanRejected, stored.Status)

	// rejected plans cannot be approved afterwards
	resp := f.orchestrator.Approve(context.Background(), "plan-9")
	require.Equal(t, models.OutcomeError, resp.Outcome)
	assert.Equal(t, string(commonerrors.ErrCodePlanStatusConflict), resp.ErrorCode)
}
