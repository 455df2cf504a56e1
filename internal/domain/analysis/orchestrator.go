package analysis

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"fro-server/internal/domain/eventbus"
	"fro-server/internal/domain/image"
	platformerrors "fro-server/internal/platform/errors"
	"fro-server/internal/platform/logging"
	"fro-server/internal/platform/observability"
)

// DefaultCallTimeout bounds each remote call.
const DefaultCallTimeout = 45 * time.Second

// Options configures an Orchestrator.
type Options struct {
	Identifier     Identifier
	HealthAnalyzer HealthAnalyzer
	// CareAdvisor is optional; when nil no care guide is produced.
	CareAdvisor CareAdvisor
	CallTimeout time.Duration
	Notifier    *eventbus.Notifier
	Logger      *logging.Logger
}

// Orchestrator runs identification then health analysis for one client.
// The second call never starts unless the first produced a named plant, and
// a failed cycle keeps no partial results.
type Orchestrator struct {
	identifier  Identifier
	health      HealthAnalyzer
	care        CareAdvisor
	callTimeout time.Duration
	notifier    *eventbus.Notifier
	logger      *logging.Logger

	mu    sync.RWMutex
	cycle Cycle

	newID func() string
	now   func() time.Time
}

func NewOrchestrator(opts Options) *Orchestrator {
	timeout := opts.CallTimeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &Orchestrator{
		identifier:  opts.Identifier,
		health:      opts.HealthAnalyzer,
		care:        opts.CareAdvisor,
		callTimeout: timeout,
		notifier:    opts.Notifier,
		logger:      opts.Logger,
		cycle:       Cycle{State: StateIdle},
		newID:       uuid.NewString,
		now:         time.Now,
	}
}

// Cycle returns a snapshot of the current cycle.
func (o *Orchestrator) Cycle() Cycle {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.cycle.clone()
}

// Busy reports whether a cycle is running.
func (o *Orchestrator) Busy() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.cycle.State.Busy()
}

// Clear drops the current cycle and returns to idle.
func (o *Orchestrator) Clear() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cycle.State.Busy() {
		return analysisError(platformerrors.KindAnalysis, "analysis.Orchestrator.Clear", "cannot clear while running", ErrBusy, nil)
	}
	o.cycle = Cycle{State: StateIdle}
	return nil
}

// Run analyzes payload and returns the finished cycle. On error the cycle is
// left in StateError with no results.
func (o *Orchestrator) Run(ctx context.Context, payload *image.Payload) (result Cycle, err error) {
	const op = "analysis.Orchestrator.Run"

	if payload.Empty() {
		o.notifier.Notify(eventbus.NoticeError, noticeNoImageTitle, noticeNoImageBody)
		return o.Cycle(), analysisError(platformerrors.KindAnalysis, op, "no image", ErrNoImage, nil)
	}

	cycleID, started := o.begin()
	if cycleID == "" {
		return o.Cycle(), analysisError(platformerrors.KindAnalysis, op, "cycle in progress", ErrBusy, nil)
	}

	ctx, end := observability.StartSpan(ctx, "analysis", "run")
	defer func() { end(err) }()

	o.logger.InfoTag("ANALYSIS", "cycle %s started (%s, %d bytes)", cycleID, payload.MIMEType, payload.Size())
	o.emit(eventbus.EventAnalysisStarted, cycleID, StateIdentifying, 0, nil)

	ident, err := o.identify(ctx, payload)
	if err != nil {
		return o.fail(cycleID, started, err), err
	}
	o.notifier.Notify(eventbus.NoticeSuccess, noticeIdentifiedTitle, ident.CommonName)

	o.transition(StateHealthAnalyzing, LabelHealthAnalyzing)
	health, err := o.analyzeHealth(ctx, payload, ident.Description)
	if err != nil {
		return o.fail(cycleID, started, err), err
	}
	healthBody := noticeUnhealthyBody
	if health.IsHealthy {
		healthBody = noticeHealthyBody
	}
	o.notifier.Notify(eventbus.NoticeSuccess, noticeHealthTitle, healthBody)

	var guide *CareGuide
	if o.care != nil {
		o.transition(StateHealthAnalyzing, LabelCareGuide)
		guide = o.careGuide(ctx, ident, health)
	}

	o.mu.Lock()
	o.cycle.State = StateDone
	o.cycle.TaskLabel = ""
	o.cycle.Identification = &ident
	o.cycle.Health = &health
	o.cycle.CareGuide = guide
	o.cycle.FinishedAt = o.now()
	result = o.cycle.clone()
	o.mu.Unlock()

	duration := result.FinishedAt.Sub(started)
	o.logger.InfoTag("ANALYSIS", "cycle %s done: %s (%s), healthy=%v in %s",
		cycleID, ident.CommonName, ident.LatinName, health.IsHealthy, duration)
	o.emit(eventbus.EventAnalysisCompleted, cycleID, StateDone, duration, nil)
	observability.RecordMetric(ctx, "analysis.cycles", 1, map[string]string{"outcome": "done"})
	return result, nil
}

// begin atomically moves an idle/done/error orchestrator into Identifying.
// It returns an empty id when a cycle is already running.
func (o *Orchestrator) begin() (string, time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cycle.State.Busy() {
		return "", time.Time{}
	}
	started := o.now()
	o.cycle = Cycle{
		ID:        o.newID(),
		State:     StateIdentifying,
		TaskLabel: LabelIdentifying,
		StartedAt: started,
	}
	return o.cycle.ID, started
}

func (o *Orchestrator) transition(state State, label string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cycle.State = state
	o.cycle.TaskLabel = label
}

func (o *Orchestrator) identify(ctx context.Context, payload *image.Payload) (Identification, error) {
	const op = "analysis.Orchestrator.identify"
	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()

	ident, err := o.identifier.IdentifyPlant(callCtx, payload)
	if err != nil {
		return Identification{}, remoteError(op, "identify plant", callCtx, err)
	}
	if strings.TrimSpace(ident.CommonName) == "" {
		return Identification{}, analysisError(platformerrors.KindAnalysis, op, "empty common name", ErrIdentificationInvalid, nil)
	}
	if !ident.ConfidenceValid() {
		return Identification{}, analysisError(platformerrors.KindRemote, op, "confidence out of range", ErrRemote,
			fmt.Errorf("confidence %v outside [0,1]", ident.Confidence))
	}
	return ident, nil
}

func (o *Orchestrator) analyzeHealth(ctx context.Context, payload *image.Payload, description string) (HealthAnalysis, error) {
	const op = "analysis.Orchestrator.analyzeHealth"
	if strings.TrimSpace(description) == "" {
		description = DescriptionPlaceholder
	}

	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()

	health, err := o.health.AnalyzePlantHealth(callCtx, payload, description)
	if err != nil {
		return HealthAnalysis{}, remoteError(op, "analyze plant health", callCtx, err)
	}
	return health, nil
}

// careGuide never fails the cycle; the health analysis' own tips remain.
func (o *Orchestrator) careGuide(ctx context.Context, ident Identification, health HealthAnalysis) *CareGuide {
	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()

	guide, err := o.care.GenerateCareTips(callCtx, ident.CommonName, HealthSummary(health))
	if err != nil {
		o.logger.WarnTag("ANALYSIS", "care guide for %s skipped: %v", ident.CommonName, err)
		return nil
	}
	if strings.TrimSpace(guide.CareTips) == "" {
		return nil
	}
	return &guide
}

func (o *Orchestrator) fail(cycleID string, started time.Time, err error) Cycle {
	message := FailureMessage(err)

	o.mu.Lock()
	o.cycle = Cycle{
		ID:         cycleID,
		State:      StateError,
		Failure:    message,
		StartedAt:  started,
		FinishedAt: o.now(),
	}
	snapshot := o.cycle.clone()
	o.mu.Unlock()

	o.logger.WarnTag("ANALYSIS", "cycle %s failed: %v", cycleID, err)
	o.notifier.Notify(eventbus.NoticeError, noticeFailedTitle, message)
	o.emit(eventbus.EventAnalysisFailed, cycleID, StateError, snapshot.FinishedAt.Sub(started), err)
	observability.RecordMetric(context.Background(), "analysis.cycles", 1, map[string]string{"outcome": "error"})
	return snapshot
}

func (o *Orchestrator) emit(topic, cycleID string, state State, d time.Duration, err error) {
	data := eventbus.AnalysisEventData{
		ClientID: o.notifier.ClientID(),
		CycleID:  cycleID,
		State:    string(state),
		Duration: d,
	}
	if err != nil {
		data.Error = err.Error()
	}
	o.notifier.Emit(topic, data)
}

// HealthSummary renders a health analysis as the plain text handed to the
// care advisor.
func HealthSummary(h HealthAnalysis) string {
	status := "Requer atenção"
	if h.IsHealthy {
		status = "Saudável"
	}
	return fmt.Sprintf("Estado: %s. Diagnóstico: %s Cuidados imediatos: %s",
		status, strings.TrimSpace(h.Diagnosis), strings.TrimSpace(h.CareTips))
}
