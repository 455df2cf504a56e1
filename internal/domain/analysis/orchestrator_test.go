package analysis

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fro-server/internal/domain/eventbus"
	"fro-server/internal/domain/image"
	platformerrors "fro-server/internal/platform/errors"
	fixtures "fro-server/internal/platform/testing"
)

type stubIdentifier struct {
	result Identification
	err    error
	block  chan struct{}
	calls  atomic.Int32
}

func (s *stubIdentifier) IdentifyPlant(ctx context.Context, _ *image.Payload) (Identification, error) {
	s.calls.Add(1)
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return Identification{}, ctx.Err()
		}
	}
	return s.result, s.err
}

type stubHealth struct {
	result      HealthAnalysis
	err         error
	calls       atomic.Int32
	description string
	observed    []State
	orch        *Orchestrator
}

func (s *stubHealth) AnalyzePlantHealth(_ context.Context, _ *image.Payload, description string) (HealthAnalysis, error) {
	s.calls.Add(1)
	s.description = description
	if s.orch != nil {
		s.observed = append(s.observed, s.orch.Cycle().State)
	}
	return s.result, s.err
}

type stubCare struct {
	result CareGuide
	err    error
	input  [2]string
}

func (s *stubCare) GenerateCareTips(_ context.Context, plantName, healthAnalysis string) (CareGuide, error) {
	s.input = [2]string{plantName, healthAnalysis}
	return s.result, s.err
}

func testPayload(t *testing.T) *image.Payload {
	return &image.Payload{Data: fixtures.JPEGBytes(t, 8, 8), MIMEType: "image/jpeg", Width: 8, Height: 8}
}

type recorder struct {
	mu      sync.Mutex
	notices []eventbus.Notice
	bus     *eventbus.AsyncEventBus
}

func newRecorder(t *testing.T) (*recorder, *eventbus.Notifier) {
	bus := eventbus.NewAsyncEventBus(1)
	bus.Start()
	t.Cleanup(bus.Stop)
	r := &recorder{bus: bus}
	require.NoError(t, bus.Subscribe(eventbus.EventNotice, func(n eventbus.Notice) {
		r.mu.Lock()
		r.notices = append(r.notices, n)
		r.mu.Unlock()
	}))
	return r, eventbus.NewNotifier(bus, "client-1")
}

func (r *recorder) all() []eventbus.Notice {
	r.bus.Flush()
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]eventbus.Notice(nil), r.notices...)
}

func newOrchestrator(t *testing.T, id Identifier, health HealthAnalyzer, care CareAdvisor, notifier *eventbus.Notifier) *Orchestrator {
	return NewOrchestrator(Options{
		Identifier:     id,
		HealthAnalyzer: health,
		CareAdvisor:    care,
		CallTimeout:    time.Second,
		Notifier:       notifier,
		Logger:         fixtures.SetupTestLogger(t),
	})
}

func TestRunSamambaiaReturnsResultsUnmodified(t *testing.T) {
	ident := &stubIdentifier{result: Identification{CommonName: "Samambaia", LatinName: "Nephrolepis exaltata", Confidence: 0.92, Description: "fern"}}
	health := &stubHealth{result: HealthAnalysis{IsHealthy: false, Diagnosis: "leaf spot", CareTips: "reduce watering"}}
	rec, notifier := newRecorder(t)
	o := newOrchestrator(t, ident, health, nil, notifier)
	health.orch = o

	cycle, err := o.Run(context.Background(), testPayload(t))
	require.NoError(t, err)

	assert.Equal(t, StateDone, cycle.State)
	assert.Empty(t, cycle.TaskLabel)
	assert.False(t, cycle.Loading())
	assert.Equal(t, ident.result, *cycle.Identification)
	assert.Equal(t, health.result, *cycle.Health)
	assert.Nil(t, cycle.CareGuide)
	assert.Equal(t, "fern", health.description)
	assert.Equal(t, []State{StateHealthAnalyzing}, health.observed)
	assert.Equal(t, cycle, o.Cycle())

	var titles []string
	for _, n := range rec.all() {
		titles = append(titles, n.Title)
	}
	assert.Equal(t, []string{noticeIdentifiedTitle, noticeHealthTitle}, titles)
}

func TestRunEmptyCommonNameNeverCallsHealth(t *testing.T) {
	ident := &stubIdentifier{result: Identification{CommonName: "  ", Description: "?"}}
	health := &stubHealth{}
	rec, notifier := newRecorder(t)
	o := newOrchestrator(t, ident, health, nil, notifier)

	cycle, err := o.Run(context.Background(), testPayload(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIdentificationInvalid)
	assert.Equal(t, StateError, cycle.State)
	assert.Nil(t, cycle.Identification)
	assert.Equal(t, int32(0), health.calls.Load())

	notices := rec.all()
	require.Len(t, notices, 1)
	assert.Equal(t, noticeFailedTitle, notices[0].Title)
	assert.Equal(t, failureUnidentified, notices[0].Message)
}

func TestRunRejectsConfidenceOutsideUnitRange(t *testing.T) {
	for _, confidence := range []float64{92, -0.1} {
		ident := &stubIdentifier{result: Identification{CommonName: "Samambaia", Confidence: confidence}}
		health := &stubHealth{}
		o := newOrchestrator(t, ident, health, nil, nil)

		cycle, err := o.Run(context.Background(), testPayload(t))
		assert.ErrorIs(t, err, ErrRemote, "confidence %v", confidence)
		assert.Equal(t, StateError, cycle.State)
		assert.Nil(t, cycle.Identification)
		assert.Equal(t, int32(0), health.calls.Load())
	}
}

func TestRunHealthFailureDiscardsIdentification(t *testing.T) {
	ident := &stubIdentifier{result: Identification{CommonName: "Costela-de-adão"}}
	health := &stubHealth{err: errors.New("503 upstream")}
	o := newOrchestrator(t, ident, health, nil, nil)

	cycle, err := o.Run(context.Background(), testPayload(t))
	assert.ErrorIs(t, err, ErrRemote)
	assert.True(t, platformerrors.IsKind(err, platformerrors.KindRemote))
	assert.Equal(t, StateError, cycle.State)
	assert.Nil(t, cycle.Identification)
	assert.Nil(t, cycle.Health)
	assert.Equal(t, failureGeneric, cycle.Failure)
	assert.Equal(t, DescriptionPlaceholder, health.description)
}

func TestRunIdentifierErrorSkipsHealth(t *testing.T) {
	ident := &stubIdentifier{err: errors.New("quota exceeded")}
	health := &stubHealth{}
	o := newOrchestrator(t, ident, health, nil, nil)

	_, err := o.Run(context.Background(), testPayload(t))
	assert.ErrorIs(t, err, ErrRemote)
	assert.Equal(t, int32(0), health.calls.Load())
}

func TestRunTimeout(t *testing.T) {
	ident := &stubIdentifier{block: make(chan struct{})}
	o := NewOrchestrator(Options{
		Identifier:     ident,
		HealthAnalyzer: &stubHealth{},
		CallTimeout:    20 * time.Millisecond,
		Logger:         fixtures.SetupTestLogger(t),
	})

	cycle, err := o.Run(context.Background(), testPayload(t))
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, failureTimeout, cycle.Failure)
}

func TestRunWithoutImage(t *testing.T) {
	rec, notifier := newRecorder(t)
	o := newOrchestrator(t, &stubIdentifier{}, &stubHealth{}, nil, notifier)

	cycle, err := o.Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoImage)
	assert.Equal(t, StateIdle, cycle.State)

	_, err = o.Run(context.Background(), &image.Payload{})
	assert.ErrorIs(t, err, ErrNoImage)

	notices := rec.all()
	require.NotEmpty(t, notices)
	assert.Equal(t, noticeNoImageTitle, notices[0].Title)
}

func TestRunRejectsConcurrentCycle(t *testing.T) {
	ident := &stubIdentifier{block: make(chan struct{}), result: Identification{CommonName: "Jiboia"}}
	o := newOrchestrator(t, ident, &stubHealth{}, nil, nil)
	payload := testPayload(t)

	done := make(chan error, 1)
	go func() {
		_, err := o.Run(context.Background(), payload)
		done <- err
	}()

	require.Eventually(t, o.Busy, time.Second, time.Millisecond)
	snapshot := o.Cycle()
	assert.Equal(t, StateIdentifying, snapshot.State)
	assert.Equal(t, LabelIdentifying, snapshot.TaskLabel)
	assert.True(t, snapshot.Loading())

	_, err := o.Run(context.Background(), payload)
	assert.ErrorIs(t, err, ErrBusy)
	assert.ErrorIs(t, o.Clear(), ErrBusy)

	close(ident.block)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), ident.calls.Load())
}

func TestRunClearsPreviousCycle(t *testing.T) {
	ident := &stubIdentifier{result: Identification{CommonName: "Jiboia"}}
	health := &stubHealth{result: HealthAnalysis{IsHealthy: true}}
	o := newOrchestrator(t, ident, health, nil, nil)

	first, err := o.Run(context.Background(), testPayload(t))
	require.NoError(t, err)

	ident.result = Identification{}
	second, err := o.Run(context.Background(), testPayload(t))
	require.Error(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Nil(t, o.Cycle().Health)

	require.NoError(t, o.Clear())
	assert.Equal(t, Cycle{State: StateIdle}, o.Cycle())
}

func TestRunCareGuide(t *testing.T) {
	ident := &stubIdentifier{result: Identification{CommonName: "Samambaia", Description: "fern"}}
	health := &stubHealth{result: HealthAnalysis{IsHealthy: false, Diagnosis: "leaf spot", CareTips: "reduce watering"}}

	t.Run("attached when advisor succeeds", func(t *testing.T) {
		care := &stubCare{result: CareGuide{CareTips: "Rega: pouca"}}
		o := newOrchestrator(t, ident, health, care, nil)

		cycle, err := o.Run(context.Background(), testPayload(t))
		require.NoError(t, err)
		require.NotNil(t, cycle.CareGuide)
		assert.Equal(t, "Rega: pouca", cycle.CareGuide.CareTips)
		assert.Equal(t, "Samambaia", care.input[0])
		assert.Contains(t, care.input[1], "leaf spot")
	})

	t.Run("advisor failure keeps the cycle", func(t *testing.T) {
		care := &stubCare{err: errors.New("boom")}
		o := newOrchestrator(t, ident, health, care, nil)

		cycle, err := o.Run(context.Background(), testPayload(t))
		require.NoError(t, err)
		assert.Equal(t, StateDone, cycle.State)
		assert.Nil(t, cycle.CareGuide)
		assert.Equal(t, "reduce watering", cycle.Health.CareTips)
	})
}

func TestFailureMessage(t *testing.T) {
	assert.Equal(t, "", FailureMessage(nil))
	assert.Equal(t, failureTimeout, FailureMessage(analysisError(platformerrors.KindRemote, "op", "m", ErrTimeout, nil)))
	assert.Equal(t, failureGeneric, FailureMessage(errors.New("x")))
}
