package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/code-100-precent/EchoLink/pkg/events"
)

func TestRecordHelpers(t *testing.T) {
	framesDroppedTotal.Reset()

	before := testutil.ToFloat64(connectionsTotal)
	RecordConnection()
	RecordConnection()
	assert.Equal(t, before+2, testutil.ToFloat64(connectionsTotal))

	sessionsActive.Set(0)
	SessionOpened()
	SessionOpened()
	assert.Equal(t, float64(2), testutil.ToFloat64(sessionsActive))
	SessionClosed()
	assert.Equal(t, float64(1), testutil.ToFloat64(sessionsActive))

	turnsBefore := testutil.ToFloat64(turnsTotal)
	RecordTurn()
	assert.Equal(t, turnsBefore+1, testutil.ToFloat64(turnsTotal))

	RecordDroppedFrames("asr", 2)
	RecordDroppedFrames("output", 1)
	RecordDroppedFrames("output", 0)
	assert.Equal(t, float64(2), testutil.ToFloat64(framesDroppedTotal.WithLabelValues("asr")))
	assert.Equal(t, float64(1), testutil.ToFloat64(framesDroppedTotal.WithLabelValues("output")))
}

func TestObserveBusCountsEvents(t *testing.T) {
	eventsPublishedTotal.Reset()
	componentErrorsTotal.Reset()

	bus := events.NewBus(zap.NewNop())
	defer bus.Shutdown(events.DefaultShutdownGrace)
	ObserveBus(bus)

	require.True(t, bus.PublishWait(events.NewVADSpeechStart("test", 0.9)))
	require.True(t, bus.PublishWait(events.NewVADSpeechStart("test", 0.9)))
	require.True(t, bus.PublishWait(events.NewASRFinal("test", "你好", 0.85)))

	assert.Equal(t, float64(2), testutil.ToFloat64(eventsPublishedTotal.WithLabelValues(events.VADSpeechStart)))
	assert.Equal(t, float64(1), testutil.ToFloat64(eventsPublishedTotal.WithLabelValues(events.ASRResultFinal)))
}

func TestObserveBusBreaksOutErrors(t *testing.T) {
	eventsPublishedTotal.Reset()
	componentErrorsTotal.Reset()

	bus := events.NewBus(zap.NewNop())
	defer bus.Shutdown(events.DefaultShutdownGrace)
	ObserveBus(bus)

	evt := events.NewError("asr_manager", events.ErrTypeASRConsumer, "recognize failed", "asr_manager", nil)
	require.True(t, bus.PublishWait(evt))

	assert.Equal(t, float64(1), testutil.ToFloat64(eventsPublishedTotal.WithLabelValues(events.ErrorOccurred)))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(componentErrorsTotal.WithLabelValues("asr_manager", events.ErrTypeASRConsumer)))
}

func TestHandlerServesRegistry(t *testing.T) {
	RecordConnection()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "echolink_connections_total")
	assert.Contains(t, body, "echolink_sessions_active")
}
