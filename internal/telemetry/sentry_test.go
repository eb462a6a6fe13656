package telemetry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supermechanical/rangelink/internal/errors"
)

// mockTransport captures events instead of sending them.
type mockTransport struct {
	mu     sync.Mutex
	events []*sentry.Event
}

func (t *mockTransport) Configure(sentry.ClientOptions) {}

func (t *mockTransport) SendEvent(event *sentry.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, event)
}

func (t *mockTransport) Flush(time.Duration) bool              { return true }
func (t *mockTransport) FlushWithContext(context.Context) bool { return true }
func (t *mockTransport) Close()                                {}

func (t *mockTransport) captured() []*sentry.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*sentry.Event(nil), t.events...)
}

func newTestReporter(t *testing.T) (*Reporter, *mockTransport) {
	t.Helper()
	tr := &mockTransport{}
	r, err := NewReporter(Config{Environment: "test", Release: "dev", Transport: tr}, nil)
	require.NoError(t, err)
	return r, tr
}

func TestReportCapturesCategorisedError(t *testing.T) {
	r, tr := newTestReporter(t)

	r.Report(errors.Newf("device vanished").
		Component("audiosession").
		Category(errors.CategoryAudioSource).
		Priority(errors.PriorityHigh).
		Context("device", "USB headset").
		Build())

	events := tr.captured()
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, sentry.LevelError, ev.Level)
	assert.Equal(t, "audiosession", ev.Tags["component"])
	assert.Equal(t, "audio-source", ev.Tags["category"])
	require.Len(t, ev.Exception, 1)
	assert.Equal(t, "device vanished", ev.Exception[0].Value)
	assert.Equal(t, "rangelink@dev", ev.Release)
	assert.Empty(t, ev.ServerName)
}

func TestReportSkipsUserErrors(t *testing.T) {
	r, tr := newTestReporter(t)

	r.Report(errors.Newf("bad input").Component("conf").Category(errors.CategoryValidation).Build())
	r.Report(errors.Newf("gone").Component("timeseries").Category(errors.CategoryNotFound).Build())
	r.Report(nil)

	assert.Empty(t, tr.captured())
}

func TestReportDeduplicates(t *testing.T) {
	r, tr := newTestReporter(t)

	build := func(msg string) *errors.EnhancedError {
		return errors.Newf("%s", msg).Component("mqtt").Category(errors.CategoryMQTTPublish).Build()
	}
	r.Report(build("timeout"))
	r.Report(build("timeout"))
	r.Report(build("refused"))

	assert.Len(t, tr.captured(), 2)
}

func TestInstallHooksBuiltErrors(t *testing.T) {
	t.Cleanup(errors.ClearErrorHooks)
	r, tr := newTestReporter(t)
	r.Install()

	_ = errors.Newf("stream stalled").Component("audiolink").Category(errors.CategoryAudio).Build()

	require.Len(t, tr.captured(), 1)
	assert.True(t, r.Flush(time.Second))
}

func TestPrivacyFilters(t *testing.T) {
	ev := &sentry.Event{
		ServerName: "kitchen-pi",
		User:       sentry.User{ID: "42"},
		Contexts:   map[string]sentry.Context{"os": {"name": "linux"}, "trace": {}},
		Extra:      map[string]any{"component": "x", "path": "/home/me"},
		Tags:       map[string]string{"hostname": "kitchen-pi", "category": "audio"},
	}
	out := applyPrivacyFilters(ev)

	assert.Empty(t, out.ServerName)
	assert.True(t, out.User.IsEmpty())
	assert.NotContains(t, out.Contexts, "os")
	assert.Contains(t, out.Contexts, "trace")
	assert.NotContains(t, out.Extra, "path")
	assert.NotContains(t, out.Tags, "hostname")
	assert.Equal(t, "audio", out.Tags["category"])
}
