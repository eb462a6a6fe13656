package monitor

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/text/language"

	"github.com/supermechanical/rangelink/internal/arbiter"
	"github.com/supermechanical/rangelink/internal/mqtt"
	"github.com/supermechanical/rangelink/internal/temperature"
	"github.com/supermechanical/rangelink/internal/timeseries"
	"github.com/supermechanical/rangelink/internal/trigger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// queueSource hands out prepared batches one Refresh at a time.
type queueSource struct {
	mu         sync.Mutex
	batches    []*timeseries.Ledger
	translator *temperature.Translator
}

func newQueueSource() *queueSource {
	return &queueSource{translator: temperature.NewTranslator(temperature.Fahrenheit, language.AmericanEnglish)}
}

func (q *queueSource) push(t *testing.T, uid string, samples ...timeseries.Sample) {
	t.Helper()
	l := timeseries.NewLedger()
	_, err := l.Add(uid, samples...)
	require.NoError(t, err)
	q.mu.Lock()
	q.batches = append(q.batches, l)
	q.mu.Unlock()
}

func (q *queueSource) Refresh() *timeseries.Ledger {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.batches) == 0 {
		return timeseries.NewLedger()
	}
	b := q.batches[0]
	q.batches = q.batches[1:]
	return b
}

func (q *queueSource) Translator() *temperature.Translator { return q.translator }

type fixedAudio struct {
	state arbiter.State
	last  time.Time
}

func (a *fixedAudio) State() arbiter.State          { return a.state }
func (a *fixedAudio) IsAudioEnabled() bool          { return a.state.Enabled() }
func (a *fixedAudio) IsHeadsetPluggedIn() bool      { return true }
func (a *fixedAudio) LastParsedDataRead() time.Time { return a.last }

type recordingPublisher struct {
	mu       sync.Mutex
	latest   int
	triggers []string
	states   []mqtt.StateDTO
}

func (p *recordingPublisher) PublishLatest(context.Context, *timeseries.Ledger) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.latest++
	return nil
}

func (p *recordingPublisher) PublishTrigger(_ context.Context, device string, t *trigger.Trigger, _ timeseries.Sample) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.triggers = append(p.triggers, device+":"+t.Direction().String())
	return nil
}

func (p *recordingPublisher) PublishState(_ context.Context, s *mqtt.StateDTO) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states = append(p.states, *s)
	return nil
}

func sample(temp float32, at float64) timeseries.Sample {
	return timeseries.Sample{Temperature: temp, UnixTime: at}
}

func TestNewValidates(t *testing.T) {
	_, err := New(nil, nil, Config{RefreshInterval: time.Second})
	require.Error(t, err)
	_, err = New(newQueueSource(), nil, Config{})
	require.Error(t, err)
}

func TestCheckFiresPerDevice(t *testing.T) {
	src := newQueueSource()
	store, err := NewTriggerStore("", trigger.Config{Temperature: 165, Direction: trigger.Rising})
	require.NoError(t, err)
	pub := &recordingPublisher{}

	var seen []Crossing
	m, err := New(src, nil, Config{RefreshInterval: time.Second},
		WithTriggers(store),
		WithPublisher(pub),
		WithCrossingHandler(func(c Crossing) { seen = append(seen, c) }))
	require.NoError(t, err)
	ctx := context.Background()

	src.push(t, "aa", sample(150, 1), sample(170, 2))
	crossings := m.Check(ctx)
	require.Len(t, crossings, 1)
	assert.Equal(t, "aa", crossings[0].Device)
	assert.InDelta(t, 170.0, crossings[0].Sample.Temperature, 1e-6)

	// the regime carries across batches
	src.push(t, "aa", sample(160, 3))
	assert.Empty(t, m.Check(ctx))
	src.push(t, "aa", sample(166, 4))
	assert.Len(t, m.Check(ctx), 1)

	// a new device starts unarmed
	src.push(t, "bb", sample(170, 5))
	assert.Empty(t, m.Check(ctx))

	assert.Equal(t, 2, m.Crossings())
	assert.Len(t, seen, 2)
	assert.Equal(t, []string{"aa:rising", "aa:rising"}, pub.triggers)
	assert.Equal(t, 4, pub.latest)
}

func TestSetTriggerConfigRearms(t *testing.T) {
	src := newQueueSource()
	store, err := NewTriggerStore("", trigger.Config{Temperature: 165, Direction: trigger.Rising})
	require.NoError(t, err)
	m, err := New(src, nil, Config{RefreshInterval: time.Second}, WithTriggers(store))
	require.NoError(t, err)
	ctx := context.Background()

	src.push(t, "aa", sample(170, 1))
	m.Check(ctx)

	require.NoError(t, m.SetTriggerConfig(trigger.Config{Temperature: 100, Direction: trigger.Falling}))
	assert.Equal(t, trigger.Falling, m.TriggerConfig().Direction)

	src.push(t, "aa", sample(120, 2), sample(90, 3))
	crossings := m.Check(ctx)
	require.Len(t, crossings, 1)
	assert.InDelta(t, 90.0, crossings[0].Sample.Temperature, 1e-6)

	require.Error(t, m.SetTriggerConfig(trigger.Config{Temperature: 1}))
}

func TestTriggerDisabled(t *testing.T) {
	src := newQueueSource()
	m, err := New(src, nil, Config{RefreshInterval: time.Second})
	require.NoError(t, err)

	src.push(t, "aa", sample(10, 1), sample(300, 2))
	assert.Empty(t, m.Check(context.Background()))
	assert.Equal(t, trigger.Config{}, m.TriggerConfig())
	assert.Error(t, m.SetTriggerConfig(trigger.Config{Temperature: 1, Direction: trigger.Rising}))
}

func TestOutputLines(t *testing.T) {
	src := newQueueSource()
	var buf bytes.Buffer
	m, err := New(src, nil, Config{RefreshInterval: time.Second}, WithOutput(&buf))
	require.NoError(t, err)

	src.push(t, "0102", sample(70, 1), sample(71.3, 2))
	m.Check(context.Background())
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "0102  70°F")
	assert.Contains(t, lines[1], "0102  71°F")

	src.push(t, "0102", sample(72, 3))
	m.Check(context.Background())
	assert.Equal(t, 3, bytes.Count(buf.Bytes(), []byte("\n")), "only the new sample is printed")
}

func TestStatePublishedOnChange(t *testing.T) {
	now := time.Unix(1000, 0)
	audio := &fixedAudio{state: arbiter.Started, last: now}
	pub := &recordingPublisher{}
	m, err := New(newQueueSource(), audio, Config{RefreshInterval: time.Second, StaleAfter: 10 * time.Second},
		WithPublisher(pub),
		WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	ctx := context.Background()

	m.Check(ctx)
	m.Check(ctx)
	require.Len(t, pub.states, 1)
	assert.Equal(t, "started", pub.states[0].State)
	assert.False(t, pub.states[0].Stale)

	now = now.Add(time.Minute)
	m.Check(ctx)
	require.Len(t, pub.states, 2)
	assert.True(t, pub.states[1].Stale)
}

func TestRunStopsOnCancel(t *testing.T) {
	src := newQueueSource()
	m, err := New(src, nil, Config{RefreshInterval: 5 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	src.push(t, "aa", sample(70, 1))
	require.Eventually(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return len(src.batches) == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestTriggerStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "trigger.yaml")

	s, err := NewTriggerStore(path, trigger.Config{Temperature: 165, Direction: trigger.Rising})
	require.NoError(t, err)
	require.NoError(t, s.Set(trigger.Config{Temperature: 140.5, Direction: trigger.Bidirectional}))

	restored, err := NewTriggerStore(path, trigger.Config{Temperature: 1, Direction: trigger.Falling})
	require.NoError(t, err)
	assert.Equal(t, trigger.Config{Temperature: 140.5, Direction: trigger.Bidirectional}, restored.Config())

	require.Error(t, s.Set(trigger.Config{Temperature: 1, Direction: trigger.Unset}))
}
