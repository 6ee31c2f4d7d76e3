package processor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/livequiz/go/internal/quiz/hub"
	"github.com/mcdev12/livequiz/go/internal/quiz/protocol"
	"github.com/mcdev12/livequiz/go/internal/quiz/session"
)

// recordingPublisher captures published events in order
type recordingPublisher struct {
	mu     sync.Mutex
	events []protocol.Event
}

func (p *recordingPublisher) Publish(event protocol.Event) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return 1
}

func (p *recordingPublisher) take() []protocol.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.events
	p.events = nil
	return out
}

type recordedAnswer struct {
	question session.Question
	labels   []string
}

type fakeRecorder struct {
	mu      sync.Mutex
	answers []recordedAnswer
}

func (r *fakeRecorder) Record(q session.Question, labels []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.answers = append(r.answers, recordedAnswer{question: q, labels: labels})
}

func newTestProcessor(t *testing.T) (*Processor, *session.Store, *recordingPublisher, *fakeRecorder) {
	t.Helper()
	store := session.NewStore()
	pub := &recordingPublisher{}
	rec := &fakeRecorder{}
	return New(store, pub, rec), store, pub, rec
}

func TestApply_JoinPublishesSlideThenResults(t *testing.T) {
	p, store, pub, _ := newTestProcessor(t)
	store.SetSlide(3)

	p.Apply(protocol.Join{Role: "viewer", SessionID: "s1"})

	events := pub.take()
	require.Len(t, events, 2)
	assert.Equal(t, protocol.SlideEvent{Slide: 3}, events[0])
	assert.Equal(t, protocol.ResultsEvent{
		Show:      false,
		Language:  protocol.Tally{},
		Formality: protocol.Tally{},
		Exercises: protocol.Tally{},
	}, events[1])
}

func TestApply_SetSlide(t *testing.T) {
	p, store, pub, _ := newTestProcessor(t)

	p.Apply(protocol.SetSlide{Slide: 9})

	assert.Equal(t, uint32(9), store.Snapshot().CurrentSlide)
	assert.Equal(t, []protocol.Event{protocol.SlideEvent{Slide: 9}}, pub.take())
}

func TestApply_LastSetSlideSeenByJoin(t *testing.T) {
	p, _, pub, _ := newTestProcessor(t)

	for _, s := range []uint32{4, 1, 8, 2} {
		p.Apply(protocol.SetSlide{Slide: s})
	}
	pub.take()

	p.Apply(protocol.Join{})
	events := pub.take()
	require.NotEmpty(t, events)
	assert.Equal(t, protocol.SlideEvent{Slide: 2}, events[0])
}

func TestApply_AnswerBeforeRevealPublishesNothing(t *testing.T) {
	p, store, pub, rec := newTestProcessor(t)

	p.Apply(protocol.NewAnswer("language", protocol.TextValue("en")))

	assert.Empty(t, pub.take())
	assert.Equal(t, session.Tally{"en": 1}, store.Snapshot().Language)
	require.Len(t, rec.answers, 1)
	assert.Equal(t, session.QuestionLanguage, rec.answers[0].question)
}

func TestApply_AnswerAfterRevealPublishesResults(t *testing.T) {
	p, _, pub, _ := newTestProcessor(t)
	p.Apply(protocol.RevealResults{Show: true})
	pub.take()

	p.Apply(protocol.NewAnswer("formality", protocol.TextValue("casual")))

	events := pub.take()
	require.Len(t, events, 1)
	assert.Equal(t, protocol.ResultsEvent{
		Show:      true,
		Language:  protocol.Tally{},
		Formality: protocol.Tally{"casual": 1},
		Exercises: protocol.Tally{},
	}, events[0])
}

func TestApply_ExercisesCountsEachLabel(t *testing.T) {
	p, store, _, _ := newTestProcessor(t)

	p.Apply(protocol.NewAnswer("exercises", protocol.ListValue("x", "y", "x")))

	assert.Equal(t, session.Tally{"x": 2, "y": 1}, store.Snapshot().Exercises)
}

func TestApply_UnrecognizedAnswerIsIgnored(t *testing.T) {
	tests := []struct {
		name   string
		answer protocol.Answer
	}{
		{name: "unknown question", answer: protocol.NewAnswer("color", protocol.TextValue("red"))},
		{name: "language as list", answer: protocol.NewAnswer("language", protocol.ListValue("en"))},
		{name: "exercises as text", answer: protocol.NewAnswer("exercises", protocol.TextValue("x"))},
		{name: "missing value", answer: protocol.NewAnswer("formality", protocol.AnswerValue{})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, store, pub, rec := newTestProcessor(t)
			p.Apply(protocol.RevealResults{Show: true})
			before := store.Snapshot()
			pub.take()

			p.Apply(tt.answer)

			assert.Empty(t, pub.take(), "no event for an ignored answer")
			assert.Equal(t, before, store.Snapshot())
			assert.Empty(t, rec.answers)
		})
	}
}

func TestApply_RevealAlwaysRepublishes(t *testing.T) {
	p, _, pub, _ := newTestProcessor(t)
	p.Apply(protocol.NewAnswer("language", protocol.TextValue("en")))

	p.Apply(protocol.RevealResults{Show: false})
	p.Apply(protocol.RevealResults{Show: true})
	p.Apply(protocol.RevealResults{Show: true})

	events := pub.take()
	require.Len(t, events, 3)

	first := events[0].(protocol.ResultsEvent)
	second := events[1].(protocol.ResultsEvent)
	third := events[2].(protocol.ResultsEvent)
	assert.False(t, first.Show)
	assert.True(t, second.Show)
	assert.True(t, third.Show)
	assert.Equal(t, first.Language, second.Language)
	assert.Equal(t, first.Formality, second.Formality)
	assert.Equal(t, first.Exercises, second.Exercises)
	assert.Equal(t, second, third)
}

func TestApply_ConcurrentAnswersFromManyClients(t *testing.T) {
	const n = 300
	p, store, _, _ := newTestProcessor(t)

	var wg sync.WaitGroup
	wg.Add(n)
	for range n {
		go func() {
			defer wg.Done()
			p.Apply(protocol.NewAnswer("language", protocol.TextValue("A")))
		}()
	}
	wg.Wait()

	assert.Equal(t, uint32(n), store.Snapshot().Language["A"])
}

func TestApply_NilRecorder(t *testing.T) {
	store := session.NewStore()
	p := New(store, &recordingPublisher{}, nil)

	assert.NotPanics(t, func() {
		p.Apply(protocol.NewAnswer("language", protocol.TextValue("en")))
	})
	assert.Equal(t, session.Tally{"en": 1}, store.Snapshot().Language)
}

// Scenario from the protocol contract: a client joining after slide changes,
// an answer and a reveal sees the current slide and then the revealed tallies.
func TestApply_JoinCatchUpThroughHub(t *testing.T) {
	events := hub.New[protocol.Event]("processor-test", hub.DefaultCapacity)
	t.Cleanup(events.Close)

	p := New(session.NewStore(), events, nil)
	p.Apply(protocol.SetSlide{Slide: 1})
	p.Apply(protocol.SetSlide{Slide: 2})
	p.Apply(protocol.NewAnswer("language", protocol.TextValue("en")))
	p.Apply(protocol.RevealResults{Show: true})

	sub := events.Subscribe()
	t.Cleanup(sub.Close)

	p.Apply(protocol.Join{Role: "viewer", SessionID: "s1"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	first, err := sub.Recv(ctx)
	require.NoError(t, err)
	data, err := protocol.Encode(first)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"slide","slide":2}`, string(data))

	second, err := sub.Recv(ctx)
	require.NoError(t, err)
	data, err = protocol.Encode(second)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"type":"results","show":true,"language":{"en":1},"formality":{},"exercises":{}}`,
		string(data))
}
