package processor

import (
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/livequiz/go/internal/quiz/metrics"
	"github.com/mcdev12/livequiz/go/internal/quiz/protocol"
	"github.com/mcdev12/livequiz/go/internal/quiz/session"
)

// Publisher delivers server events to every subscribed connection.
// It returns the number of subscribers reached; zero is not an error.
type Publisher interface {
	Publish(event protocol.Event) int
}

// AnswerRecorder receives every accepted answer. Implementations must not block.
type AnswerRecorder interface {
	Record(question session.Question, labels []string)
}

// NoOpRecorder discards answers
type NoOpRecorder struct{}

func (NoOpRecorder) Record(session.Question, []string) {}

// Processor applies inbound client messages to the session store and decides
// which server events to publish.
type Processor struct {
	store     *session.Store
	publisher Publisher
	recorder  AnswerRecorder
}

// New creates a processor. A nil recorder is replaced by NoOpRecorder.
func New(store *session.Store, publisher Publisher, recorder AnswerRecorder) *Processor {
	if recorder == nil {
		recorder = NoOpRecorder{}
	}
	return &Processor{
		store:     store,
		publisher: publisher,
		recorder:  recorder,
	}
}

// Apply handles one message. The store lock is never held while publishing.
func (p *Processor) Apply(msg protocol.Message) {
	switch m := msg.(type) {
	case protocol.Join:
		p.join(m)
	case protocol.SetSlide:
		p.setSlide(m)
	case protocol.Answer:
		p.answer(m)
	case protocol.RevealResults:
		p.revealResults(m)
	default:
		log.Warn().Type("message", msg).Msg("processor received unsupported message")
	}
}

// join replays the full session state so a (re)connecting client can catch up.
func (p *Processor) join(m protocol.Join) {
	snap := p.store.Snapshot()

	log.Debug().
		Str("role", m.Role).
		Str("session_id", m.SessionID).
		Uint32("slide", snap.CurrentSlide).
		Msg("client joined")

	p.publish(protocol.SlideFromSnapshot(snap))
	p.publish(protocol.ResultsFromSnapshot(snap))
}

func (p *Processor) setSlide(m protocol.SetSlide) {
	p.store.SetSlide(m.Slide)

	log.Debug().Uint32("slide", m.Slide).Msg("slide changed")
	p.publish(protocol.SlideEvent{Slide: m.Slide})
}

// answer counts the resolved labels. Results are only pushed while revealed;
// otherwise they go out with the next reveal or join.
func (p *Processor) answer(m protocol.Answer) {
	if !m.Accepted() {
		log.Debug().
			Str("question_id", m.QuestionID).
			Stringer("value_kind", m.Value.Kind).
			Msg("ignoring unrecognized answer")
		return
	}

	snap, _, revealed := p.store.RecordAnswer(m.Question, m.Labels)
	p.recorder.Record(m.Question, m.Labels)

	log.Debug().
		Stringer("question", m.Question).
		Strs("labels", m.Labels).
		Bool("revealed", revealed).
		Msg("answer recorded")

	if revealed {
		p.publish(protocol.ResultsFromSnapshot(snap))
	}
}

// revealResults always republishes, even if the flag did not change.
func (p *Processor) revealResults(m protocol.RevealResults) {
	snap := p.store.Reveal(m.Show)

	log.Debug().Bool("show", m.Show).Msg("results reveal toggled")
	p.publish(protocol.ResultsFromSnapshot(snap))
}

func (p *Processor) publish(event protocol.Event) {
	delivered := p.publisher.Publish(event)
	metrics.EventsPublished.WithLabelValues(string(event.EventType())).Inc()

	if delivered == 0 {
		log.Debug().
			Str("event_type", string(event.EventType())).
			Msg("event published with no subscribers")
	}
}
