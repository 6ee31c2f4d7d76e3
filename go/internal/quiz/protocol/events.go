package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/mcdev12/livequiz/go/internal/quiz/session"
)

// EventType is the discriminator of an outbound server event
type EventType string

const (
	EventTypeSlide   EventType = "slide"
	EventTypeResults EventType = "results"
)

// Event is a server event broadcast to every connected client.
type Event interface {
	EventType() EventType
}

// Tally is the wire form of a session tally: label -> count.
type Tally map[string]uint32

// SlideEvent tells viewers which slide to display
type SlideEvent struct {
	Slide uint32
}

// ResultsEvent carries the reveal flag and all three tallies
type ResultsEvent struct {
	Show      bool
	Language  Tally
	Formality Tally
	Exercises Tally
}

func (SlideEvent) EventType() EventType   { return EventTypeSlide }
func (ResultsEvent) EventType() EventType { return EventTypeResults }

// MarshalJSON encodes {"type":"slide","slide":N}.
func (e SlideEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type  EventType `json:"type"`
		Slide uint32    `json:"slide"`
	}{
		Type:  EventTypeSlide,
		Slide: e.Slide,
	})
}

// MarshalJSON encodes the results event; empty tallies are written as {}.
func (e ResultsEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type      EventType `json:"type"`
		Show      bool      `json:"show"`
		Language  Tally     `json:"language"`
		Formality Tally     `json:"formality"`
		Exercises Tally     `json:"exercises"`
	}{
		Type:      EventTypeResults,
		Show:      e.Show,
		Language:  nonNil(e.Language),
		Formality: nonNil(e.Formality),
		Exercises: nonNil(e.Exercises),
	})
}

// Encode serializes an event into a text frame payload.
func Encode(e Event) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", e.EventType(), err)
	}
	return data, nil
}

// SlideFromSnapshot builds the slide event for a snapshot.
func SlideFromSnapshot(snap session.Snapshot) SlideEvent {
	return SlideEvent{Slide: snap.CurrentSlide}
}

// ResultsFromSnapshot builds the results event for a snapshot.
func ResultsFromSnapshot(snap session.Snapshot) ResultsEvent {
	return ResultsEvent{
		Show:      snap.ResultsRevealed,
		Language:  Tally(snap.Language),
		Formality: Tally(snap.Formality),
		Exercises: Tally(snap.Exercises),
	}
}

func nonNil(t Tally) Tally {
	if t == nil {
		return Tally{}
	}
	return t
}
