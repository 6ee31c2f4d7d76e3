package protocol

import (
	"github.com/mcdev12/livequiz/go/internal/quiz/session"
)

// MessageType is the discriminator of an inbound client message
type MessageType string

const (
	MessageTypeJoin          MessageType = "join"
	MessageTypeSetSlide      MessageType = "set_slide"
	MessageTypeAnswer        MessageType = "answer"
	MessageTypeRevealResults MessageType = "reveal_results"
)

// Message is a decoded inbound client message. The set of implementations is closed.
type Message interface {
	MessageType() MessageType
}

// Join announces a client's presence and requests the current session state.
// Role and SessionID are accepted as-is; they are not used for access control.
type Join struct {
	Role      string
	SessionID string
}

// SetSlide moves every viewer to Slide.
type SetSlide struct {
	Slide uint32
}

// RevealResults shows or hides the aggregated tallies.
type RevealResults struct {
	Show bool
}

// ValueKind tells which shape an answer value arrived in
type ValueKind int

const (
	ValueNone ValueKind = iota
	ValueText
	ValueList
)

func (k ValueKind) String() string {
	switch k {
	case ValueText:
		return "text"
	case ValueList:
		return "list"
	default:
		return "none"
	}
}

// AnswerValue is the text-or-list payload of an answer.
// Items holds only the string elements of a list value.
type AnswerValue struct {
	Kind  ValueKind
	Text  string
	Items []string
}

// TextValue builds a single-text answer value.
func TextValue(text string) AnswerValue {
	return AnswerValue{Kind: ValueText, Text: text}
}

// ListValue builds a multi-select answer value.
func ListValue(items ...string) AnswerValue {
	return AnswerValue{Kind: ValueList, Items: items}
}

// Answer submits a response to one of the quiz questions.
//
// Question and Labels are resolved from QuestionID and Value when the answer is
// built: a recognized question with the expected value shape yields the labels
// to count, anything else yields session.QuestionUnknown and no labels.
type Answer struct {
	QuestionID string
	Value      AnswerValue
	Question   session.Question
	Labels     []string
}

// NewAnswer builds an Answer and resolves it against the shape its question expects.
func NewAnswer(questionID string, value AnswerValue) Answer {
	q, labels := resolveAnswer(questionID, value)
	return Answer{
		QuestionID: questionID,
		Value:      value,
		Question:   q,
		Labels:     labels,
	}
}

// Accepted reports whether the answer counts towards a tally.
func (a Answer) Accepted() bool {
	return a.Question != session.QuestionUnknown
}

func resolveAnswer(questionID string, value AnswerValue) (session.Question, []string) {
	q := session.ParseQuestion(questionID)
	switch q {
	case session.QuestionLanguage, session.QuestionFormality:
		if value.Kind == ValueText {
			return q, []string{value.Text}
		}
	case session.QuestionExercises:
		if value.Kind == ValueList {
			return q, value.Items
		}
	}
	return session.QuestionUnknown, nil
}

func (Join) MessageType() MessageType          { return MessageTypeJoin }
func (SetSlide) MessageType() MessageType      { return MessageTypeSetSlide }
func (Answer) MessageType() MessageType        { return MessageTypeAnswer }
func (RevealResults) MessageType() MessageType { return MessageTypeRevealResults }
