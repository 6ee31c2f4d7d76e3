package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformed is returned for frames that are not a JSON object of the expected field types.
	ErrMalformed = errors.New("malformed message")
	// ErrUnknownType is returned when the type discriminator names no known message.
	ErrUnknownType = errors.New("unknown message type")
	// ErrMissingField is returned when a required field is absent or null.
	ErrMissingField = errors.New("missing required field")
)

// Decode parses one inbound text frame into a Message.
//
// Keys are matched exactly, so {"Type":...} carries no type. Any error means
// the frame should be dropped; none of them are meant to be reported back to
// the client.
func Decode(data []byte) (Message, error) {
	var fields map[string]json.RawMessage
	if err := unmarshal(data, &fields); err != nil {
		return nil, err
	}

	var msgType string
	if err := field(fields, "type", &msgType); err != nil {
		return nil, err
	}

	switch MessageType(msgType) {
	case MessageTypeJoin:
		return decodeJoin(fields)
	case MessageTypeSetSlide:
		return decodeSetSlide(fields)
	case MessageTypeAnswer:
		return decodeAnswer(fields)
	case MessageTypeRevealResults:
		return decodeRevealResults(fields)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, msgType)
	}
}

func decodeJoin(fields map[string]json.RawMessage) (Message, error) {
	var join Join
	if err := field(fields, "role", &join.Role); err != nil {
		return nil, err
	}
	if err := field(fields, "session_id", &join.SessionID); err != nil {
		return nil, err
	}
	return join, nil
}

func decodeSetSlide(fields map[string]json.RawMessage) (Message, error) {
	var msg SetSlide
	if err := field(fields, "slide", &msg.Slide); err != nil {
		return nil, err
	}
	return msg, nil
}

func decodeAnswer(fields map[string]json.RawMessage) (Message, error) {
	var questionID string
	if err := field(fields, "question_id", &questionID); err != nil {
		return nil, err
	}
	return NewAnswer(questionID, parseValue(fields["value"])), nil
}

func decodeRevealResults(fields map[string]json.RawMessage) (Message, error) {
	var msg RevealResults
	if err := field(fields, "show", &msg.Show); err != nil {
		return nil, err
	}
	return msg, nil
}

// field decodes the required key name into v. Absent and null are both missing.
func field(fields map[string]json.RawMessage, name string, v any) error {
	raw, ok := fields[name]
	if !ok || isNull(raw) {
		return fmt.Errorf("%w: %s", ErrMissingField, name)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, name, err)
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// parseValue classifies a raw answer value by its leading JSON token.
// Absent and null values, numbers, booleans and objects are ValueNone.
func parseValue(raw json.RawMessage) AnswerValue {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return AnswerValue{Kind: ValueNone}
	}

	switch raw[0] {
	case '"':
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return AnswerValue{Kind: ValueNone}
		}
		return TextValue(text)

	case '[':
		var elems []json.RawMessage
		if err := json.Unmarshal(raw, &elems); err != nil {
			return AnswerValue{Kind: ValueNone}
		}
		items := make([]string, 0, len(elems))
		for _, elem := range elems {
			elem = bytes.TrimSpace(elem)
			if len(elem) == 0 || elem[0] != '"' {
				continue
			}
			var item string
			if err := json.Unmarshal(elem, &item); err != nil {
				continue
			}
			items = append(items, item)
		}
		return ListValue(items...)

	default:
		return AnswerValue{Kind: ValueNone}
	}
}

func unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
