package stream

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/xxxsen/docqa/internal/model"
)

type EventType string

const (
	EventText       EventType = "text"
	EventSource     EventType = "source"
	EventConfidence EventType = "confidence"
	EventDone       EventType = "done"
	EventError      EventType = "error"
)

const (
	CodeRateLimited     = "RATE_LIMITED"
	CodeTimeout         = "TIMEOUT"
	CodeGenerationError = "GENERATION_ERROR"
	CodeSaveError       = "SAVE_ERROR"
)

// Event is one item of an answer stream. Only the fields of its Type are
// set.
type Event struct {
	Type           EventType
	Content        string
	Source         *model.Source
	Confidence     model.Confidence
	ConversationID string
	MessageID      string
	Code           string
	Message        string
}

func (e Event) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

func TextEvent(content string) Event {
	return Event{Type: EventText, Content: content}
}

func SourceEvent(src model.Source) Event {
	return Event{Type: EventSource, Source: &src}
}

func ConfidenceEvent(c model.Confidence) Event {
	return Event{Type: EventConfidence, Confidence: c}
}

func DoneEvent(conversationID, messageID string) Event {
	return Event{Type: EventDone, ConversationID: conversationID, MessageID: messageID}
}

func ErrorEvent(code, message string) Event {
	return Event{Type: EventError, Code: code, Message: message}
}

type textPayload struct {
	Type    EventType `json:"type"`
	Content string    `json:"content"`
}

type sourcePayload struct {
	Type   EventType     `json:"type"`
	Source *model.Source `json:"source"`
}

type confidencePayload struct {
	Type       EventType        `json:"type"`
	Confidence model.Confidence `json:"confidence"`
}

type donePayload struct {
	Type           EventType `json:"type"`
	ConversationID string    `json:"conversationId"`
	MessageID      string    `json:"messageId"`
}

type errorPayload struct {
	Type    EventType `json:"type"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventText:
		return json.Marshal(textPayload{Type: e.Type, Content: e.Content})
	case EventSource:
		return json.Marshal(sourcePayload{Type: e.Type, Source: e.Source})
	case EventConfidence:
		return json.Marshal(confidencePayload{Type: e.Type, Confidence: e.Confidence})
	case EventDone:
		return json.Marshal(donePayload{Type: e.Type, ConversationID: e.ConversationID, MessageID: e.MessageID})
	case EventError:
		return json.Marshal(errorPayload{Type: e.Type, Code: e.Code, Message: e.Message})
	}
	return nil, fmt.Errorf("unknown event type %q", e.Type)
}

// WriteSSE writes one event as a `data:` record.
func WriteSSE(w io.Writer, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

// WriteDone writes the end-of-stream sentinel.
func WriteDone(w io.Writer) error {
	_, err := io.WriteString(w, "data: [DONE]\n\n")
	return err
}
