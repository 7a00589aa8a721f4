// Package protocol defines the JSON frames exchanged with a UI over
// /v1/interview.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vango-go/mock-interview/pkg/core/types"
	"github.com/vango-go/mock-interview/pkg/interview/record"
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

func unsupported(message, param string) *DecodeError {
	return &DecodeError{Code: "unsupported", Message: message, Param: param}
}

// Client → gateway.

type ClientStart struct {
	Type           string `json:"type"`
	PersonaID      string `json:"persona_id"`
	Harshness      *int   `json:"harshness,omitempty"`
	JobDescription string `json:"job_description,omitempty"`
	Resume         string `json:"resume,omitempty"`
}

type ClientSay struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ClientEnd struct {
	Type string `json:"type"`
}

// Gateway → client.

type ServerState struct {
	Type           string       `json:"type"`
	SessionID      string       `json:"session_id,omitempty"`
	ConversationID string       `json:"conversation_id,omitempty"`
	Status         types.Status `json:"status"`
	Speaking       bool         `json:"speaking"`
	Score          int          `json:"score"`
	Error          string       `json:"error,omitempty"`
}

type ServerScore struct {
	Type   string `json:"type"`
	Impact int    `json:"impact"`
	Reason string `json:"reason"`
	Score  int    `json:"score"`
	Label  string `json:"label"`
}

type ServerTranscript struct {
	Type    string        `json:"type"`
	Speaker types.Speaker `json:"speaker"`
	Message string        `json:"message"`
}

type ServerSummary struct {
	Type    string         `json:"type"`
	Summary record.Summary `json:"summary"`
}

type ServerWarning struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ServerError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
}

func DecodeClientMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}

	switch typ {
	case "start":
		var msg ClientStart
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid start frame", "")
		}
		msg.PersonaID = strings.TrimSpace(msg.PersonaID)
		if msg.PersonaID == "" {
			return nil, badRequest("start.persona_id is required", "persona_id")
		}
		if msg.Harshness != nil && (*msg.Harshness < types.MinHarshness || *msg.Harshness > types.MaxHarshness) {
			return nil, badRequest("start.harshness must be between 0 and 100", "harshness")
		}
		return msg, nil
	case "say":
		var msg ClientSay
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid say frame", "")
		}
		if strings.TrimSpace(msg.Text) == "" {
			return nil, badRequest("say.text is required", "text")
		}
		return msg, nil
	case "end":
		return ClientEnd{Type: "end"}, nil
	default:
		return nil, unsupported(fmt.Sprintf("unsupported frame type %q", typ), "type")
	}
}
