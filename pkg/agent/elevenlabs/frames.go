package elevenlabs

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
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

func badFrame(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_frame", Message: message, Param: param}
}

// Outbound frames.

type initiationClientData struct {
	Type                       string          `json:"type"`
	ConversationConfigOverride *configOverride `json:"conversation_config_override,omitempty"`
}

type configOverride struct {
	Agent agentOverride `json:"agent"`
}

type agentOverride struct {
	Prompt       *promptOverride `json:"prompt,omitempty"`
	FirstMessage string          `json:"first_message,omitempty"`
	Language     string          `json:"language,omitempty"`
}

type promptOverride struct {
	Prompt string `json:"prompt"`
}

type pongFrame struct {
	Type    string `json:"type"`
	EventID int64  `json:"event_id"`
}

type clientToolResultFrame struct {
	Type       string `json:"type"`
	ToolCallID string `json:"tool_call_id"`
	Result     string `json:"result"`
	IsError    bool   `json:"is_error"`
}

type userMessageFrame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type userActivityFrame struct {
	Type string `json:"type"`
}

func newInitiation(systemPrompt, firstMessage string) initiationClientData {
	out := initiationClientData{Type: "conversation_initiation_client_data"}
	if systemPrompt == "" && firstMessage == "" {
		return out
	}
	agent := agentOverride{FirstMessage: firstMessage}
	if systemPrompt != "" {
		agent.Prompt = &promptOverride{Prompt: systemPrompt}
	}
	out.ConversationConfigOverride = &configOverride{Agent: agent}
	return out
}

// Inbound frames.

type serverFrame interface {
	frameType() string
}

type initiationMetadata struct {
	ConversationID    string `json:"conversation_id"`
	AgentOutputFormat string `json:"agent_output_audio_format"`
	UserInputFormat   string `json:"user_input_audio_format"`
}

func (initiationMetadata) frameType() string { return "conversation_initiation_metadata" }

type agentResponse struct {
	Text string
}

func (agentResponse) frameType() string { return "agent_response" }

type agentResponseCorrection struct {
	Original  string
	Corrected string
}

func (agentResponseCorrection) frameType() string { return "agent_response_correction" }

type userTranscript struct {
	Text string
}

func (userTranscript) frameType() string { return "user_transcript" }

type audioChunk struct {
	EventID int64
	Audio   []byte
}

func (audioChunk) frameType() string { return "audio" }

type interruption struct {
	Reason string
}

func (interruption) frameType() string { return "interruption" }

type ping struct {
	EventID int64
	PingMS  int64
}

func (ping) frameType() string { return "ping" }

type clientToolCall struct {
	ToolName   string
	ToolCallID string
	Parameters json.RawMessage
}

func (clientToolCall) frameType() string { return "client_tool_call" }

type serverError struct {
	Message string
}

func (serverError) frameType() string { return "error" }

type unknownFrame struct {
	Type string
}

func (f unknownFrame) frameType() string { return f.Type }

// decodeServerFrame parses one text frame from the conversation socket.
func decodeServerFrame(data []byte) (serverFrame, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badFrame("invalid JSON frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badFrame("frame missing type", "type")
	}

	switch typ {
	case "conversation_initiation_metadata":
		var frame struct {
			Event initiationMetadata `json:"conversation_initiation_metadata_event"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, badFrame("invalid conversation_initiation_metadata", "conversation_initiation_metadata_event")
		}
		return frame.Event, nil
	case "agent_response":
		var frame struct {
			Event struct {
				AgentResponse string `json:"agent_response"`
			} `json:"agent_response_event"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, badFrame("invalid agent_response", "agent_response_event")
		}
		return agentResponse{Text: frame.Event.AgentResponse}, nil
	case "agent_response_correction":
		var frame struct {
			Event struct {
				Original  string `json:"original_agent_response"`
				Corrected string `json:"corrected_agent_response"`
			} `json:"agent_response_correction_event"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, badFrame("invalid agent_response_correction", "agent_response_correction_event")
		}
		return agentResponseCorrection{Original: frame.Event.Original, Corrected: frame.Event.Corrected}, nil
	case "user_transcript":
		var frame struct {
			Event struct {
				UserTranscript string `json:"user_transcript"`
			} `json:"user_transcription_event"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, badFrame("invalid user_transcript", "user_transcription_event")
		}
		return userTranscript{Text: frame.Event.UserTranscript}, nil
	case "audio":
		var frame struct {
			Event struct {
				EventID int64  `json:"event_id"`
				Audio   string `json:"audio_base_64"`
			} `json:"audio_event"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, badFrame("invalid audio", "audio_event")
		}
		audio, err := decodeBase64Any(frame.Event.Audio)
		if err != nil {
			return nil, badFrame("invalid audio base64", "audio_event.audio_base_64")
		}
		return audioChunk{EventID: frame.Event.EventID, Audio: audio}, nil
	case "interruption":
		var frame struct {
			Event struct {
				Reason string `json:"reason"`
			} `json:"interruption_event"`
		}
		_ = json.Unmarshal(data, &frame)
		return interruption{Reason: frame.Event.Reason}, nil
	case "ping":
		var frame struct {
			Event struct {
				EventID int64 `json:"event_id"`
				PingMS  int64 `json:"ping_ms"`
			} `json:"ping_event"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, badFrame("invalid ping", "ping_event")
		}
		return ping{EventID: frame.Event.EventID, PingMS: frame.Event.PingMS}, nil
	case "client_tool_call":
		var frame struct {
			Call struct {
				ToolName   string          `json:"tool_name"`
				ToolCallID string          `json:"tool_call_id"`
				Parameters json.RawMessage `json:"parameters"`
			} `json:"client_tool_call"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, badFrame("invalid client_tool_call", "client_tool_call")
		}
		if strings.TrimSpace(frame.Call.ToolCallID) == "" {
			return nil, badFrame("client_tool_call missing tool_call_id", "client_tool_call.tool_call_id")
		}
		params := frame.Call.Parameters
		if len(params) == 0 {
			params = json.RawMessage(`{}`)
		}
		return clientToolCall{
			ToolName:   strings.TrimSpace(frame.Call.ToolName),
			ToolCallID: frame.Call.ToolCallID,
			Parameters: append(json.RawMessage(nil), params...),
		}, nil
	case "error":
		var frame struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		_ = json.Unmarshal(data, &frame)
		msg := strings.TrimSpace(frame.Message)
		if msg == "" {
			msg = strings.TrimSpace(frame.Error)
		}
		if msg == "" {
			msg = "remote agent reported an error"
		}
		return serverError{Message: msg}, nil
	default:
		return unknownFrame{Type: typ}, nil
	}
}

func decodeBase64Any(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}

// sampleRateFromFormat parses formats like "pcm_16000". Non-PCM formats report 0.
func sampleRateFromFormat(format string) int {
	format = strings.ToLower(strings.TrimSpace(format))
	rest, ok := strings.CutPrefix(format, "pcm_")
	if !ok {
		return 0
	}
	rate, err := strconv.Atoi(rest)
	if err != nil || rate <= 0 {
		return 0
	}
	return rate
}
