package elevenlabs

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestDecodeServerFrame_ToolCall(t *testing.T) {
	raw := []byte(`{"type":"client_tool_call","client_tool_call":{"tool_name":" rateAnswer ","tool_call_id":"c1","parameters":{"impact":"-5","reason":"rambling"}}}`)
	frame, err := decodeServerFrame(raw)
	if err != nil {
		t.Fatalf("decodeServerFrame() error = %v", err)
	}
	call, ok := frame.(clientToolCall)
	if !ok {
		t.Fatalf("decoded type = %T", frame)
	}
	if call.ToolName != "rateAnswer" || call.ToolCallID != "c1" {
		t.Fatalf("call=%+v", call)
	}
	var params map[string]string
	if err := json.Unmarshal(call.Parameters, &params); err != nil || params["impact"] != "-5" {
		t.Fatalf("params=%s", call.Parameters)
	}
}

func TestDecodeServerFrame_ToolCallMissingID(t *testing.T) {
	_, err := decodeServerFrame([]byte(`{"type":"client_tool_call","client_tool_call":{"tool_name":"rateAnswer"}}`))
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("error = %v, want *DecodeError", err)
	}
	if de.Param != "client_tool_call.tool_call_id" {
		t.Fatalf("param=%q", de.Param)
	}
}

func TestDecodeServerFrame_ToolCallDefaultsParams(t *testing.T) {
	frame, err := decodeServerFrame([]byte(`{"type":"client_tool_call","client_tool_call":{"tool_name":"rateAnswer","tool_call_id":"c2"}}`))
	if err != nil {
		t.Fatalf("decodeServerFrame() error = %v", err)
	}
	if got := string(frame.(clientToolCall).Parameters); got != "{}" {
		t.Fatalf("params=%q", got)
	}
}

func TestDecodeServerFrame_Errors(t *testing.T) {
	for _, raw := range []string{`not json`, `{"type":""}`, `{"type":"audio","audio_event":{"audio_base_64":"%%%"}}`} {
		if _, err := decodeServerFrame([]byte(raw)); err == nil {
			t.Errorf("decodeServerFrame(%s) error = nil", raw)
		}
	}
}

func TestDecodeServerFrame_Unknown(t *testing.T) {
	frame, err := decodeServerFrame([]byte(`{"type":"vad_score","vad_score_event":{"vad_score":0.9}}`))
	if err != nil {
		t.Fatalf("decodeServerFrame() error = %v", err)
	}
	if frame.frameType() != "vad_score" {
		t.Fatalf("type=%q", frame.frameType())
	}
}

func TestNewInitiation_OmitsEmptyOverride(t *testing.T) {
	data, err := json.Marshal(newInitiation("", ""))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"type":"conversation_initiation_client_data"}` {
		t.Fatalf("payload=%s", data)
	}
}

func TestSampleRateFromFormat(t *testing.T) {
	cases := map[string]int{"pcm_16000": 16000, "PCM_24000": 24000, "ulaw_8000": 0, "pcm_x": 0, "": 0}
	for in, want := range cases {
		if got := sampleRateFromFormat(in); got != want {
			t.Errorf("sampleRateFromFormat(%q)=%d, want %d", in, got, want)
		}
	}
}

func TestChunkDuration(t *testing.T) {
	if got := chunkDuration(32000, 16000); got != time.Second {
		t.Fatalf("chunkDuration=%v, want 1s", got)
	}
	if got := chunkDuration(0, 16000); got != 0 {
		t.Fatalf("chunkDuration(0)=%v", got)
	}
}

func TestSpeakingTracker_Interrupt(t *testing.T) {
	var got []bool
	tr := newSpeakingTracker(16000, func(s bool) { got = append(got, s) })
	tr.chunk(32000)
	tr.chunk(32000)
	tr.interrupt()
	tr.interrupt()
	tr.stop()
	if len(got) != 2 || got[0] != true || got[1] != false {
		t.Fatalf("notifications=%v, want [true false]", got)
	}
}
