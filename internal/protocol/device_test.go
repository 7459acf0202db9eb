package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestDecodeDeviceMessage(t *testing.T) {
	dur := 42
	tests := []struct {
		name  string
		input string
		want  DeviceMessage
	}{
		{
			name:  "connect",
			input: `{"type":"device:connect","token":"T1","phoneNumber":" +225000000 "}`,
			want:  Connect{Token: "T1", PhoneNumber: "+225000000"},
		},
		{
			name:  "legacy connect with apiKey",
			input: `{"type":"device:connect","apiKey":"esp32-key"}`,
			want:  Connect{Token: "esp32-key"},
		},
		{
			name:  "heartbeat",
			input: `{"type":"device:heartbeat","signal":18}`,
			want:  Heartbeat{Signal: 18},
		},
		{
			name:  "heartbeat with zero signal",
			input: `{"type":"device:heartbeat","signal":0}`,
			want:  Heartbeat{Signal: 0},
		},
		{
			name:  "message result",
			input: `{"type":"message:result","commandId":"C1","success":true}`,
			want:  MessageResult{CommandID: "C1", Success: true},
		},
		{
			name:  "legacy sms result",
			input: `{"type":"sms:result","id":"C1","success":false,"error":"no carrier"}`,
			want:  MessageResult{CommandID: "C1", Success: false, Error: "no carrier"},
		},
		{
			name:  "message received",
			input: `{"type":"message:received","from":"+225111","body":"hello","timestamp":"2026-03-01T10:00:00Z"}`,
			want: MessageReceived{From: "+225111", Body: "hello",
				Timestamp: Timestamp{Time: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}},
		},
		{
			name:  "legacy sms received with epoch millis",
			input: `{"type":"sms:received","from":"+225111","message":"yo","timestamp":1772359200000}`,
			want: MessageReceived{From: "+225111", Body: "yo",
				Timestamp: Timestamp{Time: time.UnixMilli(1772359200000).UTC()}},
		},
		{
			name:  "received with zone-less timestamp",
			input: `{"type":"sms:received","from":"+225111","body":"yo","timestamp":"2024-01-01 10:00:00"}`,
			want: MessageReceived{From: "+225111", Body: "yo",
				Timestamp: Timestamp{Time: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)}},
		},
		{
			name:  "received with unreadable timestamp keeps the message",
			input: `{"type":"message:received","from":"+225111","body":"yo","timestamp":"soon"}`,
			want:  MessageReceived{From: "+225111", Body: "yo", Timestamp: Timestamp{Invalid: "soon"}},
		},
		{
			name:  "call status ended with duration",
			input: `{"type":"call:status","commandId":"C2","status":"ended","duration":42}`,
			want:  CallStatus{CommandID: "C2", Status: "ended", Duration: &dur},
		},
		{
			name:  "legacy call status id",
			input: `{"type":"call:status","id":"C2","status":"ringing"}`,
			want:  CallStatus{CommandID: "C2", Status: "ringing"},
		},
		{
			name:  "code result",
			input: `{"type":"code:result","commandId":"C3","response":"Balance 100","success":true}`,
			want:  CodeResult{CommandID: "C3", Response: "Balance 100", Success: true},
		},
		{
			name:  "legacy ussd result",
			input: `{"type":"ussd:result","id":"C3","response":"","success":false}`,
			want:  CodeResult{CommandID: "C3", Success: false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeDeviceMessage([]byte(tt.input))
			if err != nil {
				t.Fatalf("DecodeDeviceMessage() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("DecodeDeviceMessage() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestDecodeDeviceMessage_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"not json", `hello`, ErrMalformed},
		{"array", `[1,2]`, ErrMalformed},
		{"missing type", `{"token":"x"}`, ErrMalformed},
		{"unknown type", `{"type":"device:reboot"}`, ErrUnknownType},
		{"connect without token", `{"type":"device:connect"}`, ErrMalformed},
		{"heartbeat without signal", `{"type":"device:heartbeat"}`, ErrMalformed},
		{"result without id", `{"type":"message:result","success":true}`, ErrMalformed},
		{"result without success", `{"type":"message:result","commandId":"C1"}`, ErrMalformed},
		{"received without sender", `{"type":"message:received","body":"x"}`, ErrMalformed},
		{"call status without status", `{"type":"call:status","commandId":"C1"}`, ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeDeviceMessage([]byte(tt.input))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("DecodeDeviceMessage() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// recordingHandler records which handler method ran.
type recordingHandler struct {
	calls []string
}

func (h *recordingHandler) HandleConnect(context.Context, Connect) error {
	h.calls = append(h.calls, TypeConnect)
	return nil
}

func (h *recordingHandler) HandleHeartbeat(context.Context, Heartbeat) error {
	h.calls = append(h.calls, TypeHeartbeat)
	return nil
}

func (h *recordingHandler) HandleMessageResult(context.Context, MessageResult) error {
	h.calls = append(h.calls, TypeMessageResult)
	return nil
}

func (h *recordingHandler) HandleMessageReceived(context.Context, MessageReceived) error {
	h.calls = append(h.calls, TypeMessageReceived)
	return nil
}

func (h *recordingHandler) HandleCallStatus(context.Context, CallStatus) error {
	h.calls = append(h.calls, TypeCallStatus)
	return errors.New("call status failed")
}

func (h *recordingHandler) HandleCodeResult(context.Context, CodeResult) error {
	h.calls = append(h.calls, TypeCodeResult)
	return nil
}

func TestDispatch(t *testing.T) {
	msgs := []DeviceMessage{
		Connect{Token: "t"},
		Heartbeat{Signal: 3},
		MessageResult{CommandID: "c"},
		MessageReceived{From: "f"},
		CallStatus{CommandID: "c", Status: "ringing"},
		CodeResult{CommandID: "c"},
	}

	h := &recordingHandler{}
	for _, m := range msgs {
		err := Dispatch(context.Background(), m, h)
		if m.Type() == TypeCallStatus {
			if err == nil {
				t.Error("Dispatch() should return the handler's error")
			}
			continue
		}
		if err != nil {
			t.Errorf("Dispatch(%s) error = %v", m.Type(), err)
		}
	}

	want := []string{TypeConnect, TypeHeartbeat, TypeMessageResult, TypeMessageReceived, TypeCallStatus, TypeCodeResult}
	if !reflect.DeepEqual(h.calls, want) {
		t.Errorf("handler calls = %v, want %v", h.calls, want)
	}
}

func TestEncodeDeviceMessage_RoundTrip(t *testing.T) {
	in := MessageResult{CommandID: "C1", Success: true}
	data, err := EncodeDeviceMessage(in)
	if err != nil {
		t.Fatalf("EncodeDeviceMessage() error = %v", err)
	}
	out, err := DecodeDeviceMessage(data)
	if err != nil {
		t.Fatalf("DecodeDeviceMessage() error = %v", err)
	}
	if out != in {
		t.Errorf("round trip = %#v, want %#v", out, in)
	}
}

func TestTimestamp(t *testing.T) {
	var ts Timestamp
	if err := json.Unmarshal([]byte(`"1772359200000"`), &ts); err != nil {
		t.Fatalf("Unmarshal(numeric string) error = %v", err)
	}
	if !ts.Equal(time.UnixMilli(1772359200000)) {
		t.Errorf("Timestamp = %v", ts.Time)
	}

	if err := json.Unmarshal([]byte(`null`), &ts); err != nil || !ts.IsZero() {
		t.Errorf("Unmarshal(null) = %v, %v; want zero", ts.Time, err)
	}

	data, err := json.Marshal(Timestamp{Time: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `"2026-03-01T10:00:00Z"` {
		t.Errorf("Marshal() = %s", data)
	}
}
