package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/nerrad567/cellgate-core/internal/protocol"
)

func requestEnvelope(t *testing.T, id, action string, payload any) protocol.Envelope {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return protocol.Envelope{Type: protocol.TypeRequest, ID: id, Action: action, Payload: data}
}

func decodeError(t *testing.T, env protocol.Envelope) protocol.ErrorPayload {
	t.Helper()
	if env.Type != protocol.TypeError {
		t.Fatalf("envelope type = %q, want error", env.Type)
	}
	var p protocol.ErrorPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	return p
}

func TestClientSession_RequestResponse(t *testing.T) {
	f := newFixture()
	f.connect(t, "T1")
	c := NewClientSession(f.router, f.bus, 8)
	defer c.Close()

	env := requestEnvelope(t, "req-1", protocol.ActionSendMessage, map[string]string{"phone": "+225000000", "body": "hi"})
	reply, err := c.HandleEnvelope(context.Background(), env)
	if err != nil {
		t.Fatalf("HandleEnvelope() error = %v", err)
	}
	if reply.Type != protocol.TypeResponse || reply.ID != "req-1" {
		t.Fatalf("reply = %+v", reply)
	}
	var resp protocol.CommandResponse
	if err := json.Unmarshal(reply.Payload, &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if _, ok := f.store.commandByID(resp.CommandID); !ok {
		t.Errorf("response command id %q not persisted", resp.CommandID)
	}
}

func TestClientSession_ErrorReplies(t *testing.T) {
	f := newFixture()
	c := NewClientSession(f.router, f.bus, 8)
	defer c.Close()
	ctx := context.Background()

	tests := []struct {
		name     string
		env      protocol.Envelope
		wantCode string
	}{
		{
			name:     "no device",
			env:      requestEnvelope(t, "1", protocol.ActionSendMessage, map[string]string{"phone": "+225000000", "body": "hi"}),
			wantCode: CodeNoDevice,
		},
		{
			name:     "unknown action",
			env:      requestEnvelope(t, "2", "launchRocket", map[string]string{}),
			wantCode: CodeInvalidRequest,
		},
		{
			name:     "bad payload",
			env:      protocol.Envelope{Type: protocol.TypeRequest, ID: "3", Action: protocol.ActionSendMessage, Payload: json.RawMessage(`[1]`)},
			wantCode: CodeInvalidRequest,
		},
		{
			name:     "unsupported type",
			env:      protocol.Envelope{Type: "subscribe", ID: "4"},
			wantCode: CodeInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, err := c.HandleEnvelope(ctx, tt.env)
			if err != nil {
				t.Fatalf("HandleEnvelope() error = %v", err)
			}
			if reply.ID != tt.env.ID {
				t.Errorf("reply id = %q, want %q", reply.ID, tt.env.ID)
			}
			if p := decodeError(t, reply); p.Code != tt.wantCode {
				t.Errorf("code = %q, want %q (%s)", p.Code, tt.wantCode, p.Message)
			}
		})
	}
}

func TestClientSession_DeliveryFailureCarriesCommandID(t *testing.T) {
	f := newFixture()
	_, conn := f.connect(t, "T1")
	conn.sendErr = errConnClosed
	c := NewClientSession(f.router, f.bus, 8)
	defer c.Close()

	env := requestEnvelope(t, "1", protocol.ActionExecuteCode, map[string]string{"code": "*123#"})
	reply, err := c.HandleEnvelope(context.Background(), env)
	if err != nil {
		t.Fatalf("HandleEnvelope() error = %v", err)
	}
	p := decodeError(t, reply)
	if p.Code != CodeDeliveryFailed || p.CommandID == "" {
		t.Errorf("error payload = %+v", p)
	}
}

func TestClientSession_Ping(t *testing.T) {
	f := newFixture()
	c := NewClientSession(f.router, f.bus, 8)
	defer c.Close()

	reply, err := c.HandleEnvelope(context.Background(), protocol.Envelope{Type: protocol.TypePing, ID: "p1"})
	if err != nil {
		t.Fatalf("HandleEnvelope(ping) error = %v", err)
	}
	if reply.Type != protocol.TypePong || reply.ID != "p1" {
		t.Errorf("reply = %+v, want pong p1", reply)
	}
}

func TestClientSession_ReceivesEventsUntilClosed(t *testing.T) {
	f := newFixture()
	c := NewClientSession(f.router, f.bus, 8)

	s, _ := f.connect(t, "T1")
	select {
	case ev := <-c.Events():
		if p, ok := ev.(protocol.PresenceEvent); !ok || p.DeviceID != s.DeviceID() || !p.Online {
			t.Errorf("event = %#v", ev)
		}
	default:
		t.Fatal("no presence event delivered")
	}

	c.Close()
	c.Close()
	if f.bus.Count() != 0 {
		t.Errorf("bus subscribers = %d, want 0", f.bus.Count())
	}
	if _, ok := <-c.Events(); ok {
		t.Error("Events() still open after Close")
	}
	if _, err := c.Handle(context.Background(), protocol.ExecuteCodeRequest{Code: "*1#"}); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Handle after Close error = %v, want ErrSessionClosed", err)
	}

	// Publishing to the remaining sessions is unaffected.
	s.Close(context.Background())
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrAmbiguousDevice, CodeAmbiguousDevice},
		{ErrNoDeviceAvailable, CodeNoDevice},
		{fmt.Errorf("%w: phone is required", ErrInvalidRequest), CodeInvalidRequest},
		{protocol.ErrMalformed, CodeInvalidRequest},
		{protocol.ErrUnknownType, CodeInvalidRequest},
		{ErrCommandNotFound, CodeNotFound},
		{ErrDeliveryFailed, CodeDeliveryFailed},
		{ErrSessionClosed, CodeSessionClosed},
		{errDiskFull, CodeInternal},
	}
	for _, tt := range tests {
		if got := ErrorCode(tt.err); got != tt.want {
			t.Errorf("ErrorCode(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
