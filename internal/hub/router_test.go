package hub

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/nerrad567/cellgate-core/internal/command"
	"github.com/nerrad567/cellgate-core/internal/protocol"
)

func TestRouter_NoDeviceOnlineWritesNothing(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	calls := []struct {
		name string
		fn   func() (string, error)
	}{
		{"sendMessage", func() (string, error) {
			return f.router.SendMessage(ctx, protocol.SendMessageRequest{Phone: "+225000000", Body: "hi"})
		}},
		{"initiateCall", func() (string, error) {
			return f.router.InitiateCall(ctx, protocol.InitiateCallRequest{Phone: "+225000000"})
		}},
		{"executeCode", func() (string, error) {
			return f.router.ExecuteCode(ctx, protocol.ExecuteCodeRequest{Code: "*123#"})
		}},
	}

	for _, c := range calls {
		t.Run(c.name, func(t *testing.T) {
			id, err := c.fn()
			if !errors.Is(err, ErrNoDeviceAvailable) {
				t.Fatalf("error = %v, want ErrNoDeviceAvailable", err)
			}
			if id != "" {
				t.Errorf("id = %q, want empty", id)
			}
			if _, cmds, calls := f.store.counts(); cmds != 0 || calls != 0 {
				t.Errorf("persisted %d commands, %d calls; want none", cmds, calls)
			}
		})
	}
}

func TestRouter_AmbiguousTarget(t *testing.T) {
	f := newFixture()
	d1, c1 := f.connect(t, "T1")
	f.connect(t, "T2")
	ctx := context.Background()

	_, err := f.router.SendMessage(ctx, protocol.SendMessageRequest{Phone: "+225000000", Body: "hi"})
	if !errors.Is(err, ErrAmbiguousDevice) {
		t.Fatalf("implicit target error = %v, want ErrAmbiguousDevice", err)
	}
	if _, cmds, _ := f.store.counts(); cmds != 0 {
		t.Errorf("persisted %d commands, want 0", cmds)
	}

	id, err := f.router.SendMessage(ctx, protocol.SendMessageRequest{Phone: "+225000000", Body: "hi", DeviceID: d1.DeviceID()})
	if err != nil {
		t.Fatalf("explicit target error = %v", err)
	}
	if cmd, _ := f.store.commandByID(id); cmd.DeviceID != d1.DeviceID() {
		t.Errorf("command device = %q, want %q", cmd.DeviceID, d1.DeviceID())
	}
	if got := len(c1.Sent()); got != 1 {
		t.Errorf("target received %d frames, want 1", got)
	}
}

func TestRouter_SendMessage(t *testing.T) {
	f := newFixture()
	s, conn := f.connect(t, "T1")

	id, err := f.router.SendMessage(context.Background(), protocol.SendMessageRequest{Phone: " +225000000 ", Body: "hi"})
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	cmd, ok := f.store.commandByID(id)
	if !ok {
		t.Fatal("command not persisted")
	}
	if cmd.Kind != command.KindSendMessage || cmd.State != command.StatePending || cmd.DeviceID != s.DeviceID() {
		t.Errorf("command = %+v", cmd)
	}

	sent := conn.Sent()
	want := protocol.SendMessage{CommandID: id, Phone: "+225000000", Body: "hi"}
	if len(sent) != 1 || sent[0] != want {
		t.Errorf("sent = %#v, want %#v", sent, want)
	}
}

func TestRouter_Validation(t *testing.T) {
	f := newFixture()
	f.connect(t, "T1")
	ctx := context.Background()

	tests := []struct {
		name string
		fn   func() (string, error)
	}{
		{"empty phone", func() (string, error) {
			return f.router.SendMessage(ctx, protocol.SendMessageRequest{Body: "hi"})
		}},
		{"letters in phone", func() (string, error) {
			return f.router.SendMessage(ctx, protocol.SendMessageRequest{Phone: "call me", Body: "hi"})
		}},
		{"plus not leading", func() (string, error) {
			return f.router.InitiateCall(ctx, protocol.InitiateCallRequest{Phone: "225+000"})
		}},
		{"long phone", func() (string, error) {
			return f.router.InitiateCall(ctx, protocol.InitiateCallRequest{Phone: strings.Repeat("1", maxPhoneLength+1)})
		}},
		{"blank body", func() (string, error) {
			return f.router.SendMessage(ctx, protocol.SendMessageRequest{Phone: "+225000000", Body: "  "})
		}},
		{"long body", func() (string, error) {
			return f.router.SendMessage(ctx, protocol.SendMessageRequest{Phone: "+225000000", Body: strings.Repeat("é", maxBodyLength+1)})
		}},
		{"empty code", func() (string, error) {
			return f.router.ExecuteCode(ctx, protocol.ExecuteCodeRequest{})
		}},
		{"bad code", func() (string, error) {
			return f.router.ExecuteCode(ctx, protocol.ExecuteCodeRequest{Code: "*123#; rm"})
		}},
		{"hangup without id", func() (string, error) {
			return f.router.HangupCall(ctx, protocol.HangupCallRequest{})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.fn(); !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("error = %v, want ErrInvalidRequest", err)
			}
		})
	}
	if _, cmds, calls := f.store.counts(); cmds != 0 || calls != 0 {
		t.Errorf("persisted %d commands, %d calls; want none", cmds, calls)
	}
}

func TestRouter_DeliveryFailureMarksCommandFailed(t *testing.T) {
	f := newFixture()
	_, conn := f.connect(t, "T1")
	conn.sendErr = errConnClosed
	sub := f.bus.Subscribe(4)
	ctx := context.Background()

	t.Run("message", func(t *testing.T) {
		id, err := f.router.SendMessage(ctx, protocol.SendMessageRequest{Phone: "+225000000", Body: "hi"})
		if !errors.Is(err, ErrDeliveryFailed) || id == "" {
			t.Fatalf("SendMessage() = %q, %v; want id and ErrDeliveryFailed", id, err)
		}
		if cmd, _ := f.store.commandByID(id); cmd.State != command.StateFailed || cmd.CompletedAt == nil {
			t.Errorf("command = %+v, want failed", cmd)
		}
		ev, ok := onlyEvent(t, sub).(protocol.MessageResultEvent)
		if !ok || ev.CommandID != id || ev.Success {
			t.Errorf("event = %#v", ev)
		}
	})

	t.Run("code", func(t *testing.T) {
		id, err := f.router.ExecuteCode(ctx, protocol.ExecuteCodeRequest{Code: "*100#"})
		if !errors.Is(err, ErrDeliveryFailed) {
			t.Fatalf("ExecuteCode() error = %v, want ErrDeliveryFailed", err)
		}
		if cmd, _ := f.store.commandByID(id); cmd.State != command.StateFailed {
			t.Errorf("command state = %q, want failed", cmd.State)
		}
		if ev, ok := onlyEvent(t, sub).(protocol.CodeResultEvent); !ok || ev.Success {
			t.Errorf("event = %#v", ev)
		}
	})

	t.Run("call", func(t *testing.T) {
		id, err := f.router.InitiateCall(ctx, protocol.InitiateCallRequest{Phone: "+225000000"})
		if !errors.Is(err, ErrDeliveryFailed) {
			t.Fatalf("InitiateCall() error = %v, want ErrDeliveryFailed", err)
		}
		if call, _ := f.store.callByID(id); call.Status != command.CallFailed {
			t.Errorf("call status = %q, want failed", call.Status)
		}
		if ev, ok := onlyEvent(t, sub).(protocol.CallStatusEvent); !ok || ev.Status != "failed" {
			t.Errorf("event = %#v", ev)
		}
	})
}

func TestRouter_StorageFaultSurfaces(t *testing.T) {
	f := newFixture()
	_, conn := f.connect(t, "T1")
	f.store.setFail(true)

	_, err := f.router.SendMessage(context.Background(), protocol.SendMessageRequest{Phone: "+225000000", Body: "hi"})
	if !errors.Is(err, errDiskFull) {
		t.Fatalf("SendMessage() error = %v, want storage fault", err)
	}
	if len(conn.Sent()) != 0 {
		t.Error("frame sent although the command was not recorded")
	}
}

func TestRouter_HangupCall(t *testing.T) {
	f := newFixture()
	_, conn := f.connect(t, "T1")
	ctx := context.Background()
	id, err := f.router.InitiateCall(ctx, protocol.InitiateCallRequest{Phone: "+225000000"})
	if err != nil {
		t.Fatalf("InitiateCall() error = %v", err)
	}
	sub := f.bus.Subscribe(4)

	if _, err := f.router.HangupCall(ctx, protocol.HangupCallRequest{CommandID: id}); err != nil {
		t.Fatalf("HangupCall() error = %v", err)
	}
	call, _ := f.store.callByID(id)
	if call.Status != command.CallEnded || call.EndedAt == nil {
		t.Errorf("call = %+v, want ended", call)
	}
	if ev, ok := onlyEvent(t, sub).(protocol.CallStatusEvent); !ok || ev.Status != "ended" {
		t.Errorf("event = %#v", ev)
	}

	// Hanging up a finished call still signals the device but changes nothing.
	if _, err := f.router.HangupCall(ctx, protocol.HangupCallRequest{CommandID: id}); err != nil {
		t.Fatalf("second HangupCall() error = %v", err)
	}
	if events := drain(sub); len(events) != 0 {
		t.Errorf("second hangup published %d events, want 0", len(events))
	}

	var hangups int
	for _, m := range conn.Sent() {
		if h, ok := m.(protocol.HangupCall); ok && h.CommandID == id {
			hangups++
		}
	}
	if hangups != 2 {
		t.Errorf("sent %d call:hangup frames, want 2", hangups)
	}
}

func TestRouter_HangupUnknownCall(t *testing.T) {
	f := newFixture()
	f.connect(t, "T1")

	_, err := f.router.HangupCall(context.Background(), protocol.HangupCallRequest{CommandID: "nope"})
	if !errors.Is(err, ErrCommandNotFound) {
		t.Errorf("HangupCall() error = %v, want ErrCommandNotFound", err)
	}
}

func TestRouter_HangupWhenDeviceGone(t *testing.T) {
	f := newFixture()
	s, _ := f.connect(t, "T1")
	ctx := context.Background()
	id, _ := f.router.InitiateCall(ctx, protocol.InitiateCallRequest{Phone: "+225000000"})
	if err := s.Handle(ctx, protocol.CallStatus{CommandID: id, Status: "answered"}); err != nil {
		t.Fatalf("Handle(answered) error = %v", err)
	}
	s.Close(ctx)

	sub := f.bus.Subscribe(8)
	defer f.bus.Unsubscribe(sub)

	got, err := f.router.HangupCall(ctx, protocol.HangupCallRequest{CommandID: id})
	if !errors.Is(err, ErrNoDeviceAvailable) {
		t.Errorf("HangupCall() error = %v, want ErrNoDeviceAvailable", err)
	}
	if got != id {
		t.Errorf("HangupCall() id = %q, want %q", got, id)
	}

	call, _ := f.store.callByID(id)
	if call.Status != command.CallEnded || call.EndedAt == nil {
		t.Errorf("call status = %q ended_at = %v, want ended with end time", call.Status, call.EndedAt)
	}
	ev, ok := onlyEvent(t, sub).(protocol.CallStatusEvent)
	if !ok || ev.Status != string(command.CallEnded) {
		t.Errorf("event = %#v, want callStatus ended", ev)
	}

	// A second hang-up finds the call already ended and writes nothing.
	if _, err := f.router.HangupCall(ctx, protocol.HangupCallRequest{CommandID: id}); !errors.Is(err, ErrNoDeviceAvailable) {
		t.Errorf("second HangupCall() error = %v, want ErrNoDeviceAvailable", err)
	}
	if evs := drain(sub); len(evs) != 0 {
		t.Errorf("second hang-up published %d events, want 0", len(evs))
	}
}

func TestRouter_AnswerWhenDeviceGone(t *testing.T) {
	f := newFixture()
	s, _ := f.connect(t, "T1")
	ctx := context.Background()
	id, _ := f.router.InitiateCall(ctx, protocol.InitiateCallRequest{Phone: "+225000000"})
	s.Close(ctx)

	if _, err := f.router.AnswerCall(ctx, protocol.AnswerCallRequest{CommandID: id}); !errors.Is(err, ErrNoDeviceAvailable) {
		t.Errorf("AnswerCall() error = %v, want ErrNoDeviceAvailable", err)
	}
	if call, _ := f.store.callByID(id); call.Status != command.CallInitiated {
		t.Errorf("call status = %q, want initiated", call.Status)
	}
}

func TestRouter_AnswerCall(t *testing.T) {
	f := newFixture()
	s, conn := f.connect(t, "T1")
	ctx := context.Background()
	id, _ := f.router.InitiateCall(ctx, protocol.InitiateCallRequest{Phone: "+225000000"})

	if _, err := f.router.AnswerCall(ctx, protocol.AnswerCallRequest{CommandID: id}); err != nil {
		t.Fatalf("AnswerCall() error = %v", err)
	}
	sent := conn.Sent()
	if last, ok := sent[len(sent)-1].(protocol.AnswerCall); !ok || last.CommandID != id {
		t.Errorf("last frame = %#v, want call:answer", sent[len(sent)-1])
	}

	if err := s.Handle(ctx, protocol.CallStatus{CommandID: id, Status: "failed"}); err != nil {
		t.Fatalf("Handle(failed) error = %v", err)
	}
	if _, err := f.router.AnswerCall(ctx, protocol.AnswerCallRequest{CommandID: id}); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("AnswerCall(terminal) error = %v, want ErrInvalidRequest", err)
	}
}
