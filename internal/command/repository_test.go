package command

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/cellgate-core/internal/infrastructure/database"
	"github.com/nerrad567/cellgate-core/migrations"
)

const testDeviceID = "device-1"

// setupTestDB creates a migrated database with one device row so foreign
// keys hold.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "cellgate.db"),
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	now := database.FormatTime(time.Now())
	if _, err := db.ExecContext(ctx,
		`INSERT INTO devices (id, name, token_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		testDeviceID, "GSM Gateway", "hash", now, now,
	); err != nil {
		t.Fatalf("failed to seed device: %v", err)
	}
	return db.DB
}

func TestSQLiteRepository_CommandLifecycle(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	c := NewMessage(testDeviceID, "+225000000", "hi", time.Now())
	if err := repo.CreateCommand(ctx, c); err != nil {
		t.Fatalf("CreateCommand() error = %v", err)
	}

	got, err := repo.GetCommand(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCommand() error = %v", err)
	}
	if got.State != StatePending || got.Phone != "+225000000" || got.Body != "hi" {
		t.Errorf("GetCommand() = %+v", got)
	}

	done := time.Now()
	got.State = StateSucceeded
	got.CompletedAt = &done
	applied, err := repo.CompleteCommand(ctx, got)
	if err != nil {
		t.Fatalf("CompleteCommand() error = %v", err)
	}
	if !applied {
		t.Fatal("CompleteCommand() applied = false on pending command")
	}

	// Replays and contradicting late results change nothing.
	got.State = StateFailed
	got.Error = "late failure"
	applied, err = repo.CompleteCommand(ctx, got)
	if err != nil {
		t.Fatalf("second CompleteCommand() error = %v", err)
	}
	if applied {
		t.Error("second CompleteCommand() applied = true, want false")
	}

	final, err := repo.GetCommand(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCommand() error = %v", err)
	}
	if final.State != StateSucceeded || final.Error != "" || final.CompletedAt == nil {
		t.Errorf("final command = %+v, want succeeded without error", final)
	}
}

func TestSQLiteRepository_CompleteOtherDevice(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	cmd := NewMessage(testDeviceID, "+1", "hello", time.Now())
	if err := repo.CreateCommand(ctx, cmd); err != nil {
		t.Fatalf("CreateCommand() error = %v", err)
	}

	done := time.Now()
	applied, err := repo.CompleteCommand(ctx, &Command{ID: cmd.ID, DeviceID: "device-2", State: StateSucceeded, CompletedAt: &done})
	if err != nil {
		t.Fatalf("CompleteCommand() error = %v", err)
	}
	if applied {
		t.Error("CompleteCommand() from another device applied = true")
	}
	if got, _ := repo.GetCommand(ctx, cmd.ID); got.State != StatePending {
		t.Errorf("state = %q, want pending", got.State)
	}
}

func TestSQLiteRepository_CompleteMissing(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	applied, err := repo.CompleteCommand(context.Background(), &Command{ID: "missing", State: StateFailed})
	if err != nil {
		t.Fatalf("CompleteCommand() error = %v", err)
	}
	if applied {
		t.Error("CompleteCommand() on missing command applied = true")
	}

	if _, err := repo.CompleteCommand(context.Background(), &Command{ID: "x", State: StatePending}); !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("CompleteCommand(pending) error = %v, want ErrInvalidCommand", err)
	}
	if _, err := repo.GetCommand(context.Background(), "missing"); !errors.Is(err, ErrCommandNotFound) {
		t.Errorf("GetCommand() error = %v, want ErrCommandNotFound", err)
	}
}

func TestSQLiteRepository_CreateCommandRejectsCallKinds(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	for _, kind := range []Kind{KindPlaceCall, KindEndCall, KindAnswerCall} {
		c := &Command{ID: "c-" + string(kind), Kind: kind, DeviceID: testDeviceID, SubmittedAt: time.Now()}
		if err := repo.CreateCommand(context.Background(), c); !errors.Is(err, ErrInvalidCommand) {
			t.Errorf("CreateCommand(%s) error = %v, want ErrInvalidCommand", kind, err)
		}
	}
}

func TestSQLiteRepository_ListCommandsFilters(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		if err := repo.CreateCommand(ctx, NewMessage(testDeviceID, "+1", "m", base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("CreateCommand() error = %v", err)
		}
	}
	code := NewCode(testDeviceID, "*123#", base.Add(time.Hour))
	if err := repo.CreateCommand(ctx, code); err != nil {
		t.Fatalf("CreateCommand() error = %v", err)
	}
	code.State = StateSucceeded
	code.Response = "Balance: 100"
	if _, err := repo.CompleteCommand(ctx, code); err != nil {
		t.Fatalf("CompleteCommand() error = %v", err)
	}

	messages, err := repo.ListCommands(ctx, Filter{Kind: KindSendMessage})
	if err != nil {
		t.Fatalf("ListCommands() error = %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("ListCommands(send_message) = %d rows, want 3", len(messages))
	}
	if !messages[0].SubmittedAt.After(messages[2].SubmittedAt) {
		t.Error("ListCommands() should return newest first")
	}

	page, err := repo.ListCommands(ctx, Filter{Kind: KindSendMessage, Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("ListCommands() page error = %v", err)
	}
	if len(page) != 1 || page[0].ID != messages[1].ID {
		t.Errorf("ListCommands() page = %+v, want second newest", page)
	}

	done, err := repo.ListCommands(ctx, Filter{State: StateSucceeded})
	if err != nil {
		t.Fatalf("ListCommands() error = %v", err)
	}
	if len(done) != 1 || done[0].Response != "Balance: 100" {
		t.Errorf("ListCommands(succeeded) = %+v", done)
	}

	totals, err := repo.Totals(ctx)
	if err != nil {
		t.Fatalf("Totals() error = %v", err)
	}
	want := Totals{Messages: 3, Codes: 1, PendingCommands: 3}
	if totals != want {
		t.Errorf("Totals() = %+v, want %+v", totals, want)
	}
}

func TestSQLiteRepository_CallCompareAndSet(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	now := time.Now()
	call := NewOutgoingCall(testDeviceID, "+225000000", now)
	if err := repo.CreateCall(ctx, call); err != nil {
		t.Fatalf("CreateCall() error = %v", err)
	}

	prev := *call
	if _, err := call.Advance(CallAnswered, nil, now.Add(time.Second)); err != nil {
		t.Fatalf("Advance() error = %v", err)
	}
	applied, err := repo.UpdateCall(ctx, call, prev)
	if err != nil || !applied {
		t.Fatalf("UpdateCall() = %v, %v; want applied", applied, err)
	}

	// A writer holding the stale snapshot loses.
	stale := prev
	if _, err := stale.Advance(CallFailed, nil, now); err != nil {
		t.Fatalf("Advance() error = %v", err)
	}
	applied, err = repo.UpdateCall(ctx, &stale, prev)
	if err != nil {
		t.Fatalf("UpdateCall() error = %v", err)
	}
	if applied {
		t.Error("UpdateCall() with stale snapshot applied = true")
	}

	// ended without duration, then the late duration.
	prev = *call
	call.Hangup(now.Add(10 * time.Second))
	if applied, err := repo.UpdateCall(ctx, call, prev); err != nil || !applied {
		t.Fatalf("UpdateCall(ended) = %v, %v", applied, err)
	}
	prev = *call
	if _, err := call.Advance(CallEnded, intPtr(42), now.Add(11*time.Second)); err != nil {
		t.Fatalf("Advance() error = %v", err)
	}
	if applied, err := repo.UpdateCall(ctx, call, prev); err != nil || !applied {
		t.Fatalf("UpdateCall(duration) = %v, %v", applied, err)
	}

	got, err := repo.GetCall(ctx, call.ID)
	if err != nil {
		t.Fatalf("GetCall() error = %v", err)
	}
	if got.Status != CallEnded || got.Duration == nil || *got.Duration != 42 {
		t.Errorf("GetCall() = %+v, want ended with duration 42", got)
	}
	if got.StartedAt == nil || got.EndedAt == nil {
		t.Errorf("GetCall() timestamps = %v / %v, want both set", got.StartedAt, got.EndedAt)
	}

	calls, err := repo.ListCalls(ctx, Filter{})
	if err != nil {
		t.Fatalf("ListCalls() error = %v", err)
	}
	if len(calls) != 1 {
		t.Errorf("ListCalls() = %d rows, want 1", len(calls))
	}
}

func TestSQLiteRepository_CallErrors(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	if _, err := repo.GetCall(ctx, "missing"); !errors.Is(err, ErrCallNotFound) {
		t.Errorf("GetCall() error = %v, want ErrCallNotFound", err)
	}
	if err := repo.CreateCall(ctx, &Call{ID: "c", DeviceID: testDeviceID}); !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("CreateCall(no phone) error = %v, want ErrInvalidCommand", err)
	}
	bad := NewOutgoingCall(testDeviceID, "+1", time.Now())
	bad.Status = "dialling"
	if err := repo.CreateCall(ctx, bad); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("CreateCall(bad status) error = %v, want ErrInvalidStatus", err)
	}
}

func TestSQLiteRepository_Inbound(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	received := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	older := NewInboundMessage(testDeviceID, "+225111", "first", received, time.Now())
	newer := NewInboundMessage(testDeviceID, "+225222", "second", received.Add(time.Minute), time.Now())
	for _, m := range []*InboundMessage{older, newer} {
		if err := repo.CreateInbound(ctx, m); err != nil {
			t.Fatalf("CreateInbound() error = %v", err)
		}
	}

	got, err := repo.ListInbound(ctx, Filter{})
	if err != nil {
		t.Fatalf("ListInbound() error = %v", err)
	}
	if len(got) != 2 || got[0].Body != "second" || got[1].From != "+225111" {
		t.Errorf("ListInbound() = %+v", got)
	}
	if !got[1].ReceivedAt.Equal(received) {
		t.Errorf("ReceivedAt = %v, want %v", got[1].ReceivedAt, received)
	}
}

func TestNewInboundMessage_DefaultsReceivedAt(t *testing.T) {
	now := time.Now()
	m := NewInboundMessage("d", "+1", "x", time.Time{}, now)
	if !m.ReceivedAt.Equal(now) {
		t.Errorf("ReceivedAt = %v, want now", m.ReceivedAt)
	}
}

func TestLimit(t *testing.T) {
	tests := map[int]int{0: defaultListLimit, -5: defaultListLimit, 10: 10, 10_000: maxListLimit}
	for in, want := range tests {
		if got := limit(in); got != want {
			t.Errorf("limit(%d) = %d, want %d", in, got, want)
		}
	}
}
