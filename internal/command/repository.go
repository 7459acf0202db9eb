package command

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/nerrad567/cellgate-core/internal/infrastructure/database"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Repository persists commands, calls and inbound messages.
type Repository interface {
	CreateCommand(ctx context.Context, c *Command) error
	GetCommand(ctx context.Context, id string) (*Command, error)

	// CompleteCommand moves a pending command of c.DeviceID to a terminal
	// state. applied is false when the command is missing, already terminal
	// or owned by another device.
	CompleteCommand(ctx context.Context, c *Command) (applied bool, err error)

	ListCommands(ctx context.Context, f Filter) ([]Command, error)

	CreateCall(ctx context.Context, c *Call) error
	GetCall(ctx context.Context, id string) (*Call, error)

	// UpdateCall writes c only if the stored row still has prev's status and
	// duration. applied is false when another writer got there first.
	UpdateCall(ctx context.Context, c *Call, prev Call) (applied bool, err error)

	ListCalls(ctx context.Context, f Filter) ([]Call, error)

	CreateInbound(ctx context.Context, m *InboundMessage) error
	ListInbound(ctx context.Context, f Filter) ([]InboundMessage, error)

	Totals(ctx context.Context) (Totals, error)
}

const commandColumns = `id, kind, device_id, state, phone, body, code, response, error, submitted_at, completed_at`

const callColumns = `id, device_id, direction, phone, status, started_at, ended_at, duration, created_at, updated_at`

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// CreateCommand inserts a pending command.
func (r *SQLiteRepository) CreateCommand(ctx context.Context, c *Command) error {
	if c.ID == "" || c.DeviceID == "" {
		return fmt.Errorf("%w: id and device id are required", ErrInvalidCommand)
	}
	if c.Kind != KindSendMessage && c.Kind != KindRunCode {
		return fmt.Errorf("%w: kind %q is not stored as a command", ErrInvalidCommand, c.Kind)
	}
	if c.State == "" {
		c.State = StatePending
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO commands (`+commandColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, string(c.Kind), c.DeviceID, string(c.State),
		c.Phone, c.Body, c.Code, c.Response, c.Error,
		database.FormatTime(c.SubmittedAt),
		database.NullTime(c.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting command: %w", err)
	}
	return nil
}

// GetCommand retrieves a command by ID.
func (r *SQLiteRepository) GetCommand(ctx context.Context, id string) (*Command, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+commandColumns+` FROM commands WHERE id = ?`, id)
	c, err := scanCommand(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCommandNotFound
		}
		return nil, fmt.Errorf("querying command: %w", err)
	}
	return c, nil
}

// CompleteCommand applies c's terminal state, error, response and
// completion time, guarded on the row still being pending and belonging to
// c.DeviceID.
func (r *SQLiteRepository) CompleteCommand(ctx context.Context, c *Command) (bool, error) {
	if !c.State.Terminal() {
		return false, fmt.Errorf("%w: state %q is not terminal", ErrInvalidCommand, c.State)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE commands
		SET state = ?, error = ?, response = ?, completed_at = ?
		WHERE id = ? AND device_id = ? AND state = 'pending'`,
		string(c.State), c.Error, c.Response, database.NullTime(c.CompletedAt), c.ID, c.DeviceID,
	)
	if err != nil {
		return false, fmt.Errorf("completing command: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return n == 1, nil
}

// ListCommands returns commands newest first.
func (r *SQLiteRepository) ListCommands(ctx context.Context, f Filter) ([]Command, error) {
	where, args := filterClause(f.Kind, "kind", f.State, "state")
	query := `SELECT ` + commandColumns + ` FROM commands` + where + ` ORDER BY submitted_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, limit(f.Limit), max(f.Offset, 0))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying commands: %w", err)
	}
	defer rows.Close()

	commands := []Command{}
	for rows.Next() {
		c, err := scanCommand(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning command: %w", err)
		}
		commands = append(commands, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating commands: %w", err)
	}
	return commands, nil
}

// CreateCall inserts a call record.
func (r *SQLiteRepository) CreateCall(ctx context.Context, c *Call) error {
	if c.ID == "" || c.DeviceID == "" || c.Phone == "" {
		return fmt.Errorf("%w: call id, device id and phone are required", ErrInvalidCommand)
	}
	if !c.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, c.Status)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO calls (`+callColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.DeviceID, string(c.Direction), c.Phone, string(c.Status),
		database.NullTime(c.StartedAt),
		database.NullTime(c.EndedAt),
		database.NullInt(c.Duration),
		database.FormatTime(c.CreatedAt),
		database.FormatTime(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting call: %w", err)
	}
	return nil
}

// GetCall retrieves a call by ID.
func (r *SQLiteRepository) GetCall(ctx context.Context, id string) (*Call, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+callColumns+` FROM calls WHERE id = ?`, id)
	c, err := scanCall(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCallNotFound
		}
		return nil, fmt.Errorf("querying call: %w", err)
	}
	return c, nil
}

// UpdateCall writes the call's progress fields, guarded on prev. SQLite's
// IS operator makes the duration comparison NULL-safe.
func (r *SQLiteRepository) UpdateCall(ctx context.Context, c *Call, prev Call) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE calls
		SET status = ?, started_at = ?, ended_at = ?, duration = ?, updated_at = ?
		WHERE id = ? AND status = ? AND duration IS ?`,
		string(c.Status),
		database.NullTime(c.StartedAt),
		database.NullTime(c.EndedAt),
		database.NullInt(c.Duration),
		database.FormatTime(c.UpdatedAt),
		c.ID,
		string(prev.Status),
		database.NullInt(prev.Duration),
	)
	if err != nil {
		return false, fmt.Errorf("updating call: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return n == 1, nil
}

// ListCalls returns calls newest first. Filter.State is ignored; calls are
// not filtered by command state.
func (r *SQLiteRepository) ListCalls(ctx context.Context, f Filter) ([]Call, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+callColumns+` FROM calls ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		limit(f.Limit), max(f.Offset, 0),
	)
	if err != nil {
		return nil, fmt.Errorf("querying calls: %w", err)
	}
	defer rows.Close()

	calls := []Call{}
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning call: %w", err)
		}
		calls = append(calls, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating calls: %w", err)
	}
	return calls, nil
}

// CreateInbound stores a received message.
func (r *SQLiteRepository) CreateInbound(ctx context.Context, m *InboundMessage) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO inbound_messages (id, device_id, sender, body, received_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.DeviceID, m.From, m.Body,
		database.FormatTime(m.ReceivedAt),
		database.FormatTime(m.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting inbound message: %w", err)
	}
	return nil
}

// ListInbound returns received messages newest first.
func (r *SQLiteRepository) ListInbound(ctx context.Context, f Filter) ([]InboundMessage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, device_id, sender, body, received_at, created_at
		FROM inbound_messages
		ORDER BY received_at DESC, id
		LIMIT ? OFFSET ?`,
		limit(f.Limit), max(f.Offset, 0),
	)
	if err != nil {
		return nil, fmt.Errorf("querying inbound messages: %w", err)
	}
	defer rows.Close()

	messages := []InboundMessage{}
	for rows.Next() {
		var m InboundMessage
		var receivedAt, createdAt string
		if err := rows.Scan(&m.ID, &m.DeviceID, &m.From, &m.Body, &receivedAt, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning inbound message: %w", err)
		}
		if m.ReceivedAt, err = database.ParseTime(receivedAt); err != nil {
			return nil, fmt.Errorf("parsing received_at: %w", err)
		}
		if m.CreatedAt, err = database.ParseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating inbound messages: %w", err)
	}
	return messages, nil
}

// Totals counts history rows.
func (r *SQLiteRepository) Totals(ctx context.Context) (Totals, error) {
	var t Totals
	err := r.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM commands WHERE kind = 'send_message'),
			(SELECT COUNT(*) FROM calls),
			(SELECT COUNT(*) FROM commands WHERE kind = 'run_code'),
			(SELECT COUNT(*) FROM inbound_messages),
			(SELECT COUNT(*) FROM commands WHERE state = 'pending')`,
	).Scan(&t.Messages, &t.Calls, &t.Codes, &t.Inbound, &t.PendingCommands)
	if err != nil {
		return Totals{}, fmt.Errorf("counting history: %w", err)
	}
	return t, nil
}

// filterClause builds a WHERE clause from optional kind/state filters.
func filterClause(kind Kind, kindCol string, state State, stateCol string) (string, []any) {
	var conds []string
	var args []any
	if kind != "" {
		conds = append(conds, kindCol+" = ?")
		args = append(args, string(kind))
	}
	if state != "" {
		conds = append(conds, stateCol+" = ?")
		args = append(args, string(state))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func limit(n int) int {
	switch {
	case n <= 0:
		return defaultListLimit
	case n > maxListLimit:
		return maxListLimit
	default:
		return n
	}
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCommand(scanner rowScanner) (*Command, error) {
	var c Command
	var kind, state, submittedAt string
	var completedAt sql.NullString

	if err := scanner.Scan(
		&c.ID, &kind, &c.DeviceID, &state,
		&c.Phone, &c.Body, &c.Code, &c.Response, &c.Error,
		&submittedAt, &completedAt,
	); err != nil {
		return nil, err
	}

	c.Kind = Kind(kind)
	c.State = State(state)
	c.CompletedAt = database.TimePtr(completedAt)

	var err error
	if c.SubmittedAt, err = database.ParseTime(submittedAt); err != nil {
		return nil, fmt.Errorf("parsing submitted_at: %w", err)
	}
	return &c, nil
}

func scanCall(scanner rowScanner) (*Call, error) {
	var c Call
	var direction, status, createdAt, updatedAt string
	var startedAt, endedAt sql.NullString
	var duration sql.NullInt64

	if err := scanner.Scan(
		&c.ID, &c.DeviceID, &direction, &c.Phone, &status,
		&startedAt, &endedAt, &duration, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	c.Direction = Direction(direction)
	c.Status = CallStatus(status)
	c.StartedAt = database.TimePtr(startedAt)
	c.EndedAt = database.TimePtr(endedAt)
	c.Duration = database.IntPtr(duration)

	var err error
	if c.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if c.UpdatedAt, err = database.ParseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &c, nil
}
