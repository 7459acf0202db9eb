// Package contact is the address book shown alongside message and call
// history.
package contact

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/cellgate-core/internal/infrastructure/database"
)

var (
	// ErrContactNotFound is returned when a contact ID does not exist.
	ErrContactNotFound = errors.New("contact: not found")

	// ErrInvalidContact is returned when name or phone number is missing.
	ErrInvalidContact = errors.New("contact: invalid")
)

const maxNameLength = 100

// Contact is a named phone number.
type Contact struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	PhoneNumber string    `json:"phone_number"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Validate trims the contact's fields and checks the required ones.
func (c *Contact) Validate() error {
	c.Name = strings.TrimSpace(c.Name)
	c.PhoneNumber = strings.TrimSpace(c.PhoneNumber)
	if c.Name == "" || c.PhoneNumber == "" {
		return fmt.Errorf("%w: name and phone number are required", ErrInvalidContact)
	}
	if len(c.Name) > maxNameLength {
		return fmt.Errorf("%w: name too long", ErrInvalidContact)
	}
	return nil
}

// Repository defines contact persistence.
type Repository interface {
	// List returns contacts ordered by name. A non-empty search matches
	// name (case-insensitive) or phone number substrings.
	List(ctx context.Context, search string) ([]Contact, error)
	GetByID(ctx context.Context, id string) (*Contact, error)
	Create(ctx context.Context, c *Contact) error
	Update(ctx context.Context, c *Contact) error
	Delete(ctx context.Context, id string) error
}

const contactColumns = `id, name, phone_number, notes, created_at, updated_at`

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// List returns contacts ordered by name.
func (r *SQLiteRepository) List(ctx context.Context, search string) ([]Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts`
	var args []any
	if search = strings.TrimSpace(search); search != "" {
		pattern := "%" + escapeLike(search) + "%"
		query += ` WHERE name LIKE ? ESCAPE '\' OR phone_number LIKE ? ESCAPE '\'`
		args = append(args, pattern, pattern)
	}
	query += ` ORDER BY name COLLATE NOCASE, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying contacts: %w", err)
	}
	defer rows.Close()

	contacts := []Contact{}
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning contact: %w", err)
		}
		contacts = append(contacts, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating contacts: %w", err)
	}
	return contacts, nil
}

// GetByID retrieves a contact.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Contact, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id = ?`, id)
	c, err := scanContact(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrContactNotFound
		}
		return nil, fmt.Errorf("querying contact: %w", err)
	}
	return c, nil
}

// Create validates and inserts a contact, assigning an ID when empty.
func (r *SQLiteRepository) Create(ctx context.Context, c *Contact) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO contacts (`+contactColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.PhoneNumber, c.Notes,
		database.FormatTime(c.CreatedAt), database.FormatTime(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting contact: %w", err)
	}
	return nil
}

// Update validates and rewrites a contact.
func (r *SQLiteRepository) Update(ctx context.Context, c *Contact) error {
	if err := c.Validate(); err != nil {
		return err
	}
	c.UpdatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx, `
		UPDATE contacts SET name = ?, phone_number = ?, notes = ?, updated_at = ?
		WHERE id = ?`,
		c.Name, c.PhoneNumber, c.Notes, database.FormatTime(c.UpdatedAt), c.ID,
	)
	if err != nil {
		return fmt.Errorf("updating contact: %w", err)
	}
	return requireOneRow(result)
}

// Delete removes a contact.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM contacts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting contact: %w", err)
	}
	return requireOneRow(result)
}

func requireOneRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrContactNotFound
	}
	return nil
}

// escapeLike escapes LIKE wildcards so a search is literal.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContact(scanner rowScanner) (*Contact, error) {
	var c Contact
	var createdAt, updatedAt string
	if err := scanner.Scan(&c.ID, &c.Name, &c.PhoneNumber, &c.Notes, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	var err error
	if c.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if c.UpdatedAt, err = database.ParseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &c, nil
}
