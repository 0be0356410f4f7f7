package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.mau.fi/whatsmeow/types"

	"profilewatch/internal/profile"
)

// Contact is a tracked phone number. Phone is the contact ID and never
// changes once created.
type Contact struct {
	Phone       string
	JID         types.JID
	DisplayName string
	Username    string

	// Business profile, refreshed on every pass
	IsBusiness         bool
	BusinessName       string
	BusinessEmail      string
	BusinessAddress    string
	BusinessCategories []string

	// Presence
	IsOnline bool
	LastSeen time.Time

	LastCheckedAt time.Time
	LastError     string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Name returns the best human label for the contact.
func (c *Contact) Name() string {
	switch {
	case c.DisplayName != "":
		return c.DisplayName
	case c.BusinessName != "":
		return c.BusinessName
	case c.Username != "":
		return c.Username
	default:
		return c.Phone
	}
}

// ContactStore handles contact operations.
type ContactStore struct {
	store *Store
}

// NewContactStore creates a new ContactStore.
func NewContactStore(s *Store) *ContactStore {
	return &ContactStore{store: s}
}

// Put adds a contact or updates its display name and username. The JID of
// an existing contact is kept.
func (s *ContactStore) Put(ctx context.Context, c *Contact) error {
	now := time.Now().UnixMilli()
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO pw_contacts (phone, jid, display_name, username, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(phone) DO UPDATE SET
			display_name = COALESCE(excluded.display_name, pw_contacts.display_name),
			username = COALESCE(excluded.username, pw_contacts.username),
			updated_at = excluded.updated_at
	`, c.Phone, c.JID.String(), nullString(c.DisplayName), nullString(c.Username), now, now)
	if err != nil {
		return fmt.Errorf("failed to put contact %s: %w", c.Phone, err)
	}
	return nil
}

const contactColumns = `phone, jid, display_name, username,
	is_business, business_name, business_email, business_address, business_categories,
	is_online, last_seen, last_checked_at, last_error, created_at, updated_at`

// Get retrieves a contact by phone number.
func (s *ContactStore) Get(ctx context.Context, phone string) (*Contact, error) {
	row := s.store.db.QueryRowContext(ctx, `SELECT `+contactColumns+` FROM pw_contacts WHERE phone = ?`, phone)
	c, err := scanContact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", profile.ErrContactNotTracked, phone)
	}
	return c, err
}

// Exists reports whether phone is tracked.
func (s *ContactStore) Exists(ctx context.Context, phone string) (bool, error) {
	var n int
	err := s.store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pw_contacts WHERE phone = ?`, phone).Scan(&n)
	return n > 0, err
}

// GetAll retrieves all contacts ordered by phone number.
func (s *ContactStore) GetAll(ctx context.Context) ([]*Contact, error) {
	rows, err := s.store.db.QueryContext(ctx, `SELECT `+contactColumns+` FROM pw_contacts ORDER BY phone`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []*Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// Delete stops tracking phone. Its baseline, histories and presence log go
// with it.
func (s *ContactStore) Delete(ctx context.Context, phone string) error {
	res, err := s.store.db.ExecContext(ctx, `DELETE FROM pw_contacts WHERE phone = ?`, phone)
	if err != nil {
		return fmt.Errorf("failed to delete contact %s: %w", phone, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", profile.ErrContactNotTracked, phone)
	}
	return nil
}

// UpdatePresence updates online/last seen status.
func (s *ContactStore) UpdatePresence(ctx context.Context, phone string, isOnline bool, lastSeen time.Time) error {
	_, err := s.store.db.ExecContext(ctx, `
		UPDATE pw_contacts SET is_online = ?, last_seen = COALESCE(?, last_seen), updated_at = ? WHERE phone = ?
	`, boolToInt(isOnline), nullTime(lastSeen), time.Now().UnixMilli(), phone)
	return err
}

// UpdateProfile stores the account type and business details seen in snap.
func (s *ContactStore) UpdateProfile(ctx context.Context, phone string, snap profile.Snapshot) error {
	var name, email, address string
	var categories []string
	if b, ok := snap.(profile.Business); ok {
		name = b.Name.OrZero()
		email = b.Email.OrZero()
		address = b.Address.OrZero()
		categories = b.Categories
	}
	_, err := s.store.db.ExecContext(ctx, `
		UPDATE pw_contacts SET
			is_business = ?, business_name = ?, business_email = ?, business_address = ?,
			business_categories = ?, updated_at = ?
		WHERE phone = ?
	`, boolToInt(snap.IsBusiness()), nullString(name), nullString(email), nullString(address),
		jsonMarshalStrings(categories), time.Now().UnixMilli(), phone)
	return err
}

// MarkChecked records the outcome of a pass. A nil checkErr clears the last
// error.
func (s *ContactStore) MarkChecked(ctx context.Context, phone string, at time.Time, checkErr error) error {
	var lastErr string
	if checkErr != nil {
		lastErr = checkErr.Error()
	}
	_, err := s.store.db.ExecContext(ctx, `
		UPDATE pw_contacts SET last_checked_at = ?, last_error = ?, updated_at = ? WHERE phone = ?
	`, at.UnixMilli(), nullString(lastErr), time.Now().UnixMilli(), phone)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanContact(row scanner) (*Contact, error) {
	var c Contact
	var jid, displayName, username sql.NullString
	var bizName, bizEmail, bizAddress, bizCategories, lastError sql.NullString
	var isBusiness, isOnline int
	var lastSeen, lastChecked sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(
		&c.Phone, &jid, &displayName, &username,
		&isBusiness, &bizName, &bizEmail, &bizAddress, &bizCategories,
		&isOnline, &lastSeen, &lastChecked, &lastError, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.JID = parseNullJID(jid)
	c.DisplayName = displayName.String
	c.Username = username.String
	c.IsBusiness = isBusiness != 0
	c.BusinessName = bizName.String
	c.BusinessEmail = bizEmail.String
	c.BusinessAddress = bizAddress.String
	c.BusinessCategories = jsonUnmarshalStrings(bizCategories)
	c.IsOnline = isOnline != 0
	c.LastSeen = fromNullMillis(lastSeen)
	c.LastCheckedAt = fromNullMillis(lastChecked)
	c.LastError = lastError.String
	c.CreatedAt = fromMillis(createdAt)
	c.UpdatedAt = fromMillis(updatedAt)
	return &c, nil
}
