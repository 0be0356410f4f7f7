package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"profilewatch/internal/profile"
)

// BaselineStore persists baselines, their append-only histories and the
// presence log.
type BaselineStore struct {
	store *Store
}

// NewBaselineStore creates a new BaselineStore.
func NewBaselineStore(s *Store) *BaselineStore {
	return &BaselineStore{store: s}
}

// Get returns the baseline of phone. found is false when no pass ever
// wrote one.
func (s *BaselineStore) Get(ctx context.Context, phone string) (profile.Baseline, bool, error) {
	var b profile.Baseline
	var avatarState, statusState string
	var ref, hash, fullRef, fullHash, status sql.NullString
	var updatedAt int64

	err := s.store.db.QueryRowContext(ctx, `
		SELECT avatar_state, avatar_ref, avatar_hash, avatar_full_ref, avatar_full_hash,
			status_state, status_text, updated_at
		FROM pw_baselines WHERE phone = ?
	`, phone).Scan(&avatarState, &ref, &hash, &fullRef, &fullHash, &statusState, &status, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return profile.Baseline{}, false, nil
	}
	if err != nil {
		return profile.Baseline{}, false, &profile.PersistenceError{Op: "read baseline", Err: err}
	}

	b.Avatar, err = avatarField(avatarState, ref, hash, fullRef, fullHash)
	if err != nil {
		return profile.Baseline{}, false, &profile.PersistenceError{Op: "read baseline", Err: err}
	}
	b.Status, err = textField(statusState, status)
	if err != nil {
		return profile.Baseline{}, false, &profile.PersistenceError{Op: "read baseline", Err: err}
	}
	b.UpdatedAt = fromMillis(updatedAt)
	return b, true, nil
}

// ApplyPass writes every part of upd in one transaction: the new baseline
// values and the history rows. Either all of it lands or none of it does.
func (s *BaselineStore) ApplyPass(ctx context.Context, phone string, upd profile.Update) error {
	if upd.Empty() {
		return nil
	}
	if err := upd.Validate(); err != nil {
		return &profile.PersistenceError{Op: "apply pass", Err: err}
	}

	err := s.store.withTx(ctx, func(tx *sql.Tx) error {
		now := upd.CheckedAt.UnixMilli()
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO pw_baselines (phone, updated_at) VALUES (?, ?)
			ON CONFLICT(phone) DO UPDATE SET updated_at = excluded.updated_at
		`, phone, now); err != nil {
			return fmt.Errorf("failed to upsert baseline: %w", err)
		}

		if w := upd.Avatar; w != nil {
			a := w.Next.Value
			if _, err := tx.ExecContext(ctx, `
				UPDATE pw_baselines SET avatar_state = ?, avatar_ref = ?, avatar_hash = ?,
					avatar_full_ref = ?, avatar_full_hash = ?
				WHERE phone = ?
			`, w.Next.State.String(), nullString(a.Ref), nullString(string(a.Hash)),
				nullString(a.FullRef), nullString(string(a.FullHash)), phone); err != nil {
				return fmt.Errorf("failed to update avatar baseline: %w", err)
			}
			if c := w.Change; c != nil {
				if err := insertAvatarChange(ctx, tx, phone, c); err != nil {
					return err
				}
			}
		}

		if w := upd.Status; w != nil {
			if _, err := tx.ExecContext(ctx, `
				UPDATE pw_baselines SET status_state = ?, status_text = ? WHERE phone = ?
			`, w.Next.State.String(), textValue(w.Next), phone); err != nil {
				return fmt.Errorf("failed to update status baseline: %w", err)
			}
			if c := w.Change; c != nil {
				if err := insertStatusChange(ctx, tx, phone, c); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return &profile.PersistenceError{Op: "apply pass", Err: err}
	}
	return nil
}

func insertAvatarChange(ctx context.Context, tx *sql.Tx, phone string, c *profile.AvatarChange) error {
	if !c.Previous.Recorded() {
		return fmt.Errorf("avatar history needs a recorded previous value")
	}
	prev := c.Previous.Value
	_, err := tx.ExecContext(ctx, `
		INSERT INTO pw_avatar_history (id, phone, seq, prev_state, prev_ref, prev_hash, prev_full_ref, prev_full_hash, replaced_at)
		VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM pw_avatar_history WHERE phone = ?), ?, ?, ?, ?, ?, ?)
	`, c.ID, phone, phone, c.Previous.State.String(), nullString(prev.Ref), nullString(string(prev.Hash)),
		nullString(prev.FullRef), nullString(string(prev.FullHash)), c.ReplacedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to append avatar history: %w", err)
	}
	return nil
}

func insertStatusChange(ctx context.Context, tx *sql.Tx, phone string, c *profile.StatusChange) error {
	if !c.Previous.Recorded() || !c.Current.Recorded() {
		return fmt.Errorf("status history needs recorded values")
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO pw_status_history (id, phone, seq, prev_state, prev_text, cur_state, cur_text, changed_at)
		VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM pw_status_history WHERE phone = ?), ?, ?, ?, ?, ?)
	`, c.ID, phone, phone, c.Previous.State.String(), textValue(c.Previous),
		c.Current.State.String(), textValue(c.Current), c.ChangedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to append status history: %w", err)
	}
	return nil
}

// AvatarHistory returns the replaced avatars of phone in append order.
func (s *BaselineStore) AvatarHistory(ctx context.Context, phone string) ([]profile.AvatarChange, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, prev_state, prev_ref, prev_hash, prev_full_ref, prev_full_hash, replaced_at
		FROM pw_avatar_history WHERE phone = ? ORDER BY seq
	`, phone)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []profile.AvatarChange
	for rows.Next() {
		var c profile.AvatarChange
		var state string
		var ref, hash, fullRef, fullHash sql.NullString
		var at int64
		if err := rows.Scan(&c.ID, &state, &ref, &hash, &fullRef, &fullHash, &at); err != nil {
			return nil, err
		}
		if c.Previous, err = avatarField(state, ref, hash, fullRef, fullHash); err != nil {
			return nil, err
		}
		c.ReplacedAt = fromMillis(at)
		history = append(history, c)
	}
	return history, rows.Err()
}

// StatusHistory returns the status transitions of phone in append order.
func (s *BaselineStore) StatusHistory(ctx context.Context, phone string) ([]profile.StatusChange, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, prev_state, prev_text, cur_state, cur_text, changed_at
		FROM pw_status_history WHERE phone = ? ORDER BY seq
	`, phone)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []profile.StatusChange
	for rows.Next() {
		var c profile.StatusChange
		var prevState, curState string
		var prevText, curText sql.NullString
		var at int64
		if err := rows.Scan(&c.ID, &prevState, &prevText, &curState, &curText, &at); err != nil {
			return nil, err
		}
		if c.Previous, err = textField(prevState, prevText); err != nil {
			return nil, err
		}
		if c.Current, err = textField(curState, curText); err != nil {
			return nil, err
		}
		c.ChangedAt = fromMillis(at)
		history = append(history, c)
	}
	return history, rows.Err()
}

// AppendPresence adds one sample to the presence log of phone.
func (s *BaselineStore) AppendPresence(ctx context.Context, phone string, sample profile.PresenceSample) error {
	if sample.Signal != profile.SignalOnline && sample.Signal != profile.SignalOffline {
		return &profile.PersistenceError{Op: "append presence", Err: fmt.Errorf("unreliable signal %s", sample.Signal)}
	}
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO pw_presence_log (phone, signal, observed_at) VALUES (?, ?, ?)
	`, phone, sample.Signal.String(), sample.At.UnixMilli())
	if err != nil {
		return &profile.PersistenceError{Op: "append presence", Err: err}
	}
	return nil
}

// PresenceLog returns the latest limit samples of phone in observation
// order. A limit of zero or less returns everything.
func (s *BaselineStore) PresenceLog(ctx context.Context, phone string, limit int) ([]profile.PresenceSample, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT signal, observed_at FROM (
			SELECT id, signal, observed_at FROM pw_presence_log WHERE phone = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id
	`, phone, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []profile.PresenceSample
	for rows.Next() {
		var sig string
		var at int64
		if err := rows.Scan(&sig, &at); err != nil {
			return nil, err
		}
		sample := profile.PresenceSample{Signal: profile.SignalOffline, At: fromMillis(at)}
		if sig == "online" {
			sample.Signal = profile.SignalOnline
		}
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

func avatarField(state string, ref, hash, fullRef, fullHash sql.NullString) (profile.Field[profile.Avatar], error) {
	st, err := profile.ParseFieldState(state)
	if err != nil {
		return profile.Field[profile.Avatar]{}, err
	}
	if st != profile.StatePresent {
		return profile.Field[profile.Avatar]{State: st}, nil
	}
	return profile.Present(profile.Avatar{
		Ref:      ref.String,
		Hash:     profile.ContentHash(hash.String),
		FullRef:  fullRef.String,
		FullHash: profile.ContentHash(fullHash.String),
	}), nil
}

func textField(state string, text sql.NullString) (profile.Field[string], error) {
	st, err := profile.ParseFieldState(state)
	if err != nil {
		return profile.Field[string]{}, err
	}
	if st != profile.StatePresent {
		return profile.Field[string]{State: st}, nil
	}
	return profile.Present(text.String), nil
}

// textValue keeps a present empty string distinct from a missing one.
func textValue(f profile.Field[string]) sql.NullString {
	v, ok := f.Get()
	return sql.NullString{String: v, Valid: ok}
}
