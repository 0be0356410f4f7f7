package api

import (
	"time"

	"profilewatch/internal/data/store"
	"profilewatch/internal/profile"
	"profilewatch/internal/service/monitor"
)

type healthView struct {
	Status    string       `json:"status"`
	Connected bool         `json:"connected"`
	Stats     *store.Stats `json:"stats,omitempty"`
}

type contactView struct {
	Phone         string     `json:"phone"`
	JID           string     `json:"jid,omitempty"`
	Name          string     `json:"name"`
	IsBusiness    bool       `json:"is_business"`
	BusinessName  string     `json:"business_name,omitempty"`
	Email         string     `json:"email,omitempty"`
	Address       string     `json:"address,omitempty"`
	Categories    []string   `json:"categories,omitempty"`
	Online        bool       `json:"online"`
	LastSeen      *time.Time `json:"last_seen,omitempty"`
	LastCheckedAt *time.Time `json:"last_checked_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
}

func newContactView(c *store.Contact) contactView {
	v := contactView{
		Phone:         c.Phone,
		Name:          c.Name(),
		IsBusiness:    c.IsBusiness,
		BusinessName:  c.BusinessName,
		Email:         c.BusinessEmail,
		Address:       c.BusinessAddress,
		Categories:    c.BusinessCategories,
		Online:        c.IsOnline,
		LastSeen:      optTime(c.LastSeen),
		LastCheckedAt: optTime(c.LastCheckedAt),
		LastError:     c.LastError,
	}
	if !c.JID.IsEmpty() {
		v.JID = c.JID.String()
	}
	return v
}

type contactDetailView struct {
	contactView
	Baseline *baselineView `json:"baseline,omitempty"`
}

// fieldView renders a Field as {"state": ..., "value": ...}.
type fieldView[T any] struct {
	State string `json:"state"`
	Value *T     `json:"value,omitempty"`
}

func newFieldView[T any](f profile.Field[T]) fieldView[T] {
	v := fieldView[T]{State: f.State.String()}
	if val, ok := f.Get(); ok {
		v.Value = &val
	}
	return v
}

type avatarView struct {
	Ref      string `json:"ref"`
	Hash     string `json:"hash"`
	FullRef  string `json:"full_ref,omitempty"`
	FullHash string `json:"full_hash,omitempty"`
}

func toAvatarField(f profile.Field[profile.Avatar]) fieldView[avatarView] {
	v := fieldView[avatarView]{State: f.State.String()}
	if a, ok := f.Get(); ok {
		v.Value = &avatarView{Ref: a.Ref, Hash: string(a.Hash), FullRef: a.FullRef, FullHash: string(a.FullHash)}
	}
	return v
}

type baselineView struct {
	Avatar    fieldView[avatarView] `json:"avatar"`
	Status    fieldView[string]     `json:"status"`
	UpdatedAt time.Time             `json:"updated_at"`
}

func newBaselineView(b profile.Baseline) baselineView {
	return baselineView{
		Avatar:    toAvatarField(b.Avatar),
		Status:    newFieldView(b.Status),
		UpdatedAt: b.UpdatedAt,
	}
}

type avatarChangeView struct {
	ID         string                `json:"id"`
	Previous   fieldView[avatarView] `json:"previous"`
	ReplacedAt time.Time             `json:"replaced_at"`
}

func newAvatarChangeView(c profile.AvatarChange) avatarChangeView {
	return avatarChangeView{ID: c.ID, Previous: toAvatarField(c.Previous), ReplacedAt: c.ReplacedAt}
}

type statusChangeView struct {
	ID        string            `json:"id"`
	Previous  fieldView[string] `json:"previous"`
	Current   fieldView[string] `json:"current"`
	ChangedAt time.Time         `json:"changed_at"`
}

func newStatusChangeView(c profile.StatusChange) statusChangeView {
	return statusChangeView{
		ID:        c.ID,
		Previous:  newFieldView(c.Previous),
		Current:   newFieldView(c.Current),
		ChangedAt: c.ChangedAt,
	}
}

type presenceView struct {
	Signal string    `json:"signal"`
	At     time.Time `json:"at"`
}

type changeView struct {
	Kind     string    `json:"kind"`
	Previous string    `json:"previous,omitempty"`
	Current  string    `json:"current,omitempty"`
	At       time.Time `json:"at"`
}

type checkView struct {
	Phone     string       `json:"phone"`
	Avatar    string       `json:"avatar"`
	Status    string       `json:"status"`
	Changes   []changeView `json:"changes"`
	CheckedAt time.Time    `json:"checked_at"`
}

func newCheckView(r *monitor.Result) checkView {
	v := checkView{
		Phone:     r.ContactID,
		Avatar:    r.Avatar.String(),
		Status:    r.Status.String(),
		Changes:   make([]changeView, 0, len(r.Events)),
		CheckedAt: r.CheckedAt,
	}
	for _, e := range r.Events {
		v.Changes = append(v.Changes, changeView{Kind: string(e.Kind), Previous: e.Previous, Current: e.Current, At: e.At})
	}
	return v
}

func optTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
