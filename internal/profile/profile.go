// Package profile defines the contact profile model shared by the change
// detector, the presence sampler and the baseline store.
//
// A Snapshot is what one pass observed. A Baseline is what was persisted the
// last time something changed. Baseline fields use Field so that "the contact
// has no avatar" and "we never looked" stay distinct.
package profile

import (
	"fmt"
	"time"
)

// ContentHash is the hex SHA-256 digest of an image.
type ContentHash string

// AvatarURLs holds the picture URLs seen for a contact in one pass.
type AvatarURLs struct {
	Small Optional[string] // preview image, used for comparison
	Big   Optional[string] // full-resolution image
}

// Compare returns the URL whose image is recorded as Avatar.Hash.
func (u AvatarURLs) Compare() Optional[string] {
	if u.Small.IsPresent() {
		return u.Small
	}
	return u.Big
}

// HasAvatar reports whether the contact currently shows any picture.
func (u AvatarURLs) HasAvatar() bool {
	return u.Small.IsPresent() || u.Big.IsPresent()
}

// Snapshot is the result of one scrape pass for one contact.
// It is either Personal or Business.
type Snapshot interface {
	StatusText() Optional[string]
	Pictures() AvatarURLs
	IsBusiness() bool

	snapshot()
}

// Personal is a snapshot of a regular account.
type Personal struct {
	About  Optional[string]
	Avatar AvatarURLs
}

func (p Personal) StatusText() Optional[string] { return p.About }
func (p Personal) Pictures() AvatarURLs          { return p.Avatar }
func (p Personal) IsBusiness() bool              { return false }
func (Personal) snapshot()                       {}

// Business is a snapshot of a business account.
type Business struct {
	About      Optional[string]
	Avatar     AvatarURLs
	Name       Optional[string] // verified business name
	Email      Optional[string]
	Address    Optional[string]
	Categories []string
}

func (b Business) StatusText() Optional[string] { return b.About }
func (b Business) Pictures() AvatarURLs          { return b.Avatar }
func (b Business) IsBusiness() bool              { return true }
func (Business) snapshot()                       {}

// Avatar is a stored profile picture. Hash is always the digest of the file
// at Ref. FullRef and FullHash are empty when no full-resolution image was
// available.
type Avatar struct {
	Ref      string
	Hash     ContentHash
	FullRef  string
	FullHash ContentHash
}

// Baseline is the last persisted state of a contact's profile. The zero
// Baseline is the baseline of a contact that was never checked.
type Baseline struct {
	Avatar    Field[Avatar]
	Status    Field[string]
	UpdatedAt time.Time
}

// AvatarChange records a baseline avatar that was replaced.
type AvatarChange struct {
	ID         string
	Previous   Field[Avatar]
	ReplacedAt time.Time
}

// StatusChange records a status text transition.
type StatusChange struct {
	ID        string
	Previous  Field[string]
	Current   Field[string]
	ChangedAt time.Time
}

// AvatarWrite is the avatar part of a baseline update.
type AvatarWrite struct {
	Next   Field[Avatar]
	Change *AvatarChange // nil when the baseline is first recorded
}

// StatusWrite is the status part of a baseline update.
type StatusWrite struct {
	Next   Field[string]
	Change *StatusChange
}

// Update is everything one pass writes to a baseline. Nil parts are left
// untouched. An Update is applied atomically.
type Update struct {
	Avatar    *AvatarWrite
	Status    *StatusWrite
	CheckedAt time.Time
}

// Empty reports whether the update writes nothing.
func (u Update) Empty() bool {
	return u.Avatar == nil && u.Status == nil
}

// Validate checks the avatar invariant before anything is written.
func (u Update) Validate() error {
	if u.Avatar == nil {
		return nil
	}
	if a, ok := u.Avatar.Next.Get(); ok {
		if a.Ref == "" || a.Hash == "" {
			return fmt.Errorf("present avatar needs both ref and hash")
		}
		if (a.FullRef == "") != (a.FullHash == "") {
			return fmt.Errorf("full avatar needs both ref and hash")
		}
	}
	return nil
}

// Signal is an instantaneous presence reading.
type Signal uint8

const (
	SignalUnknown Signal = iota
	SignalOnline
	SignalOffline
)

func (s Signal) String() string {
	switch s {
	case SignalOnline:
		return "online"
	case SignalOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// PresenceSample is one reliable presence reading.
type PresenceSample struct {
	Signal Signal
	At     time.Time
}

// ChangeKind names a detected profile transition.
type ChangeKind string

const (
	AvatarAdded   ChangeKind = "avatar_added"
	AvatarChanged ChangeKind = "avatar_changed"
	AvatarRemoved ChangeKind = "avatar_removed"
	StatusSet     ChangeKind = "status_set"
	StatusChanged ChangeKind = "status_changed"
	StatusCleared ChangeKind = "status_cleared"
)

// ChangeEvent is emitted after a changed baseline has been persisted.
type ChangeEvent struct {
	ContactID string
	Name      string
	Kind      ChangeKind
	Previous  string // old hash or text
	Current   string // new hash or text
	At        time.Time
}
