// Package detect compares a fresh contact snapshot against the stored
// baseline and computes the baseline update for one pass.
//
// The detector never writes anything. A fetch failure aborts the check
// before any update is computed, so a caller that persists only the returned
// updates can never leave a half-written baseline behind.
package detect

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	waLog "go.mau.fi/whatsmeow/util/log"

	"profilewatch/internal/profile"
	"profilewatch/internal/service/fingerprint"
)

// Outcome is the result of checking one field.
type Outcome uint8

const (
	// OutcomeNoBaseline means the field was never recorded; the fresh value
	// becomes the baseline.
	OutcomeNoBaseline Outcome = iota
	// OutcomeUnchanged means the fresh value matches the baseline.
	OutcomeUnchanged
	// OutcomeChanged means the baseline is replaced and history gains an entry.
	OutcomeChanged
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoBaseline:
		return "no_baseline"
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeChanged:
		return "changed"
	default:
		return fmt.Sprintf("Outcome(%d)", uint8(o))
	}
}

// ImageFetcher downloads and hashes one image.
type ImageFetcher interface {
	FetchAndHash(ctx context.Context, url profile.Optional[string]) (*fingerprint.Image, error)
}

// AvatarUpdate is the computed avatar write. Small and Full hold the
// downloaded images that still need to be stored; Bind fills in their refs.
type AvatarUpdate struct {
	Write profile.AvatarWrite
	Kind  profile.ChangeKind // empty for a first recording
	Small *fingerprint.Image
	Full  *fingerprint.Image
}

// Bind records where the caller stored the downloaded images.
func (u *AvatarUpdate) Bind(smallRef, fullRef string) {
	a, ok := u.Write.Next.Get()
	if !ok {
		return
	}
	a.Ref = smallRef
	if u.Full != nil {
		a.FullRef = fullRef
	}
	u.Write.Next = profile.Present(a)
}

// StatusUpdate is the computed status write.
type StatusUpdate struct {
	Write profile.StatusWrite
	Kind  profile.ChangeKind
}

// Detector decides whether a contact's avatar or status changed.
type Detector struct {
	images ImageFetcher
	log    waLog.Logger
	newID  func() string
}

// New creates a Detector.
func New(images ImageFetcher, log waLog.Logger) *Detector {
	return &Detector{
		images: images,
		log:    log.Sub("Detect"),
		newID:  uuid.NewString,
	}
}

// CheckAvatar compares the snapshot's avatar against the baseline avatar.
// A nil update means nothing must be written.
func (d *Detector) CheckAvatar(ctx context.Context, baseline profile.Field[profile.Avatar], snap profile.Snapshot, now time.Time) (Outcome, *AvatarUpdate, error) {
	urls := snap.Pictures()

	switch baseline.State {
	case profile.StateUnrecorded:
		if !urls.HasAvatar() {
			d.log.Debugf("No avatar baseline, contact has no picture")
			return OutcomeNoBaseline, &AvatarUpdate{
				Write: profile.AvatarWrite{Next: profile.Absent[profile.Avatar]()},
			}, nil
		}
		small, err := d.images.FetchAndHash(ctx, urls.Compare())
		if err != nil {
			return 0, nil, fmt.Errorf("failed to fetch avatar: %w", err)
		}
		full, err := d.fetchFull(ctx, urls)
		if err != nil {
			return 0, nil, err
		}
		d.log.Debugf("No avatar baseline, recording %s", small.Hash)
		return OutcomeNoBaseline, newAvatarUpdate(small, full, nil, ""), nil

	case profile.StateAbsent:
		if !urls.HasAvatar() {
			return OutcomeUnchanged, nil, nil
		}
		small, err := d.images.FetchAndHash(ctx, urls.Compare())
		if err != nil {
			return 0, nil, fmt.Errorf("failed to fetch avatar: %w", err)
		}
		full, err := d.fetchFull(ctx, urls)
		if err != nil {
			return 0, nil, err
		}
		d.log.Infof("Avatar added: %s", small.Hash)
		change := d.avatarChange(baseline, now)
		return OutcomeChanged, newAvatarUpdate(small, full, change, profile.AvatarAdded), nil

	case profile.StatePresent:
		old := baseline.Value
		if !urls.HasAvatar() {
			d.log.Infof("Avatar removed, was %s", old.Hash)
			return OutcomeChanged, &AvatarUpdate{
				Write: profile.AvatarWrite{
					Next:   profile.Absent[profile.Avatar](),
					Change: d.avatarChange(baseline, now),
				},
				Kind: profile.AvatarRemoved,
			}, nil
		}
		same, small, full, err := d.sameAvatar(ctx, old, urls)
		if err != nil {
			return 0, nil, err
		}
		if same {
			return OutcomeUnchanged, nil, nil
		}
		if small == nil {
			small, full = full, nil
		}
		d.log.Infof("Avatar changed: %s -> %s", old.Hash, small.Hash)
		change := d.avatarChange(baseline, now)
		return OutcomeChanged, newAvatarUpdate(small, full, change, profile.AvatarChanged), nil

	default:
		return 0, nil, fmt.Errorf("invalid avatar baseline state %v", baseline.State)
	}
}

// sameAvatar compares each available picture with the stored hash of the
// same size. The preview is checked against Hash; the full image against
// FullHash, or Hash when the baseline was recorded from the full image only.
// The full image is fetched only when the preview does not match. On a
// mismatch the fetched images are returned for the update.
func (d *Detector) sameAvatar(ctx context.Context, old profile.Avatar, urls profile.AvatarURLs) (bool, *fingerprint.Image, *fingerprint.Image, error) {
	var small, full *fingerprint.Image
	if urls.Small.IsPresent() {
		img, err := d.images.FetchAndHash(ctx, urls.Small)
		if err != nil {
			return false, nil, nil, fmt.Errorf("failed to fetch avatar: %w", err)
		}
		if img.Hash == old.Hash {
			return true, nil, nil, nil
		}
		small = img
	}
	if urls.Big.IsPresent() {
		img, err := d.images.FetchAndHash(ctx, urls.Big)
		if err != nil {
			return false, nil, nil, fmt.Errorf("failed to fetch full avatar: %w", err)
		}
		want := old.FullHash
		if want == "" {
			want = old.Hash
		}
		if img.Hash == want {
			return true, nil, nil, nil
		}
		full = img
	}
	return false, small, full, nil
}

// fetchFull downloads the full-resolution image when it is a different URL
// from the one used for comparison.
func (d *Detector) fetchFull(ctx context.Context, urls profile.AvatarURLs) (*fingerprint.Image, error) {
	if !urls.Small.IsPresent() || !urls.Big.IsPresent() {
		return nil, nil
	}
	full, err := d.images.FetchAndHash(ctx, urls.Big)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch full avatar: %w", err)
	}
	return full, nil
}

func (d *Detector) avatarChange(prev profile.Field[profile.Avatar], now time.Time) *profile.AvatarChange {
	return &profile.AvatarChange{ID: d.newID(), Previous: prev, ReplacedAt: now}
}

func newAvatarUpdate(small, full *fingerprint.Image, change *profile.AvatarChange, kind profile.ChangeKind) *AvatarUpdate {
	a := profile.Avatar{Hash: small.Hash}
	if full != nil {
		a.FullHash = full.Hash
	}
	return &AvatarUpdate{
		Write: profile.AvatarWrite{Next: profile.Present(a), Change: change},
		Kind:  kind,
		Small: small,
		Full:  full,
	}
}

// CheckStatus compares the snapshot's status text against the baseline.
func (d *Detector) CheckStatus(baseline profile.Field[string], snap profile.Snapshot, now time.Time) (Outcome, *StatusUpdate) {
	fresh := profile.FieldOf(snap.StatusText())

	if !baseline.Recorded() {
		return OutcomeNoBaseline, &StatusUpdate{Write: profile.StatusWrite{Next: fresh}}
	}
	if baseline.State == fresh.State && baseline.Value == fresh.Value {
		return OutcomeUnchanged, nil
	}

	kind := profile.StatusChanged
	switch {
	case baseline.State == profile.StateAbsent:
		kind = profile.StatusSet
	case fresh.State == profile.StateAbsent:
		kind = profile.StatusCleared
	}
	d.log.Infof("Status %s: %q -> %q", kind, baseline.Value, fresh.Value)

	return OutcomeChanged, &StatusUpdate{
		Write: profile.StatusWrite{
			Next: fresh,
			Change: &profile.StatusChange{
				ID:        d.newID(),
				Previous:  baseline,
				Current:   fresh,
				ChangedAt: now,
			},
		},
		Kind: kind,
	}
}
