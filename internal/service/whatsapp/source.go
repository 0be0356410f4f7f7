// Package whatsapp reads contact profiles and presence from a whatsmeow
// client.
package whatsapp

import (
	"context"
	"errors"
	"fmt"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"

	"profilewatch/internal/profile"
)

// ProfileClient is the part of *whatsmeow.Client used to build snapshots.
type ProfileClient interface {
	GetUserInfo(ctx context.Context, jids []types.JID) (map[types.JID]types.UserInfo, error)
	GetProfilePictureInfo(ctx context.Context, jid types.JID, params *whatsmeow.GetProfilePictureParams) (*types.ProfilePictureInfo, error)
	GetBusinessProfile(ctx context.Context, jid types.JID) (*types.BusinessProfile, error)
}

// Source builds profile snapshots.
type Source struct {
	client ProfileClient
	log    waLog.Logger
}

// NewSource creates a Source.
func NewSource(client ProfileClient, log waLog.Logger) *Source {
	return &Source{client: client, log: log.Sub("Source")}
}

// Snapshot fetches what the contact currently shows: status text, preview
// and full avatar URLs, and business details for business accounts.
func (s *Source) Snapshot(ctx context.Context, who types.JID) (profile.Snapshot, error) {
	infos, err := s.client.GetUserInfo(ctx, []types.JID{who})
	if err != nil {
		return nil, &profile.NetworkError{Err: fmt.Errorf("failed to get user info for %s: %w", who, err)}
	}
	info, ok := infos[who]
	if !ok && len(infos) == 1 {
		// The server may answer under the contact's LID.
		for _, only := range infos {
			info, ok = only, true
		}
	}
	if !ok {
		return nil, &profile.NetworkError{Err: fmt.Errorf("no user info returned for %s", who)}
	}

	small, err := s.pictureURL(ctx, who, true)
	if err != nil {
		return nil, err
	}
	big, err := s.pictureURL(ctx, who, false)
	if err != nil {
		return nil, err
	}

	about := profile.NonEmpty(info.Status)
	avatar := profile.AvatarURLs{Small: small, Big: big}

	if info.VerifiedName == nil {
		return profile.Personal{About: about, Avatar: avatar}, nil
	}

	biz := profile.Business{About: about, Avatar: avatar}
	if info.VerifiedName.Details != nil {
		biz.Name = profile.NonEmpty(info.VerifiedName.Details.GetVerifiedName())
	}
	bp, err := s.client.GetBusinessProfile(ctx, who)
	if err != nil {
		// Business details are informational; the pass can go on without them.
		s.log.Warnf("Failed to get business profile for %s: %v", who, err)
		return biz, nil
	}
	if bp != nil {
		biz.Email = profile.NonEmpty(bp.Email)
		biz.Address = profile.NonEmpty(bp.Address)
		for _, c := range bp.Categories {
			if c.Name != "" {
				biz.Categories = append(biz.Categories, c.Name)
			}
		}
	}
	return biz, nil
}

// pictureURL returns the preview or full avatar URL. A picture that is not
// set or hidden from us is reported as absent.
func (s *Source) pictureURL(ctx context.Context, who types.JID, preview bool) (profile.Optional[string], error) {
	pic, err := s.client.GetProfilePictureInfo(ctx, who, &whatsmeow.GetProfilePictureParams{Preview: preview})
	switch {
	case errors.Is(err, whatsmeow.ErrProfilePictureNotSet):
		return profile.None[string](), nil
	case errors.Is(err, whatsmeow.ErrProfilePictureUnauthorized):
		s.log.Debugf("Profile picture of %s is hidden", who)
		return profile.None[string](), nil
	case err != nil:
		return profile.None[string](), &profile.NetworkError{Err: fmt.Errorf("failed to get profile picture for %s: %w", who, err)}
	case pic == nil:
		return profile.None[string](), nil
	}
	return profile.NonEmpty(pic.URL), nil
}

// ResolveClient is the part of *whatsmeow.Client used to look up numbers.
type ResolveClient interface {
	IsOnWhatsApp(ctx context.Context, phones []string) ([]types.IsOnWhatsAppResponse, error)
}

// ErrNotOnWhatsApp is returned for numbers without an account.
var ErrNotOnWhatsApp = errors.New("number is not on WhatsApp")

// Resolve checks that phone has an account and returns its JID.
func Resolve(ctx context.Context, client ResolveClient, phone string) (types.JID, error) {
	resp, err := client.IsOnWhatsApp(ctx, []string{"+" + phone})
	if err != nil {
		return types.EmptyJID, fmt.Errorf("failed to resolve %s: %w", phone, err)
	}
	for _, r := range resp {
		if r.IsIn {
			return r.JID.ToNonAD(), nil
		}
	}
	return types.EmptyJID, fmt.Errorf("%w: %s", ErrNotOnWhatsApp, phone)
}
