// Package media stores downloaded avatar images on the local filesystem.
//
// Files live under {root}/media/{jid}/profile/ and are referenced from the
// baseline by their path relative to root. A file is only ever written for a
// new picture, so a ref never changes content once stored.
package media

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"

	"profilewatch/internal/service/fingerprint"
	"profilewatch/internal/utils/jid"
)

// Variant distinguishes the compared preview from the full-size image.
type Variant string

const (
	VariantSmall Variant = "small"
	VariantFull  Variant = "full"
)

// AvatarFiles writes and removes avatar files below a root directory.
type AvatarFiles struct {
	root string
	log  waLog.Logger
}

// NewAvatarFiles creates an AvatarFiles rooted at storePath.
func NewAvatarFiles(storePath string, log waLog.Logger) *AvatarFiles {
	return &AvatarFiles{root: storePath, log: log.Sub("Media")}
}

// Save writes img and returns its ref.
func (f *AvatarFiles) Save(owner types.JID, img *fingerprint.Image, variant Variant) (string, error) {
	if img == nil {
		return "", errors.New("no image to save")
	}
	ref := filepath.ToSlash(filepath.Join(
		"media",
		jid.Sanitize(owner),
		"profile",
		fmt.Sprintf("%s-%s%s", variant, uuid.NewString(), getExtension(img.ContentType)),
	))
	path := f.Path(ref)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}

	// Write to a temp file first so a crash never leaves a truncated avatar
	// behind a committed ref.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, img.Bytes, 0644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("rename file: %w", err)
	}

	f.log.Debugf("Saved %s avatar for %s: %s (%d bytes)", variant, owner, ref, len(img.Bytes))
	return ref, nil
}

// Remove deletes the files behind refs. Empty refs and missing files are
// ignored.
func (f *AvatarFiles) Remove(refs ...string) error {
	var errs []error
	for _, ref := range refs {
		if ref == "" {
			continue
		}
		if err := os.Remove(f.Path(ref)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Path resolves ref to an absolute path below the root. Refs that try to
// escape the root resolve to a path inside it.
func (f *AvatarFiles) Path(ref string) string {
	clean := filepath.Clean("/" + filepath.FromSlash(ref))
	return filepath.Join(f.root, strings.TrimPrefix(clean, string(filepath.Separator)))
}

// getExtension maps an image content type to a file extension.
func getExtension(contentType string) string {
	switch strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]) {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".jpg"
	}
}
