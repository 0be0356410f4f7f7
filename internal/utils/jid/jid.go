package jid

import (
	"fmt"
	"strings"

	"go.mau.fi/whatsmeow/types"
)

// NormalizePhone strips everything but digits. It fails when nothing that
// looks like a phone number is left.
func NormalizePhone(phone string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
	if len(cleaned) < 5 || len(cleaned) > 15 {
		return "", fmt.Errorf("invalid phone number %q", phone)
	}
	return cleaned, nil
}

// FromPhone creates a user JID from a phone number.
func FromPhone(phone string) (types.JID, error) {
	cleaned, err := NormalizePhone(phone)
	if err != nil {
		return types.EmptyJID, err
	}
	return types.NewJID(cleaned, types.DefaultUserServer), nil
}

// Parse accepts either a full JID or a bare phone number.
func Parse(s string) (types.JID, error) {
	if strings.ContainsRune(s, '@') {
		return types.ParseJID(s)
	}
	return FromPhone(s)
}

// IsPN returns true if this JID is a PN (phone number).
func IsPN(jid types.JID) bool {
	return jid.Server == types.DefaultUserServer && jid.User != ""
}

// ToUserJID strips device info and returns the base user JID.
func ToUserJID(jid types.JID) types.JID {
	return types.JID{
		User:   jid.User,
		Server: jid.Server,
	}
}

// Sanitize turns a JID into something safe to use as a directory name.
func Sanitize(jid types.JID) string {
	return strings.NewReplacer("@", "_", ":", "_", "/", "_").Replace(ToUserJID(jid).String())
}
