// Package export renders tracked contacts as vCards.
package export

import (
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/emersion/go-vcard"
	waLog "go.mau.fi/whatsmeow/util/log"

	"profilewatch/internal/data/store"
	"profilewatch/internal/profile"
)

// Entry is one contact with its current baseline.
type Entry struct {
	Contact  *store.Contact
	Baseline profile.Baseline
}

// PhotoLoader reads a stored avatar by ref. It may be nil to skip photos.
type PhotoLoader func(ref string) ([]byte, error)

// Card builds a vCard 4.0 for e.
func Card(e Entry, load PhotoLoader) (vcard.Card, error) {
	c := e.Contact
	card := make(vcard.Card)
	card.SetValue(vcard.FieldVersion, "4.0")
	card.SetValue(vcard.FieldFormattedName, c.Name())

	tel := vcard.Field{Value: "+" + c.Phone, Params: make(vcard.Params)}
	tel.Params.Set(vcard.ParamType, "cell")
	card.Add(vcard.FieldTelephone, &tel)

	if !c.JID.IsEmpty() {
		card.SetValue("X-WHATSAPP-JID", c.JID.String())
	}
	if c.IsBusiness {
		if c.BusinessName != "" {
			card.SetValue(vcard.FieldOrganization, c.BusinessName)
		}
		if c.BusinessEmail != "" {
			email := vcard.Field{Value: c.BusinessEmail, Params: make(vcard.Params)}
			email.Params.Set(vcard.ParamType, "work")
			card.Add(vcard.FieldEmail, &email)
		}
		if c.BusinessAddress != "" {
			// The business profile only has a free-form address.
			adr := vcard.Field{
				Value:  strings.Join([]string{"", "", c.BusinessAddress, "", "", "", ""}, ";"),
				Params: make(vcard.Params),
			}
			adr.Params.Set("LABEL", c.BusinessAddress)
			adr.Params.Set(vcard.ParamType, "work")
			card.Add(vcard.FieldAddress, &adr)
		}
		if len(c.BusinessCategories) > 0 {
			card.SetValue(vcard.FieldCategories, strings.Join(c.BusinessCategories, ","))
		}
	}
	if status, ok := e.Baseline.Status.Get(); ok {
		card.SetValue(vcard.FieldNote, status)
	}
	if !e.Baseline.UpdatedAt.IsZero() {
		card.SetValue(vcard.FieldRevision, e.Baseline.UpdatedAt.UTC().Format("20060102T150405Z"))
	}

	if avatar, ok := e.Baseline.Avatar.Get(); ok && load != nil {
		ref := avatar.FullRef
		if ref == "" {
			ref = avatar.Ref
		}
		data, err := load(ref)
		if err != nil {
			return card, fmt.Errorf("failed to load avatar %s: %w", ref, err)
		}
		card.SetValue(vcard.FieldPhoto, fmt.Sprintf("data:%s;base64,%s",
			http.DetectContentType(data), base64.StdEncoding.EncodeToString(data)))
	}
	return card, nil
}

// Write encodes one card per entry. A missing avatar file only drops the
// photo of that card.
func Write(w io.Writer, entries []Entry, load PhotoLoader, log waLog.Logger) error {
	enc := vcard.NewEncoder(w)
	for _, e := range entries {
		card, err := Card(e, load)
		if err != nil {
			log.Warnf("Exporting %s without photo: %v", e.Contact.Phone, err)
		}
		if err := enc.Encode(card); err != nil {
			return fmt.Errorf("failed to encode vCard for %s: %w", e.Contact.Phone, err)
		}
	}
	return nil
}
