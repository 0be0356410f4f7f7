package export

import (
	"bytes"
	"encoding/base64"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-vcard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"

	"profilewatch/internal/data/store"
	"profilewatch/internal/profile"
)

var jpeg = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0x10, 'J', 'F', 'I', 'F'}

func decodeAll(t *testing.T, r io.Reader) []vcard.Card {
	t.Helper()
	dec := vcard.NewDecoder(r)
	var cards []vcard.Card
	for {
		card, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			return cards
		}
		require.NoError(t, err)
		cards = append(cards, card)
	}
}

func TestCardPersonal(t *testing.T) {
	card, err := Card(Entry{
		Contact: &store.Contact{
			Phone:       "15550001111",
			JID:         types.NewJID("15550001111", types.DefaultUserServer),
			DisplayName: "Alice",
		},
		Baseline: profile.Baseline{
			Avatar:    profile.Present(profile.Avatar{Ref: "small.jpg", Hash: "aa", FullRef: "full.jpg", FullHash: "bb"}),
			Status:    profile.Present("at the gym"),
			UpdatedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		},
	}, func(ref string) ([]byte, error) {
		assert.Equal(t, "full.jpg", ref)
		return jpeg, nil
	})
	require.NoError(t, err)

	assert.Equal(t, "Alice", card.Value(vcard.FieldFormattedName))
	assert.Equal(t, "+15550001111", card.Value(vcard.FieldTelephone))
	assert.Equal(t, "at the gym", card.Value(vcard.FieldNote))
	assert.Equal(t, "20240301T120000Z", card.Value(vcard.FieldRevision))
	assert.Equal(t, "15550001111@s.whatsapp.net", card.Value("X-WHATSAPP-JID"))
	assert.Equal(t, "data:image/jpeg;base64,"+base64.StdEncoding.EncodeToString(jpeg), card.Value(vcard.FieldPhoto))
	assert.Empty(t, card.Value(vcard.FieldOrganization))
}

func TestCardBusiness(t *testing.T) {
	card, err := Card(Entry{
		Contact: &store.Contact{
			Phone:              "15550002222",
			IsBusiness:         true,
			BusinessName:       "Corner Shop",
			BusinessEmail:      "hi@shop.example",
			BusinessAddress:    "1 Main St",
			BusinessCategories: []string{"Grocery", "Bakery"},
		},
		Baseline: profile.Baseline{Status: profile.Absent[string]()},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "Corner Shop", card.Value(vcard.FieldFormattedName))
	assert.Equal(t, "Corner Shop", card.Value(vcard.FieldOrganization))
	assert.Equal(t, "hi@shop.example", card.Value(vcard.FieldEmail))
	assert.Equal(t, "Grocery,Bakery", card.Value(vcard.FieldCategories))
	assert.Equal(t, "1 Main St", card.Get(vcard.FieldAddress).Params.Get("LABEL"))
	assert.Empty(t, card.Value(vcard.FieldNote))
	assert.Empty(t, card.Value(vcard.FieldPhoto))
}

func TestWriteSkipsMissingPhoto(t *testing.T) {
	entries := []Entry{
		{Contact: &store.Contact{Phone: "15550001111", DisplayName: "Alice"},
			Baseline: profile.Baseline{Avatar: profile.Present(profile.Avatar{Ref: "gone.jpg", Hash: "aa"})}},
		{Contact: &store.Contact{Phone: "15550002222"}},
	}
	var buf bytes.Buffer
	err := Write(&buf, entries, func(string) ([]byte, error) { return nil, errors.New("missing") }, waLog.Noop)
	require.NoError(t, err)

	cards := decodeAll(t, strings.NewReader(buf.String()))
	require.Len(t, cards, 2)
	assert.Equal(t, "Alice", cards[0].Value(vcard.FieldFormattedName))
	assert.Empty(t, cards[0].Value(vcard.FieldPhoto))
	assert.Equal(t, "15550002222", cards[1].Value(vcard.FieldFormattedName))
}
