package detect

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	waLog "go.mau.fi/whatsmeow/util/log"

	"profilewatch/internal/profile"
	"profilewatch/internal/service/fingerprint"
)

type fakeImages struct {
	bodies map[string]string
	errs   map[string]error
	calls  []string
}

func (f *fakeImages) FetchAndHash(_ context.Context, url profile.Optional[string]) (*fingerprint.Image, error) {
	u, ok := url.Get()
	if !ok {
		return nil, &profile.NetworkError{Err: profile.ErrNoURL}
	}
	f.calls = append(f.calls, u)
	if err := f.errs[u]; err != nil {
		return nil, &profile.NetworkError{URL: u, Err: err}
	}
	b := []byte(f.bodies[u])
	return &fingerprint.Image{Bytes: b, Hash: fingerprint.ComputeHash(b)}, nil
}

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newDetector(images ImageFetcher) *Detector {
	d := New(images, waLog.Noop)
	d.newID = func() string { return "change-1" }
	return d
}

func personal(small, big string, about profile.Optional[string]) profile.Personal {
	return profile.Personal{
		About:  about,
		Avatar: profile.AvatarURLs{Small: profile.NonEmpty(small), Big: profile.NonEmpty(big)},
	}
}

func presentAvatar(body string) profile.Field[profile.Avatar] {
	return profile.Present(profile.Avatar{Ref: "media/old.jpg", Hash: fingerprint.ComputeHash([]byte(body))})
}

func TestCheckAvatarNoBaselineRecordsPresent(t *testing.T) {
	images := &fakeImages{bodies: map[string]string{"s": "IMG-A", "b": "IMG-A-FULL"}}
	d := newDetector(images)

	out, upd, err := d.CheckAvatar(context.Background(), profile.Unrecorded[profile.Avatar](), personal("s", "b", profile.None[string]()), now)
	require.NoError(t, err)
	require.NotNil(t, upd)

	assert.Equal(t, OutcomeNoBaseline, out)
	assert.Nil(t, upd.Write.Change)
	a, ok := upd.Write.Next.Get()
	require.True(t, ok)
	assert.Equal(t, fingerprint.ComputeHash([]byte("IMG-A")), a.Hash)
	assert.Equal(t, fingerprint.ComputeHash([]byte("IMG-A-FULL")), a.FullHash)
	assert.Equal(t, []string{"s", "b"}, images.calls)

	upd.Bind("media/small.jpg", "media/full.jpg")
	a, _ = upd.Write.Next.Get()
	assert.Equal(t, "media/small.jpg", a.Ref)
	assert.Equal(t, "media/full.jpg", a.FullRef)
}

func TestCheckAvatarNoBaselineRecordsAbsent(t *testing.T) {
	images := &fakeImages{}
	d := newDetector(images)

	out, upd, err := d.CheckAvatar(context.Background(), profile.Unrecorded[profile.Avatar](), personal("", "", profile.None[string]()), now)
	require.NoError(t, err)

	assert.Equal(t, OutcomeNoBaseline, out)
	assert.Equal(t, profile.StateAbsent, upd.Write.Next.State)
	assert.Empty(t, images.calls)
}

func TestCheckAvatarUnchangedFetchesOnlySmall(t *testing.T) {
	images := &fakeImages{bodies: map[string]string{"s": "IMG-A", "b": "IMG-A-FULL"}}
	d := newDetector(images)

	out, upd, err := d.CheckAvatar(context.Background(), presentAvatar("IMG-A"), personal("s", "b", profile.None[string]()), now)
	require.NoError(t, err)

	assert.Equal(t, OutcomeUnchanged, out)
	assert.Nil(t, upd)
	assert.Equal(t, []string{"s"}, images.calls)
}

func TestCheckAvatarChangedRecordsHistory(t *testing.T) {
	images := &fakeImages{bodies: map[string]string{"s": "IMG-B", "b": "IMG-B-FULL"}}
	d := newDetector(images)
	old := presentAvatar("IMG-A")

	out, upd, err := d.CheckAvatar(context.Background(), old, personal("s", "b", profile.None[string]()), now)
	require.NoError(t, err)

	assert.Equal(t, OutcomeChanged, out)
	assert.Equal(t, profile.AvatarChanged, upd.Kind)
	require.NotNil(t, upd.Write.Change)
	assert.Equal(t, old, upd.Write.Change.Previous)
	assert.Equal(t, now, upd.Write.Change.ReplacedAt)
	a, _ := upd.Write.Next.Get()
	assert.Equal(t, fingerprint.ComputeHash([]byte("IMG-B")), a.Hash)
	assert.NotNil(t, upd.Full)
}

func TestCheckAvatarRemoved(t *testing.T) {
	images := &fakeImages{}
	d := newDetector(images)
	old := presentAvatar("IMG-A")

	out, upd, err := d.CheckAvatar(context.Background(), old, personal("", "", profile.None[string]()), now)
	require.NoError(t, err)

	assert.Equal(t, OutcomeChanged, out)
	assert.Equal(t, profile.AvatarRemoved, upd.Kind)
	assert.Equal(t, profile.StateAbsent, upd.Write.Next.State)
	assert.Equal(t, old, upd.Write.Change.Previous)
	assert.Empty(t, images.calls)
}

func TestCheckAvatarAbsentStaysAbsent(t *testing.T) {
	d := newDetector(&fakeImages{})

	out, upd, err := d.CheckAvatar(context.Background(), profile.Absent[profile.Avatar](), personal("", "", profile.None[string]()), now)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, out)
	assert.Nil(t, upd)
}

func TestCheckAvatarAdded(t *testing.T) {
	images := &fakeImages{bodies: map[string]string{"s": "IMG-A"}}
	d := newDetector(images)

	out, upd, err := d.CheckAvatar(context.Background(), profile.Absent[profile.Avatar](), personal("s", "", profile.None[string]()), now)
	require.NoError(t, err)

	assert.Equal(t, OutcomeChanged, out)
	assert.Equal(t, profile.AvatarAdded, upd.Kind)
	assert.Equal(t, profile.StateAbsent, upd.Write.Change.Previous.State)
	assert.Nil(t, upd.Full)
	a, _ := upd.Write.Next.Get()
	assert.Empty(t, a.FullHash)
}

func TestCheckAvatarBigOnlyIsCompared(t *testing.T) {
	images := &fakeImages{bodies: map[string]string{"b": "IMG-A"}}
	d := newDetector(images)

	out, _, err := d.CheckAvatar(context.Background(), presentAvatar("IMG-A"), personal("", "b", profile.None[string]()), now)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, out)
	assert.Equal(t, []string{"b"}, images.calls)
}

func TestCheckAvatarPreviewDisappears(t *testing.T) {
	images := &fakeImages{bodies: map[string]string{"s": "IMG-A", "b": "IMG-A-FULL"}}
	d := newDetector(images)

	_, upd, err := d.CheckAvatar(context.Background(), profile.Unrecorded[profile.Avatar](), personal("s", "b", profile.None[string]()), now)
	require.NoError(t, err)
	upd.Bind("media/small.jpg", "media/full.jpg")

	images.calls = nil
	out, upd, err := d.CheckAvatar(context.Background(), upd.Write.Next, personal("", "b", profile.None[string]()), now)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, out)
	assert.Nil(t, upd)
	assert.Equal(t, []string{"b"}, images.calls)
}

func TestCheckAvatarPreviewAppears(t *testing.T) {
	images := &fakeImages{bodies: map[string]string{"s": "IMG-A", "b": "IMG-A-FULL"}}
	d := newDetector(images)

	_, upd, err := d.CheckAvatar(context.Background(), profile.Unrecorded[profile.Avatar](), personal("", "b", profile.None[string]()), now)
	require.NoError(t, err)
	upd.Bind("media/full-only.jpg", "")
	a, _ := upd.Write.Next.Get()
	require.Empty(t, a.FullHash)

	images.calls = nil
	out, upd, err := d.CheckAvatar(context.Background(), upd.Write.Next, personal("s", "b", profile.None[string]()), now)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, out)
	assert.Nil(t, upd)
	assert.Equal(t, []string{"s", "b"}, images.calls)
}

func TestCheckAvatarBigOnlyChanged(t *testing.T) {
	images := &fakeImages{bodies: map[string]string{"b": "IMG-B-FULL"}}
	d := newDetector(images)
	old := profile.Present(profile.Avatar{
		Ref:      "media/small.jpg",
		Hash:     fingerprint.ComputeHash([]byte("IMG-A")),
		FullRef:  "media/full.jpg",
		FullHash: fingerprint.ComputeHash([]byte("IMG-A-FULL")),
	})

	out, upd, err := d.CheckAvatar(context.Background(), old, personal("", "b", profile.None[string]()), now)
	require.NoError(t, err)
	assert.Equal(t, OutcomeChanged, out)
	require.NotNil(t, upd)
	assert.Nil(t, upd.Full)
	a, _ := upd.Write.Next.Get()
	assert.Equal(t, fingerprint.ComputeHash([]byte("IMG-B-FULL")), a.Hash)
	assert.Empty(t, a.FullHash)
	assert.Equal(t, []string{"b"}, images.calls)
}

func TestCheckAvatarFetchFailureIsIndeterminate(t *testing.T) {
	images := &fakeImages{errs: map[string]error{"s": errors.New("timeout")}}
	d := newDetector(images)

	_, upd, err := d.CheckAvatar(context.Background(), presentAvatar("IMG-A"), personal("s", "b", profile.None[string]()), now)
	assert.Nil(t, upd)
	assert.True(t, profile.IsNetwork(err))

	images = &fakeImages{bodies: map[string]string{"s": "IMG-B"}, errs: map[string]error{"b": errors.New("reset")}}
	d = newDetector(images)
	_, upd, err = d.CheckAvatar(context.Background(), presentAvatar("IMG-A"), personal("s", "b", profile.None[string]()), now)
	assert.Nil(t, upd)
	assert.True(t, profile.IsNetwork(err))
}

func TestCheckStatus(t *testing.T) {
	d := newDetector(&fakeImages{})
	about := func(s string) profile.Snapshot { return personal("", "", profile.NonEmpty(s)) }

	tests := []struct {
		name     string
		baseline profile.Field[string]
		snap     profile.Snapshot
		outcome  Outcome
		kind     profile.ChangeKind
	}{
		{"first seen", profile.Unrecorded[string](), about("hi"), OutcomeNoBaseline, ""},
		{"first seen absent", profile.Unrecorded[string](), about(""), OutcomeNoBaseline, ""},
		{"same text", profile.Present("hi"), about("hi"), OutcomeUnchanged, ""},
		{"still absent", profile.Absent[string](), about(""), OutcomeUnchanged, ""},
		{"changed", profile.Present("hi"), about("bye"), OutcomeChanged, profile.StatusChanged},
		{"set", profile.Absent[string](), about("hi"), OutcomeChanged, profile.StatusSet},
		{"cleared", profile.Present("hi"), about(""), OutcomeChanged, profile.StatusCleared},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, upd := d.CheckStatus(tt.baseline, tt.snap, now)
			assert.Equal(t, tt.outcome, out)
			switch tt.outcome {
			case OutcomeUnchanged:
				assert.Nil(t, upd)
			case OutcomeNoBaseline:
				require.NotNil(t, upd)
				assert.Nil(t, upd.Write.Change)
				assert.Equal(t, profile.FieldOf(tt.snap.StatusText()), upd.Write.Next)
			case OutcomeChanged:
				require.NotNil(t, upd)
				assert.Equal(t, tt.kind, upd.Kind)
				assert.Equal(t, tt.baseline, upd.Write.Change.Previous)
				assert.Equal(t, upd.Write.Next, upd.Write.Change.Current)
			}
		})
	}
}
