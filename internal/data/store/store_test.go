package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"

	"profilewatch/internal/profile"
)

func newTestContainer(t *testing.T) *Container {
	t.Helper()
	s, err := New(context.Background(), filepath.Join(t.TempDir(), "pw.db"), waLog.Noop)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return NewContainer(s)
}

func addContact(t *testing.T, c *Container, phone string) {
	t.Helper()
	require.NoError(t, c.Contacts.Put(context.Background(), &Contact{
		Phone:       phone,
		JID:         types.NewJID(phone, types.DefaultUserServer),
		DisplayName: "Alice",
	}))
}

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestContactLifecycle(t *testing.T) {
	ctx := context.Background()
	c := newTestContainer(t)
	addContact(t, c, "15550100199")

	got, err := c.Contacts.Get(ctx, "15550100199")
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Name())
	assert.Equal(t, "15550100199", got.JID.User)

	// Put again keeps the name when none is given.
	require.NoError(t, c.Contacts.Put(ctx, &Contact{Phone: "15550100199", JID: got.JID, Username: "al"}))
	got, err = c.Contacts.Get(ctx, "15550100199")
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.DisplayName)
	assert.Equal(t, "al", got.Username)

	biz := profile.Business{Name: profile.Some("Acme"), Categories: []string{"Retail", "Food"}}
	require.NoError(t, c.Contacts.UpdateProfile(ctx, "15550100199", biz))
	require.NoError(t, c.Contacts.MarkChecked(ctx, "15550100199", t0, nil))
	require.NoError(t, c.Contacts.UpdatePresence(ctx, "15550100199", true, t0))

	got, err = c.Contacts.Get(ctx, "15550100199")
	require.NoError(t, err)
	assert.True(t, got.IsBusiness)
	assert.Equal(t, "Acme", got.BusinessName)
	assert.Equal(t, []string{"Retail", "Food"}, got.BusinessCategories)
	assert.Equal(t, t0, got.LastCheckedAt)
	assert.True(t, got.IsOnline)
	assert.Equal(t, t0, got.LastSeen)

	all, err := c.Contacts.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, c.Contacts.Delete(ctx, "15550100199"))
	_, err = c.Contacts.Get(ctx, "15550100199")
	assert.ErrorIs(t, err, profile.ErrContactNotTracked)
	assert.ErrorIs(t, c.Contacts.Delete(ctx, "15550100199"), profile.ErrContactNotTracked)
}

func TestBaselineMissing(t *testing.T) {
	c := newTestContainer(t)
	addContact(t, c, "15550100199")

	b, found, err := c.Baselines.Get(context.Background(), "15550100199")
	require.NoError(t, err)
	assert.False(t, found)
	assert.False(t, b.Avatar.Recorded())
	assert.False(t, b.Status.Recorded())
}

func TestApplyPassFirstRecording(t *testing.T) {
	ctx := context.Background()
	c := newTestContainer(t)
	addContact(t, c, "15550100199")

	avatar := profile.Avatar{Ref: "media/a.jpg", Hash: "h1", FullRef: "media/a-full.jpg", FullHash: "h1f"}
	require.NoError(t, c.Baselines.ApplyPass(ctx, "15550100199", profile.Update{
		Avatar:    &profile.AvatarWrite{Next: profile.Present(avatar)},
		Status:    &profile.StatusWrite{Next: profile.Absent[string]()},
		CheckedAt: t0,
	}))

	b, found, err := c.Baselines.Get(ctx, "15550100199")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, profile.Present(avatar), b.Avatar)
	assert.Equal(t, profile.Absent[string](), b.Status)
	assert.Equal(t, t0, b.UpdatedAt)

	hist, err := c.Baselines.AvatarHistory(ctx, "15550100199")
	require.NoError(t, err)
	assert.Empty(t, hist)
}

func TestApplyPassAppendsHistoryInOrder(t *testing.T) {
	ctx := context.Background()
	c := newTestContainer(t)
	addContact(t, c, "15550100199")

	a1 := profile.Present(profile.Avatar{Ref: "r1", Hash: "h1"})
	a2 := profile.Present(profile.Avatar{Ref: "r2", Hash: "h2"})
	require.NoError(t, c.Baselines.ApplyPass(ctx, "15550100199", profile.Update{
		Avatar: &profile.AvatarWrite{Next: a1}, CheckedAt: t0,
	}))
	require.NoError(t, c.Baselines.ApplyPass(ctx, "15550100199", profile.Update{
		Avatar: &profile.AvatarWrite{
			Next:   a2,
			Change: &profile.AvatarChange{ID: "c1", Previous: a1, ReplacedAt: t0.Add(time.Hour)},
		},
		CheckedAt: t0.Add(time.Hour),
	}))
	require.NoError(t, c.Baselines.ApplyPass(ctx, "15550100199", profile.Update{
		Avatar: &profile.AvatarWrite{
			Next:   profile.Absent[profile.Avatar](),
			Change: &profile.AvatarChange{ID: "c2", Previous: a2, ReplacedAt: t0.Add(2 * time.Hour)},
		},
		CheckedAt: t0.Add(2 * time.Hour),
	}))

	hist, err := c.Baselines.AvatarHistory(ctx, "15550100199")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, profile.AvatarChange{ID: "c1", Previous: a1, ReplacedAt: t0.Add(time.Hour)}, hist[0])
	assert.Equal(t, profile.AvatarChange{ID: "c2", Previous: a2, ReplacedAt: t0.Add(2 * time.Hour)}, hist[1])

	b, _, err := c.Baselines.Get(ctx, "15550100199")
	require.NoError(t, err)
	assert.Equal(t, profile.StateAbsent, b.Avatar.State)
}

func TestApplyPassStatusHistory(t *testing.T) {
	ctx := context.Background()
	c := newTestContainer(t)
	addContact(t, c, "15550100199")

	require.NoError(t, c.Baselines.ApplyPass(ctx, "15550100199", profile.Update{
		Status: &profile.StatusWrite{Next: profile.Present("")}, CheckedAt: t0,
	}))
	b, _, err := c.Baselines.Get(ctx, "15550100199")
	require.NoError(t, err)
	assert.Equal(t, profile.Present(""), b.Status)

	require.NoError(t, c.Baselines.ApplyPass(ctx, "15550100199", profile.Update{
		Status: &profile.StatusWrite{
			Next: profile.Present("busy"),
			Change: &profile.StatusChange{
				ID: "s1", Previous: profile.Present(""), Current: profile.Present("busy"), ChangedAt: t0.Add(time.Minute),
			},
		},
		CheckedAt: t0.Add(time.Minute),
	}))

	hist, err := c.Baselines.StatusHistory(ctx, "15550100199")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, profile.Present(""), hist[0].Previous)
	assert.Equal(t, profile.Present("busy"), hist[0].Current)
}

func TestApplyPassIsAtomic(t *testing.T) {
	ctx := context.Background()
	c := newTestContainer(t)
	addContact(t, c, "15550100199")

	a1 := profile.Present(profile.Avatar{Ref: "r1", Hash: "h1"})
	require.NoError(t, c.Baselines.ApplyPass(ctx, "15550100199", profile.Update{
		Avatar: &profile.AvatarWrite{Next: a1},
		Status: &profile.StatusWrite{Next: profile.Present("hi")},
	}))

	// The status history insert collides on its primary key, so the avatar
	// write in the same pass must be rolled back too.
	require.NoError(t, c.Baselines.ApplyPass(ctx, "15550100199", profile.Update{
		Status: &profile.StatusWrite{
			Next:   profile.Present("a"),
			Change: &profile.StatusChange{ID: "dup", Previous: profile.Present("hi"), Current: profile.Present("a")},
		},
	}))
	err := c.Baselines.ApplyPass(ctx, "15550100199", profile.Update{
		Avatar: &profile.AvatarWrite{
			Next:   profile.Present(profile.Avatar{Ref: "r2", Hash: "h2"}),
			Change: &profile.AvatarChange{ID: "c1", Previous: a1},
		},
		Status: &profile.StatusWrite{
			Next:   profile.Present("b"),
			Change: &profile.StatusChange{ID: "dup", Previous: profile.Present("a"), Current: profile.Present("b")},
		},
	})
	assert.True(t, profile.IsPersistence(err))

	b, _, err := c.Baselines.Get(ctx, "15550100199")
	require.NoError(t, err)
	assert.Equal(t, a1, b.Avatar)
	assert.Equal(t, profile.Present("a"), b.Status)

	hist, err := c.Baselines.AvatarHistory(ctx, "15550100199")
	require.NoError(t, err)
	assert.Empty(t, hist)
}

func TestApplyPassRejectsIncompleteAvatar(t *testing.T) {
	c := newTestContainer(t)
	addContact(t, c, "15550100199")

	err := c.Baselines.ApplyPass(context.Background(), "15550100199", profile.Update{
		Avatar: &profile.AvatarWrite{Next: profile.Present(profile.Avatar{Hash: "h1"})},
	})
	assert.True(t, profile.IsPersistence(err))
}

func TestApplyPassUnknownContact(t *testing.T) {
	c := newTestContainer(t)
	err := c.Baselines.ApplyPass(context.Background(), "404", profile.Update{
		Status: &profile.StatusWrite{Next: profile.Absent[string]()},
	})
	assert.True(t, profile.IsPersistence(err))
}

func TestPresenceLog(t *testing.T) {
	ctx := context.Background()
	c := newTestContainer(t)
	addContact(t, c, "15550100199")

	signals := []profile.Signal{profile.SignalOnline, profile.SignalOnline, profile.SignalOffline}
	for i, sig := range signals {
		require.NoError(t, c.Baselines.AppendPresence(ctx, "15550100199", profile.PresenceSample{
			Signal: sig, At: t0.Add(time.Duration(i) * time.Second),
		}))
	}
	err := c.Baselines.AppendPresence(ctx, "15550100199", profile.PresenceSample{Signal: profile.SignalUnknown, At: t0})
	assert.True(t, profile.IsPersistence(err))

	all, err := c.Baselines.PresenceLog(ctx, "15550100199", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, s := range all {
		assert.Equal(t, signals[i], s.Signal)
		assert.Equal(t, t0.Add(time.Duration(i)*time.Second), s.At)
	}

	last, err := c.Baselines.PresenceLog(ctx, "15550100199", 2)
	require.NoError(t, err)
	assert.Equal(t, all[1:], last)

	stats, err := c.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.PresenceSamples)
	assert.Equal(t, 1, stats.Contacts)
}

func TestDeleteCascades(t *testing.T) {
	ctx := context.Background()
	c := newTestContainer(t)
	addContact(t, c, "15550100199")
	require.NoError(t, c.Baselines.ApplyPass(ctx, "15550100199", profile.Update{
		Status: &profile.StatusWrite{Next: profile.Present("hi")},
	}))
	require.NoError(t, c.Baselines.AppendPresence(ctx, "15550100199", profile.PresenceSample{Signal: profile.SignalOnline, At: t0}))

	require.NoError(t, c.Contacts.Delete(ctx, "15550100199"))

	_, found, err := c.Baselines.Get(ctx, "15550100199")
	require.NoError(t, err)
	assert.False(t, found)
	log, err := c.Baselines.PresenceLog(ctx, "15550100199", 0)
	require.NoError(t, err)
	assert.Empty(t, log)
}
