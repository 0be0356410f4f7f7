package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateValidate(t *testing.T) {
	tests := []struct {
		name    string
		update  Update
		wantErr string
	}{
		{"status only", Update{Status: &StatusWrite{Next: Present("hi")}}, ""},
		{"absent avatar", Update{Avatar: &AvatarWrite{Next: Absent[Avatar]()}}, ""},
		{"preview only", Update{Avatar: &AvatarWrite{Next: Present(Avatar{Ref: "a.jpg", Hash: "aa"})}}, ""},
		{"with full", Update{Avatar: &AvatarWrite{Next: Present(Avatar{Ref: "a.jpg", Hash: "aa", FullRef: "b.jpg", FullHash: "bb"})}}, ""},
		{"missing ref", Update{Avatar: &AvatarWrite{Next: Present(Avatar{Hash: "aa"})}}, "ref and hash"},
		{"missing hash", Update{Avatar: &AvatarWrite{Next: Present(Avatar{Ref: "a.jpg"})}}, "ref and hash"},
		{"full ref without hash", Update{Avatar: &AvatarWrite{Next: Present(Avatar{Ref: "a.jpg", Hash: "aa", FullRef: "b.jpg"})}}, "full avatar"},
		{"full hash without ref", Update{Avatar: &AvatarWrite{Next: Present(Avatar{Ref: "a.jpg", Hash: "aa", FullHash: "bb"})}}, "full avatar"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.update.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestUpdateEmpty(t *testing.T) {
	assert.True(t, Update{}.Empty())
	assert.False(t, Update{Status: &StatusWrite{Next: Absent[string]()}}.Empty())
}

func TestFieldStateRoundTrip(t *testing.T) {
	for _, s := range []FieldState{StateUnrecorded, StateAbsent, StatePresent} {
		got, err := ParseFieldState(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	got, err := ParseFieldState("")
	require.NoError(t, err)
	assert.Equal(t, StateUnrecorded, got)

	_, err = ParseFieldState("deleted")
	assert.Error(t, err)
}

func TestFieldOf(t *testing.T) {
	assert.Equal(t, Present("hi"), FieldOf(Some("hi")))
	assert.Equal(t, Absent[string](), FieldOf(None[string]()))
	assert.Equal(t, Present(""), FieldOf(Some("")))
	assert.Equal(t, Absent[string](), FieldOf(NonEmpty("")))

	v, ok := FieldOf(Some(3)).Get()
	assert.True(t, ok)
	assert.Equal(t, 3, v)
	assert.True(t, FieldOf(None[int]()).Recorded())
	assert.False(t, Unrecorded[int]().Recorded())
}

func TestAvatarURLs(t *testing.T) {
	both := AvatarURLs{Small: Some("s"), Big: Some("b")}
	assert.Equal(t, Some("s"), both.Compare())
	assert.True(t, both.HasAvatar())

	bigOnly := AvatarURLs{Big: Some("b")}
	assert.Equal(t, Some("b"), bigOnly.Compare())
	assert.False(t, AvatarURLs{}.HasAvatar())
}
