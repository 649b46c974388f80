package syncstorage

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"coshub/models"
)

func collection(usernames ...string) []models.Profile {
	profiles := make([]models.Profile, 0, len(usernames))
	for _, u := range usernames {
		profiles = append(profiles, models.Profile{ID: "1-" + u, Username: u})
	}
	return profiles
}

func TestResolvePrecedence(t *testing.T) {
	tests := []struct {
		name       string
		local      []models.Profile
		urlProf    []models.Profile
		urlOK      bool
		cookieProf []models.Profile
		cookieOK   bool

		wantSource  Source
		wantLen     int
		wantPersist bool
		wantMirror  bool
	}{
		{
			name:        "url wins over everything",
			local:       collection("a", "b", "c"),
			urlProf:     collection("z"),
			urlOK:       true,
			cookieProf:  collection("a", "b", "c", "d"),
			cookieOK:    true,
			wantSource:  SourceURL,
			wantLen:     1,
			wantPersist: true,
		},
		{
			name:       "empty url payload falls through",
			local:      collection("a"),
			urlProf:    collection(),
			urlOK:      true,
			wantSource: SourceLocal,
			wantLen:    1,
			wantMirror: true,
		},
		{
			name:        "longer cookie wins over local",
			local:       collection("a"),
			cookieProf:  collection("a", "b"),
			cookieOK:    true,
			wantSource:  SourceCookie,
			wantLen:     2,
			wantPersist: true,
		},
		{
			name:       "equal length cookie loses to local",
			local:      collection("a", "b"),
			cookieProf: collection("x", "y"),
			cookieOK:   true,
			wantSource: SourceLocal,
			wantLen:    2,
			wantMirror: true,
		},
		{
			name:       "shorter cookie loses to local",
			local:      collection("a", "b", "c"),
			cookieProf: collection("a"),
			cookieOK:   true,
			wantSource: SourceLocal,
			wantLen:    3,
			wantMirror: true,
		},
		{
			name:        "cookie beats empty local",
			local:       collection(),
			cookieProf:  collection("a"),
			cookieOK:    true,
			wantSource:  SourceCookie,
			wantLen:     1,
			wantPersist: true,
		},
		{
			name:       "nothing anywhere",
			local:      collection(),
			wantSource: SourceLocal,
			wantLen:    0,
		},
		{
			name:       "unparseable channels leave local authoritative",
			local:      collection("a"),
			urlOK:      false,
			cookieOK:   false,
			wantSource: SourceLocal,
			wantLen:    1,
			wantMirror: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.local, tt.urlProf, tt.urlOK, tt.cookieProf, tt.cookieOK)
			assert.Equal(t, tt.wantSource, got.Source)
			assert.Len(t, got.Profiles, tt.wantLen)
			assert.Equal(t, tt.wantPersist, got.Persist)
			assert.Equal(t, tt.wantMirror, got.MirrorCookie)
		})
	}
}

func TestResolveURLWinDoesNotMirror(t *testing.T) {
	got := Resolve(nil, collection("a"), true, nil, false)
	assert.True(t, got.Persist)
	assert.False(t, got.MirrorCookie, "consuming a share link only persists locally")
}
