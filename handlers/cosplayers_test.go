package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coshub/models"
	"coshub/services/cosplayers"
	"coshub/services/syncstorage"
	"coshub/utils"
)

func newTestHandler(t *testing.T) (*cosplayers.Store, http.Handler) {
	t.Helper()
	store := cosplayers.NewStore(cosplayers.NewFileBackend(afero.NewMemMapFs(), "data"), nil)
	base, _ := url.Parse("http://coshub.test")

	router := utils.NewRouter()
	NewCosplayerHandler(store, base).Register(router)
	return store, router
}

func seedProfiles(t *testing.T, store *cosplayers.Store, usernames ...string) []models.Profile {
	t.Helper()
	for _, u := range usernames {
		_, err := store.AddProfile(context.Background(), u, "")
		require.NoError(t, err)
	}
	profiles, err := store.List(context.Background())
	require.NoError(t, err)
	return profiles
}

func decodeProfiles(t *testing.T, body *bytes.Buffer) []models.Profile {
	t.Helper()
	var profiles []models.Profile
	require.NoError(t, json.Unmarshal(body.Bytes(), &profiles))
	return profiles
}

func syncCookie(t *testing.T, profiles []models.Profile) *http.Cookie {
	t.Helper()
	cookies, ok := syncstorage.EncodeCookies(profiles)
	require.True(t, ok)
	return cookies[0]
}

func TestListPlain(t *testing.T) {
	store, router := newTestHandler(t)
	seedProfiles(t, store, "ayaka", "mika")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cosplayers", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeProfiles(t, rec.Body), 2)
}

func TestListConsumesShareURL(t *testing.T) {
	store, router := newTestHandler(t)
	seedProfiles(t, store, "old_local")

	shared := []models.Profile{{ID: "1-shared", Username: "shared", Media: []models.Media{}}}
	payload, err := syncstorage.Encode(shared)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cosplayers?sync="+url.QueryEscape(payload)+"&tab=all", nil))

	// the payload is persisted and the answer redirects to the cleaned URL
	require.Equal(t, http.StatusFound, rec.Code)
	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Empty(t, location.Query().Get("sync"))
	assert.Equal(t, "all", location.Query().Get("tab"))

	profiles, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, "shared", profiles[0].Username, "share payload replaces local wholesale")
}

func TestListMangledShareURLFallsBack(t *testing.T) {
	store, router := newTestHandler(t)
	seedProfiles(t, store, "survivor")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cosplayers?sync=!!!garbage!!!", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeProfiles(t, rec.Body)
	require.Len(t, got, 1)
	assert.Equal(t, "survivor", got[0].Username)
}

func TestListLongerCookieWins(t *testing.T) {
	store, router := newTestHandler(t)
	seedProfiles(t, store, "lonely")

	fromCookie := []models.Profile{
		{ID: "1-a", Username: "a", Media: []models.Media{}},
		{ID: "2-b", Username: "b", Media: []models.Media{}},
	}
	req := httptest.NewRequest(http.MethodGet, "/api/cosplayers", nil)
	req.AddCookie(syncCookie(t, fromCookie))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeProfiles(t, rec.Body), 2)

	profiles, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, profiles, 2, "winning cookie collection is persisted")
}

func TestListShorterCookieLosesAndLocalIsMirrored(t *testing.T) {
	store, router := newTestHandler(t)
	seedProfiles(t, store, "one", "two")

	fromCookie := []models.Profile{{ID: "1-a", Username: "a", Media: []models.Media{}}}
	req := httptest.NewRequest(http.MethodGet, "/api/cosplayers", nil)
	req.AddCookie(syncCookie(t, fromCookie))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeProfiles(t, rec.Body), 2)

	// the local winner is pushed back out through the cookie mirror
	var mirrored *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == syncstorage.SyncKey {
			mirrored = c
		}
	}
	require.NotNil(t, mirrored)
	got, ok := syncstorage.Decode(mirrored.Value)
	require.True(t, ok)
	assert.Len(t, got, 2)
}

func TestAddProfile(t *testing.T) {
	store, router := newTestHandler(t)

	body := bytes.NewBufferString(`{"username":"ayaka","displayName":"Ayaka"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/cosplayers", body))

	require.Equal(t, http.StatusOK, rec.Code)

	var profile models.Profile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &profile))
	assert.Equal(t, "ayaka", profile.Username)
	assert.Equal(t, "Ayaka", profile.DisplayName)

	profiles, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, profiles, 1)

	// the write refreshes the cookie mirror
	var names []string
	for _, c := range rec.Result().Cookies() {
		names = append(names, c.Name)
	}
	assert.Contains(t, names, syncstorage.SyncKey)
	assert.Contains(t, names, syncstorage.LastSyncKey)
}

func TestAddProfileWithoutUsername(t *testing.T) {
	_, router := newTestHandler(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/cosplayers", bytes.NewBufferString(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateProfile(t *testing.T) {
	store, router := newTestHandler(t)
	profiles := seedProfiles(t, store, "mika")

	body := bytes.NewBufferString(`{"bio":"New bio"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/api/cosplayers/"+profiles[0].ID, body))

	require.Equal(t, http.StatusOK, rec.Code)

	updated, _ := store.List(context.Background())
	assert.Equal(t, "New bio", updated[0].Bio)
	assert.True(t, updated[0].IsManuallyEdited)
}

func TestMutationsOnUnknownProfileReturn404(t *testing.T) {
	_, router := newTestHandler(t)

	requests := []*http.Request{
		httptest.NewRequest(http.MethodPatch, "/api/cosplayers/nope", bytes.NewBufferString(`{}`)),
		httptest.NewRequest(http.MethodDelete, "/api/cosplayers/nope", nil),
		httptest.NewRequest(http.MethodPost, "/api/cosplayers/nope/follow", nil),
		httptest.NewRequest(http.MethodPost, "/api/cosplayers/nope/media", bytes.NewBufferString(`[]`)),
		httptest.NewRequest(http.MethodPut, "/api/cosplayers/nope/status", bytes.NewBufferString(`{}`)),
	}
	for _, req := range requests {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code, "%s %s", req.Method, req.URL.Path)
	}
}

func TestToggleFollowRoute(t *testing.T) {
	store, router := newTestHandler(t)
	profiles := seedProfiles(t, store, "rei")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/cosplayers/"+profiles[0].ID+"/follow", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	updated, _ := store.List(context.Background())
	assert.True(t, updated[0].IsFollowed)
}

func TestAppendMediaRoute(t *testing.T) {
	store, router := newTestHandler(t)
	seedProfiles(t, store, "yuki")

	body := bytes.NewBufferString(`[{"filename":"a.webp","url":"/downloads/yuki/img/a.webp","type":"image/webp"}]`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/cosplayers/yuki/media", body))
	require.Equal(t, http.StatusOK, rec.Code)

	updated, _ := store.List(context.Background())
	require.Len(t, updated[0].Media, 1)
	assert.Equal(t, "a.webp", updated[0].Media[0].Filename)
}

func TestRemoveAndClear(t *testing.T) {
	store, router := newTestHandler(t)
	profiles := seedProfiles(t, store, "gone", "stays")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/cosplayers/"+profiles[0].ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	left, _ := store.List(context.Background())
	require.Len(t, left, 1)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/cosplayers", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	left, _ = store.List(context.Background())
	assert.Empty(t, left)
}

func TestShareLink(t *testing.T) {
	store, router := newTestHandler(t)
	seedProfiles(t, store, "ayaka")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sync/link", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		URL string `json:"url"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	link, err := url.Parse(body.URL)
	require.NoError(t, err)
	assert.Equal(t, "coshub.test", link.Host)

	shared, ok := syncstorage.Decode(link.Query().Get(syncstorage.SyncParam))
	require.True(t, ok)
	require.Len(t, shared, 1)
	assert.Equal(t, "ayaka", shared[0].Username)
}
