// Package syncstorage moves the whole collection through the two
// zero-infrastructure side channels available to the app: a shareable URL
// parameter for explicit cross-device transfer and a cookie mirror for
// same-browser persistence. Both are best-effort and bounded in size; neither
// is authoritative on its own.
package syncstorage

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"coshub/models"
)

const (
	// SyncKey names the payload cookie and the persisted sync document.
	SyncKey = "coshub_sync_data"
	// LastSyncKey names the last-sync timestamp cookie.
	LastSyncKey = "coshub_last_sync"
	// SyncParam is the query parameter carrying a share payload.
	SyncParam = "sync"

	// maxCookiePayload is the hard ceiling for the encoded cookie value.
	// Larger collections are simply not mirrored; cookies are never chunked.
	maxCookiePayload = 4000

	cookieMaxAge = 30 * 24 * time.Hour
)

// Encode serializes a collection to the shared wire format,
// base64(JSON(collection)).
func Encode(profiles []models.Profile) (string, error) {
	if profiles == nil {
		profiles = []models.Profile{}
	}
	data, err := json.Marshal(profiles)
	if err != nil {
		return "", fmt.Errorf("encode collection: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Decode parses the wire format. Bad base64 or bad JSON yields ok=false,
// never an error: a mangled share link must not take the app down.
func Decode(payload string) ([]models.Profile, bool) {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, false
	}
	var profiles []models.Profile
	if err := json.Unmarshal(data, &profiles); err != nil {
		return nil, false
	}
	if profiles == nil {
		profiles = []models.Profile{}
	}
	return profiles, true
}

// ShareURL builds an absolute share link for the collection on top of the
// page's origin and path. Any query or fragment on base is dropped.
func ShareURL(base *url.URL, profiles []models.Profile) (string, error) {
	payload, err := Encode(profiles)
	if err != nil {
		return "", err
	}

	link := url.URL{
		Scheme: base.Scheme,
		Host:   base.Host,
		Path:   base.Path,
	}
	q := url.Values{}
	q.Set(SyncParam, payload)
	link.RawQuery = q.Encode()
	return link.String(), nil
}

// DecodeShareURL extracts a collection from the sync query parameter.
// cleaned is the same URL with the parameter stripped, so answering with a
// redirect to it keeps reloads and re-shares from re-triggering the payload.
func DecodeShareURL(u *url.URL) (profiles []models.Profile, cleaned *url.URL, ok bool) {
	q := u.Query()
	payload := q.Get(SyncParam)
	if payload == "" {
		return nil, nil, false
	}

	profiles, ok = Decode(payload)
	if !ok {
		return nil, nil, false
	}

	stripped := *u
	q.Del(SyncParam)
	stripped.RawQuery = q.Encode()
	return profiles, &stripped, true
}

// EncodeCookies builds the cookie pair mirroring the collection. When the
// encoded payload exceeds the size ceiling the mirror write is skipped
// entirely and a warning is the only observable effect.
func EncodeCookies(profiles []models.Profile) ([]*http.Cookie, bool) {
	payload, err := Encode(profiles)
	if err != nil {
		log.Printf("[sync] cookie mirror skipped: %v", err)
		return nil, false
	}
	if len(payload) > maxCookiePayload {
		log.Printf("[sync] collection too large for cookie sync (%d bytes)", len(payload))
		return nil, false
	}

	expires := time.Now().Add(cookieMaxAge)
	return []*http.Cookie{
		{
			Name:     SyncKey,
			Value:    payload,
			Path:     "/",
			Expires:  expires,
			MaxAge:   int(cookieMaxAge / time.Second),
			SameSite: http.SameSiteLaxMode,
		},
		{
			Name:     LastSyncKey,
			Value:    strconv.FormatInt(time.Now().UnixMilli(), 10),
			Path:     "/",
			Expires:  expires,
			MaxAge:   int(cookieMaxAge / time.Second),
			SameSite: http.SameSiteLaxMode,
		},
	}, true
}

// DecodeCookies parses the cookie jar for the payload cookie. A malformed or
// absent cookie yields ok=false.
func DecodeCookies(cookies []*http.Cookie) ([]models.Profile, bool) {
	for _, c := range cookies {
		if c.Name == SyncKey {
			return Decode(c.Value)
		}
	}
	return nil, false
}
