package downloader

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/afero"

	"coshub/models"
)

// writeCookieFile renders the credential pair as the JSON-encoded
// []http.Cookie document twmd loads with -C. The cookies are scoped to
// .twitter.com and expire a year out.
func writeCookieFile(fs afero.Fs, path string, creds models.Credentials) error {
	expires := time.Now().AddDate(1, 0, 0)

	cookies := []http.Cookie{
		{
			Name:     "auth_token",
			Value:    creds.AuthToken,
			Path:     "/",
			Domain:   ".twitter.com",
			Expires:  expires,
			HttpOnly: true,
			Secure:   true,
		},
		{
			Name:     "ct0",
			Value:    creds.CT0,
			Path:     "/",
			Domain:   ".twitter.com",
			Expires:  expires,
			HttpOnly: true,
			Secure:   true,
		},
	}

	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cookie file: %w", err)
	}
	if err := afero.WriteFile(fs, path, data, 0600); err != nil {
		return fmt.Errorf("write cookie file: %w", err)
	}
	return nil
}
