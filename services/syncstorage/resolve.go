package syncstorage

import (
	"coshub/models"
)

// Source identifies which collection won a reconciliation pass.
type Source string

const (
	SourceURL    Source = "url"
	SourceCookie Source = "cookie"
	SourceLocal  Source = "local"
)

// Outcome is the result of one reconciliation pass. Exactly one source wins
// per call.
type Outcome struct {
	Profiles []models.Profile
	Source   Source
	// Persist is set when the winner differs from local storage and must be
	// written back to it.
	Persist bool
	// MirrorCookie is set when the winning collection should be pushed out to
	// the cookie mirror so other sessions converge toward it.
	MirrorCookie bool
}

// Resolve picks the authoritative collection among the local store and the
// two sync channels.
//
// A non-empty URL payload wins unconditionally: it is an explicit transfer
// act. Otherwise a cookie collection strictly longer than the local one wins;
// more items seen elsewhere is taken to mean newer. This cardinality
// heuristic cannot see newer edits inside a shorter collection, which the
// design accepts. Otherwise local is authoritative and, when non-empty, is
// mirrored back out to the cookie channel.
func Resolve(local []models.Profile, urlProfiles []models.Profile, urlOK bool, cookieProfiles []models.Profile, cookieOK bool) Outcome {
	if urlOK && len(urlProfiles) > 0 {
		return Outcome{
			Profiles: urlProfiles,
			Source:   SourceURL,
			Persist:  true,
		}
	}

	if cookieOK && len(cookieProfiles) > len(local) {
		return Outcome{
			Profiles: cookieProfiles,
			Source:   SourceCookie,
			Persist:  true,
		}
	}

	return Outcome{
		Profiles:     local,
		Source:       SourceLocal,
		MirrorCookie: len(local) > 0,
	}
}
