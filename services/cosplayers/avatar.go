package cosplayers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"
)

// avatarProbeTimeout bounds each candidate service independently.
const avatarProbeTimeout = 8 * time.Second

// AvatarResolver finds a usable profile image for a username by probing a
// list of avatar services in order. The first service that answers a HEAD
// request with a 2xx wins; a failed or timed-out candidate advances to the
// next one without being retried.
type AvatarResolver struct {
	httpClient *http.Client
	services   []string
}

// NewAvatarResolver returns a resolver with the default service chain.
func NewAvatarResolver(httpClient *http.Client) *AvatarResolver {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &AvatarResolver{
		httpClient: httpClient,
		services: []string{
			"https://unavatar.io/twitter/%s",
			"https://avatars.io/twitter/%s",
			"https://unavatar.io/x/%s",
			"https://ui-avatars.com/api/?name=%s&background=667eea&color=fff&size=400&font-size=0.6&bold=true",
			"https://avatars.dicebear.com/api/initials/%s.svg?background=%%23667eea&color=%%23ffffff",
		},
	}
}

// NewAvatarResolverWithServices returns a resolver over an explicit chain of
// printf-style URL templates with one %s for the username.
func NewAvatarResolverWithServices(httpClient *http.Client, services []string) *AvatarResolver {
	r := NewAvatarResolver(httpClient)
	r.services = services
	return r
}

// Resolve probes the service chain and returns an avatar URL. It never fails:
// exhausting the chain falls back to a generated-initials avatar.
func (r *AvatarResolver) Resolve(ctx context.Context, username string) string {
	for i, service := range r.services {
		candidate := fmt.Sprintf(service, url.QueryEscape(username))
		if r.probe(ctx, candidate) {
			log.Printf("[avatar] profile image for %s via service %d: %s", username, i+1, candidate)
			return candidate
		}
	}

	log.Printf("[avatar] all services failed for %s, using generated fallback", username)
	return FallbackAvatarURL(username)
}

func (r *AvatarResolver) probe(ctx context.Context, candidate string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, avatarProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, candidate, nil)
	if err != nil {
		return false
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// FallbackAvatarURL returns the generated-initials avatar used when every
// probe fails. It is a plain URL, so it can never itself fail.
func FallbackAvatarURL(username string) string {
	return fmt.Sprintf("https://ui-avatars.com/api/?name=%s&background=random&color=fff&size=400&font-size=0.6&bold=true",
		url.QueryEscape(username))
}
