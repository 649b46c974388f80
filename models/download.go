package models

// DownloadOptions controls a single twmd run for one username.
type DownloadOptions struct {
	ImageOnly   bool `json:"imageOnly"`
	Count       int  `json:"count"`
	HighQuality bool `json:"highQuality"`
	Test        bool `json:"test,omitempty"`
}

// DownloadedFile describes one file produced by a download run, in the shape
// the collection store consumes to build Media items.
type DownloadedFile struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Type     string `json:"type"`
}

// DownloadResult is the response of the download pipeline.
type DownloadResult struct {
	Success         bool             `json:"success"`
	Message         string           `json:"message"`
	Username        string           `json:"username"`
	DownloadedCount int              `json:"downloadedCount"`
	Files           []DownloadedFile `json:"files"`
	JobID           string           `json:"jobId,omitempty"`
}

// Credentials is the token pair the downloader needs to talk to Twitter.
type Credentials struct {
	AuthToken string `json:"auth_token"`
	CT0       string `json:"ct0"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// HasBoth reports whether both tokens are present.
func (c Credentials) HasBoth() bool {
	return c.AuthToken != "" && c.CT0 != ""
}
