package models

// Profile aggregates everything tracked for one cosplayer: identity,
// presentation fields, the curated media list and transient download state.
type Profile struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`

	Avatar       string `json:"avatar,omitempty"`
	CustomAvatar string `json:"customAvatar,omitempty"`
	Bio          string `json:"bio,omitempty"`
	Hashtag      string `json:"hashtag,omitempty"`
	Location     string `json:"location,omitempty"`

	// Placeholder social proof, randomized at creation.
	Following int    `json:"following,omitempty"`
	Followers string `json:"followers,omitempty"`

	IsFollowed bool    `json:"isFollowed"`
	Media      []Media `json:"media"`

	DownloadStatus *DownloadStatus `json:"downloadStatus,omitempty"`

	// AddedAt is the creation time in epoch milliseconds. Profile IDs embed
	// this value, so it never changes after creation.
	AddedAt int64 `json:"addedAt"`

	IsManuallyEdited bool         `json:"isManuallyEdited,omitempty"`
	SocialLinks      *SocialLinks `json:"socialLinks,omitempty"`
	Stats            *Stats       `json:"stats,omitempty"`
}

// SocialLinks holds manually curated links to the cosplayer's accounts.
type SocialLinks struct {
	Twitter   string `json:"twitter,omitempty"`
	Instagram string `json:"instagram,omitempty"`
	TikTok    string `json:"tiktok,omitempty"`
	YouTube   string `json:"youtube,omitempty"`
}

// Stats holds manually maintained aggregate numbers.
type Stats struct {
	TotalPosts int  `json:"totalPosts,omitempty"`
	AvgLikes   int  `json:"avgLikes,omitempty"`
	Verified   bool `json:"verified,omitempty"`
}

// Media is one downloaded or curated item belonging to a profile. Filename is
// the de-duplication key within a profile's media list.
type Media struct {
	Filename    string   `json:"filename"`
	URL         string   `json:"url"`
	Type        string   `json:"type"`
	Likes       int      `json:"likes,omitempty"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	UploadDate  string   `json:"uploadDate,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	IsEdited    bool     `json:"isEdited,omitempty"`
}

// DownloadStatus is the transient progress descriptor for a profile. Writes
// replace it wholesale; it is never merged across sync sources.
type DownloadStatus struct {
	IsDownloading bool   `json:"isDownloading"`
	Progress      int    `json:"progress"`
	Message       string `json:"message"`
	Error         string `json:"error,omitempty"`
}

// ProfileUpdate carries the partial fields UpdateProfile may change. Nil
// pointers leave the corresponding field untouched.
type ProfileUpdate struct {
	DisplayName  *string      `json:"displayName,omitempty"`
	Avatar       *string      `json:"avatar,omitempty"`
	CustomAvatar *string      `json:"customAvatar,omitempty"`
	Bio          *string      `json:"bio,omitempty"`
	Hashtag      *string      `json:"hashtag,omitempty"`
	Location     *string      `json:"location,omitempty"`
	Following    *int         `json:"following,omitempty"`
	Followers    *string      `json:"followers,omitempty"`
	SocialLinks  *SocialLinks `json:"socialLinks,omitempty"`
	Stats        *Stats       `json:"stats,omitempty"`
}
