package model

// Comic represents a comic's catalog detail: its metadata plus the full
// episode list. It is built from the platform's detail endpoint and is the
// source the admission layer picks EpisodeInfo values from.
type Comic struct {
	ID            int64
	Title         string
	Authors       []string
	Description   string
	VerticalCov   string
	HorizontalCov string
	Episodes      []EpisodeInfo
}

// ComicInSearch is one comic row in a search result page.
type ComicInSearch struct {
	ID     int64
	Title  string
	Author []string
	Cover  string
}

// NovelInSearch is one novel row in a search result page. The platform's
// search endpoint returns comics and novels together; novels are surfaced
// for display only and cannot be downloaded.
type NovelInSearch struct {
	ID    int64
	Title string
	Cover string
}

// SearchResult is one combined comic+novel result page.
type SearchResult struct {
	Comics     []ComicInSearch
	Novels     []NovelInSearch
	Page       int
	TotalPages int
}

// UserProfile is the authenticated user's profile record.
type UserProfile struct {
	UID    int64
	Name   string
	Avatar string
}

// Version describes one released application version, used by the update
// check. Important versions carry changes the user should not skip.
type Version struct {
	Name    string
	Content string
}

// CheckUpdateResult splits available versions by severity.
type CheckUpdateResult struct {
	NormalVersions    []Version
	ImportantVersions []Version
}
