package model

import (
	"encoding/xml"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

// tempDirPrefix marks an in-progress download directory. A directory whose
// name starts with this prefix is incomplete and safe to delete.
const tempDirPrefix = ".downloading-"

// EpisodeInfo identifies one downloadable episode of a comic.
//
// EpisodeInfo contains everything the download orchestrator needs to label
// and place the output archive:
//   - EpisodeID / EpisodeTitle for the unit itself
//   - ComicID / ComicTitle for the parent comic
//   - IsLocked / IsDownloaded flags used by the admission layer to filter
//     episodes before submission
//   - ComicInfo metadata embedded into zip/cbz archives
//
// EpisodeInfo is immutable once a download task has been created from it.
type EpisodeInfo struct {
	// EpisodeID is the platform's episode identifier. It doubles as the
	// download task id in progress events.
	EpisodeID int64

	// EpisodeTitle is the human-readable episode title.
	EpisodeTitle string

	// ComicID is the parent comic's identifier.
	ComicID int64

	// ComicTitle is the parent comic's title.
	ComicTitle string

	// IsLocked reports whether the episode is behind a paywall and not
	// readable by the current account.
	IsLocked bool

	// IsDownloaded reports whether the episode output already exists in
	// the download directory.
	IsDownloaded bool

	// ComicInfo is the archive metadata written as ComicInfo.xml when the
	// archive format is zip or cbz.
	ComicInfo ComicInfo
}

// DownloadDir returns the final output directory for the episode under the
// given base download directory.
func (e *EpisodeInfo) DownloadDir(baseDir string) string {
	return filepath.Join(baseDir, sanitizeFileName(e.ComicTitle), sanitizeFileName(e.EpisodeTitle))
}

// TempDownloadDir returns the temporary directory images are written to
// while the episode downloads. It lives next to DownloadDir so the final
// step is a cheap rename.
func (e *EpisodeInfo) TempDownloadDir(baseDir string) string {
	return filepath.Join(baseDir, sanitizeFileName(e.ComicTitle), tempDirPrefix+sanitizeFileName(e.EpisodeTitle))
}

// AlbumPlusItem identifies one paid bonus-content unit of a comic.
// It shares the download pipeline with episodes but its image URLs are
// known up front instead of being resolved through an image index.
type AlbumPlusItem struct {
	// ID is the platform's item identifier, used as the task id.
	ID int64

	// Title is the human-readable item title.
	Title string

	// ComicID is the parent comic's identifier.
	ComicID int64

	// ComicTitle is the parent comic's title.
	ComicTitle string

	// IsDownloaded reports whether the item output already exists.
	IsDownloaded bool

	// IsLocked reports whether the item has not been purchased.
	IsLocked bool

	// Pics are the raw image paths to be tokenized and fetched.
	Pics []string
}

// DownloadDir returns the final output directory for the item. Bonus
// content is grouped under an "extras" subdirectory of the comic.
func (a *AlbumPlusItem) DownloadDir(baseDir string) string {
	return filepath.Join(baseDir, sanitizeFileName(a.ComicTitle), "extras", sanitizeFileName(a.Title))
}

// TempDownloadDir returns the temporary directory for the item download.
func (a *AlbumPlusItem) TempDownloadDir(baseDir string) string {
	return filepath.Join(baseDir, sanitizeFileName(a.ComicTitle), "extras", tempDirPrefix+sanitizeFileName(a.Title))
}

// ComicInfo is the archive metadata written as ComicInfo.xml into zip/cbz
// archives, following the ComicRack schema.
type ComicInfo struct {
	XMLName xml.Name `xml:"ComicInfo"`
	Title   string   `xml:"Title,omitempty"`
	Series  string   `xml:"Series,omitempty"`
	Number  string   `xml:"Number,omitempty"`
	Writer  string   `xml:"Writer,omitempty"`
	Summary string   `xml:"Summary,omitempty"`
	Year    int      `xml:"Year,omitempty"`
	Month   int      `xml:"Month,omitempty"`
	Day     int      `xml:"Day,omitempty"`
	// PageCount is filled in at packaging time from the downloaded images.
	PageCount int `xml:"PageCount,omitempty"`
}

// imageFileExts are the extensions carried through from image URLs into
// the files on disk.
var imageFileExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// ImageFileName returns the zero-padded file name for the i-th image of a
// task (1-based), keeping the extension of the source URL so PNG and WebP
// pages are not mislabeled as JPEG: "003.jpg", "007.png". URLs without a
// recognizable image extension fall back to ".jpg".
func ImageFileName(i int, rawURL string) string {
	ext := ".jpg"
	if u, err := url.Parse(rawURL); err == nil {
		if e := strings.ToLower(path.Ext(u.Path)); imageFileExts[e] {
			ext = e
		}
	}
	return fmt.Sprintf("%03d%s", i, ext)
}

// sanitizeFileName removes or replaces characters that are invalid in
// file/folder names.
//
// The following transformations are applied:
//   - Invalid characters (<>:"/\|?* and control chars) are replaced with underscore
//   - Trailing dots are removed (Windows limitation)
//   - Multiple whitespace is collapsed to single space
//   - Trailing whitespace is removed
//
// Example:
//
//	sanitizeFileName("Chapter 1/2: End?") // Returns "Chapter 1_2_ End_"
func sanitizeFileName(name string) string {
	// Replace invalid path/file characters
	invalidChars := regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	name = invalidChars.ReplaceAllString(name, "_")

	// Remove trailing dots
	name = regexp.MustCompile(`\.+$`).ReplaceAllString(name, "")

	// Replace multiple whitespace with single space
	name = regexp.MustCompile(`\s+`).ReplaceAllString(name, " ")

	// Remove trailing whitespace
	name = strings.TrimRight(name, " ")

	return name
}
