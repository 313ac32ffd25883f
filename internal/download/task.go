package download

import (
	"context"

	"github.com/rinshan/bilimanga-downloader/internal/model"
)

// ImageSource is the slice of the platform client the download manager
// consumes. *bili.Client satisfies it; tests substitute a fake.
type ImageSource interface {
	GetImageIndex(ctx context.Context, episodeID int64) ([]string, error)
	GetImageTokens(ctx context.Context, urls []string) ([]string, error)
	DownloadImage(ctx context.Context, url string) ([]byte, error)
}

// Task is one unit of download work: a comic episode or a bonus-content
// item. Exactly one of the two fields is set.
type Task struct {
	episode *model.EpisodeInfo
	extra   *model.AlbumPlusItem
}

// NewEpisodeTask wraps an episode for submission. The episode's image
// paths are resolved through the image index when a worker picks it up.
func NewEpisodeTask(ep model.EpisodeInfo) Task {
	return Task{episode: &ep}
}

// NewAlbumPlusTask wraps a bonus-content item for submission. Its image
// paths are known up front and only need access tokens.
func NewAlbumPlusTask(item model.AlbumPlusItem) Task {
	return Task{extra: &item}
}

// ID returns the task identifier carried by all progress events.
func (t Task) ID() int64 {
	if t.episode != nil {
		return t.episode.EpisodeID
	}
	return t.extra.ID
}

// ComicTitle returns the parent comic's title.
func (t Task) ComicTitle() string {
	if t.episode != nil {
		return t.episode.ComicTitle
	}
	return t.extra.ComicTitle
}

// Title returns the episode or item title.
func (t Task) Title() string {
	if t.episode != nil {
		return t.episode.EpisodeTitle
	}
	return t.extra.Title
}

func (t Task) downloadDir(baseDir string) string {
	if t.episode != nil {
		return t.episode.DownloadDir(baseDir)
	}
	return t.extra.DownloadDir(baseDir)
}

func (t Task) tempDir(baseDir string) string {
	if t.episode != nil {
		return t.episode.TempDownloadDir(baseDir)
	}
	return t.extra.TempDownloadDir(baseDir)
}

// comicInfo returns the archive metadata for episodes and nil for
// bonus-content items, which are never packaged into zip/cbz.
func (t Task) comicInfo() *model.ComicInfo {
	if t.episode == nil {
		return nil
	}
	info := t.episode.ComicInfo
	return &info
}

// resolveURLs produces the final, fetchable image URLs for the task.
func (t Task) resolveURLs(ctx context.Context, src ImageSource) ([]string, error) {
	if t.episode != nil {
		paths, err := src.GetImageIndex(ctx, t.episode.EpisodeID)
		if err != nil {
			return nil, err
		}
		return src.GetImageTokens(ctx, paths)
	}
	return src.GetImageTokens(ctx, t.extra.Pics)
}
