package app

import (
	"context"
	"os"
	"time"

	"github.com/rinshan/bilimanga-downloader/internal/auth"
	"github.com/rinshan/bilimanga-downloader/internal/bili"
	"github.com/rinshan/bilimanga-downloader/internal/config"
	"github.com/rinshan/bilimanga-downloader/internal/download"
	"github.com/rinshan/bilimanga-downloader/internal/event"
	ioutils "github.com/rinshan/bilimanga-downloader/internal/io"
	"github.com/rinshan/bilimanga-downloader/internal/model"
	"github.com/rinshan/bilimanga-downloader/internal/watermark"
)

// App wires the config store, the platform client, the login manager, the
// download manager and the watermark pipeline behind one command surface.
// Frontends (CLI, TUI) talk only to App and to the event bus.
type App struct {
	store     *config.Store
	bus       *event.Bus
	client    *bili.Client
	auth      *auth.Manager
	download  *download.Manager
	watermark *watermark.Pipeline
	version   string
}

// New assembles an App over the given store and bus. version is the
// running application version, compared against the release feed by
// CheckUpdate.
func New(store *config.Store, bus *event.Bus, version string) *App {
	client := bili.NewClient(store)
	return &App{
		store:     store,
		bus:       bus,
		client:    client,
		auth:      auth.NewManager(client),
		download:  download.NewManager(client, store, bus),
		watermark: watermark.NewPipeline(store, bus, nil),
		version:   version,
	}
}

// Run starts the download workers and blocks until ctx is canceled.
func (a *App) Run(ctx context.Context) {
	a.download.Run(ctx)
}

// GetConfig returns a copy of the current configuration.
func (a *App) GetConfig() config.Config {
	return a.store.Get()
}

// SaveConfig replaces and persists the configuration.
func (a *App) SaveConfig(cfg config.Config) error {
	return a.store.Replace(cfg)
}

// GenerateAppQrcode starts a new app-flow login session.
func (a *App) GenerateAppQrcode(ctx context.Context) (*auth.GeneratedCode, error) {
	return a.auth.GenerateAppCode(ctx)
}

// PollAppQrcodeStatus polls an app-flow session once. A confirmed session
// persists its credentials to the config before returning, so the next
// API call is already authenticated.
func (a *App) PollAppQrcodeStatus(ctx context.Context, authCode string) (*auth.AppStatus, error) {
	status, err := a.auth.PollAppStatus(ctx, authCode)
	if err != nil {
		return nil, err
	}
	if status.State == auth.StateConfirmed {
		if err := a.persistToken(status.Token); err != nil {
			return nil, err
		}
	}
	return status, nil
}

// ConfirmAppQrcode finalizes a scanned app-flow session using the csrf
// token and SESSDATA of an existing web login.
func (a *App) ConfirmAppQrcode(ctx context.Context, authCode, csrf, sessdata string) error {
	return a.auth.ConfirmAppCode(ctx, authCode, csrf, sessdata)
}

// GenerateWebQrcode starts a new web-flow login session.
func (a *App) GenerateWebQrcode(ctx context.Context) (*auth.GeneratedCode, error) {
	return a.auth.GenerateWebCode(ctx)
}

// PollWebQrcodeStatus polls a web-flow session once, persisting the
// issued cookies when the session confirms.
func (a *App) PollWebQrcodeStatus(ctx context.Context, qrcodeKey string) (*auth.WebStatus, error) {
	status, err := a.auth.PollWebStatus(ctx, qrcodeKey)
	if err != nil {
		return nil, err
	}
	if status.State == auth.StateConfirmed {
		if err := a.persistToken(status.Token); err != nil {
			return nil, err
		}
	}
	return status, nil
}

// Logout discards the persisted credentials.
func (a *App) Logout() error {
	return a.store.Update(func(c *config.Config) {
		c.UID = 0
		c.AccessToken = ""
		c.Cookie = ""
	})
}

// Search queries the combined comic+novel search.
func (a *App) Search(ctx context.Context, keyword string, page int) (*model.SearchResult, error) {
	return a.client.Search(ctx, keyword, page)
}

// GetComic fetches a comic's detail and overlays the already-downloaded
// flag of each episode from the filesystem.
func (a *App) GetComic(ctx context.Context, comicID int64) (*model.Comic, error) {
	comic, err := a.client.GetComic(ctx, comicID)
	if err != nil {
		return nil, err
	}
	markDownloadedEpisodes(comic.Episodes, a.store.Get().DownloadDir)
	return comic, nil
}

// GetAlbumPlus fetches a comic's bonus-content list with downloaded
// flags overlaid from the filesystem.
func (a *App) GetAlbumPlus(ctx context.Context, comicID int64) ([]model.AlbumPlusItem, error) {
	items, err := a.client.GetAlbumPlus(ctx, comicID)
	if err != nil {
		return nil, err
	}
	markDownloadedItems(items, a.store.Get().DownloadDir)
	return items, nil
}

// DownloadEpisodes admits the downloadable subset of eps and returns how
// many tasks were submitted. Locked and already-downloaded episodes are
// filtered out before admission.
func (a *App) DownloadEpisodes(eps []model.EpisodeInfo) int {
	var tasks []download.Task
	for _, ep := range eps {
		if ep.IsLocked || ep.IsDownloaded {
			continue
		}
		tasks = append(tasks, download.NewEpisodeTask(ep))
	}
	a.download.Submit(tasks...)
	return len(tasks)
}

// DownloadAlbumPlus admits the downloadable subset of bonus-content items
// and returns how many tasks were submitted.
func (a *App) DownloadAlbumPlus(items []model.AlbumPlusItem) int {
	var tasks []download.Task
	for _, item := range items {
		if item.IsLocked || item.IsDownloaded {
			continue
		}
		tasks = append(tasks, download.NewAlbumPlusTask(item))
	}
	a.download.Submit(tasks...)
	return len(tasks)
}

// CancelDownload requests cooperative cancellation of one task.
func (a *App) CancelDownload(id int64) {
	a.download.Cancel(id)
}

// RemoveWatermark runs watermark removal over one downloaded directory.
func (a *App) RemoveWatermark(ctx context.Context, dirPath string) error {
	return a.watermark.Remove(ctx, dirPath)
}

// ShowPathInFileManager reveals a path in the platform file manager.
func (a *App) ShowPathInFileManager(path string) error {
	return ioutils.ShowPathInFileManager(path)
}

// GetUserProfile returns the logged-in user's profile, or
// bili.ErrLoginRequired when the persisted cookie is missing or stale.
func (a *App) GetUserProfile(ctx context.Context) (*model.UserProfile, error) {
	return a.client.GetUserProfile(ctx)
}

// CheckUpdate queries the release feed for versions newer than the
// running one and records the check time.
func (a *App) CheckUpdate(ctx context.Context) (*model.CheckUpdateResult, error) {
	result, err := a.client.CheckUpdate(ctx, a.version)
	if err != nil {
		return nil, err
	}
	if err := a.store.Update(func(c *config.Config) {
		c.LastUpdateCheckTS = time.Now().Unix()
	}); err != nil {
		return nil, err
	}
	return result, nil
}

func (a *App) persistToken(tok *auth.TokenBundle) error {
	return a.store.Update(func(c *config.Config) {
		if tok.UID != 0 {
			c.UID = tok.UID
		}
		if tok.AccessToken != "" {
			c.AccessToken = tok.AccessToken
		}
		if tok.Cookie != "" {
			c.Cookie = tok.Cookie
		}
	})
}

// markDownloadedEpisodes flags episodes whose output already exists under
// baseDir, in any of the supported archive forms.
func markDownloadedEpisodes(eps []model.EpisodeInfo, baseDir string) {
	for i := range eps {
		eps[i].IsDownloaded = outputExists(eps[i].DownloadDir(baseDir))
	}
}

// markDownloadedItems flags bonus-content items whose output directory
// already exists under baseDir.
func markDownloadedItems(items []model.AlbumPlusItem, baseDir string) {
	for i := range items {
		items[i].IsDownloaded = outputExists(items[i].DownloadDir(baseDir))
	}
}

func outputExists(dir string) bool {
	for _, path := range []string{dir, dir + ".zip", dir + ".cbz"} {
		if _, err := os.Stat(path); err == nil {
			return true
		}
	}
	return false
}
