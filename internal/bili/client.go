package bili

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rinshan/bilimanga-downloader/internal/bili/dto"
	"github.com/rinshan/bilimanga-downloader/internal/config"
	"github.com/rinshan/bilimanga-downloader/internal/http"
	"github.com/rinshan/bilimanga-downloader/internal/model"
)

// Client wraps the platform's HTTP API: catalog search and detail, image
// index/token resolution, the qrcode login endpoints, the user profile and
// the update feed.
//
// Client is stateless between calls; the authenticated cookie is read from
// the config store per request so a login taking effect mid-session is
// picked up without rebuilding anything.
type Client struct {
	http  *http.Client
	store *config.Store

	// Endpoint bases, overridable in tests.
	MangaBase    string
	PassportBase string
	APIBase      string
	ReleaseFeed  string
}

// NewClient creates a Client reading credentials from store.
func NewClient(store *config.Store) *Client {
	return &Client{
		http:         http.NewClient(),
		store:        store,
		MangaBase:    "https://manga.bilibili.com",
		PassportBase: "https://passport.bilibili.com",
		APIBase:      "https://api.bilibili.com",
		ReleaseFeed:  "https://api.github.com/repos/rinshan/bilimanga-downloader/releases",
	}
}

func (c *Client) cookie() string {
	return c.store.Get().Cookie
}

// twirp issues a JSON POST against the manga API and unwraps the envelope.
func (c *Client) twirp(ctx context.Context, method string, reqBody any) (json.RawMessage, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/twirp/comic.v1.Comic/%s?device=pc&platform=web", c.MangaBase, method)
	body, err := c.http.PostJSON(ctx, url, payload, http.WithCookie(c.cookie()))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return unwrap(body)
}

// unwrap decodes the response envelope, converting a non-zero business
// code into a RemoteServiceError.
func unwrap(body []byte) (json.RawMessage, error) {
	var env dto.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode response envelope: %w", err)
	}
	if env.Code != 0 {
		return nil, &RemoteServiceError{Code: env.Code, Msg: env.ErrMsg()}
	}
	return env.Data, nil
}

// Search queries the combined comic+novel search endpoint.
func (c *Client) Search(ctx context.Context, keyword string, page int) (*model.SearchResult, error) {
	data, err := c.twirp(ctx, "Search", map[string]any{
		"key_word":  keyword,
		"page_num":  page,
		"page_size": 9,
	})
	if err != nil {
		return nil, err
	}

	var search dto.JSONSearch
	if err := json.Unmarshal(data, &search); err != nil {
		return nil, fmt.Errorf("decode search result: %w", err)
	}
	return search.ToSearchResult(page), nil
}

// GetComic fetches a comic's detail, including its full episode list.
// Already-downloaded flags are left false; the caller overlays them from
// the filesystem.
func (c *Client) GetComic(ctx context.Context, comicID int64) (*model.Comic, error) {
	data, err := c.twirp(ctx, "ComicDetail", map[string]any{"comic_id": comicID})
	if err != nil {
		return nil, err
	}

	var detail dto.JSONComicDetail
	if err := json.Unmarshal(data, &detail); err != nil {
		return nil, fmt.Errorf("decode comic detail: %w", err)
	}
	return detail.ToComic(), nil
}

// GetAlbumPlus fetches a comic's paid bonus-content list.
func (c *Client) GetAlbumPlus(ctx context.Context, comicID int64) ([]model.AlbumPlusItem, error) {
	comic, err := c.GetComic(ctx, comicID)
	if err != nil {
		return nil, err
	}

	data, err := c.twirp(ctx, "GetComicAlbumPlus", map[string]any{"comic_id": comicID})
	if err != nil {
		return nil, err
	}

	var album dto.JSONAlbumPlus
	if err := json.Unmarshal(data, &album); err != nil {
		return nil, fmt.Errorf("decode album plus: %w", err)
	}
	return album.ToItems(comicID, comic.Title), nil
}

// GetImageIndex resolves an episode to its ordered raw image paths.
func (c *Client) GetImageIndex(ctx context.Context, episodeID int64) ([]string, error) {
	data, err := c.twirp(ctx, "GetImageIndex", map[string]any{"ep_id": episodeID})
	if err != nil {
		return nil, err
	}

	var index dto.JSONImageIndex
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("decode image index: %w", err)
	}
	return index.Paths(), nil
}

// GetImageTokens exchanges raw image paths for fetchable tokenized URLs,
// preserving order.
func (c *Client) GetImageTokens(ctx context.Context, urls []string) ([]string, error) {
	urlsJSON, err := json.Marshal(urls)
	if err != nil {
		return nil, err
	}

	data, err := c.twirp(ctx, "ImageToken", map[string]any{"urls": string(urlsJSON)})
	if err != nil {
		return nil, err
	}

	var tokens []dto.JSONImageToken
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, fmt.Errorf("decode image tokens: %w", err)
	}

	complete := make([]string, 0, len(tokens))
	for _, t := range tokens {
		complete = append(complete, t.Complete())
	}
	return complete, nil
}

// DownloadImage fetches one image's bytes.
func (c *Client) DownloadImage(ctx context.Context, url string) ([]byte, error) {
	return c.http.DownloadBytes(ctx, url)
}

// GetUserProfile returns the authenticated user's profile, or
// ErrLoginRequired when the configured cookie is missing or stale.
func (c *Client) GetUserProfile(ctx context.Context) (*model.UserProfile, error) {
	body, err := c.http.Get(ctx, c.APIBase+"/x/web-interface/nav", http.WithCookie(c.cookie()))
	if err != nil {
		return nil, err
	}

	var env dto.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode nav envelope: %w", err)
	}

	var nav dto.JSONNav
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &nav); err != nil {
			return nil, fmt.Errorf("decode nav: %w", err)
		}
	}
	// The nav endpoint reports code -101 with isLogin=false when the
	// cookie is invalid; treat both signals the same way.
	if env.Code != 0 || !nav.IsLogin {
		return nil, ErrLoginRequired
	}

	return &model.UserProfile{UID: nav.Mid, Name: nav.Uname, Avatar: nav.Face}, nil
}

// CheckUpdate fetches the release feed and splits versions newer than
// current into normal and important ones. A release whose notes carry the
// "[important]" marker must not be skipped by the user.
func (c *Client) CheckUpdate(ctx context.Context, current string) (*model.CheckUpdateResult, error) {
	body, err := c.http.Get(ctx, c.ReleaseFeed)
	if err != nil {
		return nil, err
	}

	var releases []dto.JSONRelease
	if err := json.Unmarshal(body, &releases); err != nil {
		return nil, fmt.Errorf("decode release feed: %w", err)
	}

	result := &model.CheckUpdateResult{}
	for _, rel := range releases {
		if rel.Prerelease || compareVersions(rel.TagName, current) <= 0 {
			continue
		}
		v := model.Version{Name: rel.TagName, Content: rel.Body}
		if strings.Contains(rel.Body, "[important]") {
			result.ImportantVersions = append(result.ImportantVersions, v)
		} else {
			result.NormalVersions = append(result.NormalVersions, v)
		}
	}
	return result, nil
}
