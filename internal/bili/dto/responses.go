package dto

import (
	"encoding/json"
	"time"

	"github.com/rinshan/bilimanga-downloader/internal/model"
)

// Envelope is the uniform wrapper every platform endpoint responds with.
// The manga API uses "msg", the passport API uses "message"; both carry a
// business code where 0 means success.
type Envelope struct {
	Code    int             `json:"code"`
	Msg     string          `json:"msg"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// ErrMsg returns whichever of the two message fields is populated.
func (e *Envelope) ErrMsg() string {
	if e.Msg != "" {
		return e.Msg
	}
	return e.Message
}

// JSONEpisode is one episode row in a comic detail response.
type JSONEpisode struct {
	ID         int64   `json:"id"`
	Ord        float64 `json:"ord"`
	Title      string  `json:"title"`
	ShortTitle string  `json:"short_title"`
	IsLocked   bool    `json:"is_locked"`
	PubTime    string  `json:"pub_time"`
}

// JSONComicDetail is the payload of the ComicDetail endpoint.
type JSONComicDetail struct {
	ID              int64         `json:"id"`
	Title           string        `json:"title"`
	AuthorName      []string      `json:"author_name"`
	Evaluate        string        `json:"evaluate"`
	VerticalCover   string        `json:"vertical_cover"`
	HorizontalCover string        `json:"horizontal_cover"`
	EpList          []JSONEpisode `json:"ep_list"`
}

// ToComic converts the wire shape into the domain Comic, deriving the
// per-episode archive metadata along the way.
func (jc *JSONComicDetail) ToComic() *model.Comic {
	comic := &model.Comic{
		ID:            jc.ID,
		Title:         jc.Title,
		Authors:       jc.AuthorName,
		Description:   jc.Evaluate,
		VerticalCov:   jc.VerticalCover,
		HorizontalCov: jc.HorizontalCover,
	}

	writer := ""
	if len(jc.AuthorName) > 0 {
		writer = jc.AuthorName[0]
	}

	for _, ep := range jc.EpList {
		title := episodeTitle(ep)
		info := model.EpisodeInfo{
			EpisodeID:    ep.ID,
			EpisodeTitle: title,
			ComicID:      jc.ID,
			ComicTitle:   jc.Title,
			IsLocked:     ep.IsLocked,
			ComicInfo: model.ComicInfo{
				Title:   title,
				Series:  jc.Title,
				Number:  trimTrailingZeros(ep.Ord),
				Writer:  writer,
				Summary: jc.Evaluate,
			},
		}
		if t, err := time.Parse("2006-01-02 15:04:05", ep.PubTime); err == nil {
			info.ComicInfo.Year = t.Year()
			info.ComicInfo.Month = int(t.Month())
			info.ComicInfo.Day = t.Day()
		}
		comic.Episodes = append(comic.Episodes, info)
	}

	return comic
}

// episodeTitle joins the short and long titles when both are present and
// distinct, otherwise uses whichever one is populated.
func episodeTitle(ep JSONEpisode) string {
	switch {
	case ep.Title != "" && ep.ShortTitle != "" && ep.Title != ep.ShortTitle:
		return ep.ShortTitle + " " + ep.Title
	case ep.Title != "":
		return ep.Title
	default:
		return ep.ShortTitle
	}
}

// trimTrailingZeros renders an episode ordinal without a spurious ".0":
// 5.0 -> "5", 5.5 -> "5.5".
func trimTrailingZeros(ord float64) string {
	b, _ := json.Marshal(ord)
	return string(b)
}

// JSONAlbumPlus is the payload of the GetComicAlbumPlus endpoint.
type JSONAlbumPlus struct {
	List []JSONAlbumPlusRow `json:"list"`
}

// JSONAlbumPlusRow wraps one bonus item with its access flags.
type JSONAlbumPlusRow struct {
	IsLock       bool              `json:"is_lock"`
	IsDownloaded bool              `json:"is_download"`
	Item         JSONAlbumPlusItem `json:"item"`
}

// JSONAlbumPlusItem is the bonus item itself.
type JSONAlbumPlusItem struct {
	ID    int64    `json:"id"`
	Title string   `json:"title"`
	Pic   []string `json:"pic"`
}

// ToItems converts the wire shape into domain AlbumPlusItems.
func (ja *JSONAlbumPlus) ToItems(comicID int64, comicTitle string) []model.AlbumPlusItem {
	items := make([]model.AlbumPlusItem, 0, len(ja.List))
	for _, row := range ja.List {
		items = append(items, model.AlbumPlusItem{
			ID:           row.Item.ID,
			Title:        row.Item.Title,
			ComicID:      comicID,
			ComicTitle:   comicTitle,
			IsLocked:     row.IsLock,
			IsDownloaded: row.IsDownloaded,
			Pics:         row.Item.Pic,
		})
	}
	return items
}

// JSONImageIndex is the payload of the GetImageIndex endpoint: the ordered
// list of image paths for one episode.
type JSONImageIndex struct {
	Host   string `json:"host"`
	Images []struct {
		Path string `json:"path"`
	} `json:"images"`
}

// Paths returns the raw image paths in reading order.
func (ji *JSONImageIndex) Paths() []string {
	paths := make([]string, 0, len(ji.Images))
	for _, img := range ji.Images {
		paths = append(paths, img.Path)
	}
	return paths
}

// JSONImageToken is one tokenized image URL from the ImageToken endpoint.
type JSONImageToken struct {
	URL         string `json:"url"`
	Token       string `json:"token"`
	CompleteURL string `json:"complete_url"`
}

// Complete returns the fetchable URL, assembling it from url+token when the
// endpoint did not send a precomposed one.
func (jt *JSONImageToken) Complete() string {
	if jt.CompleteURL != "" {
		return jt.CompleteURL
	}
	return jt.URL + "?token=" + jt.Token
}

// JSONSearch is the payload of the Search endpoint: comics and novels in
// one combined page.
type JSONSearch struct {
	ComicData struct {
		List []struct {
			ID            int64    `json:"id"`
			Title         string   `json:"title"`
			AuthorName    []string `json:"author_name"`
			VerticalCover string   `json:"vertical_cover"`
		} `json:"list"`
		TotalPage int `json:"total_page"`
	} `json:"comic_data"`
	NovelData struct {
		List []struct {
			NovelID int64  `json:"novel_id"`
			Title   string `json:"title"`
			VCover  string `json:"v_cover"`
		} `json:"list"`
	} `json:"novel_data"`
}

// ToSearchResult converts the wire shape into the domain result page.
func (js *JSONSearch) ToSearchResult(page int) *model.SearchResult {
	result := &model.SearchResult{
		Page:       page,
		TotalPages: js.ComicData.TotalPage,
	}
	for _, c := range js.ComicData.List {
		result.Comics = append(result.Comics, model.ComicInSearch{
			ID:     c.ID,
			Title:  c.Title,
			Author: c.AuthorName,
			Cover:  c.VerticalCover,
		})
	}
	for _, n := range js.NovelData.List {
		result.Novels = append(result.Novels, model.NovelInSearch{
			ID:    n.NovelID,
			Title: n.Title,
			Cover: n.VCover,
		})
	}
	return result
}

// JSONNav is the payload of the web nav endpoint, used for the user
// profile.
type JSONNav struct {
	IsLogin bool   `json:"isLogin"`
	Mid     int64  `json:"mid"`
	Uname   string `json:"uname"`
	Face    string `json:"face"`
}

// JSONRelease is one release entry from the update feed.
type JSONRelease struct {
	TagName    string `json:"tag_name"`
	Body       string `json:"body"`
	Prerelease bool   `json:"prerelease"`
}
