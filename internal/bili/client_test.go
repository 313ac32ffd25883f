package bili

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rinshan/bilimanga-downloader/internal/config"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store, err := config.NewStore(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatal(err)
	}

	client := NewClient(store)
	client.MangaBase = srv.URL
	client.PassportBase = srv.URL
	client.APIBase = srv.URL
	client.ReleaseFeed = srv.URL + "/releases"
	return client, srv
}

func TestClient_GetComic(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "ComicDetail") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req["comic_id"].(float64) != 27189 {
			t.Errorf("comic_id = %v, want 27189", req["comic_id"])
		}

		w.Write([]byte(`{
			"code": 0, "msg": "",
			"data": {
				"id": 27189,
				"title": "Some Comic",
				"author_name": ["Author A"],
				"evaluate": "synopsis",
				"ep_list": [
					{"id": 1001, "ord": 1, "title": "The Beginning", "short_title": "1", "is_locked": false, "pub_time": "2023-05-15 12:00:00"},
					{"id": 1002, "ord": 2, "title": "", "short_title": "2", "is_locked": true, "pub_time": ""}
				]
			}
		}`))
	}))

	comic, err := client.GetComic(context.Background(), 27189)
	if err != nil {
		t.Fatalf("GetComic() error = %v", err)
	}

	if comic.Title != "Some Comic" || len(comic.Episodes) != 2 {
		t.Fatalf("got %+v", comic)
	}

	ep := comic.Episodes[0]
	if ep.EpisodeID != 1001 || ep.EpisodeTitle != "1 The Beginning" || ep.IsLocked {
		t.Errorf("episode 0 = %+v", ep)
	}
	if ep.ComicInfo.Series != "Some Comic" || ep.ComicInfo.Writer != "Author A" {
		t.Errorf("comic info = %+v", ep.ComicInfo)
	}
	if ep.ComicInfo.Year != 2023 || ep.ComicInfo.Month != 5 || ep.ComicInfo.Day != 15 {
		t.Errorf("comic info date = %+v", ep.ComicInfo)
	}

	if !comic.Episodes[1].IsLocked {
		t.Error("episode 1 should be locked")
	}
	if comic.Episodes[1].EpisodeTitle != "2" {
		t.Errorf("episode 1 title = %q, want short title fallback", comic.Episodes[1].EpisodeTitle)
	}
}

func TestClient_NonZeroCodeIsRemoteServiceError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code": 403, "msg": "not allowed", "data": null}`))
	}))

	_, err := client.GetComic(context.Background(), 1)
	var remoteErr *RemoteServiceError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("error = %v, want *RemoteServiceError", err)
	}
	if remoteErr.Code != 403 || remoteErr.Msg != "not allowed" {
		t.Errorf("got %+v", remoteErr)
	}
}

func TestClient_GetImageTokens(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"code": 0, "msg": "",
			"data": [
				{"url": "https://cdn.example.com/a.jpg", "token": "t1"},
				{"url": "", "token": "", "complete_url": "https://cdn.example.com/b.jpg?token=t2"}
			]
		}`))
	}))

	urls, err := client.GetImageTokens(context.Background(), []string{"/a.jpg", "/b.jpg"})
	if err != nil {
		t.Fatalf("GetImageTokens() error = %v", err)
	}

	want := []string{
		"https://cdn.example.com/a.jpg?token=t1",
		"https://cdn.example.com/b.jpg?token=t2",
	}
	if len(urls) != len(want) {
		t.Fatalf("got %d urls, want %d", len(urls), len(want))
	}
	for i := range want {
		if urls[i] != want[i] {
			t.Errorf("urls[%d] = %q, want %q", i, urls[i], want[i])
		}
	}
}

func TestClient_PollAppQrcode_PendingIsNotAnError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code": 86101, "message": "not scanned", "data": null}`))
	}))

	code, poll, err := client.PollAppQrcode(context.Background(), "abc")
	if err != nil {
		t.Fatalf("PollAppQrcode() error = %v", err)
	}
	if code != 86101 || poll != nil {
		t.Errorf("got code=%d poll=%v", code, poll)
	}
}

func TestClient_PollAppQrcode_Confirmed(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		for _, key := range []string{"auth_code", "appkey", "ts", "sign"} {
			if r.PostForm.Get(key) == "" {
				t.Errorf("form field %q missing", key)
			}
		}
		w.Write([]byte(`{
			"code": 0, "message": "",
			"data": {
				"mid": 42,
				"access_token": "at",
				"refresh_token": "rt",
				"cookie_info": {"cookies": [{"name": "SESSDATA", "value": "s"}, {"name": "bili_jct", "value": "j"}]}
			}
		}`))
	}))

	code, poll, err := client.PollAppQrcode(context.Background(), "abc")
	if err != nil {
		t.Fatalf("PollAppQrcode() error = %v", err)
	}
	if code != 0 || poll == nil {
		t.Fatalf("got code=%d poll=%v", code, poll)
	}
	if poll.Mid != 42 || poll.AccessToken != "at" {
		t.Errorf("poll = %+v", poll)
	}
	if got, want := poll.Cookie(), "SESSDATA=s; bili_jct=j"; got != want {
		t.Errorf("Cookie() = %q, want %q", got, want)
	}
}

func TestClient_PollWebQrcode_InnerCode(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if key := r.URL.Query().Get("qrcode_key"); key != "k1" {
			t.Errorf("qrcode_key = %q", key)
		}
		w.Write([]byte(`{
			"code": 0, "message": "",
			"data": {"url": "", "refresh_token": "", "timestamp": 0, "code": 86090, "message": "scanned"}
		}`))
	}))

	poll, err := client.PollWebQrcode(context.Background(), "k1")
	if err != nil {
		t.Fatalf("PollWebQrcode() error = %v", err)
	}
	if poll.Code != 86090 {
		t.Errorf("inner code = %d, want 86090", poll.Code)
	}
}

func TestClient_GetUserProfile_NotLoggedIn(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code": -101, "message": "not logged in", "data": {"isLogin": false}}`))
	}))

	_, err := client.GetUserProfile(context.Background())
	if !errors.Is(err, ErrLoginRequired) {
		t.Errorf("error = %v, want ErrLoginRequired", err)
	}
}

func TestClient_CheckUpdate(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"tag_name": "v1.2.0", "body": "fixes"},
			{"tag_name": "v1.1.0", "body": "[important] security fix"},
			{"tag_name": "v1.0.0", "body": "old"},
			{"tag_name": "v2.0.0-pre", "body": "wip", "prerelease": true}
		]`))
	}))

	result, err := client.CheckUpdate(context.Background(), "v1.0.0")
	if err != nil {
		t.Fatalf("CheckUpdate() error = %v", err)
	}
	if len(result.NormalVersions) != 1 || result.NormalVersions[0].Name != "v1.2.0" {
		t.Errorf("normal = %+v", result.NormalVersions)
	}
	if len(result.ImportantVersions) != 1 || result.ImportantVersions[0].Name != "v1.1.0" {
		t.Errorf("important = %+v", result.ImportantVersions)
	}
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"v1.0.0", "v1.0.0", 0},
		{"1.0.0", "v1.0.0", 0},
		{"v1.2.0", "v1.10.0", -1},
		{"v2.0.0", "v1.9.9", 1},
		{"v1.0", "v1.0.1", -1},
		{"v1.0.1", "v1.0", 1},
	}

	for _, tt := range tests {
		t.Run(tt.a+"_vs_"+tt.b, func(t *testing.T) {
			if got := compareVersions(tt.a, tt.b); got != tt.want {
				t.Errorf("compareVersions(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestSignParams(t *testing.T) {
	a := signParams(url.Values{"local_id": {"0"}}, 1700000000)
	b := signParams(url.Values{"local_id": {"0"}}, 1700000000)

	if a.Get("appkey") == "" || a.Get("ts") != "1700000000" {
		t.Fatalf("signed params = %v", a)
	}
	if len(a.Get("sign")) != 32 {
		t.Errorf("sign length = %d, want 32 hex chars", len(a.Get("sign")))
	}
	if a.Get("sign") != b.Get("sign") {
		t.Error("signature should be deterministic for identical input")
	}

	c := signParams(url.Values{"local_id": {"0"}}, 1700000001)
	if c.Get("sign") == a.Get("sign") {
		t.Error("signature should change with the timestamp")
	}
}
