package download

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rinshan/bilimanga-downloader/internal/config"
	"github.com/rinshan/bilimanga-downloader/internal/event"
	"github.com/rinshan/bilimanga-downloader/internal/model"
)

// fakeSource serves image bytes from memory. fail maps a URL to how many
// times it should error before succeeding; -1 means always fail. A
// non-zero delay makes every fetch take that long.
type fakeSource struct {
	mu     sync.Mutex
	index  map[int64][]string
	images map[string][]byte
	fail   map[string]int
	delay  time.Duration
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		index:  make(map[int64][]string),
		images: make(map[string][]byte),
		fail:   make(map[string]int),
	}
}

// addEpisode registers an episode with n fetchable images.
func (f *fakeSource) addEpisode(id int64, n int) {
	var paths []string
	for i := 1; i <= n; i++ {
		u := fmt.Sprintf("https://img.example/ep%d/%d.jpg", id, i)
		paths = append(paths, u)
		f.images[u] = []byte(fmt.Sprintf("image-%d-%d", id, i))
	}
	f.index[id] = paths
}

func (f *fakeSource) GetImageIndex(ctx context.Context, episodeID int64) ([]string, error) {
	paths, ok := f.index[episodeID]
	if !ok {
		return nil, errors.New("no such episode")
	}
	return paths, nil
}

func (f *fakeSource) GetImageTokens(ctx context.Context, urls []string) ([]string, error) {
	return urls, nil
}

func (f *fakeSource) DownloadImage(ctx context.Context, url string) ([]byte, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if n := f.fail[url]; n != 0 {
		if n > 0 {
			f.fail[url]--
		}
		return nil, errors.New("503 from image host")
	}
	data, ok := f.images[url]
	if !ok {
		return nil, errors.New("404 from image host")
	}
	return data, nil
}

// newTestManager wires a manager over a throwaway download directory with
// fast retry timing.
func newTestManager(t *testing.T, src ImageSource, format string) (*Manager, *event.Bus, string) {
	t.Helper()

	dir := t.TempDir()
	downloadDir := filepath.Join(dir, "downloads")

	store, err := config.NewStore(filepath.Join(dir, "config.json"))
	if err != nil {
		t.Fatal(err)
	}
	err = store.Update(func(c *config.Config) {
		c.DownloadDir = downloadDir
		c.ArchiveFormat = format
		c.EpisodeConcurrency = 1
		c.ImageRetries = 1
		c.DownloadRetryCooldown = 0.001
		c.DownloadRetryExponent = 1
		c.EpisodeDownloadInterval = 0
	})
	if err != nil {
		t.Fatal(err)
	}

	bus := event.NewBus()
	return NewManager(src, store, bus), bus, downloadDir
}

// collectUntilEnds reads events until the given number of DownloadEnd
// events has been observed.
func collectUntilEnds(t *testing.T, ch <-chan event.Event, ends int) []event.Event {
	t.Helper()

	var events []event.Event
	seen := 0
	timeout := time.After(5 * time.Second)
	for seen < ends {
		select {
		case ev := <-ch:
			events = append(events, ev)
			if _, ok := ev.(event.DownloadEnd); ok {
				seen++
			}
		case <-timeout:
			t.Fatalf("timed out after %d of %d end events; got %d events so far", seen, ends, len(events))
		}
	}
	return events
}

func episodeTask(id int64) Task {
	return NewEpisodeTask(model.EpisodeInfo{
		EpisodeID:    id,
		EpisodeTitle: fmt.Sprintf("Chapter %d", id),
		ComicID:      9,
		ComicTitle:   "Test Comic",
		ComicInfo:    model.ComicInfo{Title: fmt.Sprintf("Chapter %d", id), Series: "Test Comic"},
	})
}

func TestManager_DownloadEpisode(t *testing.T) {
	src := newFakeSource()
	src.addEpisode(1, 3)
	m, bus, downloadDir := newTestManager(t, src, "image")

	ch := bus.Subscribe()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	m.Submit(episodeTask(1))
	events := collectUntilEnds(t, ch, 1)

	var pending, start, success int
	for _, ev := range events {
		switch ev := ev.(type) {
		case event.DownloadPending:
			pending++
		case event.DownloadStart:
			start++
			if ev.Total != 3 {
				t.Errorf("start Total = %d, want 3", ev.Total)
			}
		case event.DownloadImageSuccess:
			success++
			if ev.Current != success {
				t.Errorf("success Current = %d, want %d", ev.Current, success)
			}
		case event.DownloadImageError:
			t.Errorf("unexpected image error: %s", ev.ErrMsg)
		case event.DownloadEnd:
			if ev.ErrMsg != nil {
				t.Errorf("end ErrMsg = %q, want nil", *ev.ErrMsg)
			}
		}
	}
	if pending != 1 || start != 1 || success != 3 {
		t.Errorf("pending/start/success = %d/%d/%d, want 1/1/3", pending, start, success)
	}

	finalDir := filepath.Join(downloadDir, "Test Comic", "Chapter 1")
	for i := 1; i <= 3; i++ {
		data, err := os.ReadFile(filepath.Join(finalDir, fmt.Sprintf("%03d.jpg", i)))
		if err != nil {
			t.Fatalf("missing image %d: %v", i, err)
		}
		if want := fmt.Sprintf("image-1-%d", i); string(data) != want {
			t.Errorf("image %d = %q, want %q", i, data, want)
		}
	}
	if _, err := os.Stat(filepath.Join(downloadDir, "Test Comic", ".downloading-Chapter 1")); !os.IsNotExist(err) {
		t.Error("temp dir should be gone after a successful download")
	}
}

func TestManager_PartialFailureMarksTaskFailed(t *testing.T) {
	src := newFakeSource()
	src.addEpisode(1, 3)
	src.addEpisode(2, 3)
	src.fail["https://img.example/ep2/2.jpg"] = -1
	m, bus, downloadDir := newTestManager(t, src, "image")

	ch := bus.Subscribe()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	m.Submit(episodeTask(1), episodeTask(2))
	events := collectUntilEnds(t, ch, 2)

	var success, imgErrs int
	ends := make(map[int64]*string)
	for _, ev := range events {
		switch ev := ev.(type) {
		case event.DownloadImageSuccess:
			success++
		case event.DownloadImageError:
			imgErrs++
		case event.DownloadEnd:
			ends[ev.ID] = ev.ErrMsg
		}
	}
	if success != 5 || imgErrs != 1 {
		t.Errorf("success/errors = %d/%d, want 5/1", success, imgErrs)
	}
	if msg, ok := ends[1]; !ok || msg != nil {
		t.Errorf("task 1 end = %v, want nil error", msg)
	}
	if msg, ok := ends[2]; !ok || msg == nil {
		t.Error("task 2 should end with an error message")
	}

	// The failed task keeps its marked temp dir and produces no final dir.
	if _, err := os.Stat(filepath.Join(downloadDir, "Test Comic", "Chapter 2")); !os.IsNotExist(err) {
		t.Error("failed task must not produce a final directory")
	}
	if _, err := os.Stat(filepath.Join(downloadDir, "Test Comic", ".downloading-Chapter 2")); err != nil {
		t.Errorf("failed task should keep its temp dir: %v", err)
	}
}

func TestManager_ZeroImagesIsTaskError(t *testing.T) {
	src := newFakeSource()
	src.index[1] = nil
	m, bus, _ := newTestManager(t, src, "image")

	ch := bus.Subscribe()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	m.Submit(episodeTask(1))
	events := collectUntilEnds(t, ch, 1)

	for _, ev := range events {
		switch ev := ev.(type) {
		case event.DownloadStart:
			t.Error("an empty task must not emit a start event")
		case event.DownloadEnd:
			if ev.ErrMsg == nil {
				t.Error("an empty task must end with an error, not a silent empty result")
			}
		}
	}
}

func TestManager_RetryRecoversFromTransientFailure(t *testing.T) {
	src := newFakeSource()
	src.addEpisode(1, 1)
	src.fail["https://img.example/ep1/1.jpg"] = 1
	m, bus, _ := newTestManager(t, src, "image")

	ch := bus.Subscribe()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	m.Submit(episodeTask(1))
	events := collectUntilEnds(t, ch, 1)

	for _, ev := range events {
		switch ev := ev.(type) {
		case event.DownloadImageError:
			t.Errorf("retried fetch should not surface an image error: %s", ev.ErrMsg)
		case event.DownloadEnd:
			if ev.ErrMsg != nil {
				t.Errorf("end ErrMsg = %q, want nil", *ev.ErrMsg)
			}
		}
	}
}

func TestManager_CancelQueuedTask(t *testing.T) {
	src := newFakeSource()
	src.addEpisode(1, 1)
	m, bus, _ := newTestManager(t, src, "image")

	ch := bus.Subscribe()
	m.Submit(episodeTask(1))
	m.Cancel(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	events := collectUntilEnds(t, ch, 1)
	for _, ev := range events {
		switch ev := ev.(type) {
		case event.DownloadStart:
			t.Error("a canceled queued task must not start")
		case event.DownloadEnd:
			if ev.ErrMsg == nil {
				t.Error("a canceled task must end with an error message")
			}
		}
	}
}

func TestManager_OverallProgressReachesFullAndResets(t *testing.T) {
	src := newFakeSource()
	src.addEpisode(1, 2)
	m, bus, _ := newTestManager(t, src, "image")

	ch := bus.Subscribe(event.KindOverallProgress, event.KindDownloadEnd)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	m.Submit(episodeTask(1))
	events := collectUntilEnds(t, ch, 1)

	var last *event.OverallProgress
	for _, ev := range events {
		if p, ok := ev.(event.OverallProgress); ok {
			last = &p
		}
	}
	if last == nil {
		t.Fatal("no overall progress published")
	}
	if last.DownloadedImageCount != last.TotalImageCount || last.Percentage != 100 {
		t.Errorf("final progress = %+v, want complete", *last)
	}

	// After completion the counters reset; a new batch starts fresh.
	src.addEpisode(2, 1)
	m.Submit(episodeTask(2))
	events = collectUntilEnds(t, ch, 1)
	for _, ev := range events {
		if p, ok := ev.(event.OverallProgress); ok {
			if p.TotalImageCount != 1 {
				t.Errorf("next batch total = %d, want 1", p.TotalImageCount)
			}
		}
	}
}

func TestManager_SubmitLargeBatchReturnsImmediately(t *testing.T) {
	src := newFakeSource()
	m, _, _ := newTestManager(t, src, "image")

	const batch = 200
	tasks := make([]Task, 0, batch)
	for i := 1; i <= batch; i++ {
		tasks = append(tasks, episodeTask(int64(i)))
	}

	// No workers are running yet; admission must still not block.
	done := make(chan struct{})
	go func() {
		m.Submit(tasks...)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Submit blocked on a large batch with no workers running")
	}

	m.mu.Lock()
	queued := len(m.pending)
	m.mu.Unlock()
	if queued != batch {
		t.Errorf("queued %d tasks, want %d", queued, batch)
	}
}

func TestManager_SpeedSamplerSilentWhenIdle(t *testing.T) {
	src := newFakeSource()
	m, bus, _ := newTestManager(t, src, "image")

	ch := bus.Subscribe(event.KindDownloadSpeed)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	select {
	case ev := <-ch:
		t.Fatalf("idle manager published %+v", ev)
	case <-time.After(2500 * time.Millisecond):
	}
}

func TestManager_SpeedSamplerPublishesWhileActive(t *testing.T) {
	src := newFakeSource()
	src.addEpisode(1, 1)
	src.delay = 1200 * time.Millisecond
	m, bus, _ := newTestManager(t, src, "image")

	ch := bus.Subscribe(event.KindDownloadSpeed)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	m.Submit(episodeTask(1))
	select {
	case <-ch:
	case <-time.After(3 * time.Second):
		t.Fatal("no speed sample while a download was in flight")
	}
}

func TestManager_ImageExtensionFollowsSourceURL(t *testing.T) {
	src := newFakeSource()
	u := "https://img.example/ep1/1.png?token=abc"
	src.index[1] = []string{u}
	src.images[u] = []byte("png-bytes")
	m, bus, downloadDir := newTestManager(t, src, "image")

	ch := bus.Subscribe(event.KindDownloadEnd)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	m.Submit(episodeTask(1))
	events := collectUntilEnds(t, ch, 1)
	if end := events[len(events)-1].(event.DownloadEnd); end.ErrMsg != nil {
		t.Fatalf("end ErrMsg = %q", *end.ErrMsg)
	}

	data, err := os.ReadFile(filepath.Join(downloadDir, "Test Comic", "Chapter 1", "001.png"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "png-bytes" {
		t.Errorf("image = %q", data)
	}
}

func TestManager_AlbumPlusDownloadsToExtras(t *testing.T) {
	src := newFakeSource()
	src.images["https://img.example/bonus/1.jpg"] = []byte("bonus-1")
	m, bus, downloadDir := newTestManager(t, src, "cbz")

	ch := bus.Subscribe()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	m.Submit(NewAlbumPlusTask(model.AlbumPlusItem{
		ID:         42,
		Title:      "Artbook",
		ComicID:    9,
		ComicTitle: "Test Comic",
		Pics:       []string{"https://img.example/bonus/1.jpg"},
	}))
	events := collectUntilEnds(t, ch, 1)
	for _, ev := range events {
		if end, ok := ev.(event.DownloadEnd); ok && end.ErrMsg != nil {
			t.Fatalf("end ErrMsg = %q", *end.ErrMsg)
		}
	}

	// Bonus content stays a plain directory even under an archive format.
	data, err := os.ReadFile(filepath.Join(downloadDir, "Test Comic", "extras", "Artbook", "001.jpg"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "bonus-1" {
		t.Errorf("image = %q", data)
	}
}

func TestManager_CbzPackagingEmbedsComicInfo(t *testing.T) {
	src := newFakeSource()
	src.addEpisode(1, 2)
	m, bus, downloadDir := newTestManager(t, src, "cbz")

	ch := bus.Subscribe(event.KindDownloadEnd)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	m.Submit(episodeTask(1))
	events := collectUntilEnds(t, ch, 1)
	if end := events[len(events)-1].(event.DownloadEnd); end.ErrMsg != nil {
		t.Fatalf("end ErrMsg = %q", *end.ErrMsg)
	}

	archivePath := filepath.Join(downloadDir, "Test Comic", "Chapter 1.cbz")
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		t.Fatal(err)
	}
	defer zr.Close()

	names := make(map[string]bool)
	var info model.ComicInfo
	for _, f := range zr.File {
		names[f.Name] = true
		if f.Name == "ComicInfo.xml" {
			r, err := f.Open()
			if err != nil {
				t.Fatal(err)
			}
			if err := xml.NewDecoder(r).Decode(&info); err != nil {
				t.Fatal(err)
			}
			r.Close()
		}
	}
	for _, want := range []string{"001.jpg", "002.jpg", "ComicInfo.xml"} {
		if !names[want] {
			t.Errorf("archive missing %s", want)
		}
	}
	if info.Series != "Test Comic" || info.PageCount != 2 {
		t.Errorf("ComicInfo = %+v", info)
	}

	if _, err := os.Stat(filepath.Join(downloadDir, "Test Comic", ".downloading-Chapter 1")); !os.IsNotExist(err) {
		t.Error("temp dir should be removed after packaging")
	}
}
