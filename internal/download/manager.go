package download

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rinshan/bilimanga-downloader/internal/config"
	"github.com/rinshan/bilimanga-downloader/internal/event"
	ioutils "github.com/rinshan/bilimanga-downloader/internal/io"
	"github.com/rinshan/bilimanga-downloader/internal/model"
)

// speedSampleInterval is how often the aggregate transfer rate is
// sampled and published.
const speedSampleInterval = time.Second

// Manager owns the download queue and the worker pool draining it.
//
// A task moves through pending -> start -> image success/error* -> end.
// Every admitted task produces exactly one DownloadEnd, including tasks
// canceled while still queued.
type Manager struct {
	source ImageSource
	store  *config.Store
	bus    *event.Bus

	// wake nudges Run when new tasks arrive; capacity 1 so submissions
	// coalesce instead of blocking.
	wake chan struct{}

	// bytesSampled accumulates downloaded bytes between speed samples.
	bytesSampled     atomic.Int64
	downloadedImages atomic.Int64
	totalImages      atomic.Int64
	activeTasks      atomic.Int64

	mu       sync.Mutex
	pending  []Task
	canceled map[int64]struct{}
	running  map[int64]context.CancelFunc
}

// NewManager creates a Manager. Run must be called before submitted tasks
// make progress.
func NewManager(source ImageSource, store *config.Store, bus *event.Bus) *Manager {
	return &Manager{
		source:   source,
		store:    store,
		bus:      bus,
		wake:     make(chan struct{}, 1),
		canceled: make(map[int64]struct{}),
		running:  make(map[int64]context.CancelFunc),
	}
}

// Submit admits tasks in order and returns immediately; the queue grows
// as needed, so admitting a batch larger than the worker pool never
// blocks the caller. Each task emits a DownloadPending event so observers
// can render the queue before any network activity happens.
func (m *Manager) Submit(tasks ...Task) {
	for _, t := range tasks {
		m.bus.Publish(event.DownloadPending{
			ID:           t.ID(),
			ComicTitle:   t.ComicTitle(),
			EpisodeTitle: t.Title(),
		})
	}
	m.mu.Lock()
	m.pending = append(m.pending, tasks...)
	m.mu.Unlock()
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Cancel requests cooperative cancellation of one task. A queued task ends
// before it starts; a running task stops after the image currently in
// flight. Unknown ids are ignored.
func (m *Manager) Cancel(id int64) {
	m.mu.Lock()
	m.canceled[id] = struct{}{}
	cancel := m.running[id]
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Run drains the queue with a bounded worker pool until ctx is canceled.
// It blocks; callers run it in its own goroutine. The pool size is read
// from the config once at startup.
func (m *Manager) Run(ctx context.Context) {
	go m.sampleSpeed(ctx)

	g := new(errgroup.Group)
	g.SetLimit(m.store.Get().EpisodeConcurrency)

	for {
		if ctx.Err() != nil {
			m.drain()
			g.Wait()
			return
		}
		t, ok := m.popTask()
		if !ok {
			select {
			case <-ctx.Done():
			case <-m.wake:
			}
			continue
		}
		g.Go(func() error {
			m.process(ctx, t)
			return nil
		})
	}
}

// popTask dequeues the oldest pending task.
func (m *Manager) popTask() (Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pending) == 0 {
		return Task{}, false
	}
	t := m.pending[0]
	m.pending = m.pending[1:]
	return t, true
}

// drain fails every still-queued task so no admitted task goes silent.
func (m *Manager) drain() {
	m.mu.Lock()
	rest := m.pending
	m.pending = nil
	m.mu.Unlock()
	for _, t := range rest {
		m.endWith(t.ID(), "download canceled")
	}
}

// process runs one task from start to its terminal DownloadEnd. The worker
// owns the full lifetime: URL resolution, sequential image fetches, and
// packaging.
func (m *Manager) process(ctx context.Context, t Task) {
	m.activeTasks.Add(1)
	defer m.activeTasks.Add(-1)

	if ctx.Err() != nil || m.isCanceled(t.ID()) {
		m.mu.Lock()
		delete(m.canceled, t.ID())
		m.mu.Unlock()
		m.endWith(t.ID(), "download canceled")
		return
	}

	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.mu.Lock()
	m.running[t.ID()] = cancel
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.running, t.ID())
		delete(m.canceled, t.ID())
		m.mu.Unlock()
	}()

	cfg := m.store.Get()

	urls, err := t.resolveURLs(taskCtx, m.source)
	if err != nil {
		m.endWith(t.ID(), fmt.Sprintf("resolve image urls: %s", err))
		return
	}
	if len(urls) == 0 {
		m.endWith(t.ID(), "no images to download")
		return
	}

	tempDir := t.tempDir(cfg.DownloadDir)
	if err := ioutils.EnsureDir(tempDir); err != nil {
		m.endWith(t.ID(), fmt.Sprintf("create temp dir: %s", err))
		return
	}

	m.totalImages.Add(int64(len(urls)))
	m.bus.Publish(event.DownloadStart{ID: t.ID(), Title: t.Title(), Total: len(urls)})

	current := 0
	attempted := 0
	for i, u := range urls {
		if taskCtx.Err() != nil {
			break
		}
		attempted++

		data, err := m.fetchImage(taskCtx, u, &cfg)
		if err == nil {
			err = ioutils.WriteFile(taskCtx, filepath.Join(tempDir, model.ImageFileName(i+1, u)), data)
		}
		if err != nil {
			m.bus.Publish(event.DownloadImageError{ID: t.ID(), URL: u, ErrMsg: err.Error()})
		} else {
			m.bytesSampled.Add(int64(len(data)))
			current++
			m.bus.Publish(event.DownloadImageSuccess{ID: t.ID(), URL: u, Current: current})
		}
		m.noteImageDone()
	}

	// Images never attempted must not be left in the overall total, or the
	// aggregate counters would never drain back to zero.
	if skipped := len(urls) - attempted; skipped > 0 {
		m.totalImages.Add(int64(-skipped))
	}

	if taskCtx.Err() != nil {
		m.endWith(t.ID(), fmt.Sprintf("download canceled after %d of %d images", current, len(urls)))
		return
	}
	if current != len(urls) {
		// The temp directory is kept so a later retry resumes the rename
		// scheme cleanly; its prefix marks it as incomplete.
		m.endWith(t.ID(), fmt.Sprintf("%d of %d images failed to download", len(urls)-current, len(urls)))
		return
	}

	if err := m.packageTask(t, tempDir, &cfg); err != nil {
		m.endWith(t.ID(), fmt.Sprintf("package download: %s", err))
		return
	}
	m.bus.Publish(event.DownloadEnd{ID: t.ID()})

	// Pause between finished tasks to stay polite to the image hosts.
	if cfg.EpisodeDownloadInterval > 0 {
		select {
		case <-time.After(time.Duration(cfg.EpisodeDownloadInterval) * time.Second):
		case <-ctx.Done():
		}
	}
}

// fetchImage downloads and, if needed, deobfuscates one image, retrying
// transient failures with exponential backoff.
func (m *Manager) fetchImage(ctx context.Context, rawURL string, cfg *config.Config) ([]byte, error) {
	var lastErr error
	for try := 0; ; try++ {
		data, err := m.source.DownloadImage(ctx, rawURL)
		if err == nil {
			return deobfuscateImage(data, rawURL)
		}
		lastErr = err
		if try >= cfg.ImageRetries || ctx.Err() != nil {
			return nil, lastErr
		}
		if err := waitForRetry(ctx, cfg, try); err != nil {
			return nil, lastErr
		}
	}
}

// waitForRetry sleeps cooldown * exponent^tries seconds or until ctx is
// canceled.
func waitForRetry(ctx context.Context, cfg *config.Config, tries int) error {
	delay := cfg.DownloadRetryCooldown * math.Pow(cfg.DownloadRetryExponent, float64(tries))
	select {
	case <-time.After(time.Duration(delay * float64(time.Second))):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// noteImageDone advances the aggregate progress counters and publishes an
// OverallProgress snapshot. Once every admitted image is accounted for the
// counters reset, so the next batch starts from a fresh 0%.
func (m *Manager) noteImageDone() {
	done := m.downloadedImages.Add(1)
	total := m.totalImages.Load()
	if total == 0 {
		return
	}
	m.bus.Publish(event.OverallProgress{
		DownloadedImageCount: int(done),
		TotalImageCount:      int(total),
		Percentage:           float64(done) / float64(total) * 100,
	})
	if done == total {
		m.downloadedImages.Store(0)
		m.totalImages.Store(0)
	}
}

// sampleSpeed publishes the aggregate transfer rate once per interval
// while at least one task is active, resetting the byte counter on every
// sample. An idle manager stays silent.
func (m *Manager) sampleSpeed(ctx context.Context) {
	ticker := time.NewTicker(speedSampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			bytes := m.bytesSampled.Swap(0)
			if bytes == 0 && m.activeTasks.Load() == 0 {
				continue
			}
			m.bus.Publish(event.DownloadSpeed{
				Speed: fmt.Sprintf("%.2f MB/s", float64(bytes)/1024/1024),
			})
		}
	}
}

func (m *Manager) isCanceled(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.canceled[id]
	return ok
}

func (m *Manager) endWith(id int64, errMsg string) {
	m.bus.Publish(event.DownloadEnd{ID: id, ErrMsg: &errMsg})
}
