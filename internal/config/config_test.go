package config

import (
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(cfg, DefaultConfig()) {
		t.Errorf("Load() = %+v, want defaults", cfg)
	}
}

func TestLoad_UnparsableFileReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(cfg, DefaultConfig()) {
		t.Errorf("Load() = %+v, want defaults", cfg)
	}
}

func TestLoad_ClampsBrokenKnobs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	raw := `{
		"episode_concurrency": 0,
		"watermark_concurrency": -2,
		"image_retries": -1,
		"download_retry_cooldown": -0.5,
		"download_retry_exponent": 0,
		"episode_download_interval": -3
	}`
	if err := os.WriteFile(path, []byte(raw), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.EpisodeConcurrency != 1 {
		t.Errorf("EpisodeConcurrency = %d, want clamped to 1", cfg.EpisodeConcurrency)
	}
	if cfg.WatermarkConcurrency != 1 {
		t.Errorf("WatermarkConcurrency = %d, want clamped to 1", cfg.WatermarkConcurrency)
	}
	if cfg.ImageRetries != 0 {
		t.Errorf("ImageRetries = %d, want clamped to 0", cfg.ImageRetries)
	}
	if cfg.DownloadRetryCooldown != 0 {
		t.Errorf("DownloadRetryCooldown = %v, want clamped to 0", cfg.DownloadRetryCooldown)
	}
	if cfg.DownloadRetryExponent != 1 {
		t.Errorf("DownloadRetryExponent = %v, want clamped to 1", cfg.DownloadRetryExponent)
	}
	if cfg.EpisodeDownloadInterval != 0 {
		t.Errorf("EpisodeDownloadInterval = %d, want clamped to 0", cfg.EpisodeDownloadInterval)
	}
}

func TestConfig_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json")

	cfg := DefaultConfig()
	cfg.UID = 12345
	cfg.AccessToken = "token"
	cfg.DownloadDir = "/mnt/manga"
	cfg.ArchiveFormat = "cbz"

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(loaded, cfg) {
		t.Errorf("round trip: got %+v, want %+v", loaded, cfg)
	}
}

func TestStore_GetIsIdempotent(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	a := store.Get()
	b := store.Get()
	if !reflect.DeepEqual(a, b) {
		t.Errorf("consecutive Get() differ: %+v vs %+v", a, b)
	}
}

func TestStore_UpdatePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	if err := store.Update(func(c *Config) { c.UID = 99 }); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if got := store.Get().UID; got != 99 {
		t.Errorf("Get().UID = %d, want 99", got)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.UID != 99 {
		t.Errorf("persisted UID = %d, want 99", reloaded.UID)
	}
}

func TestStore_ConcurrentReadersAndWriter(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = store.Get()
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 20; j++ {
			_ = store.Update(func(c *Config) { c.UID++ })
		}
	}()
	wg.Wait()

	if got := store.Get().UID; got != 20 {
		t.Errorf("UID = %d, want 20", got)
	}
}
