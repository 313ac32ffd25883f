package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/rinshan/bilimanga-downloader/internal/model"
)

// Config holds all persisted process-wide state.
type Config struct {
	// Authenticated user
	UID         int64  `json:"uid"`
	AccessToken string `json:"access_token"`
	Cookie      string `json:"cookie"`

	// Download settings
	DownloadDir   string `json:"download_dir"`
	ArchiveFormat string `json:"archive_format"` // image, zip, cbz

	// Update check
	LastUpdateCheckTS int64 `json:"last_update_check_ts"`

	// Tuning knobs
	EpisodeConcurrency      int     `json:"episode_concurrency"`
	WatermarkConcurrency    int     `json:"watermark_concurrency"`
	ImageRetries            int     `json:"image_retries"`
	DownloadRetryCooldown   float64 `json:"download_retry_cooldown"`
	DownloadRetryExponent   float64 `json:"download_retry_exponent"`
	EpisodeDownloadInterval int     `json:"episode_download_interval"` // seconds between finished episodes
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		DownloadDir:   filepath.Join(homeDir, "Manga"),
		ArchiveFormat: model.ArchiveFormatImage.String(),

		EpisodeConcurrency:      3,
		WatermarkConcurrency:    4,
		ImageRetries:            3,
		DownloadRetryCooldown:   0.2,
		DownloadRetryExponent:   4.0,
		EpisodeDownloadInterval: 1,
	}
}

// Archive returns the parsed archive format.
func (c *Config) Archive() model.ArchiveFormat {
	return model.ParseArchiveFormat(c.ArchiveFormat)
}

// Load reads a Config from a JSON file. A missing or unparsable file yields
// the default config rather than an error, so a corrupt config never
// prevents startup.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return DefaultConfig(), nil
	}
	cfg.clampKnobs()

	return cfg, nil
}

// clampKnobs forces the tuning knobs into usable ranges. A zero or
// negative worker count would stall the errgroup pools forever.
func (c *Config) clampKnobs() {
	if c.EpisodeConcurrency < 1 {
		c.EpisodeConcurrency = 1
	}
	if c.WatermarkConcurrency < 1 {
		c.WatermarkConcurrency = 1
	}
	if c.ImageRetries < 0 {
		c.ImageRetries = 0
	}
	if c.DownloadRetryCooldown < 0 {
		c.DownloadRetryCooldown = 0
	}
	if c.DownloadRetryExponent < 1 {
		c.DownloadRetryExponent = 1
	}
	if c.EpisodeDownloadInterval < 0 {
		c.EpisodeDownloadInterval = 0
	}
}

// Save writes the Config to a JSON file, creating parent directories as
// needed.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Store owns the process-wide Config and serializes access to it.
// Every component reads through Get; the single write path is Update,
// which persists the new value before returning. Readers never observe a
// partially applied save.
type Store struct {
	mu   sync.RWMutex
	path string
	cfg  *Config
}

// NewStore loads the config at path (defaults if absent) and persists it
// back immediately, so a fresh install gets a config file on first run.
func NewStore(path string) (*Store, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Save(path); err != nil {
		return nil, err
	}
	return &Store{path: path, cfg: cfg}, nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Get returns a copy of the current config.
func (s *Store) Get() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.cfg
}

// Update applies fn to the config under the write lock and persists the
// result. If saving fails the in-memory change is kept and the error
// returned; the next successful Update writes it out.
func (s *Store) Update(fn func(*Config)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.cfg)
	return s.cfg.Save(s.path)
}

// Replace swaps the whole config, used by the save-config command which
// receives a full Config value from the caller.
func (s *Store) Replace(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = &cfg
	return s.cfg.Save(s.path)
}
