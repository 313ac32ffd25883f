// Package config provides configuration management for bilimanga-downloader.
//
// This package handles:
//   - Loading and saving the config from a JSON file
//   - Default configuration values
//   - Serialized concurrent access through Store
//
// # Default Config
//
// Use DefaultConfig() to get sensible defaults:
//
//	cfg := config.DefaultConfig()
//	// Downloads to ~/Manga
//	// 3 concurrent episode downloads
//	// image archive format
//
// # Loading from File
//
//	cfg, err := config.Load("/path/to/config.json")
//	// Missing or unparsable files fall back to defaults
//
// # Store
//
// Store owns the process-wide Config. Reads return a copy, writes go
// through Update and are persisted before Update returns:
//
//	store, _ := config.NewStore(path)
//	cfg := store.Get()
//	store.Update(func(c *config.Config) {
//	    c.DownloadDir = "/mnt/manga"
//	})
package config
