// Package ioutils provides file system utilities.
//
// This package contains functions for:
//   - File writing
//   - Directory creation
//   - Revealing paths in the platform file manager
//
// # File Operations
//
//	// Write data to file
//	err := ioutils.WriteFile(ctx, "/path/to/file.txt", []byte("content"))
//
//	// Ensure directory exists
//	err := ioutils.EnsureDir("/path/to/new/directory")
//
// # Revealing Paths
//
// ShowPathInFileManager opens the platform file manager at a path, used
// to jump from a finished download to its output directory:
//
//	err := ioutils.ShowPathInFileManager("/manga/Some Comic")
package ioutils
