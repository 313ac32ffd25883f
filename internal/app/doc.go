// Package app assembles the application behind one command surface.
//
// App owns the long-lived pieces: the config store, the platform client,
// the login manager, the download manager and the watermark pipeline.
// Frontends call App methods for commands and subscribe to the event bus
// for progress; they never touch the underlying components directly.
package app
