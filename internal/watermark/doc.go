// Package watermark removes the platform's watermark band from
// downloaded images, in place.
//
// A job covers one directory. Images are processed concurrently by a
// bounded pool; progress is reported through the typed event bus as
// start, one success or error per image, and exactly one end event. The
// pluggable Transformer decides how a single image is rewritten, with
// BandRemover as the default.
package watermark
