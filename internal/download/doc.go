// Package download orchestrates concurrent episode and bonus-content
// downloads.
//
// Tasks are admitted through Submit and drained by a bounded worker pool
// started with Run. One worker owns one task for its full lifetime:
// resolving image URLs, fetching the images sequentially with retries,
// deobfuscating paid-content payloads, and packaging the result into the
// configured archive format.
//
// Progress is reported through the typed event bus. Per task the sequence
// is pending, start, one success or error per image, then exactly one end
// event whose error message is nil iff everything succeeded. Aggregate
// transfer speed and overall image progress are published alongside.
//
// Images are written into a hidden temp directory next to the final
// output and swapped into place only on full success, so a crash or
// cancellation never leaves a partial result that looks complete.
package download
