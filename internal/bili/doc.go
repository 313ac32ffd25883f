// Package bili wraps the bilibili manga platform's HTTP API.
//
// The package covers four endpoint families:
//
//  1. Catalog: Search, ComicDetail, GetComicAlbumPlus
//  2. Images: GetImageIndex, ImageToken, raw image fetches
//  3. Login: app-flow (TV) and web-flow qrcode issuance, polling and confirm
//  4. Misc: user profile, release/update feed
//
// Every endpoint responds with a {code, msg, data} envelope; a non-zero
// code is surfaced as *RemoteServiceError. The poll endpoints are the one
// exception: their pending/scanned/expired codes are session states, not
// failures, and are returned to the caller raw (see internal/auth for the
// state machine built on top).
//
// Wire shapes live in the dto subpackage and convert to internal/model
// types at the package boundary.
package bili
