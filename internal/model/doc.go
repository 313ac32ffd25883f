// Package model defines the core data structures used throughout
// the bilimanga-downloader application.
//
// # EpisodeInfo and AlbumPlusItem
//
// EpisodeInfo identifies one downloadable episode of a comic, AlbumPlusItem
// one paid bonus-content unit. Both are immutable once a download task has
// been created from them:
//
//	ep := model.EpisodeInfo{
//	    EpisodeID:    823001,
//	    EpisodeTitle: "Chapter 1",
//	    ComicID:      27189,
//	    ComicTitle:   "Some Comic",
//	}
//	dir := ep.DownloadDir("/manga")     // "/manga/Some Comic/Chapter 1"
//	tmp := ep.TempDownloadDir("/manga") // "/manga/Some Comic/.downloading-Chapter 1"
//
// # Archive formats
//
// ArchiveFormat selects how a finished episode is packaged on disk:
//
//	model.ArchiveFormatImage // plain directory of numbered images
//	model.ArchiveFormatZip   // .zip with ComicInfo.xml
//	model.ArchiveFormatCbz   // .cbz with ComicInfo.xml
//
// # ComicInfo
//
// ComicInfo carries the metadata embedded into zip/cbz archives as
// ComicInfo.xml, following the ComicRack schema.
package model
