package model

// ArchiveFormat represents the supported on-disk output formats for a
// finished download.
type ArchiveFormat int

const (
	// ArchiveFormatImage keeps the episode as a plain directory of
	// numbered image files.
	ArchiveFormatImage ArchiveFormat = iota

	// ArchiveFormatZip packages the episode into a .zip archive with an
	// embedded ComicInfo.xml.
	ArchiveFormatZip

	// ArchiveFormatCbz packages the episode into a .cbz archive (a zip
	// with the comic-book extension) with an embedded ComicInfo.xml.
	ArchiveFormatCbz
)

// Extension returns the file extension for the archive format, including
// the dot. ArchiveFormatImage has no extension and returns "".
func (f ArchiveFormat) Extension() string {
	switch f {
	case ArchiveFormatZip:
		return ".zip"
	case ArchiveFormatCbz:
		return ".cbz"
	default:
		return ""
	}
}

// String returns the config-file name of the format.
func (f ArchiveFormat) String() string {
	switch f {
	case ArchiveFormatZip:
		return "zip"
	case ArchiveFormatCbz:
		return "cbz"
	default:
		return "image"
	}
}

// ParseArchiveFormat maps a config-file name to an ArchiveFormat.
// Unknown names fall back to ArchiveFormatImage.
func ParseArchiveFormat(s string) ArchiveFormat {
	switch s {
	case "zip":
		return ArchiveFormatZip
	case "cbz":
		return ArchiveFormatCbz
	default:
		return ArchiveFormatImage
	}
}
