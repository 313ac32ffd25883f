package download

import (
	"archive/zip"
	"encoding/xml"
	"os"
	"path/filepath"

	"github.com/rinshan/bilimanga-downloader/internal/config"
	"github.com/rinshan/bilimanga-downloader/internal/model"
)

// comicInfoFileName is the metadata entry embedded in zip/cbz archives,
// following the ComicRack naming convention.
const comicInfoFileName = "ComicInfo.xml"

// packageTask finalizes a fully downloaded temp directory into its output
// form. Episodes honor the configured archive format; bonus-content items
// always stay plain directories.
func (m *Manager) packageTask(t Task, tempDir string, cfg *config.Config) error {
	finalDir := t.downloadDir(cfg.DownloadDir)

	info := t.comicInfo()
	format := cfg.Archive()
	if info == nil {
		format = model.ArchiveFormatImage
	}

	switch format {
	case model.ArchiveFormatZip, model.ArchiveFormatCbz:
		return packageArchive(tempDir, finalDir+format.Extension(), info)
	default:
		return renameIntoPlace(tempDir, finalDir)
	}
}

// renameIntoPlace atomically swaps the temp directory in as the final
// output, replacing any stale previous download.
func renameIntoPlace(tempDir, finalDir string) error {
	if err := os.RemoveAll(finalDir); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(finalDir), 0755); err != nil {
		return err
	}
	return os.Rename(tempDir, finalDir)
}

// packageArchive zips the temp directory's images plus a generated
// ComicInfo.xml into archivePath, then removes the temp directory.
func packageArchive(tempDir, archivePath string, info *model.ComicInfo) error {
	entries, err := os.ReadDir(tempDir)
	if err != nil {
		return err
	}

	if info != nil {
		meta := *info
		meta.PageCount = len(entries)
		data, err := xml.MarshalIndent(&meta, "", "  ")
		if err != nil {
			return err
		}
		payload := append([]byte(xml.Header), data...)
		if err := os.WriteFile(filepath.Join(tempDir, comicInfoFileName), payload, 0644); err != nil {
			return err
		}
	}

	if err := os.RemoveAll(archivePath); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(archivePath), 0755); err != nil {
		return err
	}

	f, err := os.Create(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	entries, err = os.ReadDir(tempDir) // re-read to pick up ComicInfo.xml
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(tempDir, e.Name()))
		if err != nil {
			return err
		}
		w, err := zw.Create(e.Name())
		if err != nil {
			return err
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	return os.RemoveAll(tempDir)
}
