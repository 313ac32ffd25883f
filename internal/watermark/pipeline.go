package watermark

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rinshan/bilimanga-downloader/internal/config"
	"github.com/rinshan/bilimanga-downloader/internal/event"
)

// imageExtensions are the file types a removal job picks up from a
// directory. Everything else (ComicInfo.xml, archives) is left alone.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// Pipeline runs watermark removal over downloaded image directories with
// a bounded worker pool.
type Pipeline struct {
	store       *config.Store
	bus         *event.Bus
	transformer Transformer
}

// NewPipeline creates a Pipeline. A nil transformer falls back to the
// default BandRemover.
func NewPipeline(store *config.Store, bus *event.Bus, transformer Transformer) *Pipeline {
	if transformer == nil {
		transformer = NewBandRemover()
	}
	return &Pipeline{store: store, bus: bus, transformer: transformer}
}

// Remove processes every image directly inside dirPath in place.
//
// One job emits a start event carrying the image count, then one success
// or error per image, then exactly one end event once every image has
// reported. The running count in successive success events is strictly
// increasing. A directory with no images still emits start and end, so
// observers never wait on a job that will produce nothing. Failures are
// isolated per image and never abort the job.
func (p *Pipeline) Remove(ctx context.Context, dirPath string) error {
	images, err := listImages(dirPath)
	if err != nil {
		return err
	}

	p.bus.Publish(event.RemoveWatermarkStart{DirPath: dirPath, Total: len(images)})

	// The lock covers increment and publish together, so no worker can
	// slip a higher count onto the bus ahead of a lower one.
	var progressMu sync.Mutex
	current := 0
	g := new(errgroup.Group)
	g.SetLimit(p.store.Get().WatermarkConcurrency)
	for _, imgPath := range images {
		imgPath := imgPath
		g.Go(func() error {
			if err := p.processImage(ctx, imgPath); err != nil {
				p.bus.Publish(event.RemoveWatermarkError{
					DirPath: dirPath,
					ImgPath: imgPath,
					ErrMsg:  err.Error(),
				})
				return nil
			}
			progressMu.Lock()
			current++
			p.bus.Publish(event.RemoveWatermarkSuccess{
				DirPath: dirPath,
				ImgPath: imgPath,
				Current: current,
			})
			progressMu.Unlock()
			return nil
		})
	}
	g.Wait()

	p.bus.Publish(event.RemoveWatermarkEnd{DirPath: dirPath})
	return nil
}

func (p *Pipeline) processImage(ctx context.Context, imgPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := os.ReadFile(imgPath)
	if err != nil {
		return err
	}
	out, err := p.transformer.Transform(ctx, data)
	if err != nil {
		return err
	}
	return os.WriteFile(imgPath, out, 0644)
}

// listImages enumerates the image files directly inside dirPath, in
// directory order. Subdirectories are not descended into.
func listImages(dirPath string) ([]string, error) {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, err
	}

	var images []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			images = append(images, filepath.Join(dirPath, e.Name()))
		}
	}
	return images, nil
}
