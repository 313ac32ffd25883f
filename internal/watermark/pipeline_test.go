package watermark

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rinshan/bilimanga-downloader/internal/config"
	"github.com/rinshan/bilimanga-downloader/internal/event"
)

// fakeTransformer replaces every payload with a marker, failing for
// files whose contents match failOn.
type fakeTransformer struct {
	failOn string
}

func (f *fakeTransformer) Transform(ctx context.Context, data []byte) ([]byte, error) {
	if f.failOn != "" && string(data) == f.failOn {
		return nil, errors.New("corrupt image")
	}
	return []byte("transformed:" + string(data)), nil
}

func newTestPipeline(t *testing.T, transformer Transformer) (*Pipeline, *event.Bus) {
	t.Helper()
	store, err := config.NewStore(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatal(err)
	}
	bus := event.NewBus()
	return NewPipeline(store, bus, transformer), bus
}

// collectJob reads events until the job's end event arrives.
func collectJob(t *testing.T, ch <-chan event.Event) []event.Event {
	t.Helper()
	var events []event.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-ch:
			events = append(events, ev)
			if _, ok := ev.(event.RemoveWatermarkEnd); ok {
				return events
			}
		case <-timeout:
			t.Fatalf("no end event; got %d events", len(events))
		}
	}
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestPipeline_RemoveProcessesEveryImage(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"001.jpg": "a",
		"002.jpg": "b",
		"003.png": "c",
	})

	p, bus := newTestPipeline(t, &fakeTransformer{})
	ch := bus.Subscribe()
	if err := p.Remove(context.Background(), dir); err != nil {
		t.Fatal(err)
	}
	events := collectJob(t, ch)

	var currents []int
	for _, ev := range events {
		switch ev := ev.(type) {
		case event.RemoveWatermarkStart:
			if ev.Total != 3 {
				t.Errorf("start Total = %d, want 3", ev.Total)
			}
		case event.RemoveWatermarkSuccess:
			currents = append(currents, ev.Current)
		case event.RemoveWatermarkError:
			t.Errorf("unexpected error event: %s", ev.ErrMsg)
		}
	}

	// The running count is published under the progress lock, so it must
	// arrive in strictly increasing order.
	if len(currents) != 3 {
		t.Fatalf("got %d success events, want 3", len(currents))
	}
	for i, c := range currents {
		if c != i+1 {
			t.Errorf("success currents = %v, want 1, 2, 3 in order", currents)
			break
		}
	}

	for _, name := range []string{"001.jpg", "002.jpg", "003.png"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatal(err)
		}
		if !strings.HasPrefix(string(data), "transformed:") {
			t.Errorf("%s = %q, want rewritten in place", name, data)
		}
	}
}

func TestPipeline_EmptyDirStillOpensAndCloses(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"ComicInfo.xml": "<ComicInfo/>"})

	p, bus := newTestPipeline(t, &fakeTransformer{})
	ch := bus.Subscribe()
	if err := p.Remove(context.Background(), dir); err != nil {
		t.Fatal(err)
	}
	events := collectJob(t, ch)

	if len(events) != 2 {
		t.Fatalf("got %d events, want start + end only", len(events))
	}
	start, ok := events[0].(event.RemoveWatermarkStart)
	if !ok || start.Total != 0 {
		t.Errorf("first event = %+v, want start with Total 0", events[0])
	}

	// The non-image file is untouched.
	data, err := os.ReadFile(filepath.Join(dir, "ComicInfo.xml"))
	if err != nil || string(data) != "<ComicInfo/>" {
		t.Errorf("ComicInfo.xml = %q, %v", data, err)
	}
}

func TestPipeline_FailureIsIsolatedPerImage(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"001.jpg": "ok",
		"002.jpg": "bad",
		"003.jpg": "ok",
	})

	p, bus := newTestPipeline(t, &fakeTransformer{failOn: "bad"})
	ch := bus.Subscribe()
	if err := p.Remove(context.Background(), dir); err != nil {
		t.Fatal(err)
	}
	events := collectJob(t, ch)

	var success, failures int
	for _, ev := range events {
		switch ev := ev.(type) {
		case event.RemoveWatermarkSuccess:
			success++
		case event.RemoveWatermarkError:
			failures++
			if filepath.Base(ev.ImgPath) != "002.jpg" {
				t.Errorf("error for %s, want 002.jpg", ev.ImgPath)
			}
		}
	}
	if success != 2 || failures != 1 {
		t.Errorf("success/failures = %d/%d, want 2/1", success, failures)
	}

	// The failed image keeps its original bytes.
	data, err := os.ReadFile(filepath.Join(dir, "002.jpg"))
	if err != nil || string(data) != "bad" {
		t.Errorf("002.jpg = %q, %v, want untouched", data, err)
	}
}

func TestPipeline_MissingDirIsAnError(t *testing.T) {
	p, _ := newTestPipeline(t, &fakeTransformer{})
	if err := p.Remove(context.Background(), filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("missing directory should error before any events")
	}
}

func TestBandRemover_PreservesDimensions(t *testing.T) {
	// A tall image with a distinct bottom band.
	src := image.NewRGBA(image.Rect(0, 0, 40, 100))
	for y := 0; y < 100; y++ {
		c := color.RGBA{R: 200, A: 255}
		if y >= 95 {
			c = color.RGBA{G: 200, A: 255} // band
		}
		for x := 0; x < 40; x++ {
			src.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		t.Fatal(err)
	}

	out, err := NewBandRemover().Transform(context.Background(), buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}

	got, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("output is not a JPEG: %v", err)
	}
	if got.Bounds().Dx() != 40 || got.Bounds().Dy() != 100 {
		t.Errorf("output bounds = %v, want 40x100", got.Bounds())
	}

	// The bottom rows must no longer be the band color.
	r, g, _, _ := got.At(20, 99).RGBA()
	if g > r {
		t.Error("bottom band color survived the transform")
	}
}

func TestBandRemover_RejectsUndecodableData(t *testing.T) {
	if _, err := NewBandRemover().Transform(context.Background(), []byte("not an image")); err == nil {
		t.Error("garbage input should error")
	}
}
