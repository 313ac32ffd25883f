package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rinshan/bilimanga-downloader/internal/app"
	"github.com/rinshan/bilimanga-downloader/internal/auth"
	"github.com/rinshan/bilimanga-downloader/internal/bili"
	"github.com/rinshan/bilimanga-downloader/internal/config"
	"github.com/rinshan/bilimanga-downloader/internal/event"
	"github.com/rinshan/bilimanga-downloader/internal/model"
)

const version = "1.0.0"

func main() {
	// Command line flags
	var (
		comicFlag     = flag.Int64("comic", 0, "Comic id to download")
		episodesFlag  = flag.String("episodes", "", "Comma-separated episode ids (default: every downloadable episode)")
		extrasFlag    = flag.Bool("extras", false, "Also download bonus content")
		searchFlag    = flag.String("search", "", "Search comics and novels by keyword")
		loginFlag     = flag.String("login", "", "Log in by QR code: 'app' or 'web'")
		profileFlag   = flag.Bool("profile", false, "Show the logged-in user")
		outputFlag    = flag.String("output", "", "Download directory (overrides config)")
		formatFlag    = flag.String("format", "", "Archive format: image, zip or cbz (overrides config)")
		configFlag    = flag.String("config", "", "Path to config file")
		watermarkFlag = flag.Bool("remove-watermark", false, "Remove watermarks after downloading")
	)

	flag.Parse()

	if *comicFlag == 0 && *searchFlag == "" && *loginFlag == "" && !*profileFlag {
		fmt.Println("bilimanga-dl - Download comics from bilibili manga")
		fmt.Println()
		fmt.Println("Usage:")
		fmt.Println("  bilimanga-dl -comic <id> [options]")
		fmt.Println("  bilimanga-dl -search <keyword>")
		fmt.Println("  bilimanga-dl -login app|web")
		fmt.Println()
		fmt.Println("For interactive mode, use: bilimanga-tui")
		fmt.Println()
		flag.PrintDefaults()
		os.Exit(1)
	}

	configPath := *configFlag
	if configPath == "" {
		configPath = defaultConfigPath()
	}
	store, err := config.NewStore(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Apply flags
	if *outputFlag != "" || *formatFlag != "" {
		err := store.Update(func(c *config.Config) {
			if *outputFlag != "" {
				c.DownloadDir = *outputFlag
			}
			if *formatFlag != "" {
				c.ArchiveFormat = model.ParseArchiveFormat(*formatFlag).String()
			}
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
			os.Exit(1)
		}
	}

	// Handle interrupts
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nInterrupted, cancelling...")
		cancel()
	}()

	bus := event.NewBus()
	a := app.New(store, bus, version)
	go a.Run(ctx)

	switch {
	case *searchFlag != "":
		err = runSearch(ctx, a, *searchFlag)
	case *loginFlag != "":
		err = runLogin(ctx, a, *loginFlag)
	case *profileFlag:
		err = runProfile(ctx, a)
	default:
		err = runDownload(ctx, a, bus, *comicFlag, *episodesFlag, *extrasFlag, *watermarkFlag)
	}
	if err != nil {
		if ctx.Err() != nil {
			fmt.Println("\nCancelled.")
			os.Exit(130)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// defaultConfigPath puts the config under the platform config directory,
// falling back to the working directory when none is available.
func defaultConfigPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return "config.json"
	}
	return filepath.Join(base, "bilimanga-dl", "config.json")
}

func runSearch(ctx context.Context, a *app.App, keyword string) error {
	result, err := a.Search(ctx, keyword, 1)
	if err != nil {
		return err
	}

	if len(result.Comics) == 0 && len(result.Novels) == 0 {
		fmt.Println("No results.")
		return nil
	}
	for _, c := range result.Comics {
		fmt.Printf("comic %8d  %s (%s)\n", c.ID, c.Title, strings.Join(c.Author, ", "))
	}
	for _, n := range result.Novels {
		fmt.Printf("novel %8d  %s (not downloadable)\n", n.ID, n.Title)
	}
	if result.TotalPages > 1 {
		fmt.Printf("\nPage %d of %d.\n", result.Page, result.TotalPages)
	}
	return nil
}

// runLogin drives one QR login flow to a terminal state, polling every
// few seconds. The QR image is written next to the terminal output so it
// can be scanned from the phone app.
func runLogin(ctx context.Context, a *app.App, mode string) error {
	var code *auth.GeneratedCode
	var err error
	switch mode {
	case "app":
		code, err = a.GenerateAppQrcode(ctx)
	case "web":
		code, err = a.GenerateWebQrcode(ctx)
	default:
		return fmt.Errorf("unknown login mode %q, want app or web", mode)
	}
	if err != nil {
		return err
	}

	qrPath := filepath.Join(os.TempDir(), "bilimanga-login.png")
	if err := os.WriteFile(qrPath, code.Image, 0600); err != nil {
		return err
	}
	fmt.Printf("Scan the QR code with the bilibili app: %s\n", qrPath)
	fmt.Println("Waiting for scan...")

	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()
	lastState := auth.StatePendingScan
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		var state auth.State
		if mode == "app" {
			status, err := a.PollAppQrcodeStatus(ctx, code.Code)
			if err != nil {
				return err
			}
			state = status.State
		} else {
			status, err := a.PollWebQrcodeStatus(ctx, code.Code)
			if err != nil {
				return err
			}
			state = status.State
		}

		if state != lastState {
			fmt.Printf("  %s\n", state)
			lastState = state
		}
		switch state {
		case auth.StateConfirmed:
			fmt.Println("Logged in.")
			return nil
		case auth.StateExpired:
			return errors.New("login code expired, run again")
		}
	}
}

func runProfile(ctx context.Context, a *app.App) error {
	profile, err := a.GetUserProfile(ctx)
	if err != nil {
		if errors.Is(err, bili.ErrLoginRequired) {
			return errors.New("not logged in, run with -login app or -login web first")
		}
		return err
	}
	fmt.Printf("%s (uid %d)\n", profile.Name, profile.UID)
	return nil
}

func runDownload(ctx context.Context, a *app.App, bus *event.Bus, comicID int64, episodes string, extras, removeWatermark bool) error {
	wanted, err := parseIDList(episodes)
	if err != nil {
		return err
	}

	comic, err := a.GetComic(ctx, comicID)
	if err != nil {
		return err
	}
	fmt.Printf("%s - %d episodes\n\n", comic.Title, len(comic.Episodes))

	eps := comic.Episodes
	if wanted != nil {
		eps = nil
		for _, ep := range comic.Episodes {
			if wanted[ep.EpisodeID] {
				eps = append(eps, ep)
			}
		}
		if len(eps) != len(wanted) {
			return fmt.Errorf("%d of %d requested episodes not found in this comic", len(wanted)-len(eps), len(wanted))
		}
	}

	cfg := a.GetConfig()
	cleanable := removeWatermark && cfg.Archive() == model.ArchiveFormatImage
	cleanDirs := make(map[int64]string)
	if cleanable {
		for _, ep := range eps {
			if !ep.IsLocked && !ep.IsDownloaded {
				cleanDirs[ep.EpisodeID] = ep.DownloadDir(cfg.DownloadDir)
			}
		}
	}

	ch := bus.Subscribe()
	total := a.DownloadEpisodes(eps)
	if extras {
		items, err := a.GetAlbumPlus(ctx, comicID)
		if err != nil {
			return err
		}
		total += a.DownloadAlbumPlus(items)
	}
	if total == 0 {
		fmt.Println("Nothing new to download.")
		return nil
	}
	fmt.Printf("Downloading %d tasks...\n\n", total)

	failed, err := renderEvents(ctx, ch, total, cleanDirs)
	if err != nil {
		return err
	}

	if cleanable && len(cleanDirs) > 0 {
		fmt.Println("\nRemoving watermarks...")
		for _, dir := range cleanDirs {
			if err := a.RemoveWatermark(ctx, dir); err != nil {
				return err
			}
		}
	}

	fmt.Printf("\nComplete: %d/%d tasks succeeded.\n", total-failed, total)
	if failed > 0 {
		return fmt.Errorf("%d tasks failed", failed)
	}
	return nil
}

// renderEvents prints download progress until every task has ended,
// returning the failure count. Directories of failed tasks are dropped
// from cleanDirs so the watermark pass skips them.
func renderEvents(ctx context.Context, ch <-chan event.Event, total int, cleanDirs map[int64]string) (int, error) {
	ended, failed := 0, 0
	for ended < total {
		var ev event.Event
		select {
		case <-ctx.Done():
			return failed, ctx.Err()
		case ev = <-ch:
		}

		switch ev := ev.(type) {
		case event.DownloadStart:
			fmt.Printf("> %s (%d pages)\n", ev.Title, ev.Total)
		case event.DownloadImageError:
			fmt.Printf("x image failed: %s\n", ev.ErrMsg)
		case event.OverallProgress:
			fmt.Printf("\r  %d/%d images (%.0f%%)", ev.DownloadedImageCount, ev.TotalImageCount, ev.Percentage)
		case event.DownloadEnd:
			ended++
			fmt.Println()
			if ev.ErrMsg != nil {
				failed++
				delete(cleanDirs, ev.ID)
				fmt.Printf("x task %d failed: %s\n", ev.ID, *ev.ErrMsg)
			} else {
				fmt.Printf("+ task %d done\n", ev.ID)
			}
		}
	}
	return failed, nil
}

// parseIDList parses a comma-separated id list; empty input means no
// filter and returns nil.
func parseIDList(s string) (map[int64]bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	ids := make(map[int64]bool)
	for _, part := range strings.Split(s, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad episode id %q", part)
		}
		ids[id] = true
	}
	return ids, nil
}
