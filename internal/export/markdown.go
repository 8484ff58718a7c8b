package export

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/natefinch/atomic"

	"transclip/internal/storage"
	"transclip/pkg/types"
)

// Exporter writes the clipping history into a directory of markdown
// notes, one file per day, with binary payloads placed under assets/
// and referenced by relative link. Runs are idempotent: each day file
// is rebuilt from the store, so re-exporting after edits or deletions
// converges on the current history.
type Exporter struct {
	store storage.Store
	dir   string
}

// NewExporter creates an exporter targeting dir. The directory must
// already exist.
func NewExporter(store storage.Store, dir string) (*Exporter, error) {
	if dir == "" {
		return nil, fmt.Errorf("export directory is required")
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, fmt.Errorf("export directory does not exist: %s", dir)
	}
	return &Exporter{store: store, dir: dir}, nil
}

// Export writes all clippings to the notes directory.
func (e *Exporter) Export(ctx context.Context) error {
	clips, err := e.store.List(ctx, storage.Filter{})
	if err != nil {
		return fmt.Errorf("failed to list clippings: %w", err)
	}
	if len(clips) == 0 {
		return nil
	}

	byDay := make(map[string][]*types.Clipping)
	for _, clip := range clips {
		day := clip.Timestamp.Format("2006-01-02")
		byDay[day] = append(byDay[day], clip)
	}

	days := make([]string, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Strings(days)

	for _, day := range days {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.writeDay(ctx, day, byDay[day]); err != nil {
			return err
		}
	}

	slog.Info("exported clippings", "count", len(clips), "days", len(days), "dir", e.dir)
	return nil
}

func (e *Exporter) writeDay(ctx context.Context, day string, clips []*types.Clipping) error {
	// Oldest first within a day, so the note reads chronologically.
	sort.Slice(clips, func(i, j int) bool {
		return clips[i].Timestamp.Before(clips[j].Timestamp)
	})

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# %s\n", day)

	for _, clip := range clips {
		body, err := e.entryBody(ctx, clip)
		if err != nil {
			return err
		}

		board := ""
		if clip.Board != nil {
			board = clip.Board.Name
		}
		fmt.Fprintf(&buf, `
## %s
---
title: %s
kind: %s
board: %s
---

%s

`,
			clip.Timestamp.Format("15:04:05"),
			clip.Title,
			clip.Kind,
			board,
			body)
	}

	path := filepath.Join(e.dir, day+".md")
	if err := atomic.WriteFile(path, &buf); err != nil {
		return fmt.Errorf("failed to write note %s: %w", path, err)
	}
	return nil
}

// entryBody renders a clipping's content for the note. Text and url
// clippings inline their string content; binary kinds are copied into
// assets/ named by uid and linked.
func (e *Exporter) entryBody(ctx context.Context, clip *types.Clipping) (string, error) {
	if clip.Kind.TextLike() {
		return clip.Content, nil
	}

	full, err := e.store.Get(ctx, clip.UID)
	if err != nil {
		return "", fmt.Errorf("failed to load payload for %s: %w", clip.UID, err)
	}

	assetsDir := filepath.Join(e.dir, "assets")
	if err := os.MkdirAll(assetsDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create assets directory: %w", err)
	}

	name := clip.UID + assetExtension(clip.Kind)
	if err := atomic.WriteFile(filepath.Join(assetsDir, name), bytes.NewReader(full.Data)); err != nil {
		return "", fmt.Errorf("failed to write asset %s: %w", name, err)
	}

	if clip.Kind == types.KindImage {
		return fmt.Sprintf("![](assets/%s)", name), nil
	}
	return fmt.Sprintf("[attachment](assets/%s)", name), nil
}

func assetExtension(kind types.Kind) string {
	// Images are normalized to PNG before storage.
	if kind == types.KindImage {
		return ".png"
	}
	return ".bin"
}

// Service runs an Exporter on a fixed interval alongside the daemon.
type Service struct {
	exporter *Exporter
	ticker   *time.Ticker
	done     chan struct{}
}

// NewService wraps an exporter with a periodic schedule.
func NewService(exporter *Exporter, interval time.Duration) (*Service, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("export interval must be positive, got %v", interval)
	}
	return &Service{
		exporter: exporter,
		ticker:   time.NewTicker(interval),
		done:     make(chan struct{}),
	}, nil
}

// Start performs an initial export and then re-exports on every tick
// until the context is cancelled or Stop is called.
func (s *Service) Start(ctx context.Context) {
	if err := s.exporter.Export(ctx); err != nil {
		slog.Warn("initial export failed", "error", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case <-s.ticker.C:
				if err := s.exporter.Export(ctx); err != nil {
					slog.Warn("scheduled export failed", "error", err)
				}
			}
		}
	}()
}

// Stop halts the schedule. Safe to call more than once.
func (s *Service) Stop() {
	s.ticker.Stop()
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}
