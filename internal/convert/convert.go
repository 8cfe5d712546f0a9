// Package convert rewrites delivered JSON lines files into Hive partitioned
// columnar files grouped by event type, subtype and creation date.
package convert

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jittakal/kafeventrouter/internal/router"
	"github.com/jittakal/kafeventrouter/internal/storage"
	"github.com/jittakal/kafeventrouter/pkg/event"
)

// maxLineBytes bounds a single delivered record.
const maxLineBytes = 10 * 1024 * 1024

// Sink is the subset of storage.Sink used by the converter.
type Sink interface {
	Write(ctx context.Context, prefix string, records []event.Record) (string, int64, error)
}

// Config configures a conversion run.
type Config struct {
	// InputPath is a directory scanned recursively for .jsonl, .json and
	// their .gz variants.
	InputPath string
	// BookmarkPath, when set, makes runs incremental: files not modified
	// after the bookmark are skipped and the bookmark advances on success.
	BookmarkPath string
	// Exclude lists directories that are not scanned, such as the output
	// directory of a filesystem sink below InputPath.
	Exclude []string
}

// Summary reports what a run did.
type Summary struct {
	Files      int
	Records    int
	Skipped    int
	Partitions int
	Bytes      int64
}

// partitionKey groups rows the way the curated table is partitioned.
type partitionKey struct {
	eventType    string
	eventSubtype string
	year         int
	month        int
	day          int
}

func (k partitionKey) path() string {
	return storage.HivePartitionPath(k.eventType, k.eventSubtype,
		time.Date(k.year, time.Month(k.month), k.day, 0, 0, 0, 0, time.UTC))
}

// Converter runs conversion jobs.
type Converter struct {
	sink   Sink
	logger *slog.Logger
	now    func() time.Time
}

// New creates a converter writing through sink.
func New(sink Sink, logger *slog.Logger) *Converter {
	return &Converter{sink: sink, logger: logger, now: time.Now}
}

// Run converts every pending input file. Lines that are not valid event
// payloads are skipped and counted.
func (c *Converter) Run(ctx context.Context, cfg Config) (*Summary, error) {
	bookmark, err := loadBookmark(cfg.BookmarkPath)
	if err != nil {
		return nil, err
	}

	files, newest, boundary, err := pendingFiles(cfg.InputPath, cfg.Exclude, bookmark.LastModified, bookmark.seen())
	if err != nil {
		return nil, err
	}

	summary := &Summary{Files: len(files)}
	if len(files) == 0 {
		c.logger.Info("no pending input files", "input_path", cfg.InputPath)
		return summary, nil
	}

	groups := make(map[partitionKey][]event.Record)
	processedAt := c.now().UTC()

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := c.readFile(file, processedAt, groups, summary); err != nil {
			return nil, err
		}
	}

	keys := make([]partitionKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].path() < keys[j].path() })

	for _, k := range keys {
		location, n, err := c.sink.Write(ctx, k.path(), groups[k])
		if err != nil {
			return nil, fmt.Errorf("failed to write partition %s: %w", k.path(), err)
		}
		summary.Partitions++
		summary.Bytes += n
		c.logger.Info("wrote partition", "location", location, "records", len(groups[k]), "bytes", n)
	}

	if cfg.BookmarkPath != "" {
		if err := saveBookmark(cfg.BookmarkPath, bookmark.advance(newest, boundary, len(files))); err != nil {
			return nil, err
		}
	}

	c.logger.Info("conversion finished",
		"files", summary.Files,
		"records", summary.Records,
		"skipped", summary.Skipped,
		"partitions", summary.Partitions,
	)
	return summary, nil
}

func (c *Converter) readFile(file string, processedAt time.Time, groups map[partitionKey][]event.Record, summary *Summary) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", file, err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(file, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to open gzip stream %s: %w", file, err)
		}
		defer gz.Close()
		r = gz
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}

		ev, err := router.ParseEvent(raw)
		if err != nil {
			summary.Skipped++
			c.logger.Warn("skipping malformed line", "file", file, "line", line, "error", err)
			continue
		}

		t := ev.CreatedDateTime
		key := partitionKey{
			eventType:    ev.Type,
			eventSubtype: ev.Subtype,
			year:         t.Year(),
			month:        int(t.Month()),
			day:          t.Day(),
		}
		groups[key] = append(groups[key], event.Record{
			RecordID:    fmt.Sprintf("%s:%d", filepath.Base(file), line),
			Prefix:      key.path(),
			Data:        append([]byte(nil), raw...),
			Event:       ev,
			ProcessedAt: processedAt,
		})
		summary.Records++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read %s: %w", file, err)
	}
	return nil
}

// pendingFiles lists input files modified after since, plus those modified at
// since that are not in seen, sorted by path. It also returns the newest
// modification time and the files stamped with it.
func pendingFiles(root string, exclude []string, since time.Time, seen map[string]bool) ([]string, time.Time, []string, error) {
	var (
		files    []string
		newest   time.Time
		boundary []string
	)

	skip := make(map[string]bool, len(exclude))
	for _, dir := range exclude {
		skip[filepath.Clean(dir)] = true
	}

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skip[filepath.Clean(p)] {
				return fs.SkipDir
			}
			return nil
		}
		if !isInputFile(d.Name()) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		mod := info.ModTime()
		// Coarse mtimes can stamp a file that landed after the previous run
		// with the bookmark time itself; only the files listed as seen at
		// that time are skipped.
		if mod.Before(since) || (mod.Equal(since) && seen[p]) {
			return nil
		}
		switch {
		case mod.After(newest):
			newest = mod
			boundary = []string{p}
		case mod.Equal(newest):
			boundary = append(boundary, p)
		}
		files = append(files, p)
		return nil
	})
	if err != nil {
		return nil, time.Time{}, nil, fmt.Errorf("failed to scan input path %s: %w", root, err)
	}

	sort.Strings(files)
	sort.Strings(boundary)
	return files, newest, boundary, nil
}

func isInputFile(name string) bool {
	name = strings.TrimSuffix(name, ".gz")
	return strings.HasSuffix(name, ".jsonl") || strings.HasSuffix(name, ".json")
}
