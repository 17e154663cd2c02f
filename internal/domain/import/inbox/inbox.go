// Package inbox imports statements dropped into a watched directory.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"

	importservice "github.com/FACorreiaa/statement-import/internal/domain/import/service"
	"github.com/FACorreiaa/statement-import/pkg/metrics"
)

const (
	processedDir = "processed"
	failedDir    = "failed"
)

var extensions = []string{".csv", ".tsv", ".txt", ".xlsx"}

// FileInfo describes a statement waiting in the inbox.
type FileInfo struct {
	Name string
	Path string
	Size int64
}

// Scan returns the statement files directly inside dir, in name order.
// A missing directory is an empty inbox.
func Scan(dir string) ([]FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading inbox dir: %w", err)
	}

	var files []FileInfo
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if !slices.Contains(extensions, strings.ToLower(filepath.Ext(e.Name()))) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		files = append(files, FileInfo{
			Name: e.Name(),
			Path: filepath.Join(dir, e.Name()),
			Size: info.Size(),
		})
	}
	return files, nil
}

// MarkProcessed moves a file from dir to dir/processed/.
func MarkProcessed(dir, fileName string) error {
	return move(dir, processedDir, fileName)
}

// MarkFailed moves a file from dir to dir/failed/ so it is not retried.
func MarkFailed(dir, fileName string) error {
	return move(dir, failedDir, fileName)
}

func move(dir, sub, fileName string) error {
	dstDir := filepath.Join(dir, sub)
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return fmt.Errorf("creating %s dir: %w", sub, err)
	}
	src := filepath.Join(dir, fileName)
	if err := os.Rename(src, filepath.Join(dstDir, fileName)); err != nil {
		return fmt.Errorf("moving %s to %s: %w", fileName, sub, err)
	}
	return nil
}

// Importer previews and commits one statement.
type Importer interface {
	AutoImport(ctx context.Context, req importservice.ImportRequest) (*importservice.ImportResult, error)
}

// Config selects where swept files are imported to.
type Config struct {
	Dir       string
	AccountID uuid.UUID
	Preset    string
	Currency  string
}

// Summary counts the outcome of one sweep.
type Summary struct {
	Files      int
	Imported   int
	Duplicates int
	Failed     int
	Deferred   int // left in the inbox for the next sweep
}

// Sweeper imports every file in the inbox.
type Sweeper struct {
	importer Importer
	cfg      Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewSweeper creates a sweeper. m may be nil.
func NewSweeper(importer Importer, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Sweeper {
	return &Sweeper{importer: importer, cfg: cfg, logger: logger, metrics: m}
}

// Sweep imports the files currently in the inbox. A file that fails to import
// is moved to failed/ and the sweep continues with the next one.
func (s *Sweeper) Sweep(ctx context.Context) (Summary, error) {
	var summary Summary
	files, err := Scan(s.cfg.Dir)
	if err != nil {
		return summary, err
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Files++

		result, err := s.importFile(ctx, f)
		if err != nil && isTransient(err) {
			summary.Deferred++
			s.metrics.InboxFile("deferred")
			s.logger.Warn("inbox import deferred",
				slog.String("file", f.Name),
				slog.Any("error", err),
			)
			continue
		}
		if err != nil {
			summary.Failed++
			s.metrics.InboxFile("failed")
			s.logger.Warn("inbox import failed",
				slog.String("file", f.Name),
				slog.Any("error", err),
			)
			if mvErr := MarkFailed(s.cfg.Dir, f.Name); mvErr != nil {
				return summary, mvErr
			}
			continue
		}

		summary.Imported += result.Imported
		summary.Duplicates += result.Duplicates
		s.metrics.InboxFile("imported")
		s.logger.Info("inbox file imported",
			slog.String("file", f.Name),
			slog.Int("imported", result.Imported),
			slog.Int("duplicates", result.Duplicates),
			slog.Int("errors", result.Failed),
		)
		if err := MarkProcessed(s.cfg.Dir, f.Name); err != nil {
			return summary, err
		}
	}
	return summary, nil
}

// isTransient reports errors that say nothing about the file: timeouts,
// cancellation and an unavailable store.
func isTransient(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, importservice.ErrStoreUnavailable)
}

func (s *Sweeper) importFile(ctx context.Context, f FileInfo) (*importservice.ImportResult, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", f.Name, err)
	}
	format, err := importservice.ParseFormat(filepath.Ext(f.Name))
	if err != nil {
		return nil, err
	}
	return s.importer.AutoImport(ctx, importservice.ImportRequest{
		AccountID: s.cfg.AccountID,
		FileName:  f.Name,
		Data:      data,
		Format:    format,
		Currency:  s.cfg.Currency,
		Preset:    s.cfg.Preset,
	})
}
