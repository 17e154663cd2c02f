package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/FACorreiaa/statement-import/internal/domain/import/model"
	"github.com/FACorreiaa/statement-import/internal/domain/import/parser"
	importrepo "github.com/FACorreiaa/statement-import/internal/domain/import/repository"
	importservice "github.com/FACorreiaa/statement-import/internal/domain/import/service"
	"github.com/FACorreiaa/statement-import/pkg/config"
)

var errReadOnly = errors.New("preview does not write transactions")

// offlineStore stands in for the database when a command only previews.
type offlineStore struct{}

func (offlineStore) ListAccountTransactions(context.Context, uuid.UUID) ([]model.ExistingTransaction, error) {
	return nil, nil
}

func (offlineStore) BulkInsertTransactions(context.Context, []*importrepo.Transaction) (int, error) {
	return 0, errReadOnly
}

// fileFlags are the statement options shared by preview and import.
type fileFlags struct {
	currency    string
	preset      string
	format      string
	mappingFile string
	silent      bool
}

func (f *fileFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.currency, "currency", "", "ISO 4217 currency of the statement (default from IMPORT_DEFAULT_CURRENCY)")
	cmd.Flags().StringVar(&f.preset, "preset", "", "bank preset name (see 'importer presets')")
	cmd.Flags().StringVar(&f.format, "format", "", "file format: csv or xlsx (default from extension)")
	cmd.Flags().StringVar(&f.mappingFile, "mapping", "", "JSON file with an explicit column mapping")
	cmd.Flags().BoolVar(&f.silent, "silent", false, "drop failed rows instead of reporting them")
}

func (f *fileFlags) request(cfg *config.Config, path string, accountID uuid.UUID) (importservice.ImportRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return importservice.ImportRequest{}, fmt.Errorf("reading %s: %w", path, err)
	}
	format, err := resolveFormat(f.format, path)
	if err != nil {
		return importservice.ImportRequest{}, err
	}

	req := importservice.ImportRequest{
		AccountID: accountID,
		FileName:  filepath.Base(path),
		Data:      data,
		Format:    format,
		Currency:  f.currency,
		Preset:    f.preset,
	}
	if f.silent || cfg.Import.SilentErrors {
		req.Mode = parser.ModeSilent
	}
	if f.mappingFile != "" {
		raw, err := os.ReadFile(f.mappingFile)
		if err != nil {
			return req, fmt.Errorf("reading mapping: %w", err)
		}
		var m model.ColumnMapping
		if err := json.Unmarshal(raw, &m); err != nil {
			return req, fmt.Errorf("parsing mapping: %w", err)
		}
		req.Mapping = &m
	}
	return req, nil
}

func resolveFormat(flag, path string) (importservice.Format, error) {
	if flag != "" {
		return importservice.ParseFormat(flag)
	}
	format, err := importservice.ParseFormat(filepath.Ext(path))
	if err != nil {
		// Unknown extensions are sniffed from the content.
		return importservice.FormatAuto, nil
	}
	return format, nil
}
