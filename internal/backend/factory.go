package backend

import (
	"context"
	"fmt"
	"log/slog"

	"billingsync/internal/files/drive"
	filesmem "billingsync/internal/files/memory"
	"billingsync/internal/files/xlsx"
	"billingsync/internal/googleauth"
	"billingsync/internal/log"
	gsheet "billingsync/internal/sheets/google"
	"billingsync/internal/sheets/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger.With(log.FieldComponent, log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		res  *Result
		open drive.OpenFunc
		err  error
	)
	switch config.Type {
	case GoogleBackend:
		res, open, err = f.createGoogleBackend(ctx, config)
	case MemoryBackend:
		res, open, err = f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	switch config.Converter {
	case XLSXConverter:
		res.Converter = xlsx.NewConverter(res.Files)
	default:
		res.Converter = drive.NewSheetConverter(res.Files, open)
	}
	f.logger.Info("Initialized backend", "backend", config.Type, "converter", config.Converter)
	return res, nil
}

func (f *DefaultFactory) createGoogleBackend(ctx context.Context, config Config) (*Result, drive.OpenFunc, error) {
	opts, err := googleauth.ClientOptions(ctx, config.Credentials)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve Google credentials: %w", err)
	}

	client, err := gsheet.New(ctx, config.GoogleSpreadsheetID, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}
	store, err := drive.New(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize Google Drive client: %w", err)
	}

	// Converted copies are separate spreadsheets read with the same service.
	open := func(_ context.Context, id string) (drive.Spreadsheet, error) {
		return gsheet.NewWithService(client.Service(), id), nil
	}

	f.logger.Info("Initialized Google backend", "spreadsheet_id", config.GoogleSpreadsheetID)
	return &Result{Workbook: client, Files: store}, open, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*Result, drive.OpenFunc, error) {
	wb := memory.New()
	if config.MemorySeedFile != "" {
		var err error
		wb, err = memory.NewFromXLSX(config.MemorySeedFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to seed memory workbook: %w", err)
		}
	}

	dir := config.MemoryFilesDir
	if dir == "" {
		dir = "data/files"
	}
	store := filesmem.New(dir)
	open := func(ctx context.Context, id string) (drive.Spreadsheet, error) {
		wb, err := store.Open(ctx, id)
		if err != nil {
			return nil, err
		}
		return wb, nil
	}

	f.logger.Info("Initialized memory backend",
		"seed_file", config.MemorySeedFile,
		"files_dir", dir,
		"sheets", len(wb.SheetNames()))
	return &Result{Workbook: wb, Files: store}, open, nil
}
