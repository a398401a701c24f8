// Package backend builds the workbook, file store and converter for the
// configured data backend.
package backend

import (
	"context"

	"billingsync/internal/files"
	"billingsync/internal/googleauth"
	"billingsync/internal/sheets"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Result contains the adapters of one backend.
type Result struct {
	Workbook  sheets.Workbook
	Files     files.Store
	Converter files.Converter
	Cleanup   CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Result, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type      BackendType
	Converter ConverterType

	// Google specific
	GoogleSpreadsheetID string
	Credentials         googleauth.Credentials

	// Memory specific
	MemorySeedFile string
	MemoryFilesDir string
}

// BackendType represents the type of backend
type BackendType string

const (
	GoogleBackend BackendType = "google"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case GoogleBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// ConverterType selects the file-to-table converter.
type ConverterType string

const (
	// DriveConverter converts through a temporary native spreadsheet copy.
	DriveConverter ConverterType = "drive"
	// XLSXConverter parses the downloaded file locally.
	XLSXConverter ConverterType = "xlsx"
)

func (ct ConverterType) IsValid() bool {
	return ct == DriveConverter || ct == XLSXConverter
}
