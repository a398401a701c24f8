package backend

import (
	"fmt"

	"billingsync/internal/config"
	"billingsync/internal/googleauth"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	cfg := Config{
		Type:                BackendType(appConfig.DataBackend),
		Converter:           ConverterType(appConfig.Converter),
		GoogleSpreadsheetID: appConfig.GoogleSpreadsheetID,
		Credentials: googleauth.Credentials{
			ServiceAccountJSON: appConfig.GoogleServiceAccountJSON,
			ServiceAccountFile: appConfig.GoogleServiceAccountFile,
			OAuthClientFile:    appConfig.GoogleOAuthClientFile,
			OAuthTokenFile:     appConfig.GoogleOAuthTokenFile,
		},
		MemorySeedFile: appConfig.MemorySeedFile,
		MemoryFilesDir: appConfig.MemoryFilesDir,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}
	if !c.Converter.IsValid() {
		return fmt.Errorf("invalid converter: %s", c.Converter)
	}

	switch c.Type {
	case GoogleBackend:
		if c.GoogleSpreadsheetID == "" {
			return fmt.Errorf("Google Spreadsheet ID is required for google backend")
		}
	case MemoryBackend:
		// An unseeded workbook starts empty; MemoryFilesDir defaults to "data/files".
	}
	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{MemoryBackend, GoogleBackend}
}
