// Package googleauth builds client options shared by the Sheets and Drive
// adapters. Service account credentials are preferred; an OAuth client plus
// a stored token (see `billingsync auth`) is the fallback.
package googleauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// Scopes requested for every client: read/write spreadsheets and manage the
// Drive copies created during conversion.
var Scopes = []string{sheets.SpreadsheetsScope, drive.DriveScope}

// Credentials locates Google credentials. Inline JSON wins over files.
type Credentials struct {
	ServiceAccountJSON string
	ServiceAccountFile string
	OAuthClientFile    string
	OAuthTokenFile     string
}

// ErrNoCredentials is returned when no credential source is configured.
var ErrNoCredentials = errors.New("missing Google credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, GOOGLE_APPLICATION_CREDENTIALS, or GOOGLE_OAUTH_CLIENT_FILE with GOOGLE_OAUTH_TOKEN_FILE)")

// ClientOptions returns API client options for the configured credentials.
func ClientOptions(ctx context.Context, c Credentials) ([]option.ClientOption, error) {
	saJSON := strings.TrimSpace(c.ServiceAccountJSON)
	saFile := strings.TrimSpace(c.ServiceAccountFile)
	if saJSON == "" && saFile == "" {
		saFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case saJSON != "":
		slog.DebugContext(ctx, "Using inline service account credentials", "json_length", len(saJSON))
		return []option.ClientOption{option.WithCredentialsJSON([]byte(saJSON)), option.WithScopes(Scopes...)}, nil
	case saFile != "":
		b, err := os.ReadFile(saFile) // #nosec G304 -- path comes from operator config
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		slog.DebugContext(ctx, "Using service account credentials file", "path", saFile)
		return []option.ClientOption{option.WithCredentialsJSON(b), option.WithScopes(Scopes...)}, nil
	case c.OAuthClientFile != "" && c.OAuthTokenFile != "":
		ts, err := oauthTokenSource(ctx, c.OAuthClientFile, c.OAuthTokenFile)
		if err != nil {
			return nil, err
		}
		slog.DebugContext(ctx, "Using OAuth token credentials", "token_file", c.OAuthTokenFile)
		return []option.ClientOption{option.WithTokenSource(ts)}, nil
	default:
		return nil, ErrNoCredentials
	}
}

// OAuthConfig loads an installed-app OAuth client for the required scopes.
func OAuthConfig(clientFile string) (*oauth2.Config, error) {
	b, err := os.ReadFile(clientFile) // #nosec G304 -- path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("read oauth client file: %w", err)
	}
	cfg, err := google.ConfigFromJSON(b, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	return cfg, nil
}

// SaveToken writes tok as JSON with owner-only permissions.
func SaveToken(path string, tok *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open token file: %w", err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return nil
}

// LoadToken reads a token saved by SaveToken.
func LoadToken(path string) (*oauth2.Token, error) {
	b, err := os.ReadFile(path) // #nosec G304 -- path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("read token file: %w", err)
	}
	tok := &oauth2.Token{}
	if err := json.Unmarshal(b, tok); err != nil {
		return nil, fmt.Errorf("decode token file: %w", err)
	}
	return tok, nil
}

func oauthTokenSource(ctx context.Context, clientFile, tokenFile string) (oauth2.TokenSource, error) {
	cfg, err := OAuthConfig(clientFile)
	if err != nil {
		return nil, err
	}
	tok, err := LoadToken(tokenFile)
	if err != nil {
		return nil, err
	}
	return cfg.TokenSource(ctx, tok), nil
}
