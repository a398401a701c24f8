package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"billingsync/internal/cli"
	"billingsync/internal/config"
	"billingsync/internal/googleauth"
)

func authCmd() *cobra.Command {
	var (
		port    string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize Google access and save an OAuth token",
		Long: `Run the installed-app OAuth flow for GOOGLE_OAUTH_CLIENT_FILE and save the
token to GOOGLE_OAUTH_TOKEN_FILE. Add http://localhost:<port>/callback to the
client's authorized redirect URIs.`,
		Args: cobra.NoArgs,
		// The token file does not exist yet, so the full validation is skipped.
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			cli.LoadEnvFile()
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			appConfig = cfg
			logger = cli.SetupLogger(cfg)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if appConfig.GoogleOAuthClientFile == "" {
				return errors.New("set GOOGLE_OAUTH_CLIENT_FILE")
			}
			out := appConfig.GoogleOAuthTokenFile
			if out == "" {
				out = "token.json"
			}

			oc, err := googleauth.OAuthConfig(appConfig.GoogleOAuthClientFile)
			if err != nil {
				return err
			}
			oc.RedirectURL = "http://localhost:" + port + "/callback"

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			tok, err := authorize(ctx, oc, port, func(u string) {
				fmt.Fprintf(cmd.OutOrStdout(), "Open this URL to authorize:\n%s\n", u)
			})
			if err != nil {
				return err
			}
			if err := googleauth.SaveToken(out, tok); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved token to %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&port, "port", "8085", "local port for the OAuth redirect")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "how long to wait for authorization")
	return cmd
}

// authorize serves the redirect endpoint on port until a code arrives and
// exchanges it for a token.
func authorize(ctx context.Context, oc *oauth2.Config, port string, show func(url string)) (*oauth2.Token, error) {
	state := uuid.NewString()
	type result struct {
		code string
		err  error
	}
	resc := make(chan result, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var res result
		switch {
		case q.Get("error") != "":
			res.err = fmt.Errorf("oauth error: %s", q.Get("error"))
		case q.Get("state") != state:
			res.err = errors.New("oauth state mismatch")
		default:
			res.code = q.Get("code")
		}
		if res.err != nil {
			http.Error(w, res.err.Error(), http.StatusBadRequest)
		} else {
			fmt.Fprintln(w, "You may close this window and return to the terminal.")
		}
		select {
		case resc <- res:
		default:
		}
	})

	ln, err := net.Listen("tcp", "localhost:"+port)
	if err != nil {
		return nil, fmt.Errorf("listen for oauth redirect: %w", err)
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	show(oc.AuthCodeURL(state, oauth2.AccessTypeOffline))

	select {
	case res := <-resc:
		if res.err != nil {
			return nil, res.err
		}
		tok, err := oc.Exchange(ctx, res.code)
		if err != nil {
			return nil, fmt.Errorf("token exchange: %w", err)
		}
		return tok, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("authorization not completed: %w", ctx.Err())
	}
}
