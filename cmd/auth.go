package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/desertthunder/listsync/internal/server"
	"github.com/desertthunder/listsync/internal/services"
	"github.com/desertthunder/listsync/internal/shared"
	"github.com/urfave/cli/v3"
)

const loginTimeout = 5 * time.Minute

// AuthLogin runs the OAuth2 authorization code flow and stores the access token in the config file.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("config")
	cfg, err := r.loadConfig(ctx, cmd)
	if err != nil {
		return err
	}

	if cfg.Mailchimp.ClientID == "" || cfg.Mailchimp.ClientSecret == "" {
		return fmt.Errorf("%w: mailchimp.client_id and mailchimp.client_secret are required for OAuth login", shared.ErrMissingCredentials)
	}

	oauthConfig := services.NewOAuthConfig(cfg.Mailchimp.ClientID, cfg.Mailchimp.ClientSecret, cfg.Server.CallbackURL())
	handler := server.NewOAuthHandler(oauthConfig, shared.GenerateID())

	srv, err := server.NewCallbackServer(fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port), handler, r.logger)
	if err != nil {
		return err
	}
	srv.Start()

	authURL := handler.AuthCodeURL()
	r.logger.Info("waiting for OAuth callback", "addr", srv.Addr())
	if cmd.Bool("no-browser") {
		r.writePlain("Open this URL to authorize listsync:\n%s\n", authURL)
	} else if err := r.browser(authURL); err != nil {
		r.logger.Warn("failed to open browser", "error", err)
		r.writePlain("Open this URL to authorize listsync:\n%s\n", authURL)
	}

	waitCtx, cancel := context.WithTimeout(ctx, loginTimeout)
	defer cancel()

	result, err := srv.Wait(waitCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: no OAuth callback within %s", shared.ErrTimeout, loginTimeout)
		}
		return fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
	}

	creds := services.Credentials{Method: shared.AuthOAuth, AccessToken: result.Token.AccessToken}
	rc, err := r.endpoints(cfg).Resolve(ctx, creds, cfg.Mailchimp.ListID)
	if err != nil {
		return err
	}
	defer rc.Close()

	if err := r.storeToken(path, result.Token.AccessToken); err != nil {
		return err
	}

	r.writePlain("✓ Authorized (datacenter %s)\n", rc.DataCenter)
	r.writePlain("Access token saved to %s\n", path)
	return nil
}

// storeToken writes the token into the file as-is, without environment overrides or resolved secrets.
func (r *Runner) storeToken(path, token string) error {
	stored := shared.DefaultConfig()
	if _, err := os.Stat(path); err == nil {
		if stored, err = shared.ReadConfigFile(path); err != nil {
			return err
		}
	}
	stored.Mailchimp.AuthMethod = shared.AuthOAuth
	stored.Mailchimp.AccessToken = token
	return shared.SaveConfig(path, stored)
}

// AuthStatus reports the auth method and resolved datacenter, verifying API keys against the API root.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	cfg, err := r.loadConfig(ctx, cmd)
	if err != nil {
		return err
	}

	r.logger.Info("checking auth status", "method", cfg.Mailchimp.AuthMethod)

	rc, err := r.endpoints(cfg).Resolve(ctx, credentials(cfg), cfg.Mailchimp.ListID)
	if err != nil {
		return err
	}
	defer rc.Close()

	status := struct {
		AuthMethod string `json:"auth_method"`
		DataCenter string `json:"dc"`
		BaseURL    string `json:"base_url"`
	}{rc.AuthMethod, rc.DataCenter, rc.BaseURL}

	if cmd.Bool("json") {
		return r.writeJSON(status, cmd.Bool("pretty"))
	}

	r.writePlain("✓ Authenticated\n")
	r.writePlain("Method: %s\n", status.AuthMethod)
	r.writePlain("Datacenter: %s\n", status.DataCenter)
	r.writePlain("API root: %s\n", status.BaseURL)
	return nil
}
