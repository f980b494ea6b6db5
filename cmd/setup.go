package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/desertthunder/listsync/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupConfig writes the example configuration to --config. An existing file is left untouched.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("config")

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}
	r.logger.Info("config file created", "path", path)

	r.writePlain("✓ Config written to %s\n", path)
	r.writePlainln("Next steps:")
	r.writePlain("1. Set mailchimp.apikey (or run 'listsync auth login') and mailchimp.list_id\n")
	r.writePlain("2. Point [source] at your data and map [columns]\n")
	r.writePlain("3. Run 'listsync sync --dry-run' to check the mapping\n")
	return nil
}
