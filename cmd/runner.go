package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/listsync/internal/secrets"
	"github.com/desertthunder/listsync/internal/services"
	"github.com/desertthunder/listsync/internal/shared"
	"github.com/desertthunder/listsync/internal/sources"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config    *shared.Config
	logger    *log.Logger
	output    io.Writer
	endpoints func(cfg *shared.Config) *services.EndpointResolver
	secrets   *secrets.Resolver
	s3        sources.GetObjectAPI
	browser   func(url string) error
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config    *shared.Config // used when no config file exists
	Logger    *log.Logger
	Output    io.Writer
	Endpoints func(cfg *shared.Config) *services.EndpointResolver
	Secrets   *secrets.Resolver
	S3        sources.GetObjectAPI
	Browser   func(url string) error
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Endpoints == nil {
		opts.Endpoints = defaultEndpoints(opts.Logger)
	}
	if opts.Browser == nil {
		opts.Browser = shared.OpenBrowser
	}

	return &Runner{
		config:    opts.Config,
		logger:    opts.Logger,
		output:    opts.Output,
		endpoints: opts.Endpoints,
		secrets:   opts.Secrets,
		s3:        opts.S3,
		browser:   opts.Browser,
	}
}

func defaultEndpoints(logger *log.Logger) func(cfg *shared.Config) *services.EndpointResolver {
	return func(cfg *shared.Config) *services.EndpointResolver {
		policy := services.RetryPolicy{
			MaxRetries:      cfg.Retry.MaxRetries,
			InitialInterval: cfg.Retry.InitialWait(),
			MaxInterval:     cfg.Retry.MaxWait(),
		}
		r := services.NewEndpointResolver(policy, cfg.Retry.TimeoutDuration(), logger)
		if cfg.Mailchimp.APIVersion != "" {
			r.APIVersion = cfg.Mailchimp.APIVersion
		}
		return r
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, listCommand, syncCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// SetLogger replaces the logger, e.g. with a file logger while the TUI owns the terminal.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

// loadConfig reads the --config file (falling back to the runner's config when the default
// path does not exist), resolves credential references and applies the log level.
func (r *Runner) loadConfig(ctx context.Context, cmd *cli.Command) (*shared.Config, error) {
	path := cmd.String("config")

	var cfg *shared.Config
	if _, err := os.Stat(path); err == nil || cmd.IsSet("config") {
		loaded, err := shared.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		copied := *r.config
		cfg = &copied
		cfg.ApplyEnv()
		r.logger.Debug("config file not found, using defaults", "path", path)
	}

	if err := r.resolveSecrets(ctx, cfg); err != nil {
		return nil, err
	}

	level, err := shared.ParseLogLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	if cmd.Bool("verbose") {
		level = log.DebugLevel
	}
	shared.SetLogLevel(r.logger, level)

	return cfg, nil
}

func (r *Runner) resolveSecrets(ctx context.Context, cfg *shared.Config) error {
	if r.secrets == nil {
		var api secrets.ManagerAPI
		if secrets.NeedsAWS(cfg.Mailchimp.APIKey, cfg.Mailchimp.AccessToken, cfg.Mailchimp.ClientSecret, cfg.Source.DSN) {
			client, err := secrets.NewManagerClient(ctx)
			if err != nil {
				return err
			}
			api = client
		}
		r.secrets = secrets.NewResolver(api)
	}
	return r.secrets.ResolveConfig(ctx, cfg)
}

func credentials(cfg *shared.Config) services.Credentials {
	return services.Credentials{
		Method:      cfg.Mailchimp.AuthMethod,
		APIKey:      cfg.Mailchimp.APIKey,
		AccessToken: cfg.Mailchimp.AccessToken,
	}
}

// resolve validates cfg and builds the run context.
func (r *Runner) resolve(ctx context.Context, cfg *shared.Config) (*services.RunContext, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return r.endpoints(cfg).Resolve(ctx, credentials(cfg), cfg.Mailchimp.ListID)
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
