// Package cmd implements the webmodd command line.
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/GoCodeAlone/webmod"
	"github.com/GoCodeAlone/webmod/feeders"
	"github.com/GoCodeAlone/webmod/internal/demo"
	"github.com/spf13/cobra"
)

// EnvPrefix prefixes every environment variable the config reads.
const EnvPrefix = "WEBMOD"

// DemoSection is the config file section holding demo.Options.
const DemoSection = "demo"

// Version information
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// PrintVersion prints version information
func PrintVersion() string {
	return fmt.Sprintf("webmodd v%s (commit: %s, built on: %s)", Version, Commit, Date)
}

type globalOptions struct {
	configFile string
	envFile    string
	salutation string
	adminToken string

	// flagChanged reports whether a flag was given on the command line.
	flagChanged func(name string) bool
}

// NewRootCommand creates the root command for the webmodd application
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:   "webmodd",
		Short: "webmodd - serve a modular webmod application",
		Long: `webmodd serves the demo module tree over HTTP and offers
commands to inspect its routes and effective configuration.`,
		SilenceUsage: true,
		Version:      Version,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			opts.flagChanged = cmd.Flags().Changed
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.SetVersionTemplate(PrintVersion() + "\n")

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "config file (.yaml, .yml, .toml or .json)")
	flags.StringVar(&opts.envFile, "env-file", "", ".env file read before the environment")
	flags.StringVar(&opts.salutation, "salutation", "Hello", "greeting used by the demo")
	flags.StringVar(&opts.adminToken, "admin-token", os.Getenv(EnvPrefix+"_ADMIN_TOKEN"), "token for /admin routes")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newRoutesCommand(opts))
	cmd.AddCommand(newConfigCommand(opts))
	return cmd
}

// loadConfig builds the feeder chain: file, .env file, then environment.
func loadConfig(opts *globalOptions) (*webmod.Config, error) {
	var chain []webmod.Feeder
	if opts.configFile != "" {
		f, err := fileFeeder(opts.configFile)
		if err != nil {
			return nil, err
		}
		chain = append(chain, f)
	}
	if opts.envFile != "" {
		chain = append(chain, feeders.NewDotEnvFeeder(opts.envFile, EnvPrefix))
	}
	chain = append(chain, feeders.NewEnvFeeder(EnvPrefix))

	cfg := &webmod.Config{}
	if err := webmod.LoadConfig(cfg, chain...); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// fileConfig is a file feeder that can also decode a single section.
type fileConfig interface {
	webmod.Feeder
	FeedKey(key string, target any) error
}

func fileFeeder(path string) (fileConfig, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return feeders.NewYamlFeeder(path), nil
	case ".toml":
		return feeders.NewTomlFeeder(path), nil
	case ".json":
		return feeders.NewJSONFeeder(path), nil
	default:
		return nil, fmt.Errorf("%w: unsupported config file %q", webmod.ErrConfigFeederError, path)
	}
}

// newLogger builds the slog logger described by cfg.
func newLogger(cfg webmod.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

// demoOptions reads the demo section of the config file. Flags given on
// the command line win over the file.
func demoOptions(opts *globalOptions) (demo.Options, error) {
	o := demo.Options{Salutation: opts.salutation, AdminToken: opts.adminToken}
	if opts.configFile == "" {
		return o, nil
	}
	f, err := fileFeeder(opts.configFile)
	if err != nil {
		return o, err
	}
	var section demo.Options
	if err := f.FeedKey(DemoSection, &section); err != nil {
		return o, fmt.Errorf("load %s section: %w", DemoSection, err)
	}
	changed := opts.flagChanged
	if changed == nil {
		changed = func(string) bool { return false }
	}
	if section.Salutation != "" && !changed("salutation") {
		o.Salutation = section.Salutation
	}
	if section.AdminToken != "" && !changed("admin-token") {
		o.AdminToken = section.AdminToken
	}
	o.TickInterval = section.TickInterval
	return o, nil
}

func demoModule(opts *globalOptions, logger webmod.Logger) (*webmod.Module, error) {
	o, err := demoOptions(opts)
	if err != nil {
		return nil, err
	}
	return demo.NewModule(logger, o), nil
}
