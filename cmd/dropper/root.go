package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"impractical.co/dropper/config"
	"impractical.co/dropper/host"
	"impractical.co/dropper/memory"
	"impractical.co/dropper/s3"
	"yall.in"
	"yall.in/colour"
)

// app holds what every command needs once the root command has loaded
// the environment and settings.
type app struct {
	fs     afero.Fs
	out    io.Writer
	logOut io.Writer

	configPath string
	envFile    string
	logLevel   string

	ctx      context.Context
	settings *config.Settings
}

// NewRootCommand returns the root command with all subcommands attached.
// Command output goes to out, logs to logOut.
func NewRootCommand(fs afero.Fs, out, logOut io.Writer) *cobra.Command {
	a := &app{fs: fs, out: out, logOut: logOut}
	rootCmd := &cobra.Command{
		Use:   "dropper",
		Short: "Drop files into a host platform.",
		Long: `dropper runs local files through the same store a file dropper widget uses:
files are filtered against the configured restrictions, loaded, verified and
saved to the host platform as file documents.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.Context())
		},
	}
	rootCmd.SetOut(out)
	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to the settings file")
	rootCmd.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "environment file loaded before the settings")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level, debug or info; overrides the settings")
	rootCmd.AddCommand(newUploadCommand(a))
	rootCmd.AddCommand(newServeCommand(a))
	return rootCmd
}

func (a *app) setup(ctx context.Context) error {
	if err := loadEnv(a.fs, a.envFile); err != nil {
		return err
	}
	settings, err := config.LoadFs(a.fs, a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		settings.Logging.Level = a.logLevel
	}
	a.settings = settings
	a.ctx = yall.InContext(ctx, newLogger(a.logOut, settings.Logging.Level))
	return nil
}

func newLogger(w io.Writer, level string) *yall.Logger {
	if level == "debug" {
		return yall.New(colour.New(w, yall.Debug))
	}
	return yall.New(colour.New(w, yall.Info))
}

// loadEnv sets the variables in the env file at path that aren't set
// already. A missing file is not an error.
func loadEnv(fs afero.Fs, path string) error {
	if path == "" {
		return nil
	}
	content, err := afero.ReadFile(fs, path)
	if errors.Is(err, iofs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("error reading %s: %w", path, err)
	}
	env, err := godotenv.Parse(bytes.NewReader(content))
	if err != nil {
		return fmt.Errorf("error parsing %s: %w", path, err)
	}
	for k, v := range env {
		if _, ok := os.LookupEnv(k); ok {
			continue
		}
		if err := os.Setenv(k, v); err != nil {
			return fmt.Errorf("error setting %s: %w", k, err)
		}
	}
	return nil
}

// newPlatform builds the in-memory host platform the settings describe,
// keeping documents in S3 when configured to. Without a configured domain
// model, only the file entity is known.
func newPlatform(ctx context.Context, settings *config.Settings) (*memory.Platform, error) {
	var docs host.DocumentStore
	switch settings.Host.Storage {
	case "s3":
		client, err := s3.NewClient(ctx, settings.Host.S3)
		if err != nil {
			return nil, err
		}
		docs = s3.NewStorer(client, settings.Host.S3.Bucket, settings.Host.S3.KeyPrefix)
	default:
		storer, err := memory.NewStorer()
		if err != nil {
			return nil, err
		}
		docs = storer
	}

	entities := settings.HostEntities()
	if len(entities) == 0 {
		entities = defaultEntities(settings)
	}
	baseURL := settings.Host.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost"
	}
	return memory.NewPlatform(docs, baseURL, entities...)
}

// defaultEntities returns the file entity and the entity it is associated
// with, with every attribute the settings name.
func defaultEntities(settings *config.Settings) []host.Entity {
	e := host.Entity{
		Name:            settings.Data.FileEntity,
		Generalizations: []string{host.FileDocument},
		Persistable:     true,
		Attributes:      []string{"Name", "Size", "HasContents"},
	}
	for _, attr := range []string{settings.Data.NameAttr, settings.Data.TypeAttr, settings.Data.ExtAttr} {
		if attr != "" && !e.Has(attr) {
			e.Attributes = append(e.Attributes, attr)
		}
	}
	entities := []host.Entity{e}
	ref, owner, _ := strings.Cut(settings.Data.ContextAssociation, "/")
	if ref != "" {
		entities[0].References = append(entities[0].References, ref)
	}
	if owner != "" && owner != e.Name {
		entities = append(entities, host.Entity{Name: owner, Persistable: true})
	}
	return entities
}
