package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/plugin-publisher/internal/config"
	"github.com/oshokin/plugin-publisher/internal/domain/release"
	"github.com/oshokin/plugin-publisher/internal/logger"
	"github.com/oshokin/plugin-publisher/internal/service/publisher"
	"github.com/oshokin/plugin-publisher/internal/version"
)

var (
	// slug of the plugin; defaults to the project directory name.
	slug string
	// bump kind: patch, minor or major.
	bump string
	// changelog entries, one per flag occurrence.
	changelog []string
	// isStable marks the release as stable.
	isStable bool
	// envFile is the dotenv file with bucket credentials.
	envFile string
	// settingsPath is the YAML settings file.
	settingsPath string
	// skipUpload builds everything locally without touching the bucket.
	skipUpload bool
	// interactive asks for values missing from flags.
	interactive bool
	// logLevel is the minimal level of log messages.
	logLevel string

	// rootCmd represents the base command for publishing a plugin release.
	rootCmd = &cobra.Command{
		Use:   "plugin-publisher [project-dir]",
		Short: "Bump, package and publish a plugin release",
		Long: "Bump the version in the plugin entry file, build the release ZIP, update the " +
			"update-check metadata and upload both to an S3-compatible bucket.",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			level, ok := logger.ParseLogLevel(logLevel)
			if !ok {
				return fmt.Errorf("unknown log level %q", logLevel)
			}

			logger.SetLevel(level)

			return nil
		},
		RunE: runPublish,
	}

	// initCmd writes a settings file with the default values.
	initCmd = &cobra.Command{
		Use:   "init",
		Short: "Write a settings file with default exclusion rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := settingsPath
			if path == "" {
				path = config.DefaultSettingsFilename
			}

			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("settings file %s already exists", path)
			}

			settings := config.DefaultSettings()
			settings.Exclude = config.DefaultSettings().Rules()
			settings.ReplaceDefaultExclusions = true

			if err := config.SaveSettings(path, &settings); err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Settings written to %s\n", path)

			return nil
		},
	}
)

// Execute runs the plugin-publisher CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)
	rootCmd.AddCommand(initCmd)

	if err := rootCmd.Execute(); err != nil {
		logger.Error(context.Background(), err)
		os.Exit(1)
	}
}

func runPublish(cmd *cobra.Command, args []string) error {
	// Setup graceful shutdown handling.
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	projectPath := "."
	if len(args) > 0 {
		projectPath = args[0]
	}

	absPath, err := filepath.Abs(projectPath)
	if err != nil {
		return err
	}

	req := release.Request{
		ProjectPath: absPath,
		Slug:        slug,
		Bump:        release.BumpKind(bump),
		Changelog:   changelog,
		IsStable:    isStable,
	}

	flags := cmd.Flags()
	if interactive {
		if req.Slug == "" {
			req.Slug = filepath.Base(absPath)
		}

		err = promptMissing(&req, provided{
			slug:   flags.Changed("slug"),
			bump:   flags.Changed("bump"),
			stable: flags.Changed("stable"),
		})
		if err != nil {
			return err
		}
	} else if req.Slug == "" {
		req.Slug = filepath.Base(absPath)
	}

	cfg, err := config.Load(config.LoadOptions{
		EnvFile:      envFile,
		SettingsPath: settingsPath,
	})
	if err != nil {
		return err
	}

	result, err := publisher.Run(ctx, &publisher.Options{
		Request:    req,
		Config:     cfg,
		SkipUpload: skipUpload,
	})
	if err != nil {
		return err
	}

	printSummary(cmd.OutOrStdout(), result)

	return nil
}

// printSummary reports what was produced and uploaded.
func printSummary(w io.Writer, result *publisher.Result) {
	_, _ = fmt.Fprintf(w, "Version: %s -> %s\n", result.Previous, result.Current)
	_, _ = fmt.Fprintf(w, "Archive: %s (%d files)\n", result.Archive.Path, result.Archive.Files)
	_, _ = fmt.Fprintf(w, "SHA-512: %s\n", result.Archive.Checksum)
	_, _ = fmt.Fprintf(w, "Metadata: %s\n", result.RecordPath)

	if len(result.Objects) == 0 {
		_, _ = fmt.Fprintln(w, "Upload skipped")
		return
	}

	for _, object := range result.Objects {
		_, _ = fmt.Fprintf(w, "Uploaded: %s/%s (%d bytes)\n", object.Bucket, object.Key, object.Size)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	flags := rootCmd.Flags()
	flags.StringVarP(&slug, "slug", "s", "", "plugin slug (defaults to the project directory name)")
	flags.StringVarP(&bump, "bump", "b", string(release.BumpPatch), "version bump: patch, minor or major")
	flags.StringArrayVarP(&changelog, "changelog", "m", nil, "changelog entry (repeat for several entries)")
	flags.BoolVar(&isStable, "stable", false, "mark the release as stable")
	flags.StringVar(&envFile, "env-file", "", "path to the dotenv file (default \".env\")")
	flags.BoolVar(&skipUpload, "skip-upload", false, "build the archive and metadata without uploading")
	flags.BoolVarP(&interactive, "interactive", "i", false, "prompt for values not given as flags")

	persistent := rootCmd.PersistentFlags()
	persistent.StringVar(&settingsPath, "settings", "",
		fmt.Sprintf("path to the settings file (default %q)", config.DefaultSettingsFilename))
	persistent.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error")
}
