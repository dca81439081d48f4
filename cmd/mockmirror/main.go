// Package main implements the mockmirror command, a package mirror test
// double with byte ranges, failure injection and a growing file.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/mirrorctl/mockmirror/internal/mirror"
)

var (
	// Build information - can be set via build flags
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"

	// Command-line flags
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "mockmirror",
	Short: "Serve a fake package mirror for download client tests",
	Long: `mockmirror serves files under <root>/static/ and misbehaves on purpose:
byte ranges, files that 404 until retried, corrupted checksums, basic auth
and a file that grows on request.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the mock mirror",
	Long: `Start the mock mirror and print "Server started!" once it is listening.

Usage:
  # Serve ./static on 127.0.0.1:5555
  mockmirror serve

  # Let the third request for each broken file through
  mockmirror serve -e lazy --pkgs _repodata_test.json --pkgs test-package-0.1-0.tar.bz2

  # Require basic auth
  mockmirror serve -u user --pwd test

  # Enable the growing file
  mockmirror serve --content growing_content --output test

  # Use a configuration file; flags override its values
  mockmirror serve --config mockmirror.toml --port 8000`,
	Args: cobra.NoArgs,
	Run:  runServe,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long:  `Validate the configuration file and report any issues.`,
	Args:  cobra.NoArgs,
	Run:   runValidate,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print version information including build details",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("mockmirror %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", buildDate)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "configuration file path (TOML, or YAML by extension)")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("verbose-errors", false, "show detailed error information including stack traces")

	f := serveCmd.Flags()
	f.IntP("port", "p", 5555, "port to listen on")
	f.StringP("host", "n", "127.0.0.1", "address to listen on")
	f.StringP("error-type", "e", "", "failure mode for broken files: 404, broken, lazy (or not-found, corrupt, lazy-retry)")
	f.StringP("username", "u", "", "basic auth username")
	f.String("pwd", "", "basic auth password")
	f.String("content", "", "seed content of the growing file")
	f.String("output", "", "name embedded in the growing file artifact")
	f.StringArray("pkgs", nil, "file name subject to the failure mode (repeatable)")
	f.String("root", "", "directory holding static/")

	seedCmd.Flags().Uint64("seed", 42, "random seed")
	seedCmd.Flags().Int("exponent", 26, "write 2^exponent bytes")
}

// formatError returns a human-friendly error message, optionally with stack trace
func formatError(err error, verbose bool) string {
	if verbose {
		return fmt.Sprintf("%+v", err) // Full details with stack trace
	}

	flattened := errors.FlattenDetails(err)
	if flattened != "" {
		return flattened
	}

	return err.Error()
}

func fail(cmd *cobra.Command, msg string, err error) {
	verbose, _ := cmd.Flags().GetBool("verbose-errors")
	slog.Error(msg, "error", formatError(err, verbose))
	if !verbose {
		slog.Info("run with --verbose-errors for detailed stack traces")
	}
	os.Exit(1)
}

func runServe(cmd *cobra.Command, _ []string) {
	config, err := loadConfig(configPath)
	if err != nil {
		fail(cmd, "failed to load config", err)
	}
	if err := applyServeFlags(cmd, config); err != nil {
		fail(cmd, "invalid flags", err)
	}
	if err := applyLogConfig(config); err != nil {
		fail(cmd, "failed to apply log config", err)
	}

	srv, err := mirror.NewServer(config)
	if err != nil {
		fail(cmd, "failed to start server", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := srv.Listen()
	if err != nil {
		fail(cmd, "failed to start server", err)
	}
	fmt.Println("Server started!")

	if err := srv.Serve(ctx, ln); err != nil {
		fail(cmd, "server failed", err)
	}
}

func runValidate(cmd *cobra.Command, _ []string) {
	if configPath == "" {
		fail(cmd, "nothing to validate", errors.New("no configuration file given, use --config"))
	}

	config, err := loadConfig(configPath)
	if err != nil {
		fail(cmd, "failed to load config", err)
	}

	var validationErrors []error
	if err := config.Log.Apply(); err != nil {
		validationErrors = append(validationErrors, errors.Wrap(err, "log config"))
	}
	if err := config.Check(); err != nil {
		validationErrors = append(validationErrors, err)
	}

	if len(validationErrors) > 0 {
		slog.Error("the configuration file is not valid", "path", configPath)
		for _, err := range validationErrors {
			slog.Error(err.Error())
		}
		os.Exit(1)
	}

	slog.Info("the configuration file passes validation checks", "path", configPath)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
