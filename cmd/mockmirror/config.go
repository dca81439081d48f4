package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/mirrorctl/mockmirror/internal/mirror"
)

// knownSections are the top level tables of the configuration.
var knownSections = []string{"failures", "auth", "growing", "signing", "log"}

// loadConfig returns the defaults overlaid with the file at p, if any.
func loadConfig(p string) (*mirror.Config, error) {
	config := mirror.NewConfig()
	if p == "" {
		return config, nil
	}

	undecoded, err := config.DecodeFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "configuration file not found: %s", p)
		}
		return nil, errors.Wrapf(err, "failed to decode config file: %s", p)
	}
	if len(undecoded) > 0 {
		return nil, errors.Newf("%s: %s", p, formatUndecodedError(undecoded))
	}
	return config, nil
}

// analyzeUndecoded examines undecoded TOML keys and suggests the section
// that was probably meant, e.g. [failure] for [failures].
func analyzeUndecoded(undecoded []toml.Key) (suggestions []string, unknown []string) {
	groups := make(map[string]int)
	var order []string

	for _, key := range undecoded {
		keyStr := key.String()
		root := key[0]
		if suggestSection(root) != "" {
			if groups[root] == 0 {
				order = append(order, root)
			}
			groups[root]++
			continue
		}
		unknown = append(unknown, keyStr)
	}

	for _, root := range order {
		correct := suggestSection(root)
		if groups[root] == 1 {
			suggestions = append(suggestions, fmt.Sprintf("Section '%s' should be '%s'", root, correct))
		} else {
			suggestions = append(suggestions, fmt.Sprintf("Section '%s' should be '%s' (affects %d keys)", root, correct, groups[root]))
		}
	}

	return suggestions, unknown
}

// suggestSection returns the known section name differing from s only in
// case or a trailing "s".
func suggestSection(s string) string {
	for _, known := range knownSections {
		if s == known {
			return ""
		}
		if strings.EqualFold(s, known) || strings.EqualFold(s+"s", known) || strings.EqualFold(s, known+"s") {
			return known
		}
	}
	return ""
}

// formatUndecodedError builds a user-friendly error message for undecoded TOML keys
func formatUndecodedError(undecoded []toml.Key) string {
	suggestions, unknown := analyzeUndecoded(undecoded)

	var errorMsg strings.Builder
	if len(suggestions) > 0 {
		errorMsg.WriteString("configuration contains sections that don't match expected structure:\n")
		for _, suggestion := range suggestions {
			errorMsg.WriteString("  • " + suggestion + "\n")
		}
		errorMsg.WriteString("\nNote: Configuration section names are case-sensitive and must match exactly.")
	}

	if len(unknown) > 0 {
		if errorMsg.Len() > 0 {
			errorMsg.WriteString("\n\nAdditionally, found unknown keys: ")
		} else {
			errorMsg.WriteString("configuration contains unknown keys: ")
		}
		errorMsg.WriteString(fmt.Sprintf("%v", unknown))
		errorMsg.WriteString("\nThese keys don't match any expected configuration structure.")
	}

	return errorMsg.String()
}

// applyServeFlags overrides config values with the flags set on cmd.
func applyServeFlags(cmd *cobra.Command, config *mirror.Config) error {
	f := cmd.Flags()

	if f.Changed("port") {
		config.Port, _ = f.GetInt("port")
	}
	if f.Changed("host") {
		config.Host, _ = f.GetString("host")
	}
	if f.Changed("root") {
		config.Root, _ = f.GetString("root")
	}
	if f.Changed("error-type") {
		s, _ := f.GetString("error-type")
		mode, err := mirror.ParseFailureMode(s)
		if err != nil {
			return errors.Wrap(err, "--error-type")
		}
		config.Failures.Mode = mode
	}
	if f.Changed("pkgs") {
		config.Failures.Broken, _ = f.GetStringArray("pkgs")
	}
	if f.Changed("username") {
		config.Auth.Username, _ = f.GetString("username")
	}
	if f.Changed("pwd") {
		config.Auth.Password, _ = f.GetString("pwd")
	}
	if f.Changed("content") {
		config.Growing.Content, _ = f.GetString("content")
	}
	if f.Changed("output") {
		config.Growing.Output, _ = f.GetString("output")
	}
	return nil
}

// applyLogConfig installs the logger, honoring --log-level.
func applyLogConfig(config *mirror.Config) error {
	if err := config.Log.Apply(); err != nil {
		return err
	}
	if logLevel == "" {
		return nil
	}
	config.Log.Level = logLevel
	if err := config.Log.Apply(); err != nil {
		return errors.Wrapf(err, "command-line log level %q", logLevel)
	}
	slog.Debug("log level successfully overridden from command line", "level", logLevel)
	return nil
}
