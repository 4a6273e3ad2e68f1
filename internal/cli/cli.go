// Package cli implements the canopy command-line interface.
//
// The tree, keys and flatten commands run the tree transforms over JSON read
// from a file or stdin. serve exposes the console trees and dictionaries of
// a DynamoDB deployment over HTTP.
package cli

import (
	"io"
	"log/slog"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

const appName = "canopy"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

var (
	version = "dev"
	commit  string
	date    string
)

// SetVersion sets the version information displayed by --version.
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
}

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	configPath string
}

// New creates a new CLI instance logging to w.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// slog returns the CLI logger as a *slog.Logger for the library packages.
func (c *CLI) slog() *slog.Logger {
	return slog.New(c.Logger)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "Canopy turns flat console records into trees",
		Long:         `Canopy builds display forests from flat menu, department and category lists, and serves them together with dictionary data from DynamoDB.`,
		Version:      version,
		SilenceUsage: true,
	}
	root.SetVersionTemplate(appName + " {{.Version}}\ncommit: " + commit + "\nbuilt: " + date + "\n")

	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "config file (default ./"+DefaultConfigFile+" if present)")

	root.AddCommand(c.treeCommand())
	root.AddCommand(c.keysCommand())
	root.AddCommand(c.flattenCommand())
	root.AddCommand(c.kindsCommand())
	root.AddCommand(c.dictCommand())
	root.AddCommand(c.serveCommand())

	return root
}

// config loads the file named by --config, or the defaults.
func (c *CLI) config() (Config, error) {
	return LoadConfig(c.configPath)
}

// newLogger creates a logger with timestamps formatted as "HH:MM:SS.ms".
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}
