package main

import (
	"fmt"
	"log/slog"
	"os"

	"monarch"
	"monarch/cmd/monarch/ui"
	"monarch/config"
	"monarch/internal/channel"
	"monarch/internal/journal"
	"monarch/internal/logging"

	"github.com/spf13/cobra"
)

// globals holds the persistent flags and the configuration they resolve to.
type globals struct {
	debug      bool
	configPath string
	id         string
	runtimeDir string
	noColor    bool

	cfg *config.Config
	log *slog.Logger
}

func main() {
	if _, err := logging.Configure(logging.LevelWarn); err != nil {
		_, _ = os.Stderr.WriteString("configure logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.ErrorMsg("%v", err))
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:           "monarch",
		Short:         "Single-instance application host",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return g.load()
		},
	}
	root.PersistentFlags().BoolVar(&g.debug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "Config file (default "+config.Path()+")")
	root.PersistentFlags().StringVar(&g.id, "id", "", "Instance identity (overrides config)")
	root.PersistentFlags().StringVar(&g.runtimeDir, "runtime-dir", "", "Directory for sockets and lock files")
	root.PersistentFlags().BoolVar(&g.noColor, "no-color", false, "Disable colors and animation")

	root.AddCommand(runCmd(g))
	root.AddCommand(sendCmd(g))
	root.AddCommand(statusCmd(g))
	root.AddCommand(historyCmd(g))
	return root
}

func (g *globals) load() error {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return err
	}
	if g.id != "" {
		cfg.ID = g.id
	}
	if g.runtimeDir != "" {
		cfg.RuntimeDir = g.runtimeDir
	}
	if g.debug {
		cfg.LogLevel = logging.LevelDebug
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log, err := logging.Configure(cfg.LogLevel)
	if err != nil {
		return err
	}
	ui.Configure(g.noColor)

	g.cfg, g.log = cfg, log
	return nil
}

func (g *globals) identity() monarch.Identity {
	// Validated in load.
	return monarch.MustParseIdentity(g.cfg.ID)
}

func (g *globals) dir() string {
	if g.cfg.RuntimeDir != "" {
		return g.cfg.RuntimeDir
	}
	return channel.DefaultDir()
}

func (g *globals) journalPath() string {
	if g.cfg.JournalPath != "" {
		return g.cfg.JournalPath
	}
	return journal.DefaultPath(g.identity())
}
