package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"murmur.click/internal/config"
)

const Version = "0.4.0"

// CLI represents the command-line interface
type CLI struct {
	rootCmd          *cobra.Command
	configManager    *config.ConfigManager
	terminalDetector TerminalDetector
}

// NewCLI creates a CLI on the OS filesystem
func NewCLI() *CLI {
	return NewCLIWithFilesystem(afero.NewOsFs())
}

// NewCLIWithFilesystem creates a CLI whose config and log files live on fs
func NewCLIWithFilesystem(fs afero.Fs) *CLI {
	c := &CLI{
		configManager:    config.NewConfigManagerWithFilesystem(fs),
		terminalDetector: &DefaultTerminalDetector{},
	}

	rootCmd := &cobra.Command{
		Use:           "murmur",
		Short:         "Local speech agent",
		Long:          "murmur reads the clipboard or a local LLM's answer aloud through a cloud speech service, one utterance at a time.",
		RunE:          c.runServe, // serve when no subcommand is given
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("config", "", "Path to config file")
	rootCmd.PersistentFlags().String("addr", "", "Agent listen address (loopback only)")
	rootCmd.PersistentFlags().String("backend", "", "Audio backend: auto, malgo, oto or null")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("volume", "", "Playback volume (0.0 to 1.0)")
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	rootCmd.AddCommand(
		c.newServeCommand(),
		c.newSpeakCommand(),
		c.newControlCommand("pause", "Pause a playback"),
		c.newControlCommand("resume", "Resume a paused playback"),
		c.newControlCommand("stop", "Stop a playback"),
		c.newStatusCommand(),
		newVersionCommand(),
	)

	c.rootCmd = rootCmd
	return c
}

// Run executes the CLI and returns the process exit code
func (c *CLI) Run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	return c.RunContext(context.Background(), args, stdin, stdout, stderr)
}

// RunContext is Run with a caller-controlled context; cancelling it stops a running agent
func (c *CLI) RunContext(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	c.rootCmd.SetArgs(args[1:]) // Skip program name
	c.rootCmd.SetIn(stdin)
	c.rootCmd.SetOut(stdout)
	c.rootCmd.SetErr(stderr)

	if err := c.rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		slog.Debug("command failed", "error", err)
		return 1
	}
	return 0
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			printVersion(cmd.OutOrStdout())
		},
	}
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "murmur version %s\n", Version)
}

// loadConfig loads configuration from file, environment and flags, in that order, and validates it
func (c *CLI) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configFile, _ := cmd.Flags().GetString("config")
	addr, _ := cmd.Flags().GetString("addr")
	backend, _ := cmd.Flags().GetString("backend")
	logLevel, _ := cmd.Flags().GetString("log-level")
	volumeStr, _ := cmd.Flags().GetString("volume")

	var cfg *config.Config
	var err error
	if configFile != "" {
		cfg, err = c.configManager.LoadFromFile(configFile)
	} else {
		cfg, err = c.configManager.LoadConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}

	cfg = c.configManager.ApplyEnvironmentOverrides(cfg)

	override := &config.Config{
		ListenAddr:   addr,
		AudioBackend: backend,
		LogLevel:     logLevel,
	}
	if volumeStr != "" {
		vol, err := strconv.ParseFloat(volumeStr, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid volume value '%s': %w", volumeStr, err)
		}
		if vol < 0.0 || vol > 1.0 {
			return nil, fmt.Errorf("volume must be between 0.0 and 1.0, got %f", vol)
		}
		override.Volume = vol
	}
	cfg = c.configManager.MergeConfigs(cfg, override)
	// MergeConfigs skips zero values, so an explicit mute needs its own pass
	if volumeStr != "" && override.Volume == 0 {
		cfg.Volume = 0
	}

	if err := c.configManager.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
