// VisionChat - chat and image Q&A over Gemini
//
// Environment variables:
//   VISIONCHAT_CONFIG          - Config file path (default: ~/.visionchat/config.json)
//   VISIONCHAT_CONFIG_JSON     - Full config JSON (alternative to config file)
//   VISIONCHAT_API_KEY         - Google API key for the ask command

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sipeed/visionchat/pkg/config"
	"github.com/sipeed/visionchat/pkg/logger"
)

var (
	version   = "dev"
	gitCommit = "unknown"
	buildTime = "unknown"
)

const defaultConfigPath = "~/.visionchat/config.json"

type rootOptions struct {
	configPath string
	logLevel   string
	cfg        *config.Config
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "visionchat",
		Short:         "AI chat and image assistant",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" || cmd.Name() == "init" {
				return nil
			}
			return opts.load()
		},
	}

	defaultPath := os.Getenv("VISIONCHAT_CONFIG")
	if defaultPath == "" {
		defaultPath = defaultConfigPath
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultPath, "config file (json, yaml or toml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	root.AddCommand(
		newServeCommand(opts),
		newAskCommand(opts),
		newHistoryCommand(opts),
		newInitCommand(opts),
		newVersionCommand(),
	)
	return root
}

func (o *rootOptions) load() error {
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	level := cfg.Log.Level
	if o.logLevel != "" {
		level = o.logLevel
	}
	logger.Init(os.Stderr, level, cfg.Log.Pretty && term.IsTerminal(int(os.Stderr.Fd())))
	o.cfg = cfg
	return nil
}

func newInitCommand(opts *rootOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.configPath
			if _, err := os.Stat(config.ExpandHome(path)); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.SaveConfig(path, config.DefaultConfig()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Config written to %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing config")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "visionchat %s (commit %s, built %s)\n", version, gitCommit, buildTime)
		},
	}
}
