// Package main is the entry point for seifmios, a chat bot that learns word
// categories from the conversations it overhears.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/normanking/seifmios/internal/config"
	"github.com/normanking/seifmios/internal/logging"
)

var (
	version = "0.1.0"
	cfgPath string
	verbose bool
	cfg     *config.Config
	log     *logging.Logger

	// cfgExisted is false when this run created the config file.
	cfgExisted bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "seifmios",
		Short: "seifmios - a chat bot that learns word categories",
		Long: `seifmios listens to conversations, groups words that appear in the same
places into categories, and answers by walking what it has learned.

Start the bot:        seifmios serve
Talk to a running bot: seifmios ctl tell ` + "`hello there`" + `
Configuration:        seifmios config show`,
		PersistentPreRunE: initLogging,
		SilenceUsage:      true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default ~/.seifmios/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("seifmios v%s\n", version)
		},
	})
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(ctlCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func getConfigPath() string {
	if cfgPath != "" {
		return config.ExpandPath(cfgPath)
	}
	return config.DefaultPath()
}

// initLogging loads the configuration and sets up the global logger from it.
func initLogging(cmd *cobra.Command, args []string) error {
	_, statErr := os.Stat(getConfigPath())
	cfgExisted = statErr == nil

	var err error
	cfg, err = config.LoadFromPath(getConfigPath())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", getConfigPath(), err)
	}

	var lc *logging.Config
	if verbose {
		lc = logging.VerboseConfig()
	} else {
		lc = logging.DefaultConfig()
		lc.Level = logging.ParseLevel(cfg.Logging.Level)
	}
	// Only the long-running server writes a log file.
	if cmd.Name() == "serve" {
		lc.FilePath = cfg.Logging.File
	}

	log = logging.New(lc)
	logging.SetGlobal(log)

	if verbose {
		log.Debug("Verbose logging enabled")
		log.Debug("Config path: %s", getConfigPath())
	}
	return nil
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Printf("# %s\n%s", getConfigPath(), data)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(getConfigPath())
		},
	})

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := getConfigPath()
			if cfgExisted && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := config.Default().SaveToPath(path); err != nil {
				return err
			}
			fmt.Printf("Wrote default configuration to %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	cmd.AddCommand(initCmd)

	return cmd
}
