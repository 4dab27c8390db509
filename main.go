// Package main provides the entry point for the voxcache CLI.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	debug      bool

	// cfg is the effective configuration, set before any subcommand runs.
	cfg Config

	rootCmd = &cobra.Command{
		Use:   "voxcache",
		Short: "Cached speech synthesis with an offline fallback",
		Long: paragraph(
			fmt.Sprintf("\nSpeak text through Amazon Polly, %s, and fall back to pico2wave when the cloud is away.", keyword("cache every voice")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
	}
)

func validateOptions(cmd *cobra.Command) error {
	if cmd.Flags().Changed("config") {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file: %w", err)
		}
	}

	var err error
	cfg, err = configFromViper(viper.GetViper())
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	applyLogConfig(cfg.Log, debug)
	return nil
}

// watchConfig re-applies the log level whenever the config file changes.
func watchConfig() {
	if viper.ConfigFileUsed() == "" {
		return
	}
	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		next, err := configFromViper(viper.GetViper())
		if err != nil {
			log.Warn("Ignoring invalid configuration change", "path", e.Name, "err", err)
			return
		}
		applyLogConfig(next.Log, debug)
		log.Info("Configuration reloaded", "path", e.Name, "level", next.Log.Level)
	})
	viper.WatchConfig()
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().String("data-dir", "", "directory for cached audio and the voice index")
	rootCmd.PersistentFlags().String("voice", "", "Polly voice id")

	_ = viper.BindPFlag("data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	_ = viper.BindPFlag("polly.voice", rootCmd.PersistentFlags().Lookup("voice"))

	setConfigDefaults(viper.GetViper())

	rootCmd.AddCommand(serveCmd, sayCmd, recordsCmd, configCmd, manCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "voxcache")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	envCfg, err := env.ParseAs[envConfig]()
	if err != nil {
		log.Warn("Could not parse environment", "err", err)
	}
	if c := envCfg.XDGConfigHome; c != "" {
		dirs = append([]string{filepath.Join(c, "voxcache")}, dirs...)
	}
	if c := envCfg.ConfigHome; c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("voxcache")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("voxcache")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", used)
		configFile = used
		return
	}

	configFile = filepath.Join(dirs[0], "voxcache.yml")
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
