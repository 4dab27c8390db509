package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const defaultConfig = `# directory holding cached audio and the voice index
# data_dir: "~/.local/share/voxcache"
# address "voxcache serve" listens on
listen: ":8080"

log:
  # debug, info, warn or error
  level: "info"
  # text or json
  format: "text"

# Amazon Polly voice provider
polly:
  region: "us-east-1"
  voice: "Joanna"
  # standard or neural
  engine: "standard"
  # mp3 or pcm
  output_format: "mp3"
  # 0 lets Polly choose
  sample_rate: 0

# offline fallback
offline:
  binary: "pico2wave"
  language: "en-US"

timeouts:
  synthesis: "15s"
  convert: "10s"
  offline: "10s"

# voice index storage
store:
  # file or redis
  backend: "file"
  # zstd level for the index file, 0 disables compression
  compress: 0
  redis:
    addr: "localhost:6379"
    key: "voxcache:voices"
`

var printConfig bool

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the voxcache config file",
	Long:    paragraph(fmt.Sprintf("\n%s the voxcache config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("voxcache config\nvoxcache config --print\nvoxcache config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if printConfig {
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("unable to render config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		}

		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("voxcache", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func init() {
	configCmd.Flags().BoolVar(&printConfig, "print", false, "print the effective configuration as YAML")
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if configFile == "" {
			return errors.New("no configuration file location found")
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
