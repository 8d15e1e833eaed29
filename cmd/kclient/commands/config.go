package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/komparu/komparu-go/internal/constants"
)

// Config represents the persisted CLI configuration.
type Config struct {
	URL      string `json:"url,omitempty"      yaml:"url,omitempty"`
	Token    string `json:"token,omitempty"    yaml:"token,omitempty"`
	Domain   string `json:"domain,omitempty"   yaml:"domain,omitempty"`
	Language string `json:"language,omitempty" yaml:"language,omitempty"`
	Output   string `json:"output,omitempty"   yaml:"output,omitempty"`
	Cache    string `json:"cache,omitempty"    yaml:"cache,omitempty"`
}

func loadConfig() *Config {
	return &Config{
		URL:      viper.GetString("url"),
		Token:    viper.GetString("token"),
		Domain:   viper.GetString("domain"),
		Language: viper.GetString("language"),
		Output:   viper.GetString("output"),
		Cache:    viper.GetString("cache"),
	}
}

// configFilePath returns the file in use, or $HOME/.kclient/config.yml.
func configFilePath() (string, error) {
	configFile := viper.ConfigFileUsed()
	if configFile != "" {
		return configFile, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(home, ConfigDirName, "config.yml"), nil
}

func saveConfig(config *Config) error {
	configFile, err := configFilePath()
	if err != nil {
		return err
	}

	return writeConfigFile(configFile, config)
}

func writeConfigFile(configFile string, config *Config) error {
	err := os.MkdirAll(filepath.Dir(configFile), constants.ConfigDirPerm)
	if err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	err = os.WriteFile(configFile, data, constants.ConfigFilePerm)
	if err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
