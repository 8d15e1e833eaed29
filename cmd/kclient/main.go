package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/komparu/komparu-go/cmd/kclient/commands"
	"github.com/komparu/komparu-go/internal/constants"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "kclient",
	Short: "Komparu API CLI",
	Long: `A command-line interface for the Komparu REST API.

Resources are addressed by name. Parameters are given as key=value pairs,
dotted keys become nested parameters (filter.brand=acme).`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.kclient/config.yml)")
	rootCmd.PersistentFlags().StringP("url", "u", "", "API base URL")
	rootCmd.PersistentFlags().StringP("token", "t", "", "authentication token (X-Auth-Token)")
	rootCmd.PersistentFlags().StringP("domain", "d", "", "authentication domain (X-Auth-Domain)")
	rootCmd.PersistentFlags().StringP("language", "l", "", "response language (Accept-Language)")
	rootCmd.PersistentFlags().String("output", constants.FormatJSON, "output format (table, json, yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("cache", "none", "cache backend (none, memory, sqlite, nats)")
	rootCmd.PersistentFlags().String("cache-path", "", "SQLite cache file (default is $HOME/.kclient/cache.db)")
	rootCmd.PersistentFlags().String("nats-url", "", "NATS server URL for the nats cache backend")

	// Bind flags to viper
	for _, name := range []string{"config", "url", "token", "domain", "language", "output", "verbose", "cache", "cache-path", "nats-url"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}

	// Add commands
	rootCmd.AddCommand(commands.NewVersionCommand(version, commit, date))
	rootCmd.AddCommand(commands.NewAuthCommand())
	rootCmd.AddCommand(commands.NewGetCommand())
	rootCmd.AddCommand(commands.NewShowCommand())
	rootCmd.AddCommand(commands.NewStoreCommand())
	rootCmd.AddCommand(commands.NewUpdateCommand())
	rootCmd.AddCommand(commands.NewDeleteCommand())
	rootCmd.AddCommand(commands.NewBatchCommand())
	rootCmd.AddCommand(commands.NewCacheCommand())
}

func initConfig() {
	cfgFile := viper.GetString("config")

	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, commands.ConfigDirName)

		// Search config in ~/.kclient/config.yml
		viper.AddConfigPath(configDir)
		viper.SetConfigType("yml")
		viper.SetConfigName("config")
	}

	// Read in environment variables that match
	viper.SetEnvPrefix("KCLIENT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
