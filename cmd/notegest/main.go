// Package main is the entry point for the notegest CLI, which converts
// OneNote page exports into Obsidian vaults or Logseq graphs.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is set at build time via ldflags.
var version = "dev"

// rootCmd is the base command for the notegest CLI.
var rootCmd = &cobra.Command{
	Use:   "notegest",
	Short: "Convert OneNote exports into Obsidian or Logseq notes",
	Long: `notegest converts OneNote page XML exports into Markdown knowledge bases.

The obsidian dialect writes a vault of notes with YAML front matter and wiki
links. The logseq dialect writes a graph of outline pages, journals and query
dashboards. Both dialects write image_extraction_map.json so picture bytes can
be fetched from OneNote separately.`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./notegest.yaml or ~/.config/notegest/notegest.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().String("manifest", "", "sqlite manifest recording runs and page outcomes")
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("manifest", rootCmd.PersistentFlags().Lookup("manifest"))
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("notegest")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "notegest"))
		}
	}

	viper.SetEnvPrefix("NOTEGEST")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newLogger returns the CLI logger: text on stderr, debug with --verbose.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
