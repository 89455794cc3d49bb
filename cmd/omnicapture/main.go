package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/omnicapture/agent/internal/config"
)

var (
	version   = "0.1.0"
	cfgFile   string
	synthetic bool
)

var rootCmd = &cobra.Command{
	Use:   "omnicapture",
	Short: "Screen and audio recorder",
	Long:  `omnicapture records a screen region with system and microphone audio to MP4 or GIF using ffmpeg.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("omnicapture v%s\n", version)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustLoadConfig()
		out, err := cfg.YAML()
		if err != nil {
			fatalf("Failed to render config: %v", err)
		}
		os.Stdout.Write(out)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is <user config dir>/omnicapture/omnicapture.yaml)")
	rootCmd.PersistentFlags().BoolVar(&synthetic, "synthetic", false, "use generated screen and audio sources instead of the desktop")

	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// mustLoadConfig loads the config, applies overrides and validates it.
// Warnings are printed and the corrected values kept; fatal problems exit.
func mustLoadConfig(overrides ...func(*config.Config)) *config.Config {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	for _, o := range overrides {
		o(cfg)
	}
	result := cfg.ValidateTiered()
	for _, w := range result.Warnings {
		fmt.Fprintf(os.Stderr, "config warning: %v\n", w)
	}
	if result.HasFatals() {
		for _, f := range result.Fatals {
			fmt.Fprintf(os.Stderr, "config error: %v\n", f)
		}
		os.Exit(1)
	}
	return cfg
}
