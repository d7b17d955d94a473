package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "0.1.0"
	cfgFile   string
	logLevel  string
	logFormat string
	output    string
)

var rootCmd = &cobra.Command{
	Use:   "chrome-installer",
	Short: "Provision a headless Chrome for Testing build",
	Long: `chrome-installer detects the host, installs the native libraries Chrome needs,
downloads a pinned Chrome for Testing build from the first mirror that answers,
and verifies the unpacked executable.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("chrome-installer v%s (%s)\n", version, hostPlatform())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is /etc/chrome-installer/chrome-installer.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text or json")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "yaml", "output format for status and detect: yaml or json")

	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(depsCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
