package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/renderhost/chrome-installer/internal/deps"
	"github.com/renderhost/chrome-installer/internal/installer"
	"github.com/renderhost/chrome-installer/internal/platform"
	"github.com/renderhost/chrome-installer/internal/statusserver"
	"github.com/renderhost/chrome-installer/internal/workerpool"
)

var (
	statusPath string
	listenAddr string
	depsList   bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether Chrome is installed and which version",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		a, err := setup(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		path := firstNonEmpty(statusPath, a.cfg.InstallPath)
		info := a.installer.InstalledInfo(ctx, path)
		return printOutput(struct {
			installer.Info `yaml:",inline"`
			InstallPath    string `json:"installPath" yaml:"installPath"`
			Wanted         string `json:"wantedVersion" yaml:"wantedVersion"`
			UpToDate       bool   `json:"upToDate" yaml:"upToDate"`
		}{
			Info:        info,
			InstallPath: path,
			Wanted:      a.cfg.ChromeVersion,
			UpToDate:    info.Matches(a.cfg.ChromeVersion),
		})
	},
}

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Print the detected OS, architecture and distro family",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		a, err := setup(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		env := a.installer.Environment()
		return printOutput(struct {
			platform.Environment `yaml:",inline"`
			Token                string `json:"token" yaml:"token"`
			Executable           string `json:"executable" yaml:"executable"`
		}{
			Environment: env,
			Token:       env.Token(),
			Executable:  a.installer.ExecutablePath(a.cfg.InstallPath),
		})
	},
}

var depsCmd = &cobra.Command{
	Use:   "deps",
	Short: "Install Chrome's system dependencies only",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		a, err := setup(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if depsList {
			return printOutput(struct {
				Packages []string `json:"packages" yaml:"packages"`
			}{Packages: a.deps.Packages()})
		}

		outcome, err := a.deps.Install(ctx, func(e deps.ProgressEvent) {
			fmt.Printf("[%-10s] %5.1f%%  %s\n", e.Step, e.Percent, e.Message)
		})
		if err != nil {
			return err
		}
		if outcome.Skipped() {
			fmt.Printf("Nothing installed (%s)\n", outcome)
		}
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve install progress and control on a local HTTP port",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		a, err := setup(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		sources, err := a.sources(nil)
		if err != nil {
			return err
		}

		pool := workerpool.New(1, 1)
		srv := statusserver.New(a.installer, pool, statusserver.Defaults{
			Version:     a.cfg.ChromeVersion,
			Sources:     sources,
			InstallPath: a.cfg.InstallPath,
			InstallDeps: a.cfg.InstallDeps,
		})

		runErr := srv.Run(ctx, firstNonEmpty(listenAddr, a.cfg.ListenAddr))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		pool.Shutdown(shutdownCtx)
		return runErr
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusPath, "path", "", "install directory (default from config)")
	depsCmd.Flags().BoolVar(&depsList, "list", false, "print the package list instead of installing it")
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "listen address (default from config)")
}
