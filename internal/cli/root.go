// Package cli implements the planrag command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"planrag/internal/config"
)

var (
	cfgFile  string
	logLevel string
	appCfg   *config.AppConfig
)

var (
	okText    = color.New(color.FgGreen).SprintFunc()
	errText   = color.New(color.FgRed).SprintFunc()
	idText    = color.New(color.FgCyan).SprintFunc()
	scoreText = color.New(color.FgYellow).SprintFunc()
	dimText   = color.New(color.Faint).SprintFunc()
)

var rootCmd = &cobra.Command{
	Use:           "planrag",
	Short:         "Chunk, embed and search planning documents",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env first so API keys are visible to config defaults and backends
		_ = godotenv.Load()

		var err error
		if cfgFile == "" {
			appCfg, _, err = config.LoadDefault()
		} else {
			appCfg, err = config.Load(cfgFile)
		}
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if logLevel != "" {
			appCfg.Log.Level = logLevel
		}
		return initLogger(appCfg.Log)
	},
}

// Execute runs the root command and prints any error.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, errText("error:"), err)
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to YAML config (default ./config.yaml or ~/.config/planrag/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug|info|warn|error)")
}
