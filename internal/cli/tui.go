package cli

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"planrag/internal/tui"
)

var (
	tuiPlan string
	tuiK    int
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Interactive search over indexed plans",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, appCfg)
		if err != nil {
			return err
		}
		defer a.close()

		info := a.svc.ModelInfo()
		header := fmt.Sprintf("%d chunks indexed · %s", a.svc.IndexedChunks(), info.Name)
		m := tui.New(ctx, a.svc, header, tuiPlan, tuiK)
		_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
		return err
	},
}

func init() {
	tuiCmd.Flags().StringVar(&tuiPlan, "plan", "", "restrict searches to one plan ID")
	tuiCmd.Flags().IntVarP(&tuiK, "k", "k", 0, "number of results (default from config)")
	rootCmd.AddCommand(tuiCmd)
}
