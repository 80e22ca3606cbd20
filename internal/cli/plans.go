package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"planrag/internal/chunkid"
	"planrag/internal/domain"
)

var chunksLimit int

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "List stored plans",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, appCfg)
		if err != nil {
			return err
		}
		defer a.close()

		plans, err := a.svc.Plans(ctx)
		if err != nil {
			return err
		}
		if len(plans) == 0 {
			fmt.Println(dimText("no plans indexed"))
			return nil
		}
		for _, p := range plans {
			status := string(p.Status)
			switch p.Status {
			case domain.PlanCompleted:
				status = okText(status)
			case domain.PlanError:
				status = errText(status)
			}
			fmt.Printf("%s  %-10s %4d chunks  %s  %s\n", idText(p.ID), status, p.ChunkCount,
				p.UploadedAt.Local().Format("2006-01-02 15:04"), p.Title)
		}
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete PLAN_ID",
	Short: "Delete a plan and its chunks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, appCfg)
		if err != nil {
			return err
		}
		defer a.close()

		removed, err := a.svc.DeletePlan(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s deleted %s (%d chunks)\n", okText("✓"), idText(args[0]), removed)
		return nil
	},
}

var chunksCmd = &cobra.Command{
	Use:   "chunks PLAN_ID",
	Short: "Show a plan's indexed chunks in page order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, appCfg)
		if err != nil {
			return err
		}
		defer a.close()

		plan, err := a.svc.Plan(ctx, args[0])
		if err != nil {
			return err
		}
		chunks := a.svc.Chunks(plan.ID, chunksLimit)
		fmt.Printf("%s  %s  %d of %d chunks\n", idText(plan.ID), plan.Title, len(chunks), plan.ChunkCount)
		for _, c := range chunks {
			fmt.Printf("%-8s %s\n", idText(chunkid.Reference(c.ID)), snippet(c.Text, 120))
		}
		return nil
	},
}

func init() {
	chunksCmd.Flags().IntVarP(&chunksLimit, "limit", "n", 0, "maximum chunks to show (default 100)")
	rootCmd.AddCommand(plansCmd, deleteCmd, chunksCmd)
}
