package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"planrag/internal/chunkid"
	"planrag/internal/service"
)

var (
	queryK       int
	queryKeyword bool
	queryPlan    string
)

var queryCmd = &cobra.Command{
	Use:   "query TEXT...",
	Short: "Search indexed plans",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, appCfg)
		if err != nil {
			return err
		}
		defer a.close()

		results, err := a.svc.Search(ctx, service.SearchRequest{
			Text:    strings.Join(args, " "),
			K:       queryK,
			Keyword: queryKeyword,
			PlanID:  queryPlan,
		})
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Println(dimText("no results"))
			return nil
		}
		for i, r := range results {
			fmt.Printf("%2d. %s %s %s\n", i+1, scoreText(fmt.Sprintf("%.3f", r.Score)),
				idText(r.Entity.DocumentID), chunkid.Reference(r.Entity.ID))
			fmt.Println("    " + snippet(r.Entity.Text, 240))
		}
		return nil
	},
}

func snippet(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n]) + "…"
}

func init() {
	queryCmd.Flags().IntVarP(&queryK, "k", "k", 0, "number of results (default from config)")
	queryCmd.Flags().BoolVar(&queryKeyword, "keyword", false, "rank by keyword frequency instead of embeddings")
	queryCmd.Flags().StringVar(&queryPlan, "plan", "", "restrict results to one plan ID")
	rootCmd.AddCommand(queryCmd)
}
