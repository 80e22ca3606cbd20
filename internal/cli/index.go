package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"planrag/internal/document"
	"planrag/internal/domain"
	"planrag/internal/service"
)

var indexCmd = &cobra.Command{
	Use:   "index FILE...",
	Short: "Chunk, embed and store planning documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, appCfg)
		if err != nil {
			return err
		}
		defer a.close()

		paths := expandPaths(args)
		if len(paths) == 0 {
			return fmt.Errorf("%w: no supported documents in %v", domain.ErrInvalidInput, args)
		}
		var failed int
		for _, p := range paths {
			plan, err := a.svc.IngestFile(ctx, p, progressPrinter(p))
			fmt.Fprint(os.Stderr, "\r\033[K")
			if err != nil {
				failed++
				fmt.Fprintf(os.Stderr, "%s %s: %v\n", errText("✗"), p, err)
				continue
			}
			fmt.Printf("%s %s  %s  %d chunks\n", okText("✓"), idText(plan.ID), plan.Title, plan.ChunkCount)
			if plan.Summary != "" {
				fmt.Println(dimText("  " + plan.Summary))
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d documents failed", failed, len(paths))
		}
		return nil
	},
}

// expandPaths resolves globs and keeps supported files.
func expandPaths(args []string) []string {
	var out []string
	for _, arg := range args {
		matches, _ := filepath.Glob(arg)
		if matches == nil {
			matches = []string{arg}
		}
		for _, m := range matches {
			if document.Supported(m) {
				out = append(out, m)
			}
		}
	}
	return out
}

func progressPrinter(path string) func(service.Progress) {
	name := filepath.Base(path)
	return func(p service.Progress) {
		var line string
		switch p.Stage {
		case service.StageExtracting:
			e := p.Extraction
			line = fmt.Sprintf("%s: %s page %d/%d, %d chunks", name, e.Phase, e.Page, e.TotalPages, e.ChunksCreated)
		case service.StageModel:
			line = fmt.Sprintf("%s: model %s %d%%", name, p.Model.State, p.Model.Progress)
		case service.StageEmbedding, service.StageIndexing:
			line = fmt.Sprintf("%s: %s %d/%d", name, p.Stage, p.Processed, p.Total)
		default:
			return
		}
		fmt.Fprint(os.Stderr, "\r\033[K"+dimText(line))
	}
}

func init() {
	rootCmd.AddCommand(indexCmd)
}
