package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentflow/agentflow/internal/bootstrap"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>...",
		Short: "Check pipeline definition files",
		Long: `Parses each YAML or JSON pipeline definition and checks its fields, its
topology (reachability, dead ends, cycles) and its timing bounds.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			failed := 0
			for _, path := range args {
				p, err := bootstrap.LoadPipeline(path)
				if err != nil {
					failed++
					fmt.Fprintf(out, "FAIL %s: %v\n", path, err)
					continue
				}
				g := p.Graph.Clone()
				if err := g.AssignColumns(); err != nil {
					failed++
					fmt.Fprintf(out, "FAIL %s: %v\n", path, err)
					continue
				}
				fmt.Fprintf(out, "ok   %s: %s (%d nodes, %d edges, %d columns, name %q)\n",
					path, g.ID, len(g.Nodes), len(g.Edges), len(g.Columns()), bootstrap.PipelineNameFromFile(path))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d definitions invalid", failed, len(args))
			}
			return nil
		},
	}
}
