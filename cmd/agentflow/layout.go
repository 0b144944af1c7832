package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/agentflow/agentflow/internal/app/dto"
	"github.com/agentflow/agentflow/internal/core/timer"
	"github.com/agentflow/agentflow/pkg/agentflow"
	"github.com/agentflow/agentflow/pkg/validation"
)

type layoutOptions struct {
	width, height float64
	jsonOutput    bool
}

func newLayoutCmd(global *globalOptions) *cobra.Command {
	opts := &layoutOptions{}
	cmd := &cobra.Command{
		Use:   "layout",
		Short: "Print node positions for a canvas size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, name, p, err := global.resolve(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			canvas := dto.CanvasQuery{Width: cfg.Canvas.Width, Height: cfg.Canvas.Height}
			if cmd.Flags().Changed("width") {
				canvas.Width = opts.width
			}
			if cmd.Flags().Changed("height") {
				canvas.Height = opts.height
			}
			if err := validation.ValidateStruct(&canvas); err != nil {
				return fmt.Errorf("%w: %v", dto.ErrInvalidCanvas, err)
			}

			rt, err := agentflow.New(agentflow.WithPipeline(name, p), agentflow.WithScheduler(timer.NewVirtual(simulationEpoch)))
			if err != nil {
				return err
			}
			defer rt.Close()
			l := rt.Layout(canvas.Width, canvas.Height)

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(l)
			}

			nodes := append([]dto.NodeView(nil), l.Nodes...)
			sort.SliceStable(nodes, func(i, j int) bool {
				if nodes[i].Column != nodes[j].Column {
					return nodes[i].Column < nodes[j].Column
				}
				return nodes[i].Y < nodes[j].Y
			})
			fmt.Fprintf(out, "%s on %gx%g\n", l.PipelineID, l.Width, l.Height)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "COLUMN\tNODE\tX\tY")
			for _, n := range nodes {
				fmt.Fprintf(tw, "%d\t%s\t%.1f\t%.1f\n", n.Column, n.ID, n.X, n.Y)
			}
			return tw.Flush()
		},
	}
	f := cmd.Flags()
	f.Float64Var(&opts.width, "width", 0, "canvas width (default from config)")
	f.Float64Var(&opts.height, "height", 0, "canvas height (default from config)")
	f.BoolVar(&opts.jsonOutput, "json", false, "print the layout as JSON")
	return cmd
}
