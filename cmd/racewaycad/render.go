package main

import (
	"encoding/json"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/raceway-cad/internal/core/config"
	"github.com/mohammed-shakir/raceway-cad/internal/host/memdb"
	"github.com/mohammed-shakir/raceway-cad/internal/network"
	"github.com/mohammed-shakir/raceway-cad/internal/render"
)

func renderCmd() *cobra.Command {
	var (
		out       string
		nodeScale float64
		appName   string
	)
	cmd := &cobra.Command{
		Use:   "render <drawing> <network.json>",
		Short: "Insert a raceway network into a drawing",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			a, err := setup(cmd, "render", false, func(c *config.Config) {
				if nodeScale > 0 {
					c.NodeScale = nodeScale
				}
				if appName != "" {
					c.AppName = appName
				}
			})
			if err != nil {
				return err
			}
			defer func() {
				if cerr := a.close(); cerr != nil && err == nil {
					err = cerr
				}
			}()
			ctx := a.context(cmd.Context(), "render")

			net, err := network.LoadFile(args[1])
			if err != nil {
				return err
			}
			db, err := memdb.LoadFile(args[0])
			if err != nil {
				return err
			}

			opts := render.Options{Logger: a.log, Register: a.metrics.Registerer(), RunID: a.runID}
			pub, err := a.publisher()
			if err != nil {
				return err
			}
			if pub != nil {
				opts.Events = pub
			}
			r := render.New(render.Config{NodeScale: a.cfg.NodeScale, AppName: a.cfg.AppName}, opts)

			sum, err := r.Render(ctx, memdb.NewDocument(filepath.Base(args[0]), db), net)
			if err != nil {
				return err
			}
			dst := out
			if dst == "" {
				dst = args[0]
			}
			if err := db.SaveFile(dst); err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(sum)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the rendered drawing here instead of in place")
	cmd.Flags().Float64Var(&nodeScale, "node-scale", 0, "uniform scale of node blocks")
	cmd.Flags().StringVar(&appName, "app", "", "registered application name for xdata")
	return cmd
}
