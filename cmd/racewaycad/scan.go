package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/raceway-cad/internal/core/config"
	"github.com/mohammed-shakir/raceway-cad/internal/export"
	"github.com/mohammed-shakir/raceway-cad/internal/host/memdb"
	"github.com/mohammed-shakir/raceway-cad/internal/scan"
)

type scanFlags struct {
	list      string
	pattern   string
	names     []string
	geometry  bool
	exportDir string
	formats   []string
	keep      bool
}

func scanCmd() *cobra.Command {
	var f scanFlags
	cmd := &cobra.Command{
		Use:   "scan [drawing...]",
		Short: "Extract block references and geometry from drawings",
		Long: "Scan every drawing given as an argument or listed in --list and write one\n" +
			"result per drawing to the export directory. A drawing that fails is\n" +
			"reported in its result and does not stop the batch.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, args, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.list, "list", "", "file with one drawing path per line")
	fl.StringVar(&f.pattern, "pattern", "", "case-insensitive regexp on block names")
	fl.StringSliceVar(&f.names, "name", nil, "block names to keep (repeatable, wildcards allowed)")
	fl.BoolVar(&f.geometry, "geometry", false, "also extract polylines, lines and text")
	fl.StringVar(&f.exportDir, "export-dir", "", "output directory")
	fl.StringSliceVar(&f.formats, "format", []string{"json"}, "output formats (json, xlsx)")
	fl.BoolVar(&f.keep, "keep", false, "keep previous exports instead of clearing them")
	return cmd
}

func runScan(cmd *cobra.Command, args []string, f scanFlags) (err error) {
	a, err := setup(cmd, "scan", false, func(c *config.Config) {
		if f.list != "" {
			c.FileListPath = f.list
		}
		if f.pattern != "" {
			c.NamePattern = f.pattern
		}
		if len(f.names) > 0 {
			c.BlockNames = f.names
		}
		if f.geometry {
			c.IncludeGeometry = true
		}
		if f.exportDir != "" {
			c.ExportDir = f.exportDir
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
	ctx := a.context(cmd.Context(), "scan")

	paths := append([]string(nil), args...)
	if a.cfg.FileListPath != "" {
		listed, err := scan.ReadFileList(a.cfg.FileListPath, a.log)
		if err != nil {
			return err
		}
		paths = append(paths, listed...)
	}
	if len(paths) == 0 {
		return fmt.Errorf("%w: no drawings given; pass paths or --list", config.ErrConfig)
	}

	opts := scan.Options{Logger: a.log, Register: a.metrics.Registerer(), RunID: a.runID}
	if rc, _ := a.resultCache(ctx); rc != nil {
		opts.Cache = rc
	}
	pub, err := a.publisher()
	if err != nil {
		return err
	}
	if pub != nil {
		opts.Events = pub
	}

	q := scan.Query{Pattern: a.cfg.NamePattern, Names: a.cfg.BlockNames, IncludeGeometry: a.cfg.IncludeGeometry}
	results, err := scan.New(memdb.Opener{}, opts).Scan(ctx, paths, q)
	if err != nil {
		return err
	}

	if !f.keep {
		n, err := export.ClearExports(a.cfg.ExportDir)
		if err != nil {
			return err
		}
		a.log.Debug("previous exports cleared", "files", n, "dir", a.cfg.ExportDir)
	}
	formats := f.formats
	if a.cfg.Workbook && !cmd.Flags().Changed("format") {
		formats = append(formats, "xlsx")
	}
	for _, name := range formats {
		w, err := export.New(name, a.cfg.ExportDir, a.log)
		if err != nil {
			return err
		}
		if _, err := w.Write(ctx, results); err != nil {
			return fmt.Errorf("export %s: %w", name, err)
		}
	}

	failed := 0
	for _, r := range results {
		if r.IsError {
			failed++
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "scanned %d drawings, %d failed, run %s\n", len(results), failed, a.runID)
	return nil
}
