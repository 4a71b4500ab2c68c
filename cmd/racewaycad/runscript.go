package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/raceway-cad/internal/core/config"
	"github.com/mohammed-shakir/raceway-cad/internal/runscript"
	"github.com/mohammed-shakir/raceway-cad/internal/scan"
)

func runScriptCmd() *cobra.Command {
	var (
		script     string
		list       string
		programDir string
		timeout    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run-script [drawing...]",
		Short: "Run a script in the console CAD host, once per drawing",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			a, err := setup(cmd, "run-script", false, func(c *config.Config) {
				if script != "" {
					c.ScriptPath = script
				}
				if list != "" {
					c.FileListPath = list
				}
				if programDir != "" {
					c.HostProgramDir = programDir
				}
				if timeout > 0 {
					c.ScriptTimeout = timeout
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
			if a.cfg.ScriptPath == "" {
				return fmt.Errorf("%w: --script is required", config.ErrConfig)
			}

			files := append([]string(nil), args...)
			if a.cfg.FileListPath != "" {
				listed, err := scan.ReadFileList(a.cfg.FileListPath, a.log)
				if err != nil {
					return err
				}
				files = append(files, listed...)
			}

			r := runscript.Runner{
				ProgramDir: a.cfg.HostProgramDir,
				Executable: a.cfg.HostExecutable,
				Timeout:    a.cfg.ScriptTimeout,
				Logger:     a.log,
			}
			failed := 0
			for _, res := range r.RunFiles(a.context(cmd.Context(), "run-script"), a.cfg.ScriptPath, files) {
				status := "ok"
				if !res.OK() {
					failed++
					status = fmt.Sprintf("exit %d", res.ExitCode)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", res.File, status, res.Took.Round(time.Millisecond))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d script runs failed", failed, max(len(files), 1))
			}
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&script, "script", "", "script file passed to the host with /s")
	fl.StringVar(&list, "list", "", "file with one drawing path per line")
	fl.StringVar(&programDir, "program-dir", "", "directory holding the console host")
	fl.DurationVar(&timeout, "timeout", 0, "per drawing timeout")
	return cmd
}
