// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/HiNala/bio-hack-sub000/internal/store"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored papers with their chunk counts",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().String("format", store.FormatYAML, "output format: yaml, json, or csl (CSL-YAML bibliography)")
	exportCmd.Flags().String("job", "", "only papers stored by this job")
	exportCmd.Flags().StringP("output", "o", "", "write to a file instead of stdout")

	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	switch format {
	case store.FormatYAML, store.FormatJSON, store.FormatCSL:
	default:
		return fmt.Errorf("unknown format %q: use yaml, json, or csl", format)
	}

	st, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	var scope store.Scope
	if jobID, _ := cmd.Flags().GetString("job"); jobID != "" {
		scope = store.ForJob(jobID)
	}

	w := cmd.OutOrStdout()
	if path, _ := cmd.Flags().GetString("output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
		defer f.Close()
		w = f
	}
	return st.Export(cmd.Context(), w, format, scope)
}
