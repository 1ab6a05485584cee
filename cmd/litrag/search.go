// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/HiNala/bio-hack-sub000/internal/search"
	"github.com/HiNala/bio-hack-sub000/pkg/types"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search ingested passages by meaning",
	Long: `Search embeds the query and returns the stored passages closest to it,
ranked by semantic similarity with a boost for highly cited and recent papers.

Use --save to keep the results in a YAML file and --load to print a saved
search again without re-querying.`,
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntP("top-k", "k", 10, "number of passages to return (1-100)")
	searchCmd.Flags().Int("year-from", 0, "only papers published in or after this year")
	searchCmd.Flags().Int("year-to", 0, "only papers published in or before this year")
	searchCmd.Flags().Int("min-citations", 0, "only papers with at least this many citations")
	searchCmd.Flags().Bool("dedupe", false, "return at most one passage per paper")
	searchCmd.Flags().Bool("json", false, "output results as JSON")
	searchCmd.Flags().String("save", "", "save the query and results to a YAML file")
	searchCmd.Flags().String("load", "", "print results from a saved query file instead of searching")

	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	out := cmd.OutOrStdout()

	if path, _ := cmd.Flags().GetString("load"); path != "" {
		qf, err := search.ReadQueryFile(path)
		if err != nil {
			return err
		}
		if asJSON {
			return search.FormatJSON(qf.Results, out)
		}
		fmt.Fprintf(out, "Saved search %q from %s\n\n", qf.Request.Query, qf.Summary.Timestamp.Local().Format(time.DateTime))
		search.FormatTable(qf.Results, out)
		return nil
	}

	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "" {
		return fmt.Errorf("provide a search query")
	}

	topK, _ := cmd.Flags().GetInt("top-k")
	yearFrom, _ := cmd.Flags().GetInt("year-from")
	yearTo, _ := cmd.Flags().GetInt("year-to")
	minCitations, _ := cmd.Flags().GetInt("min-citations")
	dedupe, _ := cmd.Flags().GetBool("dedupe")

	req := types.SearchRequest{
		Query:        query,
		TopK:         topK,
		YearFrom:     yearFrom,
		YearTo:       yearTo,
		MinCitations: minCitations,
		DedupePapers: dedupe,
	}
	if err := search.Validate(req); err != nil {
		return err
	}

	ctx := cmd.Context()
	eng, err := newEngine(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer eng.Close()

	results, err := eng.searcher.Search(ctx, req)
	if err != nil {
		return err
	}

	if path, _ := cmd.Flags().GetString("save"); path != "" {
		if err := search.WriteQueryFile(path, search.NewQueryFile(req, results, time.Now())); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Saved %d results to %s\n", len(results), path)
	}

	if asJSON {
		return search.FormatJSON(results, out)
	}
	search.FormatTable(results, out)
	return nil
}
