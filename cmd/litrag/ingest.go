// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/HiNala/bio-hack-sub000/internal/activity"
	"github.com/HiNala/bio-hack-sub000/internal/pipeline"
	"github.com/HiNala/bio-hack-sub000/pkg/types"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [question...]",
	Short: "Fetch, deduplicate, chunk, and embed papers for research questions",
	Long: `Ingest runs one job per research question. Each job parses the question
into catalog queries, fetches papers from OpenAlex and Semantic Scholar,
removes duplicates, stores the new papers, splits their abstracts into
passages, and embeds the passages for search.

Each argument is one question; quote questions that contain spaces. Several
questions run concurrently, bounded by pipeline.workers. Progress is written
to stderr and a summary of every job to stdout.`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().Int("year-from", 0, "only papers published in or after this year")
	ingestCmd.Flags().Int("year-to", 0, "only papers published in or before this year")
	ingestCmd.Flags().Int("max-per-source", 0, "results fetched from each catalog per query (default sources.max_per_source)")
	ingestCmd.Flags().StringSlice("sources", nil, "catalogs to query: openalex, semantic_scholar (default: all enabled)")
	ingestCmd.Flags().StringP("file", "f", "", "read questions from a file, one per line (# starts a comment)")
	ingestCmd.Flags().BoolP("quiet", "q", false, "do not print progress events")

	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	file, _ := cmd.Flags().GetString("file")
	questions, err := collectQuestions(args, file)
	if err != nil {
		return err
	}
	if len(questions) == 0 {
		return fmt.Errorf("provide a research question as an argument or with --file")
	}

	yearFrom, _ := cmd.Flags().GetInt("year-from")
	yearTo, _ := cmd.Flags().GetInt("year-to")
	maxPerSource, _ := cmd.Flags().GetInt("max-per-source")
	sources, _ := cmd.Flags().GetStringSlice("sources")
	quiet, _ := cmd.Flags().GetBool("quiet")

	ctx := cmd.Context()
	eng, err := newEngine(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer eng.Close()

	reqs := make([]types.IngestRequest, len(questions))
	for i, q := range questions {
		reqs[i] = types.IngestRequest{
			Query:        q,
			YearFrom:     yearFrom,
			YearTo:       yearTo,
			MaxPerSource: maxPerSource,
			Sources:      sources,
		}
		if err := eng.orch.Validate(reqs[i]); err != nil {
			return err
		}
	}

	if !quiet {
		stop := followActivity(eng.hub, cmd.ErrOrStderr(), len(reqs) > 1)
		defer stop()
	}

	runner := pipeline.NewRunner(ctx, eng.orch, cfg.Pipeline.Workers, log)
	ids := make([]string, 0, len(reqs))
	for _, req := range reqs {
		id, err := runner.Submit(ctx, req)
		if err != nil {
			runner.Wait()
			return err
		}
		ids = append(ids, id)
	}
	runner.Wait()

	return reportJobs(cmd, eng, ids)
}

// collectQuestions merges positional questions with those read from path.
func collectQuestions(args []string, path string) ([]string, error) {
	var questions []string
	for _, a := range args {
		if q := strings.TrimSpace(a); q != "" {
			questions = append(questions, q)
		}
	}
	if path == "" {
		return questions, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening question file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		questions = append(questions, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading question file: %w", err)
	}
	return questions, nil
}

// followActivity prints hub events to w until the returned stop function is
// called. stop drains what was already queued before returning.
func followActivity(hub *activity.Hub, w io.Writer, showJob bool) func() {
	sub := hub.Subscribe(activity.DefaultBuffer)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range sub.C {
			if line := formatEvent(e, showJob); line != "" {
				fmt.Fprintln(w, line)
			}
		}
	}()
	return func() {
		hub.Unsubscribe(sub)
		<-done
	}
}

// formatEvent renders one event as a progress line. Idle events print
// nothing.
func formatEvent(e activity.Event, showJob bool) string {
	if e.Type == activity.Idle {
		return ""
	}
	var b strings.Builder
	if showJob && e.JobID != "" {
		fmt.Fprintf(&b, "[%s] ", shortID(e.JobID))
	}
	fmt.Fprintf(&b, "%-12s %s", e.Type, e.Message)
	if e.Progress != nil {
		fmt.Fprintf(&b, " (%.1f%%)", *e.Progress)
	}
	if e.Detail != "" {
		fmt.Fprintf(&b, ": %s", e.Detail)
	}
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// reportJobs prints the final state of each job and returns an error when
// any of them did not complete.
func reportJobs(cmd *cobra.Command, eng *engine, ids []string) error {
	// The command context may already be cancelled; the store reads still
	// need to run.
	ctx := contextWithoutCancel(cmd)
	out := cmd.OutOrStdout()

	var unfinished int
	for i, id := range ids {
		job, err := eng.store.GetJob(ctx, id)
		if err != nil {
			return err
		}
		if i > 0 {
			fmt.Fprintln(out)
		}
		printJob(out, job)
		if job.Status != types.JobCompleted {
			unfinished++
			fmt.Fprintf(out, "Resume with: litrag job resume %s\n", job.ID)
		}
	}
	if unfinished > 0 {
		return fmt.Errorf("%d of %d jobs did not complete", unfinished, len(ids))
	}
	return nil
}
