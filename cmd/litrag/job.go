// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/HiNala/bio-hack-sub000/internal/pipeline"
	"github.com/HiNala/bio-hack-sub000/pkg/types"
)

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Inspect and resume ingest jobs",
}

var jobStatusCmd = &cobra.Command{
	Use:   "status <id>",
	Short: "Show the progress document of a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobStatus,
}

var jobListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent jobs, newest first",
	Args:  cobra.NoArgs,
	RunE:  runJobList,
}

var jobResumeCmd = &cobra.Command{
	Use:   "resume <id>",
	Short: "Resume an interrupted or failed job",
	Long: `Resume continues an interrupted job from the stage it was in, replaying
the original request's sources, years, and limits. A job that failed while
chunking or embedding stays failed: its stored papers are re-chunked and
re-embedded where still missing, and the outcome is recorded in the stage
detail. Completed jobs and jobs that failed before storing papers cannot be
resumed.`,
	Args: cobra.ExactArgs(1),
	RunE: runJobResume,
}

var jobRecoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Resume every job left unfinished by a crash or interrupt",
	Args:  cobra.NoArgs,
	RunE:  runJobRecover,
}

func init() {
	jobStatusCmd.Flags().Bool("json", false, "print the job as JSON")
	jobStatusCmd.Flags().Bool("yaml", false, "print the job as YAML")
	jobStatusCmd.MarkFlagsMutuallyExclusive("json", "yaml")

	jobListCmd.Flags().Int("limit", 20, "maximum number of jobs to list (0 for all)")
	jobListCmd.Flags().Bool("json", false, "print jobs as JSON")

	jobResumeCmd.Flags().BoolP("quiet", "q", false, "do not print progress events")
	jobRecoverCmd.Flags().BoolP("quiet", "q", false, "do not print progress events")

	jobCmd.AddCommand(jobStatusCmd, jobListCmd, jobResumeCmd, jobRecoverCmd)
	rootCmd.AddCommand(jobCmd)
}

func runJobStatus(cmd *cobra.Command, args []string) error {
	st, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	job, err := st.GetJob(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	asYAML, _ := cmd.Flags().GetBool("yaml")
	out := cmd.OutOrStdout()
	switch {
	case asJSON:
		return writeJSON(out, job)
	case asYAML:
		data, err := yaml.Marshal(job)
		if err != nil {
			return fmt.Errorf("marshaling YAML: %w", err)
		}
		_, err = out.Write(data)
		return err
	default:
		printJob(out, job)
		return nil
	}
}

func runJobList(cmd *cobra.Command, args []string) error {
	st, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	jobs, err := st.ListJobs(cmd.Context(), limit)
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		if jobs == nil {
			jobs = []*types.IngestJob{}
		}
		return writeJSON(cmd.OutOrStdout(), jobs)
	}
	printJobTable(cmd.OutOrStdout(), jobs)
	return nil
}

func runJobResume(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	eng, err := newEngine(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer eng.Close()

	if quiet, _ := cmd.Flags().GetBool("quiet"); !quiet {
		stop := followActivity(eng.hub, cmd.ErrOrStderr(), false)
		defer stop()
	}

	job, err := eng.orch.Resume(ctx, args[0])
	if job == nil {
		return err
	}
	printJob(cmd.OutOrStdout(), job)
	return err
}

func runJobRecover(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	eng, err := newEngine(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer eng.Close()

	if quiet, _ := cmd.Flags().GetBool("quiet"); !quiet {
		stop := followActivity(eng.hub, cmd.ErrOrStderr(), true)
		defer stop()
	}

	runner := pipeline.NewRunner(ctx, eng.orch, cfg.Pipeline.Workers, log)
	ids, err := runner.RecoverStale(ctx)
	runner.Wait()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No unfinished jobs.")
		return nil
	}
	return reportJobs(cmd, eng, ids)
}

// printJob writes a human-readable summary of job.
func printJob(w io.Writer, job *types.IngestJob) {
	p := job.Progress
	fmt.Fprintf(w, "Job %s: %s\n", job.ID, job.Status)
	fmt.Fprintf(w, "Question: %s\n", job.OriginalQuery)
	if len(job.ParsedQueries) > 0 {
		fmt.Fprintf(w, "Queries:  %s\n", strings.Join(job.ParsedQueries, " | "))
	}

	for _, s := range types.JobStages {
		sp := p.Stage(s)
		line := fmt.Sprintf("  %-10s %-12s", s, sp.Status)
		if sp.DurationMs != nil {
			line += fmt.Sprintf(" %8s", (time.Duration(*sp.DurationMs) * time.Millisecond).String())
		}
		if sp.Detail != "" {
			line += "  " + sp.Detail
		}
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}

	fmt.Fprintf(w, "Papers:     %d found in OpenAlex, %d in Semantic Scholar, %d unique, %d duplicates removed, %d stored\n",
		p.Papers.OpenAlexFound, p.Papers.SemanticScholarFound, p.Papers.UniquePapers,
		p.Papers.DuplicatesRemoved, p.Papers.PapersStored)
	fmt.Fprintf(w, "Chunks:     %d created, %.2f per paper\n", p.Chunks.TotalCreated, p.Chunks.AveragePerPaper)
	fmt.Fprintf(w, "Embeddings: %d of %d (%.1f%%)\n", p.Embeddings.Completed, p.Embeddings.Total, p.Embeddings.Percent)
	if job.Status == types.JobFailed {
		fmt.Fprintf(w, "Failed in %s: %s\n", job.FailedStage, job.ErrorMessage)
	}
}

// printJobTable writes one row per job.
func printJobTable(w io.Writer, jobs []*types.IngestJob) {
	if len(jobs) == 0 {
		fmt.Fprintln(w, "No jobs.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tPAPERS\tCHUNKS\tEMBEDDED\tCREATED\tQUESTION")
	for _, j := range jobs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%.0f%%\t%s\t%s\n",
			j.ID, j.Status,
			j.Progress.Papers.PapersStored,
			j.Progress.Chunks.TotalCreated,
			j.Progress.Embeddings.Percent,
			j.CreatedAt.Local().Format("2006-01-02 15:04"),
			truncateQuestion(j.OriginalQuery, 60))
	}
	tw.Flush()
}

func truncateQuestion(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// contextWithoutCancel keeps the command's values but not its cancellation,
// for reads that report on work an interrupt just stopped.
func contextWithoutCancel(cmd *cobra.Command) context.Context {
	ctx := cmd.Context()
	if ctx == nil {
		return context.Background()
	}
	return context.WithoutCancel(ctx)
}
