package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/3leaps/gobulk/pkg/jobregistry"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect bulk export job records",
	Long: `Inspect the job records written for each extracted kind.

Every bulk run writes <jobs dir>/<run_id>/job.json and updates it as the
export job moves through SUBMITTED, RUNNING and a terminal status. Records
left running by a process that no longer exists are reported as unknown.`,
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List job records",
	Args:  cobra.NoArgs,
	RunE:  runJobsList,
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <run_id>",
	Short: "Show one job record",
	Long:  "Show one job record. A unique run id prefix is accepted.",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsShow,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsShowCmd)

	jobsListCmd.Flags().Bool("json", false, "Output as JSON")
	jobsListCmd.Flags().String("kind", "", "Only list this kind")
	jobsShowCmd.Flags().Bool("json", false, "Output as JSON")
}

func jobStoreFromConfig() (*jobregistry.Store, error) {
	cfg, err := runtimeConfig()
	if err != nil {
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	dir, err := cfg.JobsDir()
	if err != nil {
		return nil, exitError(foundry.ExitFileNotFound, "Cannot resolve jobs directory", err)
	}
	return openJobStore(dir)
}

func runJobsList(cmd *cobra.Command, _ []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	kind, _ := cmd.Flags().GetString("kind")

	store, err := jobStoreFromConfig()
	if err != nil {
		return err
	}
	jobs, err := store.List(strings.TrimSpace(kind))
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to list jobs", err)
	}
	return printJobs(cmd.OutOrStdout(), jobs, jsonOutput)
}

func printJobs(out io.Writer, jobs []jobregistry.JobRecord, jsonOutput bool) error {
	if jsonOutput {
		if jobs == nil {
			jobs = []jobregistry.JobRecord{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(jobs)
	}
	if len(jobs) == 0 {
		_, _ = fmt.Fprintln(out, "No jobs found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	_, _ = fmt.Fprintln(w, "RUN ID\tKIND\tSTATE\tSTATUS\tATTEMPTS\tOBJECTS\tSUBMITTED\tENDED\tERROR")
	for _, j := range jobs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
			shortRunID(j.RunID),
			j.Kind,
			j.State,
			j.Status,
			j.Attempts,
			j.ObjectCount,
			formatTime(j.SubmittedAt),
			formatOptionalTime(j.EndedAt),
			orDash(j.ErrorCode),
		)
	}
	return nil
}

func runJobsShow(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	store, err := jobStoreFromConfig()
	if err != nil {
		return err
	}
	runID, err := resolveRunID(store, strings.TrimSpace(args[0]))
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Unknown run id", err)
	}
	rec, err := store.Get(runID)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return exitError(foundry.ExitFileNotFound, "Job record not found", err)
		}
		return exitError(foundry.ExitFileReadError, "Failed to read job record", err)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}

	_, _ = fmt.Fprintf(out, "run_id=%s\n", rec.RunID)
	_, _ = fmt.Fprintf(out, "kind=%s\n", rec.Kind)
	_, _ = fmt.Fprintf(out, "state=%s\n", rec.State)
	_, _ = fmt.Fprintf(out, "bulk_job_id=%s\n", rec.BulkJobID)
	_, _ = fmt.Fprintf(out, "status=%s\n", rec.Status)
	_, _ = fmt.Fprintf(out, "attempts=%d\n", rec.Attempts)
	if rec.ObjectCount > 0 {
		_, _ = fmt.Fprintf(out, "object_count=%d\n", rec.ObjectCount)
	}
	if rec.ErrorCode != "" {
		_, _ = fmt.Fprintf(out, "error_code=%s\n", rec.ErrorCode)
	}
	if rec.ResultLocation != "" {
		_, _ = fmt.Fprintf(out, "result_location=%s\n", rec.ResultLocation)
	}
	if rec.ManifestPath != "" {
		_, _ = fmt.Fprintf(out, "manifest_path=%s\n", rec.ManifestPath)
	}
	_, _ = fmt.Fprintf(out, "submitted_at=%s\n", formatTime(rec.SubmittedAt))
	_, _ = fmt.Fprintf(out, "updated_at=%s\n", formatTime(rec.UpdatedAt))
	if rec.EndedAt != nil {
		_, _ = fmt.Fprintf(out, "ended_at=%s\n", formatTime(*rec.EndedAt))
	}
	return nil
}

// resolveRunID expands a unique prefix to a full run id.
func resolveRunID(store *jobregistry.Store, prefix string) (string, error) {
	if prefix == "" {
		return "", fmt.Errorf("run_id is required")
	}
	jobs, err := store.List("")
	if err != nil {
		return "", err
	}
	var matches []string
	for _, j := range jobs {
		if j.RunID == prefix {
			return prefix, nil
		}
		if strings.HasPrefix(j.RunID, prefix) {
			matches = append(matches, j.RunID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no job matches %q", prefix)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("run id prefix %q is ambiguous (%d matches)", prefix, len(matches))
	}
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return formatTime(*t)
}
