package cmd

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/3leaps/gobulk/pkg/match"
	"github.com/3leaps/gobulk/pkg/record"
	"github.com/3leaps/gobulk/pkg/recordstore"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Query the canonical record store",
	Long: `Query canonical records saved by 'extract --store' or 'fetch --store'.

The store location comes from --store, the config file (store.location) or
GOBULK_STORE.`,
}

var recordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored records as JSONL",
	Long: `List stored records as JSONL.

Selection flags narrow the listing by id glob, title pattern and creation
date. --limit and --offset count selected records.

Examples:
  gobulk records list --kind products --match 'gid://shop/Product/*'
  gobulk records list --title-regex '(?i)shirt' --created-after 2024-01-01`,
	Args: cobra.NoArgs,
	RunE: runRecordsList,
}

var recordsGetCmd = &cobra.Command{
	Use:   "get <kind> <id>",
	Short: "Print one stored record",
	Args:  cobra.ExactArgs(2),
	RunE:  runRecordsGet,
}

var recordsRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List extraction runs saved in the store",
	Args:  cobra.NoArgs,
	RunE:  runRecordsRuns,
}

func init() {
	rootCmd.AddCommand(recordsCmd)
	recordsCmd.AddCommand(recordsListCmd)
	recordsCmd.AddCommand(recordsGetCmd)
	recordsCmd.AddCommand(recordsRunsCmd)

	recordsCmd.PersistentFlags().String("store", "", "Record store location (sqlite://path or libsql://host)")

	recordsListCmd.Flags().String("kind", "", "Only list this kind")
	recordsListCmd.Flags().String("run", "", "Only list records last written by this run")
	recordsListCmd.Flags().Int("limit", 100, "Maximum records (0 = no limit)")
	recordsListCmd.Flags().Int("offset", 0, "Records to skip")
	recordsListCmd.Flags().Bool("count", false, "Print the number of records instead")
	recordsListCmd.Flags().StringSlice("match", nil, "Id glob to include (repeatable)")
	recordsListCmd.Flags().StringSlice("exclude", nil, "Id glob to exclude (repeatable)")
	recordsListCmd.Flags().String("title-regex", "", "Regex the title must match")
	recordsListCmd.Flags().String("created-after", "", "Created at or after (YYYY-MM-DD or RFC3339)")
	recordsListCmd.Flags().String("created-before", "", "Created before (YYYY-MM-DD or RFC3339)")

	recordsRunsCmd.Flags().String("kind", "", "Only list this kind")
	recordsRunsCmd.Flags().Int("limit", 20, "Maximum runs")
}

func openStoreFromFlags(cmd *cobra.Command) (*sql.DB, error) {
	location, _ := cmd.Flags().GetString("store")
	if strings.TrimSpace(location) == "" {
		cfg, err := runtimeConfig()
		if err != nil {
			return nil, exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
		}
		location = cfg.Store.Location
	}
	if strings.TrimSpace(location) == "" {
		return nil, exitError(foundry.ExitInvalidArgument, "No record store configured",
			fmt.Errorf("use --store or set store.location"))
	}
	db, err := openRecordStore(cmd.Context(), location)
	if err != nil {
		return nil, exitError(foundry.ExitFileReadError, "Failed to open record store", err)
	}
	return db, nil
}

func runRecordsList(cmd *cobra.Command, _ []string) error {
	kind, _ := cmd.Flags().GetString("kind")
	runID, _ := cmd.Flags().GetString("run")
	limit, _ := cmd.Flags().GetInt("limit")
	offset, _ := cmd.Flags().GetInt("offset")
	countOnly, _ := cmd.Flags().GetBool("count")

	sel, err := selectorFromFlags(cmd)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid selection", err)
	}

	db, err := openStoreFromFlags(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	if countOnly && sel.Empty() && runID == "" {
		n, err := recordstore.CountRecords(ctx, db, kind)
		if err != nil {
			return exitError(foundry.ExitFileReadError, "Failed to count records", err)
		}
		_, _ = fmt.Fprintln(out, n)
		return nil
	}

	params := recordstore.ListParams{Kind: kind, RunID: runID, Limit: limit, Offset: offset}
	if countOnly {
		params.Limit, params.Offset = 0, 0
	}
	recs, err := selectRecords(cmd, db, params, sel)
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to list records", err)
	}
	if countOnly {
		_, _ = fmt.Fprintln(out, len(recs))
		return nil
	}

	enc := json.NewEncoder(out)
	for i := range recs {
		if err := enc.Encode(&recs[i]); err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to write records", err)
		}
	}
	return nil
}

func selectorFromFlags(cmd *cobra.Command) (*match.Selector, error) {
	includes, _ := cmd.Flags().GetStringSlice("match")
	excludes, _ := cmd.Flags().GetStringSlice("exclude")
	titleRegex, _ := cmd.Flags().GetString("title-regex")
	after, _ := cmd.Flags().GetString("created-after")
	before, _ := cmd.Flags().GetString("created-before")
	return match.New(match.Config{
		Includes:      includes,
		Excludes:      excludes,
		TitleRegex:    titleRegex,
		CreatedAfter:  after,
		CreatedBefore: before,
	})
}

const selectBatch = 500

// selectRecords applies params directly when sel selects everything.
// Otherwise it scans the store in batches and applies offset and limit to
// the selected records.
func selectRecords(cmd *cobra.Command, db *sql.DB, params recordstore.ListParams, sel *match.Selector) ([]record.Canonical, error) {
	ctx := cmd.Context()
	if sel.Empty() {
		return recordstore.ListRecords(ctx, db, params)
	}

	var (
		out     []record.Canonical
		skipped int
	)
	scan := recordstore.ListParams{Kind: params.Kind, RunID: params.RunID, Limit: selectBatch}
	for {
		batch, err := recordstore.ListRecords(ctx, db, scan)
		if err != nil {
			return nil, err
		}
		for i := range batch {
			if !sel.Match(&batch[i]) {
				continue
			}
			if skipped < params.Offset {
				skipped++
				continue
			}
			out = append(out, batch[i])
			if params.Limit > 0 && len(out) == params.Limit {
				return out, nil
			}
		}
		if len(batch) < selectBatch {
			return out, nil
		}
		scan.Offset += selectBatch
	}
}

func runRecordsGet(cmd *cobra.Command, args []string) error {
	db, err := openStoreFromFlags(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	rec, err := recordstore.GetRecord(cmd.Context(), db, args[0], args[1])
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to read record", err)
	}
	if rec == nil {
		return exitError(foundry.ExitFileNotFound, "Record not found",
			fmt.Errorf("%s %s", args[0], args[1]))
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}

func runRecordsRuns(cmd *cobra.Command, _ []string) error {
	kind, _ := cmd.Flags().GetString("kind")
	limit, _ := cmd.Flags().GetInt("limit")

	db, err := openStoreFromFlags(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	return printRuns(cmd, db, kind, limit)
}

func printRuns(cmd *cobra.Command, db *sql.DB, kind string, limit int) error {
	runs, err := recordstore.ListRuns(cmd.Context(), db, kind, limit)
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to list runs", err)
	}
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No runs found")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()
	_, _ = fmt.Fprintln(w, "RUN ID\tKIND\tMODE\tSTATUS\tRAW\tENTITIES\tSTARTED\tERROR")
	for _, r := range runs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			shortRunID(r.RunID), r.Kind, r.Mode, r.Status, r.RawCount, r.EntityCount,
			formatTime(r.StartedAt), orDash(r.ErrorCode))
	}
	return nil
}
