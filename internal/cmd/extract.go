package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gobulk/internal/config"
	"github.com/3leaps/gobulk/internal/observability"
	"github.com/3leaps/gobulk/pkg/manifest"
	"github.com/3leaps/gobulk/pkg/pipeline"
	"github.com/3leaps/gobulk/pkg/provider/s3"
	"github.com/3leaps/gobulk/pkg/resource"
	"github.com/3leaps/gobulk/pkg/stream"
	"github.com/3leaps/gobulk/pkg/upstream"
)

var (
	extractKinds        string
	extractJobPath      string
	extractOutput       string
	extractStore        string
	extractPolicy       string
	extractPollInterval time.Duration
	extractMaxAttempts  int
	extractConcurrency  int
	extractDryRun       bool
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract resources through bulk export jobs",
	Long: `Submit a bulk export job per resource kind, wait for it to finish,
stream the result and emit one canonical record per entity as JSONL.

Kinds run in the order given. A kind that fails is reported as an error
record and does not stop the others.

Examples:
  gobulk extract --kinds products
  gobulk extract --kinds products,orders,customers --output records.jsonl
  gobulk extract --job extraction.yaml --store sqlite://gobulk.db
  gobulk extract --kinds orders --policy skip --poll-interval 5s`,
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringVarP(&extractKinds, "kinds", "k", "", "Comma-separated resource kinds (products, orders, customers)")
	extractCmd.Flags().StringVarP(&extractJobPath, "job", "j", "", "Path to extraction manifest (YAML or JSON)")
	extractCmd.Flags().StringVarP(&extractOutput, "output", "o", "", "Output destination: stdout or file path")
	extractCmd.Flags().StringVar(&extractStore, "store", "", "Record store location (sqlite://path or libsql://host)")
	extractCmd.Flags().StringVar(&extractPolicy, "policy", "", "Malformed line policy: fail_fast or skip")
	extractCmd.Flags().DurationVar(&extractPollInterval, "poll-interval", 0, "Spacing between job status calls")
	extractCmd.Flags().IntVar(&extractMaxAttempts, "max-attempts", 0, "Maximum job status calls per kind")
	extractCmd.Flags().IntVar(&extractConcurrency, "concurrency", 0, "Kinds extracted at once")
	extractCmd.Flags().BoolVar(&extractDryRun, "dry-run", false, "Validate inputs and print the plan without submitting jobs")
}

// extractPlan is everything a run needs, resolved from config, manifest and flags.
type extractPlan struct {
	kinds        []resource.Kind
	mode         pipeline.Mode
	pipeline     pipeline.Config
	upstream     upstream.Config
	s3           s3.Config
	endpoint     string
	upstreamErr  error
	destination  string
	store        string
	jobsDir      string
	manifestPath string
}

func runExtract(cmd *cobra.Command, args []string) error {
	plan, err := resolveExtractPlan(cmd, pipeline.ModeBulk)
	if err != nil {
		return err
	}
	if extractDryRun {
		return printPlan(cmd, plan)
	}
	return executePlan(cmd.Context(), plan)
}

func resolveExtractPlan(cmd *cobra.Command, mode pipeline.Mode) (*extractPlan, error) {
	cfg, err := runtimeConfig()
	if err != nil {
		observability.CLILogger.Error("Invalid configuration", zap.Error(err))
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	plan, err := planFromConfig(cfg, mode)
	if err != nil {
		return nil, err
	}

	var m *manifest.Manifest
	if extractJobPath != "" {
		m, err = manifest.Load(extractJobPath)
		if err != nil {
			observability.CLILogger.Error("Failed to load manifest",
				zap.String("path", extractJobPath),
				zap.Error(err))
			return nil, exitError(foundry.ExitInvalidArgument, "Invalid manifest", err)
		}
		if err := applyManifest(plan, m, mode); err != nil {
			return nil, err
		}
	}

	if err := applyExtractFlags(cmd, plan); err != nil {
		return nil, err
	}
	if len(plan.kinds) == 0 {
		return nil, exitError(foundry.ExitInvalidArgument, "No kinds given",
			fmt.Errorf("use --kinds or a manifest with kinds"))
	}

	var uc upstream.Config
	if m != nil {
		plan.endpoint = m.Connection.Endpoint
		uc, err = m.UpstreamConfig()
	} else {
		plan.endpoint = cfg.Upstream.Endpoint
		uc, err = cfg.UpstreamClientConfig()
	}
	if err != nil {
		if extractDryRun {
			plan.upstreamErr = err
			return plan, nil
		}
		observability.CLILogger.Error("Upstream connection not configured", zap.Error(err))
		return nil, exitError(foundry.ExitInvalidArgument, "Upstream connection not configured", err)
	}
	plan.upstream = uc
	return plan, nil
}

func planFromConfig(cfg *config.Config, mode pipeline.Mode) (*extractPlan, error) {
	pc, err := cfg.PipelineConfig()
	if err != nil {
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	jobsDir, err := cfg.JobsDir()
	if err != nil {
		return nil, exitError(foundry.ExitFileNotFound, "Cannot resolve jobs directory", err)
	}
	return &extractPlan{
		mode:     mode,
		pipeline: pc,
		s3:       cfg.S3ProviderConfig(),
		store:    cfg.Store.Location,
		jobsDir:  jobsDir,
	}, nil
}

// applyManifest overlays a manifest on the plan. The command's own mode
// wins over the manifest's for the fetch command.
func applyManifest(plan *extractPlan, m *manifest.Manifest, mode pipeline.Mode) error {
	kinds, err := m.ResourceKinds()
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid manifest kinds", err)
	}
	pc, err := m.PipelineConfig()
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid manifest", err)
	}

	plan.kinds = kinds
	plan.pipeline = pc
	plan.s3 = m.S3ProviderConfig(plan.s3)
	if mode == pipeline.ModeBulk {
		plan.mode = m.PipelineMode()
	}
	plan.destination = m.Output.Destination
	if m.Output.Store != "" {
		plan.store = m.Output.Store
	}
	plan.manifestPath = m.Path
	return nil
}

func applyExtractFlags(cmd *cobra.Command, plan *extractPlan) error {
	flags := cmd.Flags()
	if flags.Changed("kinds") {
		kinds, err := resource.ParseKinds(extractKinds)
		if err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid --kinds", err)
		}
		plan.kinds = kinds
	}
	if flags.Changed("output") {
		plan.destination = extractOutput
	}
	if flags.Changed("store") {
		plan.store = extractStore
	}
	if flags.Changed("policy") {
		p, err := stream.ParsePolicy(extractPolicy)
		if err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid --policy", err)
		}
		plan.pipeline.Policy = p
	}
	if flags.Changed("poll-interval") {
		if extractPollInterval <= 0 {
			return exitError(foundry.ExitInvalidArgument, "Invalid --poll-interval",
				fmt.Errorf("must be positive, got %s", extractPollInterval))
		}
		plan.pipeline.Poll.Interval = extractPollInterval
	}
	if flags.Changed("max-attempts") {
		if extractMaxAttempts <= 0 {
			return exitError(foundry.ExitInvalidArgument, "Invalid --max-attempts",
				fmt.Errorf("must be positive, got %d", extractMaxAttempts))
		}
		plan.pipeline.Poll.MaxAttempts = extractMaxAttempts
	}
	if flags.Changed("concurrency") {
		if extractConcurrency < 1 {
			return exitError(foundry.ExitInvalidArgument, "Invalid --concurrency",
				fmt.Errorf("must be at least 1, got %d", extractConcurrency))
		}
		plan.pipeline.Concurrency = extractConcurrency
	}
	return nil
}

func printPlan(cmd *cobra.Command, plan *extractPlan) error {
	out := cmd.OutOrStdout()
	names := make([]string, len(plan.kinds))
	for i, k := range plan.kinds {
		names[i] = k.String()
	}
	_, _ = fmt.Fprintln(out, "Dry run: extraction plan")
	_, _ = fmt.Fprintln(out)
	if plan.manifestPath != "" {
		_, _ = fmt.Fprintf(out, "Manifest:    %s\n", plan.manifestPath)
	}
	_, _ = fmt.Fprintf(out, "Endpoint:    %s\n", orDash(plan.endpoint))
	if plan.upstreamErr != nil {
		_, _ = fmt.Fprintf(out, "Warning:     %v\n", plan.upstreamErr)
	}
	_, _ = fmt.Fprintf(out, "Kinds:       %s\n", strings.Join(names, ", "))
	_, _ = fmt.Fprintf(out, "Mode:        %s\n", plan.mode)
	if plan.mode == pipeline.ModePaginated {
		_, _ = fmt.Fprintf(out, "Page size:   %d\n", plan.pipeline.Paginate.PageSize)
		if plan.pipeline.Paginate.MaxPages > 0 {
			_, _ = fmt.Fprintf(out, "Max pages:   %d\n", plan.pipeline.Paginate.MaxPages)
		}
	} else {
		_, _ = fmt.Fprintf(out, "Poll:        every %s, at most %d calls\n",
			plan.pipeline.Poll.Interval, plan.pipeline.Poll.MaxAttempts)
		_, _ = fmt.Fprintf(out, "Policy:      %s\n", plan.pipeline.Policy)
	}
	_, _ = fmt.Fprintf(out, "Concurrency: %d\n", plan.pipeline.Concurrency)
	_, _ = fmt.Fprintf(out, "Output:      %s\n", orDash(plan.destination))
	_, _ = fmt.Fprintf(out, "Store:       %s\n", orDash(plan.store))
	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintln(out, "Inputs validated successfully. Remove --dry-run to execute.")
	return nil
}

func executePlan(ctx context.Context, plan *extractPlan) error {
	runID := uuid.New().String()

	jobs, err := openJobStore(plan.jobsDir)
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Cannot open job registry", err)
	}
	if plan.manifestPath != "" {
		jobs.WithManifestPath(plan.manifestPath)
	}

	p, err := buildPipeline(plan.upstream, plan.pipeline, plan.s3, jobs)
	if err != nil {
		observability.CLILogger.Error("Failed to create upstream client", zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Invalid upstream configuration", err)
	}

	writer, cleanup, err := createWriter(plan.destination, runID)
	if err != nil {
		observability.CLILogger.Error("Failed to create writer", zap.Error(err))
		return exitError(foundry.ExitFileWriteError, "Failed to create output", err)
	}
	defer cleanup()

	observability.CLILogger.Info("Starting extraction",
		zap.String("run_id", runID),
		zap.String("mode", string(plan.mode)),
		zap.Int("kinds", len(plan.kinds)),
		zap.Int("concurrency", plan.pipeline.Concurrency))

	start := time.Now()
	results := p.RunBatch(ctx, plan.kinds, plan.mode)

	sum, err := emitResults(ctx, writer, results, time.Since(start))
	if err != nil {
		observability.CLILogger.Error("Failed to write output", zap.Error(err))
		return exitError(foundry.ExitFileWriteError, "Failed to write output", err)
	}

	if plan.store != "" {
		// Finished kinds are saved even after cancellation.
		storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := saveToStore(storeCtx, plan.store, results); err != nil {
			observability.CLILogger.Error("Failed to save records", zap.String("store", plan.store), zap.Error(err))
			return exitError(foundry.ExitFileWriteError, "Failed to save records", err)
		}
	}

	observability.CLILogger.Info("Extraction finished",
		zap.String("run_id", runID),
		zap.Int("records", sum.Records),
		zap.Int("failed_kinds", sum.Failed),
		zap.Duration("duration", sum.Duration))

	return batchExitError(ctx, results)
}

func saveToStore(ctx context.Context, location string, results []*pipeline.KindResult) error {
	db, err := openRecordStore(ctx, location)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	return persistResults(ctx, db, results)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
