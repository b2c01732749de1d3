package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	apperrors "github.com/3leaps/gobulk/internal/errors"
	"github.com/3leaps/gobulk/internal/observability"
	"github.com/3leaps/gobulk/internal/server"
	"github.com/3leaps/gobulk/internal/server/handlers"
	"github.com/3leaps/gobulk/pkg/pipeline"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve extraction results over HTTP",
	Long: `Start the HTTP server.

Routes:
  GET /health, /health/live, /health/ready, /health/startup
  GET /version
  GET /v1/kinds
  GET /v1/records?resources=products,orders[&mode=paginated]

/v1/records runs an extraction per requested kind and returns each kind's
records or its error. It needs an upstream endpoint and access token.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "Listen host (default from server.host)")
	serveCmd.Flags().Int("port", 0, "Listen port (default from server.port)")
	serveCmd.Flags().String("mode", string(pipeline.ModeBulk), "Default extraction mode: bulk or paginated")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}

// signalHealthChecker reports healthy while the process is serving.
type signalHealthChecker struct{}

func (signalHealthChecker) CheckHealth(ctx context.Context) error {
	return nil
}

// identityHealthChecker verifies the app identity is complete.
type identityHealthChecker struct {
	binaryName string
	envPrefix  string
	configName string
}

func (c identityHealthChecker) CheckHealth(ctx context.Context) error {
	switch {
	case c.binaryName == "":
		return errors.New("missing binary name")
	case c.envPrefix == "":
		return errors.New("missing env prefix")
	case c.configName == "":
		return errors.New("missing config name")
	}
	return nil
}

// storeHealthChecker pings the record store.
type storeHealthChecker struct {
	db *sql.DB
}

func (c storeHealthChecker) CheckHealth(ctx context.Context) error {
	if c.db == nil {
		return errors.New("record store not open")
	}
	return c.db.PingContext(ctx)
}

// upstreamHealthChecker reports whether extraction requests can be served.
type upstreamHealthChecker struct {
	err error
}

func (c upstreamHealthChecker) CheckHealth(ctx context.Context) error {
	if c.err != nil {
		return fmt.Errorf("upstream not configured: %w", c.err)
	}
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := runtimeConfig()
	if err != nil {
		observability.CLILogger.Error("Invalid configuration", zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	modeFlag, _ := cmd.Flags().GetString("mode")
	mode := pipeline.Mode(modeFlag)
	if mode != pipeline.ModeBulk && mode != pipeline.ModePaginated {
		return exitError(foundry.ExitInvalidArgument, "Invalid --mode", fmt.Errorf("unknown mode %q", modeFlag))
	}

	handlers.SetVersionInfo(versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate)
	handlers.InitHealthManager(versionInfo.Version)
	health := handlers.GetHealthManager()
	health.RegisterChecker("signal", signalHealthChecker{})
	if id := GetAppIdentity(); id != nil {
		health.RegisterChecker("identity", identityHealthChecker{
			binaryName: id.BinaryName,
			envPrefix:  id.EnvPrefix,
			configName: id.ConfigName,
		})
	}

	srv := server.New(cfg.Server.Host, cfg.Server.Port).
		WithLogger(observability.CLILogger).
		WithTimeouts(server.Timeouts{
			Read:     cfg.Server.ReadTimeout,
			Write:    cfg.Server.WriteTimeout,
			Idle:     cfg.Server.IdleTimeout,
			Shutdown: cfg.Server.ShutdownTimeout,
		})

	pc, err := cfg.PipelineConfig()
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	uc, upErr := cfg.UpstreamClientConfig()
	health.RegisterChecker("upstream", upstreamHealthChecker{err: upErr})
	if upErr != nil {
		observability.CLILogger.Warn("Upstream not configured; /v1/records will return 503", zap.Error(upErr))
		srv.WithRecords(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apperrors.RespondWithError(w, r, apperrors.NewServiceUnavailable("upstream connection not configured"))
		}))
	} else {
		jobsDir, err := cfg.JobsDir()
		if err != nil {
			return exitError(foundry.ExitFileNotFound, "Cannot resolve jobs directory", err)
		}
		jobs, err := openJobStore(jobsDir)
		if err != nil {
			return exitError(foundry.ExitFileWriteError, "Cannot open job registry", err)
		}
		p, err := buildPipeline(uc, pc, cfg.S3ProviderConfig(), jobs)
		if err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid upstream configuration", err)
		}
		srv.WithRecords(handlers.NewRecordsHandler(p).
			WithDefaultMode(mode).
			WithLogger(observability.CLILogger))
	}

	if cfg.Store.Location != "" {
		db, err := openRecordStore(ctx, cfg.Store.Location)
		if err != nil {
			return exitError(foundry.ExitFileReadError, "Failed to open record store", err)
		}
		defer func() { _ = db.Close() }()
		health.RegisterChecker("store", storeHealthChecker{db: db})
	}

	observability.CLILogger.Info("Starting server",
		zap.String("addr", srv.Addr()),
		zap.String("mode", string(mode)),
		zap.String("version", versionInfo.Version))

	if err := srv.ListenAndServe(ctx); err != nil {
		observability.CLILogger.Error("Server failed", zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Server failed", err)
	}
	observability.CLILogger.Info("Server stopped")
	return nil
}
