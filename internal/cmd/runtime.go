package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/3leaps/gobulk/internal/observability"
	"github.com/3leaps/gobulk/pkg/jobregistry"
	"github.com/3leaps/gobulk/pkg/output"
	"github.com/3leaps/gobulk/pkg/pipeline"
	"github.com/3leaps/gobulk/pkg/provider"
	"github.com/3leaps/gobulk/pkg/provider/file"
	"github.com/3leaps/gobulk/pkg/provider/s3"
	"github.com/3leaps/gobulk/pkg/provider/web"
	"github.com/3leaps/gobulk/pkg/recordstore"
	"github.com/3leaps/gobulk/pkg/upstream"
)

// newOpener returns a registry that fetches result payloads over http(s),
// from S3 and from local files. The S3 client is created from s3cfg on
// first use.
func newOpener(s3cfg s3.Config) *provider.Registry {
	var (
		once    sync.Once
		s3Prov  *s3.Provider
		initErr error
	)
	lazyS3 := provider.OpenerFunc(func(ctx context.Context, location string) (io.ReadCloser, error) {
		once.Do(func() {
			s3Prov, initErr = s3.New(ctx, s3cfg)
		})
		if initErr != nil {
			return nil, initErr
		}
		return s3Prov.Open(ctx, location)
	})

	return provider.NewRegistry().
		Register(web.New(web.Config{}), "http", "https").
		Register(lazyS3, "s3").
		Register(file.New(file.Config{}), "file")
}

// buildPipeline wires the upstream client, payload providers and job
// registry into a pipeline.
func buildPipeline(uc upstream.Config, pc pipeline.Config, s3cfg s3.Config, jobs *jobregistry.Store) (*pipeline.Pipeline, error) {
	client, err := upstream.New(uc)
	if err != nil {
		return nil, err
	}
	client.WithLogger(observability.CLILogger)

	p := pipeline.New(client, newOpener(s3cfg), pc).WithLogger(observability.CLILogger)
	if jobs != nil {
		p.WithJobRecorder(jobs)
	}
	return p, nil
}

// openJobStore returns the job registry rooted at the configured directory.
func openJobStore(dir string) (*jobregistry.Store, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("job registry directory is empty")
	}
	return jobregistry.NewStore(dir), nil
}

// openRecordStore opens and migrates the record store at location.
func openRecordStore(ctx context.Context, location string) (*sql.DB, error) {
	cfg, err := recordstore.ConfigFromLocation(location)
	if err != nil {
		return nil, err
	}
	db, err := recordstore.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := recordstore.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// createWriter creates the JSONL writer for dest, returning the writer and
// a cleanup function.
func createWriter(dest, runID string) (output.Writer, func(), error) {
	if dest == "" || dest == "stdout" || dest == "-" {
		w := output.NewJSONLWriter(os.Stdout, runID)
		return w, func() { _ = w.Close() }, nil
	}

	path := strings.TrimPrefix(dest, "file:")
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file %s: %w", path, err)
	}

	w := output.NewJSONLWriter(f, runID)
	cleanup := func() {
		_ = w.Close()
		if err := f.Close(); err != nil {
			observability.CLILogger.Warn("Failed to close output file", zap.String("path", path), zap.Error(err))
		}
	}
	return w, cleanup, nil
}
