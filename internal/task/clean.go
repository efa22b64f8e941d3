package task

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/conneroisu/assetpipe/internal/errors"
	"github.com/conneroisu/assetpipe/internal/logging"
)

// DefaultCleanRetries bounds how often a failed removal is retried. Editors
// and file servers briefly holding files open are the usual cause.
const DefaultCleanRetries = 4

// Clean deletes a directory and recreates it empty.
type Clean struct {
	name    string
	root    string
	dir     string
	retries uint64
	logger  logging.Logger
}

// NewClean creates a clean task for dir, relative to root.
func NewClean(name, root, dir string, logger logging.Logger) (*Clean, error) {
	if err := checkDest(dir); err != nil {
		return nil, errors.NewConfigError(err.Error()).WithTask(name)
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Clean{
		name:    name,
		root:    root,
		dir:     dir,
		retries: DefaultCleanRetries,
		logger:  logger.With("task", name),
	}, nil
}

// Name returns the task name.
func (c *Clean) Name() string { return c.name }

// Dir returns the directory being cleaned, relative to the root.
func (c *Clean) Dir() string { return c.dir }

// Run removes the directory, retrying transient failures with exponential
// backoff, and recreates it.
func (c *Clean) Run(ctx context.Context) (Written, error) {
	target := filepath.Join(c.root, filepath.FromSlash(c.dir))

	attempt := 0
	operation := func() error {
		attempt++
		err := os.RemoveAll(target)
		if err != nil {
			c.logger.Debug(ctx, "Remove failed, retrying", "attempt", attempt, "error", err.Error())
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = time.Second
	policy := backoff.WithContext(backoff.WithMaxRetries(b, c.retries), ctx)

	if err := backoff.Retry(operation, policy); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.NewFilesystemError(c.dir, "remove output directory", err).WithTask(c.name)
	}

	if err := os.MkdirAll(target, 0o755); err != nil {
		return nil, errors.NewFilesystemError(c.dir, "create output directory", err).WithTask(c.name)
	}
	return nil, nil
}
