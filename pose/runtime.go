// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package pose

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/logging"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrDisposed is returned by Ensure after Dispose.
	ErrDisposed = errors.New("pose runtime disposed")
	// ErrLoad wraps estimator loader failures.
	ErrLoad = errors.New("failed to load pose estimator")
	// ErrNoLoader is returned when a runtime has nothing to load.
	ErrNoLoader = errors.New("pose runtime has no loader")
)

// Loader builds an estimator, typically by loading a model from disk.
type Loader func(ctx context.Context) (Estimator, error)

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime) error

// RuntimeLoggerFactory sets the logger factory used by the runtime.
func RuntimeLoggerFactory(loggerFactory logging.LoggerFactory) RuntimeOption {
	return func(r *Runtime) error {
		r.log = loggerFactory.NewLogger("pose_runtime")

		return nil
	}
}

// Runtime owns the loaded estimator for the process. The estimator is loaded
// on first use; concurrent callers wait for the same load, and a failed load
// is retried by the next caller.
type Runtime struct {
	loader Loader
	group  singleflight.Group

	mu       sync.Mutex
	est      Estimator
	loads    int
	disposed bool

	log logging.LeveledLogger
}

// NewRuntime creates a runtime that loads its estimator with loader.
func NewRuntime(loader Loader, opts ...RuntimeOption) (*Runtime, error) {
	r := &Runtime{
		loader: loader,
		log:    logging.NewDefaultLoggerFactory().NewLogger("pose_runtime"),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// StaticRuntime wraps an already constructed estimator.
func StaticRuntime(est Estimator) *Runtime {
	r, _ := NewRuntime(func(context.Context) (Estimator, error) {
		return est, nil
	})

	return r
}

// Initialize loads the estimator if it is not loaded yet.
func (r *Runtime) Initialize(ctx context.Context) error {
	_, err := r.Ensure(ctx)

	return err
}

// Ensure returns the loaded estimator, loading it first if needed.
func (r *Runtime) Ensure(ctx context.Context) (Estimator, error) {
	if est, err := r.loaded(); est != nil || err != nil {
		return est, err
	}
	if r.loader == nil {
		return nil, ErrNoLoader
	}

	ch := r.group.DoChan("estimator", func() (any, error) {
		if est, err := r.loaded(); est != nil || err != nil {
			return est, err
		}

		r.log.Info("loading pose estimator")
		// Other callers may be waiting on this load after ctx is done.
		est, err := r.loader(context.WithoutCancel(ctx))
		if err != nil {
			r.log.Warnf("pose estimator load failed: %v", err)

			return nil, fmt.Errorf("%w: %w", ErrLoad, err)
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if r.disposed {
			_ = est.Close()

			return nil, ErrDisposed
		}
		r.est = est
		r.loads++
		r.log.Info("pose estimator ready")

		return est, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}

		est, _ := res.Val.(Estimator)

		return est, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Runtime) loaded() (Estimator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.disposed {
		return nil, ErrDisposed
	}

	return r.est, nil
}

// Estimator returns the loaded estimator, or nil before a successful Ensure.
func (r *Runtime) Estimator() Estimator {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.est
}

// Loads returns how many times the loader succeeded.
func (r *Runtime) Loads() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.loads
}

// Dispose closes the loaded estimator. The runtime cannot be used afterwards.
func (r *Runtime) Dispose() error {
	r.mu.Lock()
	est := r.est
	r.est = nil
	r.disposed = true
	r.mu.Unlock()

	if est == nil {
		return nil
	}

	return est.Close()
}
