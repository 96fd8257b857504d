// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package selection

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/rigrun-chatlink/internal/text"
)

// DefaultConcurrency bounds how many sources resolve at once.
const DefaultConcurrency = 8

// Snippetizer resolves selection sources into ad-hoc fragments.
type Snippetizer struct {
	concurrency int
	logger      *zap.Logger
}

// Option configures a Snippetizer.
type Option func(*Snippetizer)

// WithConcurrency sets the number of sources resolved in parallel.
func WithConcurrency(n int) Option {
	return func(s *Snippetizer) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Snippetizer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSnippetizer creates a Snippetizer.
func NewSnippetizer(opts ...Option) *Snippetizer {
	s := &Snippetizer{concurrency: DefaultConcurrency, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchSnippets resolves every source and returns the fragments in source
// order. Sources with nothing to contribute are skipped. A failing source
// does not stop the others; its error is joined into the returned error
// alongside the fragments that did resolve. Cancelling ctx stops work that
// has not started.
func (s *Snippetizer) FetchSnippets(ctx context.Context, sources []Source) ([]text.TextContent, error) {
	results := make([]text.TextContent, len(sources))
	errs := make([]error, len(sources))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.concurrency)

	for i, src := range sources {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			frag, ok, err := src.Resolve(egCtx)
			if err != nil {
				s.logger.Debug("selection source failed",
					zap.String("source", src.Describe()),
					zap.Error(err))
				errs[i] = fmt.Errorf("%s: %w", src.Describe(), err)
				return nil
			}
			if ok {
				results[i] = frag
			}
			return nil
		})
	}
	eg.Wait()

	out := make([]text.TextContent, 0, len(sources))
	for _, frag := range results {
		if frag != nil {
			out = append(out, frag)
		}
	}

	if err := ctx.Err(); err != nil {
		return out, err
	}
	return out, errors.Join(errs...)
}
