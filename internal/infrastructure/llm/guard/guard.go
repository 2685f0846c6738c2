// Package guard serializes access to a model instance and bounds each call in time.
package guard

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/kirillkom/medical-rag-assistant/internal/core/ports"
)

// Limiter is shared by every role that uses the same underlying model.
type Limiter struct {
	sem     *semaphore.Weighted
	timeout time.Duration
}

// NewLimiter allows maxConcurrent in-flight calls, each cancelled after timeout.
// Non-positive values mean one call at a time and no timeout.
func NewLimiter(maxConcurrent int, timeout time.Duration) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Limiter{
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		timeout: timeout,
	}
}

func (l *Limiter) do(ctx context.Context, fn func(context.Context) error) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer l.sem.Release(1)

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	return fn(ctx)
}

type Generator struct {
	next    ports.Generator
	limiter *Limiter
}

func NewGenerator(next ports.Generator, limiter *Limiter) *Generator {
	return &Generator{next: next, limiter: limiter}
}

func (g *Generator) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	var out string
	err := g.limiter.do(ctx, func(ctx context.Context) error {
		var err error
		out, err = g.next.Generate(ctx, prompt, maxTokens)
		return err
	})
	return out, err
}

type Embedder struct {
	next    ports.Embedder
	limiter *Limiter
}

func NewEmbedder(next ports.Embedder, limiter *Limiter) *Embedder {
	return &Embedder{next: next, limiter: limiter}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := e.limiter.do(ctx, func(ctx context.Context) error {
		var err error
		out, err = e.next.Embed(ctx, texts)
		return err
	})
	return out, err
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := e.limiter.do(ctx, func(ctx context.Context) error {
		var err error
		out, err = e.next.EmbedQuery(ctx, text)
		return err
	})
	return out, err
}
