// Package imagegen abstracts the slow external image-synthesis provider
// driven by generation jobs.
package imagegen

import "context"

// Generator produces one image for a text prompt and returns a URL (or data
// URI) for the rendered result. Implementations must honor ctx so the job
// runner can enforce its global ceiling.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
