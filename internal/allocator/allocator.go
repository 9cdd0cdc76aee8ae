// Package allocator maps host parallelism to a fixed concurrency plan for
// the encoder pools.
package allocator

import (
	"context"
	"log/slog"
	"runtime"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v4/cpu"
)

// Plan is the concurrency budget for the encoder pools. It is computed once
// at startup and never changes for the life of the process.
type Plan struct {
	TotalThreads            int `json:"total_threads"`
	TranscodeConcurrency    int `json:"transcode_concurrency"`
	ThreadsPerJob           int `json:"threads_per_job"`
	CleanPreviewConcurrency int `json:"clean_preview_concurrency"`
	MaxThreadsUsed          int `json:"max_threads_used"`
}

// tier is one row of the lookup table. Rows are matched by upper bound.
type tier struct {
	maxThreads   int // inclusive; 0 means unbounded
	transcode    int
	cleanPreview int
	threadsEach  int
}

// Encoders get at most half the host so a co-located web process stays
// responsive. Hyperthreads count as threads.
var tiers = []tier{
	{maxThreads: 2, transcode: 1, cleanPreview: 1, threadsEach: 1},
	{maxThreads: 4, transcode: 1, cleanPreview: 1, threadsEach: 1},
	{maxThreads: 8, transcode: 1, cleanPreview: 1, threadsEach: 2},
	{maxThreads: 16, transcode: 1, cleanPreview: 1, threadsEach: 2},
	{maxThreads: 0, transcode: 2, cleanPreview: 1, threadsEach: 2},
}

// Compute returns the plan for totalThreads hardware threads.
func Compute(totalThreads int) Plan {
	totalThreads = max(totalThreads, 1)

	t := tiers[len(tiers)-1]
	for _, candidate := range tiers {
		if candidate.maxThreads != 0 && totalThreads <= candidate.maxThreads {
			t = candidate
			break
		}
	}

	p := Plan{
		TotalThreads:            totalThreads,
		TranscodeConcurrency:    max(t.transcode, 1),
		CleanPreviewConcurrency: max(t.cleanPreview, 1),
		ThreadsPerJob:           max(t.threadsEach, 1),
	}
	p.MaxThreadsUsed = (p.TranscodeConcurrency + p.CleanPreviewConcurrency) * p.ThreadsPerJob
	return p
}

// Oversubscribed reports whether the plan uses more threads than the host
// has. Only a single-thread host gets here, because the >= 1 floor on both
// pools wins over the budget.
func (p Plan) Oversubscribed() bool {
	return p.MaxThreadsUsed > p.TotalThreads
}

// ParseOverride parses a thread count override. Only a positive integer is
// accepted; anything else reports false.
func ParseOverride(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// DetectThreads returns the number of logical CPUs.
func DetectThreads(ctx context.Context) int {
	if n, err := cpu.CountsWithContext(ctx, true); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// Resolve computes the plan from the override when it is valid, otherwise
// from detected hardware.
func Resolve(ctx context.Context, override string, logger *slog.Logger) Plan {
	source := "override"
	threads, ok := ParseOverride(override)
	if !ok {
		if override != "" {
			logger.Warn("ignoring invalid thread override", slog.String("value", override))
		}
		source = "detected"
		threads = DetectThreads(ctx)
	}

	plan := Compute(threads)
	logger.Info("resource plan computed",
		slog.String("source", source),
		slog.Int("total_threads", plan.TotalThreads),
		slog.Int("transcode_concurrency", plan.TranscodeConcurrency),
		slog.Int("clean_preview_concurrency", plan.CleanPreviewConcurrency),
		slog.Int("threads_per_job", plan.ThreadsPerJob),
		slog.Int("max_threads_used", plan.MaxThreadsUsed),
	)
	if plan.Oversubscribed() {
		logger.Warn("host has fewer threads than the minimum plan; encoders will share the only thread",
			slog.Int("total_threads", plan.TotalThreads),
			slog.Int("max_threads_used", plan.MaxThreadsUsed),
		)
	}
	return plan
}
