package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/gammazero/workerpool"
	"github.com/mikey/phish-filter/internal/core"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

// batchResult is one line of batch output
type batchResult struct {
	Path     string         `json:"path"`
	Analysis *core.Analysis `json:"analysis,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// batch analyzes every regular file under a directory on a worker pool
type batch struct {
	service    *core.AnalysisService
	logger     *zap.Logger
	out        io.Writer
	progress   io.Writer
	workers    int
	jsonOutput bool
}

func (b *batch) run(ctx context.Context, dir string) error {
	paths, err := listFiles(dir)
	if err != nil {
		return &core.IOError{Op: "list messages", Path: dir, Err: err}
	}
	b.logger.Info("Analyzing directory", zap.String("dir", dir), zap.Int("files", len(paths)))

	workers := b.workers
	if workers < 1 {
		workers = 1
	}
	wp := workerpool.New(workers)
	bar := progressbar.NewOptions(len(paths),
		progressbar.OptionSetWriter(b.progress),
		progressbar.OptionSetDescription("analyzing"),
		progressbar.OptionClearOnFinish())

	results := make([]batchResult, len(paths))
	for i, path := range paths {
		i, path := i, path
		wp.Submit(func() {
			defer func() { b.logProgress(bar.Add(1)) }()
			results[i].Path = path
			analysis, err := b.service.AnalyzeFile(ctx, path)
			if err != nil {
				b.logger.Error("Failed to analyze message", zap.String("path", path), zap.Error(err))
				results[i].Error = err.Error()
				return
			}
			results[i].Analysis = analysis
		})
	}
	wp.StopWait()
	b.logProgress(bar.Finish())

	return b.write(results)
}

// logProgress records a failed progress bar update without failing the batch
func (b *batch) logProgress(err error) {
	if err != nil {
		b.logger.Debug("Failed to update progress bar", zap.Error(err))
	}
}

// write prints results in path order and reports how many failed
func (b *batch) write(results []batchResult) error {
	failed := 0
	enc := json.NewEncoder(b.out)
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
		if b.jsonOutput {
			if err := enc.Encode(r); err != nil {
				return fmt.Errorf("failed to encode result: %w", err)
			}
			continue
		}
		if r.Error != "" {
			fmt.Fprintf(b.out, "%s: error: %s\n", r.Path, r.Error)
			continue
		}
		fmt.Fprintf(b.out, "%s: %s (%s) score=%.4f\n", r.Path, r.Analysis.PredictionLabel, r.Analysis.Tier, r.Analysis.FinalScore)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d messages could not be analyzed", failed, len(results))
	}
	return nil
}

func listFiles(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}
