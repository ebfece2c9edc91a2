package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mikey/phish-filter/internal/adapters/classifier/static"
	"github.com/mikey/phish-filter/internal/core"
	"github.com/mikey/phish-filter/internal/features"
	"github.com/mikey/phish-filter/internal/fusion"
	"github.com/mikey/phish-filter/internal/lexicon"
	"github.com/mikey/phish-filter/internal/utils"
)

func newTestBatch(t *testing.T, out io.Writer, jsonOutput bool) *batch {
	t.Helper()
	logger := zaptest.NewLogger(t)
	clf, err := static.New(0.1, 0.5)
	if err != nil {
		t.Fatalf("static.New: %v", err)
	}
	fuser, err := fusion.NewFuser(fusion.DefaultConfig())
	if err != nil {
		t.Fatalf("NewFuser: %v", err)
	}
	service := core.NewAnalysisService(clf, nil, features.NewEngine(lexicon.Default()), fuser,
		utils.NewTextProcessor(logger), logger, false, 0, 0, 0)
	return &batch{
		service:    service,
		logger:     logger,
		out:        out,
		progress:   io.Discard,
		workers:    3,
		jsonOutput: jsonOutput,
	}
}

func writeMessages(t *testing.T, n int) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	for i := 0; i < n; i++ {
		name := filepath.Join(dir, string(rune('a'+i))+".eml")
		if i%2 == 1 {
			name = filepath.Join(dir, "sub", string(rune('a'+i))+".eml")
		}
		msg := "From: x@example.org\r\nSubject: Note\r\n\r\nHello\r\n"
		if err := os.WriteFile(name, []byte(msg), 0o600); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
	return dir
}

func TestBatchJSON(t *testing.T) {
	t.Parallel()

	dir := writeMessages(t, 5)
	var out bytes.Buffer
	if err := newTestBatch(t, &out, true).run(context.Background(), dir); err != nil {
		t.Fatalf("run: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 5 {
		t.Fatalf("got %d result lines, want 5:\n%s", len(lines), out.String())
	}
	var prev string
	for _, line := range lines {
		var r struct {
			Path     string `json:"path"`
			Analysis struct {
				Tier string `json:"tier"`
			} `json:"analysis"`
		}
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			t.Fatalf("bad line %q: %v", line, err)
		}
		if r.Analysis.Tier != "green" {
			t.Errorf("%s: tier %q", r.Path, r.Analysis.Tier)
		}
		if r.Path <= prev {
			t.Errorf("results not in path order: %q after %q", r.Path, prev)
		}
		prev = r.Path
	}
}

func TestBatchText(t *testing.T) {
	t.Parallel()

	dir := writeMessages(t, 2)
	var out bytes.Buffer
	if err := newTestBatch(t, &out, false).run(context.Background(), dir); err != nil {
		t.Fatalf("run: %v", err)
	}
	if strings.Count(out.String(), "Legitimate (green)") != 2 {
		t.Errorf("unexpected output:\n%s", out.String())
	}
}

func TestBatchReportsFailures(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	err := newTestBatch(t, &out, true).write([]batchResult{
		{Path: "a.eml", Error: "boom"},
		{Path: "b.eml", Analysis: &core.Analysis{}},
	})
	if err == nil || !strings.Contains(err.Error(), "1 of 2") {
		t.Errorf("got %v, want a failure count", err)
	}

	if err := newTestBatch(t, &out, true).run(context.Background(), filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Errorf("expected an error for a missing directory")
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("terminal closed")
}

func TestBatchLogsProgressFailures(t *testing.T) {
	t.Parallel()

	observed, logs := observer.New(zap.DebugLevel)
	var out bytes.Buffer
	b := newTestBatch(t, &out, true)
	b.logger = zap.New(observed)
	b.progress = failingWriter{}

	if err := b.run(context.Background(), writeMessages(t, 2)); err != nil {
		t.Fatalf("run: %v", err)
	}
	if strings.Count(strings.TrimSpace(out.String()), "\n") != 1 {
		t.Errorf("want 2 result lines despite progress errors:\n%s", out.String())
	}
	if logs.FilterMessage("Failed to update progress bar").Len() == 0 {
		t.Errorf("progress bar errors were not logged")
	}
}
