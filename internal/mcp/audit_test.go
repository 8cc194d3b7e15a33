package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func readAudit(t *testing.T, dir string) []AuditEntry {
	t.Helper()
	f, err := os.Open(filepath.Join(dir, AuditFile))
	if err != nil {
		t.Fatalf("opening audit log: %v", err)
	}
	defer f.Close()

	var entries []AuditEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e AuditEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("invalid audit line %q: %v", sc.Text(), err)
		}
		entries = append(entries, e)
	}
	return entries
}

func TestAuditLogger_NilSafety(t *testing.T) {
	var logger *AuditLogger
	logger.Log(AuditEntry{Tool: "test"})
	if err := logger.Close(); err != nil {
		t.Errorf("Close() on nil logger returned error: %v", err)
	}
}

func TestAuditLogger_WritesJSONL(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	logger := NewAuditLogger(dir)
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}

	logger.Log(AuditEntry{
		Timestamp:  time.Now(),
		Tool:       "lab_place",
		DurationMs: 42,
		Status:     "success",
		Params:     map[string]string{"model": "And Gate"},
	})
	if err := logger.Close(); err != nil {
		t.Fatal(err)
	}
	logger.Log(AuditEntry{Tool: "after_close"})

	entries := readAudit(t, dir)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Tool != "lab_place" || entries[0].DurationMs != 42 || entries[0].Params["model"] != "And Gate" {
		t.Errorf("entry = %+v", entries[0])
	}

	info, err := os.Stat(filepath.Join(dir, AuditFile))
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file permissions = %o, want 0600", perm)
	}
}

func TestAuditLogger_ConcurrentWrites(t *testing.T) {
	dir := t.TempDir()
	logger := NewAuditLogger(dir)
	defer logger.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Log(AuditEntry{Tool: "lab_show", Status: "success"})
		}()
	}
	wg.Wait()

	if got := len(readAudit(t, dir)); got != 20 {
		t.Errorf("got %d entries, want 20", got)
	}
}

func TestSanitizeToolParams(t *testing.T) {
	if sanitizeToolParams(nil) != nil {
		t.Error("nil params should stay nil")
	}

	got := sanitizeToolParams(map[string]any{
		"name":    "adder",
		"path":    "/home/someone/secret.sav",
		"params":  map[string]string{"pitch": "C4"},
		"comment": "not audited",
	})
	want := map[string]string{
		"name":         "adder",
		"path":         "(set)",
		"params":       "(set)",
		"_param_count": "4",
	}
	if len(got) != len(want) {
		t.Fatalf("sanitized = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("sanitized[%q] = %q, want %q", k, got[k], v)
		}
	}
}

func TestAuditTool_RecordsErrorKind(t *testing.T) {
	server, dir := setupTestServer(t)
	ctx := context.Background()

	if _, _, err := server.handleLabShow(ctx, nil, LabShowInput{Name: "ghost"}); err == nil {
		t.Fatal("expected an error")
	}
	if _, _, err := server.handleLabModels(ctx, nil, LabModelsInput{}); err != nil {
		t.Fatal(err)
	}

	entries := readAudit(t, dir)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if e := entries[0]; e.Tool != "lab_show" || e.Status != "error" || e.Kind != "experiment-not-found" || e.Params["name"] != "ghost" {
		t.Errorf("error entry = %+v", e)
	}
	if e := entries[1]; e.Tool != "lab_models" || e.Status != "success" || e.Kind != "" {
		t.Errorf("success entry = %+v", e)
	}
}
