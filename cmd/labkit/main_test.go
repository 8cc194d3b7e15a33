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

	"github.com/nvandessel/labkit/internal/blob"
	"github.com/nvandessel/labkit/internal/catalog"
	"github.com/nvandessel/labkit/internal/experiment"
	"github.com/nvandessel/labkit/internal/exptype"
	"github.com/nvandessel/labkit/internal/fault"
	"github.com/nvandessel/labkit/internal/geom"
	"github.com/nvandessel/labkit/internal/library"
)

// isolateEnv clears LABKIT_* overrides so tests only see the temp root.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LABKIT_STORAGE_DRIVER", "LABKIT_SQLITE_PATH", "LABKIT_POSTGRES_DSN",
		"LABKIT_BLOB_DRIVER", "LABKIT_BLOB_ROOT", "LABKIT_ARCHIVE_FORMAT",
		"LABKIT_KEEP_VERSIONS", "LABKIT_MAX_AGE", "LABKIT_SINGLE_DOCUMENT",
		"LABKIT_LOG_LEVEL", "LABKIT_METRICS_ADDR",
	} {
		t.Setenv(key, "")
	}
}

// run executes one labkit invocation against root and returns its stdout.
func run(t *testing.T, root string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--root", root}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, root string, args ...string) string {
	t.Helper()
	out, err := run(t, root, args...)
	if err != nil {
		t.Fatalf("labkit %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func decode(t *testing.T, out string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(out), v); err != nil {
		t.Fatalf("invalid JSON output %q: %v", out, err)
	}
}

func TestVersionCmd(t *testing.T) {
	root := t.TempDir()

	out := mustRun(t, root, "version")
	if !strings.Contains(out, version) {
		t.Errorf("version output = %q, want it to contain %q", out, version)
	}

	var v map[string]string
	decode(t, mustRun(t, root, "--json", "version"), &v)
	if v["version"] != version {
		t.Errorf("json version = %q, want %q", v["version"], version)
	}
}

func TestConfigCmd(t *testing.T) {
	isolateEnv(t)
	root := t.TempDir()

	mustRun(t, root, "config", "set", "archive.format", "bundle")
	if _, err := os.Stat(filepath.Join(root, "config.yaml")); err != nil {
		t.Fatalf("config file not written: %v", err)
	}

	var got map[string]any
	decode(t, mustRun(t, root, "--json", "config", "get", "archive.format"), &got)
	if got["value"] != "bundle" {
		t.Errorf("archive.format = %v, want bundle", got["value"])
	}

	t.Setenv("LABKIT_ARCHIVE_FORMAT", "sav")
	decode(t, mustRun(t, root, "--json", "config", "get", "archive.format"), &got)
	if got["value"] != "sav" {
		t.Errorf("env override: archive.format = %v, want sav", got["value"])
	}

	var all map[string]any
	decode(t, mustRun(t, root, "--json", "config", "list"), &all)
	if _, ok := all["storage.driver"]; !ok {
		t.Errorf("config list missing storage.driver: %v", all)
	}

	if _, err := run(t, root, "config", "get", "no.such.key"); err == nil {
		t.Error("get of unknown key should fail")
	}
	if _, err := run(t, root, "config", "set", "storage.driver", "mongo"); err == nil {
		t.Error("set of invalid driver should fail")
	}
}

func TestModelsCmd(t *testing.T) {
	root := t.TempDir()

	var models map[string][]string
	decode(t, mustRun(t, root, "--json", "models", "--type", "circuit"), &models)
	if len(models) != 1 {
		t.Fatalf("models = %v, want only circuit", models)
	}
	found := false
	for _, m := range models["circuit"] {
		if m == "Logic Input" {
			found = true
		}
	}
	if !found {
		t.Errorf("circuit models %v missing Logic Input", models["circuit"])
	}

	if _, err := run(t, root, "models", "--type", "chemistry"); !errors.Is(err, fault.ErrInvalidArgument) {
		t.Errorf("unknown type err = %v, want InvalidArgument", err)
	}
}

func TestNewCmd_Errors(t *testing.T) {
	isolateEnv(t)
	root := t.TempDir()

	if _, err := run(t, root, "new", "x", "--type", "chemistry"); !errors.Is(err, fault.ErrInvalidArgument) {
		t.Errorf("unknown type err = %v, want InvalidArgument", err)
	}
	if _, err := run(t, root, "new", "sky", "--type", "celestial", "--grid"); !errors.Is(err, fault.ErrWrongExperimentType) {
		t.Errorf("grid on celestial err = %v, want WrongExperimentType", err)
	}

	mustRun(t, root, "new", "dup")
	if _, err := run(t, root, "new", "dup"); !errors.Is(err, fault.ErrExperimentExists) {
		t.Errorf("duplicate err = %v, want ExperimentExists", err)
	}
	mustRun(t, root, "new", "dup", "--overwrite", "--type", "em")
}

func TestExperimentWorkflow(t *testing.T) {
	isolateEnv(t)
	root := t.TempDir()

	mustRun(t, root, "new", "adder", "--grid")

	var in, out elementOut
	decode(t, mustRun(t, root, "--json", "place", "adder", "Logic Input", "--at", "0,0,0"), &in)
	decode(t, mustRun(t, root, "--json", "place", "adder", "Logic Output", "--at", "1,0,0"), &out)
	if in.ID == "" || out.ID == "" || in.ID == out.ID {
		t.Fatalf("element ids = %q, %q", in.ID, out.ID)
	}

	mustRun(t, root, "connect", "adder", in.ID+":o", out.ID+":i", "--color", "red")
	if _, err := run(t, root, "connect", "adder", out.ID+":i", in.ID+":o"); !errors.Is(err, fault.ErrInvalidWire) {
		t.Errorf("reversed duplicate err = %v, want InvalidWire", err)
	}
	if _, err := run(t, root, "connect", "adder", in.ID+":nope", out.ID+":i"); !errors.Is(err, fault.ErrInvalidWire) {
		t.Errorf("unknown pin err = %v, want InvalidWire", err)
	}

	var shown showOut
	decode(t, mustRun(t, root, "--json", "show", "adder"), &shown)
	if !shown.GridMode || len(shown.Elements) != 2 || len(shown.Wires) != 1 {
		t.Fatalf("show = %+v, want grid mode with 2 elements and 1 wire", shown)
	}
	if w := shown.Wires[0]; w.Source.Element != in.ID || w.Target.Element != out.ID {
		t.Errorf("wire = %+v", w)
	}

	mustRun(t, root, "move", "adder", out.ID, "--at", "2,0,0")
	mustRun(t, root, "remove", "adder", in.ID)
	decode(t, mustRun(t, root, "--json", "show", "adder"), &shown)
	if len(shown.Elements) != 1 || len(shown.Wires) != 0 {
		t.Fatalf("after remove: %+v, want 1 element and no wires", shown)
	}

	var versions []library.Version
	decode(t, mustRun(t, root, "--json", "versions", "adder"), &versions)
	if len(versions) < 2 {
		t.Errorf("versions = %d, want one per save", len(versions))
	}

	path := filepath.Join(root, "out", "adder.lkb")
	var exported map[string]any
	decode(t, mustRun(t, root, "--json", "export", "adder", path), &exported)
	if exported["format"] != "bundle" {
		t.Errorf("export format = %v, want bundle from extension", exported["format"])
	}

	if _, err := run(t, root, "import", path); !errors.Is(err, fault.ErrExperimentExists) {
		t.Errorf("import over existing err = %v, want ExperimentExists", err)
	}

	mustRun(t, root, "delete", "adder")
	if _, err := run(t, root, "show", "adder"); !errors.Is(err, fault.ErrExperimentNotFound) {
		t.Errorf("show after delete err = %v, want ExperimentNotFound", err)
	}

	mustRun(t, root, "import", path)
	var entries []library.Entry
	decode(t, mustRun(t, root, "--json", "list"), &entries)
	if len(entries) != 1 || entries[0].Name != "adder" || entries[0].Elements != 1 {
		t.Errorf("list after import = %+v", entries)
	}
}

func TestParsePin(t *testing.T) {
	ctx := context.Background()
	lib := library.New(library.NewMemoryIndex(), blob.NewMemory(), library.Options{})
	wb := experiment.NewWorkbench(lib)
	e, err := wb.Create(ctx, "pins", exptype.Circuit, experiment.CreateNew)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	el, err := e.PlaceModel("And Gate", catalog.Params{}, geom.Pos(0, 0, 0))
	if err != nil {
		t.Fatalf("PlaceModel: %v", err)
	}
	id := el.ID()

	tests := []struct {
		in      string
		wantPin int
		wantErr error
	}{
		{id + ":0", 0, nil},
		{id + ":" + el.Pins[1], 1, nil},
		{"other:2", 2, nil},
		{id + ":zz", 0, fault.ErrInvalidWire},
		{"missing:o", 0, fault.ErrInvalidWire},
		{id, 0, fault.ErrInvalidArgument},
		{id + ":", 0, fault.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			ref, err := parsePin(e, tt.in)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ref.Pin != tt.wantPin {
				t.Errorf("pin = %d, want %d", ref.Pin, tt.wantPin)
			}
		})
	}
}
