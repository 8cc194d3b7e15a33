package library

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nvandessel/labkit/internal/archive"
	"github.com/nvandessel/labkit/internal/blob"
	"github.com/nvandessel/labkit/internal/exptype"
)

// exerciseIndex runs the behaviour every Index implementation shares.
func exerciseIndex(t *testing.T, idx Index) {
	t.Helper()
	ctx := context.Background()
	created := time.Date(2026, 1, 2, 3, 4, 5, 6000, time.UTC)

	e, err := idx.Lookup(ctx, "adder")
	if err != nil || e != nil {
		t.Fatalf("Lookup(empty) = %v, %v; want nil, nil", e, err)
	}

	first := Entry{
		Name: "adder", Type: exptype.Circuit, Key: "experiments/adder/1.sav",
		Format: archive.FormatSav, Size: 120, Elements: 3, Wires: 2,
		CreatedAt: created, UpdatedAt: created,
	}
	if err := idx.Upsert(ctx, first); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	second := first
	second.Key = "experiments/adder/2.lkb"
	second.Format = archive.FormatBundle
	second.CreatedAt = created.Add(time.Hour)
	second.UpdatedAt = created.Add(time.Hour)
	if err := idx.Upsert(ctx, second); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got, err := idx.Lookup(ctx, "adder")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if got.Key != second.Key || got.Format != archive.FormatBundle {
		t.Errorf("Lookup() = %+v, want key %q", got, second.Key)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want first insert %v", got.CreatedAt, created)
	}
	if !got.UpdatedAt.Equal(second.UpdatedAt) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, second.UpdatedAt)
	}

	orbit := Entry{Name: "orbit", Type: exptype.Celestial, Key: "experiments/orbit/1.sav", Format: archive.FormatSav}
	if err := idx.Upsert(ctx, orbit); err != nil {
		t.Fatal(err)
	}
	list, err := idx.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].Name != "adder" || list[1].Name != "orbit" || list[1].Type != exptype.Celestial {
		t.Errorf("List() = %+v", list)
	}

	ok, err := idx.Delete(ctx, "adder")
	if err != nil || !ok {
		t.Errorf("Delete(adder) = %v, %v", ok, err)
	}
	ok, err = idx.Delete(ctx, "adder")
	if err != nil || ok {
		t.Errorf("second Delete(adder) = %v, %v", ok, err)
	}
}

func TestMemoryIndex(t *testing.T) {
	exerciseIndex(t, NewMemoryIndex())
}

func TestSQLiteIndex_InMemory(t *testing.T) {
	idx, err := OpenSQLite(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	defer idx.Close()
	if idx.Dialect() != DialectSQLite {
		t.Errorf("Dialect() = %q", idx.Dialect())
	}
	exerciseIndex(t, idx)
}

func TestSQLiteIndex_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "index.db")

	idx, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	e := Entry{Name: "adder", Type: exptype.Electromagnetism, Key: "k", Format: archive.FormatSav}
	if err := idx.Upsert(ctx, e); err != nil {
		t.Fatal(err)
	}
	idx.Close()

	idx, err = OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer idx.Close()
	got, err := idx.Lookup(ctx, "adder")
	if err != nil || got == nil {
		t.Fatalf("Lookup() after reopen = %v, %v", got, err)
	}
	if got.Type != exptype.Electromagnetism {
		t.Errorf("Type = %v, want %v", got.Type, exptype.Electromagnetism)
	}
}

func TestPostgresIndex(t *testing.T) {
	dsn := os.Getenv("LABKIT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("LABKIT_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	idx, err := OpenPostgres(ctx, dsn)
	if err != nil {
		t.Fatalf("OpenPostgres() error = %v", err)
	}
	defer idx.Close()
	for _, name := range []string{"adder", "orbit"} {
		_, _ = idx.Delete(ctx, name)
	}
	exerciseIndex(t, idx)
}

func TestOpenPostgres_RequiresDSN(t *testing.T) {
	if _, err := OpenPostgres(context.Background(), ""); err == nil {
		t.Error("OpenPostgres(\"\") succeeded")
	}
}

func TestRebind(t *testing.T) {
	pg := &SQLIndex{dialect: DialectPostgres}
	if got := pg.rebind("a = ? AND b = ?"); got != "a = $1 AND b = $2" {
		t.Errorf("rebind(postgres) = %q", got)
	}
	lite := &SQLIndex{dialect: DialectSQLite}
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Errorf("rebind(sqlite) = %q", got)
	}
}

func TestLibrary_OverSQLiteIndex(t *testing.T) {
	ctx := context.Background()
	idx, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatal(err)
	}
	blobs, err := blob.NewFilesystem(filepath.Join(t.TempDir(), "blobs"))
	if err != nil {
		t.Fatal(err)
	}
	lib := New(idx, blobs, Options{Now: fakeClock()})
	defer lib.Close()

	if _, err := lib.Save(ctx, testDocument("adder")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	doc, entry, err := lib.Load(ctx, "adder")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if doc.Name != "adder" || entry.Elements != 2 {
		t.Errorf("Load() = %+v, %+v", doc, entry)
	}
}
