package dataset

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDiscoverBasic(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "train.dat"), "")
	mustWrite(t, filepath.Join(dir, "nested", "extra.SVM"), "")
	mustWrite(t, filepath.Join(dir, "model.bin"), "")

	files, err := Discover(dir)
	if err != nil {
		t.Fatalf("Discover error: %v", err)
	}
	want := []string{
		filepath.Join(dir, "nested", "extra.SVM"),
		filepath.Join(dir, "train.dat"),
	}
	if len(files) != len(want) {
		t.Fatalf("expected %d files, got %d", len(want), len(files))
	}
	for i, f := range want {
		if files[i] != f {
			t.Fatalf("files[%d]=%s want %s", i, files[i], f)
		}
	}
}

func TestDiscoverGrowth(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "a.libsvm"), "")

	first, err := Discover(dir)
	if err != nil {
		t.Fatalf("first discover error: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("expected 1 file, got %d", len(first))
	}

	mustWrite(t, filepath.Join(dir, "b.txt"), "")

	second, err := Discover(dir)
	if err != nil {
		t.Fatalf("second discover error: %v", err)
	}
	if len(second) != 2 {
		t.Fatalf("expected 2 files, got %d", len(second))
	}
}

func TestExpand(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "set", "b.dat"), "")
	mustWrite(t, filepath.Join(dir, "set", "a.dat"), "")
	single := filepath.Join(dir, "single.csv")
	mustWrite(t, single, "")

	got, err := Expand([]string{single, filepath.Join(dir, "set")})
	if err != nil {
		t.Fatalf("Expand error: %v", err)
	}
	want := []string{single, filepath.Join(dir, "set", "a.dat"), filepath.Join(dir, "set", "b.dat")}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got[%d]=%s want %s", i, got[i], want[i])
		}
	}

	empty := filepath.Join(dir, "empty")
	if err := os.MkdirAll(empty, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if _, err := Expand([]string{empty}); err == nil {
		t.Fatal("expected error for directory without data files")
	}
	if _, err := Expand([]string{filepath.Join(dir, "missing.dat")}); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
