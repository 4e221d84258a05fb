package artifact

import (
	"archive/tar"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"

	"beaconci/internal/pipeline"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"resttest*/**", "resttest1/data/output.json", true},
		{"resttest*/**", "resttest1/output.json", true},
		{"resttest*/**", "other/output.json", false},
		{"local-testnet-*/logs/**", "local-testnet-minimal/logs/node0.log", true},
		{"local-testnet-*/logs/**", "local-testnet-minimal/data/db", false},
		{"**/beacon_node*", "local-testnet-minimal/logs/beacon_node.exe", true},
		{"**/beacon_node*", "beacon_node", true},
		{"**/beacon_node*", "logs/validator.log", false},
		{"*.log", "run.log", true},
		{"*.log", "logs/run.log", false},
		{"**", "anything/at/all", true},
	}

	for _, tt := range tests {
		if got := matchPattern(tt.pattern, tt.path); got != tt.want {
			t.Errorf("matchPattern(%q, %q) = %v, want %v", tt.pattern, tt.path, got, tt.want)
		}
	}
}

func TestCollect_GlobsAndExclusions(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "local-testnet-minimal/logs/node0.log", "log")
	writeFile(t, root, "local-testnet-minimal/logs/beacon_node_bin", "bin")
	writeFile(t, root, "local-testnet-mainnet/logs/node1.log", "log")
	writeFile(t, root, "src/main.nim", "code")

	spec := pipeline.ArchiveSpec{
		Name:    "testnet-logs.tar.gz",
		Globs:   []string{"local-testnet-*/logs/**"},
		Exclude: []string{"**/beacon_node*"},
	}

	files, err := Collect(root, spec)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	want := []string{
		"local-testnet-mainnet/logs/node1.log",
		"local-testnet-minimal/logs/node0.log",
	}
	if len(files) != len(want) {
		t.Fatalf("got %v, want %v", files, want)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("got files[%d]=%q, want %q", i, files[i], want[i])
		}
	}
}

func TestWriteArchive_RoundTrip(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "resttest1/data.json", `{"ok":true}`)
	writeFile(t, root, "resttest2/data.json", `{"ok":false}`)

	dest := filepath.Join(t.TempDir(), "resttest.tar.gz")
	size, err := WriteArchive(root, pipeline.ArchiveSpec{
		Name:  "resttest.tar.gz",
		Globs: []string{"resttest*/**"},
	}, dest)
	if err != nil {
		t.Fatalf("WriteArchive failed: %v", err)
	}
	if size <= 0 {
		t.Errorf("got size %d, want > 0", size)
	}

	f, err := os.Open(dest)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("archive is not gzip: %v", err)
	}
	tr := tar.NewReader(gz)

	var names []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("tar read failed: %v", err)
		}
		names = append(names, hdr.Name)
	}

	if len(names) != 2 {
		t.Fatalf("got %d entries, want 2: %v", len(names), names)
	}
	if names[0] != "resttest1/data.json" || names[1] != "resttest2/data.json" {
		t.Errorf("unexpected entries: %v", names)
	}
}

func TestWriteArchive_NoMatches(t *testing.T) {
	root := t.TempDir()
	dest := filepath.Join(t.TempDir(), "empty.tar.gz")

	_, err := WriteArchive(root, pipeline.ArchiveSpec{
		Name:  "empty.tar.gz",
		Globs: []string{"missing/**"},
	}, dest)
	if !errors.Is(err, ErrNoFiles) {
		t.Errorf("got %v, want ErrNoFiles", err)
	}
	if _, statErr := os.Stat(dest); statErr == nil {
		t.Error("archive file should not be created when nothing matched")
	}
}
