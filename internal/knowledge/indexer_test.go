package knowledge

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// mockIndexerStore records AddSource calls without touching a database.
type mockIndexerStore struct {
	sources map[string]string // sourceID -> content
	deleted []string
}

func newMockIndexerStore() *mockIndexerStore {
	return &mockIndexerStore{sources: make(map[string]string)}
}

func (m *mockIndexerStore) AddSource(_ context.Context, sourceID, _ string, content string, _ map[string]string) (int, error) {
	m.sources[sourceID] = content
	return len(SplitText(content, DefaultChunkSize, DefaultChunkOverlap)), nil
}

func (m *mockIndexerStore) DeleteSource(_ context.Context, sourceID string) (int64, error) {
	m.deleted = append(m.deleted, sourceID)
	return 1, nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestAddFile_IndexesSupportedFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "manual.md", "Pallets are scanned at intake.")

	store := newMockIndexerStore()
	idx := NewIndexer(store, nil)

	n, err := idx.AddFile(context.Background(), path)
	if err != nil {
		t.Fatalf("AddFile() error = %v", err)
	}
	if n != 1 {
		t.Errorf("chunks = %d, want 1", n)
	}
	if len(store.sources) != 1 {
		t.Fatalf("sources indexed = %d, want 1", len(store.sources))
	}
}

func TestAddFile_RejectsUnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "archive.zip", "binary")

	idx := NewIndexer(newMockIndexerStore(), nil)
	if _, err := idx.AddFile(context.Background(), path); err == nil {
		t.Error("AddFile(.zip) = nil error, want unsupported type")
	}
}

func TestAddFile_RejectsDirectory(t *testing.T) {
	dir := t.TempDir()

	idx := NewIndexer(newMockIndexerStore(), nil)
	if _, err := idx.AddFile(context.Background(), dir); err == nil {
		t.Error("AddFile(directory) = nil error, want error")
	}
}

func TestAddFile_CustomExtensions(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "rates.tsv", "zone\trate")

	idx := NewIndexer(newMockIndexerStore(), []string{".tsv"})
	if _, err := idx.AddFile(context.Background(), path); err != nil {
		t.Errorf("AddFile(.tsv with custom allowlist) error = %v", err)
	}

	mdPath := writeFile(t, dir, "manual.md", "text")
	if _, err := idx.AddFile(context.Background(), mdPath); err == nil {
		t.Error("AddFile(.md) = nil error, custom allowlist should exclude defaults")
	}
}

func TestAddDirectory_WalksAndFilters(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "manual.md", "Intake procedure.")
	writeFile(t, dir, "sub/policy.txt", "Returns policy.")
	writeFile(t, dir, "binary.bin", "skip me")

	store := newMockIndexerStore()
	idx := NewIndexer(store, nil)

	result, err := idx.AddDirectory(context.Background(), dir)
	if err != nil {
		t.Fatalf("AddDirectory() error = %v", err)
	}
	if result.FilesAdded != 2 {
		t.Errorf("FilesAdded = %d, want 2", result.FilesAdded)
	}
	if result.FilesSkipped != 1 {
		t.Errorf("FilesSkipped = %d, want 1", result.FilesSkipped)
	}
	if result.ChunksAdded < 2 {
		t.Errorf("ChunksAdded = %d, want >= 2", result.ChunksAdded)
	}
}

func TestAddDirectory_HonorsGitignore(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".gitignore", "drafts/\nnotes.md\n")
	writeFile(t, dir, "manual.md", "kept")
	writeFile(t, dir, "notes.md", "ignored file")
	writeFile(t, dir, "drafts/wip.md", "ignored tree")

	store := newMockIndexerStore()
	idx := NewIndexer(store, nil)

	result, err := idx.AddDirectory(context.Background(), dir)
	if err != nil {
		t.Fatalf("AddDirectory() error = %v", err)
	}
	if result.FilesAdded != 1 {
		t.Errorf("FilesAdded = %d, want 1 (gitignore should exclude the rest)", result.FilesAdded)
	}
	for _, content := range store.sources {
		if strings.Contains(content, "ignored") {
			t.Errorf("ignored content was indexed: %q", content)
		}
	}
}

func TestRemoveFile_DeletesBySourceID(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "manual.md", "content")

	store := newMockIndexerStore()
	idx := NewIndexer(store, nil)

	if _, err := idx.RemoveFile(context.Background(), path); err != nil {
		t.Fatalf("RemoveFile() error = %v", err)
	}
	absPath, _ := filepath.Abs(path)
	if len(store.deleted) != 1 || store.deleted[0] != SourceID(absPath) {
		t.Errorf("deleted = %v, want [%s]", store.deleted, SourceID(absPath))
	}
}

func TestSourceID_IsStable(t *testing.T) {
	if SourceID("/a/b.md") != SourceID("/a/b.md") {
		t.Error("SourceID is not deterministic")
	}
	if SourceID("/a/b.md") == SourceID("/a/c.md") {
		t.Error("SourceID collides for distinct paths")
	}
}
