package knowledge

// indexer.go ingests local reference documents (operations manuals,
// carrier policies, rate sheets) into the index. Directories are walked
// with .gitignore awareness and files are read through os.Root so a
// symlink cannot escape the indexed tree.

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	ignore "github.com/sabhiram/go-gitignore"
)

// IndexerStore is the write surface Indexer needs. *Store satisfies it.
type IndexerStore interface {
	AddSource(ctx context.Context, sourceID, sourceType, content string, metadata map[string]string) (int, error)
	DeleteSource(ctx context.Context, sourceID string) (int64, error)
}

// defaultExtensions are the document types indexed by default.
var defaultExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".html": true,
	".json": true,
	".yaml": true,
	".yml":  true,
	".csv":  true,
}

// MaxFileSize caps individual files. Larger files are almost never
// prose documents and would flood the index with chunks.
const MaxFileSize = 1 << 20 // 1 MiB

// IndexResult summarizes one ingestion run.
type IndexResult struct {
	FilesAdded   int
	FilesSkipped int
	FilesFailed  int
	ChunksAdded  int
	TotalSize    int64
	Duration     time.Duration
}

// Indexer ingests files and directories into an IndexerStore.
type Indexer struct {
	store      IndexerStore
	extensions map[string]bool
}

// NewIndexer creates an Indexer. extensions overrides the default
// file-type allowlist when non-empty.
func NewIndexer(store IndexerStore, extensions []string) *Indexer {
	extMap := make(map[string]bool, len(defaultExtensions))
	if len(extensions) > 0 {
		for _, ext := range extensions {
			extMap[strings.ToLower(ext)] = true
		}
	} else {
		for k, v := range defaultExtensions {
			extMap[k] = v
		}
	}
	return &Indexer{store: store, extensions: extMap}
}

// AddFile indexes a single file. The source ID is derived from the
// absolute path, so re-indexing the same file replaces its chunks.
func (idx *Indexer) AddFile(ctx context.Context, filePath string) (int, error) {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return 0, fmt.Errorf("resolving %q: %w", filePath, err)
	}

	root, err := os.OpenRoot(filepath.Dir(absPath))
	if err != nil {
		return 0, fmt.Errorf("opening parent of %q: %w", absPath, err)
	}
	defer func() { _ = root.Close() }()

	fileName := filepath.Base(absPath)
	info, err := root.Stat(fileName)
	if err != nil {
		return 0, fmt.Errorf("stat %q: %w", absPath, err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("%q is a directory, use AddDirectory", absPath)
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	if !idx.extensions[ext] {
		return 0, fmt.Errorf("unsupported file type %q", ext)
	}
	if info.Size() > MaxFileSize {
		return 0, fmt.Errorf("%q is %d bytes, limit is %d", absPath, info.Size(), MaxFileSize)
	}

	content, err := root.ReadFile(fileName)
	if err != nil {
		return 0, fmt.Errorf("reading %q: %w", absPath, err)
	}

	return idx.store.AddSource(ctx, SourceID(absPath), SourceTypeManual, string(content), map[string]string{
		"file_path":  absPath,
		"file_name":  fileName,
		"file_ext":   ext,
		"indexed_at": time.Now().Format(time.RFC3339),
	})
}

// AddDirectory recursively indexes every supported file under dirPath,
// honoring a .gitignore at the directory root. Per-file failures are
// counted, not fatal.
func (idx *Indexer) AddDirectory(ctx context.Context, dirPath string) (*IndexResult, error) {
	start := time.Now()
	result := &IndexResult{}

	absDir, err := filepath.Abs(dirPath)
	if err != nil {
		return nil, fmt.Errorf("resolving %q: %w", dirPath, err)
	}

	root, err := os.OpenRoot(absDir)
	if err != nil {
		return nil, fmt.Errorf("opening %q: %w", absDir, err)
	}
	defer func() { _ = root.Close() }()

	var gitIgnore *ignore.GitIgnore
	if _, err := os.Stat(filepath.Join(absDir, ".gitignore")); err == nil {
		// A malformed .gitignore disables filtering rather than
		// aborting the run.
		gitIgnore, _ = ignore.CompileIgnoreFile(filepath.Join(absDir, ".gitignore"))
	}

	err = filepath.Walk(absDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			result.FilesFailed++
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		relPath, err := filepath.Rel(absDir, path)
		if err != nil {
			result.FilesFailed++
			return nil
		}

		if gitIgnore != nil && relPath != "." && gitIgnore.MatchesPath(relPath) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			result.FilesSkipped++
			return nil
		}
		if info.IsDir() {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		if !idx.extensions[ext] || info.Size() > MaxFileSize {
			result.FilesSkipped++
			return nil
		}

		content, err := root.ReadFile(relPath)
		if err != nil {
			result.FilesFailed++
			return nil
		}

		chunks, err := idx.store.AddSource(ctx, SourceID(path), SourceTypeManual, string(content), map[string]string{
			"file_path":  path,
			"file_name":  filepath.Base(path),
			"file_ext":   ext,
			"indexed_at": time.Now().Format(time.RFC3339),
		})
		if err != nil {
			result.FilesFailed++
			return nil
		}

		result.FilesAdded++
		result.ChunksAdded += chunks
		result.TotalSize += info.Size()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %q: %w", absDir, err)
	}

	result.Duration = time.Since(start)
	return result, nil
}

// RemoveFile deletes all chunks previously indexed from filePath.
func (idx *Indexer) RemoveFile(ctx context.Context, filePath string) (int64, error) {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return 0, fmt.Errorf("resolving %q: %w", filePath, err)
	}
	return idx.store.DeleteSource(ctx, SourceID(absPath))
}

// SourceID derives a stable source identifier from an absolute path.
func SourceID(absPath string) string {
	sum := sha256.Sum256([]byte(absPath))
	return "file:" + hex.EncodeToString(sum[:8])
}
