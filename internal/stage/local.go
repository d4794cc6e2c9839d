package stage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// LocalStage persists staged objects on disk to mimic the object store for
// tests and offline development.
type LocalStage struct {
	root string
}

// NewLocalStage creates a stage rooted at dir.
func NewLocalStage(root string) *LocalStage {
	if root == "" {
		root = filepath.Join(os.TempDir(), "ingest-stage")
	}
	_ = os.MkdirAll(root, 0o755)
	return &LocalStage{root: root}
}

func (s *LocalStage) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return os.MkdirAll(s.root, 0o755)
}

func (s *LocalStage) EnsureBucket(ctx context.Context) error {
	return s.Ping(ctx)
}

func (s *LocalStage) Upload(ctx context.Context, blob string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if blob == "" {
		return wrapError(CodeStageWriteFailed, false, fmt.Errorf("blob name is required"))
	}
	fullPath := s.blobPath(blob)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return wrapError(CodePermissionDenied, false, err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return wrapError(CodeStageWriteFailed, true, err)
	}
	return nil
}

func (s *LocalStage) UploadStream(ctx context.Context, blob string, r io.Reader, _ int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if blob == "" {
		return wrapError(CodeStageWriteFailed, false, fmt.Errorf("blob name is required"))
	}
	fullPath := s.blobPath(blob)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return wrapError(CodePermissionDenied, false, err)
	}
	f, err := os.Create(fullPath)
	if err != nil {
		return wrapError(CodeStageWriteFailed, true, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(fullPath)
		return wrapError(CodeStageWriteFailed, true, err)
	}
	return f.Close()
}

func (s *LocalStage) Download(ctx context.Context, blob string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.blobPath(blob))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, wrapError(CodeObjectNotFound, false, err)
		}
		return nil, wrapError(CodeStageWriteFailed, true, err)
	}
	return data, nil
}

func (s *LocalStage) Open(ctx context.Context, blob string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.blobPath(blob))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, wrapError(CodeObjectNotFound, false, err)
		}
		return nil, wrapError(CodeStageWriteFailed, true, err)
	}
	return f, nil
}

func (s *LocalStage) Delete(ctx context.Context, blob string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	fullPath := s.blobPath(blob)
	if _, err := os.Stat(fullPath); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, wrapError(CodeStageWriteFailed, true, err)
	}
	if err := os.Remove(fullPath); err != nil {
		return false, wrapError(CodeStageWriteFailed, true, err)
	}
	return true, nil
}

func (s *LocalStage) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var keys []string
	err := filepath.WalkDir(s.root, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(s.root, path)
		if relErr != nil {
			return relErr
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, wrapError(CodeStageWriteFailed, true, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// SignedURL returns a file URL; the local stage has no auth to pre-sign.
func (s *LocalStage) SignedURL(ctx context.Context, blob, method string, _ time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	switch strings.ToUpper(method) {
	case "GET", "PUT", "":
	default:
		return "", wrapError(CodePermissionDenied, false, fmt.Errorf("unsupported method %q", method))
	}
	return "file://" + s.blobPath(blob), nil
}

func (s *LocalStage) blobPath(blob string) string {
	return filepath.Join(s.root, filepath.FromSlash(blob))
}
