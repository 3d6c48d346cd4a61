package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// PutParams describes one upload.
type PutParams struct {
	Folder      string
	CaseID      string
	Filename    string
	ContentType string
	Body        []byte
}

// Stored is the durable location and content hash of an upload.
type Stored struct {
	URL    string
	SHA256 string
}

// Store persists award documents. A finalization aborts if the store fails:
// a binding award must always point at a retrievable document.
type Store interface {
	Put(ctx context.Context, params PutParams) (Stored, error)
}

// FSStore writes documents under a base directory and addresses them with a
// base URL. Development and single-node deployments; production fronts a
// blob service with the same interface.
type FSStore struct {
	baseDir string
	baseURL string
}

func NewFSStore(baseDir, baseURL string) *FSStore {
	return &FSStore{baseDir: baseDir, baseURL: strings.TrimRight(baseURL, "/")}
}

func (s *FSStore) Put(_ context.Context, params PutParams) (Stored, error) {
	if params.Folder == "" || params.CaseID == "" || params.Filename == "" {
		return Stored{}, fmt.Errorf("storage: folder, case id and filename required")
	}

	rel := path.Join(params.Folder, params.CaseID, params.Filename)
	full := filepath.Join(s.baseDir, filepath.FromSlash(rel))

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return Stored{}, fmt.Errorf("storage: create directory: %w", err)
	}
	if err := os.WriteFile(full, params.Body, 0o644); err != nil {
		return Stored{}, fmt.Errorf("storage: write document: %w", err)
	}

	sum := sha256.Sum256(params.Body)
	return Stored{
		URL:    s.baseURL + "/" + rel,
		SHA256: hex.EncodeToString(sum[:]),
	}, nil
}
