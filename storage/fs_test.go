package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
)

func TestFSStore_Put(t *testing.T) {
	dir := t.TempDir()
	store := NewFSStore(dir, "http://localhost:8080/documents/")

	body := []byte("FINAL ARBITRATION AWARD\n")
	stored, err := store.Put(context.Background(), PutParams{
		Folder:      "awards",
		CaseID:      "case-1",
		Filename:    "AWD-20260301-00001.txt",
		ContentType: "text/plain",
		Body:        body,
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	want := "http://localhost:8080/documents/awards/case-1/AWD-20260301-00001.txt"
	if stored.URL != want {
		t.Errorf("unexpected URL %q, want %q", stored.URL, want)
	}

	sum := sha256.Sum256(body)
	if stored.SHA256 != hex.EncodeToString(sum[:]) {
		t.Errorf("unexpected hash %q", stored.SHA256)
	}

	onDisk, err := os.ReadFile(filepath.Join(dir, "awards", "case-1", "AWD-20260301-00001.txt"))
	if err != nil {
		t.Fatalf("read stored file: %v", err)
	}
	if string(onDisk) != string(body) {
		t.Errorf("stored file differs from input")
	}
}

func TestFSStore_RequiresPathParts(t *testing.T) {
	store := NewFSStore(t.TempDir(), "http://localhost:8080")

	cases := []PutParams{
		{CaseID: "case-1", Filename: "a.txt"},
		{Folder: "awards", Filename: "a.txt"},
		{Folder: "awards", CaseID: "case-1"},
	}
	for _, params := range cases {
		if _, err := store.Put(context.Background(), params); err == nil {
			t.Errorf("expected error for params %+v", params)
		}
	}
}
