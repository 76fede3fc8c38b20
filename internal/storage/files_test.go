package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func createTestStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return store
}

func TestNewLocalStore(t *testing.T) {
	t.Run("creates upload directory", func(t *testing.T) {
		uploadDir := filepath.Join(t.TempDir(), "uploads")

		if _, err := NewLocalStore(uploadDir); err != nil {
			t.Fatalf("Failed to create store: %v", err)
		}

		if _, err := os.Stat(uploadDir); os.IsNotExist(err) {
			t.Error("Expected upload directory to be created")
		}
	})

	t.Run("reloads index", func(t *testing.T) {
		dir := t.TempDir()
		store, err := NewLocalStore(dir)
		if err != nil {
			t.Fatalf("Failed to create store: %v", err)
		}
		info, err := store.Save("dam.jpg", "image/jpeg", "background", "alice", strings.NewReader("jpeg"))
		if err != nil {
			t.Fatalf("Failed to save file: %v", err)
		}

		reopened, err := NewLocalStore(dir)
		if err != nil {
			t.Fatalf("Failed to reopen store: %v", err)
		}
		got, err := reopened.Get(info.ID)
		if err != nil {
			t.Fatalf("Expected file after reopen: %v", err)
		}
		if got.Name != "dam.jpg" || got.Kind != "background" || got.ContentType != "image/jpeg" {
			t.Errorf("Unexpected metadata after reopen: %+v", got)
		}
	})
}

func TestLocalStore_Save(t *testing.T) {
	t.Run("saves file from reader", func(t *testing.T) {
		store := createTestStore(t)

		content := "fake png bytes"
		info, err := store.Save("snap.png", "image/png", "snapshot", "alice", strings.NewReader(content))
		if err != nil {
			t.Fatalf("Failed to save file: %v", err)
		}

		if info.ID == "" {
			t.Error("Expected ID to be set")
		}
		if info.Size != int64(len(content)) {
			t.Errorf("Expected size %d, got %d", len(content), info.Size)
		}

		data, err := os.ReadFile(filepath.Join(store.uploadDir, info.ID))
		if err != nil {
			t.Fatalf("Failed to read saved file: %v", err)
		}
		if string(data) != content {
			t.Errorf("Expected content '%s', got '%s'", content, string(data))
		}
	})
}

func TestLocalStore_List(t *testing.T) {
	store := createTestStore(t)

	ids := make([]string, 3)
	for i := range ids {
		info, err := store.Save("file.png", "image/png", "snapshot", "alice", strings.NewReader("x"))
		if err != nil {
			t.Fatalf("Failed to save file: %v", err)
		}
		ids[i] = info.ID
		time.Sleep(10 * time.Millisecond)
	}
	if _, err := store.Save("bg.jpg", "image/jpeg", "background", "alice", strings.NewReader("y")); err != nil {
		t.Fatalf("Failed to save file: %v", err)
	}

	snaps, _ := store.List("snapshot", 0)
	if len(snaps) != 3 {
		t.Fatalf("Expected 3 snapshots, got %d", len(snaps))
	}
	if snaps[0].ID != ids[2] {
		t.Error("Expected files to be sorted by time descending")
	}

	all, _ := store.List("", 2)
	if len(all) != 2 {
		t.Errorf("Expected limit to apply, got %d", len(all))
	}
}

func TestLocalStore_Delete(t *testing.T) {
	store := createTestStore(t)

	info, err := store.Save("test.png", "image/png", "snapshot", "alice", strings.NewReader("content"))
	if err != nil {
		t.Fatalf("Failed to save file: %v", err)
	}
	path, err := store.GetFilePath(info.ID)
	if err != nil {
		t.Fatalf("Failed to get path: %v", err)
	}

	if err := store.Delete(info.ID); err != nil {
		t.Fatalf("Failed to delete file: %v", err)
	}
	if _, err := store.Get(info.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Physical file should be deleted")
	}
	if err := store.Delete("non-existent-id"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
