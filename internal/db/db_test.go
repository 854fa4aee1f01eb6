package db

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOpenCreatesWorkspace(t *testing.T) {
	dir := t.TempDir()
	conn, err := Open(Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()
	if err := conn.Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ".cwkhub", "cwkhub.db")); err != nil {
		t.Fatalf("expected db file: %v", err)
	}
	if Path(dir) != filepath.Join(dir, ".cwkhub", "cwkhub.db") {
		t.Fatalf("unexpected path %s", Path(dir))
	}
}
