package tracker

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func waitTouched(w *Watcher, path string) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		w.mu.Lock()
		ok := w.touched[path]
		w.mu.Unlock()
		if ok {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func TestWatcherRecordsWrites(t *testing.T) {
	dir := t.TempDir()
	old := time.Now().Add(-time.Hour)
	untouched := filepath.Join(dir, "s8a_con_ext.sdf")
	writeFile(t, untouched, old)

	w, err := Watch(dir, patterns)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	produced := filepath.Join(dir, "s8b_con_res_cln.sdf")
	if err := os.WriteFile(produced, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if !waitTouched(w, produced) {
		t.Fatal("watcher did not observe the produced file")
	}

	got, err := w.Stop()
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if len(got) != 1 || got[0] != produced {
		t.Errorf("Stop() = %v, want [%s]", got, produced)
	}
}
