package fileid

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDigest(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.jpg")
	b := filepath.Join(dir, "b.jpg")
	c := filepath.Join(dir, "c.jpg")
	for path, content := range map[string]string{a: "same bytes", b: "same bytes", c: "other bytes"} {
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}
	}

	da, err := Digest(a)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(da, prefix) || len(da) != len(prefix)+64 {
		t.Errorf("unexpected digest format: %q", da)
	}
	db, _ := Digest(b)
	if da != db {
		t.Errorf("same content should give same digest: %q vs %q", da, db)
	}
	dc, _ := Digest(c)
	if da == dc {
		t.Errorf("different content should give different digests: %q", da)
	}
}

func TestDigest_missingFile(t *testing.T) {
	if _, err := Digest(filepath.Join(t.TempDir(), "missing.jpg")); !os.IsNotExist(err) {
		t.Errorf("got %v, want not-exist error", err)
	}
}

func TestPathKey_normalized(t *testing.T) {
	// Clean path: /foo/bar and /foo/bar/ and /foo/./bar should match
	id1 := PathKey("/foo/bar")
	id2 := PathKey("/foo/bar/")
	id3 := PathKey("/foo/./bar")
	if id1 != id2 || id1 != id3 {
		t.Errorf("paths should normalize: %q, %q, %q", id1, id2, id3)
	}
}

func TestPathKey_relativeBecomesAbsolute(t *testing.T) {
	if key := PathKey("a/b.jpg"); !filepath.IsAbs(key) {
		t.Errorf("PathKey(%q) = %q, want absolute", "a/b.jpg", key)
	}
}
