package provider

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"
)

func TestLocalSource_Stat(t *testing.T) {
	tempBase := t.TempDir()
	p := NewLocalSource(tempBase)
	ctx := context.Background()

	testFile := "test-stat.txt"
	testContent := []byte("hello stat")
	if err := os.WriteFile(filepath.Join(tempBase, testFile), testContent, 0644); err != nil {
		t.Fatal(err)
	}

	info, err := p.Stat(ctx, testFile)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Name() != testFile {
		t.Errorf("expected %q, got %q", testFile, info.Name())
	}
	if info.Size() != int64(len(testContent)) {
		t.Errorf("expected size %d, got %d", len(testContent), info.Size())
	}
	if info.IsDir() {
		t.Errorf("expected isDir to be false")
	}

	if _, err := p.Stat(ctx, "missing"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestLocalSource_List(t *testing.T) {
	tempBase := t.TempDir()

	testDir := "subdir"
	if err := os.MkdirAll(filepath.Join(tempBase, testDir, "nested"), 0755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"file1.txt", "file2.txt"} {
		if err := os.WriteFile(filepath.Join(tempBase, testDir, name), []byte(name), 0644); err != nil {
			t.Fatal(err)
		}
	}

	p := NewLocalSource(tempBase)
	infos, err := p.List(context.Background(), testDir)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(infos) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(infos))
	}

	seen := map[string]bool{}
	for _, info := range infos {
		seen[info.Name()] = info.IsDir()
	}
	if isDir, ok := seen["nested"]; !ok || !isDir {
		t.Errorf("expected nested directory in listing")
	}
	if _, ok := seen["file1.txt"]; !ok {
		t.Errorf("expected file1.txt in listing")
	}
}

func TestLocalSource_ListSkipsNonRegularEntries(t *testing.T) {
	tempBase := t.TempDir()

	if err := os.WriteFile(filepath.Join(tempBase, "file.txt"), []byte("payload"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(tempBase, "dir"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("file.txt", filepath.Join(tempBase, "link-to-file")); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("dir", filepath.Join(tempBase, "link-to-dir")); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("missing", filepath.Join(tempBase, "dangling")); err != nil {
		t.Fatal(err)
	}
	if err := syscall.Mkfifo(filepath.Join(tempBase, "fifo"), 0644); err != nil {
		t.Fatalf("mkfifo: %v", err)
	}

	infos, err := NewLocalSource(tempBase).List(context.Background(), ".")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	seen := map[string]FileInfo{}
	for _, info := range infos {
		seen[info.Name()] = info
	}
	if len(seen) != 3 {
		t.Fatalf("expected file.txt, dir and link-to-file, got %v", seen)
	}
	if _, ok := seen["dir"]; !ok {
		t.Errorf("expected dir in listing")
	}
	link, ok := seen["link-to-file"]
	if !ok {
		t.Fatalf("expected link-to-file in listing")
	}
	if link.IsDir() || link.Size() != int64(len("payload")) {
		t.Errorf("expected the symlink to resolve to its target, got size %d", link.Size())
	}
	for _, name := range []string{"link-to-dir", "dangling", "fifo"} {
		if _, ok := seen[name]; ok {
			t.Errorf("expected %s to be skipped", name)
		}
	}
}

func TestLocalSource_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewLocalSource(t.TempDir()).List(ctx, "."); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestLocalStore_Lifecycle(t *testing.T) {
	root := t.TempDir()
	srcDir := t.TempDir()
	ctx := context.Background()

	s := NewLocalStore(root, 16)

	c, err := s.CreateContainer(ctx, "bucket-1")
	if err != nil {
		t.Fatalf("CreateContainer failed: %v", err)
	}
	// creation is idempotent
	if _, err := s.CreateContainer(ctx, "bucket-1"); err != nil {
		t.Fatalf("second CreateContainer failed: %v", err)
	}

	content := []byte("Hello, blobpush! This is a test file for the local store.")
	srcPath := filepath.Join(srcDir, "in.txt")
	if err := os.WriteFile(srcPath, content, 0600); err != nil {
		t.Fatal(err)
	}
	mtime := time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := os.Chtimes(srcPath, mtime, mtime); err != nil {
		t.Fatal(err)
	}

	opts := UploadOptions{VerifyIntegrity: true, PreserveMetadata: true}
	for _, key := range []string{"a.txt", "nested/b.txt"} {
		if err := s.Upload(ctx, s.ObjectRef(c, key), srcPath, opts); err != nil {
			t.Fatalf("Upload %s failed: %v", key, err)
		}
	}

	got, err := os.ReadFile(filepath.Join(root, "bucket-1", "nested", "b.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: %q", got)
	}

	st, err := os.Stat(filepath.Join(root, "bucket-1", "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if !st.ModTime().Equal(mtime) {
		t.Errorf("expected mtime %v, got %v", mtime, st.ModTime())
	}
	if st.Mode().Perm() != 0600 {
		t.Errorf("expected mode 0600, got %v", st.Mode().Perm())
	}

	n, err := s.CountObjects(ctx, c)
	if err != nil {
		t.Fatalf("CountObjects failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 objects, got %d", n)
	}

	if err := s.DeleteContainer(ctx, c); err != nil {
		t.Fatalf("DeleteContainer failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "bucket-1")); !os.IsNotExist(err) {
		t.Errorf("expected container directory to be gone, got %v", err)
	}
}

func TestLocalStore_FailedUploadLeavesNoObject(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()
	s := NewLocalStore(root, 0)

	c, err := s.CreateContainer(ctx, "bucket")
	if err != nil {
		t.Fatal(err)
	}

	err = s.Upload(ctx, s.ObjectRef(c, "ghost.txt"), filepath.Join(root, "does-not-exist"), UploadOptions{})
	if err == nil {
		t.Fatal("expected upload of a missing file to fail")
	}

	n, err := s.CountObjects(ctx, c)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("expected 0 objects, got %d", n)
	}
}

func TestLocalStore_RejectsEscapingNames(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore(t.TempDir(), 0)

	if _, err := s.CreateContainer(ctx, "../outside"); err == nil {
		t.Error("expected container name with .. to be rejected")
	}

	c, err := s.CreateContainer(ctx, "ok")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Upload(ctx, s.ObjectRef(c, "../../etc/passwd"), "/dev/null", UploadOptions{}); err == nil {
		t.Error("expected object key with .. to be rejected")
	}
}
