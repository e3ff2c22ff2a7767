package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// exerciseStore runs the Store contract against any driver.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	info, err := s.Put(ctx, "runs/r1/fig.png", bytes.NewReader([]byte("hello")), PutOptions{ContentType: "image/png", Metadata: map[string]string{"section": "expr"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "runs/r1/fig.png" || info.Size != 5 {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := s.Put(ctx, "runs/r1/fig.png", bytes.NewReader([]byte("x")), PutOptions{}); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if _, err := s.Put(ctx, "runs/r1/index.html", strings.NewReader("<html/>"), PutOptions{ContentType: "text/html"}); err != nil {
		t.Fatalf("put second: %v", err)
	}
	if _, err := s.Put(ctx, "other/x", strings.NewReader("x"), PutOptions{}); err != nil {
		t.Fatalf("put third: %v", err)
	}

	h, err := s.Head(ctx, "runs/r1/fig.png")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if h.ContentType != "image/png" {
		t.Fatalf("content type lost: %+v", h)
	}
	b, err := ReadAll(ctx, s, "runs/r1/fig.png")
	if err != nil || string(b) != "hello" {
		t.Fatalf("read all: %q %v", b, err)
	}
	if _, _, err := s.Get(ctx, "runs/r1/missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	list, err := s.List(ctx, "runs/r1/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Key != "runs/r1/fig.png" || list[1].Key != "runs/r1/index.html" {
		t.Fatalf("unexpected list %+v", list)
	}

	ok, err := s.Delete(ctx, "runs/r1/fig.png")
	if err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	ok, err = s.Delete(ctx, "runs/r1/fig.png")
	if err != nil || ok {
		t.Fatalf("second delete should report false: %v %v", ok, err)
	}
}

func TestFilesystemStore(t *testing.T) {
	fs, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("NewFilesystem: %v", err)
	}
	exerciseStore(t, fs)
	url, err := fs.PresignURL(context.Background(), "runs/r1/index.html", SignedURLOptions{})
	if err != nil || !strings.HasPrefix(url, "file://") {
		t.Fatalf("presign: %v %s", err, url)
	}
	if _, err := fs.PresignURL(context.Background(), "x", SignedURLOptions{Method: "PUT"}); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestFilesystemReadsFilesWithoutSidecar(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "depmap"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "depmap", "Model.csv"), []byte("ModelID\nACH-1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	fs, err := NewFilesystem(root)
	if err != nil {
		t.Fatal(err)
	}
	info, rc, err := fs.Get(context.Background(), "depmap/Model.csv")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(b) != "ModelID\nACH-1\n" || info.Size != int64(len(b)) {
		t.Fatalf("unexpected %q %+v", b, info)
	}
	list, err := fs.List(context.Background(), "depmap/")
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %v %+v", err, list)
	}
}

func TestFilesystemPathTraversal(t *testing.T) {
	fs, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"../escape.txt", "/abs.txt", " "} {
		if _, err := fs.Put(context.Background(), key, strings.NewReader("x"), PutOptions{}); err == nil {
			t.Fatalf("expected error for key %q", key)
		}
	}
}

func TestMemoryStore(t *testing.T) {
	m := NewMemory()
	exerciseStore(t, m)
	if _, err := m.PresignURL(context.Background(), "x", SignedURLOptions{}); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestMockS3Store(t *testing.T) {
	s := NewMockS3(1)
	exerciseStore(t, s)
	url, err := s.PresignURL(context.Background(), "runs/r1/index.html", SignedURLOptions{})
	if err != nil || url == "" {
		t.Fatalf("presign: %v %s", err, url)
	}
}

func TestDecodeChunked(t *testing.T) {
	got, ok := decodeChunked([]byte("5;chunk-signature=abc\r\nhello\r\n2\r\n\r\n\r\n0\r\nx-amz-checksum-crc32:AAAA\r\n\r\n"))
	if !ok || string(got) != "hello\r\n" {
		t.Fatalf("decode: %q %v", got, ok)
	}
	if _, ok := decodeChunked([]byte("plain body")); ok {
		t.Fatalf("plain body must not decode")
	}
}

func TestOpenAndEnv(t *testing.T) {
	env := map[string]string{
		"OMICSREPORT_ARTIFACT_DRIVER": "MEMORY",
		"OMICSREPORT_DATA_ROOT":       "/srv/depmap",
		"OMICSREPORT_S3_BUCKET":       "omics",
		"OMICSREPORT_S3_PATH_STYLE":   "true",
	}
	getenv := func(k string) string { return env[k] }

	var art Config
	art.ApplyEnv("artifact", getenv)
	if art.Driver != DriverMemory || art.S3.Bucket != "omics" || !art.S3.PathStyle {
		t.Fatalf("unexpected artifact config %+v", art)
	}
	s, err := Open(context.Background(), art)
	if err != nil || s.Driver() != DriverMemory {
		t.Fatalf("open memory: %v", err)
	}

	var data Config
	data.ApplyEnv("data", getenv)
	if data.Driver != "" || data.Root != "/srv/depmap" {
		t.Fatalf("unexpected data config %+v", data)
	}

	if err := (Config{Driver: DriverS3}).Validate(); err == nil {
		t.Fatalf("s3 without bucket must fail validation")
	}
	if err := (Config{Driver: "ftp"}).Validate(); err == nil {
		t.Fatalf("unknown driver must fail validation")
	}
	if _, err := Open(context.Background(), Config{Driver: "ftp"}); err == nil {
		t.Fatalf("unknown driver must fail to open")
	}
	fsStore, err := Open(context.Background(), Config{Root: t.TempDir()})
	if err != nil || fsStore.Driver() != DriverFilesystem {
		t.Fatalf("open fs: %v", err)
	}
}
