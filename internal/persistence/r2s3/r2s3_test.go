package r2s3

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestClient_PutSignsRequest(t *testing.T) {
	var (
		gotPath, gotAuth, gotHash, gotDate string
		gotBody                            []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotHash = r.Header.Get("x-amz-content-sha256")
		gotDate = r.Header.Get("x-amz-date")
		gotBody, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	c, err := New(Config{Endpoint: srv.URL, Bucket: "farm-logs", AccessKeyID: "AK", SecretAccessKey: "SK"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }

	body := []byte("zstd bytes")
	if err := c.Put(context.Background(), "/runs/runs-2026-03-01-10.jsonl.zst", body); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if gotPath != "/farm-logs/runs/runs-2026-03-01-10.jsonl.zst" {
		t.Fatalf("path = %s", gotPath)
	}
	sum := sha256.Sum256(body)
	if gotHash != hex.EncodeToString(sum[:]) || string(gotBody) != string(body) {
		t.Fatalf("payload hash=%s body=%q", gotHash, gotBody)
	}
	if gotDate != "20260301T100000Z" {
		t.Fatalf("x-amz-date = %s", gotDate)
	}
	if !strings.HasPrefix(gotAuth, "AWS4-HMAC-SHA256 Credential=AK/20260301/auto/s3/aws4_request, SignedHeaders=host;x-amz-content-sha256;x-amz-date, Signature=") {
		t.Fatalf("authorization = %s", gotAuth)
	}
}

func TestClient_PutFileStreamsSegment(t *testing.T) {
	var (
		gotHash string
		gotLen  int64
		gotBody []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHash = r.Header.Get("x-amz-content-sha256")
		gotLen = r.ContentLength
		gotBody, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	c, err := New(Config{Endpoint: srv.URL, Bucket: "farm-logs", AccessKeyID: "AK", SecretAccessKey: "SK"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	dir := t.TempDir()
	body := []byte(strings.Repeat("segment line\n", 64))
	p := filepath.Join(dir, "runs-2026-03-01-10.jsonl.zst")
	if err := os.WriteFile(p, body, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := c.PutFile(context.Background(), "runs/runs-2026-03-01-10.jsonl.zst", p); err != nil {
		t.Fatalf("PutFile: %v", err)
	}
	sum := sha256.Sum256(body)
	if gotHash != hex.EncodeToString(sum[:]) {
		t.Fatalf("payload hash = %s", gotHash)
	}
	if gotLen != int64(len(body)) || string(gotBody) != string(body) {
		t.Fatalf("content-length=%d body len=%d want %d", gotLen, len(gotBody), len(body))
	}
	if err := c.PutFile(context.Background(), "runs/dir", dir); err == nil {
		t.Fatalf("expected error uploading a directory")
	}
}

func TestClient_PutReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "AccessDenied", http.StatusForbidden)
	}))
	defer srv.Close()
	c, err := New(Config{Endpoint: srv.URL, Bucket: "b", AccessKeyID: "a", SecretAccessKey: "s"})
	if err != nil {
		t.Fatal(err)
	}
	err = c.Put(context.Background(), "k", []byte("x"))
	if err == nil || !strings.Contains(err.Error(), "status=403") {
		t.Fatalf("err = %v", err)
	}
	if err := c.Put(context.Background(), "  /", []byte("x")); err == nil {
		t.Fatalf("expected empty key error")
	}
}

func TestNew_RequiresCredentials(t *testing.T) {
	if _, err := New(Config{Endpoint: "r2.example.com", Bucket: "b", AccessKeyID: "a"}); err == nil {
		t.Fatalf("expected error without secret key")
	}
	c, err := New(Config{Endpoint: "r2.example.com", Bucket: "b", AccessKeyID: "a", SecretAccessKey: "s"})
	if err != nil || c.endpoint != "https://r2.example.com" {
		t.Fatalf("endpoint = %v %v", c, err)
	}
}

type fakeUploader struct {
	mu    sync.Mutex
	keys  []string
	fails int
}

func (f *fakeUploader) PutFile(_ context.Context, key, localPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return errors.New("unavailable")
	}
	if _, err := os.Stat(localPath); err != nil {
		return err
	}
	f.keys = append(f.keys, key)
	return nil
}

func TestMirror_UploadsWithPrefixAndRetries(t *testing.T) {
	dir := t.TempDir()
	seg := filepath.Join(dir, "runs-2026-03-01-10.jsonl.zst")
	if err := os.WriteFile(seg, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	up := &fakeUploader{fails: 1}
	m := NewMirror(up, MirrorConfig{BaseDir: dir, Prefix: "/farm-1/", Workers: 1, Backoff: time.Millisecond})
	m.Enqueue(seg)
	m.Enqueue(filepath.Join(t.TempDir(), "elsewhere.jsonl.zst"))
	m.Close()
	m.Close()

	if len(up.keys) != 1 || up.keys[0] != "farm-1/runs-2026-03-01-10.jsonl.zst" {
		t.Fatalf("keys = %v", up.keys)
	}
	st := m.Stats()
	if st.UploadSuccessTotal != 1 || st.UploadFailTotal != 1 || st.LastSuccessUnix == 0 {
		t.Fatalf("stats: %+v", st)
	}
}

func TestMirror_DropsWhenQueueFull(t *testing.T) {
	m := &Mirror{jobs: make(chan string, 1)}
	m.Enqueue("a")
	m.Enqueue("b")
	if st := m.Stats(); st.DroppedTotal != 1 || st.QueueDepth != 1 {
		t.Fatalf("stats: %+v", st)
	}
}
