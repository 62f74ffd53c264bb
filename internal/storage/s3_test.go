package storage

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewS3Storage(t *testing.T) {
	cfg := S3Config{
		Bucket:          "test-bucket",
		Region:          "us-east-1",
		Endpoint:        "http://localhost:4566/", // LocalStack-like endpoint
		AccessKeyID:     "test-access-key",
		SecretAccessKey: "test-secret-key",
	}

	storage, err := NewS3Storage(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewS3Storage() error = %v", err)
	}

	if storage.bucket != cfg.Bucket {
		t.Errorf("bucket = %v, want %v", storage.bucket, cfg.Bucket)
	}
	if storage.region != cfg.Region {
		t.Errorf("region = %v, want %v", storage.region, cfg.Region)
	}
	if storage.endpoint != "http://localhost:4566" {
		t.Errorf("endpoint = %v, want trailing slash trimmed", storage.endpoint)
	}
}

func TestS3Storage_ObjectURL(t *testing.T) {
	aws := &S3Storage{bucket: "b", region: "eu-west-1"}
	if got := aws.objectURL("assets/a.png"); got != "https://b.s3.eu-west-1.amazonaws.com/assets/a.png" {
		t.Errorf("objectURL() = %v", got)
	}

	custom := &S3Storage{bucket: "b", region: "eu-west-1", endpoint: "http://minio:9000"}
	if got := custom.objectURL("assets/a.png"); got != "http://minio:9000/b/assets/a.png" {
		t.Errorf("objectURL() = %v", got)
	}
}

func TestS3Storage_Put_MockServer(t *testing.T) {
	// Create a mock S3 server
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT method, got %s", r.Method)
		}

		if r.URL.Path != "/test-bucket/assets/job-1.mp4" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "video/mp4" {
			t.Errorf("unexpected content type: %s", ct)
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("failed to read body: %v", err)
		}
		if string(body) != "test content" {
			t.Errorf("unexpected body: %s", string(body))
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := S3Config{
		Bucket:          "test-bucket",
		Region:          "us-east-1",
		Endpoint:        server.URL,
		AccessKeyID:     "test-access-key",
		SecretAccessKey: "test-secret-key",
	}

	storage, err := NewS3Storage(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewS3Storage() error = %v", err)
	}

	url, err := storage.Put(context.Background(), "assets/job-1.mp4", bytes.NewReader([]byte("test content")), "video/mp4")
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	expectedURL := server.URL + "/test-bucket/assets/job-1.mp4"
	if url != expectedURL {
		t.Errorf("url = %v, want %v", url, expectedURL)
	}
}
