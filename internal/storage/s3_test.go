package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func TestS3Storage_Key(t *testing.T) {
	s := NewS3StorageWithClient(nil, "bucket", S3Config{Prefix: "exports/"}, nil)
	if got := s.Key("Quotes.xlsx"); got != "exports/Quotes.xlsx" {
		t.Errorf("Key = %q", got)
	}
	s = NewS3StorageWithClient(nil, "bucket", S3Config{}, nil)
	if got := s.Key("Quotes.xlsx"); got != "Quotes.xlsx" {
		t.Errorf("Key = %q", got)
	}
}

func TestS3Storage_Upload(t *testing.T) {
	var mu sync.Mutex
	objects := map[string]string{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			http.Error(w, "unexpected", http.StatusMethodNotAllowed)
			return
		}
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		objects[r.URL.Path] = string(data)
		mu.Unlock()
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := s3.New(s3.Options{
		Region:       "us-east-1",
		BaseEndpoint: aws.String(server.URL),
		UsePathStyle: true,
		Credentials:  aws.AnonymousCredentials{},
		HTTPClient:   server.Client(),

		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
	})
	storage := NewS3StorageWithClient(client, "reports", S3Config{Prefix: "crm"}, nil)

	src := filepath.Join(t.TempDir(), "Equipment.xlsx")
	if err := os.WriteFile(src, []byte("equipment"), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	if err := storage.Upload(context.Background(), src, "Equipment.xlsx"); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if got := objects["/reports/crm/Equipment.xlsx"]; got != "equipment" {
		t.Errorf("uploaded object = %q, all: %v", got, objects)
	}
}
