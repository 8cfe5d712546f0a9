package storage

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jittakal/kafeventrouter/internal/config/dto"
	"github.com/jittakal/kafeventrouter/internal/errors"
	"github.com/jittakal/kafeventrouter/pkg/event"
)

func TestNewFileWriter(t *testing.T) {
	tests := []struct {
		name    string
		format  event.FileFormat
		wantErr bool
	}{
		{"json", event.FormatJSON, false},
		{"parquet", event.FormatParquet, false},
		{"avro", event.FormatAvro, false},
		{"unsupported", event.FileFormat("csv"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := filepath.Join(t.TempDir(), "nested", "base")
			_, err := NewFileWriter(FileConfig{BasePath: base}, tt.format, "", testLogger(), nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewFileWriter() error = %v, wantErr %v", err, tt.wantErr)
			}
			if _, statErr := os.Stat(base); statErr != nil {
				t.Errorf("base path not created: %v", statErr)
			}
		})
	}
}

func TestFileWriter_Write(t *testing.T) {
	base := t.TempDir()
	metrics := newFakeMetrics()

	writer, err := NewFileWriter(FileConfig{BasePath: base}, event.FormatJSON, "", testLogger(), metrics)
	if err != nil {
		t.Fatalf("NewFileWriter() error = %v", err)
	}

	router := NewRouter(Protocol(BackendFile), "", "")
	path := router.Route("purchase/completed/2023/11/14/")

	size, err := writer.Write(context.Background(), testRecords(), path, event.FormatJSON)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	dir := filepath.Join(base, "purchase", "completed", "2023", "11", "14")
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d files, want 1", len(entries))
	}

	name := entries[0].Name()
	if !strings.HasPrefix(name, "events_") || !strings.HasSuffix(name, ".jsonl") {
		t.Errorf("unexpected file name %s", name)
	}

	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if int64(len(data)) != size {
		t.Errorf("Write() = %d bytes, file has %d", size, len(data))
	}
	if lines := strings.Count(string(data), "\n"); lines != 2 {
		t.Errorf("file has %d lines, want 2", lines)
	}

	if metrics.written["file/json/success"] != 1 {
		t.Errorf("files written = %v", metrics.written)
	}
	if len(metrics.sizes) != 1 || metrics.sizes[0] != float64(size) {
		t.Errorf("sizes = %v", metrics.sizes)
	}
}

func TestFileWriter_WritesDistinctFiles(t *testing.T) {
	base := t.TempDir()
	writer, err := NewFileWriter(FileConfig{BasePath: base}, event.FormatParquet, "snappy", testLogger(), nil)
	if err != nil {
		t.Fatalf("NewFileWriter() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := writer.Write(context.Background(), testRecords(), "file://a/b/2024/3/5/", event.FormatParquet); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}

	entries, err := os.ReadDir(filepath.Join(base, "a", "b", "2024", "3", "5"))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("got %d files, want 3", len(entries))
	}
}

func TestFileWriter_Errors(t *testing.T) {
	writer, err := NewFileWriter(FileConfig{BasePath: t.TempDir()}, event.FormatJSON, "", testLogger(), nil)
	if err != nil {
		t.Fatalf("NewFileWriter() error = %v", err)
	}

	if _, err := writer.Write(context.Background(), nil, "file://a/", event.FormatJSON); err == nil {
		t.Error("expected error for empty records")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := writer.Write(ctx, testRecords(), "file://a/", event.FormatJSON); !stderrors.Is(err, context.Canceled) {
		t.Errorf("Write() with cancelled context error = %v", err)
	}

	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := writer.Write(context.Background(), testRecords(), "file://a/", event.FormatJSON); !stderrors.Is(err, errors.ErrWriterClosed) {
		t.Errorf("Write() after Close error = %v, want ErrWriterClosed", err)
	}
}

func TestNewSinkFromConfig_File(t *testing.T) {
	base := t.TempDir()
	cfg := dto.StorageConfig{
		Backend: BackendFile,
		Format:  "json",
		File:    dto.FileConfig{BasePath: base},
	}

	sink, err := NewSinkFromConfig(cfg, "curated", testLogger(), nil)
	if err != nil {
		t.Fatalf("NewSinkFromConfig() error = %v", err)
	}
	defer sink.Close()

	if sink.Format() != event.FormatJSON {
		t.Errorf("Format() = %v", sink.Format())
	}

	location, _, err := sink.Write(context.Background(), "error/2024/3/5/", testRecords())
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if location != "file://curated/error/2024/3/5/" {
		t.Errorf("location = %s", location)
	}

	entries, err := os.ReadDir(filepath.Join(base, "curated", "error", "2024", "3", "5"))
	if err != nil || len(entries) != 1 {
		t.Errorf("ReadDir() = %v, %v", entries, err)
	}
}

func TestNewSinkFromConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  dto.StorageConfig
	}{
		{"unknown format", dto.StorageConfig{Backend: BackendFile, Format: "csv", File: dto.FileConfig{BasePath: t.TempDir()}}},
		{"unknown backend", dto.StorageConfig{Backend: "ftp", Format: "json"}},
		{"azure without credential", dto.StorageConfig{Backend: BackendAzure, Format: "json", Azure: dto.AzureConfig{AccountName: "acct", Container: "events"}}},
	}

	t.Setenv("AZURE_STORAGE_ACCOUNT_KEY", "")
	t.Setenv("AZURE_STORAGE_SAS_TOKEN", "")

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSinkFromConfig(tt.cfg, "", testLogger(), nil); err == nil {
				t.Error("expected error")
			}
		})
	}
}
