package release

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func stagePackage(t *testing.T) (string, string) {
	t.Helper()

	stage := t.TempDir()
	pkgDir := filepath.Join(stage, "castmasta_1.0.0_linux_amd64")
	if err := os.MkdirAll(pkgDir, 0o755); err != nil {
		t.Fatalf("create package dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(pkgDir, "castmasta"), []byte("binary-bytes"), 0o755); err != nil {
		t.Fatalf("write binary: %v", err)
	}
	if err := os.WriteFile(filepath.Join(pkgDir, "README.md"), []byte("docs"), 0o644); err != nil {
		t.Fatalf("write docs: %v", err)
	}
	return stage, pkgDir
}

func TestWriteArchiveTarGz(t *testing.T) {
	_, pkgDir := stagePackage(t)
	archivePath := filepath.Join(t.TempDir(), "out.tar.gz")

	sum, err := writeArchive(archivePath, pkgDir, false)
	if err != nil {
		t.Fatalf("write archive: %v", err)
	}

	data, err := os.ReadFile(archivePath)
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	want := sha256.Sum256(data)
	if sum != hex.EncodeToString(want[:]) {
		t.Fatalf("checksum %s does not match archive contents", sum)
	}

	gzr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open gzip: %v", err)
	}
	names := map[string]string{}
	tr := tar.NewReader(gzr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("read tar entry: %v", err)
		}
		body, err := io.ReadAll(tr)
		if err != nil {
			t.Fatalf("read tar body: %v", err)
		}
		names[hdr.Name] = string(body)
	}

	if names["castmasta_1.0.0_linux_amd64/castmasta"] != "binary-bytes" {
		t.Fatalf("binary entry missing or wrong: %#v", names)
	}
	if names["castmasta_1.0.0_linux_amd64/README.md"] != "docs" {
		t.Fatalf("docs entry missing or wrong: %#v", names)
	}
}

func TestWriteArchiveZip(t *testing.T) {
	_, pkgDir := stagePackage(t)
	archivePath := filepath.Join(t.TempDir(), "out.zip")

	if _, err := writeArchive(archivePath, pkgDir, true); err != nil {
		t.Fatalf("write archive: %v", err)
	}

	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	defer zr.Close()

	found := false
	for _, f := range zr.File {
		if f.Name == "castmasta_1.0.0_linux_amd64/castmasta" {
			found = true
		}
	}
	if !found {
		t.Fatalf("binary entry missing from zip")
	}
}

func TestWriteChecksumsSortedByName(t *testing.T) {
	outDir := t.TempDir()
	artifacts := []Artifact{
		{ArchiveName: "castmasta_1.0.0_windows_amd64.zip", SHA256: "bbbb"},
		{ArchiveName: "castmasta_1.0.0_linux_amd64.tar.gz", SHA256: "aaaa"},
	}

	if err := writeChecksums(outDir, artifacts); err != nil {
		t.Fatalf("write checksums: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(outDir, "SHA256SUMS"))
	if err != nil {
		t.Fatalf("read checksums: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0] != "aaaa  castmasta_1.0.0_linux_amd64.tar.gz" {
		t.Fatalf("unexpected first line: %q", lines[0])
	}
	if lines[1] != "bbbb  castmasta_1.0.0_windows_amd64.zip" {
		t.Fatalf("unexpected second line: %q", lines[1])
	}
}

func TestBuildArtifactsValidatesOptions(t *testing.T) {
	cases := []struct {
		name string
		opts Options
	}{
		{"missing out dir", Options{RepoRoot: ".", Version: "1.0.0"}},
		{"missing repo root", Options{OutDir: "dist", Version: "1.0.0"}},
		{"missing version", Options{OutDir: "dist", RepoRoot: "."}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := BuildArtifacts(context.Background(), tc.opts); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
