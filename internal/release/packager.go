package release

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

type Target struct {
	GOOS   string
	GOARCH string
}

func (t Target) String() string { return t.GOOS + "/" + t.GOARCH }

type Artifact struct {
	Target         Target
	ArchiveName    string
	ArchivePath    string
	PackageDirName string
	SHA256         string
}

type Options struct {
	OutDir   string
	RepoRoot string
	Version  string
	Targets  []Target
}

var DefaultTargets = []Target{
	{GOOS: "linux", GOARCH: "amd64"},
	{GOOS: "linux", GOARCH: "arm64"},
	{GOOS: "darwin", GOARCH: "amd64"},
	{GOOS: "darwin", GOARCH: "arm64"},
	{GOOS: "windows", GOARCH: "amd64"},
	{GOOS: "windows", GOARCH: "arm64"},
}

// docFiles ship inside every archive next to the binary.
var docFiles = []string{"README.md"}

const versionSymbol = "github.com/alex/castmasta/internal/buildinfo.Version"

func BuildArtifacts(ctx context.Context, opts Options) ([]Artifact, error) {
	if strings.TrimSpace(opts.OutDir) == "" {
		return nil, fmt.Errorf("out dir is required")
	}
	if strings.TrimSpace(opts.RepoRoot) == "" {
		return nil, fmt.Errorf("repo root is required")
	}
	version := strings.TrimSpace(opts.Version)
	if version == "" {
		return nil, fmt.Errorf("version is required")
	}
	targets := opts.Targets
	if len(targets) == 0 {
		targets = DefaultTargets
	}

	repoRoot, err := filepath.Abs(opts.RepoRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve repo root: %w", err)
	}
	outDir, err := filepath.Abs(opts.OutDir)
	if err != nil {
		return nil, fmt.Errorf("resolve out dir: %w", err)
	}

	if err := os.RemoveAll(outDir); err != nil {
		return nil, fmt.Errorf("clean out dir: %w", err)
	}
	stageRoot := filepath.Join(outDir, ".stage")
	if err := os.MkdirAll(stageRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create stage dir: %w", err)
	}
	defer os.RemoveAll(stageRoot)

	var artifacts []Artifact
	for _, target := range targets {
		artifact, err := buildOne(ctx, repoRoot, stageRoot, outDir, version, target)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, artifact)
	}

	if err := writeChecksums(outDir, artifacts); err != nil {
		return nil, err
	}
	return artifacts, nil
}

func buildOne(ctx context.Context, repoRoot, stageRoot, outDir, version string, target Target) (Artifact, error) {
	pkgDirName := fmt.Sprintf("castmasta_%s_%s_%s", version, target.GOOS, target.GOARCH)
	pkgDir := filepath.Join(stageRoot, pkgDirName)
	if err := os.MkdirAll(pkgDir, 0o755); err != nil {
		return Artifact{}, fmt.Errorf("create package dir %s: %w", pkgDirName, err)
	}

	binName := "castmasta"
	ext := ".tar.gz"
	if target.GOOS == "windows" {
		binName += ".exe"
		ext = ".zip"
	}

	if err := buildBinary(ctx, repoRoot, version, target, filepath.Join(pkgDir, binName)); err != nil {
		return Artifact{}, err
	}
	for _, doc := range docFiles {
		if err := copyFile(filepath.Join(repoRoot, doc), filepath.Join(pkgDir, doc)); err != nil {
			return Artifact{}, fmt.Errorf("copy %s: %w", doc, err)
		}
	}

	archiveName := pkgDirName + ext
	archivePath := filepath.Join(outDir, archiveName)
	sum, err := writeArchive(archivePath, pkgDir, target.GOOS == "windows")
	if err != nil {
		return Artifact{}, fmt.Errorf("create %s: %w", archiveName, err)
	}

	return Artifact{
		Target:         target,
		ArchiveName:    archiveName,
		ArchivePath:    archivePath,
		PackageDirName: pkgDirName,
		SHA256:         sum,
	}, nil
}

func buildBinary(ctx context.Context, repoRoot, version string, target Target, outPath string) error {
	ldflags := fmt.Sprintf("-s -w -X %s=%s", versionSymbol, version)
	cmd := exec.CommandContext(ctx, "go", "build", "-trimpath", "-ldflags", ldflags, "-o", outPath, ".")
	cmd.Dir = repoRoot
	cmd.Env = append(os.Environ(),
		"CGO_ENABLED=0",
		"GOOS="+target.GOOS,
		"GOARCH="+target.GOARCH,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("go build %s failed: %w: %s", target, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dstFile, srcFile); err != nil {
		dstFile.Close()
		return err
	}
	return dstFile.Close()
}

// writeArchive packs dir into archivePath, tar.gz or zip, and returns
// the hex SHA-256 of the finished archive. Entries are prefixed with
// the package dir name so extraction yields a single folder.
func writeArchive(archivePath, dir string, asZip bool) (string, error) {
	file, err := os.Create(archivePath)
	if err != nil {
		return "", err
	}
	hasher := sha256.New()
	sink := io.MultiWriter(file, hasher)

	var addEntry func(rel string, info fs.FileInfo, open func() (io.ReadCloser, error)) error
	var finish func() error

	if asZip {
		zw := zip.NewWriter(sink)
		addEntry = func(rel string, info fs.FileInfo, open func() (io.ReadCloser, error)) error {
			header, err := zip.FileInfoHeader(info)
			if err != nil {
				return err
			}
			header.Name = rel
			if info.IsDir() {
				header.Name += "/"
			} else {
				header.Method = zip.Deflate
			}
			w, err := zw.CreateHeader(header)
			if err != nil {
				return err
			}
			if !info.Mode().IsRegular() {
				return nil
			}
			src, err := open()
			if err != nil {
				return err
			}
			defer src.Close()
			_, err = io.Copy(w, src)
			return err
		}
		finish = zw.Close
	} else {
		gzw := gzip.NewWriter(sink)
		tw := tar.NewWriter(gzw)
		addEntry = func(rel string, info fs.FileInfo, open func() (io.ReadCloser, error)) error {
			hdr, err := tar.FileInfoHeader(info, "")
			if err != nil {
				return err
			}
			hdr.Name = rel
			if err := tw.WriteHeader(hdr); err != nil {
				return err
			}
			if !info.Mode().IsRegular() {
				return nil
			}
			src, err := open()
			if err != nil {
				return err
			}
			defer src.Close()
			_, err = io.Copy(tw, src)
			return err
		}
		finish = func() error {
			if err := tw.Close(); err != nil {
				gzw.Close()
				return err
			}
			return gzw.Close()
		}
	}

	parent := filepath.Dir(dir)
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(parent, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return addEntry(rel, info, func() (io.ReadCloser, error) { return os.Open(path) })
	})
	if walkErr != nil {
		file.Close()
		return "", walkErr
	}
	if err := finish(); err != nil {
		file.Close()
		return "", err
	}
	if err := file.Close(); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func writeChecksums(outDir string, artifacts []Artifact) error {
	sorted := make([]Artifact, len(artifacts))
	copy(sorted, artifacts)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ArchiveName < sorted[j].ArchiveName
	})

	var b strings.Builder
	for _, artifact := range sorted {
		fmt.Fprintf(&b, "%s  %s\n", artifact.SHA256, artifact.ArchiveName)
	}
	if err := os.WriteFile(filepath.Join(outDir, "SHA256SUMS"), []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write SHA256SUMS: %w", err)
	}
	return nil
}
