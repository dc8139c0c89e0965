package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/alex/castmasta/internal/buildinfo"
	"github.com/alex/castmasta/internal/release"
)

func main() {
	outDir := flag.String("out", "dist", "output directory for release artifacts")
	version := flag.String("version", buildinfo.Version, "version stamped into the binaries and archive names")
	flag.Parse()

	artifacts, err := release.BuildArtifacts(context.Background(), release.Options{
		OutDir:   *outDir,
		RepoRoot: ".",
		Version:  *version,
		Targets:  release.DefaultTargets,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	for _, artifact := range artifacts {
		fmt.Printf("%s  %s\n", artifact.SHA256, artifact.ArchiveName)
	}
}
