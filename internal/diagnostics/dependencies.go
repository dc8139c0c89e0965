// Package diagnostics reports whether the external tools the media
// pipelines spawn are present on PATH.
package diagnostics

import "os/exec"

var lookPath = exec.LookPath

type BinaryStatus struct {
	Found bool   `json:"found"`
	Path  string `json:"path,omitempty"`
}

// DependencyReport covers the two spawned tools. Piper is only needed
// for announcements and ffmpeg only for image display, so neither is
// fatal on its own.
type DependencyReport struct {
	Piper              BinaryStatus `json:"piper"`
	FFmpeg             BinaryStatus `json:"ffmpeg"`
	AllRequiredPresent bool         `json:"all_required_present"`
}

func DetectDependencies(piperBin, ffmpegBin string) DependencyReport {
	if piperBin == "" {
		piperBin = "piper"
	}
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}

	piper := detectBinary(piperBin)
	ffmpeg := detectBinary(ffmpegBin)

	return DependencyReport{
		Piper:              piper,
		FFmpeg:             ffmpeg,
		AllRequiredPresent: piper.Found && ffmpeg.Found,
	}
}

func detectBinary(name string) BinaryStatus {
	path, err := lookPath(name)
	if err != nil {
		return BinaryStatus{Found: false}
	}

	return BinaryStatus{
		Found: true,
		Path:  path,
	}
}
