// Package pipeline wraps the two guarded subprocess pipelines: speech
// synthesis for announcements and still-image transcoding for display.
// Each call owns a scoped temp file that is removed on every exit path.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/alex/castmasta/internal/backend"
	"github.com/alex/castmasta/internal/domain"
)

const (
	MaxAnnounceTextLen = 4000
	DefaultVoice       = "en_US-lessac-medium"

	MinDisplayDuration = 1
	MaxDisplayDuration = 86400

	// Silence prepended to synthesized audio, absorbing push-stream
	// startup latency so the first words are not clipped.
	silenceLeadInSeconds = 1.5
)

// voiceRe keeps the model name from smuggling a path into the
// synthesizer's data-directory argument.
var voiceRe = regexp.MustCompile(`^[a-zA-Z0-9_\-]+$`)

type Runner struct {
	PiperBin     string
	FFmpegBin    string
	VoiceDataDir string
	Logf         func(format string, args ...any)

	// runTool is a seam for tests.
	runTool func(ctx context.Context, stdin io.Reader, bin string, args ...string) error
}

func NewRunner(piperBin, ffmpegBin, voiceDataDir string, logf func(format string, args ...any)) *Runner {
	if piperBin == "" {
		piperBin = "piper"
	}
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Runner{
		PiperBin:     piperBin,
		FFmpegBin:    ffmpegBin,
		VoiceDataDir: voiceDataDir,
		Logf:         logf,
		runTool:      runTool,
	}
}

// Announce synthesizes text with the external speech tool and streams
// the result to the backend.
func (r *Runner) Announce(ctx context.Context, b backend.Backend, text, voice string) error {
	if strings.TrimSpace(text) == "" {
		return domain.InvalidArgument("text must be a non-empty string")
	}
	if len(text) > MaxAnnounceTextLen {
		return domain.InvalidArgument("text too long (max %d chars)", MaxAnnounceTextLen)
	}
	if voice == "" {
		voice = DefaultVoice
	}
	if !voiceRe.MatchString(voice) {
		return domain.InvalidArgument("voice must be a simple model name (letters, digits, hyphens, underscores only)")
	}

	// Wake a push device and reset its auto-off timer before streaming.
	if b.DeviceType() == domain.DeviceTypeAirPlay {
		if err := b.SendKey(ctx, domain.KeyMenu); err != nil {
			r.Logf("announce wake nudge failed: %v", err)
		}
	}

	tmpPath, err := scopedTempFile("announce-*.wav")
	if err != nil {
		return err
	}
	defer removeIfPresent(tmpPath)

	err = r.runTool(ctx, strings.NewReader(text), r.PiperBin,
		"--model", voice,
		"--data-dir", r.VoiceDataDir,
		"--output_file", tmpPath,
	)
	if err != nil {
		return err
	}

	if err := prependSilence(tmpPath, silenceLeadInSeconds); err != nil {
		return domain.Internal("failed to prepare announcement audio: %v", err)
	}
	return b.StreamFile(ctx, tmpPath)
}

// DisplayImage loops a still image into a fixed-duration video and
// streams it to the backend. Duration is clamped to [1, 86400] seconds.
func (r *Runner) DisplayImage(ctx context.Context, b backend.Backend, imagePath string, durationSeconds int) error {
	if durationSeconds < MinDisplayDuration {
		durationSeconds = MinDisplayDuration
	}
	if durationSeconds > MaxDisplayDuration {
		durationSeconds = MaxDisplayDuration
	}

	tmpPath, err := scopedTempFile("display-*.mp4")
	if err != nil {
		return err
	}
	defer removeIfPresent(tmpPath)

	err = r.runTool(ctx, nil, r.FFmpegBin,
		"-loop", "1",
		"-i", imagePath,
		"-c:v", "libx264",
		"-t", strconv.Itoa(durationSeconds),
		"-pix_fmt", "yuv420p",
		"-y", tmpPath,
	)
	if err != nil {
		return err
	}
	return b.StreamFile(ctx, tmpPath)
}

// runTool execs argv directly (never through a shell) and captures the
// error stream for diagnostics.
func runTool(ctx context.Context, stdin io.Reader, bin string, args ...string) error {
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdin = stdin
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return domain.ExternalToolFailure(filepath.Base(bin), exitErr.ExitCode(), stderr.String())
		}
		return domain.ExternalToolFailure(filepath.Base(bin), -1, err.Error())
	}
	return nil
}

// scopedTempFile creates an owner-only temp file and returns its path;
// the caller owns removal.
func scopedTempFile(pattern string) (string, error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", domain.Internal("failed to create temp file: %v", err)
	}
	path := f.Name()
	if err := f.Chmod(0o600); err != nil {
		f.Close()
		_ = os.Remove(path)
		return "", domain.Internal("failed to restrict temp file: %v", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", domain.Internal("failed to create temp file: %v", err)
	}
	return path, nil
}

func removeIfPresent(path string) {
	if _, err := os.Stat(path); err == nil {
		_ = os.Remove(path)
	}
}
