// Package ffmpeg wraps the ffmpeg and ffprobe binaries: locating them,
// probing sources, and rendering previews and thumbnails.
package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/jmylchreest/proofreel/internal/config"
)

// Binaries holds the resolved binary paths.
type Binaries struct {
	FFmpeg  string `json:"ffmpeg_path"`
	FFprobe string `json:"ffprobe_path"`
}

// FindBinaries resolves ffmpeg and ffprobe from cfg. Both are required.
func FindBinaries(cfg config.FFmpegConfig) (Binaries, error) {
	ffmpegPath, err := FindBinary("ffmpeg", cfg.BinaryPath, "PROOFREEL_FFMPEG_BINARY")
	if err != nil {
		return Binaries{}, err
	}
	ffprobePath, err := FindBinary("ffprobe", cfg.ProbePath, "PROOFREEL_FFPROBE_BINARY")
	if err != nil {
		return Binaries{}, err
	}
	return Binaries{FFmpeg: ffmpegPath, FFprobe: ffprobePath}, nil
}

// FindBinary locates name. Search order: configured path, envVar, ./name,
// then PATH.
func FindBinary(name, configured, envVar string) (string, error) {
	if configured != "" {
		if isExecutable(configured) {
			return configured, nil
		}
		return "", fmt.Errorf("%s not executable at configured path %s", name, configured)
	}

	if envVar != "" {
		if envPath := os.Getenv(envVar); envPath != "" && isExecutable(envPath) {
			return envPath, nil
		}
	}

	localPath := "./" + name
	if isExecutable(localPath) {
		return localPath, nil
	}

	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("binary %s not found", name)
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0111 != 0
}

// Version returns the version string reported by an ffmpeg or ffprobe
// binary, e.g. "6.1.1".
func Version(ctx context.Context, binary string) (string, error) {
	out, err := exec.CommandContext(ctx, binary, "-version").Output()
	if err != nil {
		return "", fmt.Errorf("running %s -version: %w", binary, err)
	}
	return parseVersion(out)
}

func parseVersion(out []byte) (string, error) {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		// "ffmpeg version 6.1.1 Copyright ..." or "ffprobe version n6.0-2-g..."
		if len(fields) >= 3 && fields[1] == "version" {
			return fields[2], nil
		}
	}
	return "", fmt.Errorf("unrecognised version output")
}
