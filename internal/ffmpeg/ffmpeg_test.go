package ffmpeg

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jmylchreest/proofreel/internal/config"
	"github.com/jmylchreest/proofreel/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// skipIfNoFFmpeg skips the test if ffmpeg or ffprobe is not installed.
func skipIfNoFFmpeg(t *testing.T) Binaries {
	t.Helper()
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		t.Skip("ffmpeg not installed")
	}
	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		t.Skip("ffprobe not installed")
	}
	return Binaries{FFmpeg: ffmpegPath, FFprobe: ffprobePath}
}

func testTranscodeConfig() config.TranscodeConfig {
	return config.TranscodeConfig{
		PreviewResolution: "720p",
		VideoCodec:        "libx264",
		Preset:            "ultrafast",
		CRF:               30,
		AudioBitrate:      "64k",
	}
}

func TestFitInside(t *testing.T) {
	box720 := BoxFor(models.Resolution720p)
	box1080 := BoxFor(models.Resolution1080p)

	tests := []struct {
		name       string
		srcW, srcH int
		box        Box
		wantW      int
		wantH      int
	}{
		{"landscape 1080p to 720p", 1920, 1080, box720, 1280, 720},
		{"portrait uses transposed box", 1080, 1920, box720, 720, 1280},
		{"square bounded by short side", 1000, 1000, box720, 720, 720},
		{"small source not upscaled", 640, 360, box1080, 640, 360},
		{"odd source rounded to even", 641, 361, box720, 640, 360},
		{"4k to 1080p", 3840, 2160, box1080, 1920, 1080},
		{"ultra wide", 2560, 1080, box720, 1280, 540},
		{"zero width", 0, 1080, box720, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := FitInside(tt.srcW, tt.srcH, tt.box)
			assert.Equal(t, tt.wantW, w)
			assert.Equal(t, tt.wantH, h)
		})
	}
}

func TestBoxFor(t *testing.T) {
	assert.Equal(t, Box{Width: 1280, Height: 720}, BoxFor(models.Resolution720p))
	assert.Equal(t, Box{Width: 1920, Height: 1080}, BoxFor(models.Resolution1080p))
}

func TestParseProbeOutput(t *testing.T) {
	t.Run("picks default video stream and detects audio", func(t *testing.T) {
		data := []byte(`{
			"format": {"format_name": "mov,mp4,m4a,3gp,3g2,mj2", "duration": "12.480000"},
			"streams": [
				{"index": 0, "codec_type": "video", "codec_name": "mjpeg", "width": 320, "height": 240, "disposition": {"default": 0, "attached_pic": 1}},
				{"index": 1, "codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080, "avg_frame_rate": "30000/1001", "disposition": {"default": 1, "attached_pic": 0}},
				{"index": 2, "codec_type": "audio", "codec_name": "aac"}
			]
		}`)

		info, err := ParseProbeOutput(data)
		require.NoError(t, err)
		assert.Equal(t, "h264", info.VideoCodec)
		assert.Equal(t, 1920, info.Width)
		assert.Equal(t, 1080, info.Height)
		assert.True(t, info.HasAudio)
		assert.InDelta(t, 29.97, info.FrameRate, 0.01)
		assert.InDelta(t, 12.48, info.DurationSeconds, 0.001)
		assert.Equal(t, 12480*time.Millisecond, info.Duration())
	})

	t.Run("rotate tag swaps display size", func(t *testing.T) {
		data := []byte(`{
			"format": {"duration": "3.0"},
			"streams": [{"codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080, "r_frame_rate": "30/1", "tags": {"rotate": "90"}}]
		}`)

		info, err := ParseProbeOutput(data)
		require.NoError(t, err)
		assert.Equal(t, 90, info.Rotation)
		w, h := info.DisplaySize()
		assert.Equal(t, 1080, w)
		assert.Equal(t, 1920, h)
		assert.False(t, info.HasAudio)
		assert.InDelta(t, 30.0, info.FrameRate, 0.001)
	})

	t.Run("display matrix rotation is negated", func(t *testing.T) {
		data := []byte(`{
			"format": {},
			"streams": [{"codec_type": "video", "width": 1280, "height": 720, "duration": "4.5",
				"side_data_list": [{"side_data_type": "Display Matrix", "rotation": -90}]}]
		}`)

		info, err := ParseProbeOutput(data)
		require.NoError(t, err)
		assert.Equal(t, 90, info.Rotation)
		assert.InDelta(t, 4.5, info.DurationSeconds, 0.001)
	})

	t.Run("audio only", func(t *testing.T) {
		data := []byte(`{"format": {}, "streams": [{"codec_type": "audio", "codec_name": "mp3"}]}`)
		_, err := ParseProbeOutput(data)
		assert.ErrorIs(t, err, ErrNoVideoStream)
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := ParseProbeOutput([]byte("not json"))
		assert.Error(t, err)
	})
}

func TestParseFramerate(t *testing.T) {
	assert.InDelta(t, 25.0, parseFramerate("25/1"), 0.001)
	assert.InDelta(t, 23.976, parseFramerate("24000/1001"), 0.001)
	assert.InDelta(t, 50.0, parseFramerate("50"), 0.001)
	assert.Zero(t, parseFramerate("0/0"))
	assert.Zero(t, parseFramerate("x/y"))
}

func TestParseVersion(t *testing.T) {
	v, err := parseVersion([]byte("ffmpeg version 6.1.1 Copyright (c) 2000-2023 the FFmpeg developers\nbuilt with gcc 13\n"))
	require.NoError(t, err)
	assert.Equal(t, "6.1.1", v)

	v, err = parseVersion([]byte("ffprobe version n7.0-2-gabc Copyright\n"))
	require.NoError(t, err)
	assert.Equal(t, "n7.0-2-gabc", v)

	_, err = parseVersion([]byte("something else\n"))
	assert.Error(t, err)
}

func TestFindBinary(t *testing.T) {
	dir := t.TempDir()
	fake := filepath.Join(dir, "fakeffmpeg")
	require.NoError(t, os.WriteFile(fake, []byte("#!/bin/sh\n"), 0o755))
	notExec := filepath.Join(dir, "notexec")
	require.NoError(t, os.WriteFile(notExec, []byte(""), 0o644))

	t.Run("configured path", func(t *testing.T) {
		path, err := FindBinary("fakeffmpeg", fake, "")
		require.NoError(t, err)
		assert.Equal(t, fake, path)
	})

	t.Run("configured path not executable", func(t *testing.T) {
		_, err := FindBinary("fakeffmpeg", notExec, "")
		assert.Error(t, err)
	})

	t.Run("env var", func(t *testing.T) {
		t.Setenv("PROOFREEL_TEST_FAKE_BINARY", fake)
		path, err := FindBinary("definitely-not-on-path", "", "PROOFREEL_TEST_FAKE_BINARY")
		require.NoError(t, err)
		assert.Equal(t, fake, path)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := FindBinary("definitely-not-on-path-proofreel", "", "")
		assert.Error(t, err)
	})
}

func TestCommandBuilder_Build(t *testing.T) {
	cmd := NewCommandBuilder("/usr/bin/ffmpeg").
		HideBanner().
		Overwrite().
		InputArgs("-ss", "1.000").
		Input("in.mp4").
		VideoFilter("scale=1280:720").
		VideoFilter("").
		VideoFilter("drawtext=text='x'").
		VideoCodec("libx264").
		VideoPreset("").
		CRF(23).
		Threads(0).
		Output("out.mp4").
		Build()

	assert.Equal(t, "/usr/bin/ffmpeg", cmd.Binary)
	assert.Equal(t, []string{
		"-loglevel", "error", "-hide_banner", "-y",
		"-ss", "1.000", "-i", "in.mp4",
		"-vf", "scale=1280:720,drawtext=text='x'",
		"-c:v", "libx264", "-crf", "23",
		"out.mp4",
	}, cmd.Args)
	assert.True(t, strings.HasPrefix(cmd.String(), "/usr/bin/ffmpeg -loglevel error"))
}

func TestEncoder_TranscodeCommand(t *testing.T) {
	enc := NewEncoder(Binaries{FFmpeg: "ffmpeg", FFprobe: "ffprobe"}, testTranscodeConfig(), 0, nil)

	cmd := enc.transcodeCommand(TranscodeRequest{
		Input:     "in.mov",
		Output:    "out.mp4",
		Width:     720,
		Height:    1280,
		Threads:   2,
		Watermark: "DRAFT",
	})
	args := strings.Join(cmd.Args, " ")

	assert.Contains(t, args, "-i in.mov")
	assert.Contains(t, args, "-vf scale=720:1280,drawtext=text='DRAFT'")
	assert.Contains(t, args, "-map 0:v:0 -map 0:a:0?")
	assert.Contains(t, args, "-c:v libx264 -preset ultrafast -crf 30")
	assert.Contains(t, args, "-pix_fmt yuv420p")
	assert.Contains(t, args, "-c:a aac -b:a 64k")
	assert.Contains(t, args, "-threads 2")
	assert.Contains(t, args, "-movflags +faststart")
	assert.Equal(t, "out.mp4", cmd.Args[len(cmd.Args)-1])

	cmd = enc.transcodeCommand(TranscodeRequest{Input: "in.mov", Output: "out.mp4", Width: 1280, Height: 720})
	args = strings.Join(cmd.Args, " ")
	assert.NotContains(t, args, "drawtext")
	assert.NotContains(t, args, "-threads")
}

func TestEncoder_ThumbnailCommand(t *testing.T) {
	enc := NewEncoder(Binaries{FFmpeg: "ffmpeg", FFprobe: "ffprobe"}, testTranscodeConfig(), 0, nil)

	cmd := enc.thumbnailCommand(ThumbnailRequest{Input: "in.mp4", Output: "thumb.jpg", At: 1500 * time.Millisecond})
	args := strings.Join(cmd.Args, " ")
	assert.Contains(t, args, "-ss 1.500 -i in.mp4")
	assert.Contains(t, args, "-vf scale='min(640,iw)':-2")
	assert.Contains(t, args, "-frames:v 1 -q:v 3")

	cmd = enc.thumbnailCommand(ThumbnailRequest{Input: "in.png", Output: "thumb.jpg", MaxWidth: 320})
	args = strings.Join(cmd.Args, " ")
	assert.NotContains(t, args, "-ss")
	assert.Contains(t, args, "min(320,iw)")
}

func TestEscapeDrawtext(t *testing.T) {
	assert.Equal(t, `a\\:b`, escapeDrawtext("a:b"))
	assert.Equal(t, `Draft\, v2`, escapeDrawtext("Draft, v2"))
	assert.Equal(t, `100\\%`, escapeDrawtext("100%"))
	assert.Empty(t, drawtext("   "))
}

func TestParseProgress(t *testing.T) {
	stderr := strings.Join([]string{
		"frame=   10 fps=0.0 q=28.0 size=       0kB time=00:00:02.50 bitrate=N/A speed=5x\r",
		"frame=   20 fps=0.0 q=28.0 size=       0kB time=00:00:02.50 bitrate=N/A speed=5x\r",
		"[libx264 @ 0x1] some warning\n",
		"frame=   40 fps=0.0 q=28.0 size=     256kB time=00:00:05.00 bitrate=N/A speed=5x\r",
		"frame=   80 fps=0.0 q=28.0 size=     512kB time=00:00:10.00 bitrate=N/A speed=5x\n",
	}, "")

	progress := make(chan int, 10)
	tail := newLineTail(5)
	parseProgress(strings.NewReader(stderr), 10*time.Second, progress, tail)
	close(progress)

	var got []int
	for p := range progress {
		got = append(got, p)
	}
	assert.Equal(t, []int{25, 50, 99}, got)
	assert.Equal(t, "[libx264 @ 0x1] some warning", tail.String())
}

func TestParseProgress_NoTotal(t *testing.T) {
	progress := make(chan int, 1)
	parseProgress(strings.NewReader("time=00:00:01.00\r"), 0, progress, newLineTail(1))
	assert.Empty(t, progress)
}

func TestParseStatsTime(t *testing.T) {
	d, ok := parseStatsTime("size=1kB time=01:02:03.25 bitrate")
	require.True(t, ok)
	assert.Equal(t, time.Hour+2*time.Minute+3*time.Second+250*time.Millisecond, d)

	_, ok = parseStatsTime("time=N/A")
	assert.False(t, ok)
}

func TestLineTail(t *testing.T) {
	tail := newLineTail(2)
	tail.add("a")
	tail.add("b")
	tail.add("c")
	assert.Equal(t, "b; c", tail.String())
}

func TestEncoder_Integration(t *testing.T) {
	bins := skipIfNoFFmpeg(t)
	ctx := context.Background()
	dir := t.TempDir()

	src := filepath.Join(dir, "source.mp4")
	gen := exec.CommandContext(ctx, bins.FFmpeg, "-hide_banner", "-loglevel", "error", "-y",
		"-f", "lavfi", "-i", "testsrc=size=640x360:rate=25:duration=2",
		"-f", "lavfi", "-i", "sine=frequency=440:duration=2",
		"-shortest", "-c:v", "libx264", "-preset", "ultrafast", "-c:a", "aac", src)
	if out, err := gen.CombinedOutput(); err != nil {
		t.Skipf("generating test source: %v: %s", err, out)
	}

	enc := NewEncoder(bins, testTranscodeConfig(), 10*time.Second, nil)

	info, err := enc.Probe(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, 640, info.Width)
	assert.Equal(t, 360, info.Height)
	assert.True(t, info.HasAudio)
	assert.InDelta(t, 2.0, info.DurationSeconds, 0.2)

	t.Run("transcode", func(t *testing.T) {
		out := filepath.Join(dir, "preview.mp4")
		w, h := FitInside(info.Width, info.Height, Box{Width: 320, Height: 180})
		progress := make(chan int, 100)

		err := enc.Transcode(ctx, TranscodeRequest{
			Input:    src,
			Output:   out,
			Width:    w,
			Height:   h,
			Threads:  1,
			Duration: info.Duration(),
		}, progress)
		require.NoError(t, err)

		got, err := enc.Probe(ctx, out)
		require.NoError(t, err)
		assert.Equal(t, 320, got.Width)
		assert.Equal(t, 180, got.Height)
	})

	t.Run("thumbnail", func(t *testing.T) {
		out := filepath.Join(dir, "thumb.jpg")
		err := enc.Thumbnail(ctx, ThumbnailRequest{Input: src, Output: out, At: time.Second})
		require.NoError(t, err)

		st, err := os.Stat(out)
		require.NoError(t, err)
		assert.Positive(t, st.Size())
	})

	t.Run("missing input", func(t *testing.T) {
		err := enc.Transcode(ctx, TranscodeRequest{
			Input: filepath.Join(dir, "missing.mp4"), Output: filepath.Join(dir, "x.mp4"), Width: 320, Height: 180,
		}, nil)
		assert.Error(t, err)
	})

	t.Run("version", func(t *testing.T) {
		v, err := Version(ctx, bins.FFmpeg)
		require.NoError(t, err)
		assert.NotEmpty(t, v)
	})
}
