package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ErrNoVideoStream is returned when a source has no decodable video.
var ErrNoVideoStream = errors.New("no video stream found")

// ProbeResult is the subset of ffprobe JSON output the pipeline reads.
type ProbeResult struct {
	Format  ProbeFormat   `json:"format"`
	Streams []ProbeStream `json:"streams"`
}

// ProbeFormat contains container format information.
type ProbeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
}

// ProbeStream contains stream information.
type ProbeStream struct {
	Index        int               `json:"index"`
	CodecName    string            `json:"codec_name"`
	CodecType    string            `json:"codec_type"` // video, audio, subtitle, data
	Width        int               `json:"width,omitempty"`
	Height       int               `json:"height,omitempty"`
	RFrameRate   string            `json:"r_frame_rate,omitempty"`
	AvgFrameRate string            `json:"avg_frame_rate,omitempty"`
	Duration     string            `json:"duration,omitempty"`
	Disposition  ProbeDisposition  `json:"disposition,omitempty"`
	Tags         map[string]string `json:"tags,omitempty"`
	SideDataList []ProbeSideData   `json:"side_data_list,omitempty"`
}

// ProbeDisposition contains the stream flags the prober cares about.
type ProbeDisposition struct {
	Default     int `json:"default"`
	AttachedPic int `json:"attached_pic"`
}

// ProbeSideData carries display matrix rotation on newer ffprobe builds.
type ProbeSideData struct {
	SideDataType string `json:"side_data_type"`
	Rotation     int    `json:"rotation"`
}

// MediaInfo is what the workers need to know about a source.
type MediaInfo struct {
	FormatName      string  `json:"format_name"`
	VideoCodec      string  `json:"video_codec"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	Rotation        int     `json:"rotation"`
	DurationSeconds float64 `json:"duration_seconds"`
	FrameRate       float64 `json:"frame_rate"`
	HasAudio        bool    `json:"has_audio"`
}

// DisplaySize returns the frame size after applying rotation. ffmpeg
// autorotates on decode, so this is the size the encoder sees.
func (m *MediaInfo) DisplaySize() (int, int) {
	if m.Rotation == 90 || m.Rotation == 270 {
		return m.Height, m.Width
	}
	return m.Width, m.Height
}

// Duration returns the duration as a time.Duration.
func (m *MediaInfo) Duration() time.Duration {
	return time.Duration(m.DurationSeconds * float64(time.Second))
}

// Prober handles ffprobe operations.
type Prober struct {
	ffprobePath string
	timeout     time.Duration
}

// NewProber creates a prober for the ffprobe binary at ffprobePath.
func NewProber(ffprobePath string) *Prober {
	return &Prober{
		ffprobePath: ffprobePath,
		timeout:     30 * time.Second,
	}
}

// WithTimeout sets the probe timeout.
func (p *Prober) WithTimeout(timeout time.Duration) *Prober {
	if timeout > 0 {
		p.timeout = timeout
	}
	return p
}

// Probe inspects the local file at path.
func (p *Prober) Probe(ctx context.Context, path string) (*MediaInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("probe timeout after %v", p.timeout)
		}
		return nil, fmt.Errorf("ffprobe failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	return ParseProbeOutput(output)
}

// ParseProbeOutput converts ffprobe JSON into MediaInfo. The first default
// video stream wins, falling back to the first video stream; cover art is
// ignored.
func ParseProbeOutput(data []byte) (*MediaInfo, error) {
	var result ProbeResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("parsing ffprobe output: %w", err)
	}

	var video *ProbeStream
	info := &MediaInfo{FormatName: result.Format.FormatName}
	for i := range result.Streams {
		s := &result.Streams[i]
		switch s.CodecType {
		case "video":
			if s.Disposition.AttachedPic == 1 {
				continue
			}
			if video == nil || (s.Disposition.Default == 1 && video.Disposition.Default == 0) {
				video = s
			}
		case "audio":
			info.HasAudio = true
		}
	}
	if video == nil || video.Width == 0 || video.Height == 0 {
		return nil, ErrNoVideoStream
	}

	info.VideoCodec = video.CodecName
	info.Width = video.Width
	info.Height = video.Height
	info.Rotation = streamRotation(video)

	if video.AvgFrameRate != "" && video.AvgFrameRate != "0/0" {
		info.FrameRate = parseFramerate(video.AvgFrameRate)
	}
	if info.FrameRate == 0 && video.RFrameRate != "" {
		info.FrameRate = parseFramerate(video.RFrameRate)
	}

	if d, err := strconv.ParseFloat(result.Format.Duration, 64); err == nil {
		info.DurationSeconds = d
	} else if d, err := strconv.ParseFloat(video.Duration, 64); err == nil {
		info.DurationSeconds = d
	}

	return info, nil
}

// streamRotation normalises rotation to 0, 90, 180 or 270 degrees
// clockwise. Older builds report a rotate tag, newer ones a display matrix
// with counter-clockwise sign.
func streamRotation(s *ProbeStream) int {
	deg := 0
	if tag, ok := s.Tags["rotate"]; ok {
		if v, err := strconv.Atoi(tag); err == nil {
			deg = v
		}
	} else {
		for _, sd := range s.SideDataList {
			if sd.SideDataType == "Display Matrix" {
				deg = -sd.Rotation
				break
			}
		}
	}
	deg %= 360
	if deg < 0 {
		deg += 360
	}
	return deg
}

// parseFramerate parses a framerate string like "30000/1001" or "25/1".
func parseFramerate(fr string) float64 {
	num, den, ok := strings.Cut(fr, "/")
	if !ok {
		f, _ := strconv.ParseFloat(fr, 64)
		return f
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}
