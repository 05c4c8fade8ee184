package source

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
}

type ffprobeStream struct {
	CodecType    string         `json:"codec_type"`
	Width        int            `json:"width"`
	Height       int            `json:"height"`
	AvgFrameRate string         `json:"avg_frame_rate"`
	RFrameRate   string         `json:"r_frame_rate"`
	NbFrames     string         `json:"nb_frames"`
	Duration     string         `json:"duration"`
	Disposition  map[string]int `json:"disposition"`
}

// Probe runs ffprobe against input, which may be a path or a URL, and
// returns the properties of the first video stream.
func Probe(ctx context.Context, ffprobe, input string) (Info, error) {
	cmd := exec.CommandContext(ctx, ffprobe,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format", "-show_streams",
		input,
	)

	out, err := cmd.Output()
	if err != nil {
		return Info{}, fmt.Errorf("%w: ffprobe %q: %v", ErrDecode, input, err)
	}

	return ParseProbe(out)
}

// ParseProbe converts raw ffprobe JSON output into an Info.
func ParseProbe(data []byte) (Info, error) {
	var raw ffprobeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return Info{}, fmt.Errorf("%w: parse ffprobe JSON: %v", ErrDecode, err)
	}

	for _, s := range raw.Streams {
		if s.CodecType != "video" || s.Disposition["attached_pic"] == 1 {
			continue
		}

		info := Info{
			Width:  s.Width,
			Height: s.Height,
		}

		info.FrameRate = parseRate(s.AvgFrameRate)
		if !info.FrameRate.Valid() {
			info.FrameRate = parseRate(s.RFrameRate)
		}
		if !info.FrameRate.Valid() {
			return Info{}, fmt.Errorf("%w: unknown frame rate", ErrDecode)
		}
		if info.Width <= 0 || info.Height <= 0 {
			return Info{}, fmt.Errorf("%w: invalid dimensions %dx%d", ErrDecode, info.Width, info.Height)
		}

		info.Duration = parseFloat(s.Duration)
		if info.Duration == 0 {
			info.Duration = parseFloat(raw.Format.Duration)
		}

		info.FrameCount = parseInt(s.NbFrames)
		if info.FrameCount == 0 && info.Duration > 0 {
			info.FrameCount = int(math.Round(info.Duration * info.FrameRate.Float()))
		}

		return info, nil
	}

	return Info{}, fmt.Errorf("%w: no video stream", ErrDecode)
}

func parseRate(s string) Rate {
	num, den, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		den = "1"
	}
	return Rate{Num: parseInt(num), Den: parseInt(den)}
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f
}

func parseInt(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}
