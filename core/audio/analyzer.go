package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/exec"
	"regexp"
	"strconv"
)

// Analyzer measures uploaded audio with the external ffmpeg/ffprobe tools.
// Each call writes the buffer to a scratch temp file, runs the tool against
// it, and removes the file before returning.
type Analyzer struct {
	ffmpegPath  string
	ffprobePath string
}

// NewAnalyzer creates an Analyzer using the given tool paths.
func NewAnalyzer(ffmpegPath, ffprobePath string) *Analyzer {
	return &Analyzer{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}
}

// ffprobeOutput defines the structure for ffprobe JSON output.
type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Duration returns the length of the audio in seconds.
func (a *Analyzer) Duration(ctx context.Context, data []byte) (float64, error) {
	tempPath, cleanup, err := writeScratchFile(data, "dur-*.audio")
	if err != nil {
		return 0, err
	}
	defer cleanup()

	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "json",
		tempPath,
	}

	cmd := exec.CommandContext(ctx, a.ffprobePath, args...)
	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffprobe execution failed: %w\nFFprobe Error: %s", err, stderr.String())
	}

	return parseDuration(out.Bytes())
}

func parseDuration(probeJSON []byte) (float64, error) {
	var probeData ffprobeOutput
	if err := json.Unmarshal(probeJSON, &probeData); err != nil {
		return 0, fmt.Errorf("failed to unmarshal ffprobe output: %w", err)
	}
	if probeData.Format.Duration == "" {
		return 0, fmt.Errorf("duration not found in ffprobe output")
	}
	duration, err := strconv.ParseFloat(probeData.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration string %q: %w", probeData.Format.Duration, err)
	}
	return duration, nil
}

var meanVolumeRe = regexp.MustCompile(`mean_volume: ([\-\d.]+) dB`)

// Loudness returns a 0-100 audibility score derived from the mean volume
// reported by ffmpeg's volumedetect filter.
func (a *Analyzer) Loudness(ctx context.Context, data []byte) (int, error) {
	tempPath, cleanup, err := writeScratchFile(data, "vol-*.audio")
	if err != nil {
		return 0, err
	}
	defer cleanup()

	args := []string{
		"-i", tempPath,
		"-af", "volumedetect",
		"-f", "null", "-",
	}

	cmd := exec.CommandContext(ctx, a.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	// volumedetect reports on stderr; a nonzero exit still may carry the
	// measurement, so parse before failing on the exit code.
	runErr := cmd.Run()
	score, parseErr := parseLoudness(stderr.String())
	if parseErr != nil {
		if runErr != nil {
			return 0, fmt.Errorf("ffmpeg volumedetect failed: %w\nFFmpeg Error: %s", runErr, stderr.String())
		}
		return 0, parseErr
	}
	return score, nil
}

func parseLoudness(ffmpegStderr string) (int, error) {
	m := meanVolumeRe.FindStringSubmatch(ffmpegStderr)
	if m == nil {
		return 0, fmt.Errorf("loudness analysis failed: mean_volume not found")
	}
	db, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse mean_volume %q: %w", m[1], err)
	}
	return loudnessScore(db), nil
}

// loudnessScore maps a mean volume in dBFS onto 0-100: -60 dB and below is 0,
// 0 dB and above is 100, linear in between.
func loudnessScore(db float64) int {
	score := ((db + 60) / 60) * 100
	score = math.Max(0, math.Min(100, score))
	return int(math.Round(score))
}

// writeScratchFile stores the buffer in a temp file and returns its path with
// a cleanup func. The caller must invoke cleanup unconditionally.
func writeScratchFile(data []byte, pattern string) (string, func(), error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create scratch file: %w", err)
	}
	path := f.Name()
	cleanup := func() { os.Remove(path) }

	if _, err := f.Write(data); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("failed to write scratch file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to close scratch file: %w", err)
	}
	return path, cleanup, nil
}
