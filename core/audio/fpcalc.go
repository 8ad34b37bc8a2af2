package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"echoheritage/model"
)

// Fpcalc extracts acoustic fingerprints with the chromaprint fpcalc tool.
type Fpcalc struct {
	fpcalcPath string
}

// NewFpcalc creates an extractor using the given fpcalc binary.
func NewFpcalc(fpcalcPath string) *Fpcalc {
	return &Fpcalc{fpcalcPath: fpcalcPath}
}

// Fingerprint runs `fpcalc -raw` on the audio buffer and returns the integer
// sequence. An empty buffer or unparseable tool output is an extraction
// failure.
func (f *Fpcalc) Fingerprint(ctx context.Context, data []byte) (model.FingerprintData, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty audio buffer")
	}

	tempPath, cleanup, err := writeScratchFile(data, "fp-*.audio")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	cmd := exec.CommandContext(ctx, f.fpcalcPath, "-raw", tempPath)
	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("fpcalc execution failed: %w\nFpcalc Error: %s", err, stderr.String())
	}

	return parseFpcalcOutput(out.String())
}

// parseFpcalcOutput pulls the comma-separated integers off the FINGERPRINT=
// line of fpcalc's raw output.
func parseFpcalcOutput(output string) (model.FingerprintData, error) {
	var line string
	for _, l := range strings.Split(output, "\n") {
		if strings.HasPrefix(l, "FINGERPRINT=") {
			line = strings.TrimSpace(strings.TrimPrefix(l, "FINGERPRINT="))
			break
		}
	}
	if line == "" {
		return nil, fmt.Errorf("fingerprint generation failed: no FINGERPRINT line in output")
	}

	parts := strings.Split(line, ",")
	fp := make(model.FingerprintData, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("fingerprint generation failed: bad value %q: %w", p, err)
		}
		fp = append(fp, uint32(v))
	}
	return fp, nil
}
