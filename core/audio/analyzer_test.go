package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	probeJSON := []byte(`{"format":{"duration":"42.371000"}}`)

	d, err := parseDuration(probeJSON)
	require.NoError(t, err)
	assert.InDelta(t, 42.371, d, 0.0001)
}

func TestParseDurationMissing(t *testing.T) {
	_, err := parseDuration([]byte(`{"format":{}}`))
	assert.Error(t, err)
}

func TestParseDurationBadJSON(t *testing.T) {
	_, err := parseDuration([]byte(`not json`))
	assert.Error(t, err)
}

func TestParseLoudness(t *testing.T) {
	stderr := `
[Parsed_volumedetect_0 @ 0x55f] n_samples: 1852416
[Parsed_volumedetect_0 @ 0x55f] mean_volume: -21.5 dB
[Parsed_volumedetect_0 @ 0x55f] max_volume: -3.2 dB
`
	score, err := parseLoudness(stderr)
	require.NoError(t, err)

	// ((-21.5+60)/60)*100 = 64.17, rounded.
	assert.Equal(t, 64, score)
}

func TestParseLoudnessMissing(t *testing.T) {
	_, err := parseLoudness("ffmpeg version n6.0 ...")
	assert.Error(t, err)
}

func TestLoudnessScoreClamps(t *testing.T) {
	assert.Equal(t, 0, loudnessScore(-90))
	assert.Equal(t, 0, loudnessScore(-60))
	assert.Equal(t, 50, loudnessScore(-30))
	assert.Equal(t, 100, loudnessScore(0))
	assert.Equal(t, 100, loudnessScore(6))
}

func TestLoudnessScoreRounds(t *testing.T) {
	// -21.5 dB maps to 64.1666..., which rounds down.
	assert.Equal(t, 64, loudnessScore(-21.5))
	// -21.2 dB maps to 64.666..., which rounds up.
	assert.Equal(t, 65, loudnessScore(-21.2))
}
