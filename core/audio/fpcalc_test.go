package audio

import (
	"context"
	"testing"

	"echoheritage/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFpcalcOutput(t *testing.T) {
	output := "DURATION=30\nFINGERPRINT=1226319490,1226319666,1243097218\n"

	fp, err := parseFpcalcOutput(output)
	require.NoError(t, err)
	assert.Equal(t, model.FingerprintData{1226319490, 1226319666, 1243097218}, fp)
}

func TestParseFpcalcOutputLargeValues(t *testing.T) {
	// Raw chromaprint values use the full uint32 range.
	fp, err := parseFpcalcOutput("FINGERPRINT=4294967295,0\n")
	require.NoError(t, err)
	assert.Equal(t, model.FingerprintData{4294967295, 0}, fp)
}

func TestParseFpcalcOutputNoFingerprintLine(t *testing.T) {
	_, err := parseFpcalcOutput("DURATION=30\n")
	assert.Error(t, err)
}

func TestParseFpcalcOutputGarbageValue(t *testing.T) {
	_, err := parseFpcalcOutput("FINGERPRINT=123,abc,456\n")
	assert.Error(t, err)
}

func TestFingerprintRejectsEmptyBuffer(t *testing.T) {
	f := NewFpcalc("fpcalc")
	_, err := f.Fingerprint(context.Background(), nil)
	assert.Error(t, err)
}
