package validate

import (
	"context"
	"errors"
	"testing"

	"echoheritage/model"

	"github.com/stretchr/testify/assert"
)

type fakeControls struct {
	row *model.SystemControls
	err error
}

func (f *fakeControls) FirstControls(ctx context.Context) (*model.SystemControls, error) {
	return f.row, f.err
}

func TestCurrentUsesDefaultsWhenRowMissing(t *testing.T) {
	src := &DBThresholdSource{Controls: &fakeControls{}}
	assert.Equal(t, DefaultThresholds(), src.Current(context.Background()))
}

func TestCurrentUsesDefaultsOnError(t *testing.T) {
	src := &DBThresholdSource{Controls: &fakeControls{err: errors.New("db down")}}

	// Configuration failures must never block uploads.
	assert.Equal(t, DefaultThresholds(), src.Current(context.Background()))
}

func TestCurrentUsesStoredValues(t *testing.T) {
	src := &DBThresholdSource{Controls: &fakeControls{row: &model.SystemControls{
		MinAudioLength:       5,
		MaxAudioLength:       300,
		MaxSimilarityAllowed: 80,
		MinVolumeThreshold:   35,
	}}}

	th := src.Current(context.Background())
	assert.Equal(t, 5.0, th.MinAudioLength)
	assert.Equal(t, 300.0, th.MaxAudioLength)
	assert.Equal(t, 80.0, th.MaxSimilarityAllowed)
	assert.Equal(t, 35.0, th.MinVolumeThreshold)
}

func TestCurrentFallsBackPerField(t *testing.T) {
	// Only max_audio_length is set; every zero field falls back individually.
	src := &DBThresholdSource{Controls: &fakeControls{row: &model.SystemControls{
		MaxAudioLength: 600,
	}}}

	th := src.Current(context.Background())
	assert.Equal(t, 10.0, th.MinAudioLength)
	assert.Equal(t, 600.0, th.MaxAudioLength)
	assert.Equal(t, 95.0, th.MaxSimilarityAllowed)
	assert.Equal(t, 20.0, th.MinVolumeThreshold)
}

func TestCurrentNilSourceUsesDefaults(t *testing.T) {
	var src *DBThresholdSource
	assert.Equal(t, DefaultThresholds(), src.Current(context.Background()))
}

func TestDefaultThresholds(t *testing.T) {
	th := DefaultThresholds()
	assert.Equal(t, 10.0, th.MinAudioLength)
	assert.Equal(t, 120.0, th.MaxAudioLength)
	assert.Equal(t, 95.0, th.MaxSimilarityAllowed)
	assert.Equal(t, 20.0, th.MinVolumeThreshold)
}
