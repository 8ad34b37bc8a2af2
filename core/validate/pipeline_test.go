package validate

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"echoheritage/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMetrics struct {
	duration    float64
	loudness    int
	durationErr error
	loudnessErr error
}

func (f *fakeMetrics) Duration(ctx context.Context, data []byte) (float64, error) {
	return f.duration, f.durationErr
}

func (f *fakeMetrics) Loudness(ctx context.Context, data []byte) (int, error) {
	return f.loudness, f.loudnessErr
}

type fakePrints struct {
	fp  model.FingerprintData
	err error
}

func (f *fakePrints) Fingerprint(ctx context.Context, data []byte) (model.FingerprintData, error) {
	return f.fp, f.err
}

type fixedThresholds struct {
	th Thresholds
}

func (f fixedThresholds) Current(ctx context.Context) Thresholds { return f.th }

type fakeCorpus struct {
	records []model.FingerprintRecord
	err     error
}

func (f *fakeCorpus) AllFingerprints(ctx context.Context) ([]model.FingerprintRecord, error) {
	return f.records, f.err
}

type fakeSummaries struct {
	heritage map[string]*model.TrackSummary
	fusion   map[string]*model.TrackSummary
}

func (f *fakeSummaries) HeritageSummary(ctx context.Context, soundID string) (*model.TrackSummary, error) {
	return f.heritage[soundID], nil
}

func (f *fakeSummaries) FusionSummary(ctx context.Context, soundID string) (*model.TrackSummary, error) {
	return f.fusion[soundID], nil
}

type fakeLock struct {
	held     bool
	acquires int
	releases int
}

func (l *fakeLock) Acquire(ctx context.Context, key string) (func(), error) {
	l.held = true
	l.acquires++
	return func() {
		l.held = false
		l.releases++
	}, nil
}

func passingPipeline() (*Pipeline, *fakeLock) {
	lock := &fakeLock{}
	p := &Pipeline{
		Metrics: &fakeMetrics{duration: 30, loudness: 60},
		Prints:  &fakePrints{fp: model.FingerprintData{1, 2, 3}},
		Config:  fixedThresholds{th: DefaultThresholds()},
		Corpus:  &fakeCorpus{},
		Summaries: &fakeSummaries{
			heritage: map[string]*model.TrackSummary{},
			fusion:   map[string]*model.TrackSummary{},
		},
		Lock: lock,
	}
	return p, lock
}

func TestValidatePassReportsMetrics(t *testing.T) {
	p, _ := passingPipeline()

	rep, err := p.Validate(context.Background(), []byte("audio"), "", nil)
	require.NoError(t, err)
	assert.Equal(t, 30.0, rep.Duration)
	assert.Equal(t, 60, rep.Loudness)
	assert.Equal(t, model.FingerprintData{1, 2, 3}, rep.Fingerprint)
	assert.Equal(t, DefaultThresholds(), rep.Thresholds)
}

func TestValidateDurationBounds(t *testing.T) {
	cases := []struct {
		name     string
		duration float64
		rejected bool
	}{
		{"below min", 9.9, true},
		{"exactly min", 10, false},
		{"inside", 60, false},
		{"exactly max", 120, false},
		{"above max", 120.1, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, _ := passingPipeline()
			p.Metrics = &fakeMetrics{duration: tc.duration, loudness: 60}

			_, err := p.Validate(context.Background(), []byte("audio"), "", nil)
			if !tc.rejected {
				assert.NoError(t, err)
				return
			}
			var rej *Rejection
			require.ErrorAs(t, err, &rej)
			assert.Equal(t, StepDuration, rej.Step)
		})
	}
}

func TestValidateLoudnessThresholdInclusive(t *testing.T) {
	p, _ := passingPipeline()
	p.Metrics = &fakeMetrics{duration: 30, loudness: 20}

	// Loudness equal to the threshold passes.
	_, err := p.Validate(context.Background(), []byte("audio"), "", nil)
	assert.NoError(t, err)

	p.Metrics = &fakeMetrics{duration: 30, loudness: 19}
	_, err = p.Validate(context.Background(), []byte("audio"), "", nil)
	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, StepLoudness, rej.Step)
}

func TestValidateFingerprintFailureIsTypedRejection(t *testing.T) {
	p, _ := passingPipeline()
	p.Prints = &fakePrints{err: errors.New("fpcalc exploded")}

	_, err := p.Validate(context.Background(), []byte("audio"), "", nil)
	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, StepFingerprint, rej.Step)
	assert.Equal(t, "fingerprint generation failed", rej.Message)
}

func TestValidateSimilarityRejection(t *testing.T) {
	p, _ := passingPipeline()
	p.Prints = &fakePrints{fp: model.FingerprintData{10, 20, 30}}
	p.Config = fixedThresholds{th: Thresholds{
		MinAudioLength: 10, MaxAudioLength: 120,
		MaxSimilarityAllowed: 90, MinVolumeThreshold: 20,
	}}
	p.Corpus = &fakeCorpus{records: []model.FingerprintRecord{
		{SoundID: "existing", SourceKind: model.SourceHeritage, FingerprintData: model.FingerprintData{10, 20, 30, 40}},
	}}
	p.Summaries = &fakeSummaries{
		heritage: map[string]*model.TrackSummary{
			"existing": {SoundID: "existing", Title: "River Chant"},
		},
	}

	persisted := false
	_, err := p.Validate(context.Background(), []byte("audio"), "", func(ctx context.Context, rep *Report) error {
		persisted = true
		return nil
	})

	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, StepSimilarity, rej.Step)
	assert.Equal(t, 100.0, rej.Score)
	assert.Equal(t, model.SourceHeritage, rej.Source)
	require.NotNil(t, rej.SimilarTrack)
	assert.Equal(t, "River Chant", rej.SimilarTrack.Title)
	assert.False(t, persisted, "a rejected upload must not persist")
}

func TestValidateLowOverlapPasses(t *testing.T) {
	p, _ := passingPipeline()
	p.Prints = &fakePrints{fp: model.FingerprintData{10, 99, 98, 97}}
	p.Config = fixedThresholds{th: Thresholds{
		MinAudioLength: 10, MaxAudioLength: 120,
		MaxSimilarityAllowed: 50, MinVolumeThreshold: 20,
	}}
	p.Corpus = &fakeCorpus{records: []model.FingerprintRecord{
		{SoundID: "existing", SourceKind: model.SourceHeritage, FingerprintData: model.FingerprintData{10, 20, 30, 40}},
	}}

	// Single shared value gives 25% containment, below the 50% limit.
	_, err := p.Validate(context.Background(), []byte("audio"), "", nil)
	assert.NoError(t, err)
}

func TestValidateExcludesOwnRecordOnEdit(t *testing.T) {
	fp := model.FingerprintData{10, 20, 30}
	p, _ := passingPipeline()
	p.Prints = &fakePrints{fp: fp}
	p.Corpus = &fakeCorpus{records: []model.FingerprintRecord{
		{SoundID: "mine", SourceKind: model.SourceHeritage, FingerprintData: fp},
	}}

	_, err := p.Validate(context.Background(), []byte("audio"), "mine", nil)
	assert.NoError(t, err, "an edited track must not match its own stored fingerprint")
}

func TestValidateOrphanedFingerprintSkipped(t *testing.T) {
	fp := model.FingerprintData{10, 20, 30}
	p, _ := passingPipeline()
	p.Prints = &fakePrints{fp: fp}
	p.Config = fixedThresholds{th: Thresholds{
		MinAudioLength: 10, MaxAudioLength: 120,
		MaxSimilarityAllowed: 90, MinVolumeThreshold: 20,
	}}
	p.Corpus = &fakeCorpus{records: []model.FingerprintRecord{
		{SoundID: "ghost", SourceKind: model.SourceHeritage, FingerprintData: fp},
		{SoundID: "alive", SourceKind: model.SourceFusion, FingerprintData: fp},
	}}
	p.Summaries = &fakeSummaries{
		heritage: map[string]*model.TrackSummary{},
		fusion: map[string]*model.TrackSummary{
			"alive": {SoundID: "alive", Title: "Saved Fusion"},
		},
	}

	_, err := p.Validate(context.Background(), []byte("audio"), "", nil)
	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "Saved Fusion", rej.SimilarTrack.Title, "the scan must resume past the orphan")
	assert.Equal(t, model.SourceFusion, rej.Source)
}

func TestValidateOrphanOnlyCorpusPasses(t *testing.T) {
	fp := model.FingerprintData{10, 20, 30}
	p, _ := passingPipeline()
	p.Prints = &fakePrints{fp: fp}
	p.Corpus = &fakeCorpus{records: []model.FingerprintRecord{
		{SoundID: "ghost", SourceKind: model.SourceHeritage, FingerprintData: fp},
	}}
	p.Config = fixedThresholds{th: Thresholds{
		MinAudioLength: 10, MaxAudioLength: 120,
		MaxSimilarityAllowed: 50, MinVolumeThreshold: 20,
	}}

	_, err := p.Validate(context.Background(), []byte("audio"), "", nil)
	assert.NoError(t, err, "matches that resolve to no live track cannot reject the upload")
}

func TestValidatePersistRunsInsideLock(t *testing.T) {
	p, lock := passingPipeline()

	_, err := p.Validate(context.Background(), []byte("audio"), "", func(ctx context.Context, rep *Report) error {
		assert.True(t, lock.held, "persist must run while the upload lock is held")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, lock.acquires)
	assert.Equal(t, 1, lock.releases)
}

func TestValidatePersistErrorPropagates(t *testing.T) {
	p, lock := passingPipeline()

	boom := fmt.Errorf("disk full")
	_, err := p.Validate(context.Background(), []byte("audio"), "", func(ctx context.Context, rep *Report) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	var rej *Rejection
	assert.False(t, errors.As(err, &rej), "persist failures are infrastructure errors, not rejections")
	assert.Equal(t, 1, lock.releases, "the lock must be released even when persist fails")
}

func TestValidateNilPersistIsProbe(t *testing.T) {
	p, lock := passingPipeline()

	rep, err := p.Validate(context.Background(), []byte("audio"), "", nil)
	require.NoError(t, err)
	assert.NotNil(t, rep)
	assert.Equal(t, 1, lock.releases)
}

func TestValidateCorpusErrorIsNotRejection(t *testing.T) {
	p, _ := passingPipeline()
	p.Corpus = &fakeCorpus{err: errors.New("db down")}

	_, err := p.Validate(context.Background(), []byte("audio"), "", nil)
	require.Error(t, err)
	var rej *Rejection
	assert.False(t, errors.As(err, &rej))
}
