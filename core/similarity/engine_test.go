package similarity

import (
	"testing"

	"echoheritage/model"

	"github.com/stretchr/testify/assert"
)

func TestContainmentIdentical(t *testing.T) {
	fp := model.FingerprintData{10, 20, 30}
	assert.Equal(t, 100.0, Containment(fp, fp))
}

func TestContainmentSubsetScoresFull(t *testing.T) {
	short := model.FingerprintData{10, 20, 30}
	long := model.FingerprintData{10, 20, 30, 40}

	// The denominator is the smaller set, so full containment of the short
	// side scores 100 regardless of argument order.
	assert.Equal(t, 100.0, Containment(short, long))
	assert.Equal(t, 100.0, Containment(long, short))
}

func TestContainmentPartialOverlap(t *testing.T) {
	a := model.FingerprintData{10, 99, 98, 97}
	b := model.FingerprintData{10, 20, 30, 40}

	// 1 shared value over min set size 4.
	assert.Equal(t, 25.0, Containment(a, b))
}

func TestContainmentEmptyIsZero(t *testing.T) {
	fp := model.FingerprintData{1, 2, 3}
	assert.Equal(t, 0.0, Containment(nil, fp))
	assert.Equal(t, 0.0, Containment(fp, model.FingerprintData{}))
	assert.Equal(t, 0.0, Containment(nil, nil))
}

func TestContainmentDuplicatesCollapse(t *testing.T) {
	withDupes := model.FingerprintData{5, 5, 5, 7}
	other := model.FingerprintData{5, 7, 9}

	// {5,7} against {5,7,9}: both shared, min set size 2.
	assert.Equal(t, 100.0, Containment(withDupes, other))
}

func TestContainmentSymmetric(t *testing.T) {
	a := model.FingerprintData{1, 2, 3, 4, 5}
	b := model.FingerprintData{4, 5, 6}
	assert.Equal(t, Containment(a, b), Containment(b, a))
}

func corpus() []model.FingerprintRecord {
	return []model.FingerprintRecord{
		{ID: 1, SoundID: "h-1", SourceKind: model.SourceHeritage, FingerprintData: model.FingerprintData{1, 2, 3}},
		{ID: 2, SoundID: "h-2", SourceKind: model.SourceHeritage, FingerprintData: model.FingerprintData{10, 20, 30, 40}},
		{ID: 3, SoundID: "f-1", SourceKind: model.SourceFusion, FingerprintData: model.FingerprintData{10, 20, 30}},
	}
}

func TestCompareFirstMatchWins(t *testing.T) {
	candidate := model.FingerprintData{10, 20, 30}

	// Both h-2 and f-1 clear the threshold; the scan must stop on h-2
	// because it comes first in storage order.
	res := Compare(candidate, corpus(), "", 90)
	assert.NotNil(t, res.Matched)
	assert.Equal(t, "h-2", res.Matched.SoundID)
	assert.Equal(t, 100.0, res.Score)
}

func TestCompareNoMatchBelowThreshold(t *testing.T) {
	candidate := model.FingerprintData{100, 200, 300}

	res := Compare(candidate, corpus(), "", 95)
	assert.Nil(t, res.Matched)
}

func TestCompareThresholdIsInclusive(t *testing.T) {
	candidate := model.FingerprintData{10, 99, 98, 97}
	records := []model.FingerprintRecord{
		{SoundID: "h-2", FingerprintData: model.FingerprintData{10, 20, 30, 40}},
	}

	// Score is exactly 25; a threshold of 25 must match.
	res := Compare(candidate, records, "", 25)
	assert.NotNil(t, res.Matched)
	assert.Equal(t, 25.0, res.Score)

	res = Compare(candidate, records, "", 25.01)
	assert.Nil(t, res.Matched)
}

func TestCompareExcludesOwnSoundID(t *testing.T) {
	candidate := model.FingerprintData{10, 20, 30, 40}

	res := Compare(candidate, corpus(), "h-2", 95)
	assert.NotNil(t, res.Matched)
	assert.Equal(t, "f-1", res.Matched.SoundID, "exclusion must skip only the edited track")

	records := []model.FingerprintRecord{
		{SoundID: "h-2", FingerprintData: candidate},
	}
	res = Compare(candidate, records, "h-2", 95)
	assert.Nil(t, res.Matched, "a track must not flag itself during re-validation")
}

func TestCompareEmptyCandidateNeverMatches(t *testing.T) {
	res := Compare(nil, corpus(), "", 0)
	assert.Nil(t, res.Matched)
	assert.Equal(t, 0.0, res.Score)
}

func TestCompareEmptyCorpus(t *testing.T) {
	res := Compare(model.FingerprintData{1, 2, 3}, nil, "", 50)
	assert.Nil(t, res.Matched)
	assert.Equal(t, 0.0, res.Score)
}

func TestCompareSkipsEmptyStoredFingerprints(t *testing.T) {
	records := []model.FingerprintRecord{
		{SoundID: "empty", FingerprintData: model.FingerprintData{}},
	}
	res := Compare(model.FingerprintData{1, 2, 3}, records, "", 1)
	assert.Nil(t, res.Matched, "empty stored fingerprints score 0 and cannot reach a positive threshold")
}

func TestCompareEmptyNeverMatchesAtZeroThreshold(t *testing.T) {
	// A non-positive threshold must not turn an empty fingerprint's
	// defined-as-zero score into a match on either side.
	res := Compare(nil, corpus(), "", 0)
	assert.Nil(t, res.Matched)
	assert.Equal(t, 0.0, res.Score)

	records := []model.FingerprintRecord{
		{SoundID: "empty", FingerprintData: model.FingerprintData{}},
	}
	res = Compare(model.FingerprintData{1, 2, 3}, records, "", 0)
	assert.Nil(t, res.Matched)

	res = Compare(nil, records, "", -5)
	assert.Nil(t, res.Matched)
}
