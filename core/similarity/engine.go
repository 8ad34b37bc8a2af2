// Package similarity implements the containment-similarity duplicate check
// over the stored fingerprint corpus.
package similarity

import (
	"echoheritage/model"
)

// Result is the transient outcome of one corpus scan. Matched is nil when no
// corpus item reached the threshold ("pass"); otherwise it points at the
// first item in storage order that did.
type Result struct {
	Score   float64
	Matched *model.FingerprintRecord
}

// Containment returns |A∩B| / min(|A|,|B|) * 100 over the integer sets of two
// fingerprints. Duplicates within one fingerprint collapse, so a short
// fingerprint fully contained in a long one scores 100 regardless of which
// side it appears on. Either side empty scores 0.
func Containment(a, b model.FingerprintData) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	setA := make(map[uint32]struct{}, len(a))
	for _, v := range a {
		setA[v] = struct{}{}
	}
	setB := make(map[uint32]struct{}, len(b))
	for _, v := range b {
		setB[v] = struct{}{}
	}

	small, large := setA, setB
	if len(setB) < len(setA) {
		small, large = setB, setA
	}

	common := 0
	for v := range small {
		if _, ok := large[v]; ok {
			common++
		}
	}

	return float64(common) / float64(len(small)) * 100
}

// Compare scans the corpus in storage order and returns the FIRST record
// whose containment score with the candidate meets or exceeds
// thresholdPercent. This is deliberately not a best-match search: the scan
// exits on the first threshold breach, so the reported match may not be the
// globally closest one. Records with sound_id == excludeSoundID are skipped,
// which keeps a track from flagging itself during an edit re-validation.
// Empty fingerprints never match: an empty candidate skips the scan entirely
// and empty stored records are skipped, so a non-positive threshold cannot
// turn a defined-as-zero score into a spurious match.
func Compare(candidate model.FingerprintData, corpus []model.FingerprintRecord, excludeSoundID string, thresholdPercent float64) Result {
	if len(candidate) == 0 {
		return Result{}
	}

	var last float64
	for i := range corpus {
		rec := &corpus[i]
		if excludeSoundID != "" && rec.SoundID == excludeSoundID {
			continue
		}
		if len(rec.FingerprintData) == 0 {
			continue
		}

		score := Containment(candidate, rec.FingerprintData)
		last = score
		if score >= thresholdPercent {
			return Result{Score: score, Matched: rec}
		}
	}
	return Result{Score: last, Matched: nil}
}
