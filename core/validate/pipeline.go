package validate

import (
	"context"
	"fmt"

	"echoheritage/core/similarity"
	"echoheritage/logger"
	"echoheritage/model"
)

// MetricsAnalyzer measures raw audio bytes.
type MetricsAnalyzer interface {
	Duration(ctx context.Context, data []byte) (float64, error)
	Loudness(ctx context.Context, data []byte) (int, error)
}

// Fingerprinter extracts an acoustic fingerprint from raw audio bytes.
type Fingerprinter interface {
	Fingerprint(ctx context.Context, data []byte) (model.FingerprintData, error)
}

// ThresholdSource supplies the validation limits. Implementations never fail;
// they degrade to defaults instead.
type ThresholdSource interface {
	Current(ctx context.Context) Thresholds
}

// CorpusSource fetches every stored fingerprint, heritage before fusion.
type CorpusSource interface {
	AllFingerprints(ctx context.Context) ([]model.FingerprintRecord, error)
}

// SummarySource resolves a matched fingerprint to a displayable track summary.
// Either lookup may return nil when the owning record no longer exists.
type SummarySource interface {
	HeritageSummary(ctx context.Context, soundID string) (*model.TrackSummary, error)
	FusionSummary(ctx context.Context, soundID string) (*model.TrackSummary, error)
}

// Locker serializes the similarity-check-plus-persist critical section across
// concurrent uploads. A nil Locker on the pipeline disables serialization.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// uploadLockKey is a single advisory lock name: all uploads that reach the
// similarity stage serialize on it, so two in-flight near-duplicates cannot
// both pass against a corpus that predates either write.
const uploadLockKey = "upload-validate"

// Report is what a passing upload learned about itself.
type Report struct {
	Duration    float64
	Loudness    int
	Fingerprint model.FingerprintData
	Thresholds  Thresholds
}

// Pipeline sequences the upload validation stages. Each stage is a potential
// rejection point; a rejection short-circuits everything after it.
type Pipeline struct {
	Metrics   MetricsAnalyzer
	Prints    Fingerprinter
	Config    ThresholdSource
	Corpus    CorpusSource
	Summaries SummarySource
	Lock      Locker
}

// Validate runs duration → loudness → fingerprint → similarity over the audio
// buffer. excludeSoundID skips that track's own corpus records during an edit
// re-validation. When persist is non-nil it runs inside the similarity lock
// after all stages pass, so the corpus cannot change between the scan and the
// write; a nil persist turns the call into a pure probe.
//
// The returned error is a *Rejection for user-correctable failures and an
// opaque error for infrastructure failures.
func (p *Pipeline) Validate(ctx context.Context, audio []byte, excludeSoundID string, persist func(ctx context.Context, rep *Report) error) (*Report, error) {
	th := p.Config.Current(ctx)
	rep := &Report{Thresholds: th}

	duration, err := p.Metrics.Duration(ctx, audio)
	if err != nil {
		return nil, fmt.Errorf("duration analysis failed: %w", err)
	}
	rep.Duration = duration
	// Inclusive bounds: exactly min or exactly max passes.
	if duration < th.MinAudioLength || duration > th.MaxAudioLength {
		return nil, &Rejection{
			Step: StepDuration,
			Message: fmt.Sprintf("audio duration (%.1fs) must be between %gs and %gs",
				duration, th.MinAudioLength, th.MaxAudioLength),
		}
	}

	loudness, err := p.Metrics.Loudness(ctx, audio)
	if err != nil {
		return nil, fmt.Errorf("loudness analysis failed: %w", err)
	}
	rep.Loudness = loudness
	if float64(loudness) < th.MinVolumeThreshold {
		return nil, &Rejection{
			Step: StepLoudness,
			Message: fmt.Sprintf("audio is not audible (volume: %d/100), minimum required %g%%",
				loudness, th.MinVolumeThreshold),
		}
	}

	fp, err := p.Prints.Fingerprint(ctx, audio)
	if err != nil {
		logger.Error("fingerprint extraction failed", logger.ErrorField(err))
		return nil, &Rejection{
			Step:    StepFingerprint,
			Message: "fingerprint generation failed",
		}
	}
	rep.Fingerprint = fp

	if p.Lock != nil {
		release, err := p.Lock.Acquire(ctx, uploadLockKey)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize upload: %w", err)
		}
		defer release()
	}

	if rej, err := p.checkSimilarity(ctx, fp, excludeSoundID, th); err != nil {
		return nil, err
	} else if rej != nil {
		return nil, rej
	}

	if persist != nil {
		if err := persist(ctx, rep); err != nil {
			return nil, err
		}
	}
	return rep, nil
}

// checkSimilarity scans the corpus and builds the rejection payload for the
// first record above threshold that still resolves to a live track. A matched
// record whose owning track has disappeared is skipped and the scan resumes
// past it, mirroring first-match semantics over resolvable records only.
func (p *Pipeline) checkSimilarity(ctx context.Context, fp model.FingerprintData, excludeSoundID string, th Thresholds) (*Rejection, error) {
	corpus, err := p.Corpus.AllFingerprints(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load fingerprint corpus: %w", err)
	}

	remaining := corpus
	for len(remaining) > 0 {
		res := similarity.Compare(fp, remaining, excludeSoundID, th.MaxSimilarityAllowed)
		if res.Matched == nil {
			return nil, nil
		}

		summary, err := p.resolveSummary(ctx, res.Matched)
		if err != nil {
			return nil, err
		}
		if summary == nil {
			// Orphaned fingerprint: keep scanning after it.
			for i := range remaining {
				if &remaining[i] == res.Matched {
					remaining = remaining[i+1:]
					break
				}
			}
			continue
		}

		logger.Info("upload rejected as near-duplicate",
			logger.String("matchedSoundId", res.Matched.SoundID),
			logger.String("source", string(res.Matched.SourceKind)),
			logger.Float64("score", res.Score))

		return &Rejection{
			Step:         StepSimilarity,
			Message:      fmt.Sprintf("similar audio already exists (%.2f%% similarity)", res.Score),
			SimilarTrack: summary,
			Source:       res.Matched.SourceKind,
			Score:        res.Score,
		}, nil
	}
	return nil, nil
}

func (p *Pipeline) resolveSummary(ctx context.Context, rec *model.FingerprintRecord) (*model.TrackSummary, error) {
	if rec.SourceKind == model.SourceFusion {
		s, err := p.Summaries.FusionSummary(ctx, rec.SoundID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve fusion summary for %s: %w", rec.SoundID, err)
		}
		return s, nil
	}
	s, err := p.Summaries.HeritageSummary(ctx, rec.SoundID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve heritage summary for %s: %w", rec.SoundID, err)
	}
	return s, nil
}
