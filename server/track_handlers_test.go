package server

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"echoheritage/core/feed"
	"echoheritage/core/validate"
	"echoheritage/mailer"
	"echoheritage/model"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubValidator struct {
	rep          *validate.Report
	err          error
	gotAudio     []byte
	gotExclude   string
	persistCalls int
}

func (s *stubValidator) Validate(ctx context.Context, audio []byte, excludeSoundID string, persist func(ctx context.Context, rep *validate.Report) error) (*validate.Report, error) {
	s.gotAudio = audio
	s.gotExclude = excludeSoundID
	if s.err != nil {
		return nil, s.err
	}
	if persist != nil {
		s.persistCalls++
		if err := persist(ctx, s.rep); err != nil {
			return nil, err
		}
	}
	return s.rep, nil
}

func uploadRequest(t *testing.T, target string, fields map[string]string, audio []byte) *http.Request {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if audio != nil {
		fw, err := writer.CreateFormFile("sound_track_url", "upload.mp3")
		require.NoError(t, err)
		_, err = fw.Write(audio)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func handlerWith(v trackValidator) *APIHandler {
	return &APIHandler{
		validator: v,
		mail:      mailer.NopMailer{},
		hub:       feed.NewHub(),
	}
}

// fakeTrackRepo keeps tracks in memory. Lookups of unknown ids propagate
// sql.ErrNoRows like the MySQL implementation.
type fakeTrackRepo struct {
	tracks  map[string]*model.Track
	deleted []string
}

func newFakeTrackRepo(tracks ...*model.Track) *fakeTrackRepo {
	m := make(map[string]*model.Track, len(tracks))
	for _, tr := range tracks {
		m[tr.SoundID] = tr
	}
	return &fakeTrackRepo{tracks: m}
}

func (f *fakeTrackRepo) CreateTrack(ctx context.Context, track *model.Track) (int64, error) {
	f.tracks[track.SoundID] = track
	return int64(len(f.tracks)), nil
}

func (f *fakeTrackRepo) UpdateTrack(ctx context.Context, track *model.Track) error {
	f.tracks[track.SoundID] = track
	return nil
}

func (f *fakeTrackRepo) GetTrackBySoundID(ctx context.Context, soundID string) (*model.Track, error) {
	tr, ok := f.tracks[soundID]
	if !ok {
		return nil, fmt.Errorf("track %s: %w", soundID, sql.ErrNoRows)
	}
	return tr, nil
}

func (f *fakeTrackRepo) GetAllTracks(ctx context.Context) ([]*model.Track, error) {
	out := make([]*model.Track, 0, len(f.tracks))
	for _, tr := range f.tracks {
		out = append(out, tr)
	}
	return out, nil
}

func (f *fakeTrackRepo) DeleteTrack(ctx context.Context, soundID string) error {
	delete(f.tracks, soundID)
	f.deleted = append(f.deleted, soundID)
	return nil
}

func (f *fakeTrackRepo) SetApproval(ctx context.Context, soundID string, approved bool) (*model.Track, error) {
	tr, err := f.GetTrackBySoundID(ctx, soundID)
	if err != nil {
		return nil, err
	}
	tr.IsApproved = approved
	return tr, nil
}

func (f *fakeTrackRepo) IncrementFusionCount(ctx context.Context, soundID string) error {
	return nil
}

func (f *fakeTrackRepo) SummaryBySoundID(ctx context.Context, soundID string) (*model.TrackSummary, error) {
	tr, ok := f.tracks[soundID]
	if !ok {
		return nil, nil
	}
	return &model.TrackSummary{SoundID: tr.SoundID, Title: tr.Title}, nil
}

type fakeBlobs struct {
	uploads []string
	removed []string
}

func (f *fakeBlobs) Upload(ctx context.Context, objectPath string, r io.Reader, size int64, contentType string) error {
	f.uploads = append(f.uploads, objectPath)
	return nil
}

func (f *fakeBlobs) Remove(ctx context.Context, objectPath string) error {
	f.removed = append(f.removed, objectPath)
	return nil
}

func (f *fakeBlobs) Fetch(ctx context.Context, objectPath string) ([]byte, error) {
	return nil, fmt.Errorf("no blob at %s", objectPath)
}

func (f *fakeBlobs) PublicURL(objectPath string) string {
	return "/static/" + objectPath
}

type fakeFingerprintRepo struct{}

func (fakeFingerprintRepo) AllFingerprints(ctx context.Context) ([]model.FingerprintRecord, error) {
	return nil, nil
}
func (fakeFingerprintRepo) UpsertHeritage(ctx context.Context, soundID string, data model.FingerprintData) error {
	return nil
}
func (fakeFingerprintRepo) InsertFusion(ctx context.Context, soundID string, data model.FingerprintData) error {
	return nil
}
func (fakeFingerprintRepo) DeleteHeritage(ctx context.Context, soundID string) error { return nil }
func (fakeFingerprintRepo) DeleteFusion(ctx context.Context, soundID string) error   { return nil }

func TestUploadRejectionContract(t *testing.T) {
	v := &stubValidator{err: &validate.Rejection{
		Step:    validate.StepSimilarity,
		Message: "similar audio already exists (97.20% similarity)",
		SimilarTrack: &model.TrackSummary{
			SoundID: "existing",
			Title:   "River Chant",
		},
		Source: model.SourceHeritage,
		Score:  97.2,
	}}
	h := handlerWith(v)

	rec := httptest.NewRecorder()
	req := uploadRequest(t, "/api/tracks", map[string]string{"sound_id": "new-song-1", "title": "New Song"}, []byte("audio-bytes"))
	h.UploadTrackHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body struct {
		Error        string              `json:"error"`
		Step         string              `json:"step"`
		Source       string              `json:"source"`
		SimilarTrack *model.TrackSummary `json:"similarTrack"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "similar audio already exists (97.20% similarity)", body.Error)
	assert.Equal(t, "similarity", body.Step)
	assert.Equal(t, "heritage", body.Source)
	require.NotNil(t, body.SimilarTrack)
	assert.Equal(t, "existing", body.SimilarTrack.SoundID)
}

func TestUploadRejectionWithoutMatchHasNullFields(t *testing.T) {
	v := &stubValidator{err: &validate.Rejection{
		Step:    validate.StepDuration,
		Message: "audio duration (5.0s) must be between 10s and 120s",
	}}
	h := handlerWith(v)

	rec := httptest.NewRecorder()
	req := uploadRequest(t, "/api/tracks", map[string]string{"sound_id": "too-short-1", "title": "Too Short"}, []byte("x"))
	h.UploadTrackHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// The keys are part of the contract on every rejection, null when the
	// stage carries no match.
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "duration", body["step"])
	assert.Contains(t, body, "similarTrack")
	assert.Contains(t, body, "source")
	assert.Nil(t, body["similarTrack"])
	assert.Nil(t, body["source"])
}

func TestUploadMissingTitle(t *testing.T) {
	h := handlerWith(&stubValidator{})

	rec := httptest.NewRecorder()
	req := uploadRequest(t, "/api/tracks", nil, []byte("x"))
	h.UploadTrackHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadMissingFile(t *testing.T) {
	h := handlerWith(&stubValidator{})

	rec := httptest.NewRecorder()
	req := uploadRequest(t, "/api/tracks", map[string]string{"title": "No Audio"}, nil)
	h.UploadTrackHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIdentifySimilarityReportsMatch(t *testing.T) {
	v := &stubValidator{err: &validate.Rejection{
		Step:         validate.StepSimilarity,
		Message:      "similar audio already exists (100.00% similarity)",
		SimilarTrack: &model.TrackSummary{SoundID: "existing", Title: "River Chant"},
		Source:       model.SourceFusion,
		Score:        100,
	}}
	h := handlerWith(v)

	rec := httptest.NewRecorder()
	req := uploadRequest(t, "/api/tracks/identify", nil, []byte("probe"))
	h.IdentifyTrackHandler(rec, req)

	// Identify treats a similarity hit as the answer, not an error.
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Matched      bool                `json:"matched"`
		Score        float64             `json:"score"`
		Source       string              `json:"source"`
		SimilarTrack *model.TrackSummary `json:"similarTrack"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Matched)
	assert.Equal(t, 100.0, body.Score)
	assert.Equal(t, "fusion", body.Source)
	require.NotNil(t, body.SimilarTrack)
}

func TestIdentifyCleanAudioReportsNoMatch(t *testing.T) {
	v := &stubValidator{rep: &validate.Report{Duration: 42, Loudness: 70}}
	h := handlerWith(v)

	rec := httptest.NewRecorder()
	req := uploadRequest(t, "/api/tracks/identify", nil, []byte("probe"))
	h.IdentifyTrackHandler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["matched"])
	assert.Equal(t, 42.0, body["duration"])
	assert.Equal(t, 0, v.persistCalls, "identify must never persist")
}

func TestUploadKeepsClientSoundID(t *testing.T) {
	v := &stubValidator{rep: &validate.Report{Duration: 30, Loudness: 60, Fingerprint: model.FingerprintData{1, 2, 3}}}
	h := handlerWith(v)
	h.trackRepo = newFakeTrackRepo()
	h.fingerprintRepo = fakeFingerprintRepo{}
	h.blobs = &fakeBlobs{}

	rec := httptest.NewRecorder()
	req := uploadRequest(t, "/api/tracks", map[string]string{"sound_id": "drum-circle-7", "title": "Drum Circle"}, []byte("audio"))
	h.UploadTrackHandler(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var body struct {
		Track *model.Track `json:"track"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.Track)
	assert.Equal(t, "drum-circle-7", body.Track.SoundID)
}

func TestUploadMissingSoundID(t *testing.T) {
	h := handlerWith(&stubValidator{})

	rec := httptest.NewRecorder()
	req := uploadRequest(t, "/api/tracks", map[string]string{"title": "No ID"}, []byte("x"))
	h.UploadTrackHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetTrackNotFound(t *testing.T) {
	h := handlerWith(&stubValidator{})
	h.trackRepo = newFakeTrackRepo()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/tracks/ghost", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "ghost"})
	h.GetTrackHandler(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateTrackNotFound(t *testing.T) {
	h := handlerWith(&stubValidator{})
	h.trackRepo = newFakeTrackRepo()

	rec := httptest.NewRecorder()
	req := uploadRequest(t, "/api/tracks/ghost", map[string]string{"title": "Renamed"}, nil)
	req.Method = http.MethodPut
	req = mux.SetURLVars(req, map[string]string{"id": "ghost"})
	h.UpdateTrackHandler(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteTrackNotFound(t *testing.T) {
	repo := newFakeTrackRepo()
	h := handlerWith(&stubValidator{})
	h.trackRepo = repo
	h.fingerprintRepo = fakeFingerprintRepo{}
	h.blobs = &fakeBlobs{}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/api/tracks/ghost", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "ghost"})
	h.DeleteTrackHandler(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, repo.deleted)
}

func TestIdentifyOtherRejectionIsBadRequest(t *testing.T) {
	v := &stubValidator{err: &validate.Rejection{
		Step:    validate.StepLoudness,
		Message: "audio is not audible (volume: 4/100), minimum required 20%",
	}}
	h := handlerWith(v)

	rec := httptest.NewRecorder()
	req := uploadRequest(t, "/api/tracks/identify", nil, []byte("probe"))
	h.IdentifyTrackHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
