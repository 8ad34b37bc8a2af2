package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"echoheritage/model"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
)

type fakeFusedRepo struct {
	history []*model.FusedTrack
	deleted []int64
}

func (f *fakeFusedRepo) CreateFusedTrack(ctx context.Context, ft *model.FusedTrack) (int64, error) {
	f.history = append(f.history, ft)
	return int64(len(f.history)), nil
}

func (f *fakeFusedRepo) History(ctx context.Context) ([]*model.FusedTrack, error) {
	return f.history, nil
}

func (f *fakeFusedRepo) DeleteByID(ctx context.Context, id int64) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeFusedRepo) ExistingFusedURL(ctx context.Context, soundID, modernSound string) (string, error) {
	return "", nil
}

func (f *fakeFusedRepo) SummaryBySoundID(ctx context.Context, soundID string) (*model.TrackSummary, error) {
	return nil, nil
}

type recordingFingerprintRepo struct {
	fakeFingerprintRepo
	deletedFusions []string
}

func (r *recordingFingerprintRepo) DeleteFusion(ctx context.Context, soundID string) error {
	r.deletedFusions = append(r.deletedFusions, soundID)
	return nil
}

func TestDeleteFusionRemovesFingerprint(t *testing.T) {
	fused := &fakeFusedRepo{history: []*model.FusedTrack{
		{ID: 4, SoundID: "fused-4", FusedTrackURL: "/static/fused/fused-4.wav"},
	}}
	prints := &recordingFingerprintRepo{}
	blobs := &fakeBlobs{}
	h := &APIHandler{fusedRepo: fused, fingerprintRepo: prints, blobs: blobs}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/api/fusion/4", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "4"})
	h.DeleteFusionHandler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{4}, fused.deleted)
	// The corpus entry goes with the track so the scan never has to skip its
	// orphan.
	assert.Equal(t, []string{"fused-4"}, prints.deletedFusions)
	assert.NotEmpty(t, blobs.removed)
}
