package server

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"echoheritage/model"

	"github.com/stretchr/testify/assert"
)

type fakeControlsRepo struct {
	row     *model.SystemControls
	patches []map[string]interface{}
}

func (f *fakeControlsRepo) FirstControls(ctx context.Context) (*model.SystemControls, error) {
	return f.row, nil
}

func (f *fakeControlsRepo) PatchControls(ctx context.Context, updates map[string]interface{}) error {
	f.patches = append(f.patches, updates)
	return nil
}

func patchControls(t *testing.T, h *APIHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/admin/controls", bytes.NewBufferString(body))
	h.UpdateControlsHandler(rec, req)
	return rec
}

func TestUpdateControlsRejectsNonPositiveThreshold(t *testing.T) {
	// A similarity threshold at or below zero would match every upload,
	// including ones with empty fingerprints.
	repo := &fakeControlsRepo{}
	h := &APIHandler{controlsRepo: repo}

	for _, body := range []string{
		`{"max_similarity_allowed": -10}`,
		`{"max_similarity_allowed": 0}`,
		`{"min_volume_threshold": -1}`,
		`{"min_audio_length": 0}`,
		`{"max_audio_length": -5}`,
	} {
		rec := patchControls(t, h, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Empty(t, repo.patches)
}

func TestUpdateControlsRejectsPercentAboveHundred(t *testing.T) {
	repo := &fakeControlsRepo{}
	h := &APIHandler{controlsRepo: repo}

	rec := patchControls(t, h, `{"max_similarity_allowed": 101}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = patchControls(t, h, `{"min_volume_threshold": 250}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, repo.patches)
}

func TestUpdateControlsRejectsNonNumericThreshold(t *testing.T) {
	repo := &fakeControlsRepo{}
	h := &APIHandler{controlsRepo: repo}

	rec := patchControls(t, h, `{"max_similarity_allowed": "high"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, repo.patches)
}

func TestUpdateControlsRejectsUnknownField(t *testing.T) {
	repo := &fakeControlsRepo{}
	h := &APIHandler{controlsRepo: repo}

	rec := patchControls(t, h, `{"max_similarty_allowed": 90}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, repo.patches)
}

func TestUpdateControlsAcceptsValidPatch(t *testing.T) {
	repo := &fakeControlsRepo{}
	h := &APIHandler{controlsRepo: repo}

	rec := patchControls(t, h, `{"max_similarity_allowed": 90, "min_audio_length": 15}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Len(t, repo.patches, 1)
	assert.Equal(t, 90.0, repo.patches[0]["max_similarity_allowed"])
	assert.Equal(t, 15.0, repo.patches[0]["min_audio_length"])
}
