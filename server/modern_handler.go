package server

import (
	"bytes"
	"database/sql"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"

	"echoheritage/logger"
	"echoheritage/model"
	"echoheritage/storage"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

func modernFromForm(r *http.Request) *model.ModernTrack {
	mt := &model.ModernTrack{
		Category:    r.FormValue("category"),
		RhythmStyle: r.FormValue("rhythm_style"),
		Mood:        r.FormValue("mood"),
	}
	if bpm, err := strconv.Atoi(r.FormValue("bpm")); err == nil {
		mt.BPM = bpm
	}
	return mt
}

// CreateModernTrackHandler stores a modern style track. Modern tracks are
// fusion inputs, not heritage audio, so they bypass the validation pipeline.
func (h *APIHandler) CreateModernTrackHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		apiError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	audio, audioName, err := readFormFile(r, "modernFile")
	if err != nil {
		apiError(w, http.StatusBadRequest, "missing 'modernFile' in form")
		return
	}

	mt := modernFromForm(r)
	if mt.Category == "" {
		apiError(w, http.StatusBadRequest, "missing 'category' in form")
		return
	}

	ext := filepath.Ext(audioName)
	if ext == "" {
		ext = ".mp3"
	}
	objectPath := storage.ModernPrefix + uuid.NewString() + ext
	if err := h.blobs.Upload(r.Context(), objectPath, bytes.NewReader(audio), int64(len(audio)), contentTypeFor(audioName, "audio/mpeg")); err != nil {
		logger.Error("failed to store modern audio", logger.ErrorField(err))
		apiError(w, http.StatusInternalServerError, "failed to store modern audio")
		return
	}
	mt.ModernAudioURL = h.blobs.PublicURL(objectPath)

	id, err := h.modernRepo.CreateModernTrack(r.Context(), mt)
	if err != nil {
		h.removeBlob(objectPath)
		logger.Error("failed to create modern track", logger.ErrorField(err))
		apiError(w, http.StatusInternalServerError, "failed to create modern track")
		return
	}
	mt.ID = id

	logger.Info("modern track created", logger.Int64("id", id), logger.String("category", mt.Category))
	respondJSON(w, http.StatusCreated, mt)
}

// UpdateModernTrackHandler edits a modern track; the audio file is optional.
func (h *APIHandler) UpdateModernTrackHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		apiError(w, http.StatusBadRequest, "invalid modern track id")
		return
	}

	existing, err := h.modernRepo.GetModernTrackByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apiError(w, http.StatusNotFound, "modern track not found")
			return
		}
		logger.Error("failed to load modern track", logger.Int64("id", id), logger.ErrorField(err))
		apiError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		apiError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	mt := modernFromForm(r)
	mt.ID = id
	mt.IsApproved = existing.IsApproved

	if audio, audioName, ferr := readFormFile(r, "modernFile"); ferr == nil {
		ext := filepath.Ext(audioName)
		if ext == "" {
			ext = ".mp3"
		}
		objectPath := storage.ModernPrefix + uuid.NewString() + ext
		if err := h.blobs.Upload(r.Context(), objectPath, bytes.NewReader(audio), int64(len(audio)), contentTypeFor(audioName, "audio/mpeg")); err != nil {
			logger.Error("failed to store modern audio", logger.ErrorField(err))
			apiError(w, http.StatusInternalServerError, "failed to store modern audio")
			return
		}
		mt.ModernAudioURL = h.blobs.PublicURL(objectPath)
		h.removeBlob(storage.ObjectPathFromURL(existing.ModernAudioURL))
	}

	if err := h.modernRepo.UpdateModernTrack(r.Context(), mt); err != nil {
		logger.Error("failed to update modern track", logger.Int64("id", id), logger.ErrorField(err))
		apiError(w, http.StatusInternalServerError, "failed to update modern track")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"message": "modern track updated", "track": mt})
}

// GetModernTracksHandler lists modern tracks. Approved-only unless the
// caller asks for everything (moderation view).
func (h *APIHandler) GetModernTracksHandler(w http.ResponseWriter, r *http.Request) {
	approvedOnly := r.URL.Query().Get("all") != "true"
	tracks, err := h.modernRepo.GetAllModernTracks(r.Context(), approvedOnly)
	if err != nil {
		logger.Error("failed to list modern tracks", logger.ErrorField(err))
		apiError(w, http.StatusInternalServerError, "failed to list modern tracks")
		return
	}
	respondJSON(w, http.StatusOK, tracks)
}

// SetModernApprovalHandler approves or unapproves a modern track.
func (h *APIHandler) SetModernApprovalHandler(approved bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
		if err != nil {
			apiError(w, http.StatusBadRequest, "invalid modern track id")
			return
		}

		if err := h.modernRepo.SetApproval(r.Context(), id, approved); err != nil {
			logger.Error("failed to set modern track approval", logger.Int64("id", id), logger.ErrorField(err))
			apiError(w, http.StatusInternalServerError, "failed to update approval")
			return
		}

		respondJSON(w, http.StatusOK, map[string]string{"message": "approval updated"})
	}
}

// DeleteModernTrackHandler removes a modern track and its blob.
func (h *APIHandler) DeleteModernTrackHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		apiError(w, http.StatusBadRequest, "invalid modern track id")
		return
	}

	existing, err := h.modernRepo.GetModernTrackByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apiError(w, http.StatusNotFound, "modern track not found")
			return
		}
		logger.Error("failed to load modern track", logger.Int64("id", id), logger.ErrorField(err))
		apiError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.removeBlob(storage.ObjectPathFromURL(existing.ModernAudioURL))

	if err := h.modernRepo.DeleteByID(r.Context(), id); err != nil {
		logger.Error("failed to delete modern track", logger.Int64("id", id), logger.ErrorField(err))
		apiError(w, http.StatusInternalServerError, "failed to delete modern track")
		return
	}

	logger.Info("modern track deleted", logger.Int64("id", id))
	respondJSON(w, http.StatusOK, map[string]string{"message": "modern track deleted"})
}
