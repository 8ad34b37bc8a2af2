package server

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"echoheritage/core/fusion"
	"echoheritage/logger"
	"echoheritage/model"
	"echoheritage/storage"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// EnginesHealthHandler reports the reachability of every configured fusion
// engine.
func (h *APIHandler) EnginesHealthHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.fusionCli.Health(r.Context()))
}

// ProcessFusionHandler fetches the heritage and modern source audio from blob
// storage, forwards both to a fusion engine and streams the fused result
// back. Nothing is persisted; saving is a separate explicit call.
func (h *APIHandler) ProcessFusionHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SoundID  string   `json:"sound_id"`
		ModernID int64    `json:"modern_id"`
		Gate     *float64 `json:"gate"`
		Clarity  *float64 `json:"clarity"`
		Strength *float64 `json:"strength"`
		Temp     *float64 `json:"temp"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SoundID == "" || req.ModernID == 0 {
		apiError(w, http.StatusBadRequest, "sound_id and modern_id are required")
		return
	}

	track, err := h.trackRepo.GetTrackBySoundID(r.Context(), req.SoundID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apiError(w, http.StatusNotFound, "heritage track not found")
			return
		}
		logger.Error("failed to load heritage track", logger.String("soundId", req.SoundID), logger.ErrorField(err))
		apiError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	modern, err := h.modernRepo.GetModernTrackByID(r.Context(), req.ModernID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apiError(w, http.StatusNotFound, "modern track not found")
			return
		}
		logger.Error("failed to load modern track", logger.Int64("modernId", req.ModernID), logger.ErrorField(err))
		apiError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	melody, err := h.blobs.Fetch(r.Context(), storage.ObjectPathFromURL(track.SoundTrackURL))
	if err != nil {
		logger.Error("failed to fetch heritage audio", logger.String("soundId", req.SoundID), logger.ErrorField(err))
		apiError(w, http.StatusInternalServerError, "failed to fetch heritage audio")
		return
	}

	style, err := h.blobs.Fetch(r.Context(), storage.ObjectPathFromURL(modern.ModernAudioURL))
	if err != nil {
		logger.Error("failed to fetch modern audio", logger.Int64("modernId", req.ModernID), logger.ErrorField(err))
		apiError(w, http.StatusInternalServerError, "failed to fetch modern audio")
		return
	}

	fused, err := h.fusionCli.Fuse(r.Context(), melody, style, fusion.Params{
		Gate:     req.Gate,
		Clarity:  req.Clarity,
		Strength: req.Strength,
		Temp:     req.Temp,
	})
	if err != nil {
		logger.Error("fusion processing failed", logger.String("soundId", req.SoundID), logger.ErrorField(err))
		apiError(w, http.StatusBadGateway, "fusion processing failed")
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Length", strconv.Itoa(len(fused)))
	if _, err := w.Write(fused); err != nil {
		logger.Warn("failed to stream fused audio", logger.ErrorField(err))
	}
}

// SaveFusionHandler persists a fused result the user chose to keep: the blob,
// its fingerprint and the fused_tracks row, then bumps the heritage track's
// fusion counter.
func (h *APIHandler) SaveFusionHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		apiError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	fused, _, err := readFormFile(r, "fusedFile")
	if err != nil {
		apiError(w, http.StatusBadRequest, "missing 'fusedFile' in form")
		return
	}

	soundID := r.FormValue("sound_id")
	if soundID == "" {
		apiError(w, http.StatusBadRequest, "missing 'sound_id' in form")
		return
	}

	user, _ := AuthUserFrom(r.Context())

	ft := &model.FusedTrack{
		SoundID:       uuid.NewString(),
		HeritageSound: r.FormValue("heritage_sound"),
		ModernSound:   r.FormValue("modern_sound"),
		UserMail:      user.Email,
		Community:     r.FormValue("community"),
	}
	for field, dst := range map[string]**float64{
		"gate":     &ft.Gate,
		"clarity":  &ft.Clarity,
		"strength": &ft.Strength,
		"temp":     &ft.Temp,
	} {
		if raw := r.FormValue(field); raw != "" {
			if v, perr := strconv.ParseFloat(raw, 64); perr == nil {
				*dst = &v
			}
		}
	}
	if ft.HeritageSound == "" {
		ft.HeritageSound = soundID
	}

	objectPath := storage.FusedPrefix + ft.SoundID + ".wav"
	if err := h.blobs.Upload(r.Context(), objectPath, bytes.NewReader(fused), int64(len(fused)), "audio/wav"); err != nil {
		logger.Error("failed to store fused audio", logger.ErrorField(err))
		apiError(w, http.StatusInternalServerError, "failed to store fused audio")
		return
	}
	ft.FusedTrackURL = h.blobs.PublicURL(objectPath)

	id, err := h.fusedRepo.CreateFusedTrack(r.Context(), ft)
	if err != nil {
		h.removeBlob(objectPath)
		logger.Error("failed to save fused track", logger.ErrorField(err))
		apiError(w, http.StatusInternalServerError, "failed to save fused track")
		return
	}
	ft.ID = id

	// Fingerprint the fused result so later heritage uploads are also scanned
	// against saved fusions. Failure here is logged, not fatal: the fused
	// track itself is already saved.
	if print, ferr := h.prints.Fingerprint(r.Context(), fused); ferr != nil {
		logger.Warn("failed to fingerprint fused audio", logger.String("soundId", ft.SoundID), logger.ErrorField(ferr))
	} else if ierr := h.fingerprintRepo.InsertFusion(r.Context(), ft.SoundID, print); ierr != nil {
		logger.Warn("failed to store fusion fingerprint", logger.String("soundId", ft.SoundID), logger.ErrorField(ierr))
	}

	if err := h.trackRepo.IncrementFusionCount(r.Context(), soundID); err != nil {
		logger.Warn("failed to bump fusion count", logger.String("soundId", soundID), logger.ErrorField(err))
	}

	logger.Info("fused track saved",
		logger.Int64("id", id),
		logger.String("soundId", ft.SoundID),
		logger.String("heritage", soundID))
	respondJSON(w, http.StatusCreated, ft)
}

// FusionHistoryHandler lists every saved fused track.
func (h *APIHandler) FusionHistoryHandler(w http.ResponseWriter, r *http.Request) {
	history, err := h.fusedRepo.History(r.Context())
	if err != nil {
		logger.Error("failed to list fusion history", logger.ErrorField(err))
		apiError(w, http.StatusInternalServerError, "failed to list fusion history")
		return
	}
	respondJSON(w, http.StatusOK, history)
}

// CheckFusionHandler reports whether the same heritage/modern pair was
// already fused, so the client can offer the existing result instead of
// burning engine time again.
func (h *APIHandler) CheckFusionHandler(w http.ResponseWriter, r *http.Request) {
	soundID := r.URL.Query().Get("sound_id")
	modernSound := r.URL.Query().Get("modern_sound")
	if soundID == "" || modernSound == "" {
		apiError(w, http.StatusBadRequest, "sound_id and modern_sound are required")
		return
	}

	url, err := h.fusedRepo.ExistingFusedURL(r.Context(), soundID, modernSound)
	if err != nil {
		logger.Error("failed to check existing fusion", logger.ErrorField(err))
		apiError(w, http.StatusInternalServerError, "failed to check existing fusion")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"exists": url != "",
		"url":    url,
	})
}

// DeleteFusionHandler removes a saved fused track and its blob.
func (h *APIHandler) DeleteFusionHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		apiError(w, http.StatusBadRequest, "invalid fusion id")
		return
	}

	history, err := h.fusedRepo.History(r.Context())
	if err != nil {
		logger.Error("failed to load fusion history", logger.ErrorField(err))
		apiError(w, http.StatusInternalServerError, "failed to delete fused track")
		return
	}
	for _, ft := range history {
		if ft.ID == id {
			h.removeBlob(storage.ObjectPathFromURL(ft.FusedTrackURL))
			if err := h.fingerprintRepo.DeleteFusion(r.Context(), ft.SoundID); err != nil {
				logger.Warn("failed to delete fusion fingerprint",
					logger.String("soundId", ft.SoundID), logger.ErrorField(err))
			}
			break
		}
	}

	if err := h.fusedRepo.DeleteByID(r.Context(), id); err != nil {
		logger.Error("failed to delete fused track", logger.Int64("id", id), logger.ErrorField(err))
		apiError(w, http.StatusInternalServerError, "failed to delete fused track")
		return
	}

	logger.Info("fused track deleted", logger.Int64("id", id))
	respondJSON(w, http.StatusOK, map[string]string{"message": "fused track deleted"})
}
