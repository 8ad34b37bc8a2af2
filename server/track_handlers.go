package server

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"echoheritage/core/feed"
	"echoheritage/core/validate"
	"echoheritage/logger"
	"echoheritage/model"
	"echoheritage/repository"
	"echoheritage/storage"

	"github.com/gorilla/mux"
)

// maxUploadBytes caps the multipart form size for track uploads.
const maxUploadBytes = 64 << 20

// writeRejection renders a validation rejection as the 400 contract the
// client renders stage-specific UI from.
func (h *APIHandler) writeRejection(w http.ResponseWriter, rej *validate.Rejection) {
	// similarTrack and source are always present, null outside similarity
	// rejections.
	payload := map[string]interface{}{
		"error":        rej.Message,
		"step":         rej.Step,
		"similarTrack": nil,
		"source":       nil,
	}
	if rej.SimilarTrack != nil {
		payload["similarTrack"] = rej.SimilarTrack
		payload["source"] = rej.Source
	}
	respondJSON(w, http.StatusBadRequest, payload)
}

func readFormFile(r *http.Request, field string) ([]byte, string, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, "", err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", fmt.Errorf("reading %s: %w", field, err)
	}
	return data, header.Filename, nil
}

func trackFromForm(r *http.Request) *model.Track {
	return &model.Track{
		Title:       r.FormValue("title"),
		Performer:   r.FormValue("performer"),
		Category:    r.FormValue("category"),
		Community:   r.FormValue("community"),
		Region:      r.FormValue("region"),
		Context:     r.FormValue("context"),
		Country:     r.FormValue("country"),
		Description: r.FormValue("description"),
		Contributor: r.FormValue("contributor"),
	}
}

func contentTypeFor(filename, fallback string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".ogg":
		return "audio/ogg"
	case ".flac":
		return "audio/flac"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	}
	return fallback
}

// UploadTrackHandler receives a heritage track upload, runs the validation
// pipeline and persists the blobs, the track row and the fingerprint when it
// passes. Persistence runs inside the pipeline's similarity lock.
func (h *APIHandler) UploadTrackHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		apiError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	audio, audioName, err := readFormFile(r, "sound_track_url")
	if err != nil {
		apiError(w, http.StatusBadRequest, "missing 'sound_track_url' in form")
		return
	}

	track := trackFromForm(r)
	if track.Title == "" {
		apiError(w, http.StatusBadRequest, "missing 'title' in form")
		return
	}
	track.SoundID = r.FormValue("sound_id")
	if track.SoundID == "" {
		apiError(w, http.StatusBadRequest, "missing 'sound_id' in form")
		return
	}

	var art []byte
	var artName string
	if data, name, err := readFormFile(r, "album_file_url"); err == nil {
		art, artName = data, name
	} else if !errors.Is(err, http.ErrMissingFile) {
		apiError(w, http.StatusBadRequest, "failed to read album art")
		return
	}

	persist := func(ctx context.Context, rep *validate.Report) error {
		return h.persistTrack(ctx, track, audio, audioName, art, artName, rep, false)
	}

	rep, err := h.validator.Validate(r.Context(), audio, "", persist)
	if err != nil {
		var rej *validate.Rejection
		if errors.As(err, &rej) {
			logger.Info("upload rejected",
				logger.String("soundId", track.SoundID),
				logger.String("step", string(rej.Step)),
				logger.Float64("score", rej.Score))
			h.hub.Broadcast(feed.Event{
				Kind:    feed.KindRejected,
				SoundID: track.SoundID,
				Title:   track.Title,
				Step:    string(rej.Step),
				Score:   rej.Score,
			})
			h.writeRejection(w, rej)
			return
		}
		if errors.Is(err, repository.ErrDuplicateTrack) {
			apiError(w, http.StatusConflict, "a track with this id already exists")
			return
		}
		logger.Error("upload failed", logger.String("soundId", track.SoundID), logger.ErrorField(err))
		apiError(w, http.StatusInternalServerError, "failed to process upload")
		return
	}

	logger.Info("track uploaded",
		logger.String("soundId", track.SoundID),
		logger.String("title", track.Title),
		logger.Float64("duration", rep.Duration),
		logger.Int("loudness", rep.Loudness))
	h.hub.Broadcast(feed.Event{Kind: feed.KindAccepted, SoundID: track.SoundID, Title: track.Title})

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "track uploaded",
		"track":   track,
	})
}

// persistTrack writes the blobs, the track row and the fingerprint in that
// order. Any later failure undoes the earlier writes so a rejection leaves no
// partial track behind.
func (h *APIHandler) persistTrack(ctx context.Context, track *model.Track, audio []byte, audioName string, art []byte, artName string, rep *validate.Report, update bool) error {
	audioExt := filepath.Ext(audioName)
	if audioExt == "" {
		audioExt = ".mp3"
	}
	audioPath := storage.AudioPrefix + track.SoundID + audioExt
	if err := h.blobs.Upload(ctx, audioPath, bytes.NewReader(audio), int64(len(audio)), contentTypeFor(audioName, "audio/mpeg")); err != nil {
		return fmt.Errorf("storing audio: %w", err)
	}
	track.SoundTrackURL = h.blobs.PublicURL(audioPath)

	if len(art) > 0 {
		artExt := filepath.Ext(artName)
		if artExt == "" {
			artExt = ".jpg"
		}
		artPath := storage.ArtPrefix + track.SoundID + artExt
		if err := h.blobs.Upload(ctx, artPath, bytes.NewReader(art), int64(len(art)), contentTypeFor(artName, "image/jpeg")); err != nil {
			logger.Warn("failed to store album art", logger.String("soundId", track.SoundID), logger.ErrorField(err))
		} else {
			track.AlbumFileURL = h.blobs.PublicURL(artPath)
		}
	}

	if update {
		if err := h.trackRepo.UpdateTrack(ctx, track); err != nil {
			h.removeBlob(audioPath)
			return fmt.Errorf("updating track row: %w", err)
		}
	} else {
		id, err := h.trackRepo.CreateTrack(ctx, track)
		if err != nil {
			h.removeBlob(audioPath)
			return fmt.Errorf("creating track row: %w", err)
		}
		track.ID = id
	}

	if err := h.fingerprintRepo.UpsertHeritage(ctx, track.SoundID, rep.Fingerprint); err != nil {
		if !update {
			if derr := h.trackRepo.DeleteTrack(ctx, track.SoundID); derr != nil {
				logger.Error("failed to undo track row after fingerprint failure",
					logger.String("soundId", track.SoundID), logger.ErrorField(derr))
			}
		}
		h.removeBlob(audioPath)
		return fmt.Errorf("storing fingerprint: %w", err)
	}

	return nil
}

func (h *APIHandler) removeBlob(objectPath string) {
	if objectPath == "" {
		return
	}
	if err := h.blobs.Remove(context.Background(), objectPath); err != nil {
		logger.Warn("failed to remove blob", logger.String("object", objectPath), logger.ErrorField(err))
	}
}

// UpdateTrackHandler edits an existing track. When a replacement audio file
// is attached the full pipeline re-runs with the track's own fingerprint
// excluded from the duplicate scan.
func (h *APIHandler) UpdateTrackHandler(w http.ResponseWriter, r *http.Request) {
	soundID := mux.Vars(r)["id"]

	existing, err := h.trackRepo.GetTrackBySoundID(r.Context(), soundID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apiError(w, http.StatusNotFound, "track not found")
			return
		}
		logger.Error("failed to load track", logger.String("soundId", soundID), logger.ErrorField(err))
		apiError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		apiError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	track := trackFromForm(r)
	track.ID = existing.ID
	track.SoundID = soundID
	track.IsApproved = existing.IsApproved
	if track.Title == "" {
		track.Title = existing.Title
	}

	audio, audioName, err := readFormFile(r, "sound_track_url")
	if err != nil && !errors.Is(err, http.ErrMissingFile) {
		apiError(w, http.StatusBadRequest, "failed to read track file")
		return
	}

	var art []byte
	var artName string
	if data, name, aerr := readFormFile(r, "album_file_url"); aerr == nil {
		art, artName = data, name
	}

	// Metadata-only edit: the repository keeps the stored URLs when the new
	// ones are empty.
	if len(audio) == 0 {
		if len(art) > 0 {
			artExt := filepath.Ext(artName)
			if artExt == "" {
				artExt = ".jpg"
			}
			artPath := storage.ArtPrefix + soundID + artExt
			if err := h.blobs.Upload(r.Context(), artPath, bytes.NewReader(art), int64(len(art)), contentTypeFor(artName, "image/jpeg")); err != nil {
				logger.Warn("failed to store album art", logger.String("soundId", soundID), logger.ErrorField(err))
			} else {
				track.AlbumFileURL = h.blobs.PublicURL(artPath)
			}
		}
		if err := h.trackRepo.UpdateTrack(r.Context(), track); err != nil {
			logger.Error("failed to update track", logger.String("soundId", soundID), logger.ErrorField(err))
			apiError(w, http.StatusInternalServerError, "failed to update track")
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{"message": "track updated", "track": track})
		return
	}

	persist := func(ctx context.Context, rep *validate.Report) error {
		return h.persistTrack(ctx, track, audio, audioName, art, artName, rep, true)
	}

	if _, err := h.validator.Validate(r.Context(), audio, soundID, persist); err != nil {
		var rej *validate.Rejection
		if errors.As(err, &rej) {
			h.writeRejection(w, rej)
			return
		}
		logger.Error("failed to re-validate track", logger.String("soundId", soundID), logger.ErrorField(err))
		apiError(w, http.StatusInternalServerError, "failed to update track")
		return
	}

	logger.Info("track replaced", logger.String("soundId", soundID))
	respondJSON(w, http.StatusOK, map[string]interface{}{"message": "track updated", "track": track})
}

// IdentifyTrackHandler probes an audio buffer against the validation pipeline
// without persisting anything. A similarity rejection is reported as a match,
// not an error.
func (h *APIHandler) IdentifyTrackHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		apiError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	audio, _, err := readFormFile(r, "sound_track_url")
	if err != nil {
		apiError(w, http.StatusBadRequest, "missing 'sound_track_url' in form")
		return
	}

	rep, err := h.validator.Validate(r.Context(), audio, "", nil)
	if err != nil {
		var rej *validate.Rejection
		if errors.As(err, &rej) {
			if rej.Step == validate.StepSimilarity {
				respondJSON(w, http.StatusOK, map[string]interface{}{
					"matched":      true,
					"score":        rej.Score,
					"similarTrack": rej.SimilarTrack,
					"source":       rej.Source,
				})
				return
			}
			h.writeRejection(w, rej)
			return
		}
		logger.Error("identify failed", logger.ErrorField(err))
		apiError(w, http.StatusInternalServerError, "failed to identify audio")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"matched":  false,
		"duration": rep.Duration,
		"loudness": rep.Loudness,
	})
}

// GetTracksHandler lists tracks. ?approved=true narrows to the public
// catalogue.
func (h *APIHandler) GetTracksHandler(w http.ResponseWriter, r *http.Request) {
	tracks, err := h.trackRepo.GetAllTracks(r.Context())
	if err != nil {
		logger.Error("failed to list tracks", logger.ErrorField(err))
		apiError(w, http.StatusInternalServerError, "failed to list tracks")
		return
	}

	if r.URL.Query().Get("approved") == "true" {
		approved := tracks[:0]
		for _, t := range tracks {
			if t.IsApproved {
				approved = append(approved, t)
			}
		}
		tracks = approved
	}

	respondJSON(w, http.StatusOK, tracks)
}

// GetTrackHandler returns one track by its sound id.
func (h *APIHandler) GetTrackHandler(w http.ResponseWriter, r *http.Request) {
	soundID := mux.Vars(r)["id"]

	track, err := h.trackRepo.GetTrackBySoundID(r.Context(), soundID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apiError(w, http.StatusNotFound, "track not found")
			return
		}
		logger.Error("failed to get track", logger.String("soundId", soundID), logger.ErrorField(err))
		apiError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	respondJSON(w, http.StatusOK, track)
}

// DeleteTrackHandler removes a track, its blobs and its fingerprint. An
// unapproved track's contributor is notified the submission was declined.
func (h *APIHandler) DeleteTrackHandler(w http.ResponseWriter, r *http.Request) {
	soundID := mux.Vars(r)["id"]
	reason := r.URL.Query().Get("reason")
	if reason == "" {
		reason = "did not meet the archive's cataloguing requirements"
	}

	track, err := h.trackRepo.GetTrackBySoundID(r.Context(), soundID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apiError(w, http.StatusNotFound, "track not found")
			return
		}
		logger.Error("failed to load track", logger.String("soundId", soundID), logger.ErrorField(err))
		apiError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.removeBlob(storage.ObjectPathFromURL(track.SoundTrackURL))
	h.removeBlob(storage.ObjectPathFromURL(track.AlbumFileURL))

	if err := h.fingerprintRepo.DeleteHeritage(r.Context(), soundID); err != nil {
		logger.Warn("failed to delete fingerprint", logger.String("soundId", soundID), logger.ErrorField(err))
	}

	if err := h.trackRepo.DeleteTrack(r.Context(), soundID); err != nil {
		logger.Error("failed to delete track", logger.String("soundId", soundID), logger.ErrorField(err))
		apiError(w, http.StatusInternalServerError, "failed to delete track")
		return
	}

	if !track.IsApproved && strings.Contains(track.Contributor, "@") {
		h.mail.SendRejection(track.Contributor, track.Title, reason)
	}

	logger.Info("track deleted", logger.String("soundId", soundID))
	respondJSON(w, http.StatusOK, map[string]string{"message": "track deleted"})
}

// SetApprovalHandler approves or unapproves a track for the public catalogue.
func (h *APIHandler) SetApprovalHandler(approved bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		soundID := mux.Vars(r)["id"]

		track, err := h.trackRepo.SetApproval(r.Context(), soundID, approved)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				apiError(w, http.StatusNotFound, "track not found")
				return
			}
			logger.Error("failed to set approval", logger.String("soundId", soundID), logger.ErrorField(err))
			apiError(w, http.StatusInternalServerError, "failed to update approval")
			return
		}

		if approved && strings.Contains(track.Contributor, "@") {
			h.mail.SendApproval(track.Contributor, track.Title)
		}

		logger.Info("track approval changed",
			logger.String("soundId", soundID),
			logger.Bool("approved", approved))
		respondJSON(w, http.StatusOK, track)
	}
}
