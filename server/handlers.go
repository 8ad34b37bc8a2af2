package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"echoheritage/config"
	"echoheritage/core/feed"
	"echoheritage/core/fusion"
	"echoheritage/core/validate"
	"echoheritage/logger"
	"echoheritage/mailer"
	"echoheritage/repository"
)

// trackValidator runs the upload validation pipeline. Narrowed to an
// interface so handler tests can substitute a stub.
type trackValidator interface {
	Validate(ctx context.Context, audio []byte, excludeSoundID string, persist func(ctx context.Context, rep *validate.Report) error) (*validate.Report, error)
}

// BlobStore is the object storage surface the handlers need.
type BlobStore interface {
	Upload(ctx context.Context, objectPath string, r io.Reader, size int64, contentType string) error
	Remove(ctx context.Context, objectPath string) error
	Fetch(ctx context.Context, objectPath string) ([]byte, error)
	PublicURL(objectPath string) string
}

// APIHandler carries every dependency the HTTP layer uses.
type APIHandler struct {
	trackRepo       repository.TrackRepository
	userRepo        repository.UserRepository
	fingerprintRepo repository.FingerprintRepository
	controlsRepo    repository.ControlsRepository
	fusedRepo       repository.FusedTrackRepository
	modernRepo      repository.ModernTrackRepository

	validator trackValidator
	prints    validate.Fingerprinter
	blobs     BlobStore
	mail      mailer.Mailer
	fusionCli *fusion.Client
	hub       *feed.Hub
	cfg       *config.Config
}

// NewAPIHandler wires the API handler.
func NewAPIHandler(
	trackRepo repository.TrackRepository,
	userRepo repository.UserRepository,
	fingerprintRepo repository.FingerprintRepository,
	controlsRepo repository.ControlsRepository,
	fusedRepo repository.FusedTrackRepository,
	modernRepo repository.ModernTrackRepository,
	validator trackValidator,
	prints validate.Fingerprinter,
	blobs BlobStore,
	mail mailer.Mailer,
	fusionCli *fusion.Client,
	hub *feed.Hub,
	cfg *config.Config,
) *APIHandler {
	return &APIHandler{
		trackRepo:       trackRepo,
		userRepo:        userRepo,
		fingerprintRepo: fingerprintRepo,
		controlsRepo:    controlsRepo,
		fusedRepo:       fusedRepo,
		modernRepo:      modernRepo,
		validator:       validator,
		prints:          prints,
		blobs:           blobs,
		mail:            mail,
		fusionCli:       fusionCli,
		hub:             hub,
		cfg:             cfg,
	}
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("failed to encode response", logger.ErrorField(err))
	}
}

func apiError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
