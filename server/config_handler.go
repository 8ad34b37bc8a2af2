package server

import (
	"encoding/json"
	"net/http"

	"echoheritage/core/validate"
	"echoheritage/logger"
)

// GetControlsHandler returns the singleton system controls row, falling back
// to the default thresholds when the row does not exist yet.
func (h *APIHandler) GetControlsHandler(w http.ResponseWriter, r *http.Request) {
	controls, err := h.controlsRepo.FirstControls(r.Context())
	if err != nil {
		logger.Error("failed to read system controls", logger.ErrorField(err))
		apiError(w, http.StatusInternalServerError, "failed to read system controls")
		return
	}
	if controls == nil {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"thresholds": validate.DefaultThresholds(),
			"defaults":   true,
		})
		return
	}
	respondJSON(w, http.StatusOK, controls)
}

// controlColumns whitelists the fields administrators may patch.
var controlColumns = map[string]bool{
	"min_audio_length":       true,
	"max_audio_length":       true,
	"max_similarity_allowed": true,
	"min_volume_threshold":   true,
	"group_by_category":      true,
	"group_by_country":       true,
	"heritage_download":      true,
	"fused_download":         true,
	"daily_sub":              true,
	"weekly_sub":             true,
	"monthly_sub":            true,
	"yearly_sub":             true,
}

// thresholdColumns are the validation thresholds. They must stay positive,
// and the percent-valued ones capped at 100, or the similarity scan could be
// driven into matching everything.
var thresholdColumns = map[string]bool{
	"min_audio_length":       true,
	"max_audio_length":       true,
	"max_similarity_allowed": true,
	"min_volume_threshold":   true,
}

var percentColumns = map[string]bool{
	"max_similarity_allowed": true,
	"min_volume_threshold":   true,
}

// UpdateControlsHandler patches the system controls row. Unknown fields are
// rejected so a typo cannot silently become a no-op.
func (h *APIHandler) UpdateControlsHandler(w http.ResponseWriter, r *http.Request) {
	var req map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req) == 0 {
		apiError(w, http.StatusBadRequest, "no fields to update")
		return
	}

	updates := make(map[string]interface{}, len(req))
	for field, value := range req {
		if !controlColumns[field] {
			apiError(w, http.StatusBadRequest, "unknown field: "+field)
			return
		}
		if thresholdColumns[field] {
			v, ok := value.(float64)
			if !ok || v <= 0 {
				apiError(w, http.StatusBadRequest, field+" must be a positive number")
				return
			}
			if percentColumns[field] && v > 100 {
				apiError(w, http.StatusBadRequest, field+" must be between 0 and 100")
				return
			}
		}
		updates[field] = value
	}

	if err := h.controlsRepo.PatchControls(r.Context(), updates); err != nil {
		logger.Error("failed to patch system controls", logger.ErrorField(err))
		apiError(w, http.StatusInternalServerError, "failed to update system controls")
		return
	}

	user, _ := AuthUserFrom(r.Context())
	logger.Info("system controls updated",
		logger.Int64("updatedBy", user.ID),
		logger.Any("fields", updates))
	respondJSON(w, http.StatusOK, map[string]string{"message": "system controls updated"})
}

// GetPricingHandler returns the download and subscription prices.
func (h *APIHandler) GetPricingHandler(w http.ResponseWriter, r *http.Request) {
	controls, err := h.controlsRepo.FirstControls(r.Context())
	if err != nil {
		logger.Error("failed to read pricing", logger.ErrorField(err))
		apiError(w, http.StatusInternalServerError, "failed to read pricing")
		return
	}

	pricing := map[string]float64{
		"heritage_download": 0,
		"fused_download":    0,
		"daily_sub":         0,
		"weekly_sub":        0,
		"monthly_sub":       0,
		"yearly_sub":        0,
	}
	if controls != nil {
		pricing["heritage_download"] = controls.HeritageDownload
		pricing["fused_download"] = controls.FusedDownload
		pricing["daily_sub"] = controls.DailySub
		pricing["weekly_sub"] = controls.WeeklySub
		pricing["monthly_sub"] = controls.MonthlySub
		pricing["yearly_sub"] = controls.YearlySub
	}

	respondJSON(w, http.StatusOK, pricing)
}

// UpdatePricingHandler patches only the pricing columns.
func (h *APIHandler) UpdatePricingHandler(w http.ResponseWriter, r *http.Request) {
	var req map[string]float64
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	pricingColumns := map[string]bool{
		"heritage_download": true,
		"fused_download":    true,
		"daily_sub":         true,
		"weekly_sub":        true,
		"monthly_sub":       true,
		"yearly_sub":        true,
	}

	updates := make(map[string]interface{}, len(req))
	for field, value := range req {
		if !pricingColumns[field] {
			apiError(w, http.StatusBadRequest, "unknown pricing field: "+field)
			return
		}
		if value < 0 {
			apiError(w, http.StatusBadRequest, "price cannot be negative")
			return
		}
		updates[field] = value
	}
	if len(updates) == 0 {
		apiError(w, http.StatusBadRequest, "no fields to update")
		return
	}

	if err := h.controlsRepo.PatchControls(r.Context(), updates); err != nil {
		logger.Error("failed to update pricing", logger.ErrorField(err))
		apiError(w, http.StatusInternalServerError, "failed to update pricing")
		return
	}

	logger.Info("pricing updated", logger.Any("fields", updates))
	respondJSON(w, http.StatusOK, map[string]string{"message": "pricing updated"})
}
