package handler

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/cyclemaps/cyclemaps/internal/api/models"
	"github.com/cyclemaps/cyclemaps/internal/api/response"
	"github.com/cyclemaps/cyclemaps/internal/featureflags"
)

// FeatureFlagsHandler handles feature flag endpoints.
type FeatureFlagsHandler struct {
	service *featureflags.Service
}

// NewFeatureFlagsHandler creates a new FeatureFlagsHandler.
func NewFeatureFlagsHandler(service *featureflags.Service) *FeatureFlagsHandler {
	return &FeatureFlagsHandler{service: service}
}

// PublicFlags handles GET /v1/flags - the runtime switches clients act on.
func (h *FeatureFlagsHandler) PublicFlags(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	response.JSON(w, r, http.StatusOK, map[string]bool{
		"surfaceLookupEnabled": !h.service.IsSurfaceLookupDisabled(ctx),
		"chartExtremaEnabled":  h.service.IsChartExtremaEnabled(ctx),
		"bikeOnlyRouting":      h.service.IsBikeOnlyRouting(ctx),
	})
}

// ListFeatureFlags handles GET /v1/admin/flags - list all feature flags.
func (h *FeatureFlagsHandler) ListFeatureFlags(w http.ResponseWriter, r *http.Request) {
	flags := h.service.GetAllFlags(r.Context())

	keys := make([]string, 0, len(flags))
	for key := range flags {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	list := featureflags.FlagList{Items: make([]featureflags.Flag, 0, len(keys))}
	for _, key := range keys {
		list.Items = append(list.Items, *flags[key])
	}
	response.JSON(w, r, http.StatusOK, list)
}

// UpsertFeatureFlags handles PUT /v1/admin/flags - update feature flags.
func (h *FeatureFlagsHandler) UpsertFeatureFlags(w http.ResponseWriter, r *http.Request) {
	var input featureflags.FlagUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if len(input.Updates) == 0 {
		response.BadRequest(w, r, "no updates provided", []models.FieldError{
			{Field: "updates", Message: "at least one update is required"},
		})
		return
	}

	now := time.Now()
	flags := make([]*featureflags.Flag, 0, len(input.Updates))
	for i, update := range input.Updates {
		if update.Key == "" {
			response.BadRequest(w, r, "invalid update", []models.FieldError{
				{Field: "updates[" + strconv.Itoa(i) + "].key", Message: "required"},
			})
			return
		}
		flags = append(flags, &featureflags.Flag{
			Key:       update.Key,
			Value:     update.Value,
			UpdatedAt: now,
		})
	}

	if err := h.service.SetFlags(r.Context(), flags); err != nil {
		response.InternalError(w, r, "failed to update flags")
		return
	}
	response.NoContent(w, r)
}

// InvalidateCache handles POST /v1/admin/flags/invalidate - drop the flag cache.
func (h *FeatureFlagsHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	h.service.InvalidateCache()
	response.NoContent(w, r)
}
