package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"krishi/internal/core"
	"krishi/internal/types"
)

// FarmService reads and replaces the active farm context.
type FarmService interface {
	Get() types.FarmContext
	Set(fc types.FarmContext) error
	DaysSinceSowing() int
}

// FarmHandler serves /v1/farm.
type FarmHandler struct {
	farm      FarmService
	validator *core.Validator
	logger    *slog.Logger
}

// NewFarmHandler creates a FarmHandler.
func NewFarmHandler(svc FarmService, val *core.Validator, logger *slog.Logger) *FarmHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &FarmHandler{farm: svc, validator: val, logger: logger}
}

// RegisterRoutes mounts the farm endpoints.
func (h *FarmHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.HandleGet)
	r.Put("/", h.HandleUpdate)
}

type farmView struct {
	Crop            types.CropType `json:"crop"`
	Soil            types.SoilType `json:"soil"`
	SowingDate      string         `json:"sowing_date"`
	PlotSizeM2      float64        `json:"plot_size_m2"`
	DaysSinceSowing int            `json:"days_since_sowing"`
}

type updateFarmRequest struct {
	Crop       types.CropType `json:"crop" validate:"required"`
	Soil       types.SoilType `json:"soil" validate:"required"`
	SowingDate string         `json:"sowing_date" validate:"required,datetime=2006-01-02"`
	PlotSizeM2 float64        `json:"plot_size_m2" validate:"gt=0"`
}

func (h *FarmHandler) view() farmView {
	fc := h.farm.Get()
	return farmView{
		Crop:            fc.Crop,
		Soil:            fc.Soil,
		SowingDate:      fc.SowingDate.Format(time.DateOnly),
		PlotSizeM2:      fc.PlotSizeM2,
		DaysSinceSowing: h.farm.DaysSinceSowing(),
	}
}

// HandleGet returns the active farm context.
func (h *FarmHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	core.OK(w, r, h.view())
}

// HandleUpdate replaces the farm context. Unknown crops or soils are rejected.
func (h *FarmHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateFarmRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.Struct(req, types.ErrCodeValidationFarmContext); err != nil {
		core.Error(w, r, err)
		return
	}
	sown, err := time.Parse(time.DateOnly, req.SowingDate)
	if err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationFarmContext, "sowing_date must be YYYY-MM-DD", err))
		return
	}
	if err := h.farm.Set(types.FarmContext{
		Crop:       req.Crop,
		Soil:       req.Soil,
		SowingDate: sown,
		PlotSizeM2: req.PlotSizeM2,
	}); err != nil {
		core.Error(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "farm context updated", "crop", req.Crop, "soil", req.Soil, "sowing_date", req.SowingDate)
	core.OK(w, r, h.view())
}
