package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"krishi/internal/core"
	"krishi/internal/types"
)

// VoiceRouter answers transcribed queries.
type VoiceRouter interface {
	Classify(text string) types.VoiceCommand
	ProcessVoiceCommand(text string, fc types.FarmContext) (*types.VoiceResponse, error)
	ProcessQuickCommand(cmd types.QuickCommand, fc types.FarmContext) (*types.VoiceResponse, error)
}

// VoiceHandler serves /v1/voice.
type VoiceHandler struct {
	router    VoiceRouter
	farm      FarmReader
	validator *core.Validator
	logger    *slog.Logger
}

// NewVoiceHandler creates a VoiceHandler.
func NewVoiceHandler(router VoiceRouter, farm FarmReader, val *core.Validator, logger *slog.Logger) *VoiceHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &VoiceHandler{router: router, farm: farm, validator: val, logger: logger}
}

// RegisterRoutes mounts the voice endpoints.
func (h *VoiceHandler) RegisterRoutes(r chi.Router) {
	r.Post("/query", h.HandleQuery)
	r.Post("/quick", h.HandleQuick)
	r.Post("/classify", h.HandleClassify)
}

type voiceQueryRequest struct {
	Text string `json:"text" validate:"required,max=500"`
}

type quickCommandRequest struct {
	Command types.QuickCommand `json:"command" validate:"required"`
}

// HandleQuery classifies a query and answers it with exactly one engine.
func (h *VoiceHandler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	var req voiceQueryRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.Struct(req, types.ErrCodeValidationEmptyQuery); err != nil {
		core.Error(w, r, err)
		return
	}
	resp, err := h.router.ProcessVoiceCommand(req.Text, h.farm.Get())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.OK(w, r, resp)
}

// HandleQuick runs one of the predefined quick actions.
func (h *VoiceHandler) HandleQuick(w http.ResponseWriter, r *http.Request) {
	var req quickCommandRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.Struct(req, types.ErrCodeValidationCommand); err != nil {
		core.Error(w, r, err)
		return
	}
	resp, err := h.router.ProcessQuickCommand(req.Command, h.farm.Get())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.OK(w, r, resp)
}

// HandleClassify reports intent scores without dispatching.
func (h *VoiceHandler) HandleClassify(w http.ResponseWriter, r *http.Request) {
	var req voiceQueryRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.Struct(req, types.ErrCodeValidationEmptyQuery); err != nil {
		core.Error(w, r, err)
		return
	}
	core.OK(w, r, h.router.Classify(req.Text))
}
