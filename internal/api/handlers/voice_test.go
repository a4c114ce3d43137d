package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"krishi/internal/types"
)

func TestVoiceHandler_Query(t *testing.T) {
	app := newTestApp(t, nil, nil)

	rec, env := app.do(t, http.MethodPost, "/v1/voice/query", map[string]any{"text": "khad kab dalna hai"})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeData[types.VoiceResponse](t, env)
	assert.Equal(t, types.IntentFertilizer, resp.Intent)
	assert.NotEmpty(t, resp.Message.HI)
	assert.Equal(t, resp.Message.Joined(), resp.Text)
}

func TestVoiceHandler_UnrecognisedQueryIsGeneral(t *testing.T) {
	app := newTestApp(t, nil, nil)

	rec, env := app.do(t, http.MethodPost, "/v1/voice/query", map[string]any{"text": "namaskar bhai"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.IntentGeneral, decodeData[types.VoiceResponse](t, env).Intent)
}

func TestVoiceHandler_EmptyQuery(t *testing.T) {
	app := newTestApp(t, nil, nil)

	rec, env := app.do(t, http.MethodPost, "/v1/voice/query", map[string]any{"text": ""})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(types.ErrCodeValidationEmptyQuery), env.Error.Code)

	rec, env = app.do(t, http.MethodPost, "/v1/voice/query", map[string]any{"text": "   "})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(types.ErrCodeValidationEmptyQuery), env.Error.Code)
}

func TestVoiceHandler_Quick(t *testing.T) {
	app := newTestApp(t, nil, nil)

	rec, env := app.do(t, http.MethodPost, "/v1/voice/quick", map[string]any{"command": "weather_update"})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeData[types.VoiceResponse](t, env)
	assert.Equal(t, types.IntentWeather, resp.Intent)
	assert.Equal(t, 1.0, resp.Confidence)

	rec, env = app.do(t, http.MethodPost, "/v1/voice/quick", map[string]any{"command": "dance"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(types.ErrCodeValidationCommand), env.Error.Code)
}

func TestVoiceHandler_Classify(t *testing.T) {
	app := newTestApp(t, nil, nil)

	rec, env := app.do(t, http.MethodPost, "/v1/voice/classify", map[string]any{"text": "paani dena hai kya"})
	require.Equal(t, http.StatusOK, rec.Code)
	cmd := decodeData[types.VoiceCommand](t, env)
	assert.Equal(t, types.IntentIrrigation, cmd.Intent)
	assert.InDelta(t, 0.75, cmd.Confidence, 0.001)
}
