package sensors

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"krishi/internal/types"
)

// fieldCodes maps DevicePayload fields to the error code reported when their
// range check fails.
var fieldCodes = map[string]types.ErrorCode{
	"DeviceID":     types.ErrCodeValidationDeviceID,
	"MoisturePct":  types.ErrCodeValidationMoisture,
	"TemperatureC": types.ErrCodeValidationTemperature,
	"HumidityPct":  types.ErrCodeValidationHumidity,
	"BatteryPct":   types.ErrCodeValidationBattery,
	"Timestamp":    types.ErrCodeValidationTimestamp,
}

// DecodePayload parses a JSON device message.
func DecodePayload(data []byte) (types.DevicePayload, error) {
	var p types.DevicePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return p, types.NewAppError(types.ErrCodeValidationPayload, "malformed device payload", err)
	}
	return p, nil
}

func (s *Service) validatePayload(deviceID string, p types.DevicePayload) error {
	if err := validateDeviceID(deviceID); err != nil {
		return err
	}
	if p.DeviceID != deviceID {
		return types.NewAppErrorWithDetails(types.ErrCodeValidationDeviceID,
			"payload device id does not match the sending device", nil,
			map[string]any{"device_id": deviceID, "payload_device_id": p.DeviceID})
	}
	if err := s.validate.Struct(p); err != nil {
		return payloadError(err)
	}
	if limit := s.clock.Now().Add(MaxClockSkew); p.Timestamp.After(limit) {
		return types.NewAppErrorWithDetails(types.ErrCodeValidationTimestamp,
			"payload timestamp is in the future", nil,
			map[string]any{"timestamp": p.Timestamp})
	}
	return nil
}

// payloadError reports the first failing field with its specific code.
func payloadError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return types.NewAppError(types.ErrCodeValidationPayload, "malformed device payload", err)
	}
	fe := verrs[0]
	details := map[string]any{"field": fe.Field(), "rule": fe.Tag()}
	if fe.Tag() == "required" {
		return types.NewAppErrorWithDetails(types.ErrCodeValidationMissingField,
			fmt.Sprintf("%s is required", fe.Field()), err, details)
	}
	code, ok := fieldCodes[fe.StructField()]
	if !ok {
		code = types.ErrCodeValidationPayload
	}
	details["value"] = fe.Value()
	return types.NewAppErrorWithDetails(code,
		fmt.Sprintf("%s is outside the accepted range", fe.Field()), err, details)
}

func validateDeviceID(deviceID string) error {
	if deviceID == "" || len(deviceID) > types.MaxDeviceIDLength {
		return types.NewAppErrorWithDetails(types.ErrCodeValidationDeviceID,
			fmt.Sprintf("device id must be 1-%d characters", types.MaxDeviceIDLength), nil,
			map[string]any{"device_id": deviceID})
	}
	return nil
}
