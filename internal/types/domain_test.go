package types

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestBilingualJoined(t *testing.T) {
	tests := []struct {
		name string
		in   Bilingual
		want string
	}{
		{"both", Bilingual{EN: "Irrigate", HI: "सिंचाई करें"}, "Irrigate | सिंचाई करें"},
		{"english only", Bilingual{EN: "Irrigate"}, "Irrigate"},
		{"hindi only", Bilingual{HI: "सिंचाई करें"}, "सिंचाई करें"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.Joined(); got != tt.want {
				t.Errorf("Joined() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFarmContextDaysSinceSowing(t *testing.T) {
	sown := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	fc := FarmContext{Crop: CropWheat, Soil: SoilClay, SowingDate: sown, PlotSizeM2: 4000}

	if got := fc.DaysSinceSowing(sown.Add(90*24*time.Hour + 5*time.Hour)); got != 90 {
		t.Errorf("DaysSinceSowing = %d, want 90", got)
	}
	if got := fc.DaysSinceSowing(sown.Add(-36 * time.Hour)); got != -2 {
		t.Errorf("DaysSinceSowing before sowing = %d, want -2", got)
	}
}

func TestClampPercent(t *testing.T) {
	for in, want := range map[float64]float64{-5: 0, 0: 0, 42.5: 42.5, 100: 100, 130: 100} {
		if got := ClampPercent(in); got != want {
			t.Errorf("ClampPercent(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestDeviceStatusValid(t *testing.T) {
	if !DeviceError.Valid() || !DeviceConnected.Valid() || !DeviceDisconnected.Valid() {
		t.Error("known statuses must be valid")
	}
	if DeviceStatus("sleeping").Valid() {
		t.Error("unknown status must be invalid")
	}
}

func TestSecretStringRedaction(t *testing.T) {
	const raw = "postgres://user:pw@localhost/krishi"
	s := SecretString(raw)

	if strings.Contains(fmt.Sprintf("%s %v", s, s), raw) {
		t.Error("fmt leaked the raw secret")
	}
	b, err := json.Marshal(struct {
		URL SecretString `json:"url"`
	}{s})
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}
	if strings.Contains(string(b), raw) {
		t.Errorf("JSON leaked the raw secret: %s", b)
	}
	if s.Unmask() != raw || !s.IsSet() {
		t.Error("Unmask/IsSet should expose the configured value")
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	if got := GetRequestID(ctx); got != "req-1" {
		t.Errorf("GetRequestID = %q, want req-1", got)
	}
	if got := GetRequestID(context.Background()); got != "" {
		t.Errorf("GetRequestID on empty ctx = %q, want empty", got)
	}
}
