package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"krishi/internal/fertilizer"
	"krishi/internal/health"
	"krishi/internal/irrigation"
	"krishi/internal/sensors"
	"krishi/internal/types"
	"krishi/internal/voice"
	"krishi/internal/weather"
)

func newAskCmd(opts *options) *cobra.Command {
	var quick string
	cmd := &cobra.Command{
		Use:   "ask [question...]",
		Short: "Answer a spoken-style question",
		Example: `  advisor ask paani dena hai kya
  advisor ask --quick fertilizer_plan`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.load(cmd)
			if err != nil {
				return err
			}
			router := voice.NewRouter(voice.Config{
				Intents:    e.kb,
				Irrigation: irrigation.NewEngine(e.kb, irrigation.DefaultPolicy),
				Fertilizer: fertilizer.NewEngine(e.kb),
				Health:     health.NewEngine(e.kb),
				Weather:    weather.NewEngine(weather.Config{Climate: e.kb, Clock: e.clock, Logger: e.logger}),
				Sensors:    sensors.NewService(sensors.Config{Clock: e.clock, Climate: e.kb, Logger: e.logger}),
				Clock:      e.clock,
				Logger:     e.logger,
			})

			var resp *types.VoiceResponse
			if quick != "" {
				resp, err = router.ProcessQuickCommand(types.QuickCommand(quick), e.farm)
			} else {
				resp, err = router.ProcessVoiceCommand(strings.Join(args, " "), e.farm)
			}
			if err != nil {
				return err
			}
			return e.emit(resp, resp.Message,
				fmt.Sprintf("intent: %s (confidence %.2f)", resp.Intent, resp.Confidence))
		},
	}
	cmd.Flags().StringVar(&quick, "quick", "", "run a quick command (irrigation_check, fertilizer_plan, health_check, weather_update)")
	return cmd
}
