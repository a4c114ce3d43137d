package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"krishi/internal/fertilizer"
	"krishi/internal/irrigation"
	"krishi/internal/sensors"
	"krishi/internal/types"
	"krishi/internal/weather"
)

func newIrrigationCmd(opts *options) *cobra.Command {
	var (
		moisture float64
		raining  bool
		rainProb float64
	)
	cmd := &cobra.Command{
		Use:   "irrigation",
		Short: "Decide whether to irrigate today",
		Long: `Runs the FAO-56 water balance for the plot. Without --moisture the
seasonal typical soil moisture is used, as when no sensor is connected.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := opts.load(cmd)
			if err != nil {
				return err
			}
			now := e.clock.Now()

			reading := sensors.NewService(sensors.Config{Clock: e.clock, Climate: e.kb, Logger: e.logger}).GetSensorData()
			if cmd.Flags().Changed("moisture") {
				reading.MoisturePct = moisture
				reading.Source = "manual"
			}

			var live *types.WeatherReading
			if raining || cmd.Flags().Changed("rain-prob") {
				live = &types.WeatherReading{RainProbability: rainProb, IsRaining: raining, ObservedAt: now}
			}
			adv := weather.NewEngine(weather.Config{Climate: e.kb, Clock: e.clock, Logger: e.logger}).GetWeatherData(live)

			rec, err := irrigation.NewEngine(e.kb, irrigation.DefaultPolicy).Calculate(irrigation.Input{
				Crop:            e.farm.Crop,
				Soil:            e.farm.Soil,
				DaysSinceSowing: e.farm.DaysSinceSowing(now),
				MoisturePct:     reading.MoisturePct,
				Month:           int(now.Month()),
				IsRaining:       adv.Reading.IsRaining,
				WeatherFactor:   adv.WeatherFactor,
			})
			if err != nil {
				return err
			}

			details := []string{
				fmt.Sprintf("status: %s (stage %s, soil moisture %.1f%% from %s)", rec.Status, rec.Stage, rec.MoisturePct, reading.Source),
			}
			if rec.DepthMM != nil {
				details = append(details, fmt.Sprintf("depth: %.1f mm", *rec.DepthMM))
			}
			return e.emit(rec, rec.Reason, details...)
		},
	}
	cmd.Flags().Float64Var(&moisture, "moisture", 0, "measured volumetric soil moisture (%)")
	cmd.Flags().BoolVar(&raining, "raining", false, "it is raining now")
	cmd.Flags().Float64Var(&rainProb, "rain-prob", 0, "forecast rain probability (0-1)")
	return cmd
}

func newFertilizerCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "fertilizer",
		Short: "Show the next due fertilizer dose",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := opts.load(cmd)
			if err != nil {
				return err
			}
			rec, err := fertilizer.NewEngine(e.kb).Calculate(fertilizer.Input{
				Crop:            e.farm.Crop,
				Soil:            e.farm.Soil,
				DaysSinceSowing: e.farm.DaysSinceSowing(e.clock.Now()),
			})
			if err != nil {
				return err
			}
			return e.emit(rec, rec.Reason,
				fmt.Sprintf("action: %s (stage %s)", rec.Action, rec.Stage),
				fmt.Sprintf("dose: N %.1f  P %.1f  K %.1f kg/ha", rec.Dose.N, rec.Dose.P, rec.Dose.K))
		},
	}
}
