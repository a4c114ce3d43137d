package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"krishi/internal/types"
	"krishi/internal/weather"
)

func newWeatherCmd(opts *options) *cobra.Command {
	var live types.WeatherReading
	cmd := &cobra.Command{
		Use:   "weather",
		Short: "Show the weather advisory",
		Long: `Without observation flags the seasonal normal for the month is shown.
Passing any of --temp, --humidity, --rain-mm, --rain-prob or --raining treats
the values as a live observation.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := opts.load(cmd)
			if err != nil {
				return err
			}
			var reading *types.WeatherReading
			for _, name := range []string{"temp", "humidity", "rain-mm", "rain-prob", "raining"} {
				if cmd.Flags().Changed(name) {
					live.ObservedAt = e.clock.Now()
					reading = &live
					break
				}
			}
			adv := weather.NewEngine(weather.Config{Climate: e.kb, Clock: e.clock, Logger: e.logger}).GetWeatherData(reading)
			return e.emit(adv, adv.Advice,
				fmt.Sprintf("source: %s (%s)", adv.Source, adv.Season.EN),
				fmt.Sprintf("temperature %.1f C, rain probability %.0f%%, irrigation factor %.2f",
					adv.Reading.TemperatureC, adv.Reading.RainProbability*100, adv.WeatherFactor))
		},
	}
	f := cmd.Flags()
	f.Float64Var(&live.TemperatureC, "temp", 0, "observed temperature (C)")
	f.Float64Var(&live.HumidityPct, "humidity", 0, "observed relative humidity (%)")
	f.Float64Var(&live.RainfallMM, "rain-mm", 0, "rainfall in the last day (mm)")
	f.Float64Var(&live.RainProbability, "rain-prob", 0, "forecast rain probability (0-1)")
	f.BoolVar(&live.IsRaining, "raining", false, "it is raining now")
	return cmd
}
