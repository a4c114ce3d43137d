package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"krishi/internal/health"
)

func newDiagnoseCmd(opts *options) *cobra.Command {
	var text string
	cmd := &cobra.Command{
		Use:   "diagnose [symptom...]",
		Short: "Rank likely diseases for observed symptoms",
		Example: `  advisor diagnose yellow_leaves insects
  advisor diagnose --text "patte peele ho gaye"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && text == "" {
				return errors.New("give symptom ids or --text")
			}
			e, err := opts.load(cmd)
			if err != nil {
				return err
			}
			eng := health.NewEngine(e.kb)
			symptoms := append([]string(nil), args...)
			if text != "" {
				symptoms = append(symptoms, eng.InferSymptoms(text)...)
			}

			d := eng.Diagnose(symptoms)
			details := []string{"symptoms: " + strings.Join(d.Symptoms, ", ")}
			for i, c := range d.Candidates {
				details = append(details, fmt.Sprintf("%d. %s (%.0f%%)", i+1, c.Disease.EN, c.Confidence*100))
			}
			return e.emit(d, d.Advice, details...)
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "free-text description in English, Hindi or Hinglish")
	return cmd
}
