package main

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"trace-rescue/internal/recognition"
)

var (
	previewFlag  bool
	continueFlag bool
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize",
	Short: "Watch the camera and alert when a missing person is recognized",
	RunE: func(cmd *cobra.Command, args []string) error {
		var opts recognition.Options
		if cmd.Flags().Changed("preview") {
			opts.Preview = &previewFlag
		}
		if continueFlag {
			cfg.Detection.StopAfterAlert = false
		}

		log.WithFields(log.Fields{
			"camera":    cfg.Camera.Location,
			"threshold": cfg.Detection.MatchThreshold,
			"cooldown":  cfg.Alert.Cooldown,
			"debug":     cfg.Alert.Debug,
		}).Info("Starting recognition")

		res, err := recognition.Run(cmd.Context(), cfg, opts)
		if err != nil {
			return err
		}
		if res.LastAlert != nil {
			log.Infof("Alert sent for %s at %s", res.LastAlert.PersonName, res.LastAlert.Location)
		}
		return nil
	},
}

func init() {
	recognizeCmd.Flags().BoolVarP(&previewFlag, "preview", "p", false, "Show annotated frames in a window (q quits)")
	recognizeCmd.Flags().BoolVar(&continueFlag, "continue", false, "Keep watching after an alert instead of stopping")
	rootCmd.AddCommand(recognizeCmd)
}
