// Package recognition wires configuration into a runnable detection loop.
package recognition

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"trace-rescue/config"
	"trace-rescue/internal/alert"
	"trace-rescue/internal/core/detection"
	"trace-rescue/internal/integrations/compreface"
	"trace-rescue/internal/integrations/email"
	"trace-rescue/internal/integrations/messaging"
	"trace-rescue/internal/integrations/mqtt"
	"trace-rescue/internal/integrations/opencv"
	"trace-rescue/internal/integrations/reportsink"
	"trace-rescue/internal/snapshot"
)

// drainTimeout bounds how long Run waits for background message sends.
const drainTimeout = 30 * time.Second

// Options adjust a single run.
type Options struct {
	// Preview opens a window with annotated frames. It overrides
	// detection.preview when set.
	Preview *bool
}

// Run builds the pipeline from cfg, runs the detection loop until it stops
// and releases every resource. Startup failures wrap detection.ErrStartup.
func Run(ctx context.Context, cfg *config.Config, opts Options) (detection.Result, error) {
	if err := cfg.Validate(); err != nil {
		return detection.Result{}, fmt.Errorf("%w: invalid configuration: %v", detection.ErrStartup, err)
	}

	var svc *opencv.Service
	defer func() {
		if svc != nil {
			svc.Close()
		}
	}()

	load := func() (detection.FaceClassifier, error) {
		switch cfg.Recognizer.Provider {
		case "compreface":
			cls, err := compreface.NewClassifier(ctx, cfg.CompreFace)
			if err != nil {
				return nil, err
			}
			svc, err = opencv.NewLocatorService(cfg.Detection)
			if err != nil {
				return nil, err
			}
			return cls, nil
		default:
			var err error
			svc, err = opencv.NewService(cfg.Detection, cfg.Recognizer)
			if err != nil {
				return nil, err
			}
			return svc.Classifier, nil
		}
	}
	open := func(context.Context) (detection.FrameSource, error) {
		return opencv.OpenCapture(cfg.Camera.URL)
	}

	classifier, source, err := detection.Prepare(ctx, load, open)
	if err != nil {
		return detection.Result{}, err
	}

	dispatcher, closeChannels, err := NewDispatcher(cfg)
	if err != nil {
		closeSource(source)
		return detection.Result{}, fmt.Errorf("%w: %v", detection.ErrStartup, err)
	}
	defer closeChannels()

	loopCtx, stop := context.WithCancel(ctx)
	defer stop()

	var loopOpts []detection.Option
	if cfg.ReportSink.Enabled {
		loopOpts = append(loopOpts, detection.WithReportSink(reportsink.NewClient(cfg.ReportSink)))
	}
	preview := cfg.Detection.Preview
	if opts.Preview != nil {
		preview = *opts.Preview
	}
	if preview {
		p := opencv.NewPreview(stop)
		defer p.Close()
		loopOpts = append(loopOpts, detection.WithAnnotator(p))
	}

	loop := detection.NewLoop(detection.Config{
		MatchThreshold: cfg.Detection.MatchThreshold,
		FaceSize:       cfg.Detection.FaceSize,
		ReadRetries:    cfg.Detection.ReadRetries,
		ReadBackoff:    cfg.Detection.ReadBackoff,
		StopAfterAlert: cfg.Detection.StopAfterAlert,
	}, source, svc.Locator, classifier, dispatcher, loopOpts...)

	res, runErr := loop.Run(loopCtx)

	// Die Quelle ist jetzt geschlossen, ausstehende Nachrichten abwarten.
	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := dispatcher.Drain(drainCtx); err != nil {
		log.WithError(err).Warn("Pending alert messages did not finish")
	}

	log.WithFields(log.Fields{
		"frames": res.Frames,
		"alerts": res.Alerts,
		"reason": res.Reason,
	}).Info("Recognition stopped")
	return res, runErr
}

// closeSource releases a source the loop never took over.
func closeSource(source detection.FrameSource) {
	if err := source.Close(); err != nil {
		log.Warnf("Failed to close video source: %v", err)
	}
}

// NewDispatcher builds the alert dispatcher with every enabled channel. The
// returned func releases channel connections.
func NewDispatcher(cfg *config.Config) (*alert.Dispatcher, func(), error) {
	msgs, err := alert.NewMessages(cfg.Alert.Language)
	if err != nil {
		return nil, nil, err
	}

	writer, err := snapshot.NewWriter(cfg.Alert.SnapshotDir)
	if err != nil {
		return nil, nil, err
	}

	channels, closeChannels, err := buildChannels(cfg, msgs)
	if err != nil {
		return nil, nil, err
	}

	var cue alert.Cue = alert.SilentCue{}
	if cfg.Alert.Sound {
		cue = alert.NewBellCue()
	}

	d := alert.NewDispatcher(alert.Options{
		Location:  cfg.Camera.Location,
		Message:   cfg.ReportSink.Message,
		Cooldown:  cfg.Alert.Cooldown,
		Debug:     cfg.Alert.Debug,
		Cue:       cue,
		Snapshots: writer,
		Channels:  channels,
	})
	return d, closeChannels, nil
}

func buildChannels(cfg *config.Config, msgs *alert.Messages) ([]alert.Channel, func(), error) {
	var channels []alert.Channel
	closers := []func(){}
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if cfg.Messaging.Enabled {
		var transport messaging.Transport
		switch cfg.Messaging.Transport {
		case "whatsapp":
			transport = messaging.NewWhatsAppTransport(cfg.Messaging.WhatsApp)
		default:
			client := mqtt.NewClient(cfg.MQTT, cfg.Messaging.TopicBase+"/status")
			if err := client.Start(); err != nil {
				// Der Kanal bleibt aktiv, Sendefehler werden pro Empfänger protokolliert.
				log.WithError(err).Error("MQTT broker not reachable")
			}
			closers = append(closers, client.Stop)
			transport = messaging.NewMQTTTransport(client, cfg.Messaging.TopicBase)
		}
		channels = append(channels, messaging.NewChannel(transport, msgs, cfg.Messaging.Recipients, cfg.Messaging.SendDelay))
		log.Infof("Instant messaging via %s to %d recipients", transport.Name(), len(cfg.Messaging.Recipients))
	}

	if cfg.Email.Enabled {
		emailCfg := email.DefaultConfig(cfg.Email)
		sender, err := email.NewSMTPSender(emailCfg)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("email setup failed: %w", err)
		}
		channels = append(channels, email.NewChannel(sender, msgs, emailCfg.From, emailCfg.Recipients))
		log.Infof("Email alerts to %d recipients", len(emailCfg.Recipients))
	}

	if len(channels) == 0 {
		log.Warn("No alert channels enabled")
	}
	return channels, closeAll, nil
}
