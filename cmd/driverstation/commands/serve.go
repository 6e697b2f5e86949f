package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openrover/driverstation/internal/api"
	"github.com/openrover/driverstation/internal/config"
	"github.com/openrover/driverstation/internal/logger"
	"github.com/openrover/driverstation/internal/output"
	"github.com/openrover/driverstation/internal/overlay"
	"github.com/openrover/driverstation/internal/receiver"
	"github.com/openrover/driverstation/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the driverstation server",
	Long: `Start the video receiver and HTTP server.

The receiver listens for an RTP/JPEG stream on the configured UDP port and
keeps the latest decoded frame available; the HTTP server exposes it as an
MJPEG stream, JPEG snapshots, and a REST/WebSocket API.`,
	Example: `  # Start with defaults (video on UDP 5000, HTTP on 8080)
  driverstation serve

  # Receive video on a different UDP port
  driverstation serve --video-port 5600

  # Start with debug logging
  driverstation serve --log-level debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to initialize config manager: %w", err)
	}

	// Flag overrides
	if viper.IsSet("server_port") {
		if port := viper.GetInt("server_port"); port > 0 {
			configMgr.SetPort(port)
		}
	}
	if viper.IsSet("video_port") {
		if port := viper.GetInt("video_port"); port > 0 {
			configMgr.SetVideoPort(port)
		}
	}
	if viper.IsSet("log_level") {
		if level := viper.GetString("log_level"); level != "" {
			configMgr.SetLogLevel(level)
		}
	}

	cfg := configMgr.Get()
	logger.Init(cfg.LogLevel, true)
	log := logger.WithComponent("serve")
	log.Info().Str("config", configMgr.GetConfigPath()).Msg("Configuration loaded")

	mjpegOut := output.NewMJPEGOutput(output.Config{})
	if err := mjpegOut.Start(); err != nil {
		return fmt.Errorf("failed to start MJPEG output: %w", err)
	}
	defer mjpegOut.Stop()

	var telemetrySvc *telemetry.Service
	if cfg.Telemetry.Enabled {
		telemetrySvc = telemetry.NewService()
		if err := telemetrySvc.Connect(cfg.Telemetry.URL); err != nil {
			// The vehicle may come up later; drive updates reconnect manually
			log.Warn().Err(err).Msg("Telemetry connection failed, continuing without")
		}
		defer telemetrySvc.Disconnect()
	}

	// The API server and receiver reference each other through these
	// variables; both are set before any event can fire at a subscriber.
	var (
		rcv    *receiver.Receiver
		server *api.Server
	)

	rcv, err = receiver.New(receiver.Options{
		Engine: receiver.NewGstEngine(),
		Video:  cfg.Video,
		Events: receiver.Events{
			OnStatus: func(status receiver.Status) {
				if server != nil {
					server.PublishStatus(status)
				}
				if !status.HasActiveStream {
					// Keep viewers informed while the feed is down: last
					// frame (or placeholder) with the status stamped on
					img := rcv.Frame().ToRGBA()
					overlay.DrawStatusText(img, status.Message)
					_ = mjpegOut.WriteFrame(img)
				}
			},
			OnFrame: func(id uint64) {
				_ = mjpegOut.WriteFrame(rcv.Frame().ToRGBA())
			},
			OnError: func(msg string) {
				log.Error().Str("error", msg).Msg("Stream error")
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create receiver: %w", err)
	}
	defer rcv.Close()

	server = api.NewServer(rcv, configMgr, telemetrySvc)
	server.Router().HandleFunc("/stream", mjpegOut.StreamHandler())
	server.Router().HandleFunc("/snapshot", mjpegOut.SnapshotHandler())

	rcv.StartStream(cfg.Video.Port)

	go func() {
		if err := server.Start(cfg.ServerPort); err != nil {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	log.Info().
		Int("http_port", cfg.ServerPort).
		Int("video_port", cfg.Video.Port).
		Msg("driverstation is running, press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("Shutting down")
	rcv.StopStream()
	return nil
}
