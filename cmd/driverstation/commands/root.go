package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "driverstation",
		Short: "driverstation - ground station for a UDP/RTP video feed",
		Long: `driverstation receives a live RTP/JPEG video stream over UDP, decodes it
and serves the latest frame over HTTP, alongside drive-state telemetry
forwarding to the vehicle.

Features:
  • Low-latency RTP/JPEG reception via GStreamer
  • Stream liveness detection independent of pipeline state
  • MJPEG stream and JPEG snapshots for any browser
  • REST API and WebSocket status events
  • WebSocket telemetry to the vehicle's control endpoint`,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/driverstation/config.yaml)")
	rootCmd.PersistentFlags().Int("port", 0, "HTTP server port (default is 8080)")
	rootCmd.PersistentFlags().Int("video-port", 0, "UDP port to receive video on (default is 5000)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	// Bind flags to viper
	viper.BindPFlag("server_port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("video_port", rootCmd.PersistentFlags().Lookup("video-port"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}
