package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/openrover/driverstation/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage driverstation configuration",
	Long:  `View and manage driverstation configuration settings.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current driverstation configuration.`,
	Example: `  # Show configuration as YAML (default)
  driverstation config show

  # Show configuration as JSON
  driverstation config show --format json`,
	RunE: runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Set a configuration value",
	Long:  `Set a specific configuration value and persist it.`,
	Example: `  # Set the UDP video port
  driverstation config set video.port 5600

  # Disable horizontal mirroring
  driverstation config set video.mirror_horizontal false`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configGetCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Get a configuration value",
	Long:  `Get a specific configuration value.`,
	Example: `  # Get the UDP video port
  driverstation config get video.port

  # Get log level
  driverstation config get log_level`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigGet,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	Long:  `Display the path to the configuration file.`,
	RunE:  runConfigPath,
}

var formatFlag string

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configPathCmd)

	configShowCmd.Flags().StringVarP(&formatFlag, "format", "f", "yaml", "output format (yaml or json)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cfg := configMgr.Get()

	switch formatFlag {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(cfg)
	case "yaml":
		encoder := yaml.NewEncoder(os.Stdout)
		encoder.SetIndent(2)
		return encoder.Encode(cfg)
	default:
		return fmt.Errorf("unsupported format: %s (use 'yaml' or 'json')", formatFlag)
	}
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	value := args[1]

	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cfg := configMgr.Get()

	parsePort := func() (int, error) {
		port, err := strconv.Atoi(value)
		if err != nil || port < 1 || port > 65535 {
			return 0, fmt.Errorf("invalid port number: %s", value)
		}
		return port, nil
	}
	parseInt := func() (int, error) {
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid number: %s", value)
		}
		return n, nil
	}
	parseBool := func() (bool, error) {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return false, fmt.Errorf("invalid boolean: %s (use: true or false)", value)
		}
		return b, nil
	}

	switch key {
	case "server_port":
		port, err := parsePort()
		if err != nil {
			return err
		}
		cfg.ServerPort = port
	case "log_level":
		validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
		if !validLevels[value] {
			return fmt.Errorf("invalid log level: %s (use: debug, info, warn, error)", value)
		}
		cfg.LogLevel = value
	case "video.port":
		port, err := parsePort()
		if err != nil {
			return err
		}
		cfg.Video.Port = port
	case "video.buffer_size":
		n, err := parseInt()
		if err != nil {
			return err
		}
		cfg.Video.BufferSize = n
	case "video.queue_depth":
		n, err := parseInt()
		if err != nil {
			return err
		}
		cfg.Video.QueueDepth = n
	case "video.frame_timeout_sec":
		n, err := parseInt()
		if err != nil {
			return err
		}
		cfg.Video.FrameTimeoutSec = n
	case "video.placeholder_width":
		n, err := parseInt()
		if err != nil {
			return err
		}
		cfg.Video.PlaceholderWidth = n
	case "video.placeholder_height":
		n, err := parseInt()
		if err != nil {
			return err
		}
		cfg.Video.PlaceholderHeight = n
	case "video.mirror_horizontal":
		b, err := parseBool()
		if err != nil {
			return err
		}
		cfg.Video.MirrorHorizontal = b
	case "video.mirror_vertical":
		b, err := parseBool()
		if err != nil {
			return err
		}
		cfg.Video.MirrorVertical = b
	case "telemetry.enabled":
		b, err := parseBool()
		if err != nil {
			return err
		}
		cfg.Telemetry.Enabled = b
	case "telemetry.url":
		cfg.Telemetry.URL = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}

	if err := configMgr.Update(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("Configuration updated: %s = %s\n", key, value)
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	key := args[0]

	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cfg := configMgr.Get()

	var value interface{}
	switch key {
	case "server_port":
		value = cfg.ServerPort
	case "log_level":
		value = cfg.LogLevel
	case "video.port":
		value = cfg.Video.Port
	case "video.buffer_size":
		value = cfg.Video.BufferSize
	case "video.queue_depth":
		value = cfg.Video.QueueDepth
	case "video.frame_timeout_sec":
		value = cfg.Video.FrameTimeoutSec
	case "video.placeholder_width":
		value = cfg.Video.PlaceholderWidth
	case "video.placeholder_height":
		value = cfg.Video.PlaceholderHeight
	case "video.mirror_horizontal":
		value = cfg.Video.MirrorHorizontal
	case "video.mirror_vertical":
		value = cfg.Video.MirrorVertical
	case "telemetry.enabled":
		value = cfg.Telemetry.Enabled
	case "telemetry.url":
		value = cfg.Telemetry.URL
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}

	fmt.Println(value)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Println(configMgr.GetConfigPath())
	return nil
}
