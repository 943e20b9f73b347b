// mqttlog subscribes to MQTT topics and appends every message it receives
// to a log file, one line per message:
//
//	2024-05-01 12:30:45 | Topic: rye/test | Message: hello
//
// Run with no subcommand to start the recorder. Send SIGHUP after rotating
// the log file; SIGINT or SIGTERM drains pending messages and exits.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/mqttlog/internal/infrastructure/config"
	"github.com/nerrad567/mqttlog/internal/infrastructure/logging"
	"github.com/nerrad567/mqttlog/internal/infrastructure/mqtt"
	"github.com/nerrad567/mqttlog/internal/recorder"
)

// Version information, set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"
	configEnv         = "MQTTLOG_CONFIG"

	// publishTimeout bounds connecting and publishing in the publish command.
	publishTimeout = 15 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "mqttlog",
		Short:         "Append MQTT messages to a log file",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"config file (default $"+configEnv+" or "+defaultConfigPath+")")

	root.AddCommand(
		newRunCmd(&configPath),
		newPublishCmd(&configPath),
		newVersionCmd(),
	)
	return root
}

func newRunCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Subscribe and record messages until interrupted (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), *configPath)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mqttlog %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}

func newPublishCmd(configPath *string) *cobra.Command {
	var (
		topic  string
		qos    int
		retain bool
	)

	cmd := &cobra.Command{
		Use:   "publish [payload...]",
		Short: "Publish one message to the configured broker",
		Long: "Publish one message to the configured broker. The payload is the\n" +
			"arguments joined by spaces, or standard input when none are given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if qos < 0 || qos > 2 {
				return fmt.Errorf("--qos must be 0, 1, or 2")
			}
			payload, err := readPayload(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return publish(cmd.Context(), *configPath, topic, payload, byte(qos), retain)
		},
	}
	cmd.Flags().StringVarP(&topic, "topic", "t", "", "topic to publish to")
	cmd.Flags().IntVarP(&qos, "qos", "q", 0, "quality of service (0, 1 or 2)")
	cmd.Flags().BoolVarP(&retain, "retain", "r", false, "ask the broker to retain the message")
	//nolint:errcheck // flag is defined above
	cmd.MarkFlagRequired("topic")
	return cmd
}

func readPayload(args []string, stdin io.Reader) ([]byte, error) {
	if len(args) > 0 {
		return []byte(strings.Join(args, " ")), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return nil, fmt.Errorf("reading payload from stdin: %w", err)
	}
	return data, nil
}

// run is the recorder command, separated from cobra for testability.
func run(ctx context.Context, flagPath string) error {
	log := logging.Default()
	log.Info("starting mqttlog",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	path, explicit := getConfigPath(flagPath)
	cfg, err := loadConfig(path, explicit)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", path)

	log = logging.New(cfg.Logging, version)

	rec, err := recorder.New(cfg, log, version)
	if err != nil {
		return err
	}

	stopHUP := reopenOnHangup(rec, log)
	defer stopHUP()

	if err := rec.Run(ctx); err != nil {
		return err
	}
	log.Info("mqttlog stopped")
	return nil
}

// reopenOnHangup reopens the log file on every SIGHUP until the returned
// func is called.
func reopenOnHangup(rec *recorder.Recorder, log *logging.Logger) func() {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-hup:
				log.Info("SIGHUP received, reopening log file")
				_ = rec.Reopen() //nolint:errcheck // logged by the recorder
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(hup)
		close(done)
	}
}

// publish sends one message and waits for the broker to accept it.
func publish(ctx context.Context, flagPath, topic string, payload []byte, qos byte, retain bool) error {
	path, explicit := getConfigPath(flagPath)
	cfg, err := loadConfig(path, explicit)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := mqtt.ValidateTopic(topic); err != nil {
		return err
	}

	// A separate identity, so publishing never takes over a running
	// recorder's session or its status topic.
	pubCfg := cfg.MQTT
	pubCfg.Broker.ClientID = ""
	pubCfg.StatusTopic = ""

	client := mqtt.New(pubCfg)
	client.SetLogger(logging.New(cfg.Logging, version).With("component", "publish"))

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Disconnect() //nolint:errcheck // best effort after publishing

	return client.Publish(ctx, topic, payload, qos, retain)
}

// getConfigPath resolves the config file: --config, then $MQTTLOG_CONFIG,
// then the default. explicit is false only for the default.
func getConfigPath(flagPath string) (path string, explicit bool) {
	if flagPath != "" {
		return flagPath, true
	}
	if env := os.Getenv(configEnv); env != "" {
		return env, true
	}
	return defaultConfigPath, false
}

// loadConfig requires an explicitly named file to exist; a missing default
// file means built-in defaults.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	if explicit {
		return config.Load(path)
	}
	return config.LoadOrDefault(path)
}
