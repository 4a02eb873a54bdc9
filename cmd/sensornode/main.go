// Command sensornode runs a sensor mesh node: a leaf, a repeater or a
// gateway, depending on configuration. The radio is a serial-attached
// modem; gateways bridge to a controller over a second serial line or an
// MQTT broker.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sensornet/sensornet-go/core/clock"
	"github.com/sensornet/sensornet-go/core/nvm"
	"github.com/sensornet/sensornet-go/core/ota"
	"github.com/sensornet/sensornet-go/core/sign"
	"github.com/sensornet/sensornet-go/device/node"
	"github.com/sensornet/sensornet-go/gateway"
	"github.com/sensornet/sensornet-go/transport/serial"
)

func main() {
	root := &cobra.Command{
		Use:           "sensornode",
		Short:         "sensor mesh node daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var configPath string
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run the node until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	runCmd.Flags().StringVarP(&configPath, "config", "c", "sensornode.yaml", "configuration file")
	root.AddCommand(runCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := nvm.OpenFile(cfg.StatePath)
	if err != nil {
		return err
	}
	defer store.Close()

	radio := serial.New(serial.Config{
		Port:     cfg.Radio.Port,
		BaudRate: cfg.Radio.Baud,
		Logger:   logger,
	})
	if err := radio.Start(ctx); err != nil {
		return err
	}
	defer radio.Stop()

	clk := clock.NewSystem()

	nodeCfg := node.Config{
		Radio:             radio,
		Store:             store,
		Clock:             clk,
		Gateway:           cfg.Gateway.Enabled,
		Repeater:          cfg.Node.Repeater,
		AutoFindParent:    cfg.Node.AutoFindParent,
		RequestSignatures: cfg.Signing.RequestSignatures,
		Logger:            logger,
	}

	if cfg.Signing.PSK != "" {
		signer, err := sign.NewSoft(sign.SoftConfig{
			PSK:   []byte(cfg.Signing.PSK),
			Clock: clk,
		})
		if err != nil {
			return err
		}
		nodeCfg.Signer = signer
	}

	if cfg.OTA.Enabled {
		flash, err := ota.OpenFileFlash(cfg.OTA.FlashPath)
		if err != nil {
			return err
		}
		defer flash.Close()
		nodeCfg.Flash = flash
		nodeCfg.Reboot = func() {
			logger.Info("firmware staged, restarting")
			stop()
		}
	}

	var bridge gateway.Bridge
	if cfg.Gateway.Enabled {
		if cfg.Gateway.MQTT.Broker != "" {
			bridge = gateway.NewMQTTBridge(gateway.MQTTConfig{
				Broker:      cfg.Gateway.MQTT.Broker,
				Username:    cfg.Gateway.MQTT.Username,
				Password:    cfg.Gateway.MQTT.Password,
				UseTLS:      cfg.Gateway.MQTT.TLS,
				TopicPrefix: cfg.Gateway.MQTT.TopicPrefix,
				Logger:      logger,
			})
		} else {
			bridge = gateway.NewSerialBridge(gateway.SerialConfig{
				Port:     cfg.Gateway.Serial.Port,
				BaudRate: cfg.Gateway.Serial.Baud,
				Logger:   logger,
			})
		}
		if err := bridge.Start(ctx); err != nil {
			return err
		}
		defer bridge.Stop()
		nodeCfg.Bridge = bridge
	}

	n, err := node.New(nodeCfg)
	if err != nil {
		return err
	}
	if err := n.Start(); err != nil {
		return err
	}

	logger.Info("node running", "id", n.ID(), "parent", n.Parent(), "distance", n.Distance())

	// The engine is one cooperative task: poll it, feed it controller
	// traffic, and idle briefly between polls.
	for ctx.Err() == nil {
		if err := n.Process(); err != nil {
			return err
		}
		if bridge != nil {
			for {
				msg, ok := bridge.Poll()
				if !ok {
					break
				}
				if err := n.SendRoute(msg); err != nil {
					logger.Debug("controller message not routable", "error", err)
				}
			}
		}
		clk.Sleep(time.Millisecond)
	}

	logger.Info("shutting down", "counters", n.Counters().Snapshot())
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
