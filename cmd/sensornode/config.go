package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileConfig is the daemon configuration file.
type FileConfig struct {
	// Radio is the serial-attached radio modem.
	Radio struct {
		Port string `yaml:"port"`
		Baud int    `yaml:"baud"`
	} `yaml:"radio"`

	// StatePath is the nonvolatile store file.
	StatePath string `yaml:"state_path"`

	Node struct {
		Repeater       bool `yaml:"repeater"`
		AutoFindParent bool `yaml:"auto_find_parent"`
	} `yaml:"node"`

	Gateway struct {
		Enabled bool `yaml:"enabled"`
		// Serial and MQTT select the controller bridge; exactly one may
		// be configured.
		Serial struct {
			Port string `yaml:"port"`
			Baud int    `yaml:"baud"`
		} `yaml:"serial"`
		MQTT struct {
			Broker      string `yaml:"broker"`
			Username    string `yaml:"username"`
			Password    string `yaml:"password"`
			TLS         bool   `yaml:"tls"`
			TopicPrefix string `yaml:"topic_prefix"`
		} `yaml:"mqtt"`
	} `yaml:"gateway"`

	Signing struct {
		PSK               string `yaml:"psk"`
		RequestSignatures bool   `yaml:"request_signatures"`
	} `yaml:"signing"`

	OTA struct {
		Enabled   bool   `yaml:"enabled"`
		FlashPath string `yaml:"flash_path"`
	} `yaml:"ota"`

	LogLevel string `yaml:"log_level"`
}

// LoadConfig reads and validates a configuration file.
func LoadConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Radio.Port == "" {
		return nil, fmt.Errorf("radio.port is required")
	}
	if cfg.StatePath == "" {
		cfg.StatePath = "sensornode-state.bin"
	}
	if cfg.Gateway.Enabled &&
		cfg.Gateway.Serial.Port == "" && cfg.Gateway.MQTT.Broker == "" {
		return nil, fmt.Errorf("gateway requires a serial port or an MQTT broker")
	}
	if cfg.Gateway.Serial.Port != "" && cfg.Gateway.MQTT.Broker != "" {
		return nil, fmt.Errorf("configure either gateway.serial or gateway.mqtt, not both")
	}
	if cfg.OTA.Enabled && cfg.OTA.FlashPath == "" {
		cfg.OTA.FlashPath = "sensornode-flash.bin"
	}
	return &cfg, nil
}
