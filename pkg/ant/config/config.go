package config

import (
	"encoding/hex"
	"fmt"
	"time"
)

// Config is the YAML configuration the antscan command loads.
type Config struct {
	Device           string        `yaml:"device"` // serial or file
	SerialPort       string        `yaml:"serial_port"`
	BaudRate         int           `yaml:"baud_rate"`
	PlaybackLocation string        `yaml:"playback_location"`
	PlaybackDelay    time.Duration `yaml:"playback_delay"`
	NetworkKey       string        `yaml:"network_key"` // 8 bytes, hex encoded
	Channels         []Channel     `yaml:"channels"`
	StatusServer     struct {
		Port int `yaml:"port"`
	} `yaml:"status_server"`
	InfluxDB struct {
		Host         string `yaml:"host"`
		Organization string `yaml:"organization"`
		Bucket       string `yaml:"bucket"`
	} `yaml:"influxdb"`
}

// Channel is one channel profile to assign and open at startup.
type Channel struct {
	Number           byte   `yaml:"number"`
	Type             byte   `yaml:"type"`
	Network          byte   `yaml:"network"`
	DeviceNumber     uint16 `yaml:"device_number"`
	DeviceType       byte   `yaml:"device_type"`
	TransmissionType byte   `yaml:"transmission_type"`
	Period           uint16 `yaml:"period"`
	RFFreq           byte   `yaml:"rf_freq"`
	SearchTimeout    byte   `yaml:"search_timeout"`
}

// Key decodes the configured network key.
func (c *Config) Key() ([]byte, error) {
	if c.NetworkKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.NetworkKey)
	if err != nil {
		return nil, fmt.Errorf("network key: %w", err)
	}
	if len(key) != 8 {
		return nil, fmt.Errorf("network key must be 8 bytes, got %d", len(key))
	}
	return key, nil
}
