// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package quic

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the tunables the send path needs as external
// parameters: packet/datagram sizing, initial stream flow control, and
// the timeouts governing blocking reads and admission waits. Config
// can be loaded from YAML via LoadConfig, or constructed directly with
// DefaultConfig for tests.
type Config struct {
	MaxPacketSize        int           `yaml:"max_packet_size"`
	InitialMaxStreamData int64         `yaml:"initial_max_stream_data"`
	ReadTimeout          time.Duration `yaml:"read_timeout"`
	// CryptoRetryBase is the multiplier applied to the smoothed RTT in
	// the crypto retransmission timeout formula CryptoRetryBase*srtt*2^n
	// (default 2, matching the usual 2*srtt*2^n rule).
	CryptoRetryBase      float64       `yaml:"crypto_retry_base"`
	AdmissionWaitTimeout time.Duration `yaml:"admission_wait_timeout"`
}

// DefaultConfig returns a Config with the values this package uses when
// none is supplied.
func DefaultConfig() Config {
	return Config{
		MaxPacketSize:        1200,
		InitialMaxStreamData: 1 << 20,
		ReadTimeout:          30 * time.Second,
		CryptoRetryBase:      2,
		AdmissionWaitTimeout: 5 * time.Second,
	}
}

// LoadConfig reads and parses a YAML config file at path, applying
// DefaultConfig's values for any field left unset.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("quic: read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("quic: parse config: %w", err)
	}
	return cfg, nil
}
