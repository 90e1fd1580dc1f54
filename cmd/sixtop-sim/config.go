// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.
package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/viper"

	"sixtop/mac"
)

// PeerConfig names one mesh neighbor this node dials out to over SCTP.
type PeerConfig struct {
	Address string `mapstructure:"address"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// NodeConfig is a run node's full configuration, loaded via viper from a
// flat file the way the teacher loads gnbsim.json, but through viper's
// layered flags/env/file resolution instead of a hand-rolled JSON reader.
type NodeConfig struct {
	Self            string `mapstructure:"self"`
	SFID            byte   `mapstructure:"sfid"`
	SlotframeLength uint16 `mapstructure:"slotframe_length"`
	NumChannels     uint16 `mapstructure:"num_channels"`

	ListenPort     int    `mapstructure:"listen_port"`
	ControlSocket  string `mapstructure:"control_socket"`
	MetricsAddr    string `mapstructure:"metrics_addr"`
	SlotDurationMS int    `mapstructure:"slot_duration_ms"`

	// TapMirrorAddr, if set, is the UDP address of a running cmd/sixtop-tap
	// instance; every frame this node sends or receives is copied there for
	// development-time capture (SPEC_FULL.md §3.10). Empty disables mirroring.
	TapMirrorAddr string `mapstructure:"tap_mirror_addr"`

	Peers []PeerConfig `mapstructure:"peers"`
}

func loadConfig(path string) (*NodeConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("sfid", 7)
	v.SetDefault("slotframe_length", 101)
	v.SetDefault("num_channels", 16)
	v.SetDefault("listen_port", 6153)
	v.SetDefault("control_socket", "/tmp/sixtop-sim.sock")
	v.SetDefault("metrics_addr", ":9100")
	v.SetDefault("slot_duration_ms", 10)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("sixtop-sim: reading config %s: %w", path, err)
	}
	var cfg NodeConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("sixtop-sim: parsing config %s: %w", path, err)
	}
	if cfg.Self == "" {
		return nil, fmt.Errorf("sixtop-sim: config %s: \"self\" is required", path)
	}
	return &cfg, nil
}

// parseAddress turns a short16 decimal/hex address string ("2", "0x2") into
// a mac.Address. The demo harness only ever uses short addresses; the
// long EUI-64 variant is exercised by the unit tests, not this CLI, and
// IPv6 addresses are used by neither.
func parseAddress(s string) (mac.Address, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return mac.Address{}, fmt.Errorf("sixtop-sim: invalid address %q: %w", s, err)
	}
	return mac.Short16Address(uint16(v)), nil
}
