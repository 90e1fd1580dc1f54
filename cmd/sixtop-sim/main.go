// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

// Command sixtop-sim is a demonstration harness for the 6top transaction
// machine: each `sixtop-sim run` process is one node, linked to its peers
// over loopback SCTP associations that carry raw 6P frames in place of the
// out-of-scope 802.15.4e radio (spec.md §1/§5). The add/anycast/clear
// subcommands drive a running node's transaction machine through its
// control socket, reproducing spec.md §8's scenarios 1, 5, and 3.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "sixtop-sim",
		Short: "Demonstration harness for the 6top transaction machine over loopback SCTP",
	}
	root.AddCommand(newRunCmd(), newAddCmd(), newAnycastCmd(), newListCmd(), newClearCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRunCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a sixtop-sim node",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			log := slog.New(slog.NewTextHandler(os.Stderr, nil)).With("self", cfg.Self)

			n, err := newNode(cfg, log)
			if err != nil {
				return err
			}
			if err := n.start(); err != nil {
				return err
			}

			log.Info("sixtop-sim node running",
				"listen_port", cfg.ListenPort,
				"control_socket", cfg.ControlSocket,
				"metrics_addr", cfg.MetricsAddr,
			)
			select {}
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "sixtop-sim.yaml", "path to node config file")
	return cmd
}

func newAddCmd() *cobra.Command {
	var socketPath, peer string
	var slot, channel uint16
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Drive a two-step 6P ADD against a running node (spec.md §8 scenario 1)",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := sendControl(socketPath, controlRequest{Op: "add", Peer: peer, Slot: slot, Channel: channel})
			if err != nil {
				return err
			}
			return reportControl(resp)
		},
	}
	cmd.Flags().StringVar(&socketPath, "socket", "/tmp/sixtop-sim.sock", "node control socket path")
	cmd.Flags().StringVar(&peer, "peer", "", "peer short address (required)")
	cmd.Flags().Uint16Var(&slot, "slot", 0, "slot offset to request")
	cmd.Flags().Uint16Var(&channel, "channel", 0, "channel offset to request")
	cmd.MarkFlagRequired("peer")
	return cmd
}

func newAnycastCmd() *cobra.Command {
	var socketPath, parent1, parent2 string
	cmd := &cobra.Command{
		Use:   "anycast",
		Short: "Drive the 3-step anycast ADD against a running node (spec.md §8 scenario 5)",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := sendControl(socketPath, controlRequest{Op: "anycast", Peer: parent1, Peer2: parent2})
			if err != nil {
				return err
			}
			return reportControl(resp)
		},
	}
	cmd.Flags().StringVar(&socketPath, "socket", "/tmp/sixtop-sim.sock", "node control socket path")
	cmd.Flags().StringVar(&parent1, "parent1", "", "first parent short address (required)")
	cmd.Flags().StringVar(&parent2, "parent2", "", "second parent short address (required)")
	cmd.MarkFlagRequired("parent1")
	cmd.MarkFlagRequired("parent2")
	return cmd
}

func newListCmd() *cobra.Command {
	var socketPath, peer string
	var offset, maxCells uint16
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Drive a 6P LIST against a running node (spec.md §8 scenario 4)",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := sendControl(socketPath, controlRequest{Op: "list", Peer: peer, Offset: offset, MaxCells: maxCells})
			if err != nil {
				return err
			}
			return reportControl(resp)
		},
	}
	cmd.Flags().StringVar(&socketPath, "socket", "/tmp/sixtop-sim.sock", "node control socket path")
	cmd.Flags().StringVar(&peer, "peer", "", "peer short address (required)")
	cmd.Flags().Uint16Var(&offset, "offset", 0, "cell-list enumeration start offset")
	cmd.Flags().Uint16Var(&maxCells, "max-cells", 10, "maximum cells to return")
	cmd.MarkFlagRequired("peer")
	return cmd
}

func newClearCmd() *cobra.Command {
	var socketPath, peer string
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Drive a CLEAR against a running node, including the dead-peer fallback (spec.md §8 scenario 3)",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := sendControl(socketPath, controlRequest{Op: "clear", Peer: peer})
			if err != nil {
				return err
			}
			return reportControl(resp)
		},
	}
	cmd.Flags().StringVar(&socketPath, "socket", "/tmp/sixtop-sim.sock", "node control socket path")
	cmd.Flags().StringVar(&peer, "peer", "", "peer short address (required)")
	cmd.MarkFlagRequired("peer")
	return cmd
}

func reportControl(resp controlResponse) error {
	if !resp.OK {
		return fmt.Errorf("sixtop-sim: %s", resp.Error)
	}
	fmt.Println("ok")
	return nil
}
