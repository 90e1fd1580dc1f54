// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.
package main

import (
	"encoding/json"
	"fmt"
	"net"

	"sixtop/core"
	"sixtop/mac"
)

// controlRequest is one JSON object sent over the node's Unix control
// socket by the add/anycast/clear/list subcommands to drive a running
// `sixtop-sim run` node, the demo harness's stand-in for a real operator
// console talking to the 6P layer.
type controlRequest struct {
	Op       string `json:"op"`
	Peer     string `json:"peer,omitempty"`
	Peer2    string `json:"peer2,omitempty"`
	Slot     uint16 `json:"slot,omitempty"`
	Channel  uint16 `json:"channel,omitempty"`
	Offset   uint16 `json:"offset,omitempty"`
	MaxCells uint16 `json:"max_cells,omitempty"`
}

type controlResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// serveControl listens on socketPath and drives n's SixtopCore for every
// accepted connection, one request-response exchange per connection.
func serveControl(socketPath string, n *node) error {
	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("sixtop-sim: listening on control socket %s: %w", socketPath, err)
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go handleControl(n, conn)
		}
	}()
	return nil
}

func handleControl(n *node, conn net.Conn) {
	defer conn.Close()
	var req controlRequest
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		json.NewEncoder(conn).Encode(controlResponse{Error: err.Error()})
		return
	}
	json.NewEncoder(conn).Encode(dispatchControl(n, req))
}

// dispatchControl turns one control request into a core.SixtopRequest call,
// reproducing the driven scenarios of spec.md §8: a two-step ADD
// (scenario 1), the 3-step anycast ADD (scenario 5), CLEAR including its
// dead-peer fallback (scenario 3), and LIST (scenario 4).
func dispatchControl(n *node, req controlRequest) controlResponse {
	switch req.Op {
	case "add":
		peer, err := parseAddress(req.Peer)
		if err != nil {
			return controlResponse{Error: err.Error()}
		}
		addList, err := mac.NewCellList(mac.CellInfo{SlotOffset: req.Slot, ChannelOffset: req.Channel, InUse: true})
		if err != nil {
			return controlResponse{Error: err.Error()}
		}
		err = n.core.SixtopRequest(core.RequestParams{
			Command:       mac.CmdADD,
			NeighborFirst: peer,
			CellOptions:   mac.OptTX,
			AddList:       addList,
			SFID:          n.sf.GetSFID(),
		})
		if err != nil {
			return controlResponse{Error: err.Error()}
		}
		// Optimistic: the real negotiation outcome only lands asynchronously
		// via the response handler, but mac.NeighborTable has no "pending"
		// state to mark, so the demo harness's KA rotation treats a sent ADD
		// as negotiated immediately rather than threading a confirmation
		// callback through just for this.
		n.neigh.markNegotiated(peer)
		return controlResponse{OK: true}

	case "anycast":
		p1, err := parseAddress(req.Peer)
		if err != nil {
			return controlResponse{Error: err.Error()}
		}
		p2, err := parseAddress(req.Peer2)
		if err != nil {
			return controlResponse{Error: err.Error()}
		}
		err = n.core.SixtopRequest(core.RequestParams{
			Command:        mac.CmdADD,
			NeighborFirst:  p1,
			NeighborSecond: p2,
			CellOptions:    mac.OptTX | mac.OptAnycast,
			SFID:           n.sf.GetSFID(),
		})
		if err != nil {
			return controlResponse{Error: err.Error()}
		}
		n.neigh.markNegotiated(p1)
		return controlResponse{OK: true}

	case "list":
		peer, err := parseAddress(req.Peer)
		if err != nil {
			return controlResponse{Error: err.Error()}
		}
		maxCells := req.MaxCells
		if maxCells == 0 {
			maxCells = 10
		}
		err = n.core.SixtopRequest(core.RequestParams{
			Command:       mac.CmdLIST,
			NeighborFirst: peer,
			CellOptions:   mac.OptTX,
			SFID:          n.sf.GetSFID(),
			ListOffset:    req.Offset,
			ListMaxCells:  maxCells,
		})
		if err != nil {
			return controlResponse{Error: err.Error()}
		}
		return controlResponse{OK: true}

	case "clear":
		peer, err := parseAddress(req.Peer)
		if err != nil {
			return controlResponse{Error: err.Error()}
		}
		err = n.core.SixtopRequest(core.RequestParams{
			Command:       mac.CmdCLEAR,
			NeighborFirst: peer,
			SFID:          n.sf.GetSFID(),
		})
		if err != nil {
			return controlResponse{Error: err.Error()}
		}
		return controlResponse{OK: true}

	default:
		return controlResponse{Error: fmt.Sprintf("sixtop-sim: unknown op %q", req.Op)}
	}
}

// sendControl dials socketPath, sends req, and waits for the node's
// response, the add/anycast/clear subcommands' half of the control
// protocol.
func sendControl(socketPath string, req controlRequest) (controlResponse, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return controlResponse{}, fmt.Errorf("sixtop-sim: dialing control socket %s: %w", socketPath, err)
	}
	defer conn.Close()
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return controlResponse{}, fmt.Errorf("sixtop-sim: sending control request: %w", err)
	}
	var resp controlResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return controlResponse{}, fmt.Errorf("sixtop-sim: reading control response: %w", err)
	}
	return resp, nil
}
