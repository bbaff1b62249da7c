// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ringmesh/rings/pkg/signaling/transport"
	"github.com/ringmesh/rings/pkg/signaling/transport/websocket"
)

var (
	handshakeFrom    string
	handshakeTo      string
	handshakeTimeout time.Duration
)

var handshakeCmd = &cobra.Command{
	Use:   "handshake <relay-url>",
	Short: "Send a test signaling envelope through a signalrelay and print the ack",
	Long: `Connects to a ringsd signalrelay over WebSocket and sends a single
offer envelope, for checking that the relay and the two Dids involved are
reachable before attempting a real connect_node handshake.`,
	Args: cobra.ExactArgs(1),
	Example: `  ringsctl handshake wss://relay.example.com/signal --from <did> --to <did>`,
	RunE: runHandshake,
}

func init() {
	rootCmd.AddCommand(handshakeCmd)

	handshakeCmd.Flags().StringVar(&handshakeFrom, "from", "", "hex Did of the sending node")
	handshakeCmd.Flags().StringVar(&handshakeTo, "to", "", "hex Did of the target node")
	handshakeCmd.Flags().DurationVar(&handshakeTimeout, "timeout", 10*time.Second, "round-trip timeout")
}

func runHandshake(cmd *cobra.Command, args []string) error {
	if handshakeFrom == "" || handshakeTo == "" {
		return fmt.Errorf("--from and --to are required")
	}

	relay := websocket.NewWSTransport(args[0])
	defer relay.Close()

	env := &transport.SignalEnvelope{
		ID:   uuid.NewString(),
		From: handshakeFrom,
		To:   handshakeTo,
		Kind: transport.KindOffer,
		Body: []byte(`{"smoke_test":true}`),
	}

	ctx, cancel := context.WithTimeout(context.Background(), handshakeTimeout)
	defer cancel()

	ack, err := relay.Send(ctx, env)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}

	if !ack.Success {
		return fmt.Errorf("relay rejected envelope %s: %v", ack.EnvelopeID, ack.Error)
	}

	fmt.Printf("ack: envelope=%s success=%v\n", ack.EnvelopeID, ack.Success)
	return nil
}
