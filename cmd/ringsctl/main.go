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
	"fmt"
	"os"

	"github.com/spf13/cobra"

	_ "github.com/ringmesh/rings/internal/cryptoinit"
)

var rootCmd = &cobra.Command{
	Use:   "ringsctl",
	Short: "rings control CLI - identity, ICE and handshake utilities",
	Long: `ringsctl provides tooling for operating a rings node:

- identity key generation and inspection
- ICE server URL parsing/validation
- a signaling smoke test that sends one offer envelope through a running signalrelay`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// Commands are registered in their own files:
	// - keygen.go: keygenCmd
	// - did.go: didCmd
	// - ice.go: iceCmd
	// - handshake.go: handshakeCmd
}
