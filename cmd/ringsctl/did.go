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

	sagecrypto "github.com/ringmesh/rings/crypto"
	"github.com/ringmesh/rings/dht"
	"github.com/ringmesh/rings/session"
)

var didCmd = &cobra.Command{
	Use:   "did <key-file>",
	Short: "Print the node Did derived from an identity key file",
	Args:  cobra.ExactArgs(1),
	Example: `  ringsctl did node.pem
  ringsctl did node.jwk --format jwk`,
	RunE: runDid,
}

var didFormat string

func init() {
	rootCmd.AddCommand(didCmd)
	didCmd.Flags().StringVarP(&didFormat, "format", "f", "pem", "Key format (pem, jwk)")
}

func runDid(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}

	var format sagecrypto.KeyFormat
	switch didFormat {
	case "pem":
		format = sagecrypto.KeyFormatPEM
	case "jwk":
		format = sagecrypto.KeyFormatJWK
	default:
		return fmt.Errorf("unsupported key format: %s", didFormat)
	}

	mgr := sagecrypto.NewManager()
	idKey, err := mgr.ImportKeyPair(data, format)
	if err != nil {
		return fmt.Errorf("import identity key: %w", err)
	}

	id, err := session.NewIdentityFromKeyPair(idKey)
	if err != nil {
		return fmt.Errorf("derive identity: %w", err)
	}

	var zero dht.Did
	if id.Did() == zero {
		return fmt.Errorf("derived Did is zero, key file looks invalid")
	}

	fmt.Println(id.Did().Hex())
	return nil
}
