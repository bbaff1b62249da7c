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
	"github.com/ringmesh/rings/crypto/keys"
	"github.com/ringmesh/rings/session"
)

var (
	keygenOutput string
	keygenFormat string
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a node identity key",
	Long: `Generate a new secp256k1 identity key for a rings node and print the
resulting node Did.

The exported private key is the file config.NodeConfig.KeyPath should point
at.`,
	Example: `  ringsctl keygen --output node.pem
  ringsctl keygen --output node.jwk --format jwk`,
	RunE: runKeygen,
}

func init() {
	rootCmd.AddCommand(keygenCmd)

	keygenCmd.Flags().StringVarP(&keygenOutput, "output", "o", "", "Output file (default: stdout)")
	keygenCmd.Flags().StringVarP(&keygenFormat, "format", "f", "pem", "Key format (pem, jwk)")
}

func runKeygen(cmd *cobra.Command, args []string) error {
	idKey, err := keys.GenerateSecp256k1KeyPair()
	if err != nil {
		return fmt.Errorf("generate identity key: %w", err)
	}
	id, err := session.NewIdentityFromKeyPair(idKey)
	if err != nil {
		return fmt.Errorf("derive identity: %w", err)
	}

	var format sagecrypto.KeyFormat
	switch keygenFormat {
	case "pem":
		format = sagecrypto.KeyFormatPEM
	case "jwk":
		format = sagecrypto.KeyFormatJWK
	default:
		return fmt.Errorf("unsupported key format: %s", keygenFormat)
	}

	mgr := sagecrypto.NewManager()
	exported, err := mgr.ExportKeyPair(idKey, format)
	if err != nil {
		return fmt.Errorf("export identity key: %w", err)
	}

	if keygenOutput == "" {
		fmt.Println(string(exported))
	} else {
		if err := os.WriteFile(keygenOutput, exported, 0o600); err != nil {
			return fmt.Errorf("write %s: %w", keygenOutput, err)
		}
	}

	fmt.Fprintf(os.Stderr, "did: %s\n", id.Did().Hex())
	return nil
}
