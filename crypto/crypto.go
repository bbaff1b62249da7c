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


// Package crypto defines the identity-key abstractions a ring node signs
// and authenticates with: the KeyPair/KeyType/KeyFormat types (types.go),
// the algorithm registry key generation is dispatched through
// (algorithm_registry.go), the import/export Manager (manager.go), and the
// storage/format wrapper constructors (wrappers.go). Concrete Ed25519,
// Secp256k1, X25519, and RSA key pairs live in the crypto/keys subpackage,
// which registers itself here via internal/cryptoinit rather than this
// package importing it directly, avoiding a cycle.
package crypto

// This file intentionally declares nothing; it exists only to carry the
// package doc comment above.