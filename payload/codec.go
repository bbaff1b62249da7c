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

package payload

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// Encode renders p as CBOR then gzips it at the maximum compression level,
// matching the wire format every data-channel frame uses.
func Encode(p *Payload) ([]byte, error) {
	raw, err := cbor.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("payload: cbor encode: %w", err)
	}
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("payload: gzip writer: %w", err)
	}
	if _, err := zw.Write(raw); err != nil {
		return nil, fmt.Errorf("payload: gzip write: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("payload: gzip close: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode reverses Encode.
func Decode(frame []byte) (*Payload, error) {
	zr, err := gzip.NewReader(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("payload: gzip reader: %w", err)
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("payload: gzip read: %w", err)
	}
	var p Payload
	if err := cbor.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("payload: cbor decode: %w", err)
	}
	return &p, nil
}

// EncodeToString gzip-compresses and base64-encodes p, used for the
// out-of-band signaling exchange (TricklePayload offer/answer strings).
func EncodeToString(p *Payload) (string, error) {
	frame, err := Encode(p)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(frame), nil
}

// DecodeFromString reverses EncodeToString.
func DecodeFromString(s string) (*Payload, error) {
	frame, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("payload: base64 decode: %w", err)
	}
	return Decode(frame)
}
