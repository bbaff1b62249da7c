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

package transport

import (
	"encoding/json"

	"github.com/pion/webrtc/v3"
)

// TricklePayload bundles an SDP description with every ICE candidate
// gathered for it, exchanged out-of-band (e.g. over HTTP) to bootstrap a
// data channel without a signaling server relaying each candidate live.
// SDP holds the JSON encoding of a webrtc.SessionDescription (its type and
// the raw SDP string together), matching the external wire schema.
type TricklePayload struct {
	SDP        string                    `json:"sdp"`
	Candidates []webrtc.ICECandidateInit `json:"candidates"`
}

// NewTricklePayload encodes desc and candidates into a TricklePayload.
func NewTricklePayload(desc webrtc.SessionDescription, candidates []webrtc.ICECandidateInit) (TricklePayload, error) {
	raw, err := json.Marshal(desc)
	if err != nil {
		return TricklePayload{}, err
	}
	return TricklePayload{SDP: string(raw), Candidates: candidates}, nil
}

// SessionDescription decodes SDP back into a webrtc.SessionDescription.
func (t TricklePayload) SessionDescription() (webrtc.SessionDescription, error) {
	var sdp webrtc.SessionDescription
	if err := json.Unmarshal([]byte(t.SDP), &sdp); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return sdp, nil
}
