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

// Package transport wraps a single pion/webrtc peer connection into the
// per-peer encrypted data channel the ring uses to exchange payloads, plus
// the ICE server URL grammar used to configure it.
package transport

import (
	"fmt"
	"net/url"

	"github.com/pion/webrtc/v3"
)

// CredentialType mirrors webrtc.ICECredentialType; only Password is
// produced by ParseICEServerURL, matching the source grammar which has no
// syntax for OAuth credentials.
type CredentialType = webrtc.ICECredentialType

// ParseICEServerURL parses a `(stun|turn)://[user[:pass]@]host[:port][/path]`
// URL into a webrtc.ICEServer. Any other scheme is rejected.
func ParseICEServerURL(raw string) (webrtc.ICEServer, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return webrtc.ICEServer{}, fmt.Errorf("transport: parse ice url: %w", err)
	}
	if u.Scheme != "stun" && u.Scheme != "turn" {
		return webrtc.ICEServer{}, fmt.Errorf("transport: scheme %q is not supported", u.Scheme)
	}
	if u.Hostname() == "" {
		return webrtc.ICEServer{}, fmt.Errorf("transport: url has no host")
	}

	host := u.Hostname()
	if port := u.Port(); port != "" {
		host = host + ":" + port
	}
	wireURL := u.Scheme + ":" + host + u.Path

	username := u.User.Username()
	password, _ := u.User.Password()

	return webrtc.ICEServer{
		URLs:           []string{wireURL},
		Username:       username,
		Credential:     password,
		CredentialType: webrtc.ICECredentialTypePassword,
	}, nil
}

// ParseICEServerURLs parses a list of server URLs, failing on the first
// invalid entry.
func ParseICEServerURLs(raws []string) ([]webrtc.ICEServer, error) {
	out := make([]webrtc.ICEServer, 0, len(raws))
	for _, raw := range raws {
		s, err := ParseICEServerURL(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
