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

package handler

import (
	"context"
	"fmt"

	"github.com/ringmesh/rings/dht"
	"github.com/ringmesh/rings/internal/logger"
	"github.com/ringmesh/rings/payload"
)

// Validator runs before a payload is dispatched; returning an error rejects
// the message outright (it is never relayed, reported, or handed to the
// callback). Use it to enforce capability checks independent of the
// dispatch logic itself, e.g. rate limiting or a message-kind allowlist.
type Validator func(ctx context.Context, origin dht.Did, p *payload.Payload, msg payload.Message) error

// Callback runs after a payload has been successfully dispatched, for
// application-level observation of traffic (metrics, logging, delivering
// CustomMessage data to a subscriber).
type Callback func(ctx context.Context, origin dht.Did, p *payload.Payload, msg payload.Message)

// Chain combines validators so all of them must pass; it returns the first
// error encountered, short-circuiting the rest.
func Chain(validators ...Validator) Validator {
	return func(ctx context.Context, origin dht.Did, p *payload.Payload, msg payload.Message) error {
		for _, v := range validators {
			if err := v(ctx, origin, p, msg); err != nil {
				return err
			}
		}
		return nil
	}
}

// RejectUnexpired can be composed into Chain to enforce a tighter ceiling
// than a payload's own ttl, e.g. rejecting anything with a ttl above some
// administrative maximum.
func RejectUnexpired(maxTTLMillis int64) Validator {
	return func(_ context.Context, _ dht.Did, p *payload.Payload, _ payload.Message) error {
		if p.TTLMillis > maxTTLMillis {
			return fmt.Errorf("handler: payload ttl %dms exceeds maximum %dms", p.TTLMillis, maxTTLMillis)
		}
		return nil
	}
}

// LogCallback returns a Callback that logs every dispatched message at
// debug level, useful as a default wired in alongside an application's own
// callback via Chain-style composition at the call site.
func LogCallback(log logger.Logger) Callback {
	return func(_ context.Context, origin dht.Did, _ *payload.Payload, msg payload.Message) {
		log.Debug("dispatched message", logger.Did("origin", origin.String()), logger.Int("kind", int(msg.Kind())))
	}
}
