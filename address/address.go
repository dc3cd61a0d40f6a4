// Copyright 2024 Jigsaw Operations LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package address classifies free-form address strings the way the SOCKS
// protocols need them classified, and packs/unpacks the raw IP bytes that go
// on the wire. It has no knowledge of SOCKS4 or SOCKS5 framing.
package address

import (
	"net"

	"github.com/netproto/socksconn/sockserr"
)

// Kind is the classification of an address string: IPv4, IPv6, or a domain
// name (anything that parses as neither).
type Kind int

const (
	KindIPv4 Kind = iota
	KindIPv6
	KindDomain
)

func (k Kind) String() string {
	switch k {
	case KindIPv4:
		return "IPv4"
	case KindIPv6:
		return "IPv6"
	case KindDomain:
		return "DomainName"
	default:
		return "Unknown"
	}
}

// Classify resolves addr to IPv4, IPv6, or DomainName. It tries IPv4 first,
// IPv6 second, and falls through to DomainName, mirroring the dispatch order
// the wire encoders in socks4 and socks5 rely on.
func Classify(addr string) Kind {
	ip := net.ParseIP(addr)
	if ip == nil {
		return KindDomain
	}
	if ip.To4() != nil {
		return KindIPv4
	}
	return KindIPv6
}

// PackIPv4 returns the 4-byte wire form of an IPv4 address string. The
// caller must have already classified addr as KindIPv4.
func PackIPv4(addr string) ([4]byte, error) {
	var out [4]byte
	ip := net.ParseIP(addr)
	if ip == nil {
		return out, sockserr.Protocolf("address.PackIPv4", "not an IP address: %q", addr)
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return out, sockserr.Protocolf("address.PackIPv4", "not an IPv4 address: %q", addr)
	}
	copy(out[:], ip4)
	return out, nil
}

// PackIPv6 returns the 16-byte wire form of an IPv6 address string. The
// caller must have already classified addr as KindIPv6.
func PackIPv6(addr string) ([16]byte, error) {
	var out [16]byte
	ip := net.ParseIP(addr)
	if ip == nil {
		return out, sockserr.Protocolf("address.PackIPv6", "not an IP address: %q", addr)
	}
	ip16 := ip.To16()
	if ip16 == nil || ip.To4() != nil {
		return out, sockserr.Protocolf("address.PackIPv6", "not an IPv6 address: %q", addr)
	}
	copy(out[:], ip16)
	return out, nil
}

// UnpackIPv4 returns the canonical dotted-decimal string for 4 wire bytes.
func UnpackIPv4(b []byte) (string, error) {
	if len(b) != 4 {
		return "", sockserr.Protocolf("address.UnpackIPv4", "want 4 bytes, got %d", len(b))
	}
	return net.IP(b).String(), nil
}

// UnpackIPv6 returns the canonical shortest-form colon string for 16 wire
// bytes, e.g. 16 zero bytes followed by a trailing 0x01 decodes to "::1".
// The shortening itself is delegated to net.IP.String, which already
// implements the RFC 5952 longest-zero-run compression this needs.
func UnpackIPv6(b []byte) (string, error) {
	if len(b) != 16 {
		return "", sockserr.Protocolf("address.UnpackIPv6", "want 16 bytes, got %d", len(b))
	}
	return net.IP(b).String(), nil
}
