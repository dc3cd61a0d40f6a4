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

// Package socks4 implements a sans-I/O SOCKS4/4a client connection: it
// encodes requests into byte frames and decodes one server reply, without
// performing any network I/O itself. The caller owns the socket, drains
// DataToSend into it, and feeds received bytes to ReceiveData.
package socks4

import (
	"bytes"
	"encoding/binary"
	"strconv"

	"github.com/netproto/socksconn/address"
	"github.com/netproto/socksconn/sockserr"
)

// Command is the SOCKS4 request command, as specified in the SOCKS4
// protocol note (no RFC; see http://www.openssh.com/txt/socks4.protocol).
type Command byte

const (
	CmdConnect Command = 0x01
	CmdBind    Command = 0x02
)

// ReplyCode is the status byte a SOCKS4 server returns in its reply.
type ReplyCode byte

const (
	ReplyRequestGranted                ReplyCode = 0x5A
	ReplyRequestRejectedOrFailed       ReplyCode = 0x5B
	ReplyRequestRejectedNoIdentd       ReplyCode = 0x5C
	ReplyRequestRejectedUserIDMismatch ReplyCode = 0x5D
)

func (c ReplyCode) String() string {
	switch c {
	case ReplyRequestGranted:
		return "request granted"
	case ReplyRequestRejectedOrFailed:
		return "request rejected or failed"
	case ReplyRequestRejectedNoIdentd:
		return "request rejected, cannot connect to identd"
	case ReplyRequestRejectedUserIDMismatch:
		return "request rejected, user-id mismatch"
	default:
		return "unknown SOCKS4 reply code " + strconv.Itoa(int(c))
	}
}

func definedReplyCode(c byte) bool {
	switch ReplyCode(c) {
	case ReplyRequestGranted, ReplyRequestRejectedOrFailed, ReplyRequestRejectedNoIdentd, ReplyRequestRejectedUserIDMismatch:
		return true
	default:
		return false
	}
}

// State is the SOCKS4 connection's linear progression: Initial ->
// RequestSent -> Replied.
type State int

const (
	StateInitial State = iota
	StateRequestSent
	StateReplied
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "Initial"
	case StateRequestSent:
		return "RequestSent"
	case StateReplied:
		return "Replied"
	default:
		return "Unknown"
	}
}

// Reply is the event ReceiveData returns for a valid SOCKS4 reply frame.
type Reply struct {
	Code ReplyCode
	Port uint16
	Addr string // canonical dotted IPv4
}

func (Reply) isSocksEvent() {}

var _ sockserr.Event = Reply{}

// Conn is a single SOCKS4/4a client connection: a mutable session owned by
// one caller. Concurrent calls on the same Conn are undefined; two
// different Conns are fully independent.
type Conn struct {
	userID           []byte
	allowDomainNames bool

	state State
	send  []byte
}

// New creates a SOCKS4 connection. userID may be empty. allowDomainNames
// gates whether Request may encode a domain name using the SOCKS4a
// sentinel; when false, a domain-name addr is rejected with a
// ProtocolError.
func New(userID []byte, allowDomainNames bool) *Conn {
	return &Conn{userID: userID, allowDomainNames: allowDomainNames, state: StateInitial}
}

// State returns the connection's current state.
func (c *Conn) State() State { return c.state }

// Request stages a SOCKS4 request frame:
//
//	0x04 | command(1) | port(2 be) | dest-ip(4) | user_id | 0x00 [ | host | 0x00 ]
//
// addr may be an IPv4 literal, or (if allowDomainNames) a domain name, in
// which case dest-ip is the SOCKS4a sentinel 0.0.0.1 and the host name is
// appended after the user_id terminator. IPv6 addresses are rejected: SOCKS4
// has no IPv6 encoding. Request is only legal in State Initial.
func (c *Conn) Request(cmd Command, addr string, port uint16) error {
	const op = "socks4: request"
	if c.state != StateInitial {
		return sockserr.Protocolf(op, "illegal call in state %s", c.state)
	}
	if bytes.IndexByte(c.userID, 0) != -1 {
		return sockserr.Protocolf(op, "user_id must not contain a NUL byte")
	}

	var destIP [4]byte
	var trailingHost []byte

	switch address.Classify(addr) {
	case address.KindIPv4:
		ip, err := address.PackIPv4(addr)
		if err != nil {
			return sockserr.Protocolf(op, "%w", err)
		}
		destIP = ip
	case address.KindIPv6:
		return sockserr.Protocolf(op, "SOCKS4 has no IPv6 encoding: %q", addr)
	case address.KindDomain:
		if !c.allowDomainNames {
			return sockserr.Protocolf(op, "domain names are not allowed: %q", addr)
		}
		destIP = [4]byte{0, 0, 0, 1}
		trailingHost = append([]byte(addr), 0x00)
	}

	frame := make([]byte, 0, 9+len(c.userID)+len(trailingHost))
	frame = append(frame, 0x04, byte(cmd))
	frame = binary.BigEndian.AppendUint16(frame, port)
	frame = append(frame, destIP[:]...)
	frame = append(frame, c.userID...)
	frame = append(frame, 0x00)
	frame = append(frame, trailingHost...)

	c.send = append(c.send, frame...)
	c.state = StateRequestSent
	return nil
}

// ReceiveData parses exactly one SOCKS4 reply:
//
//	0x00 | reply_code(1) | port(2 be) | ip(4)
//
// It is only legal in State RequestSent. On success it returns a Reply and
// advances to State Replied. On any malformed input the state is left
// unchanged and a ProtocolError is returned.
func (c *Conn) ReceiveData(data []byte) (Reply, error) {
	const op = "socks4: receive_data"
	if c.state != StateRequestSent {
		return Reply{}, sockserr.Protocolf(op, "illegal call in state %s", c.state)
	}
	if len(data) != 8 {
		return Reply{}, sockserr.Protocolf(op, "want 8 bytes, got %d", len(data))
	}
	if data[0] != 0x00 {
		return Reply{}, sockserr.Protocolf(op, "bad leading byte %#x, want 0x00", data[0])
	}
	if !definedReplyCode(data[1]) {
		return Reply{}, sockserr.Protocolf(op, "unknown reply code %#x", data[1])
	}

	port := binary.BigEndian.Uint16(data[2:4])
	addr, err := address.UnpackIPv4(data[4:8])
	if err != nil {
		return Reply{}, sockserr.Protocolf(op, "%w", err)
	}

	c.state = StateReplied
	return Reply{Code: ReplyCode(data[1]), Port: port, Addr: addr}, nil
}

// DataToSend returns and clears the connection's pending outbound bytes. A
// call with nothing pending returns an empty (nil-backed) slice.
func (c *Conn) DataToSend() []byte {
	b := c.send
	c.send = nil
	return b
}
