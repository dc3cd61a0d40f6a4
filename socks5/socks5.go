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

// Package socks5 implements a sans-I/O SOCKS5 client connection, threading
// method negotiation, optional username/password sub-authentication, and
// the connect/bind/associate request through an explicit state machine. It
// encodes requests into byte frames and decodes one server reply at a time,
// performing no network I/O itself: the caller owns the socket, drains
// DataToSend into it, and feeds received bytes to ReceiveData.
//
// See https://datatracker.ietf.org/doc/html/rfc1928 and
// https://datatracker.ietf.org/doc/html/rfc1929.
package socks5

import (
	"encoding/binary"
	"strconv"

	"github.com/netproto/socksconn/address"
	"github.com/netproto/socksconn/sockserr"
)

// AuthMethod is a SOCKS5 method-selection code, from RFC 1928 §3.
type AuthMethod byte

const (
	NoAuthRequired      AuthMethod = 0x00
	GSSAPI              AuthMethod = 0x01
	UsernamePassword    AuthMethod = 0x02
	NoAcceptableMethods AuthMethod = 0xFF
)

// Command is the SOCKS5 request command, from RFC 1928 §4.
type Command byte

const (
	CmdConnect      Command = 0x01
	CmdBind         Command = 0x02
	CmdUDPAssociate Command = 0x03
)

// AType is the SOCKS5 address-type code, from RFC 1928 §5.
type AType byte

const (
	ATypeIPv4       AType = 0x01
	ATypeDomainName AType = 0x03
	ATypeIPv6       AType = 0x04
)

// AddressTypeForKind is the total function mapping an address.Kind to its
// SOCKS5 wire AType. Any kind outside the three classified variants raises
// a *sockserr.ValueError: that can only happen if address.Kind grows a
// variant this switch hasn't been taught about, a programming error rather
// than a protocol fault.
func AddressTypeForKind(k address.Kind) (AType, error) {
	switch k {
	case address.KindIPv4:
		return ATypeIPv4, nil
	case address.KindIPv6:
		return ATypeIPv6, nil
	case address.KindDomain:
		return ATypeDomainName, nil
	default:
		return 0, sockserr.Valuef("socks5.AddressTypeForKind", "unclassified address kind %v", k)
	}
}

func definedAType(b byte) bool {
	switch AType(b) {
	case ATypeIPv4, ATypeDomainName, ATypeIPv6:
		return true
	default:
		return false
	}
}

// ReplyCode is the REP field of a SOCKS5 request reply, from RFC 1928 §6.
type ReplyCode byte

const (
	ReplySucceeded               ReplyCode = 0x00
	ReplyGeneralServerFailure    ReplyCode = 0x01
	ReplyConnectionNotAllowed    ReplyCode = 0x02
	ReplyNetworkUnreachable      ReplyCode = 0x03
	ReplyHostUnreachable         ReplyCode = 0x04
	ReplyConnectionRefused       ReplyCode = 0x05
	ReplyTTLExpired              ReplyCode = 0x06
	ReplyCommandNotSupported     ReplyCode = 0x07
	ReplyAddressTypeNotSupported ReplyCode = 0x08
)

var _ error = ReplyCode(0)

// Error renders the reply code as the human-readable reason from RFC 1928
// §6, so callers can use errors.Is/errors.As against it directly.
func (c ReplyCode) Error() string {
	switch c {
	case ReplySucceeded:
		return "succeeded"
	case ReplyGeneralServerFailure:
		return "general SOCKS server failure"
	case ReplyConnectionNotAllowed:
		return "connection not allowed by ruleset"
	case ReplyNetworkUnreachable:
		return "network unreachable"
	case ReplyHostUnreachable:
		return "host unreachable"
	case ReplyConnectionRefused:
		return "connection refused"
	case ReplyTTLExpired:
		return "TTL expired"
	case ReplyCommandNotSupported:
		return "command not supported"
	case ReplyAddressTypeNotSupported:
		return "address type not supported"
	default:
		return "unknown SOCKS5 reply code " + strconv.Itoa(int(c))
	}
}

func definedReplyCode(b byte) bool {
	switch ReplyCode(b) {
	case ReplySucceeded, ReplyGeneralServerFailure, ReplyConnectionNotAllowed, ReplyNetworkUnreachable,
		ReplyHostUnreachable, ReplyConnectionRefused, ReplyTTLExpired, ReplyCommandNotSupported,
		ReplyAddressTypeNotSupported:
		return true
	default:
		return false
	}
}

// State is the SOCKS5 client connection's state machine: method
// negotiation, optional username/password sub-negotiation, the CONNECT/
// BIND/UDP-ASSOCIATE request, and the two terminal states.
type State int

const (
	StateClientInit State = iota
	StateClientAuthSent
	StateClientWaitingForUsernamePassword
	StateClientAuthUsernamePasswordSent
	StateClientAuthenticated
	StateClientRequestSent
	StateTunnelReady
	StateMustClose
)

func (s State) String() string {
	switch s {
	case StateClientInit:
		return "CLIENT_INIT"
	case StateClientAuthSent:
		return "CLIENT_AUTH_SENT"
	case StateClientWaitingForUsernamePassword:
		return "CLIENT_WAITING_FOR_USERNAME_PASSWORD"
	case StateClientAuthUsernamePasswordSent:
		return "CLIENT_AUTH_USERNAME_PASSWORD_SENT"
	case StateClientAuthenticated:
		return "CLIENT_AUTHENTICATED"
	case StateClientRequestSent:
		return "CLIENT_REQUEST_SENT"
	case StateTunnelReady:
		return "TUNNEL_READY"
	case StateMustClose:
		return "MUST_CLOSE"
	default:
		return "UNKNOWN"
	}
}

// AuthReply is the event ReceiveData returns for a method-selection reply.
type AuthReply struct {
	Method AuthMethod
}

func (AuthReply) isSocksEvent() {}

// UsernamePasswordAuthReply is the event ReceiveData returns for a
// username/password sub-authentication status reply.
type UsernamePasswordAuthReply struct {
	Success bool
}

func (UsernamePasswordAuthReply) isSocksEvent() {}

// Reply is the event ReceiveData returns for a request reply.
type Reply struct {
	Code  ReplyCode
	AType AType
	Addr  string
	Port  uint16
}

func (Reply) isSocksEvent() {}

var (
	_ sockserr.Event = AuthReply{}
	_ sockserr.Event = UsernamePasswordAuthReply{}
	_ sockserr.Event = Reply{}
)

// Conn is a single SOCKS5 client connection: a mutable session owned by one
// caller. Concurrent calls on the same Conn are undefined; two different
// Conns are fully independent and may be driven in parallel.
type Conn struct {
	state State
	send  []byte

	// offered records the methods given to Authenticate, in order, so the
	// server's choice can be validated. Kept as a small slice rather than a
	// set: SOCKS5 never offers more than a handful of methods.
	offered []AuthMethod
}

// New creates a SOCKS5 connection in CLIENT_INIT.
func New() *Conn {
	return &Conn{state: StateClientInit}
}

// State returns the connection's current state.
func (c *Conn) State() State { return c.state }

// Authenticate stages a method-selection frame (0x05 | count | methods...)
// in the caller-supplied order, and records the offered methods so the
// server's eventual choice can be validated. Legal only in CLIENT_INIT.
func (c *Conn) Authenticate(methods []AuthMethod) error {
	const op = "socks5: authenticate"
	if c.state != StateClientInit {
		return sockserr.Protocolf(op, "illegal call in state %s", c.state)
	}
	if len(methods) > 255 {
		return sockserr.Protocolf(op, "too many methods: %d", len(methods))
	}

	frame := make([]byte, 0, 2+len(methods))
	frame = append(frame, 0x05, byte(len(methods)))
	for _, m := range methods {
		frame = append(frame, byte(m))
	}

	c.offered = append([]AuthMethod(nil), methods...)
	c.send = append(c.send, frame...)
	c.state = StateClientAuthSent
	return nil
}

// AuthenticateUsernamePassword stages a username/password sub-
// authentication frame (RFC 1929): 0x01 | ulen | username | plen |
// password. Legal only in CLIENT_WAITING_FOR_USERNAME_PASSWORD.
func (c *Conn) AuthenticateUsernamePassword(username, password []byte) error {
	const op = "socks5: authenticate_username_password"
	if c.state != StateClientWaitingForUsernamePassword {
		return sockserr.Protocolf(op, "illegal call in state %s", c.state)
	}
	if len(username) > 255 {
		return sockserr.Protocolf(op, "username exceeds 255 bytes")
	}
	if len(password) > 255 {
		return sockserr.Protocolf(op, "password exceeds 255 bytes")
	}

	frame := make([]byte, 0, 3+len(username)+len(password))
	frame = append(frame, 0x01, byte(len(username)))
	frame = append(frame, username...)
	frame = append(frame, byte(len(password)))
	frame = append(frame, password...)

	c.send = append(c.send, frame...)
	c.state = StateClientAuthUsernamePasswordSent
	return nil
}

// Request stages a request frame: 0x05 | command | 0x00 | atype |
// address-payload | port(2 be). Legal only in CLIENT_AUTHENTICATED.
func (c *Conn) Request(cmd Command, addr string, port uint16) error {
	const op = "socks5: request"
	if c.state != StateClientAuthenticated {
		return sockserr.Protocolf(op, "illegal call in state %s", c.state)
	}

	kind := address.Classify(addr)
	atype, err := AddressTypeForKind(kind)
	if err != nil {
		return sockserr.Protocolf(op, "%w", err)
	}

	frame := make([]byte, 0, 4+16+2+len(addr))
	frame = append(frame, 0x05, byte(cmd), 0x00, byte(atype))

	switch kind {
	case address.KindIPv4:
		ip, err := address.PackIPv4(addr)
		if err != nil {
			return sockserr.Protocolf(op, "%w", err)
		}
		frame = append(frame, ip[:]...)
	case address.KindIPv6:
		ip, err := address.PackIPv6(addr)
		if err != nil {
			return sockserr.Protocolf(op, "%w", err)
		}
		frame = append(frame, ip[:]...)
	case address.KindDomain:
		if len(addr) > 255 {
			return sockserr.Protocolf(op, "domain name exceeds 255 bytes: %q", addr)
		}
		frame = append(frame, byte(len(addr)))
		frame = append(frame, addr...)
	}

	frame = binary.BigEndian.AppendUint16(frame, port)

	c.send = append(c.send, frame...)
	c.state = StateClientRequestSent
	return nil
}

// ReceiveData parses one server reply appropriate to the connection's
// current state and advances the state machine accordingly. On any
// malformed input, the state is left unchanged and a *sockserr.ProtocolError
// is returned.
func (c *Conn) ReceiveData(data []byte) (sockserr.Event, error) {
	switch c.state {
	case StateClientAuthSent:
		return c.receiveAuthReply(data)
	case StateClientAuthUsernamePasswordSent:
		return c.receiveUsernamePasswordReply(data)
	case StateClientRequestSent:
		return c.receiveRequestReply(data)
	default:
		return nil, sockserr.Protocolf("socks5: receive_data", "illegal call in state %s", c.state)
	}
}

func (c *Conn) receiveAuthReply(data []byte) (sockserr.Event, error) {
	const op = "socks5: receive_data (auth reply)"
	if len(data) != 2 {
		return nil, sockserr.Protocolf(op, "want 2 bytes, got %d", len(data))
	}
	if data[0] != 0x05 {
		return nil, sockserr.Protocolf(op, "bad version byte %#x, want 0x05", data[0])
	}

	method := AuthMethod(data[1])
	event := AuthReply{Method: method}

	switch {
	case !c.offeredMethod(method):
		event.Method = NoAcceptableMethods
		c.state = StateMustClose
	case method == NoAuthRequired:
		c.state = StateClientAuthenticated
	case method == UsernamePassword:
		c.state = StateClientWaitingForUsernamePassword
	default:
		// NO_ACCEPTABLE_METHODS, GSSAPI, or any other method the server may
		// pick: GSSAPI sub-negotiation is acknowledged but not driven, so the
		// connection must close.
		c.state = StateMustClose
	}
	return event, nil
}

func (c *Conn) offeredMethod(m AuthMethod) bool {
	for _, om := range c.offered {
		if om == m {
			return true
		}
	}
	return false
}

func (c *Conn) receiveUsernamePasswordReply(data []byte) (sockserr.Event, error) {
	const op = "socks5: receive_data (username/password reply)"
	if len(data) != 2 {
		return nil, sockserr.Protocolf(op, "want 2 bytes, got %d", len(data))
	}
	if data[0] != 0x01 {
		return nil, sockserr.Protocolf(op, "bad auth version byte %#x, want 0x01", data[0])
	}

	success := data[1] == 0x00
	if success {
		c.state = StateClientAuthenticated
	} else {
		c.state = StateMustClose
	}
	return UsernamePasswordAuthReply{Success: success}, nil
}

func (c *Conn) receiveRequestReply(data []byte) (sockserr.Event, error) {
	const op = "socks5: receive_data (request reply)"
	if len(data) < 4 {
		return nil, sockserr.Protocolf(op, "short reply: %d bytes", len(data))
	}
	if data[0] != 0x05 {
		return nil, sockserr.Protocolf(op, "bad version byte %#x, want 0x05", data[0])
	}
	if !definedReplyCode(data[1]) {
		return nil, sockserr.Protocolf(op, "unknown reply code %#x", data[1])
	}
	if !definedAType(data[3]) {
		return nil, sockserr.Protocolf(op, "unknown address type %#x", data[3])
	}

	atype := AType(data[3])
	var addrBytes []byte
	switch atype {
	case ATypeIPv4:
		if len(data) != 10 {
			return nil, sockserr.Protocolf(op, "want 10 bytes for an IPv4 reply, got %d", len(data))
		}
		addrBytes = data[4:8]
	case ATypeIPv6:
		if len(data) != 22 {
			return nil, sockserr.Protocolf(op, "want 22 bytes for an IPv6 reply, got %d", len(data))
		}
		addrBytes = data[4:20]
	case ATypeDomainName:
		if len(data) < 5 {
			return nil, sockserr.Protocolf(op, "short domain-name reply: %d bytes", len(data))
		}
		l := int(data[4])
		want := 7 + l // ver,rep,rsv,atype,lenbyte(=5) + l domain bytes + 2 port bytes
		if len(data) != want {
			return nil, sockserr.Protocolf(op, "want %d bytes for a %d-byte domain reply, got %d", want, l, len(data))
		}
		addrBytes = data[5 : 5+l]
	}

	var addr string
	var err error
	switch atype {
	case ATypeIPv4:
		addr, err = address.UnpackIPv4(addrBytes)
	case ATypeIPv6:
		addr, err = address.UnpackIPv6(addrBytes)
	case ATypeDomainName:
		addr = string(addrBytes)
	}
	if err != nil {
		return nil, sockserr.Protocolf(op, "%w", err)
	}

	port := binary.BigEndian.Uint16(data[len(data)-2:])
	code := ReplyCode(data[1])

	if code == ReplySucceeded {
		c.state = StateTunnelReady
	} else {
		c.state = StateMustClose
	}
	return Reply{Code: code, AType: atype, Addr: addr, Port: port}, nil
}

// DataToSend returns and clears the connection's pending outbound bytes. A
// call with nothing pending returns an empty (nil-backed) slice.
func (c *Conn) DataToSend() []byte {
	b := c.send
	c.send = nil
	return b
}
