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

package socks5

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func authenticated(t *testing.T) *Conn {
	t.Helper()
	c := New()
	require.NoError(t, c.Authenticate([]AuthMethod{NoAuthRequired}))
	c.DataToSend()
	event, err := c.ReceiveData([]byte{0x05, byte(NoAuthRequired)})
	require.NoError(t, err)
	require.Equal(t, AuthReply{Method: NoAuthRequired}, event)
	require.Equal(t, StateClientAuthenticated, c.State())
	return c
}

// Offering multiple auth methods encodes all of them, and a server
// selecting username/password advances to the expected waiting state.
func TestAuthenticate_Negotiation(t *testing.T) {
	c := New()
	err := c.Authenticate([]AuthMethod{GSSAPI, UsernamePassword})
	require.NoError(t, err)
	require.Equal(t, []byte{0x05, 0x02, 0x01, 0x02}, c.DataToSend())

	event, err := c.ReceiveData([]byte{0x05, 0x02})
	require.NoError(t, err)
	require.Equal(t, AuthReply{Method: UsernamePassword}, event)
	require.Equal(t, StateClientWaitingForUsernamePassword, c.State())
}

// A successful username/password exchange encodes the credentials in
// the RFC 1929 sub-negotiation frame and advances to Authenticated.
func TestAuthenticateUsernamePassword_Success(t *testing.T) {
	c := New()
	require.NoError(t, c.Authenticate([]AuthMethod{GSSAPI, UsernamePassword}))
	c.DataToSend()
	_, err := c.ReceiveData([]byte{0x05, 0x02})
	require.NoError(t, err)

	err = c.AuthenticateUsernamePassword([]byte("username"), []byte("password"))
	require.NoError(t, err)

	want := append([]byte{0x01, 0x08}, "username"...)
	want = append(want, 0x08)
	want = append(want, "password"...)
	require.Equal(t, want, c.DataToSend())

	event, err := c.ReceiveData([]byte{0x01, 0x00})
	require.NoError(t, err)
	require.Equal(t, UsernamePasswordAuthReply{Success: true}, event)
	require.Equal(t, StateClientAuthenticated, c.State())
}

func TestAuthenticateUsernamePassword_Failure(t *testing.T) {
	c := New()
	require.NoError(t, c.Authenticate([]AuthMethod{UsernamePassword}))
	c.DataToSend()
	_, err := c.ReceiveData([]byte{0x05, 0x02})
	require.NoError(t, err)
	require.NoError(t, c.AuthenticateUsernamePassword([]byte("u"), []byte("p")))

	event, err := c.ReceiveData([]byte{0x01, 0x01})
	require.NoError(t, err)
	require.Equal(t, UsernamePasswordAuthReply{Success: false}, event)
	require.Equal(t, StateMustClose, c.State())
}

func TestAuthenticateUsernamePassword_IllegalStateGating(t *testing.T) {
	c := New()
	err := c.AuthenticateUsernamePassword([]byte("u"), []byte("p"))
	require.Error(t, err)
	require.Equal(t, StateClientInit, c.State())
}

func TestReceiveAuthReply_MethodNotOffered(t *testing.T) {
	c := New()
	require.NoError(t, c.Authenticate([]AuthMethod{NoAuthRequired}))
	c.DataToSend()

	event, err := c.ReceiveData([]byte{0x05, byte(UsernamePassword)})
	require.NoError(t, err)
	require.Equal(t, AuthReply{Method: NoAcceptableMethods}, event)
	require.Equal(t, StateMustClose, c.State())
}

func TestReceiveAuthReply_GSSAPIClosesConnection(t *testing.T) {
	c := New()
	require.NoError(t, c.Authenticate([]AuthMethod{GSSAPI}))
	c.DataToSend()

	_, err := c.ReceiveData([]byte{0x05, byte(GSSAPI)})
	require.NoError(t, err)
	require.Equal(t, StateMustClose, c.State())
}

// A CONNECT request to a domain name encodes the RFC 1928 length-prefixed
// domain form: a one-byte length followed by the raw name, 16 bytes total
// for "localhost".
func TestRequest_ConnectToDomain(t *testing.T) {
	c := authenticated(t)
	err := c.Request(CmdConnect, "localhost", 1080)
	require.NoError(t, err)

	want := []byte{0x05, 0x01, 0x00, 0x03, 0x09, 'l', 'o', 'c', 'a', 'l', 'h', 'o', 's', 't', 0x04, 0x38}
	got := c.DataToSend()
	require.Equal(t, want, got)
	require.Len(t, got, 16)
}

// Frame round-trip property: IPv4, IPv6, and domain requests.
func TestRequest_FrameRoundTrip_IPv4(t *testing.T) {
	c := authenticated(t)
	require.NoError(t, c.Request(CmdConnect, "8.8.8.8", 853))
	got := c.DataToSend()
	require.Equal(t, []byte{0x01, 8, 8, 8, 8, 0x03, 0x55}, got[3:])
}

func TestRequest_FrameRoundTrip_IPv6(t *testing.T) {
	c := authenticated(t)
	require.NoError(t, c.Request(CmdConnect, "::1", 853))
	got := c.DataToSend()
	want := append([]byte{0x04}, make([]byte, 15)...)
	want = append(want, 1)
	want = append(want, 0x03, 0x55)
	require.Equal(t, want, got[3:])
}

func TestRequest_IllegalStateGating(t *testing.T) {
	c := New()
	err := c.Request(CmdConnect, "127.0.0.1", 80)
	require.Error(t, err)
	require.Equal(t, StateClientInit, c.State())
}

func TestRequest_DomainTooLong(t *testing.T) {
	c := authenticated(t)
	long := make([]byte, 256)
	for i := range long {
		long[i] = 'a'
	}
	err := c.Request(CmdConnect, string(long), 80)
	require.Error(t, err)
}

// Enumeration coverage: every defined ReplyCode other than SUCCEEDED moves
// to MUST_CLOSE; SUCCEEDED moves to TUNNEL_READY.
func TestReceiveRequestReply_EnumerationCoverage(t *testing.T) {
	codes := []ReplyCode{
		ReplyGeneralServerFailure, ReplyConnectionNotAllowed, ReplyNetworkUnreachable,
		ReplyHostUnreachable, ReplyConnectionRefused, ReplyTTLExpired,
		ReplyCommandNotSupported, ReplyAddressTypeNotSupported,
	}
	for _, code := range codes {
		c := authenticated(t)
		require.NoError(t, c.Request(CmdConnect, "127.0.0.1", 80))
		c.DataToSend()

		reply := []byte{0x05, byte(code), 0x00, 0x01, 0, 0, 0, 0, 0, 0}
		event, err := c.ReceiveData(reply)
		require.NoError(t, err)
		require.Equal(t, code, event.(Reply).Code)
		require.Equal(t, StateMustClose, c.State())
	}

	c := authenticated(t)
	require.NoError(t, c.Request(CmdConnect, "127.0.0.1", 80))
	c.DataToSend()
	event, err := c.ReceiveData([]byte{0x05, 0x00, 0x00, 0x01, 93, 184, 216, 34, 0x01, 0xBB})
	require.NoError(t, err)
	require.Equal(t, Reply{Code: ReplySucceeded, AType: ATypeIPv4, Addr: "93.184.216.34", Port: 443}, event)
	require.Equal(t, StateTunnelReady, c.State())
}

func TestReceiveRequestReply_IPv6(t *testing.T) {
	c := authenticated(t)
	require.NoError(t, c.Request(CmdConnect, "::1", 80))
	c.DataToSend()

	reply := append([]byte{0x05, 0x00, 0x00, 0x04}, make([]byte, 16)...)
	reply = append(reply, 0x1F, 0x90)
	event, err := c.ReceiveData(reply)
	require.NoError(t, err)
	require.Equal(t, Reply{Code: ReplySucceeded, AType: ATypeIPv6, Addr: "::", Port: 8080}, event)
}

func TestReceiveRequestReply_DomainName(t *testing.T) {
	c := authenticated(t)
	require.NoError(t, c.Request(CmdConnect, "localhost", 80))
	c.DataToSend()

	reply := []byte{0x05, 0x00, 0x00, 0x03, 0x04, 'h', 'o', 's', 't', 0x00, 0x50}
	event, err := c.ReceiveData(reply)
	require.NoError(t, err)
	require.Equal(t, Reply{Code: ReplySucceeded, AType: ATypeDomainName, Addr: "host", Port: 80}, event)
}

func TestReceiveRequestReply_WrongLengthForIPv4(t *testing.T) {
	c := authenticated(t)
	require.NoError(t, c.Request(CmdConnect, "127.0.0.1", 80))
	c.DataToSend()

	_, err := c.ReceiveData([]byte{0x05, 0x00, 0x00, 0x01, 0, 0, 0, 0, 0})
	require.Error(t, err)
	require.Equal(t, StateClientRequestSent, c.State())
}

func TestReceiveRequestReply_BadVersion(t *testing.T) {
	c := authenticated(t)
	require.NoError(t, c.Request(CmdConnect, "127.0.0.1", 80))
	c.DataToSend()

	_, err := c.ReceiveData([]byte{0x04, 0x00, 0x00, 0x01, 0, 0, 0, 0, 0, 0})
	require.Error(t, err)
}

func TestReceiveRequestReply_UnknownAType(t *testing.T) {
	c := authenticated(t)
	require.NoError(t, c.Request(CmdConnect, "127.0.0.1", 80))
	c.DataToSend()

	_, err := c.ReceiveData([]byte{0x05, 0x00, 0x00, 0x02, 0, 0, 0, 0, 0, 0})
	require.Error(t, err)
}

// Each call illegal in its current state raises an error and leaves the
// state unchanged.
func TestReceiveData_IllegalInClientInit(t *testing.T) {
	c := New()
	_, err := c.ReceiveData([]byte{0x05, 0x00})
	require.Error(t, err)
	require.Equal(t, StateClientInit, c.State())
}

func TestAuthenticate_IllegalAfterAuthSent(t *testing.T) {
	c := New()
	require.NoError(t, c.Authenticate([]AuthMethod{NoAuthRequired}))
	err := c.Authenticate([]AuthMethod{NoAuthRequired})
	require.Error(t, err)
	require.Equal(t, StateClientAuthSent, c.State())
}

// Two consecutive DataToSend calls with no intervening staging call: the
// second returns empty, since the first already drained the buffer.
func TestDataToSend_DrainsOnce(t *testing.T) {
	c := New()
	require.NoError(t, c.Authenticate([]AuthMethod{NoAuthRequired}))
	require.NotEmpty(t, c.DataToSend())
	require.Empty(t, c.DataToSend())
}
