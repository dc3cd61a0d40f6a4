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

// Package sockserr holds the error and event vocabulary shared by the
// socks4 and socks5 packages, so neither engine needs its own copy of the
// failure or tagging conventions.
package sockserr

import "fmt"

// ProtocolError is the one error kind a SOCKS connection ever raises for a
// protocol-level fault: an unexpected frame length, a bad version byte, an
// unknown enumeration value, a call made in an illegal state, and so on.
// It carries a human-readable message and an optional wrapped cause, but no
// recovery handle: the only correct response to a ProtocolError is to
// abandon the connection.
type ProtocolError struct {
	// Op names the method that detected the fault, e.g. "socks5: receive_data".
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	if e.Err == nil {
		return e.Op
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Protocolf builds a *ProtocolError from a printf-style message.
func Protocolf(op, format string, args ...any) *ProtocolError {
	return &ProtocolError{Op: op, Err: fmt.Errorf(format, args...)}
}

// ValueError is raised by conversions defined over a closed set of inputs
// (such as socks5.AddressTypeForKind) when given a value outside that set. It is
// a programming error on the caller's part, not a protocol fault, and is
// kept as a distinct kind so callers never confuse the two with errors.Is.
type ValueError struct {
	Op  string
	Err error
}

func (e *ValueError) Error() string {
	if e.Err == nil {
		return e.Op
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *ValueError) Unwrap() error { return e.Err }

// Valuef builds a *ValueError from a printf-style message.
func Valuef(op, format string, args ...any) *ValueError {
	return &ValueError{Op: op, Err: fmt.Errorf(format, args...)}
}

// Event is implemented by every tagged reply/event record the socks4 and
// socks5 packages return from ReceiveData. It carries no methods: it exists
// so a caller juggling both engines can hold a single Event value, not so
// the engines can dispatch on it internally.
type Event interface{}
