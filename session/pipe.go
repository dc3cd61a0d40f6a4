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

// Package session provides the socket-shaped test/demo infrastructure the
// socks4 and socks5 engines deliberately don't: an in-memory transport to
// drain DataToSend into and read replies from, and a helper for driving
// independent connections in parallel. None of this is part of the
// protocol engines; it plays the role of "the caller" that owns the socket.
package session

import "io"

// End is one side of an in-memory, full-duplex pipe standing in for the
// socket a real SOCKS client/server pair would share. It implements
// io.ReadWriteCloser so it can be fed DataToSend output and read into the
// buffer passed to ReceiveData, exactly as a net.Conn would be.
type End struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (e *End) Read(p []byte) (int, error)  { return e.r.Read(p) }
func (e *End) Write(p []byte) (int, error) { return e.w.Write(p) }

func (e *End) Close() error {
	rErr := e.r.Close()
	wErr := e.w.Close()
	if rErr != nil {
		return rErr
	}
	return wErr
}

// NewPipe returns two connected Ends: bytes written to client arrive on
// server's Read, and vice versa.
func NewPipe() (client, server *End) {
	c2sR, c2sW := io.Pipe()
	s2cR, s2cW := io.Pipe()
	client = &End{r: s2cR, w: c2sW}
	server = &End{r: c2sR, w: s2cW}
	return client, server
}
