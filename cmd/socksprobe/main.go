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

// socksprobe is a demonstration CLI: it owns the one thing the socks4 and
// socks5 packages deliberately don't, a real socket, and drives one of the
// two sans-I/O engines over it to CONNECT to a destination through a SOCKS
// proxy. It plays the role of "the caller" that owns the socket; it is not
// part of the protocol engine.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"path"
	"strconv"

	"github.com/netproto/socksconn/socks4"
	"github.com/netproto/socksconn/socks5"
)

var debugLog = log.New(io.Discard, "", 0)

func init() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags...] <destination host:port>\n", path.Base(os.Args[0]))
		flag.PrintDefaults()
	}
}

func main() {
	proxyFlag := flag.String("proxy", "", "SOCKS proxy address (host:port)")
	versionFlag := flag.Int("version", 5, "SOCKS protocol version: 4 or 5")
	userFlag := flag.String("user", "", "Username for SOCKS5 username/password auth")
	passFlag := flag.String("password", "", "Password for SOCKS5 username/password auth")
	verboseFlag := flag.Bool("v", false, "Enable debug output")
	flag.Parse()

	if *verboseFlag {
		debugLog = log.New(os.Stderr, "[DEBUG] ", log.LstdFlags|log.Lmicroseconds)
	}

	dest := flag.Arg(0)
	if dest == "" || *proxyFlag == "" {
		log.Print("need -proxy and a destination host:port")
		flag.Usage()
		os.Exit(1)
	}
	host, portStr, err := net.SplitHostPort(dest)
	if err != nil {
		log.Fatalf("bad destination %q: %v", dest, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		log.Fatalf("bad destination port %q: %v", portStr, err)
	}

	conn, err := net.Dial("tcp", *proxyFlag)
	if err != nil {
		log.Fatalf("could not connect to SOCKS proxy %q: %v", *proxyFlag, err)
	}
	defer conn.Close()

	switch *versionFlag {
	case 4:
		err = probeSOCKS4(conn, host, uint16(port))
	case 5:
		err = probeSOCKS5(conn, host, uint16(port), *userFlag, *passFlag)
	default:
		log.Fatalf("unsupported -version %d, want 4 or 5", *versionFlag)
	}
	if err != nil {
		log.Fatalf("probe failed: %v", err)
	}
	fmt.Println("tunnel ready")
}

func probeSOCKS4(conn net.Conn, host string, port uint16) error {
	c := socks4.New(nil, true)
	if err := c.Request(socks4.CmdConnect, host, port); err != nil {
		return err
	}
	req := c.DataToSend()
	debugLog.Printf("request: % x", req)
	if _, err := conn.Write(req); err != nil {
		return err
	}

	reply := make([]byte, 8)
	if _, err := io.ReadFull(conn, reply); err != nil {
		return err
	}
	event, err := c.ReceiveData(reply)
	if err != nil {
		return err
	}
	debugLog.Printf("reply: %+v", event)
	if event.Code != socks4.ReplyRequestGranted {
		return fmt.Errorf("SOCKS4 request failed: %s", event.Code)
	}
	return nil
}

func probeSOCKS5(conn net.Conn, host string, port uint16, user, password string) error {
	c := socks5.New()
	methods := []socks5.AuthMethod{socks5.NoAuthRequired}
	if user != "" {
		methods = append(methods, socks5.UsernamePassword)
	}
	if err := c.Authenticate(methods); err != nil {
		return err
	}
	if _, err := conn.Write(c.DataToSend()); err != nil {
		return err
	}

	methodReply := make([]byte, 2)
	if _, err := io.ReadFull(conn, methodReply); err != nil {
		return err
	}
	event, err := c.ReceiveData(methodReply)
	if err != nil {
		return err
	}
	auth := event.(socks5.AuthReply)
	debugLog.Printf("method reply: %+v", auth)

	if c.State() == socks5.StateClientWaitingForUsernamePassword {
		if err := c.AuthenticateUsernamePassword([]byte(user), []byte(password)); err != nil {
			return err
		}
		if _, err := conn.Write(c.DataToSend()); err != nil {
			return err
		}
		authReply := make([]byte, 2)
		if _, err := io.ReadFull(conn, authReply); err != nil {
			return err
		}
		if _, err := c.ReceiveData(authReply); err != nil {
			return err
		}
	}
	if c.State() != socks5.StateClientAuthenticated {
		return fmt.Errorf("SOCKS5 negotiation ended in state %s", c.State())
	}

	if err := c.Request(socks5.CmdConnect, host, port); err != nil {
		return err
	}
	if _, err := conn.Write(c.DataToSend()); err != nil {
		return err
	}

	// The request reply is variable-length (domain replies carry a length
	// byte); read the fixed 4-byte header first to learn how much more to
	// read.
	header := make([]byte, 4)
	if _, err := io.ReadFull(conn, header); err != nil {
		return err
	}
	var rest []byte
	switch socks5.AType(header[3]) {
	case socks5.ATypeIPv4:
		rest = make([]byte, 4+2)
	case socks5.ATypeIPv6:
		rest = make([]byte, 16+2)
	case socks5.ATypeDomainName:
		lenByte := make([]byte, 1)
		if _, err := io.ReadFull(conn, lenByte); err != nil {
			return err
		}
		rest = make([]byte, 1+int(lenByte[0])+2)
		rest[0] = lenByte[0]
		if _, err := io.ReadFull(conn, rest[1:]); err != nil {
			return err
		}
		header = append(header, rest...)
		return finishSOCKS5(c, header)
	default:
		return fmt.Errorf("unknown address type %#x in request reply", header[3])
	}
	if _, err := io.ReadFull(conn, rest); err != nil {
		return err
	}
	header = append(header, rest...)
	return finishSOCKS5(c, header)
}

func finishSOCKS5(c *socks5.Conn, frame []byte) error {
	event, err := c.ReceiveData(frame)
	if err != nil {
		return err
	}
	reply := event.(socks5.Reply)
	debugLog.Printf("request reply: %+v", reply)
	if reply.Code != socks5.ReplySucceeded {
		return fmt.Errorf("SOCKS5 request failed: %s", reply.Code)
	}
	return nil
}
