// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command tlsd is a minimal demo server exercising the engine over a
// real net.Listener: it loads a certificate/key pair, accepts
// connections, runs the handshake, and echoes back whatever the client
// sends until it disconnects. DTLS needs a packet-oriented listener
// rather than net.Listener's stream Accept loop, so this demo only
// drives the TCP/TLS path; ServerDTLS is not exercised here.
package main

import (
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"flag"
	"log"
	"net"

	tlsengine "github.com/paymentlogs/tlsengine"
)

func main() {
	addr := flag.String("addr", ":8443", "listen address")
	certFile := flag.String("cert", "", "PEM certificate chain")
	keyFile := flag.String("key", "", "PEM private key")
	flag.Parse()

	if *certFile == "" || *keyFile == "" {
		log.Fatal("tlsd: -cert and -key are required")
	}

	pair, err := tls.LoadX509KeyPair(*certFile, *keyFile)
	if err != nil {
		log.Fatalf("tlsd: load certificate: %v", err)
	}
	signer, ok := pair.PrivateKey.(crypto.Signer)
	if !ok {
		log.Fatal("tlsd: private key does not implement crypto.Signer")
	}
	var leaf *x509.Certificate
	if pair.Leaf != nil {
		leaf = pair.Leaf
	} else if len(pair.Certificate) > 0 {
		leaf, err = x509.ParseCertificate(pair.Certificate[0])
		if err != nil {
			log.Fatalf("tlsd: parse leaf certificate: %v", err)
		}
	}
	cert := &tlsengine.Certificate{
		Certificate: pair.Certificate,
		PrivateKey:  signer,
		Leaf:        leaf,
	}

	config := &tlsengine.Config{
		GetCertificate: func(sni string) (*tlsengine.Certificate, error) {
			return cert, nil
		},
		SessionCache: tlsengine.NewSessionCache(),
	}

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		log.Fatalf("tlsd: listen: %v", err)
	}
	log.Printf("tlsd: listening on %s", *addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			log.Printf("tlsd: accept: %v", err)
			continue
		}
		go serve(conn, config)
	}
}

func serve(conn net.Conn, config *tlsengine.Config) {
	defer conn.Close()

	tc, err := tlsengine.Server(conn, config)
	if err != nil {
		log.Printf("tlsd: handshake: %v", err)
		return
	}
	log.Printf("tlsd: handshake complete: cipher=0x%04x resumed=%v sni=%q",
		tc.ConnectionState().CipherSuite, tc.ConnectionState().DidResume, tc.ConnectionState().ServerName)

	buf := make([]byte, 4096)
	for {
		n, err := tc.Read(buf)
		if n > 0 {
			if _, werr := tc.Write(buf[:n]); werr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}
