// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tls

import (
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"math/big"
	"testing"
)

func testHSContext(t *testing.T, curves []CurveID, sigAlgs []SignatureScheme) *hsContext {
	t.Helper()
	hs := &hsContext{
		config:  &Config{},
		version: VersionTLS12,
		clientHello: &clientHelloMsg{
			vers:            VersionTLS12,
			supportedCurves: curves,
			sigAlgs:         sigAlgs,
		},
	}
	return hs
}

func TestDHEKeyAgreementRoundTrip(t *testing.T) {
	serverPriv, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatal(err)
	}
	cert := &Certificate{PrivateKey: serverPriv}
	hs := testHSContext(t, nil, []SignatureScheme{SignatureScheme(uint16(hashSHA256)<<8 | uint16(sigRSA))})

	server := &dheKeyAgreement{}
	skx, err := server.generateServerKeyExchange(hs.config, cert, hs)
	if err != nil {
		t.Fatal(err)
	}
	if skx == nil {
		t.Fatal("expected a ServerKeyExchange message")
	}

	c := NewCursor(skx.key)
	pBytes, ok1 := c.U16LengthPrefixedBytes()
	gBytes, ok2 := c.U16LengthPrefixedBytes()
	yServerBytes, ok3 := c.U16LengthPrefixedBytes()
	if !ok1 || !ok2 || !ok3 {
		t.Fatal("failed to parse DHE params")
	}
	_ = pBytes
	_ = gBytes

	client := &dheKeyAgreement{p: dheGroupP2048, g: dheGroupG}
	clientPriv, err := randFieldElement(rand.Reader, client.p)
	if err != nil {
		t.Fatal(err)
	}
	yClient := new(big.Int).Exp(client.g, clientPriv, client.p)
	want := new(big.Int).Exp(new(big.Int).SetBytes(yServerBytes), clientPriv, client.p)

	ckx := &clientKeyExchangeMsg{}
	w := NewWriter()
	w.U16LengthPrefixed(func(w *Writer) { w.Bytes(yClient.Bytes()) })
	ckx.ciphertext = w.MustFinish()

	pms, err := server.processClientKeyExchange(hs.config, cert, ckx, hs)
	if err != nil {
		t.Fatal(err)
	}
	if len(pms) == 0 {
		t.Fatal("expected non-empty pre-master secret")
	}
	if new(big.Int).SetBytes(pms).Cmp(want) != 0 {
		t.Fatal("server and client derived different pre-master secrets")
	}
}

func TestPickCurve(t *testing.T) {
	serverPrefs := []CurveID{CurveP256, CurveP384}
	if got := pickCurve(serverPrefs, []CurveID{CurveP521, CurveP384}); got != CurveP384 {
		t.Fatalf("pickCurve = %v, want CurveP384", got)
	}
	if got := pickCurve(serverPrefs, []CurveID{CurveP521}); got != 0 {
		t.Fatalf("pickCurve = %v, want 0 for no overlap", got)
	}
}

func TestCurveForID(t *testing.T) {
	if _, ok := curveForID(CurveP256); !ok {
		t.Fatal("expected CurveP256 to resolve")
	}
	if _, ok := curveForID(CurveID(0xffff)); ok {
		t.Fatal("expected unknown curve id to fail")
	}
}

func TestECDHEKeyAgreementRoundTrip(t *testing.T) {
	serverPriv, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatal(err)
	}
	cert := &Certificate{PrivateKey: serverPriv}
	hs := testHSContext(t, []CurveID{CurveP256}, []SignatureScheme{SignatureScheme(uint16(hashSHA256)<<8 | uint16(sigRSA))})
	hs.config.CurvePreferences = []CurveID{CurveP256}

	server := &ecdheKeyAgreement{isRSA: true, version: VersionTLS12}
	skx, err := server.generateServerKeyExchange(hs.config, cert, hs)
	if err != nil {
		t.Fatal(err)
	}
	if skx == nil || len(skx.key) == 0 {
		t.Fatal("expected a non-empty ServerKeyExchange")
	}

	curve, _ := curveForID(CurveP256)
	clientPriv, x, y, err := elliptic.GenerateKey(curve, rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	sc := NewCursor(skx.key)
	var curveType uint8
	var curveID uint16
	if !sc.U8(&curveType) || !sc.U16(&curveID) {
		t.Fatal("failed to parse ECDHE params")
	}
	serverPoint, ok := sc.U8LengthPrefixedBytes()
	if !ok {
		t.Fatal("failed to parse server ECDHE point")
	}
	sx, sy := elliptic.Unmarshal(curve, serverPoint)
	if sx == nil {
		t.Fatal("server sent an invalid EC point")
	}
	wantX, _ := curve.ScalarMult(sx, sy, clientPriv)

	w := NewWriter()
	point := elliptic.Marshal(curve, x, y)
	w.U8LengthPrefixed(func(w *Writer) { w.Bytes(point) })
	ckx := &clientKeyExchangeMsg{ciphertext: w.MustFinish()}

	pms, err := server.processClientKeyExchange(hs.config, cert, ckx, hs)
	if err != nil {
		t.Fatal(err)
	}
	if len(pms) == 0 {
		t.Fatal("expected non-empty pre-master secret")
	}
	if new(big.Int).SetBytes(pms).Cmp(wantX) != 0 {
		t.Fatal("server and client derived different pre-master secrets")
	}
}

func TestChooseSignatureSchemeFallsBackPreTLS12(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatal(err)
	}
	cert := &Certificate{PrivateKey: priv}
	scheme, hash := chooseSignatureScheme(cert, nil, VersionTLS10)
	if hash.String() != "SHA-1" {
		t.Fatalf("expected SHA-1 fallback pre-TLS1.2, got %v", hash)
	}
	if scheme.sig() != sigRSA {
		t.Fatalf("expected RSA signature scheme, got %v", scheme.sig())
	}
}
