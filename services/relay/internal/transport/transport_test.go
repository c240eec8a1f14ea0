package transport

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"io"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeCertPEM generates a self-signed certificate valid for 127.0.0.1 and
// writes cert + key to a single PEM file.
func writeCertPEM(t *testing.T, dir, name string) (string, tls.Certificate) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: name},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}

	var buf bytes.Buffer
	_ = pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: der})
	_ = pem.Encode(&buf, &pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	path := filepath.Join(dir, name+".pem")
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		t.Fatalf("write pem: %v", err)
	}
	cert, err := tls.X509KeyPair(buf.Bytes(), buf.Bytes())
	if err != nil {
		t.Fatalf("key pair: %v", err)
	}
	return path, cert
}

func TestUDPSendsOneDatagramPerMessage(t *testing.T) {
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer pc.Close()

	s, err := Dial(context.Background(), Options{Mode: ModeUDP, Addr: pc.LocalAddr().String()})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer s.Close()
	if s.Mode() != ModeUDP {
		t.Fatalf("mode = %s", s.Mode())
	}

	msgs := [][]byte{[]byte("<event>one</event>"), []byte("<event>two</event>")}
	for _, m := range msgs {
		if err := s.Send(m); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}

	buf := make([]byte, 2048)
	_ = pc.SetReadDeadline(time.Now().Add(2 * time.Second))
	for _, want := range msgs {
		n, _, err := pc.ReadFrom(buf)
		if err != nil {
			t.Fatalf("ReadFrom: %v", err)
		}
		if !bytes.Equal(buf[:n], want) {
			t.Fatalf("datagram = %q, want %q", buf[:n], want)
		}
	}
}

func TestTCPWritesMessagesBackToBack(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	received := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		data, _ := io.ReadAll(conn)
		received <- data
	}()

	s, err := Dial(context.Background(), Options{Mode: ModeTCP, Addr: ln.Addr().String()})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if err := s.Send([]byte("<event>a</event>")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := s.Send([]byte("<event>b</event>")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case data := <-received:
		if string(data) != "<event>a</event><event>b</event>" {
			t.Fatalf("stream = %q", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for stream")
	}
}

func TestTCPConnectRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	if _, err := Dial(context.Background(), Options{Mode: ModeTCP, Addr: addr, DialTimeout: time.Second}); err == nil {
		t.Fatal("expected connect error")
	}
}

func TestTLSPresentsClientCertificate(t *testing.T) {
	dir := t.TempDir()
	_, serverCert := writeCertPEM(t, dir, "server")
	clientPath, clientCert := writeCertPEM(t, dir, "client")

	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{
		Certificates: []tls.Certificate{serverCert},
		ClientAuth:   tls.RequireAnyClientCert,
	})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	type result struct {
		peer []byte
		data []byte
	}
	received := make(chan result, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		tc := conn.(*tls.Conn)
		if err := tc.Handshake(); err != nil {
			received <- result{}
			return
		}
		var peer []byte
		if certs := tc.ConnectionState().PeerCertificates; len(certs) > 0 {
			peer = certs[0].Raw
		}
		data, _ := io.ReadAll(tc)
		received <- result{peer: peer, data: data}
	}()

	s, err := Dial(context.Background(), Options{Mode: ModeTLS, Addr: ln.Addr().String(), CertPath: clientPath})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if s.Mode() != ModeTLS {
		t.Fatalf("mode = %s", s.Mode())
	}
	if err := s.Send([]byte("<event/>")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	_ = s.Close()

	select {
	case r := <-received:
		if !bytes.Equal(r.peer, clientCert.Certificate[0]) {
			t.Fatal("server did not see the client certificate")
		}
		if string(r.data) != "<event/>" {
			t.Fatalf("data = %q", r.data)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for tls stream")
	}
}

func TestTLSVerifiesServerWithCA(t *testing.T) {
	dir := t.TempDir()
	serverPath, serverCert := writeCertPEM(t, dir, "server")
	clientPath, _ := writeCertPEM(t, dir, "client")
	otherCA, _ := writeCertPEM(t, dir, "other")

	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{Certificates: []tls.Certificate{serverCert}})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.(*tls.Conn).Handshake()
			conn.Close()
		}
	}()

	s, err := Dial(context.Background(), Options{Mode: ModeTLS, Addr: ln.Addr().String(), CertPath: clientPath, CAPath: serverPath})
	if err != nil {
		t.Fatalf("Dial with matching CA: %v", err)
	}
	s.Close()

	if _, err := Dial(context.Background(), Options{Mode: ModeTLS, Addr: ln.Addr().String(), CertPath: clientPath, CAPath: otherCA}); err == nil {
		t.Fatal("expected verification failure with an unrelated CA")
	}
}

func TestTLSCertificateErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := Dial(context.Background(), Options{Mode: ModeTLS, Addr: "127.0.0.1:1"}); !errors.Is(err, ErrNoCertificate) {
		t.Fatalf("missing cert: err = %v", err)
	}

	if _, err := Dial(context.Background(), Options{Mode: ModeTLS, Addr: "127.0.0.1:1", CertPath: filepath.Join(dir, "absent.pem")}); err == nil {
		t.Fatal("expected error for absent certificate")
	}

	garbage := filepath.Join(dir, "client.p12")
	if err := os.WriteFile(garbage, []byte("not a pkcs12 bundle"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadClientCertificate(garbage, ""); err == nil {
		t.Fatal("expected pkcs12 decode error")
	}

	certOnly := filepath.Join(dir, "certonly.pem")
	if err := os.WriteFile(certOnly, []byte("-----BEGIN CERTIFICATE-----\nAAAA\n-----END CERTIFICATE-----\n"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadClientCertificate(certOnly, ""); err == nil {
		t.Fatal("expected error for PEM without a key")
	}
}

func TestUnknownMode(t *testing.T) {
	if _, err := Dial(context.Background(), Options{Mode: "carrier-pigeon"}); !errors.Is(err, ErrUnknownMode) {
		t.Fatalf("err = %v", err)
	}
}
