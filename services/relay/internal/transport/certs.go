package transport

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/pkcs12"
)

// ErrNoCertificate is returned when ModeTLS has no client certificate.
var ErrNoCertificate = errors.New("tls mode requires a client certificate")

// ClientTLSConfig builds the TLS client configuration for opts. Without a CA
// file the server certificate is not verified.
func ClientTLSConfig(opts Options) (*tls.Config, error) {
	if opts.CertPath == "" {
		return nil, ErrNoCertificate
	}

	cert, err := LoadClientCertificate(opts.CertPath, opts.CertPassword)
	if err != nil {
		return nil, err
	}

	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	if opts.CAPath == "" {
		cfg.InsecureSkipVerify = true
		return cfg, nil
	}

	caPEM, err := os.ReadFile(opts.CAPath)
	if err != nil {
		return nil, fmt.Errorf("read ca file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("ca file %s: no PEM certificates found", opts.CAPath)
	}
	cfg.RootCAs = pool
	if host, _, err := net.SplitHostPort(opts.Addr); err == nil {
		cfg.ServerName = host
	}
	return cfg, nil
}

// LoadClientCertificate reads a client certificate. PEM files must hold the
// certificate chain and an unencrypted private key; .p12/.pfx files (or any
// non-PEM content) are decoded as PKCS#12 with password.
func LoadClientCertificate(path, password string) (tls.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("read client certificate: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".p12" || ext == ".pfx" || !bytes.Contains(data, []byte("-----BEGIN")) {
		key, leaf, err := pkcs12.Decode(data, password)
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("decode pkcs12 %s: %w", path, err)
		}
		return tls.Certificate{
			Certificate: [][]byte{leaf.Raw},
			PrivateKey:  key,
			Leaf:        leaf,
		}, nil
	}

	cert, err := tls.X509KeyPair(data, data)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("load client certificate %s: %w", path, err)
	}
	return cert, nil
}
