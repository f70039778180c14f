// Package trust loads the certificate material used to verify the chat
// server's identity and turns it into TLS client configurations.
//
// Two credential file formats are accepted:
//
//   - PKCS#12 trust stores (.p12, .pfx), as exported by keytool or openssl.
//   - Sealed PEM bundles: a JSON envelope holding PEM certificates encrypted
//     with a key derived from the password (see Seal).
//
// A Context is immutable once loaded and may be shared by any number of
// concurrent control and push channel operations.
package trust

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"

	"software.sslmate.com/src/go-pkcs12"
)

// DefaultPassword is used when no trust store password is configured.
const DefaultPassword = "changeit"

var (
	// ErrCredentialNotFound is returned when the credential file does not exist.
	ErrCredentialNotFound = errors.New("credential file not found")

	// ErrCredentialInvalid is returned when the credential file cannot be
	// parsed, the password is wrong or it holds no certificates.
	ErrCredentialInvalid = errors.New("credential file invalid")
)

// CredentialError describes a failure to load trust material.
// Callers should treat it as fatal: without it no server can be verified.
type CredentialError struct {
	Path string
	Kind error
	Err  error
}

func (e *CredentialError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("trust: %s: %v", e.Path, e.Kind)
	}
	return fmt.Sprintf("trust: %s: %v: %v", e.Path, e.Kind, e.Err)
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *CredentialError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Context is validated trust material plus the TLS settings derived from it.
type Context struct {
	roots      *x509.CertPool
	certs      []*x509.Certificate
	serverName string
}

// Option configures a Context at load time.
type Option func(*Context)

// WithServerName pins the name verified against the server certificate,
// overriding the host the client dials.
func WithServerName(name string) Option {
	return func(c *Context) { c.serverName = name }
}

// Load reads the credential file at path and builds a Context from it.
func Load(path, password string, opts ...Option) (*Context, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &CredentialError{Path: path, Kind: ErrCredentialNotFound}
		}
		return nil, &CredentialError{Path: path, Kind: ErrCredentialInvalid, Err: err}
	}

	certs, err := decode(data, password)
	if err != nil {
		return nil, &CredentialError{Path: path, Kind: ErrCredentialInvalid, Err: err}
	}
	if len(certs) == 0 {
		return nil, &CredentialError{Path: path, Kind: ErrCredentialInvalid, Err: errors.New("no certificates")}
	}

	return New(certs, opts...), nil
}

// New builds a Context directly from certificates.
func New(certs []*x509.Certificate, opts ...Option) *Context {
	c := &Context{
		roots: x509.NewCertPool(),
		certs: append([]*x509.Certificate(nil), certs...),
	}
	for _, cert := range c.certs {
		c.roots.AddCert(cert)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ClientConfig returns a fresh TLS configuration that verifies the server
// against the loaded certificates only. host is used as the server name
// unless one was pinned with WithServerName.
func (c *Context) ClientConfig(host string) *tls.Config {
	name := host
	if c.serverName != "" {
		name = c.serverName
	}
	return &tls.Config{
		RootCAs:    c.roots,
		ServerName: name,
		MinVersion: tls.VersionTLS12,
	}
}

// Certificates returns a copy of the trusted certificates.
func (c *Context) Certificates() []*x509.Certificate {
	return append([]*x509.Certificate(nil), c.certs...)
}

func decode(data []byte, password string) ([]*x509.Certificate, error) {
	if isSealed(data) {
		pemData, err := Open(password, data)
		if err != nil {
			return nil, err
		}
		return parsePEM(pemData)
	}
	certs, err := pkcs12.DecodeTrustStore(data, password)
	if err != nil {
		return nil, fmt.Errorf("decode pkcs12 trust store: %w", err)
	}
	return certs, nil
}

func isSealed(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimSpace(data), []byte("{"))
}
