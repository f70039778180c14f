package trust

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

// sealedFormatVersion is the newest envelope version this package reads.
const sealedFormatVersion = 1

var errWrongPassword = errors.New("wrong password or corrupted bundle")

// envelope is the on-disk JSON form of a sealed PEM bundle.
type envelope struct {
	V      int    `json:"v"`
	Salt   []byte `json:"salt"`
	N      int    `json:"scrypt_N"`
	R      int    `json:"scrypt_r"`
	P      int    `json:"scrypt_p"`
	Cipher []byte `json:"cipher"`
}

// Seal encrypts a PEM certificate bundle under password. The result can be
// passed to Load.
func Seal(password string, pemData []byte) ([]byte, error) {
	if _, err := parsePEM(pemData); err != nil {
		return nil, err
	}

	var salt [16]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return nil, err
	}
	n, r, p := scryptParams()
	aead, err := newAEAD(password, salt[:], n, r, p)
	if err != nil {
		return nil, err
	}
	var nonce [chacha20poly1305.NonceSize]byte // the key is unique per salt
	ct := aead.Seal(nil, nonce[:], pemData, salt[:])

	return json.MarshalIndent(envelope{
		V:      sealedFormatVersion,
		Salt:   salt[:],
		N:      n,
		R:      r,
		P:      p,
		Cipher: ct,
	}, "", "  ")
}

// Open decrypts a sealed bundle and returns the PEM data inside it.
func Open(password string, sealed []byte) ([]byte, error) {
	var env envelope
	if err := json.Unmarshal(sealed, &env); err != nil {
		return nil, fmt.Errorf("decode sealed bundle: %w", err)
	}
	if env.V < 1 || env.V > sealedFormatVersion {
		return nil, fmt.Errorf("unsupported sealed bundle version %d", env.V)
	}

	aead, err := newAEAD(password, env.Salt, env.N, env.R, env.P)
	if err != nil {
		return nil, err
	}
	var nonce [chacha20poly1305.NonceSize]byte
	pt, err := aead.Open(nil, nonce[:], env.Cipher, env.Salt)
	if err != nil {
		return nil, errWrongPassword
	}
	return pt, nil
}

func newAEAD(password string, salt []byte, n, r, p int) (cipher.AEAD, error) {
	key, err := scrypt.Key([]byte(password), salt, n, r, p, chacha20poly1305.KeySize)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return chacha20poly1305.New(key)
}

func parsePEM(data []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse certificate: %w", err)
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, errors.New("no PEM certificates found")
	}
	return certs, nil
}

// scryptParams returns the key derivation cost parameters for new envelopes.
func scryptParams() (n, r, p int) { return 1 << 15, 8, 1 }
