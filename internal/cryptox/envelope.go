// Package cryptox implements the wire envelope codec and the password-based
// key derivation used for offline credential verification.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	// EnvelopeKeySize is the AES-128 key carried in the first bytes of d.
	EnvelopeKeySize = 16
	// EnvelopeNonceSize is the AES-GCM nonce size.
	EnvelopeNonceSize = 12
	// EnvelopeTagSize is the AES-GCM authentication tag size.
	EnvelopeTagSize = 16
)

// ErrDecode is returned for any malformed or tampered envelope: bad base64,
// wrong key/nonce/tag sizes, or GCM tag verification failure. It indicates a
// protocol mismatch or tampering, never a transient fault, so callers must
// not retry.
var ErrDecode = errors.New("envelope decode failed")

// Envelope is the three-part encrypted payload exchanged over the wire in
// place of plaintext JSON. All fields are standard base64.
//
// The d field carries the AES-128 key in its first 16 bytes, followed by the
// ciphertext body. The GCM tag is transmitted separately in t and must be
// re-appended to the body before decryption.
type Envelope struct {
	D string `json:"d"`
	T string `json:"t"`
	N string `json:"n"`
}

// IsComplete reports whether all three envelope fields are present.
func (e Envelope) IsComplete() bool {
	return e.D != "" && e.T != "" && e.N != ""
}

// Open decrypts the envelope and returns the plaintext bytes.
func Open(e Envelope) ([]byte, error) {
	d, err := base64.StdEncoding.DecodeString(e.D)
	if err != nil {
		return nil, fmt.Errorf("%w: field d: %v", ErrDecode, err)
	}
	tag, err := base64.StdEncoding.DecodeString(e.T)
	if err != nil {
		return nil, fmt.Errorf("%w: field t: %v", ErrDecode, err)
	}
	nonce, err := base64.StdEncoding.DecodeString(e.N)
	if err != nil {
		return nil, fmt.Errorf("%w: field n: %v", ErrDecode, err)
	}

	if len(d) < EnvelopeKeySize {
		return nil, fmt.Errorf("%w: d shorter than key material (%d bytes)", ErrDecode, len(d))
	}
	if len(tag) != EnvelopeTagSize {
		return nil, fmt.Errorf("%w: tag size %d, want %d", ErrDecode, len(tag), EnvelopeTagSize)
	}
	if len(nonce) != EnvelopeNonceSize {
		return nil, fmt.Errorf("%w: nonce size %d, want %d", ErrDecode, len(nonce), EnvelopeNonceSize)
	}

	key := d[:EnvelopeKeySize]
	body := d[EnvelopeKeySize:]

	// GCM expects the tag appended to the ciphertext.
	ciphertext := make([]byte, 0, len(body)+len(tag))
	ciphertext = append(ciphertext, body...)
	ciphertext = append(ciphertext, tag...)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: tag verification", ErrDecode)
	}
	return plaintext, nil
}

// Decode decrypts the envelope and parses the plaintext as JSON. If the
// plaintext is not valid JSON the raw text is returned as a string.
func Decode(e Envelope) (any, error) {
	plaintext, err := Open(e)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(plaintext, &v); err != nil {
		return string(plaintext), nil
	}
	return v, nil
}

// Seal is the inverse of Open: it encrypts plaintext under key and nonce and
// packs the result into a well-formed envelope. Used by tests and local
// fixtures; the production client only ever decodes.
func Seal(plaintext, key, nonce []byte) (Envelope, error) {
	if len(key) != EnvelopeKeySize {
		return Envelope{}, fmt.Errorf("%w: key size %d, want %d", ErrDecode, len(key), EnvelopeKeySize)
	}
	if len(nonce) != EnvelopeNonceSize {
		return Envelope{}, fmt.Errorf("%w: nonce size %d, want %d", ErrDecode, len(nonce), EnvelopeNonceSize)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	sealed := aesgcm.Seal(nil, nonce, plaintext, nil)
	body := sealed[:len(sealed)-EnvelopeTagSize]
	tag := sealed[len(sealed)-EnvelopeTagSize:]

	d := make([]byte, 0, len(key)+len(body))
	d = append(d, key...)
	d = append(d, body...)

	return Envelope{
		D: base64.StdEncoding.EncodeToString(d),
		T: base64.StdEncoding.EncodeToString(tag),
		N: base64.StdEncoding.EncodeToString(nonce),
	}, nil
}
