// Package crypto implements the optional per-transfer encryption
// envelope: a random nonce and symmetric key are generated per transfer,
// file data is XORed against an XSalsa20 keystream, and the nonce/key
// pair is sealed to the server's published X25519 public key so only the
// server can recover it.
package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/salsa20"

	"github.com/unioslo/tacl/internal/tacenv"
	"github.com/unioslo/tacl/internal/tacerr"
)

const (
	// NonceSize and KeySize match libnacl's crypto_stream_xsalsa20 sizes,
	// which TACL's Go client must interoperate with byte-for-byte.
	NonceSize = 24
	KeySize   = 32
)

// Envelope holds the per-transfer nonce and key in the clear, plus their
// sealed (server-encrypted) forms ready to go on the wire as headers.
type Envelope struct {
	Nonce [NonceSize]byte
	Key   [KeySize]byte

	SealedNonce []byte
	SealedKey   []byte
}

// NewEnvelope draws a fresh random nonce and key and seals both to the
// server's public key using a NaCl anonymous sealed box, mirroring
// original_source's nacl_gen_nonce/nacl_gen_key/nacl_encrypt_header.
func NewEnvelope(serverPublicKey *[32]byte) (*Envelope, error) {
	env := &Envelope{}

	if _, err := io.ReadFull(rand.Reader, env.Nonce[:]); err != nil {
		return nil, fmt.Errorf("crypto: generating nonce: %w", err)
	}

	if _, err := io.ReadFull(rand.Reader, env.Key[:]); err != nil {
		return nil, fmt.Errorf("crypto: generating key: %w", err)
	}

	sealedNonce, err := box.SealAnonymous(nil, env.Nonce[:], serverPublicKey, rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("crypto: sealing nonce: %w", err)
	}

	sealedKey, err := box.SealAnonymous(nil, env.Key[:], serverPublicKey, rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("crypto: sealing key: %w", err)
	}

	env.SealedNonce = sealedNonce
	env.SealedKey = sealedKey

	return env, nil
}

// XOR runs XSalsa20 over data in place (encryption and decryption are the
// same operation for a stream cipher), matching libnacl's
// crypto_stream_xor semantics used by both the Python uploader and
// downloader.
func (e *Envelope) XOR(dst, src []byte) {
	salsa20.XORKeyStream(dst, src, e.Nonce[:], &e.Key)
}

// Headers returns the HTTP headers the transfer protocol attaches when
// per-transfer encryption is active: base64-encoded sealed nonce/key and
// the chunk size in clear text, plus the nacl content type.
func (e *Envelope) Headers(chunkSize int) http.Header {
	h := make(http.Header)
	h.Set("Content-Type", "application/octet-stream+nacl")
	h.Set("Nacl-Nonce", base64.StdEncoding.EncodeToString(e.SealedNonce))
	h.Set("Nacl-Key", base64.StdEncoding.EncodeToString(e.SealedKey))
	h.Set("Nacl-Chunksize", fmt.Sprintf("%d", chunkSize))

	return h
}

// ServerKeyFetcher fetches the server's published public key for a project,
// via GET /v1/{pnum}/files/crypto/key.
type ServerKeyFetcher struct {
	Client *http.Client
}

type publicKeyResponse struct {
	PublicKey string `json:"public_key"`
}

// FetchPublicKey retrieves and decodes the server's X25519 public key for
// the given environment and project number.
func (f *ServerKeyFetcher) FetchPublicKey(env tacenv.Environment, pnum, accessToken string) (*[32]byte, error) {
	url := fmt.Sprintf("%s/%s/files/crypto/key", env.BaseURL(), pnum)

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: building key request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("crypto: fetching public key: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &tacerr.APIError{
			StatusCode: resp.StatusCode,
			Message:    "fetching server public key",
			Err:        tacerr.ErrAuthz,
		}
	}

	var body publicKeyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("crypto: decoding public key response: %w", err)
	}

	raw, err := base64.StdEncoding.DecodeString(body.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: decoding public key: %w", err)
	}

	if len(raw) != 32 {
		return nil, fmt.Errorf("crypto: public key has unexpected length %d", len(raw))
	}

	var key [32]byte
	copy(key[:], raw)

	return &key, nil
}
