// Package keystore provides node identity of the server.
// Public half of the key is advertised as server_id
package keystore

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"os"
	"sync"

	"github.com/nats-io/nkeys"
	"github.com/pkg/errors"
)

// nolint: golint
var (
	ErrInvalidKey = errors.New("keystore: invalid key")
	ErrEmptyPath  = errors.New("keystore: empty path")
)

// Keystore loads server secret key. Called once at startup
type Keystore interface {
	Load() (ed25519.PrivateKey, error)
}

// File keystore reads key from file.
// Accepted formats: nkeys server seed (SN...), hex encoded seed or private key, raw 32 bytes seed
type File struct {
	Path string
}

var _ Keystore = (*File)(nil)

// Load ...
func (f *File) Load() (ed25519.PrivateKey, error) {
	if len(f.Path) == 0 {
		return nil, ErrEmptyPath
	}

	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, errors.Wrap(err, "keystore: read")
	}

	key, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "keystore: %s", f.Path)
	}

	return key, nil
}

// Parse key material
func Parse(data []byte) (ed25519.PrivateKey, error) {
	if len(data) == ed25519.SeedSize {
		return ed25519.NewKeyFromSeed(data), nil
	}

	text := bytes.TrimSpace(data)

	if len(text) > 0 && text[0] == 'S' {
		prefix, seed, err := nkeys.DecodeSeed(text)
		if err != nil {
			return nil, errors.Wrap(ErrInvalidKey, err.Error())
		}

		if prefix != nkeys.PrefixByteServer {
			return nil, errors.Wrapf(ErrInvalidKey, "expected server seed, got %s", prefix)
		}

		return ed25519.NewKeyFromSeed(seed), nil
	}

	raw, err := hex.DecodeString(string(text))
	if err != nil {
		return nil, ErrInvalidKey
	}

	switch len(raw) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	case ed25519.PrivateKeySize:
		key := ed25519.PrivateKey(raw)
		if !bytes.Equal(key.Public().(ed25519.PublicKey), ed25519.NewKeyFromSeed(key.Seed()).Public().(ed25519.PublicKey)) {
			return nil, ErrInvalidKey
		}

		return key, nil
	}

	return nil, ErrInvalidKey
}

// Ephemeral keystore generates key on first load and returns it afterwards
type Ephemeral struct {
	once sync.Once
	key  ed25519.PrivateKey
	err  error
}

var _ Keystore = (*Ephemeral)(nil)

// Load ...
func (e *Ephemeral) Load() (ed25519.PrivateKey, error) {
	e.once.Do(func() {
		_, e.key, e.err = ed25519.GenerateKey(rand.Reader)
	})

	return e.key, e.err
}

// New keystore for path. Empty path gives ephemeral keystore
func New(path string) Keystore {
	if len(path) == 0 {
		return &Ephemeral{}
	}

	return &File{Path: path}
}

// ServerID base32 encoded public key with nkeys server prefix
func ServerID(key ed25519.PrivateKey) (string, error) {
	if len(key) != ed25519.PrivateKeySize {
		return "", ErrInvalidKey
	}

	kp, err := nkeys.FromRawSeed(nkeys.PrefixByteServer, key.Seed())
	if err != nil {
		return "", errors.Wrap(err, "keystore: server id")
	}

	return kp.PublicKey()
}

// GenerateSeed new nkeys server seed suitable for File keystore
func GenerateSeed() ([]byte, error) {
	kp, err := nkeys.CreateServer()
	if err != nil {
		return nil, err
	}

	return kp.Seed()
}
