package keystore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// DefaultKeyID names the key built from a bare shared secret.
const DefaultKeyID = "default"

var ErrKeyNotFound = errors.New("key not found")

// StaticKeyStore holds HMAC verification keys for bearer tokens, indexed by key id.
type StaticKeyStore struct {
	keys         map[string][]byte
	defaultKeyID string
}

// NewSingle builds a keystore with one key used for tokens that carry no kid.
func NewSingle(secret string) *StaticKeyStore {
	return &StaticKeyStore{
		keys:         map[string][]byte{DefaultKeyID: []byte(secret)},
		defaultKeyID: DefaultKeyID,
	}
}

// Parse builds a keystore from "keyId:hex,keyId2:hex". defaultKeyID selects the key
// for tokens without a kid header; it must be one of the listed ids when set.
func Parse(raw, defaultKeyID string) (*StaticKeyStore, error) {
	keys := make(map[string][]byte)
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		parts := strings.SplitN(p, ":", 2)
		if len(parts) != 2 || parts[0] == "" {
			return nil, errors.New("invalid JWT_KEYS format")
		}
		key, err := hex.DecodeString(parts[1])
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", parts[0], err)
		}
		keys[parts[0]] = key
	}
	if len(keys) == 0 {
		return nil, errors.New("no keys configured")
	}
	if defaultKeyID != "" {
		if _, ok := keys[defaultKeyID]; !ok {
			return nil, fmt.Errorf("default key %q not in key list", defaultKeyID)
		}
	}
	return &StaticKeyStore{keys: keys, defaultKeyID: defaultKeyID}, nil
}

// Key returns the key for keyID, or the default key when keyID is empty.
func (s *StaticKeyStore) Key(ctx context.Context, keyID string) ([]byte, error) {
	_ = ctx
	if keyID == "" {
		keyID = s.defaultKeyID
	}
	if keyID == "" {
		return nil, ErrKeyNotFound
	}
	key, ok := s.keys[keyID]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return key, nil
}
