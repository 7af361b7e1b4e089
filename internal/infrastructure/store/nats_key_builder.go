// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
)

// Common key prefixes
const (
	// Entity prefixes
	KeyPrefixContact     = "contact"
	KeyPrefixMeeting     = "meeting"
	KeyPrefixParticipant = "participant"

	// Index prefixes
	KeyPrefixIndex      = "index"
	KeyPrefixIndexEmail = "email"
)

// keyWildcards are passed through EncodeKey untouched so encoded prefixes can be used as filters.
var keyWildcards = map[string]bool{"*": true, ">": true}

// KeyBuilder provides utilities for building consistent NATS KV keys. Every key
// part is base64url encoded so emails and provider ids are always valid key tokens.
type KeyBuilder struct {
	prefix string
}

// NewKeyBuilder creates a new key builder with an optional prefix
func NewKeyBuilder(prefix string) *KeyBuilder {
	return &KeyBuilder{
		prefix: prefix,
	}
}

// EntityKey builds a plain key for an entity (e.g., "contact/uid-123")
func (kb *KeyBuilder) EntityKey(entityType, id string) string {
	return kb.withPrefix(entityType, id)
}

// EntityKeyEncoded builds the encoded key for an entity
func (kb *KeyBuilder) EntityKeyEncoded(entityType, id string) string {
	return kb.EncodeKey(kb.EntityKey(entityType, id))
}

// IndexKeyEncoded builds the encoded key for a unique index entry
// (e.g., "index/email/jane@example.com").
func (kb *KeyBuilder) IndexKeyEncoded(indexType, indexValue string) string {
	return kb.EncodeKey(kb.withPrefix(KeyPrefixIndex, indexType, indexValue))
}

// CompoundKeyEncoded builds an encoded key from multiple parts. A "*" or ">" part
// is kept as a wildcard, which makes the result usable as a list filter.
func (kb *KeyBuilder) CompoundKeyEncoded(parts ...string) string {
	return kb.EncodeKey(kb.withPrefix(parts...))
}

func (kb *KeyBuilder) withPrefix(parts ...string) string {
	key := strings.Join(parts, "/")
	if kb.prefix == "" {
		return key
	}
	return fmt.Sprintf("%s/%s", kb.prefix, key)
}

// EncodeKey encodes a "/" separated key into "." separated base64url tokens.
// Adapted from https://github.com/ripienaar/encodedkv
//
// NATS limitations: https://docs.nats.io/nats-concepts/jetstream/key-value-store#notes
func (kb *KeyBuilder) EncodeKey(key string) string {
	parts := strings.Split(strings.TrimPrefix(key, "/"), "/")
	res := make([]string, 0, len(parts))
	for _, part := range parts {
		if keyWildcards[part] {
			res = append(res, part)
			continue
		}
		res = append(res, base64.RawURLEncoding.EncodeToString([]byte(part)))
	}
	return strings.Join(res, ".")
}

// DecodeKey reverses EncodeKey.
func (kb *KeyBuilder) DecodeKey(key string) (string, error) {
	if key == "" {
		return "", nats.ErrInvalidKey
	}

	res := []string{}
	for _, part := range strings.Split(key, ".") {
		k, err := base64.RawURLEncoding.DecodeString(part)
		if err != nil {
			return "", err
		}
		res = append(res, string(k))
	}

	return strings.Join(res, "/"), nil
}
