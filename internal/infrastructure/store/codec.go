// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// Encoding selects how entity values are serialized into NATS KV.
type Encoding string

// Supported value encodings.
const (
	EncodingJSON    Encoding = "json"
	EncodingMsgpack Encoding = "msgpack"
)

// ParseEncoding converts a configuration value into an Encoding. An empty value means JSON.
func ParseEncoding(value string) (Encoding, error) {
	switch Encoding(strings.ToLower(strings.TrimSpace(value))) {
	case "", EncodingJSON:
		return EncodingJSON, nil
	case EncodingMsgpack:
		return EncodingMsgpack, nil
	default:
		return "", fmt.Errorf("unsupported KV encoding %q", value)
	}
}

// Codec marshals entities with the configured encoding. Unmarshal accepts both
// encodings so a bucket can be switched from one to the other without a migration.
// The zero value encodes JSON.
type Codec struct {
	encoding Encoding
}

// NewCodec creates a codec for the given encoding.
func NewCodec(encoding Encoding) Codec {
	return Codec{encoding: encoding}
}

// Encoding returns the encoding used by Marshal.
func (c Codec) Encoding() Encoding {
	if c.encoding == "" {
		return EncodingJSON
	}
	return c.encoding
}

// Marshal serializes v. Msgpack output reuses the json struct tags.
func (c Codec) Marshal(v any) ([]byte, error) {
	if c.Encoding() != EncodingMsgpack {
		return json.Marshal(v)
	}

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes data as JSON, falling back to msgpack.
func (c Codec) Unmarshal(data []byte, v any) error {
	jsonErr := json.Unmarshal(data, v)
	if jsonErr == nil {
		return nil
	}

	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("value is neither JSON (%w) nor msgpack: %w", jsonErr, err)
	}
	return nil
}
