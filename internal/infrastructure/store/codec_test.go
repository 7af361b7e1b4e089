// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-ingest-service/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEncoding(t *testing.T) {
	tests := []struct {
		input   string
		want    Encoding
		wantErr bool
	}{
		{input: "", want: EncodingJSON},
		{input: "json", want: EncodingJSON},
		{input: " MsgPack ", want: EncodingMsgpack},
		{input: "protobuf", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseEncoding(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCodec_MsgpackUsesJSONFieldNames(t *testing.T) {
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	meeting := &models.Meeting{
		UID:               "m-1",
		FathomRecordingID: "555",
		Title:             "Quarterly review",
		Summary:           utils.StringPtr("went well"),
		DurationMinutes:   utils.IntPtr(30),
		RawPayload:        json.RawMessage(`{"recording_id":555}`),
		CreatedAt:         &created,
	}

	codec := NewCodec(EncodingMsgpack)
	data, err := codec.Marshal(meeting)
	require.NoError(t, err)
	assert.Contains(t, string(data), "fathom_recording_id")

	var decoded models.Meeting
	require.NoError(t, codec.Unmarshal(data, &decoded))
	assert.Equal(t, "555", decoded.FathomRecordingID)
	assert.Equal(t, "went well", *decoded.Summary)
	assert.Equal(t, 30, *decoded.DurationMinutes)
	assert.JSONEq(t, `{"recording_id":555}`, string(decoded.RawPayload))
	assert.True(t, created.Equal(*decoded.CreatedAt))
}

func TestCodec_UnmarshalAcceptsEitherEncoding(t *testing.T) {
	contact := models.Contact{UID: "c-1", Email: "a@b.io", Name: "A"}

	jsonData, err := Codec{}.Marshal(contact)
	require.NoError(t, err)
	msgpackData, err := NewCodec(EncodingMsgpack).Marshal(contact)
	require.NoError(t, err)

	for name, data := range map[string][]byte{"json": jsonData, "msgpack": msgpackData} {
		t.Run(name, func(t *testing.T) {
			var got models.Contact
			require.NoError(t, NewCodec(EncodingJSON).Unmarshal(data, &got))
			assert.Equal(t, contact, got)
		})
	}

	var got models.Contact
	assert.Error(t, Codec{}.Unmarshal([]byte{0xc1}, &got))
}
