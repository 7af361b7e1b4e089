// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringPtr(t *testing.T) {
	for _, value := range []string{"", "555", "jane@acme.com", "unicode: 你好世界"} {
		t.Run(value, func(t *testing.T) {
			ptr := StringPtr(value)
			require.NotNil(t, ptr)
			assert.Equal(t, value, *ptr)
		})
	}
}

func TestBoolPtr(t *testing.T) {
	assert.True(t, *BoolPtr(true))
	assert.False(t, *BoolPtr(false))
}

func TestIntPtr(t *testing.T) {
	for _, value := range []int{0, 30, -1} {
		ptr := IntPtr(value)
		require.NotNil(t, ptr)
		assert.Equal(t, value, *ptr)
	}
}

func TestPointerIndependence(t *testing.T) {
	first := StringPtr("c-1")
	second := StringPtr("c-1")

	assert.NotSame(t, first, second)
	*first = "c-2"
	assert.Equal(t, "c-1", *second)
}
