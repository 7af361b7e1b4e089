// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCoalesceString(t *testing.T) {
	tests := []struct {
		name     string
		values   []string
		expected string
	}{
		{name: "meeting title wins over title", values: []string{"Acme sync", "Weekly"}, expected: "Acme sync"},
		{name: "falls back past empty values", values: []string{"", "", "Weekly"}, expected: "Weekly"},
		{name: "whitespace is not empty", values: []string{" ", "Weekly"}, expected: " "},
		{name: "all empty", values: []string{"", ""}, expected: ""},
		{name: "no values", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CoalesceString(tt.values...))
		})
	}
}
