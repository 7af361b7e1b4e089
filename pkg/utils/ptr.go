// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package utils

// StringPtr converts a string to a pointer to a string.
func StringPtr(s string) *string {
	return &s
}

// BoolPtr converts a bool to a pointer to a bool.
func BoolPtr(b bool) *bool {
	return &b
}

// IntPtr converts an int to a pointer to an int.
func IntPtr(i int) *int {
	return &i
}
