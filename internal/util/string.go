// Copyright (c) 2025 Pranai Giri
// SPDX-License-Identifier: MIT

package util

// Rune-aware truncation. Session titles are derived from user text that may
// contain multi-byte characters; slicing by byte index would corrupt UTF-8.

// TruncateRunes truncates s to at most maxRunes characters. If the string is
// truncated, "..." is appended after the cut.
func TruncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes]) + "..."
}

// TruncateRunesNoEllipsis truncates s to at most maxRunes characters without
// appending an ellipsis.
func TruncateRunesNoEllipsis(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes])
}

// RuneLen returns the number of runes in s.
func RuneLen(s string) int {
	return len([]rune(s))
}
