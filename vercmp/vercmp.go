// This file is part of bootsmith
// Copyright 2025 The bootsmith Authors
// SPDX-License-Identifier: GPL-3.0-only

// Package vercmp provides a total ordering over kernel version strings.
//
// Versions are compared segment by segment, where a segment is a maximal
// run of digits or a maximal run of non-digits. Digit runs compare as
// numbers, so "2.10" sorts after "2.9" and "kernel-10" after "kernel-9".
// Non-digit runs compare lexicographically. When one string is an
// otherwise-equal prefix of the other, the shorter one sorts first.
package vercmp

import (
	"sort"
	"strings"
)

// Compare returns -1 if a sorts before b, 1 if a sorts after b and 0 if
// the two versions are equal.
func Compare(a, b string) int {
	for a != "" || b != "" {
		if a == "" {
			return -1
		}
		if b == "" {
			return 1
		}

		aseg, arest, anum := segment(a)
		bseg, brest, bnum := segment(b)

		var cmp int
		if anum && bnum {
			cmp = compareNumeric(aseg, bseg)
		} else {
			cmp = strings.Compare(aseg, bseg)
		}
		if cmp != 0 {
			return cmp
		}

		a, b = arest, brest
	}
	return 0
}

// Less reports whether a sorts strictly before b.
func Less(a, b string) bool {
	return Compare(a, b) < 0
}

// Sort orders versions ascending, oldest first.
func Sort(versions []string) {
	sort.Slice(versions, func(i, j int) bool {
		return Compare(versions[i], versions[j]) < 0
	})
}

// segment splits off the leading maximal digit or non-digit run.
func segment(s string) (seg, rest string, numeric bool) {
	numeric = isDigit(s[0])
	i := 1
	for i < len(s) && isDigit(s[i]) == numeric {
		i++
	}
	return s[:i], s[i:], numeric
}

// compareNumeric compares two digit runs as numbers of arbitrary length.
func compareNumeric(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
