// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package chunker

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// diacriticReplacements is the fixed table of common non-ASCII characters
// found in scientific names, mapped to their closest ASCII equivalent
// before Unicode decomposition runs. "×" (multiplication sign, used in
// hybrid binomials like "Mentha × piperita") maps to "x".
var diacriticReplacements = map[string]string{
	"×": "x",
	"é": "e", "è": "e", "ê": "e", "ë": "e",
	"à": "a", "á": "a", "â": "a", "ä": "a",
	"ù": "u", "ú": "u", "û": "u", "ü": "u",
	"ö": "o", "ó": "o", "ò": "o", "ô": "o",
	"ç": "c",
	"ñ": "n",
	"ß": "ss",
}

var nonAlnumRun = regexp.MustCompile(`[^a-z0-9_]+`)
var underscoreRun = regexp.MustCompile(`_+`)

// Sanitize converts a scientific name into a stable ASCII id matching
// ^[a-z0-9_]+$, per spec.md §4.3. Empty input, or input that sanitizes to
// nothing, yields the literal "unknown".
func Sanitize(scientificName string) string {
	if scientificName == "" {
		return "unknown"
	}

	id := strings.ToLower(scientificName)

	for nonASCII, ascii := range diacriticReplacements {
		id = strings.ReplaceAll(id, nonASCII, ascii)
	}

	id = norm.NFKD.String(id)
	id = stripNonASCII(id)

	id = nonAlnumRun.ReplaceAllString(id, "_")
	id = underscoreRun.ReplaceAllString(id, "_")
	id = strings.Trim(id, "_")

	if id == "" {
		return "unknown"
	}
	return id
}

// stripNonASCII drops every byte outside the 7-bit ASCII range, mirroring
// Python's `.encode('ascii', 'ignore').decode('ascii')`.
func stripNonASCII(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x80 {
			b.WriteByte(byte(r))
		}
	}
	return b.String()
}
