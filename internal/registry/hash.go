// Package registry implements the Function Registry (spec §4.C): content
// hashing + dedup, inline dependency metadata parsing, and version
// bookkeeping on top of internal/repository.FunctionRepository.
package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// normalizeSource strips trailing whitespace per line, normalizes line
// endings to "\n", and drops a leading UTF-8 BOM, so two semantically
// identical deploys collapse to the same content hash regardless of the
// client's line-ending or editor-trailing-space habits.
func normalizeSource(src string) string {
	src = strings.TrimPrefix(src, "﻿")
	src = strings.ReplaceAll(src, "\r\n", "\n")
	src = strings.ReplaceAll(src, "\r", "\n")

	lines := strings.Split(src, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}

// ContentHash returns the hex-encoded sha256 digest of the normalized
// source, the same primitive the teacher already uses for magic-token
// hashing (internal/domain.MagicToken.TokenHash), reused here for dedup.
func ContentHash(src string) string {
	sum := sha256.Sum256([]byte(normalizeSource(src)))
	return hex.EncodeToString(sum[:])
}
