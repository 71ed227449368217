package util

import (
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

func CryptoGenericHash(bufferBytes []byte, watermark []byte) ([]byte, error) {

	if len(watermark) > 0 {
		bufferBytes = append(watermark, bufferBytes...)
	}

	// Generic hash of 32 bytes
	bufferBytesHashGen, err := blake2b.New(32, []byte{})
	if err != nil {
		return nil, errors.Wrap(err, "Unable create blake2b hash object")
	}

	// Write buffer bytes to hash
	if _, err = bufferBytesHashGen.Write(bufferBytes); err != nil {
		return nil, errors.Wrap(err, "Unable write buffer bytes to hash function")
	}

	return bufferBytesHashGen.Sum([]byte{}), nil
}

func StripQuote(s string) string {

	m := strings.TrimSpace(s)
	if len(m) > 0 && m[0] == '"' {
		m = m[1:]
	}

	if len(m) > 0 && m[len(m)-1] == '"' {
		m = m[:len(m)-1]
	}

	return m
}

// SplitList turns a comma-delimited list into its trimmed, de-duplicated
// entries, preserving first-seen order. Empty entries are dropped.
func SplitList(s string) []string {

	var out []string
	seen := make(map[string]struct{})

	for _, part := range strings.Split(s, ",") {
		item := StripQuote(part)
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}

	return out
}
