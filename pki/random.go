package pki

import (
	"fmt"
	"io"
)

// cryptoRandRead reads exactly length bytes from randReader.
func cryptoRandRead(length int) ([]byte, error) {
	b := make([]byte, length)

	i, err := io.ReadFull(randReader, b)
	if err != nil {
		return nil, fmt.Errorf("crypto/rand read: %w", err)
	}

	if i != length {
		return nil, fmt.Errorf("could not read %d random bytes from crypto/rand, only got %d", length, i)
	}

	return b, nil
}

// RandomBytes returns length bytes from a cryptographically secure source.
func RandomBytes(length int) ([]byte, error) {
	return cryptoRandRead(length)
}
