// Package integrity checks uploaded files against the checksum declared by the client.
package integrity

import (
	"encoding/hex"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"strconv"
	"strings"
)

// Verifier computes CRC-32 (IEEE) checksums over stored files.
// A disabled verifier accepts every file without reading it.
type Verifier struct {
	enabled bool
}

func NewVerifier(enabled bool) *Verifier {
	return &Verifier{enabled: enabled}
}

func (v *Verifier) Enabled() bool { return v.enabled }

// Verify reports whether the file at path matches expected.
// expected may be 8 hex digits or a decimal uint32.
func (v *Verifier) Verify(path, expected string) (bool, error) {
	if !v.enabled {
		return true, nil
	}

	want, err := parseChecksum(expected)
	if err != nil {
		return false, err
	}

	got, err := checksumFile(path)
	if err != nil {
		return false, err
	}
	return got == want, nil
}

// Checksum returns the hex encoded CRC-32 of the file at path.
func Checksum(path string) (string, error) {
	sum, err := checksumFile(path)
	if err != nil {
		return "", err
	}
	return Format(sum), nil
}

// Sum returns the hex encoded CRC-32 of data.
func Sum(data []byte) string {
	return Format(crc32.ChecksumIEEE(data))
}

// Format renders a checksum the way clients declare it.
func Format(sum uint32) string {
	b := []byte{byte(sum >> 24), byte(sum >> 16), byte(sum >> 8), byte(sum)}
	return hex.EncodeToString(b)
}

func checksumFile(path string) (uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open for checksum: %w", err)
	}
	defer f.Close()

	h := crc32.NewIEEE()
	if _, err := io.Copy(h, f); err != nil {
		return 0, fmt.Errorf("read for checksum: %w", err)
	}
	return h.Sum32(), nil
}

func parseChecksum(s string) (uint32, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) == 8 {
		if b, err := hex.DecodeString(s); err == nil {
			return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
		}
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid checksum %q", s)
	}
	return uint32(n), nil
}
