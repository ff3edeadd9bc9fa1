package integrity

import (
	"hash/crc32"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "blob.bin")
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return p
}

func TestVerifier_Verify(t *testing.T) {
	data := []byte("hello world")
	path := writeTemp(t, data)
	sum := crc32.ChecksumIEEE(data)

	tests := []struct {
		name     string
		expected string
		want     bool
		wantErr  bool
	}{
		{name: "hex match", expected: Sum(data), want: true},
		{name: "upper hex match", expected: "0D4A1185", want: true},
		{name: "decimal match", expected: strconv.FormatUint(uint64(sum), 10), want: true},
		{name: "mismatch", expected: "00000000", want: false},
		{name: "garbage", expected: "not-a-sum", wantErr: true},
	}

	v := NewVerifier(true)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := v.Verify(path, tt.expected)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestVerifier_DisabledDoesNotReadFile(t *testing.T) {
	v := NewVerifier(false)
	ok, err := v.Verify(filepath.Join(t.TempDir(), "missing"), "whatever")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, v.Enabled())
}

func TestVerifier_MissingFile(t *testing.T) {
	v := NewVerifier(true)
	_, err := v.Verify(filepath.Join(t.TempDir(), "missing"), "00000000")
	assert.Error(t, err)
}

func TestChecksum(t *testing.T) {
	data := []byte("hello world")
	path := writeTemp(t, data)

	got, err := Checksum(path)
	require.NoError(t, err)
	assert.Equal(t, "0d4a1185", got)
	assert.Equal(t, got, Sum(data))
}
