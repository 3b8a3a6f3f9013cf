package transfer

import (
	"bytes"
	"crypto/md5" //nolint:gosec // test fixture only, matches server's MD5-based verification
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unioslo/tacl/internal/crypto"
	"github.com/unioslo/tacl/internal/tacerr"
)

func writeChunkReaderFixture(t *testing.T, size int) (string, []byte) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "source.bin")

	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 211)
	}

	require.NoError(t, os.WriteFile(path, data, 0o600))

	return path, data
}

func TestChunkReaderYieldsFixedSizeChunks(t *testing.T) {
	path, data := writeChunkReaderFixture(t, 250)

	r, err := NewChunkReader(path, 100, nil, nil)
	require.NoError(t, err)
	defer r.Close()

	var (
		got   []byte
		sizes []int
	)

	for {
		chunk, ok, err := r.Next()
		require.NoError(t, err)

		if !ok {
			break
		}

		got = append(got, chunk...)
		sizes = append(sizes, len(chunk))
	}

	assert.Equal(t, []int{100, 100, 50}, sizes)
	assert.Equal(t, data, got)
}

func TestChunkReaderEncryptsInPlace(t *testing.T) {
	path, data := writeChunkReaderFixture(t, 64)

	var nonce [crypto.NonceSize]byte
	var key [crypto.KeySize]byte

	for i := range nonce {
		nonce[i] = byte(i)
	}

	for i := range key {
		key[i] = byte(i + 1)
	}

	envelope := &crypto.Envelope{Nonce: nonce, Key: key}

	r, err := NewChunkReader(path, 64, nil, envelope)
	require.NoError(t, err)
	defer r.Close()

	chunk, ok, err := r.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEqual(t, data, chunk)

	decrypted := make([]byte, len(chunk))
	envelope.XOR(decrypted, chunk)
	assert.Equal(t, data, decrypted)
}

func TestChunkReaderResumesAfterVerifiedOffset(t *testing.T) {
	path, data := writeChunkReaderFixture(t, 300)

	sum := md5.Sum(data[:100]) //nolint:gosec

	resume := &ResumeInfo{PreviousOffset: 0, NextOffset: 100, ServerMD5: fmt.Sprintf("%x", sum)}

	r, err := NewChunkReader(path, 1024, resume, nil)
	require.NoError(t, err)
	defer r.Close()

	chunk, ok, err := r.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, bytes.Equal(data[100:], chunk))
}

func TestChunkReaderRejectsMismatchedResumeOffset(t *testing.T) {
	path, _ := writeChunkReaderFixture(t, 300)

	resume := &ResumeInfo{PreviousOffset: 0, NextOffset: 100, ServerMD5: "deadbeef"}

	_, err := NewChunkReader(path, 1024, resume, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, tacerr.ErrResumeIntegrity))
}
