package transfer

import (
	"context"
	"crypto/md5" //nolint:gosec // test fixture only, matches server's MD5-based verification
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/nacl/box"

	"github.com/unioslo/tacl/internal/tacenv"
)

func writeTempFile(t *testing.T, size int) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "payload.bin")

	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}

	require.NoError(t, os.WriteFile(path, data, 0o600))

	return path
}

func TestStreamUploadPUTsWholeFile(t *testing.T) {
	path := writeTempFile(t, 1024)

	var received []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Contains(t, r.URL.Path, "/stream/payload.bin")
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		received = body

		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	result, err := Upload(context.Background(), UploadParams{
		Env:     tacenv.Dev,
		Pnum:    "p11",
		Client:  testClient(t, srv),
		Refresh: staticRefresh("tok"),
		LocalPath: path,
	})
	require.NoError(t, err)
	assert.NotNil(t, result.Client)
	assert.Len(t, received, 1024)
}

func TestResumableUploadStartsFreshWhenNothingToResume(t *testing.T) {
	path := writeTempFile(t, 200)

	var chunkBodies [][]byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPatch && r.URL.Query().Get("chunk") == "end":
			assert.Equal(t, "upload-1", r.URL.Query().Get("id"))
			assert.Equal(t, "p11-member-group", r.URL.Query().Get("group"))
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPatch:
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			chunkBodies = append(chunkBodies, body)

			_ = json.NewEncoder(w).Encode(chunkResponse{ID: "upload-1", MaxChunk: int64(len(chunkBodies))})
		default:
			t.Fatalf("unexpected method %s", r.Method)
		}
	}))
	defer srv.Close()

	result, err := Upload(context.Background(), UploadParams{
		Env:            tacenv.Dev,
		Pnum:           "p11",
		Client:         testClient(t, srv),
		Refresh:        staticRefresh("tok"),
		LocalPath:      path,
		ChunkSize:      64,
		ForceResumable: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "upload-1", result.UploadID)

	var total int
	for _, b := range chunkBodies {
		total += len(b)
	}

	assert.Equal(t, 200, total)
}

func TestResumableUploadResumesFromServerOffset(t *testing.T) {
	path := writeTempFile(t, 300)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	committed := data[:100]
	sum := md5.Sum(committed) //nolint:gosec
	sumHex := fmt.Sprintf("%x", sum)

	var chunkQueries []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			_ = json.NewEncoder(w).Encode(resumableOverview{
				ID:             "upload-9",
				ChunkSize:      100,
				MaxChunk:       1,
				PreviousOffset: 0,
				NextOffset:     100,
				MD5Sum:         sumHex,
			})
		case r.Method == http.MethodPatch && r.URL.Query().Get("chunk") == "end":
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPatch:
			chunkQueries = append(chunkQueries, r.URL.RawQuery)
			_, _ = io.Copy(io.Discard, r.Body)
			_ = json.NewEncoder(w).Encode(chunkResponse{ID: "upload-9", MaxChunk: int64(1 + len(chunkQueries))})
		default:
			t.Fatalf("unexpected method %s", r.Method)
		}
	}))
	defer srv.Close()

	_, err = Upload(context.Background(), UploadParams{
		Env:            tacenv.Dev,
		Pnum:           "p11",
		Client:         testClient(t, srv),
		Refresh:        staticRefresh("tok"),
		LocalPath:      path,
		ForceResumable: true,
	})
	require.NoError(t, err)
	require.Len(t, chunkQueries, 2)
	assert.Contains(t, chunkQueries[0], "chunk=2")
	assert.Contains(t, chunkQueries[0], "id=upload-9")
	assert.Contains(t, chunkQueries[1], "chunk=3")
}

func TestResumableUploadFailsOnIntegrityMismatch(t *testing.T) {
	path := writeTempFile(t, 300)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			_ = json.NewEncoder(w).Encode(resumableOverview{
				ID:             "upload-9",
				ChunkSize:      100,
				MaxChunk:       1,
				PreviousOffset: 0,
				NextOffset:     100,
				MD5Sum:         "0000000000000000000000000000000",
			})

			return
		}

		t.Fatalf("no PATCH should be sent after an integrity failure")
	}))
	defer srv.Close()

	_, err := Upload(context.Background(), UploadParams{
		Env:            tacenv.Dev,
		Pnum:           "p11",
		Client:         testClient(t, srv),
		Refresh:        staticRefresh("tok"),
		LocalPath:      path,
		ForceResumable: true,
	})
	require.Error(t, err)
}

func TestResumableUploadSealsFreshEnvelopePerChunk(t *testing.T) {
	path := writeTempFile(t, 200)

	pub, _, err := box.GenerateKey(rand.Reader)
	require.NoError(t, err)

	var nonces []string
	var chunkBodies [][]byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPatch && r.URL.Query().Get("chunk") == "end":
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPatch:
			assert.Equal(t, "application/octet-stream+nacl", r.Header.Get("Content-Type"))
			nonces = append(nonces, r.Header.Get("Nacl-Nonce"))

			body, readErr := io.ReadAll(r.Body)
			require.NoError(t, readErr)
			chunkBodies = append(chunkBodies, body)

			_ = json.NewEncoder(w).Encode(chunkResponse{ID: "upload-1", MaxChunk: int64(len(chunkBodies))})
		default:
			t.Fatalf("unexpected method %s", r.Method)
		}
	}))
	defer srv.Close()

	_, err = Upload(context.Background(), UploadParams{
		Env:            tacenv.Dev,
		Pnum:           "p11",
		Client:         testClient(t, srv),
		Refresh:        staticRefresh("tok"),
		LocalPath:      path,
		ChunkSize:      64,
		ForceResumable: true,
		PublicKey:      pub,
	})
	require.NoError(t, err)

	require.Len(t, nonces, 4)
	seen := map[string]bool{}
	for _, n := range nonces {
		assert.NotEmpty(t, n)
		assert.False(t, seen[n], "chunk envelopes must not reuse a sealed nonce")
		seen[n] = true
	}
}
