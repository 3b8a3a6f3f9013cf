// Package transfer implements the chunk reader, single-file uploader, and
// single-file downloader.
package transfer

import (
	"crypto/md5" //nolint:gosec // required: server compares chunks by MD5, not a security boundary
	"fmt"
	"io"
	"os"

	"github.com/unioslo/tacl/internal/crypto"
	"github.com/unioslo/tacl/internal/tacerr"
)

// DefaultChunkSize is the chunk size used unless the caller overrides it.
const DefaultChunkSize = 50 * 1024 * 1024

// ResumableThreshold is the file size above which uploads use the chunked
// PATCH protocol instead of a single streaming PUT.
const ResumableThreshold = 1024 * 1024 * 1024

// ResumeInfo carries the server's record of a partially committed upload,
// used to verify the locally held bytes still match before resuming.
type ResumeInfo struct {
	PreviousOffset int64
	NextOffset     int64
	ServerMD5      string
}

// ChunkReader produces a lazy, single-pass, resumable, optionally
// encrypting sequence of byte chunks from a local file.
type ChunkReader struct {
	file      *os.File
	chunkSize int
	envelope  *crypto.Envelope
	done      bool
}

// NewChunkReader opens path and positions it for reading, verifying the
// resume point first when resume is non-nil.
func NewChunkReader(path string, chunkSize int, resume *ResumeInfo, envelope *crypto.Envelope) (*ChunkReader, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("transfer: opening %s: %w", path, err)
	}

	r := &ChunkReader{file: f, chunkSize: chunkSize, envelope: envelope}

	if resume != nil {
		if err := r.verifyAndSeek(resume); err != nil {
			f.Close()
			return nil, err
		}
	}

	return r, nil
}

// verifyAndSeek reads [PreviousOffset, NextOffset), checks its MD5 against
// the server's record, and fails fast on mismatch — the upload cannot be
// salvaged and the caller must delete the server-side resumable and
// restart.
func (r *ChunkReader) verifyAndSeek(resume *ResumeInfo) error {
	if _, err := r.file.Seek(resume.PreviousOffset, io.SeekStart); err != nil {
		return fmt.Errorf("transfer: seeking to previous offset: %w", err)
	}

	size := resume.NextOffset - resume.PreviousOffset

	buf := make([]byte, size)
	if _, err := io.ReadFull(r.file, buf); err != nil {
		return fmt.Errorf("transfer: reading committed range: %w", err)
	}

	sum := md5.Sum(buf) //nolint:gosec

	if fmt.Sprintf("%x", sum) != resume.ServerMD5 {
		return tacerr.ErrResumeIntegrity
	}

	if _, err := r.file.Seek(resume.NextOffset, io.SeekStart); err != nil {
		return fmt.Errorf("transfer: seeking to next offset: %w", err)
	}

	return nil
}

// Next returns the next chunk of up to chunkSize bytes, encrypted in place
// when an envelope is set. ok is false once the file is exhausted.
func (r *ChunkReader) Next() (data []byte, ok bool, err error) {
	if r.done {
		return nil, false, nil
	}

	buf := make([]byte, r.chunkSize)

	n, err := io.ReadFull(r.file, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, false, fmt.Errorf("transfer: reading chunk: %w", err)
	}

	if n == 0 {
		r.done = true
		return nil, false, nil
	}

	buf = buf[:n]

	if n < r.chunkSize {
		r.done = true
	}

	if r.envelope != nil {
		r.envelope.XOR(buf, buf)
	}

	return buf, true, nil
}

// Close releases the underlying file handle.
func (r *ChunkReader) Close() error {
	return r.file.Close()
}
