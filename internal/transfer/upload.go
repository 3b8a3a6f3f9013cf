package transfer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/unioslo/tacl/internal/crypto"
	"github.com/unioslo/tacl/internal/retry"
	"github.com/unioslo/tacl/internal/tacapi"
	"github.com/unioslo/tacl/internal/tacenv"
	"github.com/unioslo/tacl/internal/tacerr"
)

// RefreshFunc is called before every network attempt that needs a current
// access token; it returns whatever token should be used for that attempt,
// threaded in by the caller holding the mutable token pair so a windowed
// refresh can happen transparently mid-transfer.
type RefreshFunc func(ctx context.Context) (access string, err error)

// UploadParams describes one file's upload. Group, when empty, defaults
// to "<tenant>-member-group". PublicKey is nil unless the transfer is
// encrypted; when set, the streaming path seals one envelope for the
// whole file and the resumable path seals a fresh one per chunk, so a
// compromised chunk never exposes key material for its neighbors.
type UploadParams struct {
	Env      tacenv.Environment
	Pnum     string
	Backend  string
	Client   *http.Client
	Logger   *slog.Logger
	Refresh  RefreshFunc

	LocalPath          string
	IsDir              bool
	Group              string
	RemotePath         string
	ChunkSize          int
	ResumableThreshold int64
	ForceResumable     bool
	SetMtime           bool
	PublicKey          *[32]byte
}

// UploadResult reports the upload's outcome and the (possibly rebuilt)
// HTTP client the caller should keep using for its next operation.
type UploadResult struct {
	UploadID string
	Client   *http.Client
}

// Upload dispatches to the streaming or resumable path, based on file
// size versus ResumableThreshold (or ForceResumable).
func Upload(ctx context.Context, p UploadParams) (UploadResult, error) {
	if p.Backend == "" {
		p.Backend = tacapi.DefaultBackend
	}

	if p.ChunkSize == 0 {
		p.ChunkSize = DefaultChunkSize
	}

	threshold := p.ResumableThreshold
	if threshold == 0 {
		threshold = ResumableThreshold
	}

	info, err := os.Stat(p.LocalPath)
	if err != nil {
		return UploadResult{}, fmt.Errorf("transfer: stat %s: %w", p.LocalPath, err)
	}

	if !p.ForceResumable && info.Size() <= threshold {
		return streamUpload(ctx, p)
	}

	return resumableUpload(ctx, p)
}

// streamUpload implements the streaming single-PUT path. The whole file
// travels under one sealed envelope, since there is only one request to
// attach headers to.
func streamUpload(ctx context.Context, p UploadParams) (UploadResult, error) {
	resource := resourceName(p.LocalPath, p.IsDir, p.Group, p.RemotePath)
	group := p.Group
	if group == "" {
		group = defaultGroup(p.Pnum)
	}

	reqURL := fmt.Sprintf("%s?group=%s",
		tacapi.FileAPIURL(p.Env, p.Pnum, p.Backend, "stream/"+resource),
		url.QueryEscape(group),
	)

	var envelope *crypto.Envelope

	if p.PublicKey != nil {
		var err error

		envelope, err = crypto.NewEnvelope(p.PublicKey)
		if err != nil {
			return UploadResult{}, fmt.Errorf("transfer: sealing envelope: %w", err)
		}
	}

	reader, err := NewChunkReader(p.LocalPath, p.ChunkSize, nil, envelope)
	if err != nil {
		return UploadResult{}, err
	}
	defer reader.Close()

	body := io.NopCloser(&chunkStreamReader{reader: reader})

	access, err := p.Refresh(ctx)
	if err != nil {
		return UploadResult{}, fmt.Errorf("transfer: refreshing token: %w", err)
	}

	result, err := retry.Do(ctx, p.Client, p.Logger, func(ctx context.Context, client *http.Client) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, reqURL, body)
		if err != nil {
			return nil, err
		}

		setUploadHeaders(req, access, p, info(p.LocalPath), envelope)

		return client.Do(req)
	})
	if err != nil {
		return UploadResult{}, err
	}

	defer result.Response.Body.Close()

	return UploadResult{Client: result.Client}, nil
}

// chunkStreamReader adapts a ChunkReader into an io.Reader for http.NewRequest
// bodies, since the streaming path does not need per-chunk HTTP framing.
type chunkStreamReader struct {
	reader *ChunkReader
	buf    []byte
}

func (c *chunkStreamReader) Read(p []byte) (int, error) {
	for len(c.buf) == 0 {
		chunk, ok, err := c.reader.Next()
		if err != nil {
			return 0, err
		}

		if !ok {
			return 0, io.EOF
		}

		c.buf = chunk
	}

	n := copy(p, c.buf)
	c.buf = c.buf[n:]

	return n, nil
}

func setUploadHeaders(req *http.Request, access string, p UploadParams, mtime string, envelope *crypto.Envelope) {
	req.Header.Set("Authorization", "Bearer "+access)

	if p.SetMtime && mtime != "" {
		req.Header.Set("Modified-Time", mtime)
	}

	if envelope != nil {
		for k, v := range envelope.Headers(p.ChunkSize) {
			req.Header[k] = v
		}
	}
}

func info(path string) string {
	st, err := os.Stat(path)
	if err != nil {
		return ""
	}

	return strconv.FormatFloat(float64(st.ModTime().UnixNano())/1e9, 'f', -1, 64)
}

// resumableOverview is the server's discovery record for a resumable
// upload already in progress.
type resumableOverview struct {
	ID             string `json:"id"`
	Filename       string `json:"filename"`
	ChunkSize      int64  `json:"chunk_size"`
	MaxChunk       int64  `json:"max_chunk"`
	PreviousOffset int64  `json:"previous_offset"`
	NextOffset     int64  `json:"next_offset"`
	MD5Sum         string `json:"md5sum"`
}

type chunkResponse struct {
	ID       string `json:"id"`
	MaxChunk int64  `json:"max_chunk"`
}

// resumableUpload implements the chunked PATCH protocol: discover any
// existing resumable, verify and resume it, or start a fresh one, then
// PATCH each chunk and finalize with chunk=end. Each chunk is sealed
// under its own freshly generated envelope when encryption is active, so
// no two chunks on the wire ever share key material.
func resumableUpload(ctx context.Context, p UploadParams) (UploadResult, error) {
	resource := resourceName(p.LocalPath, p.IsDir, p.Group, p.RemotePath)
	baseURL := tacapi.FileAPIURL(p.Env, p.Pnum, p.Backend, "stream/"+resource)

	overview, client, err := discoverResumable(ctx, p, resourceName(p.LocalPath, p.IsDir, "", ""))
	if err != nil {
		return UploadResult{}, err
	}

	p.Client = client

	var resume *ResumeInfo

	chunkNum := int64(1)
	uploadID := ""

	if overview != nil {
		resume = &ResumeInfo{
			PreviousOffset: overview.PreviousOffset,
			NextOffset:     overview.NextOffset,
			ServerMD5:      overview.MD5Sum,
		}
		chunkNum = overview.MaxChunk + 1
		uploadID = overview.ID
		p.ChunkSize = int(overview.ChunkSize)
	}

	// Encryption, when active, happens per chunk below rather than in the
	// reader, so each chunk can be sealed under its own envelope.
	reader, err := NewChunkReader(p.LocalPath, p.ChunkSize, resume, nil)
	if err != nil {
		return UploadResult{}, err
	}
	defer reader.Close()

	mtime := info(p.LocalPath)

	for {
		chunk, ok, err := reader.Next()
		if err != nil {
			return UploadResult{}, err
		}

		if !ok {
			break
		}

		var envelope *crypto.Envelope

		if p.PublicKey != nil {
			envelope, err = crypto.NewEnvelope(p.PublicKey)
			if err != nil {
				return UploadResult{}, fmt.Errorf("transfer: sealing chunk envelope: %w", err)
			}

			envelope.XOR(chunk, chunk)
		}

		access, err := p.Refresh(ctx)
		if err != nil {
			return UploadResult{}, fmt.Errorf("transfer: refreshing token: %w", err)
		}

		chunkURL := fmt.Sprintf("%s?chunk=%d", baseURL, chunkNum)
		if chunkNum > 1 || uploadID != "" {
			chunkURL = fmt.Sprintf("%s&id=%s", chunkURL, url.QueryEscape(uploadID))
		}

		result, err := retry.Do(ctx, p.Client, p.Logger, func(ctx context.Context, c *http.Client) (*http.Response, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodPatch, chunkURL, strings.NewReader(string(chunk)))
			if err != nil {
				return nil, err
			}

			setUploadHeaders(req, access, p, mtime, envelope)

			return c.Do(req)
		})
		if err != nil {
			return UploadResult{}, err
		}

		var data chunkResponse
		if decErr := json.NewDecoder(result.Response.Body).Decode(&data); decErr != nil {
			result.Response.Body.Close()
			return UploadResult{}, fmt.Errorf("transfer: decoding chunk response: %w", decErr)
		}

		result.Response.Body.Close()

		p.Client = result.Client
		uploadID = data.ID

		if chunkNum == 1 {
			if _, parseErr := uuid.Parse(uploadID); parseErr != nil && p.Logger != nil {
				p.Logger.Warn("server returned a non-UUID resumable id", slog.String("id", uploadID))
			}

			writeResumeMarker(p.LocalPath, uploadID)
		}

		// The server's max_chunk is authoritative for the next index,
		// not the client's own counter.
		chunkNum = data.MaxChunk + 1
	}

	result, err := finalizeResumable(ctx, p, baseURL, uploadID, mtime)
	if err == nil {
		clearResumeMarker(p.LocalPath)
	}

	return result, err
}

// resumeMarkerSuffix names the local bookkeeping file that mirrors the
// server-assigned resumable id, so a later run's logs can say which
// in-flight upload a given local file corresponds to.
const resumeMarkerSuffix = ".resumable-id"

func writeResumeMarker(localPath, id string) {
	_ = os.WriteFile(localPath+resumeMarkerSuffix, []byte(id), 0o600)
}

func clearResumeMarker(localPath string) {
	_ = os.Remove(localPath + resumeMarkerSuffix)
}

func finalizeResumable(ctx context.Context, p UploadParams, baseURL, uploadID, mtime string) (UploadResult, error) {
	group := p.Group
	if group == "" {
		group = defaultGroup(p.Pnum)
	}

	finalURL := fmt.Sprintf("%s?chunk=end&id=%s&group=%s", baseURL, url.QueryEscape(uploadID), url.QueryEscape(group))

	access, err := p.Refresh(ctx)
	if err != nil {
		return UploadResult{}, fmt.Errorf("transfer: refreshing token: %w", err)
	}

	result, err := retry.Do(ctx, p.Client, p.Logger, func(ctx context.Context, c *http.Client) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPatch, finalURL, nil)
		if err != nil {
			return nil, err
		}

		req.Header.Set("Authorization", "Bearer "+access)

		if p.SetMtime && mtime != "" {
			req.Header.Set("Modified-Time", mtime)
		}

		return c.Do(req)
	})
	if err != nil {
		return UploadResult{}, err
	}

	result.Response.Body.Close()

	return UploadResult{UploadID: uploadID, Client: result.Client}, nil
}

// discoverResumable queries the resumables endpoint for an existing
// upload matching this file. A nil overview means nothing to resume; the
// caller must start fresh.
func discoverResumable(ctx context.Context, p UploadParams, filename string) (*resumableOverview, *http.Client, error) {
	endpoint := "resumables"
	if filename != "" {
		endpoint = "resumables/" + url.PathEscape(filename)
	}

	reqURL := tacapi.FileAPIURL(p.Env, p.Pnum, p.Backend, endpoint)

	key := resumableKey(p.IsDir, p.LocalPath)
	if key != "" {
		reqURL += "?key=" + url.QueryEscape(key)
	}

	access, err := p.Refresh(ctx)
	if err != nil {
		return nil, p.Client, fmt.Errorf("transfer: refreshing token: %w", err)
	}

	result, err := retry.Do(ctx, p.Client, p.Logger, func(ctx context.Context, c *http.Client) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, err
		}

		req.Header.Set("Authorization", "Bearer "+access)

		return c.Do(req)
	})
	if err != nil {
		if apiErr, ok := err.(*tacerr.APIError); ok && apiErr.StatusCode == http.StatusNotFound {
			return nil, result.Client, nil
		}

		return nil, result.Client, err
	}

	defer result.Response.Body.Close()

	var data resumableOverview

	if decErr := json.NewDecoder(result.Response.Body).Decode(&data); decErr != nil {
		return nil, result.Client, fmt.Errorf("transfer: decoding resumables response: %w", decErr)
	}

	if data.ID == "" {
		return nil, result.Client, nil
	}

	return &data, result.Client, nil
}
