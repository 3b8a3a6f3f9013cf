package transfer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/unioslo/tacl/internal/crypto"
	"github.com/unioslo/tacl/internal/retry"
	"github.com/unioslo/tacl/internal/tacapi"
	"github.com/unioslo/tacl/internal/tacenv"
)

// DownloadParams describes one file's download. Envelope is nil unless
// the transfer is encrypted; unlike the resumable upload path, one
// envelope covers the whole file, since the server reuses the same
// nonce/key pair for every byte it streams back.
type DownloadParams struct {
	Env     tacenv.Environment
	Pnum    string
	Backend string
	Client  *http.Client
	Logger  *slog.Logger
	Refresh RefreshFunc

	RemotePath string
	LocalPath  string
	ChunkSize  int
	SetMtime   bool
	Envelope   *crypto.Envelope
}

// DownloadResult reports the download's outcome.
type DownloadResult struct {
	BytesWritten int64
	Client       *http.Client
	Resumed      bool
}

type headInfo struct {
	ContentLength int64
	ETag          string
	ModifiedTime  time.Time
}

// Download implements the ranged HEAD+GET protocol: HEAD to learn
// size/ETag/mtime, then a conditional Range GET that resumes a local
// partial file only when its ETag still matches.
func Download(ctx context.Context, p DownloadParams) (DownloadResult, error) {
	if p.Backend == "" {
		p.Backend = tacapi.DefaultBackend
	}

	if p.ChunkSize == 0 {
		p.ChunkSize = DefaultChunkSize
	}

	head, client, err := exportHead(ctx, p)
	if err != nil {
		return DownloadResult{}, err
	}

	p.Client = client

	offset, resumed, err := localResumeOffset(p.LocalPath, head.ETag)
	if err != nil {
		return DownloadResult{}, err
	}

	result, err := exportGet(ctx, p, offset)
	if err != nil {
		return DownloadResult{}, err
	}

	result.Resumed = resumed

	if p.SetMtime && !head.ModifiedTime.IsZero() {
		if err := os.Chtimes(p.LocalPath, head.ModifiedTime, head.ModifiedTime); err != nil {
			return result, fmt.Errorf("transfer: setting mtime: %w", err)
		}
	}

	return result, nil
}

// exportHead issues the HEAD request used to discover size, ETag, and the
// server's recorded modification time.
func exportHead(ctx context.Context, p DownloadParams) (headInfo, *http.Client, error) {
	reqURL := tacapi.FileAPIURL(p.Env, p.Pnum, p.Backend, "export/"+url.PathEscape(p.RemotePath))

	access, err := p.Refresh(ctx)
	if err != nil {
		return headInfo{}, p.Client, fmt.Errorf("transfer: refreshing token: %w", err)
	}

	result, err := retry.Do(ctx, p.Client, p.Logger, func(ctx context.Context, c *http.Client) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, reqURL, nil)
		if err != nil {
			return nil, err
		}

		req.Header.Set("Authorization", "Bearer "+access)

		return c.Do(req)
	})
	if err != nil {
		return headInfo{}, p.Client, err
	}

	defer result.Response.Body.Close()

	head := headInfo{ETag: result.Response.Header.Get("ETag")}

	if length := result.Response.Header.Get("Content-Length"); length != "" {
		if n, err := strconv.ParseInt(length, 10, 64); err == nil {
			head.ContentLength = n
		}
	}

	if mtime := result.Response.Header.Get("Modified-Time"); mtime != "" {
		if secs, err := strconv.ParseFloat(mtime, 64); err == nil {
			head.ModifiedTime = time.Unix(0, int64(secs*1e9))
		}
	}

	return head, result.Client, nil
}

// localResumeOffset inspects any partial download already on disk. It is
// only safe to resume when the local fragment's recorded ETag still
// matches the server's current one; otherwise the file is restarted from
// zero.
func localResumeOffset(localPath, etag string) (int64, bool, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}

		return 0, false, fmt.Errorf("transfer: stat %s: %w", localPath, err)
	}

	marker := localPath + ".etag"

	stored, err := os.ReadFile(marker)
	if err != nil || string(stored) != etag {
		return 0, false, nil
	}

	return info.Size(), true, nil
}

// exportGet performs the (optionally ranged) GET, decrypting the stream in
// place when an envelope is set, appending to any resumed local file.
func exportGet(ctx context.Context, p DownloadParams, offset int64) (DownloadResult, error) {
	reqURL := tacapi.FileAPIURL(p.Env, p.Pnum, p.Backend, "export/"+url.PathEscape(p.RemotePath))

	access, err := p.Refresh(ctx)
	if err != nil {
		return DownloadResult{}, fmt.Errorf("transfer: refreshing token: %w", err)
	}

	result, err := retry.Do(ctx, p.Client, p.Logger, func(ctx context.Context, c *http.Client) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, err
		}

		req.Header.Set("Authorization", "Bearer "+access)

		if offset > 0 {
			req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
		}

		if p.Envelope != nil {
			for k, v := range p.Envelope.Headers(p.ChunkSize) {
				req.Header[k] = v
			}
		}

		return c.Do(req)
	})
	if err != nil {
		return DownloadResult{}, err
	}

	defer result.Response.Body.Close()

	flags := os.O_CREATE | os.O_WRONLY
	if offset > 0 && result.Response.StatusCode == http.StatusPartialContent {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
		offset = 0
	}

	f, err := os.OpenFile(p.LocalPath, flags, 0o600)
	if err != nil {
		return DownloadResult{}, fmt.Errorf("transfer: opening %s: %w", p.LocalPath, err)
	}
	defer f.Close()

	var written int64

	if p.Envelope != nil {
		written, err = copyDecrypting(f, result.Response.Body, p.Envelope)
	} else {
		written, err = io.Copy(f, result.Response.Body)
	}

	if err != nil {
		return DownloadResult{}, fmt.Errorf("transfer: writing %s: %w", p.LocalPath, err)
	}

	if etag := result.Response.Header.Get("ETag"); etag != "" {
		_ = os.WriteFile(p.LocalPath+".etag", []byte(etag), 0o600)
	}

	return DownloadResult{BytesWritten: offset + written, Client: result.Client}, nil
}

// copyDecrypting streams src into dst through the envelope's XSalsa20
// keystream, decrypting each block as it arrives.
func copyDecrypting(dst io.Writer, src io.Reader, envelope *crypto.Envelope) (int64, error) {
	buf := make([]byte, DefaultChunkSize)

	var total int64

	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			envelope.XOR(buf[:n], buf[:n])

			written, writeErr := dst.Write(buf[:n])
			total += int64(written)

			if writeErr != nil {
				return total, writeErr
			}
		}

		if readErr == io.EOF {
			return total, nil
		}

		if readErr != nil {
			return total, readErr
		}
	}
}
