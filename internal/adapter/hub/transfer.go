package hub

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/batchfetch/internal/domain"
	"github.com/vertextoedge/batchfetch/internal/port"
)

// bodyReader tags read failures so they classify as network errors
type bodyReader struct {
	r io.Reader
}

func (b *bodyReader) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err != nil && err != io.EOF {
		return n, &readError{err: err}
	}
	return n, err
}

// Fetch downloads one file to dest, resuming a partial download when the
// server honours the range request
func (c *Client) Fetch(ctx context.Context, repo domain.RepoRef, path, dest string) (port.FetchResult, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolveURL(repo, path), nil)
	if err != nil {
		return port.FetchResult{}, classify(err)
	}
	c.addAuth(req)

	offset := c.fs.PartialSize(dest)
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return port.FetchResult{}, classify(err)
	}
	defer resp.Body.Close()

	resume := false
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusPartialContent:
		resume = offset > 0
	case http.StatusRequestedRangeNotSatisfiable:
		// Stale partial larger than the remote file; start over next attempt
		if err := c.fs.DiscardPartial(dest); err != nil {
			return port.FetchResult{}, classify(err)
		}
		return port.FetchResult{}, domain.NewTransferError(domain.TransferNetwork, newAPIError(resp))
	default:
		return port.FetchResult{}, classify(newAPIError(resp))
	}

	written, err := c.fs.WriteFile(dest, &bodyReader{r: resp.Body}, resume)
	if err != nil {
		return port.FetchResult{}, classify(err)
	}

	if resume {
		c.logger.Debug("resumed partial download",
			zap.String("path", path),
			zap.Uint64("offset", offset))
	}

	return port.FetchResult{
		Bytes:    written,
		Duration: time.Since(start),
		Resumed:  resume,
	}, nil
}
