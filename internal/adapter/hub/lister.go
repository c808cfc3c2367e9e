package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/vertextoedge/batchfetch/internal/domain"
)

// treeNode is a file or directory in the repository tree API
type treeNode struct {
	Type string   `json:"type"` // "file"|"directory" (sometimes "blob"|"tree")
	Path string   `json:"path"`
	Size int64    `json:"size,omitempty"`
	LFS  *lfsInfo `json:"lfs,omitempty"`
}

type lfsInfo struct {
	Oid  string `json:"oid,omitempty"`
	Size int64  `json:"size,omitempty"`
}

// ListFiles walks the repository tree and returns every file sorted by path
func (c *Client) ListFiles(ctx context.Context, repo domain.RepoRef) ([]domain.ManifestEntry, error) {
	seen := make(map[string]bool)
	var entries []domain.ManifestEntry

	err := c.walkTree(ctx, repo, "", func(n treeNode) {
		if seen[n.Path] {
			return
		}
		seen[n.Path] = true

		size := n.Size
		if n.LFS != nil && n.LFS.Size > 0 {
			size = n.LFS.Size
		}
		entries = append(entries, domain.ManifestEntry{
			Path:         n.Path,
			ExpectedSize: uint64(size),
			SizeUnknown:  size < 0,
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	c.logger.Debug("listed repository",
		zap.String("repo", repo.String()),
		zap.Int("files", len(entries)),
		zap.Uint64("bytes", domain.ManifestBytes(entries)))

	return entries, nil
}

func (c *Client) walkTree(ctx context.Context, repo domain.RepoRef, prefix string, fn func(treeNode)) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.treeURL(repo, prefix), nil)
	if err != nil {
		return err
	}
	c.addAuth(req)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("tree request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return newAPIError(resp)
	}

	var nodes []treeNode
	err = json.NewDecoder(resp.Body).Decode(&nodes)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("failed to decode tree for %q: %w", prefix, err)
	}

	for _, n := range nodes {
		switch n.Type {
		case "directory", "tree":
			if err := c.walkTree(ctx, repo, n.Path, fn); err != nil {
				return err
			}
		default:
			fn(n)
		}
	}
	return nil
}

// RemoteSize asks the hub for the size of one file without downloading it
func (c *Client) RemoteSize(ctx context.Context, repo domain.RepoRef, path string) (uint64, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, c.resolveURL(repo, path), nil)
	if err != nil {
		return 0, err
	}
	c.addAuth(req)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return 0, classify(err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, classify(newAPIError(resp))
	}

	// LFS files redirect to a CDN; the hub reports the real size up front
	if linked := resp.Header.Get("X-Linked-Size"); linked != "" {
		if n, err := strconv.ParseUint(linked, 10, 64); err == nil {
			return n, nil
		}
	}
	if resp.ContentLength < 0 {
		return 0, fmt.Errorf("size of %s not reported", path)
	}
	return uint64(resp.ContentLength), nil
}
