package persistence

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	getter "github.com/hashicorp/go-getter"

	"github.com/talgya/hexgrid/internal/fault"
)

// FetchBundle downloads a record bundle from src into dst and returns it.
// src is anything go-getter understands: a local directory, an http(s)
// archive, a git repository subdirectory ("git::https://...//grid"), S3 or
// GCS. dst is replaced.
func FetchBundle(ctx context.Context, src, dst string) (Bundle, error) {
	if err := os.RemoveAll(dst); err != nil {
		return Bundle{}, fmt.Errorf("clear %s: %w", dst, err)
	}

	slog.Info("fetching record bundle", "src", src, "dst", dst)
	if err := getter.Get(dst, src, getter.WithContext(ctx)); err != nil {
		return Bundle{}, fmt.Errorf("fetch bundle %s: %w: %w", src, fault.ErrMissingResource, err)
	}
	slog.Info("record bundle fetched", "dst", dst)
	return Bundle{Dir: dst}, nil
}
