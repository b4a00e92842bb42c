package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/klauspost/compress/gzip"
)

// PostgreSQL error codes the service layer maps to domain errors.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// compressThreshold is the blob size above which action input/output is
// gzip-compressed before storage.
const compressThreshold = 1024

func isPgError(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

// marshalJSONB serializes an open metadata map, defaulting nil to {} so
// JSONB columns never hold SQL NULL.
func marshalJSONB(m map[string]any) ([]byte, error) {
	if m == nil {
		m = map[string]any{}
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return raw, nil
}

func unmarshalJSONB(raw []byte, target any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return nil
}

// normalizeProjectPath trims trailing path separators; project identity is
// the trimmed path.
func normalizeProjectPath(path string) string {
	trimmed := strings.TrimRight(path, "/\\")
	if trimmed == "" {
		return "/"
	}
	return trimmed
}

// clampLimit applies the default and hard cap for list pagination.
func clampLimit(limit, def, cap int) int {
	if limit <= 0 {
		return def
	}
	if limit > cap {
		return cap
	}
	return limit
}

func parseRFC3339(raw string) (time.Time, error) {
	return time.Parse(time.RFC3339, raw)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// compressBlob gzips payloads above the threshold. Small payloads are stored
// as-is; the gzip magic header disambiguates on read.
func compressBlob(data string) ([]byte, bool, error) {
	if data == "" {
		return nil, false, nil
	}
	raw := []byte(data)
	if len(raw) <= compressThreshold {
		return raw, false, nil
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, false, fmt.Errorf("failed to compress blob: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, false, fmt.Errorf("failed to finish compressing blob: %w", err)
	}
	return buf.Bytes(), true, nil
}

// decompressBlob reverses compressBlob, passing uncompressed payloads through.
func decompressBlob(data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	if len(data) < 2 || data[0] != 0x1f || data[1] != 0x8b {
		return string(data), nil
	}

	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to open compressed blob: %w", err)
	}
	defer func() { _ = zr.Close() }()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return "", fmt.Errorf("failed to decompress blob: %w", err)
	}
	return string(raw), nil
}
