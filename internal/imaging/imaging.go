// Package imaging handles image byte wrangling: mime sniffing, reference
// resolution (path / data URL / http / bare base64), and per-session
// materialization to disk.
package imaging

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var dataURLHeader = regexp.MustCompile(`data:(image/[^;]+);base64`)
var unsafeKeyChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// SafeSessionKey reduces a session id to a filesystem-safe directory name.
func SafeSessionKey(sessionID string) string {
	key := unsafeKeyChars.ReplaceAllString(sessionID, "_")
	if len(key) > 100 {
		key = key[:100]
	}
	return key
}

// DetectMime sniffs the image mime type from content, preferring the sniffed
// value over the hint.
func DetectMime(blob []byte, hinted string) string {
	detected := http.DetectContentType(blob)
	if strings.HasPrefix(detected, "image/") {
		return detected
	}
	if strings.HasPrefix(hinted, "image/") {
		return hinted
	}
	return "image/png"
}

// ExtForMime maps a mime type to a file extension, defaulting to .png.
func ExtForMime(mime string) string {
	switch mime {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	case "image/bmp":
		return ".bmp"
	case "image/svg+xml":
		return ".svg"
	}
	return ".png"
}

// NormalizeRefForEdit prepares an image reference for the provider edit call.
// Existing file paths and URL/data-URL forms pass through; anything else is
// assumed to be bare base64 and wrapped in a PNG data URL.
func NormalizeRefForEdit(value string) string {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return raw
	}
	if info, err := os.Stat(raw); err == nil && !info.IsDir() {
		return raw
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") || strings.HasPrefix(raw, "data:image") {
		return raw
	}
	return "data:image/png;base64," + raw
}

// ResolveBytes turns an image reference of any supported form into raw bytes
// plus a detected mime type. HTTP fetches send the API key as a bearer token
// when provided.
func ResolveBytes(ctx context.Context, value, apiKey string) ([]byte, string, error) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return nil, "", fmt.Errorf("empty image content")
	}

	if info, err := os.Stat(raw); err == nil && !info.IsDir() {
		blob, err := os.ReadFile(raw)
		if err != nil {
			return nil, "", fmt.Errorf("read image file: %w", err)
		}
		return blob, DetectMime(blob, mimeFromPath(raw)), nil
	}

	if strings.HasPrefix(raw, "data:image") {
		idx := strings.Index(raw, ",")
		if idx < 0 {
			return nil, "", fmt.Errorf("malformed image data URL")
		}
		hinted := ""
		if m := dataURLHeader.FindStringSubmatch(raw[:idx]); m != nil {
			hinted = m[1]
		}
		blob, err := base64.StdEncoding.DecodeString(raw[idx+1:])
		if err != nil {
			return nil, "", fmt.Errorf("decode image data URL: %w", err)
		}
		return blob, DetectMime(blob, hinted), nil
	}

	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
		if err != nil {
			return nil, "", fmt.Errorf("build image fetch request: %w", err)
		}
		if apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+apiKey)
		}
		client := &http.Client{Timeout: 45 * time.Second}
		resp, err := client.Do(req)
		if err != nil {
			return nil, "", fmt.Errorf("fetch image: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			return nil, "", fmt.Errorf("fetch image: status %d", resp.StatusCode)
		}
		blob, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, "", fmt.Errorf("read image response: %w", err)
		}
		hinted := strings.TrimSpace(strings.Split(resp.Header.Get("Content-Type"), ";")[0])
		return blob, DetectMime(blob, hinted), nil
	}

	blob, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, "", fmt.Errorf("decode base64 image: %w", err)
	}
	return blob, DetectMime(blob, ""), nil
}

func mimeFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	case ".bmp":
		return "image/bmp"
	case ".svg":
		return "image/svg+xml"
	}
	return "image/png"
}

// SessionImageStore materializes image versions under a per-session
// directory and maps them to public /session-files/ paths.
type SessionImageStore struct {
	BaseDir string
}

func NewSessionImageStore(baseDir string) (*SessionImageStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create session images directory: %w", err)
	}
	return &SessionImageStore{BaseDir: baseDir}, nil
}

// Materialize stores the image for a session version, returning a data URL
// and the absolute local path.
func (s *SessionImageStore) Materialize(ctx context.Context, sessionID string, version int, imageValue, apiKey string) (string, string, error) {
	return s.MaterializeNamed(ctx, sessionID, fmt.Sprintf("v%d", version), imageValue, apiKey)
}

// MaterializeNamed stores the image under an arbitrary base name (e.g.
// cad_sheet) in the session directory.
func (s *SessionImageStore) MaterializeNamed(ctx context.Context, sessionID, name, imageValue, apiKey string) (string, string, error) {
	blob, mime, err := ResolveBytes(ctx, imageValue, apiKey)
	if err != nil {
		return "", "", err
	}
	dir := filepath.Join(s.BaseDir, SafeSessionKey(sessionID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create session directory: %w", err)
	}
	localPath := filepath.Join(dir, name+ExtForMime(mime))
	if err := os.WriteFile(localPath, blob, 0o644); err != nil {
		return "", "", fmt.Errorf("write session image: %w", err)
	}
	abs, err := filepath.Abs(localPath)
	if err != nil {
		abs = localPath
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(blob))
	return dataURL, abs, nil
}

// PublicPath maps an absolute path under the session images directory to its
// served /session-files/ URL path. Returns "" for paths outside the base.
func (s *SessionImageStore) PublicPath(absPath string) string {
	base, err := filepath.Abs(s.BaseDir)
	if err != nil {
		return ""
	}
	rel, err := filepath.Rel(base, absPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return ""
	}
	return "/session-files/" + filepath.ToSlash(rel)
}
