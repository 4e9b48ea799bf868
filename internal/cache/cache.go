// Package cache is a disk JSON cache for provider outputs, keyed by
// sha256 of the request inputs. A corrupt or missing entry is a miss.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
)

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// HashText returns the sha256 hex digest of a string.
func HashText(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// HashBytes returns the sha256 hex digest of a blob.
func HashBytes(blob []byte) string {
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:])
}

// ImageEntry is a cached generated or edited image.
type ImageEntry struct {
	ImageID      string `json:"image_id"`
	ImageDataURL string `json:"image_data_url"`
}

// Cache stores JSON payloads under <dir>/<kind>_<key>.json. An extra
// directory (CAD run artifacts) can be registered for ClearAll.
type Cache struct {
	dir       string
	extraDirs []string
}

func New(dir string, extraDirs ...string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	return &Cache{dir: dir, extraDirs: extraDirs}, nil
}

func (c *Cache) file(kind, key string) string {
	safeKind := unsafeChars.ReplaceAllString(kind, "_")
	safeKey := unsafeChars.ReplaceAllString(key, "_")
	return filepath.Join(c.dir, safeKind+"_"+safeKey+".json")
}

// GetJSON loads a cached payload into out; ok is false on any miss or decode
// failure.
func (c *Cache) GetJSON(kind, key string, out interface{}) bool {
	data, err := os.ReadFile(c.file(kind, key))
	if err != nil {
		return false
	}
	return json.Unmarshal(data, out) == nil
}

// PutJSON stores a payload. Write failures are returned so callers can log
// and continue; a failed cache write never fails the request.
func (c *Cache) PutJSON(kind, key string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode cache payload: %w", err)
	}
	if err := os.WriteFile(c.file(kind, key), data, 0o644); err != nil {
		return fmt.Errorf("write cache file: %w", err)
	}
	return nil
}

// GetImage loads a cached image entry; entries without content are misses.
func (c *Cache) GetImage(kind, key string) (ImageEntry, bool) {
	var entry ImageEntry
	if !c.GetJSON(kind, key, &entry) {
		return ImageEntry{}, false
	}
	if entry.ImageDataURL == "" {
		return ImageEntry{}, false
	}
	if entry.ImageID == "" {
		short := key
		if len(short) > 8 {
			short = short[:8]
		}
		entry.ImageID = fmt.Sprintf("cached-%s-%s", kind, short)
	}
	return entry, true
}

// PutImage stores an image entry.
func (c *Cache) PutImage(kind, key, imageID, imageDataURL string) error {
	return c.PutJSON(kind, key, ImageEntry{ImageID: imageID, ImageDataURL: imageDataURL})
}

// ClearAll removes every cache file and every file under the registered
// extra directories, then prunes emptied subdirectories. Returns the number
// of files removed.
func (c *Cache) ClearAll() (int, error) {
	removed := 0
	dirs := append([]string{c.dir}, c.extraDirs...)
	for _, dir := range dirs {
		var subdirs []string
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}
			if d.IsDir() {
				if path != dir {
					subdirs = append(subdirs, path)
				}
				return nil
			}
			if err := os.Remove(path); err == nil {
				removed++
			}
			return nil
		})
		if err != nil {
			return removed, fmt.Errorf("clear cache directory %s: %w", dir, err)
		}
		// Deepest first so emptied parents can be removed too.
		sort.Sort(sort.Reverse(sort.StringSlice(subdirs)))
		for _, sub := range subdirs {
			_ = os.Remove(sub)
		}
	}
	return removed, nil
}
