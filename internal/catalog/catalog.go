package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"pack-design-backend/internal/logger"
	"pack-design-backend/internal/models"
)

var imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".webp": true}

// AssetDescriber extracts packaging metadata from one catalog image. The
// provider client implements it; tests inject a stub.
type AssetDescriber interface {
	DescribeAsset(ctx context.Context, assetPath string, apiKey string) (models.AssetMetadata, map[string]interface{}, error)
}

// Catalog maintains the asset metadata store and scores rows against a
// design spec for baseline matching.
type Catalog struct {
	db        *sql.DB
	assetsDir string
	log       *logger.Logger
}

func New(db *sql.DB, assetsDir string, log *logger.Logger) (*Catalog, error) {
	if err := os.MkdirAll(assetsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create assets directory: %w", err)
	}
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS asset_metadata (
			asset_path TEXT PRIMARY KEY,
			filename TEXT NOT NULL,
			product_type TEXT,
			material TEXT,
			closure_type TEXT,
			design_style TEXT,
			size_or_volume TEXT,
			tags TEXT,
			summary TEXT,
			metadata_json TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("create asset_metadata table: %w", err)
	}
	return &Catalog{db: db, assetsDir: assetsDir, log: log}, nil
}

// ListAssets enumerates the image files under the assets directory, sorted
// by path for deterministic indexing order.
func (c *Catalog) ListAssets() ([]string, error) {
	var files []string
	err := filepath.WalkDir(c.assetsDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && imageExts[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan assets directory: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// IndexAssets prunes rows whose backing file is gone, then describes and
// upserts every asset that lacks usable metadata (or all assets when force
// is set). Returns (indexed, total on disk).
func (c *Catalog) IndexAssets(ctx context.Context, describer AssetDescriber, force bool, apiKey string) (int, int, error) {
	assets, err := c.ListAssets()
	if err != nil {
		return 0, 0, err
	}
	pruned, err := c.pruneDeleted(assets)
	if err != nil {
		return 0, 0, err
	}
	if pruned > 0 {
		c.log.Info("pruned deleted asset metadata rows", "count", pruned)
	}

	indexed := 0
	for _, asset := range assets {
		if !force {
			needs, err := c.needsReindex(asset)
			if err != nil {
				return indexed, len(assets), err
			}
			if !needs {
				continue
			}
		}
		meta, raw, err := describer.DescribeAsset(ctx, asset, apiKey)
		if err != nil {
			return indexed, len(assets), fmt.Errorf("describe asset %s: %w", filepath.Base(asset), err)
		}
		if err := c.upsert(asset, meta, raw); err != nil {
			return indexed, len(assets), err
		}
		indexed++
	}
	return indexed, len(assets), nil
}

// MetadataCount returns the number of catalog rows.
func (c *Catalog) MetadataCount() (int, error) {
	var n int
	if err := c.db.QueryRow("SELECT COUNT(*) FROM asset_metadata").Scan(&n); err != nil {
		return 0, fmt.Errorf("count asset metadata: %w", err)
	}
	return n, nil
}

// ListCatalog returns up to limit rows, newest first.
func (c *Catalog) ListCatalog(limit int) ([]models.CatalogItem, error) {
	rows, err := c.db.Query(`
		SELECT asset_path, filename, product_type, material, closure_type, design_style,
		       size_or_volume, tags, summary, metadata_json, updated_at
		FROM asset_metadata
		ORDER BY updated_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list catalog: %w", err)
	}
	defer rows.Close()

	items := []models.CatalogItem{}
	for rows.Next() {
		var assetPath, filename, rawMeta, updatedAt string
		var productType, material, closureType, designStyle, sizeOrVolume, tags, summary sql.NullString
		if err := rows.Scan(&assetPath, &filename, &productType, &material, &closureType,
			&designStyle, &sizeOrVolume, &tags, &summary, &rawMeta, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan catalog row: %w", err)
		}
		var metaObj map[string]interface{}
		if rawMeta != "" {
			_ = json.Unmarshal([]byte(rawMeta), &metaObj)
		}
		items = append(items, models.CatalogItem{
			AssetRelPath: c.relativeAssetPath(assetPath),
			Filename:     filename,
			ProductType:  productType.String,
			Material:     material.String,
			ClosureType:  closureType.String,
			DesignStyle:  designStyle.String,
			SizeOrVolume: sizeOrVolume.String,
			Tags:         tags.String,
			Summary:      summary.String,
			Metadata:     metaObj,
			UpdatedAt:    updatedAt,
		})
	}
	return items, rows.Err()
}

// FindMatches scores every catalog row against the spec and returns the
// qualifying rows sorted by score descending, truncated to limit. Ties keep
// catalog insertion order.
func (c *Catalog) FindMatches(spec *models.DesignSpec, minScore, limit int) ([]models.BaselineMatch, error) {
	rows, err := c.db.Query(`
		SELECT asset_path, filename, product_type, material, closure_type, design_style,
		       size_or_volume, tags, summary
		FROM asset_metadata
		ORDER BY rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("query asset metadata: %w", err)
	}
	defer rows.Close()

	matches := []models.BaselineMatch{}
	for rows.Next() {
		var assetPath, filename string
		var productType, material, closureType, designStyle, sizeOrVolume, tags, summary sql.NullString
		if err := rows.Scan(&assetPath, &filename, &productType, &material, &closureType,
			&designStyle, &sizeOrVolume, &tags, &summary); err != nil {
			return nil, fmt.Errorf("scan asset metadata row: %w", err)
		}
		m := models.BaselineMatch{
			AssetPath:    assetPath,
			AssetRelPath: c.relativeAssetPath(assetPath),
			Filename:     filename,
			ProductType:  productType.String,
			Material:     material.String,
			ClosureType:  closureType.String,
			DesignStyle:  designStyle.String,
			SizeOrVolume: sizeOrVolume.String,
			Tags:         tags.String,
			Summary:      summary.String,
		}
		m.Score = scoreRow(spec, &m)
		if m.Score >= minScore {
			matches = append(matches, m)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// FindBestMatch returns the single best candidate, or nil when no row
// qualifies at the default threshold.
func (c *Catalog) FindBestMatch(spec *models.DesignSpec) (*models.BaselineMatch, error) {
	matches, err := c.FindMatches(spec, 2, 1)
	if err != nil || len(matches) == 0 {
		return nil, err
	}
	return &matches[0], nil
}

// scoreRow accumulates points for fields present in both the spec and the
// row, using substring containment. Catalog metadata and spec vocabulary are
// both free-text-derived, so containment tolerates drift like "jar" inside
// "cosmetic_jar".
func scoreRow(spec *models.DesignSpec, row *models.BaselineMatch) int {
	score := 0
	if spec.ProductType != "" && row.ProductType != "" && strings.Contains(row.ProductType, spec.ProductType) {
		score += 4
	}
	if spec.IntendedMaterial != "" && row.Material != "" && strings.Contains(row.Material, spec.IntendedMaterial) {
		score += 3
	}
	if spec.ClosureType != "" && row.ClosureType != "" && strings.Contains(row.ClosureType, spec.ClosureType) {
		score += 3
	}
	if spec.DesignStyle != "" && row.DesignStyle != "" && strings.Contains(row.DesignStyle, spec.DesignStyle) {
		score += 2
	}
	if spec.SizeOrVolume != "" && row.SizeOrVolume != "" && strings.Contains(row.SizeOrVolume, spec.SizeOrVolume) {
		score += 1
	}
	return score
}

// ResolveAssetPath maps a catalog-relative path back to an absolute path
// under the assets directory, rejecting traversal outside it.
func (c *Catalog) ResolveAssetPath(relPath string) (string, error) {
	abs, err := filepath.Abs(filepath.Join(c.assetsDir, relPath))
	if err != nil {
		return "", fmt.Errorf("resolve asset path: %w", err)
	}
	root, err := filepath.Abs(c.assetsDir)
	if err != nil {
		return "", fmt.Errorf("resolve assets directory: %w", err)
	}
	if abs != root && !strings.HasPrefix(abs, root+string(filepath.Separator)) {
		return "", fmt.Errorf("asset path escapes assets directory")
	}
	return abs, nil
}

func (c *Catalog) relativeAssetPath(assetPath string) string {
	abs, err := filepath.Abs(assetPath)
	if err != nil {
		return filepath.Base(assetPath)
	}
	root, err := filepath.Abs(c.assetsDir)
	if err != nil {
		return filepath.Base(assetPath)
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.Base(assetPath)
	}
	return rel
}

func (c *Catalog) needsReindex(assetPath string) (bool, error) {
	var rawMeta string
	err := c.db.QueryRow("SELECT metadata_json FROM asset_metadata WHERE asset_path = ?", assetPath).Scan(&rawMeta)
	switch {
	case err == sql.ErrNoRows:
		return true, nil
	case err != nil:
		return false, fmt.Errorf("check asset metadata: %w", err)
	}
	if rawMeta == "" {
		return true, nil
	}
	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(rawMeta), &parsed); err != nil {
		return true, nil
	}
	return len(parsed) == 0, nil
}

// pruneDeleted removes rows whose backing file no longer exists. Rows are
// matched against the on-disk set by absolute path; rows written with
// relative paths in earlier runs fall back to a direct existence check.
func (c *Catalog) pruneDeleted(existing []string) (int, error) {
	resolved := make(map[string]bool, len(existing))
	for _, p := range existing {
		if abs, err := filepath.Abs(p); err == nil {
			resolved[abs] = true
		} else {
			resolved[p] = true
		}
	}

	rows, err := c.db.Query("SELECT asset_path FROM asset_metadata")
	if err != nil {
		return 0, fmt.Errorf("list asset paths: %w", err)
	}
	defer rows.Close()

	var stale []string
	for rows.Next() {
		var rawPath string
		if err := rows.Scan(&rawPath); err != nil {
			return 0, fmt.Errorf("scan asset path: %w", err)
		}
		abs := rawPath
		if a, err := filepath.Abs(rawPath); err == nil {
			abs = a
		}
		if resolved[abs] {
			continue
		}
		if info, err := os.Stat(rawPath); err == nil && !info.IsDir() {
			continue
		}
		stale = append(stale, rawPath)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, p := range stale {
		if _, err := c.db.Exec("DELETE FROM asset_metadata WHERE asset_path = ?", p); err != nil {
			return 0, fmt.Errorf("prune asset metadata: %w", err)
		}
	}
	return len(stale), nil
}

func (c *Catalog) upsert(assetPath string, meta models.AssetMetadata, raw map[string]interface{}) error {
	if raw == nil {
		raw = map[string]interface{}{}
	}
	rawJSON, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode asset metadata: %w", err)
	}
	_, err = c.db.Exec(`
		INSERT INTO asset_metadata(
			asset_path, filename, product_type, material, closure_type, design_style,
			size_or_volume, tags, summary, metadata_json, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(asset_path) DO UPDATE SET
			filename=excluded.filename,
			product_type=excluded.product_type,
			material=excluded.material,
			closure_type=excluded.closure_type,
			design_style=excluded.design_style,
			size_or_volume=excluded.size_or_volume,
			tags=excluded.tags,
			summary=excluded.summary,
			metadata_json=excluded.metadata_json,
			updated_at=CURRENT_TIMESTAMP
	`, assetPath, filepath.Base(assetPath), meta.ProductType, meta.Material, meta.ClosureType,
		meta.DesignStyle, meta.SizeOrVolume, meta.Tags, meta.Summary, string(rawJSON))
	if err != nil {
		return fmt.Errorf("upsert asset metadata: %w", err)
	}
	return nil
}
