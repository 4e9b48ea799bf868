package straive

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"pack-design-backend/internal/imaging"
	"pack-design-backend/internal/models"
)

// Provider JSON is dict-shaped and key spellings drift between model
// versions. Each canonical field carries an ordered alias list; the first
// present-and-non-empty alias wins.
var metadataAliases = map[string][]string{
	"product_type":   {"product_type", "type", "packaging_type", "product"},
	"material":       {"material", "intended_material", "material_type"},
	"closure_type":   {"closure_type", "closure", "cap_type", "lid_type"},
	"design_style":   {"design_style", "style", "visual_style"},
	"size_or_volume": {"size_or_volume", "size", "volume", "capacity"},
	"tags":           {"tags", "keywords", "tag_list"},
	"summary":        {"summary", "description", "meta_description"},
}

func cleanScalar(value interface{}) string {
	if value == nil {
		return ""
	}
	txt := strings.ToLower(strings.TrimSpace(fmt.Sprintf("%v", value)))
	switch txt {
	case "", "none", "null", "n/a", "na", "unknown":
		return ""
	}
	return txt
}

func pickAlias(raw map[string]interface{}, canonical string) string {
	for _, alias := range metadataAliases[canonical] {
		if v, ok := raw[alias]; ok {
			if cleaned := cleanScalar(v); cleaned != "" {
				return cleaned
			}
		}
	}
	return ""
}

func pickTags(raw map[string]interface{}) string {
	for _, alias := range metadataAliases["tags"] {
		v, ok := raw[alias]
		if !ok || v == nil {
			continue
		}
		switch tags := v.(type) {
		case []interface{}:
			parts := []string{}
			for _, t := range tags {
				if s := strings.TrimSpace(fmt.Sprintf("%v", t)); s != "" {
					parts = append(parts, s)
				}
			}
			if len(parts) > 0 {
				return strings.Join(parts, ", ")
			}
		case string:
			if s := strings.TrimSpace(tags); s != "" {
				return s
			}
		}
	}
	return ""
}

var fencePrefix = regexp.MustCompile("^```(?:json)?")
var fenceSuffix = regexp.MustCompile("```$")
var jsonObjectPattern = regexp.MustCompile(`\{[\s\S]*\}`)

// parseJSONObject tolerates markdown fences and free-form text around the
// provider's JSON object, and unwraps a nested "metadata" object.
func parseJSONObject(content string) map[string]interface{} {
	stripped := strings.TrimSpace(content)
	if strings.HasPrefix(stripped, "```") {
		stripped = strings.TrimSpace(fencePrefix.ReplaceAllString(stripped, ""))
		stripped = strings.TrimSpace(fenceSuffix.ReplaceAllString(stripped, ""))
	}
	if obj := tryUnmarshalObject(stripped); obj != nil {
		return obj
	}
	if m := jsonObjectPattern.FindString(stripped); m != "" {
		if obj := tryUnmarshalObject(m); obj != nil {
			return obj
		}
	}
	return map[string]interface{}{}
}

func tryUnmarshalObject(candidate string) map[string]interface{} {
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(candidate), &raw); err != nil {
		return nil
	}
	if nested, ok := raw["metadata"].(map[string]interface{}); ok {
		return nested
	}
	return raw
}

// DescribeAsset extracts baseline-matching metadata for one catalog image via
// the vision model, normalizes provider key drift, and falls back to filename
// tokens when unconfigured or when the provider returns nothing usable.
// Returns the normalized metadata plus the raw provider object for storage.
func (c *Client) DescribeAsset(ctx context.Context, assetPath, apiKeyOverride string) (models.AssetMetadata, map[string]interface{}, error) {
	key := c.apiKey(apiKeyOverride)
	if key == "" {
		meta := filenameMetadata(assetPath)
		return meta, metadataToMap(meta), nil
	}

	blob, err := os.ReadFile(assetPath)
	if err != nil {
		return models.AssetMetadata{}, nil, fmt.Errorf("read asset %s: %w", filepath.Base(assetPath), err)
	}
	mime := imaging.DetectMime(blob, "")
	dataURL := fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(blob))

	systemPrompt := "You are a packaging image metadata extractor. " +
		"Return strict JSON only with exactly these keys and no extras: " +
		"product_type, material, closure_type, design_style, size_or_volume. " +
		"If a value is unknown, return null."
	data, status, err := c.postJSON(ctx, c.cfg.ChatURL, chatPayload{
		Model: c.cfg.ModelName,
		Messages: []interface{}{
			map[string]interface{}{"role": "system", "content": systemPrompt},
			map[string]interface{}{"role": "user", "content": []interface{}{
				map[string]interface{}{"type": "text", "text": "Extract only the required fields for baseline matching."},
				map[string]interface{}{"type": "image_url", "image_url": map[string]string{"url": dataURL}},
			}},
		},
		Temperature:    0,
		ResponseFormat: map[string]string{"type": "json_object"},
	}, key, 90*time.Second)
	if err != nil {
		return models.AssetMetadata{}, nil, err
	}
	if status >= 400 {
		return models.AssetMetadata{}, nil, fmt.Errorf("asset metadata: status %d: %s", status, truncate(string(data), 500))
	}

	raw := parseJSONObject(extractChatText(data))
	meta := models.AssetMetadata{
		ProductType:  pickAlias(raw, "product_type"),
		Material:     pickAlias(raw, "material"),
		ClosureType:  pickAlias(raw, "closure_type"),
		DesignStyle:  pickAlias(raw, "design_style"),
		SizeOrVolume: pickAlias(raw, "size_or_volume"),
		Tags:         pickTags(raw),
		Summary:      pickAlias(raw, "summary"),
	}
	if meta.Empty() {
		meta = filenameMetadata(assetPath)
		return meta, metadataToMap(meta), nil
	}
	return meta, raw, nil
}

func metadataToMap(meta models.AssetMetadata) map[string]interface{} {
	out := map[string]interface{}{}
	set := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	set("product_type", meta.ProductType)
	set("material", meta.Material)
	set("closure_type", meta.ClosureType)
	set("design_style", meta.DesignStyle)
	set("size_or_volume", meta.SizeOrVolume)
	set("tags", meta.Tags)
	set("summary", meta.Summary)
	return out
}

var filenameSizePattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(ml|l|cc|oz|mm|cm)\b`)

// filenameMetadata derives metadata from filename tokens, the offline
// fallback when no vision provider is reachable.
func filenameMetadata(assetPath string) models.AssetMetadata {
	stem := strings.TrimSuffix(filepath.Base(assetPath), filepath.Ext(assetPath))
	stem = strings.ToLower(strings.NewReplacer("-", " ", "_", " ").Replace(stem))

	var meta models.AssetMetadata
	for _, m := range []string{"glass", "pp", "pet", "hdpe", "aluminum", "paper"} {
		if strings.Contains(stem, m) {
			meta.Material = m
			break
		}
	}
	for _, p := range []string{"jar", "bottle", "container", "cap"} {
		if strings.Contains(stem, p) {
			meta.ProductType = p
			break
		}
	}
	switch {
	case strings.Contains(stem, "flip"):
		meta.ClosureType = "flip top"
	case strings.Contains(stem, "screw"), strings.Contains(stem, "thread"):
		meta.ClosureType = "screw"
	case strings.Contains(stem, "pump"):
		meta.ClosureType = "pump"
	case strings.Contains(stem, "snap"):
		meta.ClosureType = "snap"
	}
	for _, s := range []string{"matte", "glossy", "minimal", "luxury", "premium", "clinical", "playful"} {
		if strings.Contains(stem, s) {
			meta.DesignStyle = s
			break
		}
	}
	if m := filenameSizePattern.FindStringSubmatch(stem); m != nil {
		meta.SizeOrVolume = m[1] + " " + m[2]
	}
	return meta
}

// BriefExtraction is the normalized design spec extracted from a marketing
// brief by the LLM.
type BriefExtraction struct {
	ProductType      string
	SizeOrVolume     string
	IntendedMaterial string
	ClosureType      string
	DesignStyle      string
	Dimensions       map[string]float64
}

// ExtractBriefSpec asks the LLM to pull structured spec fields out of brief
// text. Returns a zero value when unconfigured; callers overlay the result
// onto the deterministic parse.
func (c *Client) ExtractBriefSpec(ctx context.Context, briefText, apiKeyOverride string) (BriefExtraction, error) {
	key := c.apiKey(apiKeyOverride)
	if key == "" {
		return BriefExtraction{}, nil
	}

	if len(briefText) > 24000 {
		briefText = briefText[:24000]
	}
	systemPrompt := "Extract packaging design requirements from a marketing brief. " +
		"Return strict JSON only with keys: " +
		"product_type, size_or_volume, intended_material, closure_type, design_style, dimensions. " +
		"Use null for unknowns. dimensions must be an object of numeric mm values if present."
	data, status, err := c.postJSON(ctx, c.cfg.ChatURL, chatPayload{
		Model: c.cfg.ModelName,
		Messages: []interface{}{
			map[string]interface{}{"role": "system", "content": systemPrompt},
			map[string]interface{}{"role": "user", "content": briefText},
		},
		Temperature:    0,
		ResponseFormat: map[string]string{"type": "json_object"},
	}, key, 60*time.Second)
	if err != nil {
		return BriefExtraction{}, err
	}
	if status >= 400 {
		return BriefExtraction{}, fmt.Errorf("brief extraction: status %d: %s", status, truncate(string(data), 500))
	}

	raw := parseJSONObject(extractChatText(data))
	out := BriefExtraction{
		ProductType:      pickAlias(raw, "product_type"),
		SizeOrVolume:     pickAlias(raw, "size_or_volume"),
		IntendedMaterial: pickAlias(raw, "material"),
		ClosureType:      pickAlias(raw, "closure_type"),
		DesignStyle:      pickAlias(raw, "design_style"),
		Dimensions:       map[string]float64{},
	}
	if dims, ok := raw["dimensions"].(map[string]interface{}); ok {
		for k, v := range dims {
			switch n := v.(type) {
			case float64:
				out.Dimensions[k] = n
			case string:
				if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
					out.Dimensions[k] = f
				}
			}
		}
	}
	return out, nil
}
