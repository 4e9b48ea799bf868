package workflow

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"pack-design-backend/internal/models"
)

// Fixed extraction vocabularies. Candidate order matters: detection is
// first-match-wins over these lists, not frequency based.
var productPatterns = []struct {
	re      *regexp.Regexp
	product string
}{
	{regexp.MustCompile(`\bcosmetic\s+jar\b`), "cosmetic_jar"},
	{regexp.MustCompile(`\bjar\b`), "jar"},
	{regexp.MustCompile(`\bbottle\b`), "bottle"},
	{regexp.MustCompile(`\bcontainer\b`), "container"},
	{regexp.MustCompile(`\bcap\b`), "cap"},
}

var materialHints = []string{"pp", "pet", "hdpe", "glass", "aluminum", "paper", "other"}
var closureHints = []string{"screw", "flip top", "snap", "pump", "press", "lid", "cork"}
var styleHints = []string{"minimal", "luxury", "matte", "gloss", "premium", "playful", "clinical"}

var dimensionTokens = []string{"diameter", "height", "thickness", "mm"}
var typeContextPhrases = []string{"product type", "packaging type", "i need", "i want", "make a"}

var volumePattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(ml|l|cc)`)
var sizePattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(mm|cm)`)

// dimensionPatterns is the fixed table of named measurements. Each entry is
// independently optional and matched values overlay the dimensions map.
var dimensionPatterns = []struct {
	key string
	re  *regexp.Regexp
}{
	{"outer_diameter_mm", regexp.MustCompile(`outer\s*diameter\s*(?:=|:)?\s*(\d+(?:\.\d+)?)\s*mm`)},
	{"height_mm", regexp.MustCompile(`(?:body\s*)?height\s*(?:=|:)?\s*(\d+(?:\.\d+)?)\s*mm`)},
	{"wall_thickness_mm", regexp.MustCompile(`wall\s*thickness\s*(?:=|:)?\s*(\d+(?:\.\d+)?)\s*mm`)},
	{"cap_height_mm", regexp.MustCompile(`cap\s*height\s*(?:=|:)?\s*(\d+(?:\.\d+)?)\s*mm`)},
	{"body_diameter_mm", regexp.MustCompile(`body\s*diameter\s*(?:=|:)?\s*(\d+(?:\.\d+)?)\s*mm`)},
	{"body_height_mm", regexp.MustCompile(`body\s*height\s*(?:=|:)?\s*(\d+(?:\.\d+)?)\s*mm`)},
	{"neck_diameter_mm", regexp.MustCompile(`neck\s*diameter\s*(?:=|:)?\s*(\d+(?:\.\d+)?)\s*mm`)},
	{"neck_height_mm", regexp.MustCompile(`neck\s*height\s*(?:=|:)?\s*(\d+(?:\.\d+)?)\s*mm`)},
}

func extractDimensions(message string) map[string]float64 {
	dims := make(map[string]float64)
	lower := strings.ToLower(message)
	for _, p := range dimensionPatterns {
		if m := p.re.FindStringSubmatch(lower); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				dims[p.key] = v
			}
		}
	}
	return dims
}

func containsAny(s string, candidates []string) bool {
	for _, c := range candidates {
		if strings.Contains(s, c) {
			return true
		}
	}
	return false
}

func firstHit(s string, candidates []string) string {
	for _, c := range candidates {
		if strings.Contains(s, c) {
			return c
		}
	}
	return ""
}

// UpdateSpecFromMessage overlays whatever the message reveals onto the spec.
// Absence of a match is silently a no-op; nothing is ever erased.
func UpdateSpecFromMessage(spec *models.DesignSpec, message string) {
	spec.EnsureDimensions()
	lower := strings.ToLower(message)

	hasDimTokens := containsAny(lower, dimensionTokens)
	typeContext := containsAny(lower, typeContextPhrases)
	detectedProduct := ""
	for _, p := range productPatterns {
		if p.re.MatchString(lower) {
			detectedProduct = p.product
			break
		}
	}

	// Keep dimension-only messages (e.g. "cap height 14 mm") from clobbering
	// an already-known product type.
	if detectedProduct != "" {
		if detectedProduct == "cap" && strings.Contains(lower, "cap height") && spec.ProductType != "" {
			detectedProduct = ""
		} else if hasDimTokens && spec.ProductType != "" && !typeContext {
			detectedProduct = ""
		}
	}

	if detectedProduct != "" {
		spec.ProductType = detectedProduct
	}

	if hit := firstHit(lower, materialHints); hit != "" {
		spec.IntendedMaterial = hit
	}
	if hit := firstHit(lower, closureHints); hit != "" {
		spec.ClosureType = hit
	}
	if hit := firstHit(lower, styleHints); hit != "" {
		spec.DesignStyle = hit
	}

	if m := volumePattern.FindStringSubmatch(lower); m != nil {
		spec.SizeOrVolume = m[1] + " " + m[2]
	}
	if spec.SizeOrVolume == "" {
		if m := sizePattern.FindStringSubmatch(lower); m != nil {
			spec.SizeOrVolume = m[1] + " " + m[2]
		}
	}

	for k, v := range extractDimensions(message) {
		spec.Dimensions[k] = v
	}
}

// SpecSummary renders the spec as a single human-readable line.
func SpecSummary(spec *models.DesignSpec) string {
	orDefault := func(v string) string {
		if v == "" {
			return "Not provided"
		}
		return v
	}
	parts := []string{
		"Product Type: " + orDefault(spec.ProductType),
		"Approx Size/Volume: " + orDefault(spec.SizeOrVolume),
		"Intended Material: " + orDefault(spec.IntendedMaterial),
		"Closure Type: " + orDefault(spec.ClosureType),
		"Design Style: " + orDefault(spec.DesignStyle),
	}
	if len(spec.Dimensions) > 0 {
		keys := make([]string, 0, len(spec.Dimensions))
		for k := range spec.Dimensions {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		dims := make([]string, 0, len(keys))
		for _, k := range keys {
			dims = append(dims, fmt.Sprintf("%s=%s mm", k, strconv.FormatFloat(spec.Dimensions[k], 'f', -1, 64)))
		}
		parts = append(parts, "Dimensions: "+strings.Join(dims, ", "))
	}
	return strings.Join(parts, " | ")
}

// MissingFields returns the unanswered fields of the fixed five-field
// checklist, in checklist order. Dimensions are not part of the checklist.
func MissingFields(spec *models.DesignSpec) []string {
	missing := []string{}
	if spec.ProductType == "" {
		missing = append(missing, "product type")
	}
	if spec.SizeOrVolume == "" {
		missing = append(missing, "approx size or volume")
	}
	if spec.IntendedMaterial == "" {
		missing = append(missing, "intended material")
	}
	if spec.ClosureType == "" {
		missing = append(missing, "closure type")
	}
	if spec.DesignStyle == "" {
		missing = append(missing, "design style")
	}
	return missing
}

var questionForMissing = map[string]string{
	"product type":          "What packaging type do you want (jar, bottle, cap, or container)?",
	"approx size or volume": "What is the approximate size or volume (for example 50 ml or 120 mm height)?",
	"intended material":     "What material should we target (for example PP, PET, HDPE, or glass)?",
	"closure type":          "What closure type do you want (screw, flip top, snap, pump, etc.)?",
	"design style":          "What design style should the concept follow (minimal, matte, luxury, etc.)?",
}

// RequiredQuestionsForMissing maps missing-field labels onto their fixed
// clarifying questions, preserving order.
func RequiredQuestionsForMissing(missing []string) []string {
	questions := []string{}
	for _, m := range missing {
		if q, ok := questionForMissing[m]; ok {
			questions = append(questions, q)
		}
	}
	return questions
}
