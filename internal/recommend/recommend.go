// Package recommend derives design-iteration suggestions from a spec. Pure
// rule table, advisory text only.
package recommend

import (
	"strings"

	"pack-design-backend/internal/models"
)

// BuildEditRecommendations returns up to 6 deduplicated suggestion strings
// for the given spec, in rule order.
func BuildEditRecommendations(spec *models.DesignSpec) []string {
	recs := []string{}
	ptype := strings.ToLower(spec.ProductType)
	material := strings.ToLower(spec.IntendedMaterial)
	style := strings.ToLower(spec.DesignStyle)
	closure := strings.ToLower(spec.ClosureType)

	if ptype == "jar" || ptype == "cosmetic_jar" {
		recs = append(recs,
			"Increase cap height by 8% for better shelf presence.",
			"Reduce shoulder radius slightly for a tighter premium profile.",
		)
	}
	if ptype == "bottle" {
		recs = append(recs,
			"Narrow neck transition for better ergonomic pour posture.",
			"Raise shoulder start point by 5% to improve label panel area.",
		)
	}

	if material == "pp" || material == "hdpe" || material == "pet" {
		recs = append(recs, "Add subtle draft-friendly taper cue to communicate molded feasibility.")
	}
	if material == "glass" {
		recs = append(recs, "Thicken visual base proportion to imply glass stability.")
	}

	if strings.Contains(style, "matte") {
		recs = append(recs, "Increase matte softness and reduce specular highlight intensity.")
	}
	if strings.Contains(style, "luxury") || strings.Contains(style, "premium") {
		recs = append(recs, "Introduce controlled metallic accent on closure ring.")
	}
	if strings.Contains(style, "minimal") {
		recs = append(recs, "Simplify silhouette contrast by removing one secondary groove.")
	}

	if strings.Contains(closure, "flip") {
		recs = append(recs, "Make flip-top hinge zone visually stronger and slightly wider.")
	}
	if strings.Contains(closure, "screw") {
		recs = append(recs, "Refine cap knurl band for better grip and consistent rhythm.")
	}

	deduped := []string{}
	seen := map[string]bool{}
	for _, r := range recs {
		if !seen[r] {
			deduped = append(deduped, r)
			seen[r] = true
		}
	}
	if len(deduped) > 6 {
		deduped = deduped[:6]
	}
	return deduped
}
