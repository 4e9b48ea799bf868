// Package cad validates CAD prerequisites and produces CadQuery scripts
// for the supported packaging types.
package cad

import (
	"fmt"
	"strconv"
	"strings"

	"pack-design-backend/internal/models"
)

var jarRequiredDimensions = []string{"outer_diameter_mm", "height_mm", "wall_thickness_mm", "cap_height_mm"}
var bottleRequiredDimensions = []string{
	"body_diameter_mm",
	"body_height_mm",
	"neck_diameter_mm",
	"neck_height_mm",
	"wall_thickness_mm",
}

// RequiredDimensionsForType returns the dimension keys a product type needs
// before deterministic CAD generation, or nil for unsupported types.
func RequiredDimensionsForType(productType string) []string {
	switch productType {
	case "jar", "cosmetic_jar":
		return jarRequiredDimensions
	case "bottle":
		return bottleRequiredDimensions
	}
	return nil
}

// MissingDimensionsError names exactly which dimension keys are absent.
type MissingDimensionsError struct {
	Missing []string
}

func (e *MissingDimensionsError) Error() string {
	return "Missing CAD dimensions: " + strings.Join(e.Missing, ", ") + ". Provide these in mm before CAD generation."
}

// UnsupportedTypeError rejects product types without a CAD template.
type UnsupportedTypeError struct {
	ProductType string
}

func (e *UnsupportedTypeError) Error() string {
	return "Unsupported packaging type for CAD generation. Supported types: cosmetic jar and bottle."
}

// Result is the generated script plus a human-readable design summary.
type Result struct {
	CadCode string
	Summary string
}

// DraftAngle returns the mold-ejection taper for the material: 1.5 degrees
// for thermoplastics, 0 otherwise.
func DraftAngle(material string) float64 {
	switch strings.ToLower(material) {
	case "pp", "pet", "hdpe", "other", "":
		return 1.5
	}
	return 0.0
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Generate validates the spec's dimensions and renders the CadQuery script
// for its product type. It performs no I/O and never executes the script.
func Generate(spec *models.DesignSpec) (*Result, error) {
	ptype := strings.ToLower(spec.ProductType)
	required := RequiredDimensionsForType(ptype)
	if required == nil {
		return nil, &UnsupportedTypeError{ProductType: spec.ProductType}
	}

	missing := []string{}
	for _, key := range required {
		if _, ok := spec.Dimensions[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingDimensionsError{Missing: missing}
	}

	material := spec.IntendedMaterial
	if material == "" {
		material = "other"
	}
	draft := DraftAngle(material)

	materialLabel := spec.IntendedMaterial
	if materialLabel == "" {
		materialLabel = "unspecified"
	}

	if ptype == "bottle" {
		bd := spec.Dimensions["body_diameter_mm"]
		bh := spec.Dimensions["body_height_mm"]
		nd := spec.Dimensions["neck_diameter_mm"]
		nh := spec.Dimensions["neck_height_mm"]
		wall := spec.Dimensions["wall_thickness_mm"]
		summary := fmt.Sprintf(
			"Bottle with simplified flip-top cap geometry, body diameter %s mm, body height %s mm, neck diameter %s mm, neck height %s mm, wall %s mm, material %s.",
			num(bd), num(bh), num(nd), num(nh), num(wall), materialLabel,
		)
		return &Result{CadCode: bottleScript(bd, bh, nd, nh, wall, draft), Summary: summary}, nil
	}

	od := spec.Dimensions["outer_diameter_mm"]
	h := spec.Dimensions["height_mm"]
	wall := spec.Dimensions["wall_thickness_mm"]
	capH := spec.Dimensions["cap_height_mm"]
	summary := fmt.Sprintf(
		"Cosmetic jar with screw-cap style closure, OD %s mm, body height %s mm, wall %s mm, cap height %s mm, material %s.",
		num(od), num(h), num(wall), num(capH), materialLabel,
	)
	return &Result{CadCode: jarScript(od, h, wall, capH, draft), Summary: summary}, nil
}

func jarScript(od, h, wall, capH, draft float64) string {
	return strings.TrimSpace(fmt.Sprintf(`
import cadquery as cq

# Cosmetic jar + simplified screw cap for STEP-ready solid export
outer_diameter = %s
body_height = %s
wall = %s
cap_height = %s
draft_deg = %s

inner_diameter = outer_diameter - (2 * wall)
if inner_diameter <= 0:
    raise ValueError("wall_thickness_mm is too large for given outer_diameter_mm")

# Jar body with draft for injection molded plastics; draft is 0 for glass.
body = (
    cq.Workplane("XY")
    .circle(outer_diameter / 2)
    .extrude(body_height, taper=-draft_deg)
)

cavity = (
    cq.Workplane("XY")
    .workplane(offset=wall)
    .circle(inner_diameter / 2)
    .extrude(body_height - wall)
)
jar = body.cut(cavity)

# Simplified cap shell (thread omitted intentionally for robust parametric generation)
cap_outer = outer_diameter * 1.02
cap_inner = cap_outer - (2 * wall)
cap = (
    cq.Workplane("XY")
    .workplane(offset=body_height)
    .circle(cap_outer / 2)
    .extrude(cap_height, taper=-draft_deg)
)
cap_void = (
    cq.Workplane("XY")
    .workplane(offset=body_height + wall)
    .circle(cap_inner / 2)
    .extrude(cap_height - wall)
)
cap = cap.cut(cap_void)

assembly = cq.Assembly()
assembly.add(jar, name="jar")
assembly.add(cap, name="cap")

# STEP export compatibility
cq.exporters.export(jar, "jar.step")
cq.exporters.export(cap, "jar_cap.step")
`, num(od), num(h), num(wall), num(capH), num(draft)))
}

func bottleScript(bd, bh, nd, nh, wall, draft float64) string {
	return strings.TrimSpace(fmt.Sprintf(`
import cadquery as cq

# Bottle + simplified flip-top cap (hinge as conceptual feature), STEP-ready solids
body_diameter = %s
body_height = %s
neck_diameter = %s
neck_height = %s
wall = %s
draft_deg = %s

inner_body_diameter = body_diameter - (2 * wall)
if inner_body_diameter <= 0:
    raise ValueError("wall_thickness_mm is too large for given body_diameter_mm")

body = (
    cq.Workplane("XY")
    .circle(body_diameter / 2)
    .extrude(body_height, taper=-draft_deg)
)
shoulder = (
    cq.Workplane("XY")
    .workplane(offset=body_height)
    .circle(body_diameter / 2)
    .workplane(offset=neck_height)
    .circle(neck_diameter / 2)
    .loft(combine=True)
)
neck = (
    cq.Workplane("XY")
    .workplane(offset=body_height + neck_height)
    .circle(neck_diameter / 2)
    .extrude(neck_height * 0.4)
)
bottle_outer = body.union(shoulder).union(neck)

cavity = (
    cq.Workplane("XY")
    .workplane(offset=wall)
    .circle(inner_body_diameter / 2)
    .extrude(body_height + neck_height)
)
bottle = bottle_outer.cut(cavity)

# Simplified flip-top cap, thread omitted intentionally for robust manufacturable base geometry
cap_h = neck_height * 0.9
cap_outer = neck_diameter * 1.15
cap_inner = cap_outer - (2 * wall)
cap_base = (
    cq.Workplane("XY")
    .workplane(offset=body_height + neck_height * 1.4)
    .circle(cap_outer / 2)
    .extrude(cap_h)
)
cap_void = (
    cq.Workplane("XY")
    .workplane(offset=body_height + neck_height * 1.4 + wall)
    .circle(cap_inner / 2)
    .extrude(max(cap_h - wall, wall * 0.5))
)
cap = cap_base.cut(cap_void)
lid = (
    cq.Workplane("XY")
    .workplane(offset=body_height + neck_height * 1.4 + cap_h)
    .rect(cap_outer * 0.9, cap_outer * 0.9)
    .extrude(wall)
)
cap = cap.union(lid)

cq.exporters.export(bottle, "bottle.step")
cq.exporters.export(cap, "flip_top_cap.step")
`, num(bd), num(bh), num(nd), num(nh), num(wall), num(draft)))
}
