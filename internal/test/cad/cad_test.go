package cad_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pack-design-backend/internal/cad"
	"pack-design-backend/internal/models"
)

func jarSpec() models.DesignSpec {
	spec := models.NewDesignSpec()
	spec.ProductType = "jar"
	spec.IntendedMaterial = "pp"
	spec.Dimensions["outer_diameter_mm"] = 60
	spec.Dimensions["height_mm"] = 45
	spec.Dimensions["wall_thickness_mm"] = 2
	spec.Dimensions["cap_height_mm"] = 14
	return spec
}

func bottleSpec() models.DesignSpec {
	spec := models.NewDesignSpec()
	spec.ProductType = "bottle"
	spec.IntendedMaterial = "glass"
	spec.Dimensions["body_diameter_mm"] = 55
	spec.Dimensions["body_height_mm"] = 120
	spec.Dimensions["neck_diameter_mm"] = 22
	spec.Dimensions["neck_height_mm"] = 18
	spec.Dimensions["wall_thickness_mm"] = 2.5
	return spec
}

func TestRequiredDimensionsForType(t *testing.T) {
	assert.Equal(t, []string{"outer_diameter_mm", "height_mm", "wall_thickness_mm", "cap_height_mm"},
		cad.RequiredDimensionsForType("jar"))
	assert.Equal(t, cad.RequiredDimensionsForType("jar"), cad.RequiredDimensionsForType("cosmetic_jar"))
	assert.Equal(t, []string{"body_diameter_mm", "body_height_mm", "neck_diameter_mm", "neck_height_mm", "wall_thickness_mm"},
		cad.RequiredDimensionsForType("bottle"))
	assert.Nil(t, cad.RequiredDimensionsForType("pouch"))
}

func TestGenerateJarScript(t *testing.T) {
	spec := jarSpec()
	result, err := cad.Generate(&spec)
	require.NoError(t, err)

	assert.Contains(t, result.CadCode, "import cadquery as cq")
	assert.Contains(t, result.CadCode, "outer_diameter = 60")
	assert.Contains(t, result.CadCode, "cap_height = 14")
	assert.Contains(t, result.CadCode, "draft_deg = 1.5")
	assert.Contains(t, result.CadCode, `cq.exporters.export(jar, "jar.step")`)
	assert.Contains(t, result.Summary, "OD 60 mm")
	assert.Contains(t, result.Summary, "material pp")
	assert.NoError(t, cad.ValidateScript(result.CadCode))
}

func TestGenerateBottleScript(t *testing.T) {
	spec := bottleSpec()
	result, err := cad.Generate(&spec)
	require.NoError(t, err)

	assert.Contains(t, result.CadCode, "body_diameter = 55")
	assert.Contains(t, result.CadCode, "wall = 2.5")
	assert.Contains(t, result.CadCode, "draft_deg = 0", "glass gets no mold draft")
	assert.Contains(t, result.CadCode, `cq.exporters.export(bottle, "bottle.step")`)
	assert.Contains(t, result.Summary, "neck diameter 22 mm")
	assert.NoError(t, cad.ValidateScript(result.CadCode))
}

func TestGenerateReportsMissingDimensions(t *testing.T) {
	spec := jarSpec()
	delete(spec.Dimensions, "wall_thickness_mm")
	delete(spec.Dimensions, "cap_height_mm")

	_, err := cad.Generate(&spec)
	var missing *cad.MissingDimensionsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"wall_thickness_mm", "cap_height_mm"}, missing.Missing)
	assert.Equal(t,
		"Missing CAD dimensions: wall_thickness_mm, cap_height_mm. Provide these in mm before CAD generation.",
		err.Error())
}

func TestGenerateRejectsUnsupportedType(t *testing.T) {
	spec := models.NewDesignSpec()
	spec.ProductType = "pouch"

	_, err := cad.Generate(&spec)
	var unsupported *cad.UnsupportedTypeError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, "pouch", unsupported.ProductType)
}

func TestDraftAngle(t *testing.T) {
	assert.Equal(t, 1.5, cad.DraftAngle("pp"))
	assert.Equal(t, 1.5, cad.DraftAngle("PET"))
	assert.Equal(t, 1.5, cad.DraftAngle("hdpe"))
	assert.Equal(t, 1.5, cad.DraftAngle(""))
	assert.Equal(t, 0.0, cad.DraftAngle("glass"))
	assert.Equal(t, 0.0, cad.DraftAngle("aluminum"))
}

func TestValidateScriptBlocksBannedTokens(t *testing.T) {
	cases := []string{
		"import cadquery as cq\nimport os\n",
		"import cadquery as cq\nimport subprocess\n",
		"import cadquery as cq\nresult = eval(user_input)\n",
		"import cadquery as cq\nf = open('x.txt')\n",
		"import cadquery as cq\n__import__('os')\n",
	}
	for _, script := range cases {
		err := cad.ValidateScript(script)
		var verr *cad.ValidationError
		require.ErrorAs(t, err, &verr, "script should be rejected: %q", script)
		assert.Contains(t, err.Error(), "blocked token")
	}
}

func TestValidateScriptRequiresCadqueryImport(t *testing.T) {
	err := cad.ValidateScript("print('hello')")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing CadQuery import")

	assert.NoError(t, cad.ValidateScript("from cadquery import exporters"))
}

func TestExtractPythonCodeStripsFence(t *testing.T) {
	fenced := "```python\nimport cadquery as cq\nbody = cq.Workplane(\"XY\")\n```"
	assert.Equal(t, "import cadquery as cq\nbody = cq.Workplane(\"XY\")", cad.ExtractPythonCode(fenced))

	bare := "```\nimport cadquery as cq\n```"
	assert.Equal(t, "import cadquery as cq", cad.ExtractPythonCode(bare))

	plain := "import cadquery as cq"
	assert.Equal(t, plain, cad.ExtractPythonCode(plain))
}
