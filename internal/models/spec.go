package models

// DesignSpec is the structured packaging requirement extracted from user
// messages and uploaded briefs. Empty string means the field has not been
// provided yet; the missing-fields checklist is driven by that.
type DesignSpec struct {
	ProductType      string             `json:"product_type,omitempty"`
	SizeOrVolume     string             `json:"size_or_volume,omitempty"`
	IntendedMaterial string             `json:"intended_material,omitempty"`
	ClosureType      string             `json:"closure_type,omitempty"`
	DesignStyle      string             `json:"design_style,omitempty"`
	Dimensions       map[string]float64 `json:"dimensions"`
	ProcessNotes     string             `json:"process_notes,omitempty"`
}

// NewDesignSpec returns an empty spec with an allocated dimensions map so
// extraction can overlay keys without nil checks.
func NewDesignSpec() DesignSpec {
	return DesignSpec{Dimensions: make(map[string]float64)}
}

// EnsureDimensions repairs a nil dimensions map on states deserialized from
// older session rows.
func (s *DesignSpec) EnsureDimensions() {
	if s.Dimensions == nil {
		s.Dimensions = make(map[string]float64)
	}
}
