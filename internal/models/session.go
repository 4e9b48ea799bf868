package models

// BaselinePhase is the one-shot sub-state of the step-3 baseline decision.
type BaselinePhase string

const (
	BaselinePending BaselinePhase = "pending"
	BaselineDecided BaselinePhase = "decided"
)

// LockPhase is the sub-state of the step-5 lock confirmation.
type LockPhase string

const (
	LockNotAsked  LockPhase = "not_asked"
	LockAsked     LockPhase = "asked"
	LockConfirmed LockPhase = "confirmed"
)

// ChatMessage is one transcript entry. The transcript is fed back to the LLM
// for tone polishing only, never for workflow decisions.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ImageVersion is one generated, edited, or adopted 2D concept. Versions are
// 1-based and strictly increasing per session; entries are immutable once
// appended except for local path repair.
type ImageVersion struct {
	ImageID          string `json:"image_id"`
	ImageURLOrBase64 string `json:"image_url_or_base64"`
	Version          int    `json:"version"`
	Prompt           string `json:"prompt"`
	LocalImagePath   string `json:"local_image_path,omitempty"`
}

// BaselineMatch is one scored catalog candidate for the baseline decision.
type BaselineMatch struct {
	AssetPath    string `json:"asset_path"`
	AssetRelPath string `json:"asset_rel_path"`
	Filename     string `json:"filename"`
	ProductType  string `json:"product_type,omitempty"`
	Material     string `json:"material,omitempty"`
	ClosureType  string `json:"closure_type,omitempty"`
	DesignStyle  string `json:"design_style,omitempty"`
	SizeOrVolume string `json:"size_or_volume,omitempty"`
	Summary      string `json:"summary,omitempty"`
	Tags         string `json:"tags,omitempty"`
	Score        int    `json:"score"`
}

// SessionState is the full conversation state for one session id. It is
// mutated only by the workflow turn handler and the API handlers, and
// persisted after every mutation.
type SessionState struct {
	SessionID         string        `json:"session_id"`
	Step              int           `json:"step"`
	Spec              DesignSpec    `json:"spec"`
	MissingFields     []string      `json:"missing_fields"`
	RequiredQuestions []string      `json:"required_questions"`

	BaselinePhase    BaselinePhase   `json:"baseline_phase"`
	BaselineDecision string          `json:"baseline_decision,omitempty"`
	BaselineMatches  []BaselineMatch `json:"baseline_matches"`
	BaselineAsset    *BaselineMatch  `json:"baseline_asset,omitempty"`

	Images    []ImageVersion `json:"images"`
	LockPhase LockPhase      `json:"lock_phase"`

	ApprovedImageID        string `json:"approved_image_id,omitempty"`
	ApprovedImageVersion   int    `json:"approved_image_version,omitempty"`
	ApprovedImageLocalPath string `json:"approved_image_local_path,omitempty"`

	// Deterministic dimension-driven CAD gate output.
	CadCode       string `json:"cad_code,omitempty"`
	DesignSummary string `json:"design_summary,omitempty"`

	CadSheetPrompt          string `json:"cad_sheet_prompt,omitempty"`
	CadSheetImageID         string `json:"cad_sheet_image_id,omitempty"`
	CadSheetImageURLOrBase64 string `json:"cad_sheet_image_url_or_base64,omitempty"`
	CadSheetImageLocalPath  string `json:"cad_sheet_image_local_path,omitempty"`

	CadModelPrompt    string `json:"cad_model_prompt,omitempty"`
	CadModelCode      string `json:"cad_model_code,omitempty"`
	CadModelLastError string `json:"cad_model_last_error,omitempty"`
	CadModelCodePath  string `json:"cad_model_code_path,omitempty"`
	CadStepFile       string `json:"cad_step_file,omitempty"`

	History []ChatMessage `json:"history"`
}

// NewSessionState returns a fresh step-1 state for the given session id.
func NewSessionState(sessionID string) *SessionState {
	return &SessionState{
		SessionID:         sessionID,
		Step:              1,
		Spec:              NewDesignSpec(),
		MissingFields:     []string{},
		RequiredQuestions: []string{},
		BaselinePhase:     BaselinePending,
		BaselineMatches:   []BaselineMatch{},
		Images:            []ImageVersion{},
		LockPhase:         LockNotAsked,
		History:           []ChatMessage{},
	}
}

// Locked reports whether the design is frozen for CAD generation.
func (s *SessionState) Locked() bool {
	return s.LockPhase == LockConfirmed
}

// BaselineDecisionDone reports whether the one-shot step-3 decision has fired.
func (s *SessionState) BaselineDecisionDone() bool {
	return s.BaselinePhase == BaselineDecided
}

// LatestImage returns the newest image version, or nil when none exist.
func (s *SessionState) LatestImage() *ImageVersion {
	if len(s.Images) == 0 {
		return nil
	}
	return &s.Images[len(s.Images)-1]
}

// ImageByVersion returns the image with the given 1-based version, or nil.
func (s *SessionState) ImageByVersion(version int) *ImageVersion {
	for i := range s.Images {
		if s.Images[i].Version == version {
			return &s.Images[i]
		}
	}
	return nil
}

// ClearApproval drops the approved-version pointer and every downstream CAD
// artifact; called whenever a new image version supersedes the approved one.
func (s *SessionState) ClearApproval() {
	s.ApprovedImageID = ""
	s.ApprovedImageVersion = 0
	s.ApprovedImageLocalPath = ""
	s.ClearCadArtifacts()
}

// ClearCadArtifacts drops the CAD sheet and CAD model outputs.
func (s *SessionState) ClearCadArtifacts() {
	s.CadSheetPrompt = ""
	s.CadSheetImageID = ""
	s.CadSheetImageURLOrBase64 = ""
	s.CadSheetImageLocalPath = ""
	s.CadModelPrompt = ""
	s.CadModelCode = ""
	s.CadModelLastError = ""
	s.CadModelCodePath = ""
	s.CadStepFile = ""
}

// Reset restores the state to a fresh step-1 session while keeping the id.
func (s *SessionState) Reset() {
	*s = *NewSessionState(s.SessionID)
}

// Normalize repairs nil slices and maps on states loaded from older rows so
// JSON round trips stay stable.
func (s *SessionState) Normalize() {
	s.Spec.EnsureDimensions()
	if s.MissingFields == nil {
		s.MissingFields = []string{}
	}
	if s.RequiredQuestions == nil {
		s.RequiredQuestions = []string{}
	}
	if s.BaselineMatches == nil {
		s.BaselineMatches = []BaselineMatch{}
	}
	if s.Images == nil {
		s.Images = []ImageVersion{}
	}
	if s.History == nil {
		s.History = []ChatMessage{}
	}
	if s.BaselinePhase == "" {
		s.BaselinePhase = BaselinePending
	}
	if s.LockPhase == "" {
		s.LockPhase = LockNotAsked
	}
	if s.Step < 1 {
		s.Step = 1
	}
}

// AssetMetadata is the normalized description of one catalog image, either
// extracted by the vision provider or derived from filename tokens.
type AssetMetadata struct {
	ProductType  string `json:"product_type,omitempty"`
	Material     string `json:"material,omitempty"`
	ClosureType  string `json:"closure_type,omitempty"`
	DesignStyle  string `json:"design_style,omitempty"`
	SizeOrVolume string `json:"size_or_volume,omitempty"`
	Tags         string `json:"tags,omitempty"`
	Summary      string `json:"summary,omitempty"`
}

// Empty reports whether no field carries a usable value.
func (m AssetMetadata) Empty() bool {
	return m.ProductType == "" && m.Material == "" && m.ClosureType == "" &&
		m.DesignStyle == "" && m.SizeOrVolume == "" && m.Tags == "" && m.Summary == ""
}
