package models

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type ChatResponse struct {
	AssistantMessage  string   `json:"assistant_message"`
	Step              int      `json:"step"`
	SpecSummary       string   `json:"spec_summary"`
	RequiredQuestions []string `json:"required_questions"`
	CanGenerateImage  bool     `json:"can_generate_image"`
	CanIterateImage   bool     `json:"can_iterate_image"`
	CanLock           bool     `json:"can_lock"`
	CanGenerateCad    bool     `json:"can_generate_cad"`
}

type BriefUploadResponse struct {
	Message           string   `json:"message"`
	Step              int      `json:"step"`
	SpecSummary       string   `json:"spec_summary"`
	RequiredQuestions []string `json:"required_questions"`
}

type ImageResponse struct {
	ImageID          string `json:"image_id"`
	ImageURLOrBase64 string `json:"image_url_or_base64"`
	Version          int    `json:"version"`
}

type VersionApproveResponse struct {
	Message         string `json:"message"`
	ApprovedVersion int    `json:"approved_version"`
}

type CadGenerateResponse struct {
	CadCode       string `json:"cad_code"`
	DesignSummary string `json:"design_summary"`
}

type CadSheetGenerateResponse struct {
	Message          string `json:"message"`
	ImageID          string `json:"image_id"`
	ImageURLOrBase64 string `json:"image_url_or_base64"`
}

type CadModelGenerateResponse struct {
	Message     string `json:"message"`
	Success     bool   `json:"success"`
	CadCode     string `json:"cad_code"`
	CodeFile    string `json:"code_file,omitempty"`
	StepFile    string `json:"step_file,omitempty"`
	ErrorDetail string `json:"error_detail,omitempty"`
	Cached      bool   `json:"cached"`
	Attempts    int    `json:"attempts,omitempty"`
}

type AssetIndexResponse struct {
	IndexedCount int `json:"indexed_count"`
	TotalAssets  int `json:"total_assets"`
}

type CatalogItem struct {
	AssetRelPath string                 `json:"asset_rel_path"`
	Filename     string                 `json:"filename"`
	ProductType  string                 `json:"product_type,omitempty"`
	Material     string                 `json:"material,omitempty"`
	ClosureType  string                 `json:"closure_type,omitempty"`
	DesignStyle  string                 `json:"design_style,omitempty"`
	SizeOrVolume string                 `json:"size_or_volume,omitempty"`
	Tags         string                 `json:"tags,omitempty"`
	Summary      string                 `json:"summary,omitempty"`
	Metadata     map[string]interface{} `json:"metadata_json,omitempty"`
	UpdatedAt    string                 `json:"updated_at"`
}

type AssetCatalogResponse struct {
	Total int           `json:"total"`
	Items []CatalogItem `json:"items"`
}

type EditRecommendationsResponse struct {
	Count           int      `json:"count"`
	Recommendations []string `json:"recommendations"`
}

type BaselineSkipResponse struct {
	Message string `json:"message"`
	Step    int    `json:"step"`
}

type SessionResponse struct {
	State *SessionState `json:"state"`
}

type SessionClearResponse struct {
	Message string `json:"message"`
}

type CacheClearResponse struct {
	Message      string `json:"message"`
	RemovedFiles int    `json:"removed_files"`
}
