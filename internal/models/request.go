package models

type ChatRequest struct {
	SessionID   string `json:"session_id" binding:"required,min=1,max=120"`
	UserMessage string `json:"user_message" binding:"required,min=1,max=4000"`
}

type ImageGenerateRequest struct {
	SessionID string `json:"session_id" binding:"required,min=1,max=120"`
	Prompt    string `json:"prompt" binding:"required,min=3,max=2000"`
}

type ImageEditRequest struct {
	SessionID         string `json:"session_id" binding:"required,min=1,max=120"`
	ImageID           string `json:"image_id" binding:"required,min=1,max=256"`
	InstructionPrompt string `json:"instruction_prompt" binding:"required,min=3,max=2000"`
}

type BaselineAdoptRequest struct {
	SessionID    string `json:"session_id" binding:"required,min=1,max=120"`
	AssetRelPath string `json:"asset_rel_path" binding:"required,min=1,max=500"`
}

type BaselineSkipRequest struct {
	SessionID string `json:"session_id" binding:"required,min=1,max=120"`
}

type VersionApproveRequest struct {
	SessionID string `json:"session_id" binding:"required,min=1,max=120"`
	Version   int    `json:"version" binding:"required,min=1"`
}

type CadGenerateRequest struct {
	SessionID string `json:"session_id" binding:"required,min=1,max=120"`
}

type CadSheetGenerateRequest struct {
	SessionID string `json:"session_id" binding:"required,min=1,max=120"`
	Prompt    string `json:"prompt" binding:"required,min=3,max=2000"`
}

type CadModelGenerateRequest struct {
	SessionID string `json:"session_id" binding:"required,min=1,max=120"`
	Prompt    string `json:"prompt" binding:"required,min=3,max=4000"`
}

type CadModelRunCodeRequest struct {
	SessionID string `json:"session_id" binding:"required,min=1,max=120"`
	CadCode   string `json:"cad_code"`
}

type CadModelFixRequest struct {
	SessionID   string `json:"session_id" binding:"required,min=1,max=120"`
	CadCode     string `json:"cad_code"`
	ErrorDetail string `json:"error_detail,omitempty"`
	MaxAttempts int    `json:"max_attempts,omitempty"`
}

type AssetIndexRequest struct {
	ForceReindex bool `json:"force_reindex"`
}

type SessionClearRequest struct {
	SessionID string `json:"session_id" binding:"required,min=1,max=120"`
}
