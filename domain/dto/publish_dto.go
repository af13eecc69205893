package dto

type AssetRequest struct {
	ID          string            `json:"id"`
	Type        string            `json:"type" binding:"required"`
	SourceURL   string            `json:"source_url"`
	Items       []string          `json:"items"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Tags        []string          `json:"tags"`
	MimeType    string            `json:"mime_type"`
	Captions    map[string]string `json:"captions"`
}

type PublishRequest struct {
	Asset     AssetRequest `json:"asset" binding:"required"`
	Platforms []string     `json:"platforms" binding:"required,min=1"`
	// Instruction asks the content service for per-platform captions.
	Instruction string `json:"instruction"`
	// Async answers 202 with the run id instead of waiting for the report.
	Async bool `json:"async"`
}

type PublishAccepted struct {
	RunID       string `json:"run_id"`
	ProgressURL string `json:"progress_url"`
}

type ConnectResponse struct {
	AuthURL string `json:"auth_url"`
	State   string `json:"state"`
}
