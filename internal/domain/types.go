package domain

import "time"

// ChunkMetadata carries optional structure recovered from a plan page.
type ChunkMetadata struct {
	Section     string      `json:"section,omitempty"`
	Policy      string      `json:"policy,omitempty"`
	Coordinates *[2]float64 `json:"coordinates,omitempty"`
}

// Chunk is a bounded span of plan text with its page position.
type Chunk struct {
	ID         string
	Text       string
	PageNumber int
	ChunkIndex int
	DocumentID string
	TokenCount int
	Metadata   *ChunkMetadata
	CreatedAt  time.Time
}

// ChunkEntity is a chunk paired with its embedding vector.
type ChunkEntity struct {
	Chunk
	Vector []float32
}

// Query describes a single ranking request against the index.
// A nil Vector switches the index to keyword scoring.
type Query struct {
	Text   string
	Vector []float32
	K      int
	Filter func(ChunkEntity) bool
}

// QueryResult is a ranked entity. Cosine scores lie in [-1, 1]; keyword
// scores are non-negative and only comparable within one query.
type QueryResult struct {
	Entity ChunkEntity
	Score  float64
}

// PlanStatus tracks a plan through ingestion.
type PlanStatus string

const (
	PlanUploading  PlanStatus = "uploading"
	PlanProcessing PlanStatus = "processing"
	PlanCompleted  PlanStatus = "completed"
	PlanError      PlanStatus = "error"
)

// Plan is one ingested planning document. Its ID is the DocumentID of
// every chunk extracted from it.
type Plan struct {
	ID          string
	Title       string
	Filename    string
	FileSize    int64
	Status      PlanStatus
	ChunkCount  int
	Summary     string
	UploadedAt  time.Time
	ProcessedAt *time.Time
}

// ExtractionPhase is the stage reported by the chunker.
type ExtractionPhase string

const (
	PhaseLoading    ExtractionPhase = "loading"
	PhaseExtracting ExtractionPhase = "extracting"
	PhaseChunking   ExtractionPhase = "chunking"
	PhaseCompleted  ExtractionPhase = "completed"
	PhaseError      ExtractionPhase = "error"
)

// ExtractionProgress is emitted while a document is being chunked.
type ExtractionProgress struct {
	Page          int
	TotalPages    int
	ChunksCreated int
	Phase         ExtractionPhase
	Error         string
}

// ModelInfo describes the active embedding backend.
type ModelInfo struct {
	Name       string
	Dimensions int
	MaxTokens  int
}
