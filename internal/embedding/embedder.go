package embedding

import "context"

// Backend converts free text into fixed-dimension vectors.
// Implementations may need a load phase before the first Embed.
type Backend interface {
	Name() string
	Dimensions() int
	MaxTokens() int
	Load(ctx context.Context) error
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
