package search

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Search is one distinct prompt a user asked for, deduplicated by content
// hash. The prompt and its embedding never change after creation; only the
// unlock flag, contact fields and the association set evolve.
type Search struct {
	ID         int64     `json:"id"`
	UUID       string    `json:"uuid"`
	Prompt     string    `json:"prompt"`
	PromptHash string    `json:"-"`
	IsUnlocked bool      `json:"is_unlocked"`
	IsExample  bool      `json:"is_example"`
	Name       *string   `json:"name,omitempty"`
	Email      *string   `json:"email,omitempty"`
	Summary    *string   `json:"summary,omitempty"`
	Embedding  []float32 `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// Notifiable reports whether the search wants (and can receive) update
// notifications.
func (s *Search) Notifiable() bool {
	return s.IsUnlocked && s.Email != nil && *s.Email != "" && s.Name != nil && *s.Name != ""
}

// HashPrompt normalizes and hashes a prompt for deduplication.
func HashPrompt(prompt string) (normalized, hash string) {
	normalized = strings.TrimSpace(prompt)
	sum := sha256.Sum256([]byte(normalized))
	return normalized, hex.EncodeToString(sum[:])
}
