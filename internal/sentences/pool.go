package sentences

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"math/rand"
)

//go:embed sentences.json
var sentencesJSON []byte

// Pool is the static source list of text prompts.
type Pool struct {
	sentences []string
}

// Load parses the embedded sentence list.
func Load() (*Pool, error) {
	var data struct {
		Sentences []string `json:"sentences"`
	}
	if err := json.Unmarshal(sentencesJSON, &data); err != nil {
		return nil, fmt.Errorf("failed to parse sentence pool: %w", err)
	}
	if len(data.Sentences) == 0 {
		return nil, fmt.Errorf("sentence pool is empty")
	}
	return &Pool{sentences: data.Sentences}, nil
}

// Size returns the number of sentences in the pool.
func (p *Pool) Size() int {
	return len(p.sentences)
}

// Select returns count randomly chosen sentences. Count is clamped to
// [1, pool size]. The returned slice is a copy owned by the caller.
func (p *Pool) Select(count int) []string {
	if count < 1 {
		count = 1
	}
	if count > len(p.sentences) {
		count = len(p.sentences)
	}

	shuffled := make([]string, len(p.sentences))
	copy(shuffled, p.sentences)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return shuffled[:count]
}
