package voice

import (
	"strings"
	"sync/atomic"

	"github.com/codeready-toolchain/cake/pkg/shared/textsim"
)

// SimilarityScorer scores a candidate message against a Corpus, returning
// the best match's similarity in [0,1]. It prefers cosine similarity over
// the hashed embeddings but falls back to lexical Jaccard token-set
// similarity if the corpus is empty or degraded: a corpus load failure
// degrades the gate to lexical similarity only, never to always-pass.
type SimilarityScorer struct {
	corpus    *Corpus
	degraded  atomic.Bool
}

// NewSimilarityScorer wraps corpus. A nil corpus starts the scorer in
// degraded (lexical-only) mode.
func NewSimilarityScorer(corpus *Corpus) *SimilarityScorer {
	s := &SimilarityScorer{corpus: corpus}
	if corpus == nil || corpus.Len() == 0 {
		s.degraded.Store(true)
	}
	return s
}

// Degraded reports whether the scorer is operating without corpus
// embeddings (lexical-only fallback).
func (s *SimilarityScorer) Degraded() bool { return s.degraded.Load() }

// Best returns the highest similarity score between candidate and any
// corpus entry.
func (s *SimilarityScorer) Best(candidate string) float64 {
	if s.degraded.Load() || s.corpus == nil || s.corpus.Len() == 0 {
		return s.bestLexical(candidate)
	}

	candVec := Embed(candidate)
	var best float64
	for _, entry := range s.corpus.entries {
		score := textsim.CosineSimilarity(candVec, entry.Embedding)
		if score > best {
			best = score
		}
	}
	return best
}

func (s *SimilarityScorer) bestLexical(candidate string) float64 {
	candTokens := strings.Fields(strings.ToLower(candidate))
	if s.corpus == nil || s.corpus.Len() == 0 {
		return 0
	}
	var best float64
	for _, entry := range s.corpus.entries {
		refTokens := strings.Fields(strings.ToLower(entry.Text))
		score := textsim.JaccardTokenSet(candTokens, refTokens)
		if score > best {
			best = score
		}
	}
	return best
}
