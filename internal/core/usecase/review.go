package usecase

import (
	"sync"

	"github.com/kirillkom/legal-pdf-workflow/internal/core/domain"
)

// PreprocessingReviewStore holds the extraction result awaiting confirmation.
type PreprocessingReviewStore struct {
	mu      sync.RWMutex
	current *domain.PreprocessingResult
}

func NewPreprocessingReviewStore() *PreprocessingReviewStore {
	return &PreprocessingReviewStore{}
}

func (s *PreprocessingReviewStore) Accept(result *domain.PreprocessingResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = result
}

func (s *PreprocessingReviewStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
}

// Current returns the pending result or nil.
func (s *PreprocessingReviewStore) Current() *domain.PreprocessingResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}
