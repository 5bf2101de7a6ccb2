package selection

import (
	"math/rand"
	"sync"
	"time"

	"studyquiz_backend/internal/quiz"
)

// Sampler turns a candidate pool into an ordered session question list.
type Sampler struct {
	mu   sync.Mutex
	rand *rand.Rand
}

// NewSampler creates a sampler seeded from the wall clock.
func NewSampler() *Sampler {
	return NewSeededSampler(time.Now().UnixNano())
}

func NewSeededSampler(seed int64) *Sampler {
	return &Sampler{rand: rand.New(rand.NewSource(seed))}
}

// Sample draws n questions from pool under policy. stats is consulted only by
// the normal policy to split the pool into unseen and seen questions.
func (s *Sampler) Sample(pool []quiz.Question, n int, policy quiz.Policy, stats map[string]quiz.UserQuestionStat) ([]quiz.SessionQuestion, error) {
	if n <= 0 || len(pool) < n {
		return nil, &InsufficientPoolError{Requested: n, Available: len(pool)}
	}

	var picked []quiz.Question
	switch policy {
	case quiz.PolicyNormal:
		picked = s.sampleNormal(pool, n, stats)
	default:
		shuffled := s.shuffle(pool)
		picked = shuffled[:n]
	}

	out := make([]quiz.SessionQuestion, len(picked))
	for i, q := range picked {
		out[i] = quiz.SessionQuestion{Question: q, Number: i + 1}
	}
	return out, nil
}

// sampleNormal fills from unseen questions first and tops up from seen ones.
func (s *Sampler) sampleNormal(pool []quiz.Question, n int, stats map[string]quiz.UserQuestionStat) []quiz.Question {
	fresh := make([]quiz.Question, 0, len(pool))
	seen := make([]quiz.Question, 0, len(pool))
	for _, q := range pool {
		if _, ok := stats[q.ID]; ok {
			seen = append(seen, q)
		} else {
			fresh = append(fresh, q)
		}
	}
	fresh = s.shuffle(fresh)
	seen = s.shuffle(seen)

	out := make([]quiz.Question, 0, n)
	for _, q := range fresh {
		if len(out) == n {
			return out
		}
		out = append(out, q)
	}
	for _, q := range seen {
		if len(out) == n {
			break
		}
		out = append(out, q)
	}
	return out
}

// shuffle returns a Fisher–Yates permutation of a copy of qs.
func (s *Sampler) shuffle(qs []quiz.Question) []quiz.Question {
	out := append([]quiz.Question(nil), qs...)
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(out) - 1; i > 0; i-- {
		j := s.rand.Intn(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}
