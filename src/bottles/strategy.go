package bottles

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/stake-plus/bottlebot/src/shared/models"
)

// CandidateSource is the read side of the store a Strategy may consult.
type CandidateSource interface {
	FindCandidate(ctx context.Context, excludingOrigin string) (*models.Bottle, error)
	ListCandidates(ctx context.Context, excludingOrigin string, limit int) ([]models.Bottle, error)
}

// Strategy picks which Pending bottle a new bottle should try to claim. It
// only proposes; the claim decides.
type Strategy interface {
	Pick(ctx context.Context, src CandidateSource, excludingOrigin string) (*models.Bottle, error)
}

// OldestFirst proposes the longest-waiting eligible bottle.
type OldestFirst struct{}

func (OldestFirst) Pick(ctx context.Context, src CandidateSource, excludingOrigin string) (*models.Bottle, error) {
	return src.FindCandidate(ctx, excludingOrigin)
}

// Random proposes a uniformly chosen bottle among the Window oldest eligible
// ones, keeping waits bounded while spreading pairings.
type Random struct {
	Window int

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandom builds a Random strategy over the given window.
func NewRandom(window int, seed int64) *Random {
	if window <= 0 {
		window = 10
	}
	return &Random{Window: window, rng: rand.New(rand.NewSource(seed))}
}

func (r *Random) Pick(ctx context.Context, src CandidateSource, excludingOrigin string) (*models.Bottle, error) {
	candidates, err := src.ListCandidates(ctx, excludingOrigin, r.Window)
	if err != nil || len(candidates) == 0 {
		return nil, err
	}
	r.mu.Lock()
	idx := r.rng.Intn(len(candidates))
	r.mu.Unlock()
	return &candidates[idx], nil
}

// StrategyByName maps the PAIRING_POLICY setting to a Strategy.
func StrategyByName(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "oldest", "fifo":
		return OldestFirst{}, nil
	case "random":
		return NewRandom(10, time.Now().UnixNano()), nil
	default:
		return nil, fmt.Errorf("unknown pairing policy %q", name)
	}
}
