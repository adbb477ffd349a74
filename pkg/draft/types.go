package draft

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound means the user has no draft, or it expired
	ErrNotFound = errors.New("draft bet not found")

	// ErrInvalid rejects a malformed draft
	ErrInvalid = errors.New("invalid draft bet")

	// ErrStorage wraps Redis failures
	ErrStorage = errors.New("draft storage failed")
)

// Game is the product a draft belongs to
type Game string

const (
	GameLoto     Game = "loto"
	GameFootball Game = "football"
)

// Selection is one pick on the slip. For football it references a match
// and an outcome; for loto it is a set of numbers for a draw.
type Selection struct {
	MatchID string `json:"match_id,omitempty"`
	Outcome string `json:"outcome,omitempty"`
	DrawID  string `json:"draw_id,omitempty"`
	Numbers []int  `json:"numbers,omitempty"`
}

// Bet is the pending bet
type Bet struct {
	ID         string      `json:"id"`
	UserID     string      `json:"user_id"`
	Game       Game        `json:"game"`
	Selections []Selection `json:"selections"`
	Stake      float64     `json:"stake"`
	CreatedAt  time.Time   `json:"created_at"`
	ExpiresAt  time.Time   `json:"expires_at"`
}

// Validate checks the shape of b. Amounts are not interpreted beyond
// requiring a positive stake.
func (b *Bet) Validate() error {
	if strings.TrimSpace(b.UserID) == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalid)
	}
	switch b.Game {
	case GameLoto, GameFootball:
	default:
		return fmt.Errorf("%w: game must be %q or %q", ErrInvalid, GameLoto, GameFootball)
	}
	if len(b.Selections) == 0 {
		return fmt.Errorf("%w: at least one selection is required", ErrInvalid)
	}
	for i, sel := range b.Selections {
		if b.Game == GameFootball && (sel.MatchID == "" || sel.Outcome == "") {
			return fmt.Errorf("%w: selection %d needs match_id and outcome", ErrInvalid, i)
		}
		if b.Game == GameLoto && len(sel.Numbers) == 0 {
			return fmt.Errorf("%w: selection %d needs numbers", ErrInvalid, i)
		}
	}
	if b.Stake <= 0 {
		return fmt.Errorf("%w: stake must be positive", ErrInvalid)
	}
	return nil
}
