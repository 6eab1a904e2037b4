// Package delivery decides how a finished artifact reaches its requester.
package delivery

import (
	"context"
	"log/slog"
)

// Method is how an artifact is delivered.
type Method string

const (
	DirectTransfer Method = "direct_transfer"
	DirectLink     Method = "direct_link"
	GatedLink      Method = "gated_link"
)

// Quality tiers with special treatment.
const (
	MidTier      = "1080p"
	freeMidLimit = 1
	freeLimit    = 2
)

var premiumTiers = map[string]bool{"1440p": true, "2160p": true}

// IsPremium reports whether quality always requires verification.
func IsPremium(quality string) bool { return premiumTiers[quality] }

// Decision is the outcome for one job.
type Decision struct {
	Method               Method
	VerificationRequired bool
	// Commit is set when the decision consumes quota.
	Commit bool
}

// IsLink reports whether the artifact is handed out as a URL.
func (d Decision) IsLink() bool { return d.Method != DirectTransfer }

// Decide applies the link rules for a quality given the user's prior count.
// It never returns DirectTransfer; size routing happens in Engine.Decide.
func Decide(quality string, count int, exempt bool) Method {
	switch {
	case exempt:
		return DirectLink
	case premiumTiers[quality]:
		return GatedLink
	case quality == MidTier:
		if count < freeMidLimit {
			return DirectLink
		}
		return GatedLink
	case count < freeLimit:
		return DirectLink
	default:
		return GatedLink
	}
}

// Ledger is the part of the quota ledger the engine needs.
type Ledger interface {
	Ensure(ctx context.Context, userID int64) error
	Count(ctx context.Context, userID int64) int
	Increment(ctx context.Context, userID int64) error
}

// Engine combines the rules with the ledger and the upload limit.
type Engine struct {
	ledger      Ledger
	exempt      map[int64]bool
	uploadLimit int64
	log         *slog.Logger
}

// NewEngine creates an engine. Users in exempt are never gated or counted.
func NewEngine(ledger Ledger, exempt []int64, uploadLimit int64, log *slog.Logger) *Engine {
	set := make(map[int64]bool, len(exempt))
	for _, id := range exempt {
		set[id] = true
	}
	return &Engine{
		ledger:      ledger,
		exempt:      set,
		uploadLimit: uploadLimit,
		log:         log.With(slog.String("component", "delivery")),
	}
}

// Exempt reports whether the user bypasses gating.
func (e *Engine) Exempt(userID int64) bool { return e.exempt[userID] }

// UploadLimit returns the direct transfer ceiling in bytes.
func (e *Engine) UploadLimit() int64 { return e.uploadLimit }

// Decide picks the delivery method for an artifact of size bytes. Size alone
// decides push versus link; the rules only decide whether a link is gated.
func (e *Engine) Decide(ctx context.Context, userID int64, quality string, size int64) Decision {
	push := size <= e.uploadLimit

	if e.exempt[userID] {
		if push {
			return Decision{Method: DirectTransfer}
		}
		return Decision{Method: DirectLink}
	}

	// Ensure first so the count below always reads an existing record. The
	// ledger already logged any write failure; delivery goes on regardless.
	if err := e.ledger.Ensure(ctx, userID); err != nil {
		e.log.Debug("ledger ensure failed, continuing", slog.Int64("user_id", userID), slog.Any("error", err))
	}
	if push {
		e.log.Info("delivery decided",
			slog.Int64("user_id", userID),
			slog.String("quality", quality),
			slog.Int64("size", size),
			slog.String("method", string(DirectTransfer)))
		return Decision{Method: DirectTransfer}
	}

	count := e.ledger.Count(ctx, userID)
	method := Decide(quality, count, false)
	e.log.Info("delivery decided",
		slog.Int64("user_id", userID),
		slog.String("quality", quality),
		slog.Int("count", count),
		slog.Int64("size", size),
		slog.String("method", string(method)))

	return Decision{
		Method:               method,
		VerificationRequired: method == GatedLink,
		Commit:               true,
	}
}

// Commit records the quota use of a link decision. It is a no-op otherwise.
func (e *Engine) Commit(ctx context.Context, userID int64, d Decision) error {
	if !d.Commit {
		return nil
	}
	return e.ledger.Increment(ctx, userID)
}
