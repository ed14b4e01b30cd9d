// Package username derives and allocates unique usernames.
//
// A username matches ^[a-z0-9.]{3,20}$ and is immutable once assigned.
// The base candidate comes from the user's display name, then the email
// local part, then a random fallback. Collisions are resolved by probing
// incrementing integer suffixes. Probing and assignment race against
// concurrent registrations, so the database unique constraint is the
// final arbiter: a unique-violation on write means another request
// claimed the candidate first, and the allocator moves on to the next
// suffix.
package username

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
)

const (
	// MinLength and MaxLength bound a valid username
	MinLength = 3
	MaxLength = 20

	// maxSequentialProbes bounds the incrementing-suffix search before
	// switching to random suffixes. Pathological inputs (thousands of
	// users sharing one base) would otherwise degrade linearly.
	maxSequentialProbes = 500

	// maxRandomProbes bounds the random-suffix fallback
	maxRandomProbes = 50
)

// usernamePattern is the canonical username format
var usernamePattern = regexp.MustCompile(`^[a-z0-9.]{3,20}$`)

var (
	// ErrExhausted is returned when no free username could be found
	ErrExhausted = errors.New("username space exhausted for candidate")

	// ErrInvalidFormat is returned for a claim that fails the format check
	ErrInvalidFormat = errors.New("username must be 3-20 characters: lowercase letters, digits, and dots only")

	// ErrTaken is returned for a claim on an already-assigned username
	ErrTaken = errors.New("username is already taken")
)

// Store is the persistence surface the allocator needs
type Store interface {
	// UsernameTaken reports whether the username is already assigned.
	UsernameTaken(ctx context.Context, username string) (bool, error)

	// AssignUsername writes the username to the user row. Must return an
	// error satisfying IsUniqueViolation when another request claimed the
	// username between the probe and the write.
	AssignUsername(ctx context.Context, userID int64, username string) error
}

// UniqueViolation marks storage errors caused by the username unique
// constraint
type UniqueViolation interface {
	UniqueViolation() bool
}

// IsUniqueViolation reports whether err is a unique-constraint violation
func IsUniqueViolation(err error) bool {
	var uv UniqueViolation
	return errors.As(err, &uv) && uv.UniqueViolation()
}

// Valid reports whether the string satisfies the username format
func Valid(username string) bool {
	return usernamePattern.MatchString(username)
}

// Allocator assigns unique usernames backed by a Store
type Allocator struct {
	store Store
	rand  func(n int) int
}

// NewAllocator creates an Allocator
func NewAllocator(store Store) *Allocator {
	return &Allocator{store: store, rand: rand.Intn}
}

// DeriveBase computes the unsuffixed base candidate from the user's
// display name and email, in priority order. The result always satisfies
// the username format.
func DeriveBase(name, email string) string {
	if base := fromName(name); len(base) >= MinLength {
		return truncate(base)
	}
	if base := fromEmail(email); len(base) >= MinLength {
		return truncate(base)
	}
	return "user" + strconv.Itoa(rand.Intn(10000))
}

func fromName(name string) string {
	lowered := strings.ToLower(strings.TrimSpace(name))
	// Whitespace runs become a single dot, then everything outside the
	// allowed alphabet is stripped. "Jane Q. Public" ends up as
	// "jane.q.public", not "jane.q..public", so dot runs collapse too.
	dotted := strings.Join(strings.Fields(lowered), ".")
	return collapseDots(strip(dotted))
}

func fromEmail(email string) string {
	local, _, found := strings.Cut(email, "@")
	if !found {
		return ""
	}
	return strip(strings.ToLower(local))
}

func strip(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func collapseDots(s string) string {
	for strings.Contains(s, "..") {
		s = strings.ReplaceAll(s, "..", ".")
	}
	return strings.Trim(s, ".")
}

func truncate(s string) string {
	if len(s) > MaxLength {
		return s[:MaxLength]
	}
	return s
}

// withSuffix appends the suffix, shortening the base so the result still
// fits MaxLength
func withSuffix(base, suffix string) string {
	limit := MaxLength - len(suffix)
	if len(base) > limit {
		base = base[:limit]
	}
	return base + suffix
}

// Allocate finds a free username derived from name/email and assigns it
// to the user. Returns the assigned username.
func (a *Allocator) Allocate(ctx context.Context, userID int64, name, email string) (string, error) {
	base := DeriveBase(name, email)

	candidate := base
	for i := 0; i <= maxSequentialProbes; i++ {
		if i > 0 {
			candidate = withSuffix(base, strconv.Itoa(i))
		}

		assigned, err := a.tryAssign(ctx, userID, candidate)
		if err != nil {
			return "", err
		}
		if assigned {
			return candidate, nil
		}
	}

	// Sequential space under this base is saturated; fall back to random
	// suffixes, which spread probes across a much larger space
	for i := 0; i < maxRandomProbes; i++ {
		candidate = withSuffix(base, strconv.Itoa(a.rand(1_000_000)))
		assigned, err := a.tryAssign(ctx, userID, candidate)
		if err != nil {
			return "", err
		}
		if assigned {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrExhausted, base)
}

// tryAssign probes for availability and writes on success. A unique
// violation on write means a concurrent allocation won the race, which is
// reported as not-assigned rather than an error.
func (a *Allocator) tryAssign(ctx context.Context, userID int64, candidate string) (bool, error) {
	taken, err := a.store.UsernameTaken(ctx, candidate)
	if err != nil {
		return false, fmt.Errorf("failed to probe username %q: %w", candidate, err)
	}
	if taken {
		return false, nil
	}

	if err := a.store.AssignUsername(ctx, userID, candidate); err != nil {
		if IsUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to assign username %q: %w", candidate, err)
	}

	return true, nil
}

// Claim assigns a caller-chosen username to the user. Unlike Allocate it
// never substitutes an alternative: a collision is surfaced as ErrTaken.
func (a *Allocator) Claim(ctx context.Context, userID int64, candidate string) error {
	if !Valid(candidate) {
		return ErrInvalidFormat
	}

	taken, err := a.store.UsernameTaken(ctx, candidate)
	if err != nil {
		return fmt.Errorf("failed to probe username %q: %w", candidate, err)
	}
	if taken {
		return ErrTaken
	}

	if err := a.store.AssignUsername(ctx, userID, candidate); err != nil {
		if IsUniqueViolation(err) {
			return ErrTaken
		}
		return err
	}
	return nil
}

// ValidationResult carries the outcome of a username validation check
type ValidationResult struct {
	Valid   bool
	Message string
}

// Validate checks format first, then uniqueness. The two failure modes
// carry distinct user-facing messages.
func (a *Allocator) Validate(ctx context.Context, username string) (ValidationResult, error) {
	if !Valid(username) {
		return ValidationResult{
			Valid:   false,
			Message: "username must be 3-20 characters: lowercase letters, digits, and dots only",
		}, nil
	}

	taken, err := a.store.UsernameTaken(ctx, username)
	if err != nil {
		return ValidationResult{}, fmt.Errorf("failed to check username %q: %w", username, err)
	}
	if taken {
		return ValidationResult{
			Valid:   false,
			Message: "username is already taken",
		}, nil
	}

	return ValidationResult{Valid: true}, nil
}
