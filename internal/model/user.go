package model

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

// UserRole represents the platform role assigned to a user.
type UserRole string

const (
	RoleAdmin   UserRole = "admin"
	RoleCreator UserRole = "creator"
	RoleLearner UserRole = "learner"
)

// DefaultLanguage is the language preference assigned to new profiles.
const DefaultLanguage = "english"

// MaxLearningInterests caps the interests kept on a profile.
const MaxLearningInterests = 20

// User is a platform profile.
type User struct {
	ID                 uuid.UUID      `json:"id"`
	Name               string         `json:"name"`
	Email              string         `json:"email"`
	Role               UserRole       `json:"role"`
	PasswordHash       *string        `json:"-"`
	Preferences        map[string]any `json:"preferences"`
	LearningInterests  []string       `json:"learning_interests"`
	LanguagePreference string         `json:"language_preference"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// Preferences is the slice of a profile the recommendation pipeline reads.
type Preferences struct {
	Preferences        map[string]any `json:"preferences"`
	LearningInterests  []string       `json:"learning_interests"`
	LanguagePreference string         `json:"language_preference"`
}

// PreferencesOf extracts the recommendation view of a user.
func PreferencesOf(u User) Preferences {
	return Preferences{
		Preferences:        u.Preferences,
		LearningInterests:  u.LearningInterests,
		LanguagePreference: u.LanguagePreference,
	}
}

// Difficulty returns preferences.difficulty_level, or "" when unset.
func (p Preferences) Difficulty() string {
	if p.Preferences == nil {
		return ""
	}
	s, _ := p.Preferences["difficulty_level"].(string)
	return s
}

// IsZero reports whether no preference data is present.
func (p Preferences) IsZero() bool {
	return len(p.Preferences) == 0 && len(p.LearningInterests) == 0 && p.LanguagePreference == ""
}

// RoleRank returns the numeric rank of a role (higher = more privileges).
func RoleRank(r UserRole) int {
	switch r {
	case RoleAdmin:
		return 3
	case RoleCreator:
		return 2
	case RoleLearner:
		return 1
	default:
		return 0
	}
}

// RoleAtLeast returns true if role r has at least the privileges of minRole.
func RoleAtLeast(r, minRole UserRole) bool {
	return RoleRank(r) >= RoleRank(minRole)
}

// ValidateSignupRole accepts the roles a user may pick for themselves.
// Admins are only created through bootstrap.
func ValidateSignupRole(r UserRole) error {
	switch r {
	case RoleLearner, RoleCreator:
		return nil
	default:
		return fmt.Errorf("role must be one of learner, creator (got %q)", r)
	}
}

// NormalizeEmail lowercases and trims an address, and checks its syntax.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", fmt.Errorf("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("email %q is not a valid address", email)
	}
	return email, nil
}

// MergeInterests appends new keywords to existing interests, dropping
// duplicates and keeping at most limit entries.
func MergeInterests(existing, keywords []string, limit int) []string {
	seen := make(map[string]bool, len(existing)+len(keywords))
	out := make([]string, 0, len(existing)+len(keywords))
	for _, list := range [][]string{existing, keywords} {
		for _, k := range list {
			if k == "" || seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, k)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
