package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeSlug(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Solana Basics", "solana-basics"},
		{"  Anchor 101  ", "anchor-101"},
		{"Intro to DeFi!", "intro-to-defi"},
		{"ＳＰＬ Ｔｏｋｅｎｓ", "spl-tokens"}, // fullwidth folds via NFKC
		{"a--b", "a-b"},
		{"---", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeSlug(tt.in), "input %q", tt.in)
	}
}

func TestNormalizeSlug_Stable(t *testing.T) {
	// Same logical title, different typing, same idempotency key.
	assert.Equal(t, NormalizeSlug("Rust For Solana"), NormalizeSlug("rust   for SOLANA"))
}

func TestValidSlug(t *testing.T) {
	assert.True(t, ValidSlug("solana-basics"))
	assert.True(t, ValidSlug("a1"))
	assert.False(t, ValidSlug(""))
	assert.False(t, ValidSlug("-leading"))
	assert.False(t, ValidSlug("trailing-"))
	assert.False(t, ValidSlug("double--dash"))
	assert.False(t, ValidSlug("Upper"))
	assert.False(t, ValidSlug("under_score"))
}

func TestEnrollmentCompleted(t *testing.T) {
	e := &Enrollment{TotalLessons: 3, LessonsCompleted: 2}
	assert.False(t, e.Completed())
	e.LessonsCompleted = 3
	assert.True(t, e.Completed())

	zero := &Enrollment{}
	assert.False(t, zero.Completed())
}

func TestAchievementRemaining(t *testing.T) {
	a := &AchievementType{MaxSupply: 5, AwardedCount: 3}
	assert.Equal(t, uint64(2), a.Remaining())
	a.AwardedCount = 7
	assert.Equal(t, uint64(0), a.Remaining())
}
