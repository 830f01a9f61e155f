package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/Solstice-Labs/academy/core/pkg/model"
)

// SeedManifest is a YAML file describing courses to register at bootstrap.
type SeedManifest struct {
	Name    string       `yaml:"name,omitempty"`
	Courses []SeedCourse `yaml:"courses"`
}

// SeedCourse is one course entry of a seed manifest.
type SeedCourse struct {
	ID                      string       `yaml:"id"`
	Title                   string       `yaml:"title"`
	Description             string       `yaml:"description,omitempty"`
	XPPerLesson             uint64       `yaml:"xp_per_lesson"`
	CreatorRewardXP         uint64       `yaml:"creator_reward_xp,omitempty"`
	MinCompletionsForReward uint32       `yaml:"min_completions_for_reward,omitempty"`
	Prerequisite            string       `yaml:"prerequisite,omitempty"`
	SchemaVersion           string       `yaml:"schema_version"`
	Lessons                 []SeedLesson `yaml:"lessons"`
}

// SeedLesson is one lesson of a seed course.
type SeedLesson struct {
	Slug    string `yaml:"slug"`
	Title   string `yaml:"title"`
	Content string `yaml:"content,omitempty"`
}

// LoadSeedManifest loads a single seed manifest YAML.
func LoadSeedManifest(path string) (*SeedManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load seed manifest: %w", err)
	}

	var manifest SeedManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse seed manifest %s: %w", path, err)
	}

	for i, course := range manifest.Courses {
		if course.ID == "" {
			return nil, fmt.Errorf("seed manifest %s: course %d has no id", path, i)
		}
		if course.SchemaVersion == "" {
			manifest.Courses[i].SchemaVersion = "1.0.0"
		}
	}

	return &manifest, nil
}

// LoadSeedManifests loads every seed_*.yaml file from a directory, ordered
// by filename.
func LoadSeedManifests(dir string) ([]*SeedManifest, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "seed_*.yaml"))
	if err != nil {
		return nil, err
	}

	manifests := make([]*SeedManifest, 0, len(matches))
	for _, path := range matches {
		manifest, err := LoadSeedManifest(path)
		if err != nil {
			return nil, err
		}
		manifests = append(manifests, manifest)
	}
	return manifests, nil
}

// Course converts a seed entry to its ledger registration form.
func (s SeedCourse) Course() model.Course {
	return model.Course{
		ID:                      s.ID,
		LessonCount:             uint32(len(s.Lessons)),
		XPPerLesson:             s.XPPerLesson,
		CreatorRewardXP:         s.CreatorRewardXP,
		MinCompletionsForReward: s.MinCompletionsForReward,
		Prerequisite:            s.Prerequisite,
	}
}

// Content converts a seed entry to its content document form.
func (s SeedCourse) Content() *model.CourseContent {
	lessons := make([]model.Lesson, 0, len(s.Lessons))
	for _, l := range s.Lessons {
		lessons = append(lessons, model.Lesson{Slug: l.Slug, Title: l.Title, Content: l.Content})
	}
	return &model.CourseContent{
		CourseID:      s.ID,
		Title:         s.Title,
		Description:   s.Description,
		SchemaVersion: s.SchemaVersion,
		Lessons:       lessons,
	}
}
