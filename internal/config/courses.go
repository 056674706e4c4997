package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrNoCourses is returned when the catalog defines no course.
var ErrNoCourses = errors.New("no courses defined")

const (
	RoleStudent    = "student"
	RoleInstructor = "instructor"
)

// ExerciseConfig is a single graded exercise; list order is the course order.
type ExerciseConfig struct {
	ID   int64  `yaml:"id"`
	Name string `yaml:"name"`
}

// ParticipantConfig enrols a user into a course.
type ParticipantConfig struct {
	UserID          int64  `yaml:"user_id"`
	Username        string `yaml:"username"`
	FirstName       string `yaml:"first_name"`
	LastName        string `yaml:"last_name"`
	Email           string `yaml:"email"`
	TelegramChatID  int64  `yaml:"telegram_chat_id"`
	Role            string `yaml:"role"` // student | instructor
	Active          *bool  `yaml:"active,omitempty"`
	CurrentExercise int64  `yaml:"current_exercise"`
}

// IsActive defaults to true when the flag is omitted.
func (p ParticipantConfig) IsActive() bool {
	return p.Active == nil || *p.Active
}

// CourseConfig represents a single course of the catalog.
type CourseConfig struct {
	ID                 int64               `yaml:"id"`
	ShortName          string              `yaml:"short_name"`
	FullName           string              `yaml:"full_name"`
	Subscribed         bool                `yaml:"subscribed"`
	GraduationExercise int64               `yaml:"graduation_exercise"`
	Exercises          []ExerciseConfig    `yaml:"exercises"`
	Participants       []ParticipantConfig `yaml:"participants"`
}

// CoursesConfig is the root of courses.yaml.
type CoursesConfig struct {
	Courses []CourseConfig `yaml:"courses"`
}

func coursesPath(path string) string {
	if path == "" {
		return "configs/courses.yaml"
	}
	return path
}

// LoadCoursesConfig loads and validates the course catalog from a YAML file.
func LoadCoursesConfig(path string) (*CoursesConfig, error) {
	data, err := os.ReadFile(coursesPath(path))
	if err != nil {
		return nil, fmt.Errorf("read courses config: %w", err)
	}
	return ParseCoursesConfig(data)
}

func ParseCoursesConfig(data []byte) (*CoursesConfig, error) {
	var cfg CoursesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse courses config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate courses config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the catalog for errors.
func (c *CoursesConfig) Validate() error {
	if len(c.Courses) == 0 {
		return ErrNoCourses
	}

	courseIDs := make(map[int64]bool)
	exerciseIDs := make(map[int64]bool)

	for i, course := range c.Courses {
		if course.ID <= 0 {
			return fmt.Errorf("course[%d]: id must be positive, got %d", i, course.ID)
		}
		if courseIDs[course.ID] {
			return fmt.Errorf("course[%d]: duplicate id %d", i, course.ID)
		}
		courseIDs[course.ID] = true

		if course.ShortName == "" {
			return fmt.Errorf("course[%d]: short_name is required", i)
		}

		own := make(map[int64]bool)
		for j, ex := range course.Exercises {
			if ex.ID <= 0 {
				return fmt.Errorf("course[%d].exercises[%d]: id must be positive", i, j)
			}
			if exerciseIDs[ex.ID] {
				return fmt.Errorf("course[%d].exercises[%d]: duplicate exercise id %d", i, j, ex.ID)
			}
			exerciseIDs[ex.ID] = true
			own[ex.ID] = true
			if ex.Name == "" {
				return fmt.Errorf("course[%d].exercises[%d]: name is required", i, j)
			}
		}

		if course.GraduationExercise != 0 && !own[course.GraduationExercise] {
			return fmt.Errorf("course[%d]: graduation_exercise %d is not an exercise of the course", i, course.GraduationExercise)
		}

		users := make(map[int64]bool)
		for j, p := range course.Participants {
			if p.UserID <= 0 {
				return fmt.Errorf("course[%d].participants[%d]: user_id must be positive", i, j)
			}
			if users[p.UserID] {
				return fmt.Errorf("course[%d].participants[%d]: duplicate user_id %d", i, j, p.UserID)
			}
			users[p.UserID] = true

			if p.Role != RoleStudent && p.Role != RoleInstructor {
				return fmt.Errorf("course[%d].participants[%d]: invalid role %q", i, j, p.Role)
			}
			if p.CurrentExercise != 0 && !own[p.CurrentExercise] {
				return fmt.Errorf("course[%d].participants[%d]: current_exercise %d is not an exercise of the course", i, j, p.CurrentExercise)
			}
		}
	}

	return nil
}

// GetCourseByID returns course config by ID.
func (c *CoursesConfig) GetCourseByID(id int64) *CourseConfig {
	for i := range c.Courses {
		if c.Courses[i].ID == id {
			return &c.Courses[i]
		}
	}
	return nil
}

// String returns a summary of the configuration.
func (c *CoursesConfig) String() string {
	subscribed := 0
	participants := 0
	for _, course := range c.Courses {
		if course.Subscribed {
			subscribed++
		}
		participants += len(course.Participants)
	}
	return fmt.Sprintf("CoursesConfig: %d courses (%d subscribed), %d participants",
		len(c.Courses), subscribed, participants)
}
