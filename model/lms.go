package model

import "time"

type EntityKind string

const (
	EntityUser         EntityKind = "user"
	EntityCourse       EntityKind = "course"
	EntityGroup        EntityKind = "group"
	EntityLearningPlan EntityKind = "learning_plan"
	EntitySession      EntityKind = "session"
)

// Entity is a directory record returned by LMS lookups.
type Entity struct {
	Kind  EntityKind `json:"kind"`
	ID    string     `json:"id"`
	Name  string     `json:"name"`
	Email string     `json:"email,omitempty"`
}

// Display returns the label shown to operators.
func (e Entity) Display() string {
	if e.Email != "" && e.Name != "" {
		return e.Name + " <" + e.Email + ">"
	}
	if e.Name != "" {
		return e.Name
	}
	if e.Email != "" {
		return e.Email
	}
	return "#" + e.ID
}

type EnrollOptions struct {
	Status   string     `json:"status,omitempty"`
	DueDate  *time.Time `json:"due_date,omitempty"`
	Priority string     `json:"priority,omitempty"`
}

type EnrollmentResult struct {
	Succeeded []string          `json:"succeeded"`
	Failed    map[string]string `json:"failed,omitempty"`
}

type Enrollment struct {
	CourseID   string     `json:"course_id"`
	CourseName string     `json:"course_name"`
	Status     string     `json:"status"`
	Progress   float64    `json:"progress"`
	EnrolledAt *time.Time `json:"enrolled_at,omitempty"`
	DueDate    *time.Time `json:"due_date,omitempty"`
}

type EnrollmentStats struct {
	CourseID   string  `json:"course_id"`
	CourseName string  `json:"course_name"`
	Enrolled   int     `json:"enrolled"`
	InProgress int     `json:"in_progress"`
	Completed  int     `json:"completed"`
	NotStarted int     `json:"not_started"`
	Completion float64 `json:"completion_rate"`
}
