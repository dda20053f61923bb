package course

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/edukit/gradebook/core"
	"github.com/edukit/gradebook/core/user"
)

// Grade audit actions.
const (
	ActionCreate = "Create"
	ActionUpdate = "Update"
	ActionDelete = "Delete"
)

type (
	// Course is owned by exactly one teacher. The teacher reference is nulled
	// when the owning account is deleted, so Teacher may be the zero User.
	Course struct {
		ID          int    `json:"id" db:"id"`
		Title       string `json:"title" db:"title"`
		Description string `json:"description" db:"description"`
		Teacher     user.User
	}

	// Enrollment links one student to one course. At most one Enrollment may
	// exist per (student, course) pair.
	Enrollment struct {
		ID        int `db:"id"`
		StudentID int `db:"student_id"`
		CourseID  int `db:"course_id"`

		// loaded relations, populated per query
		Student user.User
		Course  Course
	}

	// Grade is a single 1-10 score tied to one enrollment. Grades are never
	// hard-deleted: IsDeleted hides them from student-facing views while the
	// row stays behind for the audit trail.
	Grade struct {
		ID           int       `json:"id" db:"id"`
		EnrollmentID int       `json:"-" db:"student_course_id"`
		Date         time.Time `json:"date" db:"date"`
		Value        int       `json:"grade" db:"grade"`
		IsDeleted    bool      `json:"isDeleted" db:"is_deleted"`

		// denormalized ownership path, populated on load
		CourseID  int `json:"-" db:"course_id"`
		TeacherID int `json:"-" db:"teacher_id"`
	}

	// GradeHistory is one append-only audit record per grade mutation:
	// Create sets NewValue, Update sets both, Delete sets OldValue.
	GradeHistory struct {
		ID       int       `json:"id" db:"id"`
		GradeID  int       `json:"gradeId" db:"grade_id"`
		Action   string    `json:"action" db:"action"`
		OldValue null.Int  `json:"oldValue" db:"old_value"`
		NewValue null.Int  `json:"newValue" db:"new_value"`
		Date     time.Time `json:"date" db:"date"`
	}
)

// Projections returned to API clients. User data is always sanitized down to
// UserInfo so password hashes and internal IDs never leak.

type (
	UserInfo struct {
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
		Email     string `json:"email"`
		Role      string `json:"role"`
		Image     string `json:"image"`
	}

	GradeInfo struct {
		ID    int       `json:"id"`
		Date  time.Time `json:"date"`
		Grade int       `json:"grade"`
	}

	CourseInfo struct {
		ID          int         `json:"id"`
		Title       string      `json:"title"`
		Description string      `json:"description"`
		Teacher     UserInfo    `json:"teacher"`
		Grades      []GradeInfo `json:"grades,omitempty"`
	}

	StudentGrades struct {
		UserInfo
		Grades []GradeInfo `json:"grades"`
	}

	// CoursePage is the differential course view: the owning teacher receives
	// Students (every enrolled student with their grades); an enrolled student
	// receives only their own Grades.
	CoursePage struct {
		ID          int             `json:"id"`
		Title       string          `json:"title"`
		Description string          `json:"description"`
		Teacher     UserInfo        `json:"teacher"`
		Students    []StudentGrades `json:"students,omitempty"`
		Grades      []GradeInfo     `json:"grades,omitempty"`
	}
)

// NewUserInfo sanitizes a user for client consumption, applying the configured
// avatar placeholder when the user has none.
func NewUserInfo(usr user.User, defaultImage string) UserInfo {
	return UserInfo{
		FirstName: usr.FirstName,
		LastName:  usr.LastName,
		Email:     usr.Email,
		Role:      usr.Role,
		Image:     usr.ImageOrDefault(defaultImage),
	}
}

func NewGradeInfo(g Grade) GradeInfo {
	return GradeInfo{ID: g.ID, Date: g.Date, Grade: g.Value}
}

// NewCourse contains information needed to create a new Course.
type NewCourse struct {
	Title        string `json:"title" validate:"required"`
	Description  string `json:"description" validate:"required"`
	TeacherEmail string `json:"teacherEmail" validate:"required,email"`
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Title = core.CleanString(nc.Title)
	nc.Description = core.CleanString(nc.Description)
	nc.TeacherEmail = core.CleanString(nc.TeacherEmail, true /* lower */)
	return validate.Struct(nc)
}

// GradeEntry is one item of a batch grade submission.
type GradeEntry struct {
	Email string `json:"email" validate:"required,email"`
	Grade int    `json:"grade" validate:"required,min=1,max=10"`
}
