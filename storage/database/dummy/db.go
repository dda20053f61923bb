// Package dummydb provides in-memory implementations of the storage
// repositories for tests. Relational rules the real database enforces
// (unique enrollment pairs, delete cascades, append-only history) are
// reproduced here so service and API tests exercise the same semantics.
package dummydb

import (
	"sync"

	"github.com/edukit/gradebook/core/course"
	"github.com/edukit/gradebook/core/user"
)

type courseRow struct {
	ID          int
	Title       string
	Description string
	TeacherID   int
}

type DB struct {
	mu sync.RWMutex

	users       map[int]user.User
	courses     map[int]courseRow
	enrollments map[int]course.Enrollment
	grades      map[int]course.Grade
	history     []course.GradeHistory

	userSeq, courseSeq, enrollmentSeq, gradeSeq, historySeq int
}

func NewDB() *DB {
	return &DB{
		users:       make(map[int]user.User),
		courses:     make(map[int]courseRow),
		enrollments: make(map[int]course.Enrollment),
		grades:      make(map[int]course.Grade),
	}
}

// loadCourse materializes a stored row with its teacher. A course whose
// teacher account was deleted keeps a zero Teacher, like the SQL LEFT JOIN.
func (db *DB) loadCourse(row courseRow) course.Course {
	crs := course.Course{ID: row.ID, Title: row.Title, Description: row.Description}
	if teacher, ok := db.users[row.TeacherID]; ok {
		crs.Teacher = teacher
	}
	return crs
}
