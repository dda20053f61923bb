package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/edukit/gradebook/core/course"
)

type courseRepository struct {
	db *DB
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *DB) *courseRepository {
	return &courseRepository{db: db}
}

func (repo courseRepository) CreateCourse(_ context.Context, crs course.Course) (course.Course, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	repo.db.courseSeq++
	crs.ID = repo.db.courseSeq
	repo.db.courses[crs.ID] = courseRow{
		ID:          crs.ID,
		Title:       crs.Title,
		Description: crs.Description,
		TeacherID:   crs.Teacher.ID,
	}
	return crs, nil
}

func (repo courseRepository) GetCourseByID(_ context.Context, id int) (course.Course, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if row, ok := repo.db.courses[id]; ok {
		return repo.db.loadCourse(row), nil
	}
	return course.Course{}, course.ErrNotFound
}

func (repo courseRepository) GetCourseByTitle(_ context.Context, title string) (course.Course, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, row := range repo.db.courses {
		if row.Title == title {
			return repo.db.loadCourse(row), nil
		}
	}
	return course.Course{}, course.ErrNotFound
}

func (repo courseRepository) GetCoursesByTeacher(_ context.Context, teacherID int) ([]course.Course, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	courses := make([]course.Course, 0)
	for _, row := range repo.db.courses {
		if row.TeacherID == teacherID {
			courses = append(courses, repo.db.loadCourse(row))
		}
	}
	sort.Slice(courses, func(i, j int) bool { return courses[i].ID < courses[j].ID })
	return courses, nil
}

func (repo courseRepository) DeleteCourse(_ context.Context, id int) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	delete(repo.db.courses, id)
	// cascade: enrollments, their grades and the grades' history
	for enrID, enr := range repo.db.enrollments {
		if enr.CourseID != id {
			continue
		}
		delete(repo.db.enrollments, enrID)
		for gradeID, grade := range repo.db.grades {
			if grade.EnrollmentID != enrID {
				continue
			}
			delete(repo.db.grades, gradeID)
			kept := repo.db.history[:0]
			for _, rec := range repo.db.history {
				if rec.GradeID != gradeID {
					kept = append(kept, rec)
				}
			}
			repo.db.history = kept
		}
	}
	return nil
}

func (repo courseRepository) CreateEnrollment(_ context.Context, studentID, courseID int) (course.Enrollment, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, enr := range repo.db.enrollments {
		if enr.StudentID == studentID && enr.CourseID == courseID {
			return course.Enrollment{}, course.ErrEnrollmentExists
		}
	}

	repo.db.enrollmentSeq++
	enr := course.Enrollment{ID: repo.db.enrollmentSeq, StudentID: studentID, CourseID: courseID}
	repo.db.enrollments[enr.ID] = enr
	return enr, nil
}

func (repo courseRepository) GetEnrollment(_ context.Context, studentID, courseID int) (course.Enrollment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, enr := range repo.db.enrollments {
		if enr.StudentID == studentID && enr.CourseID == courseID {
			return enr, nil
		}
	}
	return course.Enrollment{}, course.ErrEnrollmentNotFound
}

func (repo courseRepository) GetEnrollmentsByStudent(_ context.Context, studentID int) ([]course.Enrollment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	enrollments := make([]course.Enrollment, 0)
	for _, enr := range repo.db.enrollments {
		if enr.StudentID != studentID {
			continue
		}
		if row, ok := repo.db.courses[enr.CourseID]; ok {
			enr.Course = repo.db.loadCourse(row)
		}
		enrollments = append(enrollments, enr)
	}
	sort.Slice(enrollments, func(i, j int) bool { return enrollments[i].ID < enrollments[j].ID })
	return enrollments, nil
}

func (repo courseRepository) GetEnrollmentsByCourse(_ context.Context, courseID int) ([]course.Enrollment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	enrollments := make([]course.Enrollment, 0)
	for _, enr := range repo.db.enrollments {
		if enr.CourseID != courseID {
			continue
		}
		enr.Student = repo.db.users[enr.StudentID]
		enrollments = append(enrollments, enr)
	}
	sort.Slice(enrollments, func(i, j int) bool { return enrollments[i].ID < enrollments[j].ID })
	return enrollments, nil
}

func (repo courseRepository) CreateGrade(_ context.Context, grade course.Grade) (course.Grade, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	return repo.insertGrade(grade), nil
}

func (repo courseRepository) CreateGrades(_ context.Context, grades []course.Grade) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, grade := range grades {
		repo.insertGrade(grade)
	}
	return nil
}

// insertGrade stores the grade and its Create audit record. Callers hold the lock.
func (repo courseRepository) insertGrade(grade course.Grade) course.Grade {
	repo.db.gradeSeq++
	grade.ID = repo.db.gradeSeq
	repo.db.grades[grade.ID] = grade
	repo.appendHistory(course.GradeHistory{
		GradeID:  grade.ID,
		Action:   course.ActionCreate,
		NewValue: null.IntFrom(grade.Value),
		Date:     grade.Date,
	})
	return grade
}

// appendHistory assigns the next history ID. Callers hold the lock.
func (repo courseRepository) appendHistory(rec course.GradeHistory) {
	repo.db.historySeq++
	rec.ID = repo.db.historySeq
	repo.db.history = append(repo.db.history, rec)
}

func (repo courseRepository) GetGradeByID(_ context.Context, id int) (course.Grade, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	grade, ok := repo.db.grades[id]
	if !ok {
		return course.Grade{}, course.ErrGradeNotFound
	}
	if enr, ok := repo.db.enrollments[grade.EnrollmentID]; ok {
		grade.CourseID = enr.CourseID
		grade.TeacherID = repo.db.courses[enr.CourseID].TeacherID
	}
	return grade, nil
}

func (repo courseRepository) UpdateGradeValue(_ context.Context, grade course.Grade, newValue int) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	stored, ok := repo.db.grades[grade.ID]
	if !ok {
		return course.ErrGradeNotFound
	}
	repo.appendHistory(course.GradeHistory{
		GradeID:  grade.ID,
		Action:   course.ActionUpdate,
		OldValue: null.IntFrom(stored.Value),
		NewValue: null.IntFrom(newValue),
		Date:     time.Now().UTC(),
	})
	stored.Value = newValue
	repo.db.grades[grade.ID] = stored
	return nil
}

func (repo courseRepository) SoftDeleteGrade(_ context.Context, grade course.Grade) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	stored, ok := repo.db.grades[grade.ID]
	if !ok {
		return course.ErrGradeNotFound
	}
	repo.appendHistory(course.GradeHistory{
		GradeID:  grade.ID,
		Action:   course.ActionDelete,
		OldValue: null.IntFrom(stored.Value),
		Date:     time.Now().UTC(),
	})
	stored.IsDeleted = true
	repo.db.grades[grade.ID] = stored
	return nil
}

func (repo courseRepository) GetGradesByEnrollment(_ context.Context, enrollmentID int, includeDeleted bool) ([]course.Grade, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	grades := make([]course.Grade, 0)
	for _, grade := range repo.db.grades {
		if grade.EnrollmentID != enrollmentID {
			continue
		}
		if grade.IsDeleted && !includeDeleted {
			continue
		}
		grades = append(grades, grade)
	}
	sort.Slice(grades, func(i, j int) bool { return grades[i].ID < grades[j].ID })
	return grades, nil
}

func (repo courseRepository) GetHistoryByStudent(_ context.Context, studentID int) ([]course.GradeHistory, error) {
	return repo.filterHistory(func(enr course.Enrollment) bool { return enr.StudentID == studentID }), nil
}

func (repo courseRepository) GetHistoryByTeacher(_ context.Context, teacherID int) ([]course.GradeHistory, error) {
	repo.db.mu.RLock()
	courseIDs := make(map[int]bool)
	for id, row := range repo.db.courses {
		if row.TeacherID == teacherID {
			courseIDs[id] = true
		}
	}
	repo.db.mu.RUnlock()
	return repo.filterHistory(func(enr course.Enrollment) bool { return courseIDs[enr.CourseID] }), nil
}

func (repo courseRepository) filterHistory(match func(course.Enrollment) bool) []course.GradeHistory {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	history := make([]course.GradeHistory, 0)
	for _, rec := range repo.db.history {
		grade, ok := repo.db.grades[rec.GradeID]
		if !ok {
			continue
		}
		if enr, ok := repo.db.enrollments[grade.EnrollmentID]; ok && match(enr) {
			history = append(history, rec)
		}
	}
	return history
}
