package course

import (
	"context"
	"errors"
	"fmt"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/edukit/gradebook/core"
	"github.com/edukit/gradebook/core/user"
)

var (
	// errors
	ErrNotFound           = errors.New("course not found")
	ErrGradeNotFound      = errors.New("grade not found")
	ErrEnrollmentNotFound = errors.New("enrollment not found")
	ErrEnrollmentExists   = errors.New("student is already enrolled")
)

type (
	// Repository persists courses, enrollments, grades and the grade audit trail.
	// Audit records are append-only: every grade mutation writes its history row
	// in the same transaction, and no update/delete verb exists for history.
	Repository interface {
		CreateCourse(ctx context.Context, crs Course) (Course, error)
		GetCourseByID(ctx context.Context, id int) (Course, error)
		GetCourseByTitle(ctx context.Context, title string) (Course, error)
		GetCoursesByTeacher(ctx context.Context, teacherID int) ([]Course, error)
		// DeleteCourse cascades to the course's enrollments, their grades and history.
		DeleteCourse(ctx context.Context, id int) error

		// CreateEnrollment returns ErrEnrollmentExists for a duplicate (student, course) pair.
		CreateEnrollment(ctx context.Context, studentID, courseID int) (Enrollment, error)
		GetEnrollment(ctx context.Context, studentID, courseID int) (Enrollment, error)
		GetEnrollmentsByStudent(ctx context.Context, studentID int) ([]Enrollment, error) // Course + its Teacher loaded
		GetEnrollmentsByCourse(ctx context.Context, courseID int) ([]Enrollment, error)   // Student loaded

		CreateGrade(ctx context.Context, grade Grade) (Grade, error)           // + Create audit record
		CreateGrades(ctx context.Context, grades []Grade) error                // batch, all-or-nothing, + Create audit records
		GetGradeByID(ctx context.Context, id int) (Grade, error)               // ownership path (CourseID, TeacherID) loaded
		UpdateGradeValue(ctx context.Context, grade Grade, newValue int) error // + Update audit record
		SoftDeleteGrade(ctx context.Context, grade Grade) error                // + Delete audit record
		GetGradesByEnrollment(ctx context.Context, enrollmentID int, includeDeleted bool) ([]Grade, error)

		GetHistoryByStudent(ctx context.Context, studentID int) ([]GradeHistory, error)
		GetHistoryByTeacher(ctx context.Context, teacherID int) ([]GradeHistory, error)
	}

	Service interface {
		Create(ctx context.Context, nc NewCourse) (CourseInfo, error)
		Destroy(ctx context.Context, title, teacherEmail string) error
		EnrollStudent(ctx context.Context, courseTitle, studentEmail, teacherEmail string) error
		FindByTeacher(ctx context.Context, teacherEmail string) ([]CourseInfo, error)
		FindByStudent(ctx context.Context, studentEmail string) ([]CourseInfo, error)
		GetStudentsForCourse(ctx context.Context, courseTitle string) ([]UserInfo, error)
		GetCourse(ctx context.Context, id int, caller user.User) (CoursePage, error)
		AddStudentGrade(ctx context.Context, courseID int, studentEmail string, value int, teacher user.User) (Grade, error)
		EditStudentGrade(ctx context.Context, gradeID, newValue int, teacher user.User) error
		DeleteStudentGrade(ctx context.Context, gradeID int, teacher user.User) error
		SubmitGrades(ctx context.Context, courseID int, entries []GradeEntry, teacher user.User) error
		HistoryByStudent(ctx context.Context, studentEmail string) ([]GradeHistory, error)
		HistoryByTeacher(ctx context.Context, teacherEmail string) ([]GradeHistory, error)
	}

	service struct {
		repo         Repository
		usrRepo      user.Repository
		defaultImage string
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, usrRepo user.Repository, conf *core.Config) Service {
	return &service{
		repo:         repo,
		usrRepo:      usrRepo,
		defaultImage: conf.DefaultUserImage,
	}
}

func (svc *service) Create(ctx context.Context, nc NewCourse) (CourseInfo, error) {
	teacher, err := svc.getTeacher(ctx, nc.TeacherEmail)
	if err != nil {
		return CourseInfo{}, err
	}

	if _, err = svc.repo.GetCourseByTitle(ctx, nc.Title); err == nil {
		return CourseInfo{}, core.NewValidationError(fmt.Errorf("A course with the title %q already exists.", nc.Title))
	} else if pkgerrors.Cause(err) != ErrNotFound {
		return CourseInfo{}, pkgerrors.Wrap(err, "checking title uniqueness")
	}

	crs, err := svc.repo.CreateCourse(ctx, Course{Title: nc.Title, Description: nc.Description, Teacher: teacher})
	if err != nil {
		return CourseInfo{}, pkgerrors.Wrap(err, "creating course")
	}
	return svc.courseInfo(crs, nil), nil
}

func (svc *service) Destroy(ctx context.Context, title, teacherEmail string) error {
	crs, err := svc.getCourseByTitle(ctx, title)
	if err != nil {
		return err
	}
	if crs.Teacher.Email != teacherEmail {
		return core.NewValidationError(errors.New("You are not authorized to delete this course"))
	}
	return pkgerrors.Wrap(svc.repo.DeleteCourse(ctx, crs.ID), "deleting course")
}

func (svc *service) EnrollStudent(ctx context.Context, courseTitle, studentEmail, teacherEmail string) error {
	crs, err := svc.getCourseByTitle(ctx, courseTitle)
	if err != nil {
		return err
	}
	if crs.Teacher.Email != teacherEmail {
		return core.NewValidationError(errors.New("You are not authorized to enroll students in this course"))
	}

	student, err := svc.getStudent(ctx, studentEmail)
	if err != nil {
		return err
	}

	if _, err = svc.repo.CreateEnrollment(ctx, student.ID, crs.ID); err != nil {
		if pkgerrors.Cause(err) == ErrEnrollmentExists {
			return core.NewValidationError(fmt.Errorf("Student is already enrolled in %q", crs.Title))
		}
		return pkgerrors.Wrap(err, "creating enrollment")
	}
	return nil
}

func (svc *service) FindByTeacher(ctx context.Context, teacherEmail string) ([]CourseInfo, error) {
	teacher, err := svc.getTeacher(ctx, teacherEmail)
	if err != nil {
		return nil, err
	}

	courses, err := svc.repo.GetCoursesByTeacher(ctx, teacher.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "querying courses by teacher")
	}

	infos := make([]CourseInfo, 0, len(courses))
	for _, crs := range courses {
		infos = append(infos, svc.courseInfo(crs, nil))
	}
	return infos, nil
}

// FindByStudent returns the student's enrolled courses, each carrying the
// student's own non-deleted grades and a sanitized teacher summary.
func (svc *service) FindByStudent(ctx context.Context, studentEmail string) ([]CourseInfo, error) {
	student, err := svc.getStudent(ctx, studentEmail)
	if err != nil {
		return nil, err
	}

	enrollments, err := svc.repo.GetEnrollmentsByStudent(ctx, student.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "querying enrollments by student")
	}

	infos := make([]CourseInfo, 0, len(enrollments))
	for _, enr := range enrollments {
		grades, err := svc.gradeInfos(ctx, enr.ID)
		if err != nil {
			return nil, err
		}
		infos = append(infos, svc.courseInfo(enr.Course, grades))
	}
	return infos, nil
}

func (svc *service) GetStudentsForCourse(ctx context.Context, courseTitle string) ([]UserInfo, error) {
	crs, err := svc.getCourseByTitle(ctx, courseTitle)
	if err != nil {
		return nil, err
	}

	enrollments, err := svc.repo.GetEnrollmentsByCourse(ctx, crs.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "querying enrollments by course")
	}

	students := make([]UserInfo, 0, len(enrollments))
	for _, enr := range enrollments {
		students = append(students, NewUserInfo(enr.Student, svc.defaultImage))
	}
	return students, nil
}

// GetCourse applies the view rule: the owning teacher sees every enrolled
// student with their grades; an enrolled student sees only their own grades;
// anyone else is refused.
func (svc *service) GetCourse(ctx context.Context, id int, caller user.User) (CoursePage, error) {
	crs, err := svc.repo.GetCourseByID(ctx, id)
	if err != nil {
		if pkgerrors.Cause(err) == ErrNotFound {
			return CoursePage{}, core.NewNotFoundError(fmt.Sprintf("No course found with id: %d", id))
		}
		return CoursePage{}, pkgerrors.Wrap(err, "finding course by ID")
	}

	page := CoursePage{
		ID:          crs.ID,
		Title:       crs.Title,
		Description: crs.Description,
		Teacher:     NewUserInfo(crs.Teacher, svc.defaultImage),
	}

	if caller.IsTeacher() && caller.ID == crs.Teacher.ID {
		enrollments, err := svc.repo.GetEnrollmentsByCourse(ctx, crs.ID)
		if err != nil {
			return CoursePage{}, pkgerrors.Wrap(err, "querying enrollments by course")
		}
		page.Students = make([]StudentGrades, 0, len(enrollments))
		for _, enr := range enrollments {
			grades, err := svc.gradeInfos(ctx, enr.ID)
			if err != nil {
				return CoursePage{}, err
			}
			page.Students = append(page.Students, StudentGrades{
				UserInfo: NewUserInfo(enr.Student, svc.defaultImage),
				Grades:   grades,
			})
		}
		return page, nil
	}

	enr, err := svc.repo.GetEnrollment(ctx, caller.ID, crs.ID)
	if err != nil {
		if pkgerrors.Cause(err) == ErrEnrollmentNotFound {
			return CoursePage{}, core.NewValidationError(errors.New("You are not authorized to view this course"))
		}
		return CoursePage{}, pkgerrors.Wrap(err, "finding enrollment")
	}
	if page.Grades, err = svc.gradeInfos(ctx, enr.ID); err != nil {
		return CoursePage{}, err
	}
	return page, nil
}

func (svc *service) AddStudentGrade(ctx context.Context, courseID int, studentEmail string, value int, teacher user.User) (Grade, error) {
	enr, err := svc.getOwnedEnrollment(ctx, courseID, studentEmail, teacher, "add grades to")
	if err != nil {
		return Grade{}, err
	}

	grade, err := svc.repo.CreateGrade(ctx, Grade{
		EnrollmentID: enr.ID,
		Date:         time.Now().UTC(),
		Value:        value,
	})
	return grade, pkgerrors.Wrap(err, "creating grade")
}

func (svc *service) EditStudentGrade(ctx context.Context, gradeID, newValue int, teacher user.User) error {
	grade, err := svc.getOwnedGrade(ctx, gradeID, teacher, "edit")
	if err != nil {
		return err
	}
	return pkgerrors.Wrap(svc.repo.UpdateGradeValue(ctx, grade, newValue), "updating grade")
}

func (svc *service) DeleteStudentGrade(ctx context.Context, gradeID int, teacher user.User) error {
	grade, err := svc.getOwnedGrade(ctx, gradeID, teacher, "delete")
	if err != nil {
		return err
	}
	return pkgerrors.Wrap(svc.repo.SoftDeleteGrade(ctx, grade), "deleting grade")
}

// SubmitGrades is the batch form of AddStudentGrade. Every entry is resolved
// before anything is written and the whole batch commits in one transaction,
// so an unknown email leaves no partial state behind.
func (svc *service) SubmitGrades(ctx context.Context, courseID int, entries []GradeEntry, teacher user.User) error {
	grades := make([]Grade, 0, len(entries))
	now := time.Now().UTC()
	for _, entry := range entries {
		enr, err := svc.getOwnedEnrollment(ctx, courseID, entry.Email, teacher, "add grades to")
		if err != nil {
			return err
		}
		grades = append(grades, Grade{
			EnrollmentID: enr.ID,
			Date:         now,
			Value:        entry.Grade,
		})
	}
	return pkgerrors.Wrap(svc.repo.CreateGrades(ctx, grades), "creating grades")
}

// HistoryByStudent returns every audit record for grades of the student's
// enrollments. Soft-deleted grades are included: this is the audit trail.
func (svc *service) HistoryByStudent(ctx context.Context, studentEmail string) ([]GradeHistory, error) {
	student, err := svc.getStudent(ctx, studentEmail)
	if err != nil {
		return nil, err
	}
	history, err := svc.repo.GetHistoryByStudent(ctx, student.ID)
	return history, pkgerrors.Wrap(err, "querying grade history by student")
}

func (svc *service) HistoryByTeacher(ctx context.Context, teacherEmail string) ([]GradeHistory, error) {
	teacher, err := svc.getTeacher(ctx, teacherEmail)
	if err != nil {
		return nil, err
	}
	history, err := svc.repo.GetHistoryByTeacher(ctx, teacher.ID)
	return history, pkgerrors.Wrap(err, "querying grade history by teacher")
}

// helpers

func (svc *service) getTeacher(ctx context.Context, email string) (user.User, error) {
	teacher, err := svc.usrRepo.GetUserByEmailAndRole(ctx, core.CleanString(email, true /* lower */), user.RoleTeacher)
	if err != nil {
		if pkgerrors.Cause(err) == user.ErrNotFound {
			return user.User{}, core.NewNotFoundError(fmt.Sprintf("No teacher found with email: %s", email))
		}
		return user.User{}, pkgerrors.Wrap(err, "finding teacher by email")
	}
	return teacher, nil
}

func (svc *service) getStudent(ctx context.Context, email string) (user.User, error) {
	student, err := svc.usrRepo.GetUserByEmailAndRole(ctx, core.CleanString(email, true /* lower */), user.RoleStudent)
	if err != nil {
		if pkgerrors.Cause(err) == user.ErrNotFound {
			return user.User{}, core.NewNotFoundError(fmt.Sprintf("No student found with email: %s", email))
		}
		return user.User{}, pkgerrors.Wrap(err, "finding student by email")
	}
	return student, nil
}

func (svc *service) getCourseByTitle(ctx context.Context, title string) (Course, error) {
	crs, err := svc.repo.GetCourseByTitle(ctx, core.CleanString(title))
	if err != nil {
		if pkgerrors.Cause(err) == ErrNotFound {
			return Course{}, core.NewNotFoundError(fmt.Sprintf("No course found with title: %q", title))
		}
		return Course{}, pkgerrors.Wrap(err, "finding course by title")
	}
	return crs, nil
}

// getOwnedEnrollment resolves a course-scoped grade mutation: the course must
// exist, the caller must own it, and the student must be enrolled in it.
func (svc *service) getOwnedEnrollment(ctx context.Context, courseID int, studentEmail string, teacher user.User, verb string) (Enrollment, error) {
	crs, err := svc.repo.GetCourseByID(ctx, courseID)
	if err != nil {
		if pkgerrors.Cause(err) == ErrNotFound {
			return Enrollment{}, core.NewNotFoundError(fmt.Sprintf("No course found with id: %d", courseID))
		}
		return Enrollment{}, pkgerrors.Wrap(err, "finding course by ID")
	}
	if crs.Teacher.ID != teacher.ID {
		return Enrollment{}, core.NewValidationError(fmt.Errorf("You are not authorized to %s this course", verb))
	}

	student, err := svc.getStudent(ctx, studentEmail)
	if err != nil {
		return Enrollment{}, err
	}

	enr, err := svc.repo.GetEnrollment(ctx, student.ID, crs.ID)
	if err != nil {
		if pkgerrors.Cause(err) == ErrEnrollmentNotFound {
			return Enrollment{}, core.NewNotFoundError(fmt.Sprintf("Student %s is not enrolled in this course", studentEmail))
		}
		return Enrollment{}, pkgerrors.Wrap(err, "finding enrollment")
	}
	return enr, nil
}

func (svc *service) getOwnedGrade(ctx context.Context, gradeID int, teacher user.User, verb string) (Grade, error) {
	grade, err := svc.repo.GetGradeByID(ctx, gradeID)
	if err != nil {
		if pkgerrors.Cause(err) == ErrGradeNotFound {
			return Grade{}, core.NewNotFoundError(fmt.Sprintf("No grade found with id: %d", gradeID))
		}
		return Grade{}, pkgerrors.Wrap(err, "finding grade by ID")
	}
	if grade.TeacherID != teacher.ID {
		return Grade{}, core.NewValidationError(fmt.Errorf("You are not authorized to %s this grade", verb))
	}
	return grade, nil
}

func (svc *service) courseInfo(crs Course, grades []GradeInfo) CourseInfo {
	return CourseInfo{
		ID:          crs.ID,
		Title:       crs.Title,
		Description: crs.Description,
		Teacher:     NewUserInfo(crs.Teacher, svc.defaultImage),
		Grades:      grades,
	}
}

// gradeInfos returns the enrollment's non-deleted grades as projections.
func (svc *service) gradeInfos(ctx context.Context, enrollmentID int) ([]GradeInfo, error) {
	grades, err := svc.repo.GetGradesByEnrollment(ctx, enrollmentID, false /* includeDeleted */)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "querying grades by enrollment")
	}
	infos := make([]GradeInfo, 0, len(grades))
	for _, g := range grades {
		infos = append(infos, NewGradeInfo(g))
	}
	return infos, nil
}
