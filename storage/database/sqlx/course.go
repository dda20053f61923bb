package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/edukit/gradebook/core/course"
	"github.com/edukit/gradebook/core/user"
)

const pqUniqueViolation = "23505"

type courseRepository struct {
	db *sqlx.DB
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *sqlx.DB) *courseRepository {
	return &courseRepository{db: db}
}

// courseRow flattens a course joined with its (possibly deleted) teacher.
type courseRow struct {
	ID          int         `db:"id"`
	Title       string      `db:"title"`
	Description string      `db:"description"`
	TeacherID   null.Int    `db:"teacher_id"`
	TEmail      null.String `db:"teacher_email"`
	TFirstName  null.String `db:"teacher_first_name"`
	TLastName   null.String `db:"teacher_last_name"`
	TRole       null.String `db:"teacher_role"`
	TImage      null.String `db:"teacher_image"`
}

func (r courseRow) toCourse() course.Course {
	return course.Course{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Teacher: user.User{
			ID:        r.TeacherID.Int,
			Email:     r.TEmail.String,
			FirstName: r.TFirstName.String,
			LastName:  r.TLastName.String,
			Role:      r.TRole.String,
			Image:     r.TImage.String,
		},
	}
}

const courseSelect = `
	SELECT c.id, c.title, c.description, c.teacher_id,
	       u.email AS teacher_email, u.first_name AS teacher_first_name,
	       u.last_name AS teacher_last_name, u.role AS teacher_role, u.image AS teacher_image
	FROM course c
	LEFT JOIN "user" u ON u.id = c.teacher_id`

func (repo courseRepository) CreateCourse(ctx context.Context, crs course.Course) (course.Course, error) {
	err := repo.db.QueryRowContext(ctx,
		`INSERT INTO course (title, description, teacher_id) VALUES ($1, $2, $3) RETURNING id`,
		crs.Title, crs.Description, crs.Teacher.ID,
	).Scan(&crs.ID)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	return crs, nil
}

func (repo courseRepository) GetCourseByID(ctx context.Context, id int) (course.Course, error) {
	var row courseRow
	if err := repo.db.GetContext(ctx, &row, courseSelect+` WHERE c.id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return course.Course{}, course.ErrNotFound
		}
		return course.Course{}, errors.Wrap(err, "finding course by ID")
	}
	return row.toCourse(), nil
}

func (repo courseRepository) GetCourseByTitle(ctx context.Context, title string) (course.Course, error) {
	var row courseRow
	if err := repo.db.GetContext(ctx, &row, courseSelect+` WHERE c.title = $1`, title); err != nil {
		if err == sql.ErrNoRows {
			return course.Course{}, course.ErrNotFound
		}
		return course.Course{}, errors.Wrap(err, "finding course by title")
	}
	return row.toCourse(), nil
}

func (repo courseRepository) GetCoursesByTeacher(ctx context.Context, teacherID int) ([]course.Course, error) {
	var rows []courseRow
	if err := repo.db.SelectContext(ctx, &rows, courseSelect+` WHERE c.teacher_id = $1 ORDER BY c.id`, teacherID); err != nil {
		return nil, errors.Wrap(err, "querying courses by teacher")
	}
	courses := make([]course.Course, 0, len(rows))
	for _, row := range rows {
		courses = append(courses, row.toCourse())
	}
	return courses, nil
}

func (repo courseRepository) DeleteCourse(ctx context.Context, id int) error {
	// enrollments, grades and history go with it (ON DELETE CASCADE)
	if _, err := repo.db.ExecContext(ctx, `DELETE FROM course WHERE id = $1`, id); err != nil {
		return errors.Wrap(err, "deleting course")
	}
	return nil
}

func (repo courseRepository) CreateEnrollment(ctx context.Context, studentID, courseID int) (course.Enrollment, error) {
	enr := course.Enrollment{StudentID: studentID, CourseID: courseID}
	err := repo.db.QueryRowContext(ctx,
		`INSERT INTO student_course (student_id, course_id) VALUES ($1, $2) RETURNING id`,
		studentID, courseID,
	).Scan(&enr.ID)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == pqUniqueViolation {
			return course.Enrollment{}, course.ErrEnrollmentExists
		}
		return course.Enrollment{}, errors.Wrap(err, "inserting enrollment")
	}
	return enr, nil
}

func (repo courseRepository) GetEnrollment(ctx context.Context, studentID, courseID int) (course.Enrollment, error) {
	var enr course.Enrollment
	err := repo.db.GetContext(ctx, &enr,
		`SELECT id, student_id, course_id FROM student_course WHERE student_id = $1 AND course_id = $2`,
		studentID, courseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return course.Enrollment{}, course.ErrEnrollmentNotFound
		}
		return course.Enrollment{}, errors.Wrap(err, "finding enrollment")
	}
	return enr, nil
}

// enrollmentCourseRow flattens an enrollment joined with its course and the course's teacher.
type enrollmentCourseRow struct {
	ID        int       `db:"id"`
	StudentID int       `db:"student_id"`
	CourseID  int       `db:"course_id"`
	Course    courseRow `db:"course"`
}

func (repo courseRepository) GetEnrollmentsByStudent(ctx context.Context, studentID int) ([]course.Enrollment, error) {
	var rows []enrollmentCourseRow
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT sc.id, sc.student_id, sc.course_id,
		       c.id AS "course.id", c.title AS "course.title", c.description AS "course.description",
		       c.teacher_id AS "course.teacher_id",
		       u.email AS "course.teacher_email", u.first_name AS "course.teacher_first_name",
		       u.last_name AS "course.teacher_last_name", u.role AS "course.teacher_role",
		       u.image AS "course.teacher_image"
		FROM student_course sc
		JOIN course c ON c.id = sc.course_id
		LEFT JOIN "user" u ON u.id = c.teacher_id
		WHERE sc.student_id = $1
		ORDER BY sc.id`, studentID)
	if err != nil {
		return nil, errors.Wrap(err, "querying enrollments by student")
	}

	enrollments := make([]course.Enrollment, 0, len(rows))
	for _, row := range rows {
		enrollments = append(enrollments, course.Enrollment{
			ID:        row.ID,
			StudentID: row.StudentID,
			CourseID:  row.CourseID,
			Course:    row.Course.toCourse(),
		})
	}
	return enrollments, nil
}

// enrollmentStudentRow flattens an enrollment joined with its student.
type enrollmentStudentRow struct {
	ID        int       `db:"id"`
	StudentID int       `db:"student_id"`
	CourseID  int       `db:"course_id"`
	Student   user.User `db:"student"`
}

func (repo courseRepository) GetEnrollmentsByCourse(ctx context.Context, courseID int) ([]course.Enrollment, error) {
	var rows []enrollmentStudentRow
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT sc.id, sc.student_id, sc.course_id,
		       u.id AS "student.id", u.email AS "student.email", u.first_name AS "student.first_name",
		       u.last_name AS "student.last_name", u.role AS "student.role", u.image AS "student.image",
		       u.password_hash AS "student.password_hash"
		FROM student_course sc
		JOIN "user" u ON u.id = sc.student_id
		WHERE sc.course_id = $1
		ORDER BY sc.id`, courseID)
	if err != nil {
		return nil, errors.Wrap(err, "querying enrollments by course")
	}

	enrollments := make([]course.Enrollment, 0, len(rows))
	for _, row := range rows {
		enrollments = append(enrollments, course.Enrollment{
			ID:        row.ID,
			StudentID: row.StudentID,
			CourseID:  row.CourseID,
			Student:   row.Student,
		})
	}
	return enrollments, nil
}

func (repo courseRepository) CreateGrade(ctx context.Context, grade course.Grade) (course.Grade, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return course.Grade{}, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if grade, err = insertGrade(ctx, tx, grade); err != nil {
		return course.Grade{}, err
	}
	return grade, errors.Wrap(tx.Commit(), "committing grade")
}

func (repo courseRepository) CreateGrades(ctx context.Context, grades []course.Grade) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	for _, grade := range grades {
		if _, err = insertGrade(ctx, tx, grade); err != nil {
			return err
		}
	}
	return errors.Wrap(tx.Commit(), "committing grades")
}

// insertGrade writes the grade row and its Create audit record in the caller's transaction.
func insertGrade(ctx context.Context, tx *sqlx.Tx, grade course.Grade) (course.Grade, error) {
	err := tx.QueryRowContext(ctx,
		`INSERT INTO student_course_grade (student_course_id, date, grade) VALUES ($1, $2, $3) RETURNING id`,
		grade.EnrollmentID, grade.Date, grade.Value,
	).Scan(&grade.ID)
	if err != nil {
		return course.Grade{}, errors.Wrap(err, "inserting grade")
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO grade_history (grade_id, action, new_value, date) VALUES ($1, $2, $3, $4)`,
		grade.ID, course.ActionCreate, grade.Value, grade.Date)
	if err != nil {
		return course.Grade{}, errors.Wrap(err, "inserting grade history")
	}
	return grade, nil
}

func (repo courseRepository) GetGradeByID(ctx context.Context, id int) (course.Grade, error) {
	var grade course.Grade
	err := repo.db.GetContext(ctx, &grade, `
		SELECT g.id, g.student_course_id, g.date, g.grade, g.is_deleted,
		       sc.course_id, COALESCE(c.teacher_id, 0) AS teacher_id
		FROM student_course_grade g
		JOIN student_course sc ON sc.id = g.student_course_id
		JOIN course c ON c.id = sc.course_id
		WHERE g.id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return course.Grade{}, course.ErrGradeNotFound
		}
		return course.Grade{}, errors.Wrap(err, "finding grade by ID")
	}
	return grade, nil
}

func (repo courseRepository) UpdateGradeValue(ctx context.Context, grade course.Grade, newValue int) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	// audit record captures old and new values before the mutation
	_, err = tx.ExecContext(ctx,
		`INSERT INTO grade_history (grade_id, action, old_value, new_value, date) VALUES ($1, $2, $3, $4, now())`,
		grade.ID, course.ActionUpdate, grade.Value, newValue)
	if err != nil {
		return errors.Wrap(err, "inserting grade history")
	}

	if _, err = tx.ExecContext(ctx, `UPDATE student_course_grade SET grade = $1 WHERE id = $2`, newValue, grade.ID); err != nil {
		return errors.Wrap(err, "updating grade")
	}
	return errors.Wrap(tx.Commit(), "committing grade update")
}

func (repo courseRepository) SoftDeleteGrade(ctx context.Context, grade course.Grade) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO grade_history (grade_id, action, old_value, date) VALUES ($1, $2, $3, now())`,
		grade.ID, course.ActionDelete, grade.Value)
	if err != nil {
		return errors.Wrap(err, "inserting grade history")
	}

	if _, err = tx.ExecContext(ctx, `UPDATE student_course_grade SET is_deleted = true WHERE id = $1`, grade.ID); err != nil {
		return errors.Wrap(err, "deleting grade")
	}
	return errors.Wrap(tx.Commit(), "committing grade delete")
}

func (repo courseRepository) GetGradesByEnrollment(ctx context.Context, enrollmentID int, includeDeleted bool) ([]course.Grade, error) {
	q := `SELECT id, student_course_id, date, grade, is_deleted FROM student_course_grade WHERE student_course_id = $1`
	if !includeDeleted {
		q += ` AND NOT is_deleted`
	}
	var grades []course.Grade
	if err := repo.db.SelectContext(ctx, &grades, q+` ORDER BY date, id`, enrollmentID); err != nil {
		return nil, errors.Wrap(err, "querying grades by enrollment")
	}
	return grades, nil
}

const historySelect = `SELECT h.id, h.grade_id, h.action, h.old_value, h.new_value, h.date FROM grade_history h
	JOIN student_course_grade g ON g.id = h.grade_id
	JOIN student_course sc ON sc.id = g.student_course_id`

func (repo courseRepository) GetHistoryByStudent(ctx context.Context, studentID int) ([]course.GradeHistory, error) {
	var history []course.GradeHistory
	err := repo.db.SelectContext(ctx, &history, historySelect+` WHERE sc.student_id = $1 ORDER BY h.date, h.id`, studentID)
	if err != nil {
		return nil, errors.Wrap(err, "querying grade history by student")
	}
	return history, nil
}

func (repo courseRepository) GetHistoryByTeacher(ctx context.Context, teacherID int) ([]course.GradeHistory, error) {
	var history []course.GradeHistory
	err := repo.db.SelectContext(ctx, &history, historySelect+`
		JOIN course c ON c.id = sc.course_id
		WHERE c.teacher_id = $1 ORDER BY h.date, h.id`, teacherID)
	if err != nil {
		return nil, errors.Wrap(err, "querying grade history by teacher")
	}
	return history, nil
}
