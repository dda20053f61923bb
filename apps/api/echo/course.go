package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/edukit/gradebook/core"
	"github.com/edukit/gradebook/core/course"
	"github.com/edukit/gradebook/core/user"
)

type courseApi struct {
	svc      course.Service
	usrSvc   user.Service
	validate *validator.Validate
}

func registerCourseAPI(app *echo.Echo, jwt echo.MiddlewareFunc, svc course.Service, usrSvc user.Service, validate *validator.Validate) {
	api := courseApi{svc: svc, usrSvc: usrSvc, validate: validate}

	g := app.Group("/course", jwt)
	teacherOnly := roleMiddleware(usrSvc, user.RoleTeacher)

	g.POST("/create", api.create, teacherOnly)
	g.DELETE("/delete", api.destroy, teacherOnly)
	g.POST("/enroll", api.enroll, teacherOnly)
	g.POST("/findByTeacher", api.findByTeacher)
	g.POST("/findByStudent", api.findByStudent)
	g.POST("/getStudentsForCourse", api.getStudentsForCourse)
	g.POST("/getCourse", api.getCourse)
	g.POST("/addStudentGrade", api.addStudentGrade, teacherOnly)
	g.POST("/editStudentGrade", api.editStudentGrade, teacherOnly)
	g.POST("/deleteStudentGrade", api.deleteStudentGrade, teacherOnly)
	g.POST("/submitGrades", api.submitGrades, teacherOnly)
}

// Handlers

func (api *courseApi) create(ctx echo.Context) error {
	var data course.NewCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	crs, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, crs)
}

func (api *courseApi) destroy(ctx echo.Context) error {
	var data DestroyCourseRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to DestroyCourseRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.Destroy(ctx.Request().Context(), data.Title, data.TeacherEmail); err != nil {
		return errors.Wrap(err, "deleting course")
	}
	return ctx.JSON(http.StatusOK, MessageResponse{Message: "Course successfully deleted"})
}

func (api *courseApi) enroll(ctx echo.Context) error {
	var data EnrollRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EnrollRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.EnrollStudent(ctx.Request().Context(), data.CourseTitle, data.StudentEmail, data.TeacherEmail); err != nil {
		return errors.Wrap(err, "enrolling student")
	}
	return ctx.JSON(http.StatusOK, MessageResponse{Message: "Student successfully enrolled"})
}

func (api *courseApi) findByTeacher(ctx echo.Context) error {
	var data TeacherEmailRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to TeacherEmailRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	courses, err := api.svc.FindByTeacher(ctx.Request().Context(), data.TeacherEmail)
	if err != nil {
		return errors.Wrap(err, "querying courses by teacher")
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *courseApi) findByStudent(ctx echo.Context) error {
	var data StudentEmailRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StudentEmailRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	courses, err := api.svc.FindByStudent(ctx.Request().Context(), data.StudentEmail)
	if err != nil {
		return errors.Wrap(err, "querying courses by student")
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *courseApi) getStudentsForCourse(ctx echo.Context) error {
	var data CourseTitleRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CourseTitleRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	students, err := api.svc.GetStudentsForCourse(ctx.Request().Context(), data.CourseTitle)
	if err != nil {
		return errors.Wrap(err, "querying students for course")
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *courseApi) getCourse(ctx echo.Context) error {
	var data CourseIDRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CourseIDRequest")
	}
	if err := api.validate.Struct(&data); err != nil {
		return err
	}

	caller, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}

	page, err := api.svc.GetCourse(ctx.Request().Context(), data.ID, caller)
	if err != nil {
		return errors.Wrap(err, "getting course")
	}
	return ctx.JSON(http.StatusOK, page)
}

func (api *courseApi) addStudentGrade(ctx echo.Context) error {
	var data AddGradeRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AddGradeRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	teacher, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}

	grade, err := api.svc.AddStudentGrade(ctx.Request().Context(), data.CourseID, data.StudentEmail, data.Grade, teacher)
	if err != nil {
		return errors.Wrap(err, "adding grade")
	}
	return ctx.JSON(http.StatusCreated, grade)
}

func (api *courseApi) editStudentGrade(ctx echo.Context) error {
	var data EditGradeRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EditGradeRequest")
	}
	if err := api.validate.Struct(&data); err != nil {
		return err
	}

	teacher, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}

	if err := api.svc.EditStudentGrade(ctx.Request().Context(), data.ID, data.Grade, teacher); err != nil {
		return errors.Wrap(err, "editing grade")
	}
	return ctx.JSON(http.StatusOK, true)
}

func (api *courseApi) deleteStudentGrade(ctx echo.Context) error {
	var data GradeIDRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GradeIDRequest")
	}
	if err := api.validate.Struct(&data); err != nil {
		return err
	}

	teacher, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}

	if err := api.svc.DeleteStudentGrade(ctx.Request().Context(), data.ID, teacher); err != nil {
		return errors.Wrap(err, "deleting grade")
	}
	return ctx.JSON(http.StatusOK, true)
}

func (api *courseApi) submitGrades(ctx echo.Context) error {
	var data SubmitGradesRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SubmitGradesRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	teacher, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}

	if err := api.svc.SubmitGrades(ctx.Request().Context(), data.CourseID, data.Grades, teacher); err != nil {
		return errors.Wrap(err, "submitting grades")
	}
	return ctx.JSON(http.StatusOK, MessageResponse{Message: "Grades successfully submitted"})
}

// Bindings

type (
	DestroyCourseRequest struct {
		Title        string `json:"title" validate:"required"`
		TeacherEmail string `json:"teacherEmail" validate:"required,email"`
	}

	EnrollRequest struct {
		CourseTitle  string `json:"courseTitle" validate:"required"`
		StudentEmail string `json:"studentEmail" validate:"required,email"`
		TeacherEmail string `json:"teacherEmail" validate:"required,email"`
	}

	TeacherEmailRequest struct {
		TeacherEmail string `json:"teacherEmail" validate:"required,email"`
	}

	StudentEmailRequest struct {
		StudentEmail string `json:"studentEmail" validate:"required,email"`
	}

	CourseTitleRequest struct {
		CourseTitle string `json:"courseTitle" validate:"required"`
	}

	CourseIDRequest struct {
		ID int `json:"id" validate:"required"`
	}

	AddGradeRequest struct {
		CourseID     int    `json:"courseId" validate:"required"`
		StudentEmail string `json:"studentEmail" validate:"required,email"`
		Grade        int    `json:"grade" validate:"required,min=1,max=10"`
	}

	EditGradeRequest struct {
		ID    int `json:"id" validate:"required"`
		Grade int `json:"grade" validate:"required,min=1,max=10"`
	}

	GradeIDRequest struct {
		ID int `json:"id" validate:"required"`
	}

	SubmitGradesRequest struct {
		CourseID int                 `json:"courseId" validate:"required"`
		Grades   []course.GradeEntry `json:"grades" validate:"required,min=1,dive"`
	}
)

func (dr *DestroyCourseRequest) Validate(validate *validator.Validate) error {
	dr.Title = core.CleanString(dr.Title)
	dr.TeacherEmail = core.CleanString(dr.TeacherEmail, true /* lower */)
	return validate.Struct(dr)
}

func (er *EnrollRequest) Validate(validate *validator.Validate) error {
	er.CourseTitle = core.CleanString(er.CourseTitle)
	er.StudentEmail = core.CleanString(er.StudentEmail, true /* lower */)
	er.TeacherEmail = core.CleanString(er.TeacherEmail, true /* lower */)
	return validate.Struct(er)
}

func (tr *TeacherEmailRequest) Validate(validate *validator.Validate) error {
	tr.TeacherEmail = core.CleanString(tr.TeacherEmail, true /* lower */)
	return validate.Struct(tr)
}

func (sr *StudentEmailRequest) Validate(validate *validator.Validate) error {
	sr.StudentEmail = core.CleanString(sr.StudentEmail, true /* lower */)
	return validate.Struct(sr)
}

func (cr *CourseTitleRequest) Validate(validate *validator.Validate) error {
	cr.CourseTitle = core.CleanString(cr.CourseTitle)
	return validate.Struct(cr)
}

func (ar *AddGradeRequest) Validate(validate *validator.Validate) error {
	ar.StudentEmail = core.CleanString(ar.StudentEmail, true /* lower */)
	return validate.Struct(ar)
}

func (sr *SubmitGradesRequest) Validate(validate *validator.Validate) error {
	for i := range sr.Grades {
		sr.Grades[i].Email = core.CleanString(sr.Grades[i].Email, true /* lower */)
	}
	return validate.Struct(sr)
}
