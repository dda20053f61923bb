package echoapi

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/edukit/gradebook/core"
	"github.com/edukit/gradebook/core/user"
)

const forgotPasswordRatePerMin = 3

type userApi struct {
	svc      user.Service
	validate *validator.Validate
}

func registerUserAPI(app *echo.Echo, jwt echo.MiddlewareFunc, svc user.Service, validate *validator.Validate) {
	api := userApi{svc: svc, validate: validate}

	g := app.Group("/auth")

	// un-authed endpoints
	g.POST("/register", api.register)
	g.POST("/login", api.login)
	g.POST("/forgot-password", api.forgotPassword, rateLimitMiddleware(forgotPasswordRatePerMin))
	g.POST("/reset-password", api.resetPassword)

	// authed endpoints
	g.GET("/me", api.me, jwt)
	g.PUT("/change-email", api.changeEmail, jwt)

	// kept un-authed for parity with the original clients
	app.PUT("/image/change-image", api.changeImage)
}

// Handlers

func (api *userApi) register(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if _, err := api.svc.Register(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "registering user")
	}
	return ctx.JSON(http.StatusCreated, MessageResponse{Message: "You are now registered"})
}

func (api *userApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.svc.Authenticate(ctx.Request().Context(), data.Email, data.Password)
	if err != nil {
		if errors.Cause(err) == user.ErrInvalidCredentials {
			return echo.NewHTTPError(http.StatusUnauthorized, user.ErrInvalidCredentials.Error())
		}
		return errors.Wrap(err, "authenticating")
	}

	token, err := GenerateToken(usr)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, TokenResponse{Token: token})
}

func (api *userApi) me(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, MeResponse{
		FirstName: usr.FirstName,
		LastName:  usr.LastName,
		Email:     usr.Email,
		Role:      usr.Role,
	})
}

func (api *userApi) forgotPassword(ctx echo.Context) error {
	var data EmailRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EmailRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.RequestPasswordReset(ctx.Request().Context(), data.Email); err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return echo.NewHTTPError(http.StatusUnauthorized, fmt.Sprintf("No user found for email: %s", data.Email))
		}
		return errors.Wrap(err, "requesting password reset")
	}
	return ctx.JSON(http.StatusOK, MessageResponse{Message: "A confirmation link has been sent to your email."})
}

func (api *userApi) resetPassword(ctx echo.Context) error {
	var data ResetPasswordRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetPasswordRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.ResetPassword(ctx.Request().Context(), data.Token, data.Password); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, MessageResponse{Message: "Password changed"})
}

func (api *userApi) changeEmail(ctx echo.Context) error {
	var data ChangeEmailRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ChangeEmailRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.svc.ChangeEmail(ctx.Request().Context(), data.Email, data.NewEmail)
	if err != nil {
		return errors.Wrap(err, "changing email")
	}

	// the token embeds nothing but the ID; a fresh one simply renews the session
	token, err := GenerateToken(usr)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, TokenMessageResponse{Message: "Email changed", Token: token})
}

func (api *userApi) changeImage(ctx echo.Context) error {
	var data ChangeImageRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ChangeImageRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.svc.ChangeImage(ctx.Request().Context(), data.Email, data.Image)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return echo.NewHTTPError(http.StatusUnauthorized, fmt.Sprintf("No user found for email: %s", data.Email))
		}
		return errors.Wrap(err, "changing image")
	}

	token, err := GenerateToken(usr)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, TokenMessageResponse{Message: "Image changed", Token: token})
}

// Bindings

type (
	LoginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	EmailRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	ResetPasswordRequest struct {
		Token    string `json:"token" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	ChangeEmailRequest struct {
		Email    string `json:"email" validate:"required,email"`
		NewEmail string `json:"newEmail" validate:"required,email"`
	}

	ChangeImageRequest struct {
		Email string `json:"email" validate:"required,email"`
		Image string `json:"image" validate:"required"`
	}

	MeResponse struct {
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
		Email     string `json:"email"`
		Role      string `json:"role"`
	}

	MessageResponse struct {
		Message string `json:"message"`
	}

	TokenResponse struct {
		Token string `json:"token"`
	}

	TokenMessageResponse struct {
		Message string `json:"message"`
		Token   string `json:"token"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Email = core.CleanString(lr.Email, true /* lower */)
	return validate.Struct(lr)
}

func (er *EmailRequest) Validate(validate *validator.Validate) error {
	er.Email = core.CleanString(er.Email, true /* lower */)
	return validate.Struct(er)
}

func (rr *ResetPasswordRequest) Validate(validate *validator.Validate) error {
	rr.Token = core.CleanString(rr.Token)
	return validate.Struct(rr)
}

func (cr *ChangeEmailRequest) Validate(validate *validator.Validate) error {
	cr.Email = core.CleanString(cr.Email, true /* lower */)
	cr.NewEmail = core.CleanString(cr.NewEmail, true /* lower */)
	return validate.Struct(cr)
}

func (cr *ChangeImageRequest) Validate(validate *validator.Validate) error {
	cr.Email = core.CleanString(cr.Email, true /* lower */)
	return validate.Struct(cr)
}
