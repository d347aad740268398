package authsphere

import (
	"context"
	stderrors "errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
)

// FormSchemaService resolves the backend-owned dynamic registration form
// schema. Implemented by client.Client.
type FormSchemaService interface {
	FormFields(ctx context.Context) ([]FormFieldDescriptor, error)
}

// RegisterAuthRoutes mounts the public session routes: login, logout,
// self-service registration, and the unauthorized landing page. It returns
// the controller so callers can mount the admin routes behind a guard with
// RegisterAdminRoutes.
func RegisterAuthRoutes[T any](app router.Router[T], opts ...AuthControllerOption) *AuthController {
	controller := NewAuthController(opts...)

	app.
		Get(controller.Routes.Login, controller.LoginShow).
		SetName("sign-in.get")

	app.
		Post(controller.Routes.Login, controller.LoginPost).
		SetName("sign-in.post")

	app.Get(controller.Routes.Logout, controller.LogOut).SetName("sign-out.get")

	app.Get(controller.Routes.Register, controller.RegistrationShow).
		SetName("register.get")
	app.Post(controller.Routes.Register, controller.RegistrationCreate).
		SetName("register.post")

	app.Get(controller.Routes.Unauthorized, controller.UnauthorizedShow).
		SetName("unauthorized.get")

	return controller
}

// RegisterAdminRoutes mounts the administrative directory routes. The caller
// mounts them behind a capability guard requiring admin:access (see
// middleware/guard); the directory re-checks every operation regardless.
func RegisterAdminRoutes[T any](app router.Router[T], controller *AuthController) {
	app.Get(controller.Routes.Admin, controller.AdminShow).
		SetName("admin.get")
	app.Post(controller.Routes.Admin+"/users", controller.AdminRegister).
		SetName("admin.users.post")
	app.Post(controller.Routes.Admin+"/users/:id/delete", controller.AdminDelete).
		SetName("admin.users.delete")
	app.Post(controller.Routes.Admin+"/users/:id/anonymize", controller.AdminAnonymize).
		SetName("admin.users.anonymize")
	app.Post(controller.Routes.Admin+"/users/:id/roles", controller.AdminUpdateRoles).
		SetName("admin.users.roles")
}

type AuthControllerRoutes struct {
	Login        string
	Logout       string
	Register     string
	Admin        string
	Unauthorized string
}

type AuthControllerViews struct {
	Login        string
	Register     string
	Admin        string
	Unauthorized string
}

type AuthController struct {
	Debug        bool
	Logger       Logger
	Web          *WebSession
	Directory    *Directory
	Schema       FormSchemaService
	Routes       *AuthControllerRoutes
	Views        *AuthControllerViews
	ErrorHandler router.ErrorHandler
}

type AuthControllerOption func(*AuthController) *AuthController

// WithWebSession injects the session adapter, required.
func WithWebSession(web *WebSession) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Web = web
		return c
	}
}

// WithDirectory injects the admin directory, required for the admin routes.
func WithDirectory(directory *Directory) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Directory = directory
		return c
	}
}

// WithFormSchema injects the optional dynamic form schema source.
func WithFormSchema(schema FormSchemaService) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Schema = schema
		return c
	}
}

// WithControllerLogger overrides the controller logger.
func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger: defLogger{},
		Routes: &AuthControllerRoutes{
			Login:        "/login",
			Logout:       "/logout",
			Register:     "/register",
			Admin:        "/admin",
			Unauthorized: "/unauthorized",
		},
		Views: &AuthControllerViews{
			Login:        "login",
			Register:     "register",
			Admin:        "admin",
			Unauthorized: "unauthorized",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Web == nil {
		panic("Missing WebSession in auth controller...")
	}

	if c.ErrorHandler == nil {
		c.ErrorHandler = c.Web.ErrorHandler
	}

	return c
}

func (a *AuthController) LoginShow(ctx router.Context) error {
	return ctx.Render(a.Views.Login, router.ViewContext{
		"errors": nil,
		"record": nil,
	})
}

// LoginRequest payload
type LoginRequest struct {
	Username string `form:"username" json:"username"`
	Password string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Username,
			validation.Required,
			validation.Length(3, 50),
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

func (a *AuthController) LoginPost(ctx router.Context) error {
	payload := new(LoginRequest)
	errs := map[string]string{}

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.Login, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	if a.Debug {
		fmt.Println("======= AUTHSPHERE LOGIN ======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("===============================")
	}

	identity, err := a.Web.Login(ctx, Credentials{
		Username: payload.Username,
		Password: payload.Password,
	})
	if err != nil {
		errs["authentication"] = HumanizeError(err)
		return ctx.Render(a.Views.Login, router.ViewContext{
			"errors": errs,
			"record": payload,
		})
	}

	return ctx.Redirect(a.Web.LandingRoute(ctx, identity), router.StatusSeeOther)
}

func (a *AuthController) LogOut(ctx router.Context) error {
	a.Web.Logout(ctx)
	return ctx.Redirect("/", router.StatusTemporaryRedirect)
}

func (a *AuthController) UnauthorizedShow(ctx router.Context) error {
	return ctx.Render(a.Views.Unauthorized, router.ViewContext{
		"identity": a.Web.Session().CurrentIdentity(),
	})
}

func (a *AuthController) RegistrationShow(ctx router.Context) error {
	vc := router.ViewContext{
		"errors": map[string]string{},
		"record": RegisterUserMessage{},
	}

	if a.Schema != nil {
		fields, err := a.Schema.FormFields(ctx.Context())
		if err != nil {
			a.Logger.Error("form schema fetch: ", "error", err)
		} else {
			vc["fields"] = fields
		}
	}

	return ctx.Render(a.Views.Register, vc)
}

func (a *AuthController) RegistrationCreate(ctx router.Context) error {
	payload := new(RegisterUserMessage)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("register user parse payload: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.Register, router.ViewContext{
			"errors": map[string]string{"form": "Failed to parse form"},
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("register user validate payload: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.Register, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	handler := NewRegisterUserHandler(a.registrar())
	if err := handler.Execute(ctx.Context(), *payload); err != nil {
		a.Logger.Error("register user error: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  HumanizeError(err),
			"system_message": "Error registering user",
		}).Render(a.Views.Register, router.ViewContext{
			"record": payload,
			"errors": []string{HumanizeError(err)},
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Successful user registration",
	}).Redirect(a.Routes.Login, fiber.StatusSeeOther)
}

// AdminShow renders the directory dashboard: the user listing, the
// registration form, and the audit trail, fetched together.
func (a *AuthController) AdminShow(ctx router.Context) error {
	if err := a.Directory.Refresh(ctx.Context()); err != nil {
		a.Logger.Error("admin directory refresh: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  HumanizeError(err),
			"system_message": "Could not load the directory",
		}).Render(a.Views.Admin, router.ViewContext{
			"users": a.Directory.Users(),
			"logs":  a.Directory.AuditLog(),
		})
	}

	return ctx.Render(a.Views.Admin, router.ViewContext{
		"users": a.Directory.Users(),
		"logs":  a.Directory.AuditLog(),
	})
}

func (a *AuthController) AdminRegister(ctx router.Context) error {
	payload := new(RegisterUserMessage)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := a.Directory.RegisterUser(ctx.Context(), *payload); err != nil {
		return a.adminActionError(ctx, err)
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "User registered!",
	}).Redirect(a.Routes.Admin, fiber.StatusSeeOther)
}

// destructiveActionPayload carries the explicit confirmation checkbox the
// admin form submits alongside delete and anonymize requests.
type destructiveActionPayload struct {
	Confirmed bool `form:"confirmed" json:"confirmed"`
}

func (a *AuthController) AdminDelete(ctx router.Context) error {
	payload := new(destructiveActionPayload)
	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	opCtx := ctx.Context()
	if payload.Confirmed {
		opCtx = WithConfirmation(opCtx)
	}

	if err := a.Directory.DeleteUser(opCtx, ctx.Param("id")); err != nil {
		return a.adminActionError(ctx, err)
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "User deleted",
	}).Redirect(a.Routes.Admin, fiber.StatusSeeOther)
}

func (a *AuthController) AdminAnonymize(ctx router.Context) error {
	payload := new(destructiveActionPayload)
	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	opCtx := ctx.Context()
	if payload.Confirmed {
		opCtx = WithConfirmation(opCtx)
	}

	if err := a.Directory.AnonymizeUser(opCtx, ctx.Param("id")); err != nil {
		return a.adminActionError(ctx, err)
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "User anonymized",
	}).Redirect(a.Routes.Admin, fiber.StatusSeeOther)
}

// rolesUpdatePayload carries the comma separated role labels the admin form
// submits.
type rolesUpdatePayload struct {
	Roles string `form:"roles" json:"roles"`
}

func (a *AuthController) AdminUpdateRoles(ctx router.Context) error {
	payload := new(rolesUpdatePayload)
	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	roles := ParseRoleList(payload.Roles)
	if err := a.Directory.UpdateRoles(ctx.Context(), ctx.Param("id"), roles); err != nil {
		return a.adminActionError(ctx, err)
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Roles updated!",
	}).Redirect(a.Routes.Admin, fiber.StatusSeeOther)
}

func (a *AuthController) adminActionError(ctx router.Context, err error) error {
	a.Logger.Error("admin action error: ", "error", err)
	return flash.WithError(ctx, router.ViewContext{
		"error_message":  HumanizeError(err),
		"system_message": "Operation failed",
	}).Redirect(a.Routes.Admin, fiber.StatusSeeOther)
}

// registrar resolves the backend surface for self-service registration. The
// directory's API carries it; embedders without an admin directory can still
// mount registration by providing one.
func (a *AuthController) registrar() Registrar {
	if a.Directory != nil {
		return a.Directory.api
	}
	panic("Missing Directory in auth controller; registration needs a backend surface")
}

// FormatValidationErrorToMap flattens an ozzo validation error into a
// field -> message map for view rendering.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	var verrs validation.Errors
	if stderrors.As(err, &verrs) {
		for field, ferr := range verrs {
			out[field] = HumanizeFieldError(FieldError{Field: field, Message: ferr.Error()})
		}
		return out
	}

	out["form"] = err.Error()
	return out
}
