package authsphere_test

import (
	"context"
	"reflect"
	"testing"

	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	authsphere "github.com/authsphere/go-authsphere"
)

func testController(profile *MockProfileService, api *MockDirectoryAPI) *authsphere.AuthController {
	manager := authsphere.NewSessionManager(profile, &stubTokenStore{})
	web := authsphere.NewWebSession(manager, authsphere.ConfigOptions{})

	opts := []authsphere.AuthControllerOption{authsphere.WithWebSession(web)}
	if api != nil {
		directory := authsphere.NewDirectory(api, adminSession(), authsphere.ContextConfirmer{})
		opts = append(opts, authsphere.WithDirectory(directory))
	}
	return authsphere.NewAuthController(opts...)
}

func TestNewAuthControllerRequiresWebSession(t *testing.T) {
	assert.Panics(t, func() {
		authsphere.NewAuthController()
	})
}

func TestNewAuthControllerDefaults(t *testing.T) {
	controller := testController(new(MockProfileService), nil)

	assert.Equal(t, "/login", controller.Routes.Login)
	assert.Equal(t, "/logout", controller.Routes.Logout)
	assert.Equal(t, "/register", controller.Routes.Register)
	assert.Equal(t, "/admin", controller.Routes.Admin)
	assert.Equal(t, "/unauthorized", controller.Routes.Unauthorized)
	assert.Equal(t, "login", controller.Views.Login)
	assert.NotNil(t, controller.ErrorHandler)
}

func TestLoginShowRendersForm(t *testing.T) {
	controller := testController(new(MockProfileService), nil)

	ctx := new(MockContext)
	ctx.On("Render", "login", mock.Anything).Return(nil)

	assert.NoError(t, controller.LoginShow(ctx))
	ctx.AssertExpectations(t)
}

func TestLoginPostValidationFailureRerenders(t *testing.T) {
	controller := testController(new(MockProfileService), nil)

	ctx := new(MockContext)
	ctx.On("Bind", mock.Anything).Run(func(args mock.Arguments) {
		payload := args.Get(0).(*authsphere.LoginRequest)
		payload.Username = "ab"
		payload.Password = ""
	}).Return(nil)

	var rendered router.ViewContext
	ctx.On("Render", "login", mock.Anything).Run(func(args mock.Arguments) {
		rendered = args.Get(1).(router.ViewContext)
	}).Return(nil)

	assert.NoError(t, controller.LoginPost(ctx))

	validationMap, ok := rendered["validation"].(map[string]string)
	assert.True(t, ok)
	assert.Contains(t, validationMap, "username")
	assert.Contains(t, validationMap, "password")
}

func TestLoginPostRejectedCredentialsRerenders(t *testing.T) {
	profile := new(MockProfileService)
	profile.On("ExchangeCredentials", mock.Anything, "taylor", "wrong").
		Return("", authsphere.ErrInvalidCredentials)

	controller := testController(profile, nil)

	ctx := new(MockContext)
	ctx.On("Context").Return(context.Background())
	ctx.On("Bind", mock.Anything).Run(func(args mock.Arguments) {
		payload := args.Get(0).(*authsphere.LoginRequest)
		payload.Username = "taylor"
		payload.Password = "wrong"
	}).Return(nil)

	var rendered router.ViewContext
	ctx.On("Render", "login", mock.Anything).Run(func(args mock.Arguments) {
		rendered = args.Get(1).(router.ViewContext)
	}).Return(nil)

	assert.NoError(t, controller.LoginPost(ctx))

	errs, ok := rendered["errors"].(map[string]string)
	assert.True(t, ok)
	assert.Equal(t, "Invalid username or password.", errs["authentication"])
}

func TestLoginPostRedirectsAdminToAdminArea(t *testing.T) {
	profile := new(MockProfileService)
	profile.On("ExchangeCredentials", mock.Anything, "admin", "hunter22").Return("tok-1", nil)
	profile.On("LoadProfile", mock.Anything, "tok-1").Return(adminIdentity(), nil)

	controller := testController(profile, nil)

	ctx := new(MockContext)
	ctx.On("Context").Return(context.Background())
	ctx.On("Bind", mock.Anything).Run(func(args mock.Arguments) {
		payload := args.Get(0).(*authsphere.LoginRequest)
		payload.Username = "admin"
		payload.Password = "hunter22"
	}).Return(nil)
	ctx.On("Cookies", "rejected_route").Return("")
	ctx.On("Redirect", "/admin", []int{router.StatusSeeOther}).Return(nil)

	assert.NoError(t, controller.LoginPost(ctx))
	ctx.AssertExpectations(t)
}

func TestLogOutRedirectsHome(t *testing.T) {
	controller := testController(new(MockProfileService), nil)

	ctx := new(MockContext)
	ctx.On("Context").Return(context.Background())
	ctx.On("Redirect", "/", []int{router.StatusTemporaryRedirect}).Return(nil)

	assert.NoError(t, controller.LogOut(ctx))
	ctx.AssertExpectations(t)
}

func TestAdminDeleteWithoutConfirmationFlashesError(t *testing.T) {
	api := new(MockDirectoryAPI)
	controller := testController(new(MockProfileService), api)

	ctx := new(MockContext)
	ctx.On("Context").Return(context.Background())
	ctx.On("Bind", mock.Anything).Return(nil) // confirmed stays false
	ctx.On("Param", "id").Return(targetID)
	ctx.On("Cookie", mock.Anything).Return()
	ctx.On("Redirect", "/admin", []int{router.StatusSeeOther}).Return(nil)

	assert.NoError(t, controller.AdminDelete(ctx))
	api.AssertNotCalled(t, "DeleteUser", mock.Anything, mock.Anything)
	ctx.AssertExpectations(t)
}

func TestAdminDeleteConfirmed(t *testing.T) {
	api := new(MockDirectoryAPI)
	api.On("DeleteUser", mock.Anything, targetID).Return(nil).Once()
	api.On("ListUsers", mock.Anything).Return([]authsphere.Identity{}, nil).Once()
	api.On("ListAuditLog", mock.Anything).Return([]authsphere.AuditLogEntry{}, nil).Once()

	controller := testController(new(MockProfileService), api)

	ctx := new(MockContext)
	ctx.On("Context").Return(context.Background())
	ctx.On("Bind", mock.Anything).Run(func(args mock.Arguments) {
		reflect.ValueOf(args.Get(0)).Elem().FieldByName("Confirmed").SetBool(true)
	}).Return(nil)
	ctx.On("Param", "id").Return(targetID)
	ctx.On("Cookie", mock.Anything).Return()
	ctx.On("Redirect", "/admin", []int{router.StatusSeeOther}).Return(nil)

	assert.NoError(t, controller.AdminDelete(ctx))
	api.AssertExpectations(t)
}

func TestAdminUpdateRolesParsesList(t *testing.T) {
	api := new(MockDirectoryAPI)
	api.On("UpdateRoles", mock.Anything, targetID, []authsphere.Role{"admin", "user"}).
		Return(&authsphere.Identity{ID: targetID}, nil).Once()
	api.On("ListUsers", mock.Anything).Return([]authsphere.Identity{}, nil).Once()
	api.On("ListAuditLog", mock.Anything).Return([]authsphere.AuditLogEntry{}, nil).Once()

	controller := testController(new(MockProfileService), api)

	ctx := new(MockContext)
	ctx.On("Context").Return(context.Background())
	ctx.On("Bind", mock.Anything).Run(func(args mock.Arguments) {
		reflect.ValueOf(args.Get(0)).Elem().FieldByName("Roles").SetString("admin, user, admin:impersonate")
	}).Return(nil)
	ctx.On("Param", "id").Return(targetID)
	ctx.On("Cookie", mock.Anything).Return()
	ctx.On("Redirect", "/admin", []int{router.StatusSeeOther}).Return(nil)

	assert.NoError(t, controller.AdminUpdateRoles(ctx))
	api.AssertExpectations(t)
}

func TestFormatValidationErrorToMap(t *testing.T) {
	assert.Empty(t, authsphere.FormatValidationErrorToMap(nil))

	msg := authsphere.RegisterUserMessage{
		Username: "ab",
		Email:    "not-an-email",
		Password: "short",
	}
	out := authsphere.FormatValidationErrorToMap(msg.Validate())

	assert.Contains(t, out, "username")
	assert.Contains(t, out, "password")
	assert.Contains(t, out, "email")
	assert.Contains(t, out, "consent_lgpd")
	assert.Equal(t, "You must accept the data-processing consent to register.", out["consent_lgpd"])

	plain := authsphere.FormatValidationErrorToMap(assertableError("boom"))
	assert.Equal(t, "boom", plain["form"])
}

type assertableError string

func (e assertableError) Error() string { return string(e) }
