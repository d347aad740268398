package authsphere_test

import (
	"context"
	"testing"

	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	authsphere "github.com/authsphere/go-authsphere"
)

func newWebSession(store *stubTokenStore, profile *MockProfileService) *authsphere.WebSession {
	manager := authsphere.NewSessionManager(profile, store)
	return authsphere.NewWebSession(manager, authsphere.ConfigOptions{})
}

func TestWebSessionLogin(t *testing.T) {
	profile := new(MockProfileService)
	store := &stubTokenStore{}
	web := newWebSession(store, profile)

	profile.On("ExchangeCredentials", mock.Anything, "taylor", "hunter22").Return("tok-1", nil)
	profile.On("LoadProfile", mock.Anything, "tok-1").Return(memberIdentity(), nil)

	ctx := new(MockContext)
	ctx.On("Context").Return(context.Background())

	identity, err := web.Login(ctx, authsphere.Credentials{
		Username: "taylor",
		Password: "hunter22",
	})

	assert.NoError(t, err)
	assert.Equal(t, "taylor", identity.Username)
	assert.Equal(t, "tok-1", store.current())
}

func TestWebSessionLogout(t *testing.T) {
	profile := new(MockProfileService)
	store := &stubTokenStore{token: "tok-1"}
	web := newWebSession(store, profile)

	profile.On("LoadProfile", mock.Anything, "tok-1").Return(memberIdentity(), nil)
	_, err := web.Session().RefreshProfile(context.Background())
	assert.NoError(t, err)

	ctx := new(MockContext)
	ctx.On("Context").Return(context.Background())

	web.Logout(ctx)

	assert.Nil(t, web.Session().CurrentIdentity())
	assert.Equal(t, "", store.current())
}

func TestLandingRouteStoredRedirectWins(t *testing.T) {
	web := newWebSession(&stubTokenStore{}, new(MockProfileService))

	ctx := new(MockContext)
	ctx.On("Cookies", "rejected_route").Return("/admin/users?page=2")
	ctx.On("Cookie", mock.AnythingOfType("*router.Cookie")).Return()

	got := web.LandingRoute(ctx, adminIdentity())
	assert.Equal(t, "/admin/users?page=2", got)
}

func TestLandingRouteAdminDefaultsToAdminArea(t *testing.T) {
	web := newWebSession(&stubTokenStore{}, new(MockProfileService))

	ctx := new(MockContext)
	ctx.On("Cookies", "rejected_route").Return("")

	assert.Equal(t, "/admin", web.LandingRoute(ctx, adminIdentity()))
}

func TestLandingRouteMemberDefault(t *testing.T) {
	web := newWebSession(&stubTokenStore{}, new(MockProfileService))

	ctx := new(MockContext)
	ctx.On("Cookies", "rejected_route").Return("")

	assert.Equal(t, "/", web.LandingRoute(ctx, memberIdentity()))
}

func TestSetRedirectStoresOriginalURL(t *testing.T) {
	web := newWebSession(&stubTokenStore{}, new(MockProfileService))

	var stored *router.Cookie
	ctx := new(MockContext)
	ctx.On("OriginalURL").Return("/admin/users")
	ctx.On("Cookie", mock.AnythingOfType("*router.Cookie")).Run(func(args mock.Arguments) {
		stored = args.Get(0).(*router.Cookie)
	}).Return()

	web.SetRedirect(ctx)

	assert.NotNil(t, stored)
	assert.Equal(t, "rejected_route", stored.Name)
	assert.Equal(t, "/admin/users", stored.Value)
	assert.True(t, stored.HTTPOnly)
}

func TestGetRedirectConsumesCookie(t *testing.T) {
	web := newWebSession(&stubTokenStore{}, new(MockProfileService))

	var cleared *router.Cookie
	ctx := new(MockContext)
	ctx.On("Cookies", "rejected_route").Return("/admin")
	ctx.On("Cookie", mock.AnythingOfType("*router.Cookie")).Run(func(args mock.Arguments) {
		cleared = args.Get(0).(*router.Cookie)
	}).Return()

	assert.Equal(t, "/admin", web.GetRedirect(ctx))
	assert.NotNil(t, cleared)
	assert.Equal(t, "", cleared.Value, "consuming the redirect expires the cookie")
}

func TestGetRedirectFallback(t *testing.T) {
	web := newWebSession(&stubTokenStore{}, new(MockProfileService))

	ctx := new(MockContext)
	ctx.On("Cookies", "rejected_route").Return("")

	assert.Equal(t, "", web.GetRedirect(ctx))
	assert.Equal(t, "/home", web.GetRedirect(ctx, "/home"))
}
