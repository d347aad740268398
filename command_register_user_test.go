package authsphere_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	authsphere "github.com/authsphere/go-authsphere"
)

func validRegisterMessage() authsphere.RegisterUserMessage {
	return authsphere.RegisterUserMessage{
		Username:    "newcomer",
		Email:       "newcomer@example.com",
		Password:    "long-enough-secret",
		ConsentLGPD: true,
	}
}

func TestRegisterUserMessageValidate(t *testing.T) {
	assert.NoError(t, validRegisterMessage().Validate())

	short := validRegisterMessage()
	short.Username = "ab"
	assert.Error(t, short.Validate())

	weak := validRegisterMessage()
	weak.Password = "short"
	assert.Error(t, weak.Validate())

	bogus := validRegisterMessage()
	bogus.Email = "not-an-email"
	assert.Error(t, bogus.Validate())

	unconsented := validRegisterMessage()
	unconsented.ConsentLGPD = false
	assert.Error(t, unconsented.Validate())
}

func TestRegisterUserHandlerExecute(t *testing.T) {
	api := new(MockDirectoryAPI)
	handler := authsphere.NewRegisterUserHandler(api)

	api.On("RegisterUser", mock.Anything, mock.MatchedBy(func(req authsphere.Registration) bool {
		return req.Username == "newcomer" && req.Phone == ""
	})).Return(&authsphere.Identity{ID: "u-9"}, nil).Once()

	assert.NoError(t, handler.Execute(context.Background(), validRegisterMessage()))
	api.AssertExpectations(t)
}

func TestRegisterUserHandlerNormalizesPhone(t *testing.T) {
	api := new(MockDirectoryAPI)
	handler := authsphere.NewRegisterUserHandler(api)

	msg := validRegisterMessage()
	msg.Phone = "(11) 98765-4321"

	api.On("RegisterUser", mock.Anything, mock.MatchedBy(func(req authsphere.Registration) bool {
		return req.Phone == "+5511987654321"
	})).Return(&authsphere.Identity{ID: "u-9"}, nil).Once()

	assert.NoError(t, handler.Execute(context.Background(), msg))
	api.AssertExpectations(t)
}

func TestRegisterUserHandlerPhoneRegionOverride(t *testing.T) {
	api := new(MockDirectoryAPI)
	handler := authsphere.NewRegisterUserHandler(api).WithPhoneRegion("US")

	msg := validRegisterMessage()
	msg.Phone = "(415) 555-2671"

	api.On("RegisterUser", mock.Anything, mock.MatchedBy(func(req authsphere.Registration) bool {
		return req.Phone == "+14155552671"
	})).Return(&authsphere.Identity{ID: "u-9"}, nil).Once()

	assert.NoError(t, handler.Execute(context.Background(), msg))
}

func TestRegisterUserHandlerRejectsBadPhone(t *testing.T) {
	api := new(MockDirectoryAPI)
	handler := authsphere.NewRegisterUserHandler(api)

	msg := validRegisterMessage()
	msg.Phone = "123"

	assert.Error(t, handler.Execute(context.Background(), msg))
	api.AssertNotCalled(t, "RegisterUser", mock.Anything, mock.Anything)
}

func TestRegisterUserHandlerCancelledContext(t *testing.T) {
	api := new(MockDirectoryAPI)
	handler := authsphere.NewRegisterUserHandler(api)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, handler.Execute(ctx, validRegisterMessage()))
	api.AssertNotCalled(t, "RegisterUser", mock.Anything, mock.Anything)
}
