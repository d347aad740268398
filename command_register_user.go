package authsphere

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/nyaruka/phonenumbers"
)

// DefaultPhoneRegion is the region used to parse national phone numbers on
// registration payloads. The deployment is LGPD-governed, so Brazilian
// numbers are the common case.
var DefaultPhoneRegion = "BR"

// RegisterUserMessage carries a sign-up request through the shared
// registration contract. The same message serves self-service sign-up and the
// admin directory; the backend owns generated fields (id, default roles).
type RegisterUserMessage struct {
	Username    string `form:"username" json:"username"`
	Email       string `form:"email" json:"email"`
	Password    string `form:"password" json:"password"`
	Phone       string `form:"phone" json:"phone"`
	ConsentLGPD bool   `form:"consent_lgpd" json:"consent_lgpd"`
}

func (e RegisterUserMessage) Type() string { return "user.register" }

// Validate runs the client-side field rules. The backend re-validates; these
// exist so obviously broken payloads never leave the process.
func (e RegisterUserMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Username, validation.Required, validation.Length(3, 50)),
		validation.Field(&e.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&e.Password, validation.Required, validation.Length(8, 128)),
		validation.Field(&e.ConsentLGPD, validation.Required),
	)
}

// Registrar is the slice of the backend surface registration needs.
type Registrar interface {
	RegisterUser(ctx context.Context, req Registration) (*Identity, error)
}

// RegisterUserHandler executes RegisterUserMessage against the backend.
type RegisterUserHandler struct {
	api    Registrar
	region string
}

// NewRegisterUserHandler builds a handler for the given backend surface.
func NewRegisterUserHandler(api Registrar) *RegisterUserHandler {
	return &RegisterUserHandler{api: api, region: DefaultPhoneRegion}
}

// WithPhoneRegion overrides the region used to parse national phone numbers.
func (h *RegisterUserHandler) WithPhoneRegion(region string) *RegisterUserHandler {
	if region != "" {
		h.region = region
	}
	return h
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid registration payload")
	}

	phone, err := h.normalizePhone(event.Phone)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	req := Registration{
		Username:    event.Username,
		Email:       event.Email,
		Password:    event.Password,
		Phone:       phone,
		ConsentLGPD: event.ConsentLGPD,
	}

	if _, err := h.api.RegisterUser(ctx, req); err != nil {
		return err
	}

	return nil
}

// normalizePhone formats an optional phone number as E.164 so the backend
// never sees locale-dependent spellings.
func (h *RegisterUserHandler) normalizePhone(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}

	num, err := phonenumbers.Parse(raw, h.region)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryValidation, "invalid phone number")
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", goerrors.New("invalid phone number", goerrors.CategoryValidation)
	}

	return phonenumbers.Format(num, phonenumbers.E164), nil
}
