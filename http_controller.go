package accounts

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

// SessionTokenHeader is where authenticated requests carry their token.
const SessionTokenHeader = "X-Session-Token"

// AuthControllerRoutes maps the account operations onto paths.
type AuthControllerRoutes struct {
	Register         string
	VerifyEmail      string
	Login            string
	Logout           string
	ForgotPassword   string
	VerifyResetToken string
	ResetPassword    string
	ChangePassword   string
	Profile          string
	Account          string
}

// AuthController exposes the account use-cases as a JSON API. Every endpoint
// answers with the same tri-field envelope; only the session-token failures
// leave HTTP 200.
type AuthController struct {
	Debug    bool
	Logger   Logger
	Repo     RepositoryManager
	Auth     SessionAuthenticator
	Mailer   Mailer
	Store    ResetTokens
	States   AccountStateMachine
	Pushes   PushRegistrar
	Sink     ActivitySink
	ResetTTL time.Duration
	Routes   *AuthControllerRoutes

	register   *RegisterUserHandler
	verify     *VerifyEmailHandler
	login      *LoginHandler
	logout     *LogoutHandler
	forgot     *ForgotPasswordHandler
	checkReset *VerifyResetTokenHandler
	reset      *ResetPasswordHandler
	changePwd  *ChangePasswordHandler
	profile    *UpdateProfileHandler
	deleteAcct *DeleteAccountHandler
}

type AuthControllerOption func(*AuthController) *AuthController

// WithControllerRepo sets the repository manager.
func WithControllerRepo(repo RepositoryManager) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Repo = repo
		return c
	}
}

// WithControllerAuthenticator sets the session authenticator.
func WithControllerAuthenticator(auth SessionAuthenticator) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Auth = auth
		return c
	}
}

// WithControllerMailer sets the mailer.
func WithControllerMailer(mailer Mailer) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Mailer = mailer
		return c
	}
}

// WithControllerResetTokens sets the reset-token store.
func WithControllerResetTokens(store ResetTokens) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Store = store
		return c
	}
}

// WithControllerPushRegistrar sets the notifications client.
func WithControllerPushRegistrar(pushes PushRegistrar) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Pushes = pushes
		return c
	}
}

// WithControllerResetTTL overrides the reset-token lifetime.
func WithControllerResetTTL(ttl time.Duration) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if ttl > 0 {
			c.ResetTTL = ttl
		}
		return c
	}
}

// WithControllerActivitySink sets the sink shared by every use-case.
func WithControllerActivitySink(sink ActivitySink) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Sink = normalizeActivitySink(sink)
		return c
	}
}

// WithControllerLogger sets the controller logger.
func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

// WithControllerDebug toggles request/response dumping.
func WithControllerDebug(debug bool) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Debug = debug
		return c
	}
}

// NewAuthController builds the controller and its use-case handlers.
func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger: defLogger{},
		Pushes: NoopPushRegistrar{},
		Sink:   noopActivitySink{},
		Routes: &AuthControllerRoutes{
			Register:         "/auth/register",
			VerifyEmail:      "/auth/verify-email",
			Login:            "/auth/login",
			Logout:           "/auth/logout",
			ForgotPassword:   "/auth/forgot-password",
			VerifyResetToken: "/auth/verify-reset-token",
			ResetPassword:    "/auth/reset-password",
			ChangePassword:   "/auth/change-password",
			Profile:          "/auth/profile",
			Account:          "/auth/account",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in auth controller...")
	}

	if c.Auth == nil {
		panic("Missing SessionAuthenticator in auth controller...")
	}

	if c.Mailer == nil {
		panic("Missing Mailer in auth controller...")
	}

	if c.Store == nil {
		panic("Missing ResetTokens in auth controller...")
	}

	if c.States == nil {
		c.States = NewAccountStateMachine(
			WithStateMachineActivitySink(c.Sink),
			WithStateMachineLogger(c.Logger),
		)
	}

	c.register = NewRegisterUserHandler(c.Repo, c.Mailer,
		WithRegisterUserActivitySink(c.Sink),
		WithRegisterUserLogger(c.Logger),
	)
	c.verify = NewVerifyEmailHandler(c.Repo, c.Mailer, c.States,
		WithVerifyEmailActivitySink(c.Sink),
		WithVerifyEmailLogger(c.Logger),
	)
	c.login = NewLoginHandler(c.Repo, c.Auth, c.Mailer,
		WithLoginPushRegistrar(c.Pushes),
		WithLoginActivitySink(c.Sink),
		WithLoginLogger(c.Logger),
	)
	c.logout = NewLogoutHandler(c.Auth, WithLogoutLogger(c.Logger))
	c.forgot = NewForgotPasswordHandler(c.Repo, c.Mailer, c.Store,
		WithForgotPasswordTTL(c.ResetTTL),
		WithForgotPasswordActivitySink(c.Sink),
		WithForgotPasswordLogger(c.Logger),
	)
	c.checkReset = NewVerifyResetTokenHandler(c.Store)
	c.reset = NewResetPasswordHandler(c.Repo, c.Store,
		WithResetPasswordActivitySink(c.Sink),
		WithResetPasswordLogger(c.Logger),
	)
	c.changePwd = NewChangePasswordHandler(c.Repo, c.Auth,
		WithChangePasswordActivitySink(c.Sink),
		WithChangePasswordLogger(c.Logger),
	)
	c.profile = NewUpdateProfileHandler(c.Repo, c.Auth,
		WithUpdateProfileActivitySink(c.Sink),
		WithUpdateProfileLogger(c.Logger),
	)
	c.deleteAcct = NewDeleteAccountHandler(c.Repo, c.Auth,
		WithDeleteAccountActivitySink(c.Sink),
		WithDeleteAccountLogger(c.Logger),
	)

	return c
}

// RegisterAuthRoutes mounts the controller on a fiber app.
func RegisterAuthRoutes(app *fiber.App, opts ...AuthControllerOption) *AuthController {
	controller := NewAuthController(opts...)

	app.Post(controller.Routes.Register, controller.RegistrationCreate)
	app.Post(controller.Routes.VerifyEmail, controller.EmailVerify)
	app.Post(controller.Routes.Login, controller.LoginPost)
	app.Post(controller.Routes.Logout, controller.LogoutPost)
	app.Post(controller.Routes.ForgotPassword, controller.ForgotPasswordPost)
	app.Post(controller.Routes.VerifyResetToken, controller.VerifyResetTokenPost)
	app.Post(controller.Routes.ResetPassword, controller.ResetPasswordPost)
	app.Post(controller.Routes.ChangePassword, controller.ChangePasswordPost)
	app.Patch(controller.Routes.Profile, controller.ProfilePatch)
	app.Delete(controller.Routes.Account, controller.AccountDelete)

	return controller
}

// RegistrationCreatePayload is the registration body
type RegistrationCreatePayload struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Phone           string `json:"phone_number"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Validate will run validation rules
func (r RegistrationCreatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Phone, PhoneRule()),
		validation.Field(&r.Password, validation.Required),
		validation.Field(&r.ConfirmPassword, validation.Required),
	)
}

func (a *AuthController) RegistrationCreate(c *fiber.Ctx) error {
	payload := new(RegistrationCreatePayload)
	if env, ok := a.parse(c, payload); !ok {
		return a.render(c, env)
	}

	var env Envelope
	err := a.register.Execute(c.Context(), RegisterUserMessage{
		Name:            payload.Name,
		Email:           payload.Email,
		Phone:           payload.Phone,
		Password:        payload.Password,
		ConfirmPassword: payload.ConfirmPassword,
		OnResponse: func(resp *RegisterUserResponse) {
			env = resp.Envelope
		},
	})
	if err != nil {
		return a.renderError(c, err)
	}

	return a.render(c, env)
}

// EmailVerifyPayload is the verification body
type EmailVerifyPayload struct {
	Token string `json:"token"`
}

// Validate will run validation rules
func (r EmailVerifyPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
	)
}

func (a *AuthController) EmailVerify(c *fiber.Ctx) error {
	payload := new(EmailVerifyPayload)
	if env, ok := a.parse(c, payload); !ok {
		return a.render(c, env)
	}

	var env Envelope
	err := a.verify.Execute(c.Context(), VerifyEmailMessage{
		Token: payload.Token,
		OnResponse: func(resp *VerifyEmailResponse) {
			env = resp.Envelope
		},
	})
	if err != nil {
		return a.renderError(c, err)
	}

	return a.render(c, env)
}

// LoginPayload is the login body
type LoginPayload struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	PushToken string `json:"push_token"`
}

// Validate will run validation rules
func (r LoginPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

func (a *AuthController) LoginPost(c *fiber.Ctx) error {
	payload := new(LoginPayload)
	if env, ok := a.parse(c, payload); !ok {
		return a.render(c, env)
	}

	var env Envelope
	err := a.login.Execute(c.Context(), LoginMessage{
		Email:     payload.Email,
		Password:  payload.Password,
		PushToken: payload.PushToken,
		OnResponse: func(resp *LoginResponse) {
			env = resp.Envelope
		},
	})
	if err != nil {
		return a.renderError(c, err)
	}

	return a.render(c, env)
}

func (a *AuthController) LogoutPost(c *fiber.Ctx) error {
	var env Envelope
	err := a.logout.Execute(c.Context(), LogoutMessage{
		SessionToken: a.sessionToken(c),
		OnResponse: func(resp *LogoutResponse) {
			env = resp.Envelope
		},
	})
	if err != nil {
		return a.renderError(c, err)
	}

	return a.render(c, env)
}

// ForgotPasswordPayload is the forgot-password body
type ForgotPasswordPayload struct {
	Email string `json:"email"`
}

// Validate will run validation rules
func (r ForgotPasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

func (a *AuthController) ForgotPasswordPost(c *fiber.Ctx) error {
	payload := new(ForgotPasswordPayload)
	if env, ok := a.parse(c, payload); !ok {
		return a.render(c, env)
	}

	var env Envelope
	err := a.forgot.Execute(c.Context(), ForgotPasswordMessage{
		Email: payload.Email,
		OnResponse: func(resp *ForgotPasswordResponse) {
			env = resp.Envelope
		},
	})
	if err != nil {
		return a.renderError(c, err)
	}

	return a.render(c, env)
}

func (a *AuthController) VerifyResetTokenPost(c *fiber.Ctx) error {
	payload := new(EmailVerifyPayload)
	if env, ok := a.parse(c, payload); !ok {
		return a.render(c, env)
	}

	var env Envelope
	err := a.checkReset.Execute(c.Context(), VerifyResetTokenMessage{
		Token: payload.Token,
		OnResponse: func(resp *VerifyResetTokenResponse) {
			env = resp.Envelope
		},
	})
	if err != nil {
		return a.renderError(c, err)
	}

	return a.render(c, env)
}

// ResetPasswordPayload is the reset-password body
type ResetPasswordPayload struct {
	Token           string `json:"token"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Validate will run validation rules
func (r ResetPasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.NewPassword, validation.Required),
		validation.Field(&r.ConfirmPassword, validation.Required),
	)
}

func (a *AuthController) ResetPasswordPost(c *fiber.Ctx) error {
	payload := new(ResetPasswordPayload)
	if env, ok := a.parse(c, payload); !ok {
		return a.render(c, env)
	}

	var env Envelope
	err := a.reset.Execute(c.Context(), ResetPasswordMessage{
		Token:           payload.Token,
		NewPassword:     payload.NewPassword,
		ConfirmPassword: payload.ConfirmPassword,
		OnResponse: func(resp *ResetPasswordResponse) {
			env = resp.Envelope
		},
	})
	if err != nil {
		return a.renderError(c, err)
	}

	return a.render(c, env)
}

// ChangePasswordPayload is the change-password body
type ChangePasswordPayload struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// Validate will run validation rules
func (r ChangePasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CurrentPassword, validation.Required),
		validation.Field(&r.NewPassword, validation.Required),
	)
}

func (a *AuthController) ChangePasswordPost(c *fiber.Ctx) error {
	payload := new(ChangePasswordPayload)
	if env, ok := a.parse(c, payload); !ok {
		return a.render(c, env)
	}

	var env Envelope
	err := a.changePwd.Execute(c.Context(), ChangePasswordMessage{
		SessionToken:    a.sessionToken(c),
		CurrentPassword: payload.CurrentPassword,
		NewPassword:     payload.NewPassword,
		OnResponse: func(resp *ChangePasswordResponse) {
			env = resp.Envelope
		},
	})
	if err != nil {
		return a.renderError(c, err)
	}

	return a.render(c, env)
}

// ProfilePatchPayload is the profile-update body
type ProfilePatchPayload struct {
	Name  string `json:"name"`
	Phone string `json:"phone_number"`
}

// Validate will run validation rules
func (r ProfilePatchPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Phone, PhoneRule()),
	)
}

func (a *AuthController) ProfilePatch(c *fiber.Ctx) error {
	payload := new(ProfilePatchPayload)
	if env, ok := a.parse(c, payload); !ok {
		return a.render(c, env)
	}

	var env Envelope
	err := a.profile.Execute(c.Context(), UpdateProfileMessage{
		SessionToken: a.sessionToken(c),
		Name:         payload.Name,
		Phone:        payload.Phone,
		OnResponse: func(resp *UpdateProfileResponse) {
			env = resp.Envelope
		},
	})
	if err != nil {
		return a.renderError(c, err)
	}

	return a.render(c, env)
}

func (a *AuthController) AccountDelete(c *fiber.Ctx) error {
	var env Envelope
	err := a.deleteAcct.Execute(c.Context(), DeleteAccountMessage{
		SessionToken: a.sessionToken(c),
		OnResponse: func(resp *DeleteAccountResponse) {
			env = resp.Envelope
		},
	})
	if err != nil {
		return a.renderError(c, err)
	}

	return a.render(c, env)
}

func (a *AuthController) sessionToken(c *fiber.Ctx) string {
	return c.Get(SessionTokenHeader)
}

type validatable interface {
	Validate() error
}

// parse decodes and validates a request body. The bool reports whether the
// handler may proceed; when false the returned envelope is the reply.
func (a *AuthController) parse(c *fiber.Ctx, payload validatable) (Envelope, bool) {
	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("body parse error: %v", err)
		return ErrorResponse("invalid request body", fiber.StatusBadRequest), false
	}

	if a.Debug {
		a.Logger.Debug("payload: %s", print.MaybePrettyJSON(payload))
	}

	if err := payload.Validate(); err != nil {
		return ErrorResponse(err.Error(), 200), false
	}

	return Envelope{}, true
}

func (a *AuthController) render(c *fiber.Ctx, env Envelope) error {
	if env.Code == 0 {
		env.Code = 200
	}
	return c.Status(env.Code).JSON(env)
}

// renderError maps an infrastructure failure onto the envelope shape. Rich
// errors keep their code; anything else is a plain 500.
func (a *AuthController) renderError(c *fiber.Ctx, err error) error {
	a.Logger.Error("request failed: %v", err)

	code := fiber.StatusInternalServerError
	message := "internal server error"

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		if richErr.Code != 0 {
			code = richErr.Code
		}
		if richErr.Category == goerrors.CategoryAuth {
			return a.render(c, SessionTokenInvalidResponse())
		}
		if a.Debug {
			a.Logger.Debug("error details: %s", print.MaybePrettyJSON(richErr.Metadata))
		}
	}

	return a.render(c, ErrorResponse(message, code))
}
