package auth

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

// AuthControllerRoutes holds the paths the controller mounts its handlers at.
type AuthControllerRoutes struct {
	Register      string
	Verify        string
	Login         string
	MagicLink     string
	Refresh       string
	Logout        string
	PasswordReset string
}

// AuthController is the JSON boundary over the auth flows. Successful sign-in,
// verification, and refresh all respond the same way: access token in the
// body, refresh token in an HTTP-only cookie.
type AuthController struct {
	Debug    bool
	Logger   Logger
	Service  *Service
	Sessions *SessionIssuer
	Routes   *AuthControllerRoutes
}

type AuthControllerOption func(*AuthController) *AuthController

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger: defLogger{},
		Routes: &AuthControllerRoutes{
			Register:      "/register",
			Verify:        "/verify/:token",
			Login:         "/login",
			MagicLink:     "/magic-link",
			Refresh:       "/refresh",
			Logout:        "/logout",
			PasswordReset: "/password-reset",
		},
	}

	for _, opt := range opts {
		if opt != nil {
			c = opt(c)
		}
	}

	return c
}

func WithControllerService(s *Service) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Service = s
		return c
	}
}

func WithControllerSessions(si *SessionIssuer) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Sessions = si
		return c
	}
}

func WithControllerLogger(l Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if l != nil {
			c.Logger = l
		}
		return c
	}
}

func WithControllerDebug(debug bool) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Debug = debug
		return c
	}
}

func WithControllerRoutes(routes *AuthControllerRoutes) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if routes != nil {
			c.Routes = routes
		}
		return c
	}
}

// RegisterAuthRoutes mounts the auth endpoints on the given router.
func RegisterAuthRoutes(app fiber.Router, opts ...AuthControllerOption) *AuthController {
	controller := NewAuthController(opts...)

	app.Post(controller.Routes.Register, controller.RegisterPost)
	app.Get(controller.Routes.Verify, controller.VerifyGet)
	app.Post(controller.Routes.Login, controller.LoginPost)
	app.Post(controller.Routes.MagicLink, controller.MagicLinkPost)
	app.Post(controller.Routes.Refresh, controller.RefreshPost)
	app.Post(controller.Routes.Logout, controller.LogoutPost)
	app.Post(controller.Routes.PasswordReset, controller.PasswordResetPost)

	return controller
}

// RegistrationPayload is the POST /register body.
type RegistrationPayload struct {
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	Organization string `json:"organization"`
}

// Validate will run validation rules
func (r RegistrationPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.FirstName,
			validation.Required,
		),
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&r.Password,
			validation.Required,
			validation.Length(MinPasswordLength, 0),
		),
	)
}

func (ac *AuthController) RegisterPost(c *fiber.Ctx) error {
	payload := RegistrationPayload{}
	if err := c.BodyParser(&payload); err != nil {
		return ac.respondError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "unable to parse registration payload"))
	}

	if err := payload.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	user, err := ac.Service.Register(c.UserContext(), RegisterInput{
		FirstName:    payload.FirstName,
		LastName:     payload.LastName,
		Email:        payload.Email,
		Password:     payload.Password,
		Organization: payload.Organization,
	})
	if err != nil {
		return ac.respondError(c, err)
	}

	if ac.Debug {
		fmt.Println(print.MaybePrettyJSON(user.Public()))
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "registration successful, please check your email to verify your account",
		"user":    user.Public(),
	})
}

// VerifyGet consumes the emailed magic link and signs the user in.
func (ac *AuthController) VerifyGet(c *fiber.Ctx) error {
	token := c.Params("token")

	user, err := ac.Service.Verify(c.UserContext(), token)
	if err != nil {
		return ac.respondError(c, err)
	}

	return ac.respondSession(c, user)
}

// LoginPayload is the POST /login body.
type LoginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate will run validation rules
func (r LoginPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

func (ac *AuthController) LoginPost(c *fiber.Ctx) error {
	payload := LoginPayload{}
	if err := c.BodyParser(&payload); err != nil {
		return ac.respondError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "unable to parse login payload"))
	}

	if err := payload.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	user, err := ac.Service.SignIn(c.UserContext(), payload.Email, payload.Password)
	if err != nil {
		return ac.respondError(c, err)
	}

	return ac.respondSession(c, user)
}

// MagicLinkPayload is the POST /magic-link body.
type MagicLinkPayload struct {
	Email string `json:"email"`
}

// Validate will run validation rules
func (r MagicLinkPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
	)
}

func (ac *AuthController) MagicLinkPost(c *fiber.Ctx) error {
	payload := MagicLinkPayload{}
	if err := c.BodyParser(&payload); err != nil {
		return ac.respondError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "unable to parse magic-link payload"))
	}

	if err := payload.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if _, err := ac.Service.SendMagicLink(c.UserContext(), payload.Email); err != nil {
		return ac.respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "magic link sent, please check your email",
	})
}

// RefreshPost rotates the refresh cookie into a fresh token pair.
func (ac *AuthController) RefreshPost(c *fiber.Ctx) error {
	refresh := c.Cookies(RefreshCookieName)

	pair, user, err := ac.Sessions.Rotate(c.UserContext(), refresh)
	if err != nil {
		return ac.respondError(c, err)
	}

	c.Cookie(ac.Sessions.RefreshCookie(pair.RefreshToken))

	return ac.respondPair(c, pair, user)
}

func (ac *AuthController) LogoutPost(c *fiber.Ctx) error {
	c.Cookie(ac.Sessions.ClearRefreshCookie())

	return c.JSON(fiber.Map{
		"message": "logged out",
	})
}

// PasswordResetPayload is the POST /password-reset body.
type PasswordResetPayload struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
}

// Validate will run validation rules
func (r PasswordResetPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
		validation.Field(
			&r.PasswordConfirm,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (ac *AuthController) PasswordResetPost(c *fiber.Ctx) error {
	payload := PasswordResetPayload{}
	if err := c.BodyParser(&payload); err != nil {
		return ac.respondError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "unable to parse password-reset payload"))
	}

	if err := payload.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if err := ac.Service.PasswordReset(c.UserContext(), payload.Email, payload.Password); err != nil {
		return ac.respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "password updated",
	})
}

// respondSession mints a token pair for the user and responds with it.
func (ac *AuthController) respondSession(c *fiber.Ctx, user *User) error {
	pair, err := ac.Sessions.IssuePair(user)
	if err != nil {
		return ac.respondError(c, err)
	}

	c.Cookie(ac.Sessions.RefreshCookie(pair.RefreshToken))

	return ac.respondPair(c, pair, user)
}

func (ac *AuthController) respondPair(c *fiber.Ctx, pair *TokenPair, user *User) error {
	resp := fiber.Map{
		"access_token": pair.AccessToken,
		"token_type":   pair.TokenType,
		"user":         user.Public(),
	}

	if ac.Debug {
		fmt.Println(print.MaybePrettyJSON(resp))
	}

	return c.JSON(resp)
}

func (ac *AuthController) respondError(c *fiber.Ctx, err error) error {
	status := HTTPStatus(err)

	message := "internal server error"
	textCode := ""

	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		textCode = rich.TextCode
		if status < fiber.StatusInternalServerError {
			message = rich.Message
		}
	}

	if status >= fiber.StatusInternalServerError {
		ac.Logger.Error("auth handler error: %v", err)
	} else {
		ac.Logger.Debug("auth handler rejected request: %v", err)
	}

	body := fiber.Map{"error": message}
	if textCode != "" {
		body["text_code"] = textCode
	}

	return c.Status(status).JSON(body)
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if s != str {
			return fmt.Errorf("value does not match")
		}
		return nil
	}
}
