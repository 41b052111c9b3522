package identity

import (
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

// ClaimsContextKey is where the bearer middleware stores validated claims
// in fiber's Locals.
const ClaimsContextKey = "identity:claims"

// ApiControllerRoutes lets deployments remap the endpoints.
type ApiControllerRoutes struct {
	Token string
}

// ApiController exposes the token endpoint and the bearer middleware over
// fiber. It holds no session state; the token itself is the session.
type ApiController struct {
	Debug  bool
	Logger Logger
	Issuer *TokenIssuer
	Routes *ApiControllerRoutes
}

// NewApiController returns an ApiController with default routes.
func NewApiController(issuer *TokenIssuer) *ApiController {
	return &ApiController{
		Logger: defLogger{},
		Issuer: issuer,
		Routes: &ApiControllerRoutes{
			Token: "/api/token",
		},
	}
}

// RegisterApiRoutes mounts the controller's routes on a fiber app.
func (a *ApiController) RegisterApiRoutes(app *fiber.App) {
	app.Post(a.Routes.Token, a.TokenCreate)
}

// TokenCreatePayload is the credential exchange body.
type TokenCreatePayload struct {
	Username string `form:"username" json:"username"`
	Password string `form:"password" json:"password"`
}

// Validate will validate the payload
func (r TokenCreatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

// TokenCreateResponse is the success body of the token endpoint.
type TokenCreateResponse struct {
	Token      string `json:"token"`
	Expiration string `json:"expiration"`
}

// TokenCreate exchanges credentials for a bearer token. Bad payloads return
// 400, refused credentials return 401, success returns 201.
func (a *ApiController) TokenCreate(c *fiber.Ctx) error {
	payload := new(TokenCreatePayload)

	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("token create parse payload", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "failed to parse request body",
		})
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("token create validate payload", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	token, expiration, err := a.Issuer.MintApiToken(c.UserContext(), payload.Username, payload.Password)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": ErrUnauthorized.Message,
		})
	}

	res := TokenCreateResponse{
		Token:      token,
		Expiration: expiration.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}

	if a.Debug {
		fmt.Println("================")
		fmt.Println(print.MaybePrettyJSON(res))
		fmt.Println("================")
	}

	return c.Status(fiber.StatusCreated).JSON(res)
}

// ProtectedRoute validates the Authorization bearer token and stores the
// claims in Locals under ClaimsContextKey.
func (a *ApiController) ProtectedRoute() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := bearerToken(c.Get(fiber.HeaderAuthorization))
		if raw == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": ErrUnauthorized.Message,
			})
		}

		claims, err := a.Issuer.Validate(raw)
		if err != nil {
			status := fiber.StatusUnauthorized
			if goerrors.Is(err, ErrTokenExpired) {
				a.Logger.Debug("expired bearer token", "path", c.Path())
			}
			return c.Status(status).JSON(fiber.Map{
				"error": ErrUnauthorized.Message,
			})
		}

		c.Locals(ClaimsContextKey, claims)

		return c.Next()
	}
}

// GetApiClaims retrieves the claims the bearer middleware stored, if any.
func GetApiClaims(c *fiber.Ctx) (ApiClaims, bool) {
	claims, ok := c.Locals(ClaimsContextKey).(ApiClaims)
	return claims, ok
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
