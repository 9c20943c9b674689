package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"
)

const tokenTTL = 24 * time.Hour

type account struct {
	id           string
	email        string
	passwordHash string
}

// accountStore keeps registered users in memory. Accounts are a convenience
// for exercising the authenticated paths, not durable state.
type accountStore struct {
	mu      sync.RWMutex
	byEmail map[string]account
}

func newAccountStore() *accountStore {
	return &accountStore{byEmail: make(map[string]account)}
}

func (s *accountStore) create(email, passwordHash string) (account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byEmail[email]; exists {
		return account{}, false
	}
	acc := account{id: uuid.NewString(), email: email, passwordHash: passwordHash}
	s.byEmail[email] = acc
	return acc, true
}

func (s *accountStore) byEmailLookup(email string) (account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.byEmail[email]
	return acc, ok
}

type AccountsHandler struct {
	Accounts *accountStore
	Secret   []byte
}

func (a *AccountsHandler) Register(g *echo.Group) {
	g.POST("/signup", a.signup)
	g.POST("/login", a.login)
	g.POST("/logout", a.logout)
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *AccountsHandler) signup(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Email == "" || len(req.Password) < 8 {
		return echo.NewHTTPError(http.StatusBadRequest, "email and a password of at least 8 characters are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if _, ok := a.Accounts.create(req.Email, string(hash)); !ok {
		return echo.NewHTTPError(http.StatusConflict, "email already exists")
	}
	return c.NoContent(http.StatusCreated)
}

func (a *AccountsHandler) login(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	acc, ok := a.Accounts.byEmailLookup(req.Email)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}
	if bcrypt.CompareHashAndPassword([]byte(acc.passwordHash), []byte(req.Password)) != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}
	signed, err := signJWT(acc.id, a.Secret, tokenTTL)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"token": signed})
}

func (a *AccountsHandler) logout(c echo.Context) error {
	// Tokens are stateless; logout is client-side eviction.
	return c.NoContent(http.StatusOK)
}

// signJWT issues a signed HS256 token with the given subject and TTL.
func signJWT(subject string, secret []byte, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}
