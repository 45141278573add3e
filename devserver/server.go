// Copyright 2025 The MedMatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package devserver is an in-memory MedMatch backend for local development
// and client tests.
package devserver

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/medmatch/medmatch/provider"
	"github.com/medmatch/medmatch/settings"
	"github.com/medmatch/medmatch/utils/textutils"
	"golang.org/x/crypto/bcrypt"
)

// Search defaults applied by the backend when a field is left empty.
const (
	DefaultInsurance  = "Blue Cross Blue Shield"
	DefaultSpecialty  = "Cardiology"
	DefaultLocation   = "College Station, TX 77840"
	DefaultPostalCode = "77840"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
	userIDClaim      = "user_id"
)

// Options configures a Server.
type Options struct {
	// Secret signs the issued tokens
	Secret []byte

	// Providers are the records returned by every search, MockProviders when nil
	Providers []provider.RawRecord

	// AccessTTL is the access token lifetime, 5 minutes when zero
	AccessTTL time.Duration

	// RefreshTTL is the refresh token lifetime, 24 hours when zero
	RefreshTTL time.Duration

	// BcryptCost is the password hashing cost, bcrypt.DefaultCost when zero
	BcryptCost int
}

type account struct {
	ID           int
	Email        string
	FirstName    string
	LastName     string
	PasswordHash []byte
}

// Server holds the accounts, settings and searches of the dev backend.
type Server struct {
	options Options

	mu       sync.Mutex
	accounts map[string]*account
	settings map[int]settings.AppSettings
	nextID   int
	searches int
}

// New creates a Server. A nil options uses the defaults and a random secret.
func New(options *Options) *Server {
	var o Options
	if options != nil {
		o = *options
	}

	if len(o.Secret) == 0 {
		o.Secret = []byte(uuid.NewString())
	}

	if o.Providers == nil {
		o.Providers = MockProviders()
	}

	if o.AccessTTL == 0 {
		o.AccessTTL = 5 * time.Minute
	}

	if o.RefreshTTL == 0 {
		o.RefreshTTL = 24 * time.Hour
	}

	if o.BcryptCost == 0 {
		o.BcryptCost = bcrypt.DefaultCost
	}

	return &Server{
		options:  o,
		accounts: make(map[string]*account),
		settings: make(map[int]settings.AppSettings),
		nextID:   1,
	}
}

// Router returns the gin engine serving the API under /api.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	api := r.Group("/api")
	api.POST("/auth/register/", s.register)
	api.POST("/auth/login/", s.login)

	authed := api.Group("", s.authenticate)
	authed.POST("/searches/", s.search)
	authed.GET("/app-settings/me/", s.getSettings)
	authed.PATCH("/app-settings/me/", s.patchSettings)

	return r
}

// Run serves the API on addr until the listener fails.
func (s *Server) Run(addr string) error {
	log.Printf("Dev server listening on http://%s/api", addr)

	return s.Router().Run(addr)
}

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type accountResponse struct {
	ID        int    `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

const minPasswordLength = 8

func (s *Server) register(ctx *gin.Context) {
	var req registerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})

		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !strings.Contains(email, "@") {
		ctx.JSON(http.StatusBadRequest, gin.H{"email": []string{"Enter a valid email address."}})

		return
	}

	if len(req.Password) < minPasswordLength {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"password": []string{fmt.Sprintf("Ensure this field has at least %d characters.", minPasswordLength)},
		})

		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.options.BcryptCost)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"detail": "hashing password"})

		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[email]; ok {
		ctx.JSON(http.StatusBadRequest, gin.H{"email": []string{"A user with that email already exists."}})

		return
	}

	a := &account{
		ID:           s.nextID,
		Email:        email,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		PasswordHash: hash,
	}
	s.nextID++
	s.accounts[email] = a

	ctx.JSON(http.StatusCreated, accountResponse{ID: a.ID, Email: a.Email, FirstName: a.FirstName, LastName: a.LastName})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) login(ctx *gin.Context) {
	var req loginRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})

		return
	}

	s.mu.Lock()
	a, ok := s.accounts[strings.ToLower(strings.TrimSpace(req.Username))]
	s.mu.Unlock()

	if !ok || bcrypt.CompareHashAndPassword(a.PasswordHash, []byte(req.Password)) != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"detail": "No active account found with the given credentials"})

		return
	}

	access, err := s.issue(a.ID, tokenTypeAccess, s.options.AccessTTL)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})

		return
	}

	refresh, err := s.issue(a.ID, tokenTypeRefresh, s.options.RefreshTTL)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})

		return
	}

	ctx.JSON(http.StatusOK, gin.H{"access": access, "refresh": refresh})
}

func (s *Server) issue(userID int, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		userIDClaim:  userID,
		"token_type": tokenType,
		"jti":        uuid.NewString(),
		"iat":        jwt.NewNumericDate(now),
		"exp":        jwt.NewNumericDate(now.Add(ttl)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.options.Secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}

	return signed, nil
}

var errNotAccessToken = errors.New("not an access token")

func (s *Server) verify(token string) (int, error) {
	claims := jwt.MapClaims{}

	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}

		return s.options.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return 0, err
	}

	if claims["token_type"] != tokenTypeAccess {
		return 0, errNotAccessToken
	}

	id, ok := claims[userIDClaim].(float64)
	if !ok {
		return 0, fmt.Errorf("missing %s claim", userIDClaim)
	}

	return int(id), nil
}

const userKey = "medmatch.user"

func (s *Server) authenticate(ctx *gin.Context) {
	scheme, token, ok := strings.Cut(ctx.GetHeader("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Authentication credentials were not provided."})

		return
	}

	id, err := s.verify(strings.TrimSpace(token))
	if err != nil {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Given token not valid for any token type"})

		return
	}

	ctx.Set(userKey, id)
	ctx.Next()
}

type searchRequest struct {
	Query            string `json:"query"`
	InsuranceNetwork any    `json:"insurance_network"`
	Insurance        string `json:"insurance"`
	InsuranceID      string `json:"insurance_id"`
	Specialty        string `json:"specialty"`
	Location         string `json:"location"`
	PostalCode       string `json:"postal_code"`
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}

	return v
}

func matches(r provider.RawRecord, query, specialty string) bool {
	if specialty != "" && (r.Specialty == nil || !textutils.ContainsFolded(specialty, *r.Specialty)) {
		return false
	}

	if query == "" {
		return true
	}

	fields := []string{r.Name, r.Address}
	if r.Specialty != nil {
		fields = append(fields, *r.Specialty)
	}

	return textutils.ContainsFolded(query, fields...)
}

// search answers with the configured records. Only an explicit query or
// specialty narrows them down; the defaults are echoed in graph_state.
func (s *Server) search(ctx *gin.Context) {
	var req searchRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})

		return
	}

	query := strings.TrimSpace(req.Query)
	specialty := strings.TrimSpace(req.Specialty)

	providers := make([]provider.RawRecord, 0, len(s.options.Providers))
	for _, r := range s.options.Providers {
		if matches(r, query, specialty) {
			providers = append(providers, r)
		}
	}

	s.mu.Lock()
	s.searches++
	id := s.searches
	s.mu.Unlock()

	ctx.JSON(http.StatusCreated, gin.H{
		"id":         id,
		"query":      query,
		"created_at": time.Now().UTC().Format(time.RFC3339),
		"graph_state": gin.H{
			"insurance":   orDefault(req.Insurance, DefaultInsurance),
			"specialty":   orDefault(req.Specialty, DefaultSpecialty),
			"location":    orDefault(req.Location, DefaultLocation),
			"postal_code": orDefault(req.PostalCode, DefaultPostalCode),
			"providers":   providers,
		},
	})
}

// settingsUser resolves the ?user= parameter. It must name the
// authenticated account when given.
func settingsUser(ctx *gin.Context) (int, bool) {
	authed := ctx.GetInt(userKey)

	param := ctx.Query("user")
	if param == "" {
		return authed, true
	}

	id, err := strconv.Atoi(param)
	if err != nil || id < 1 {
		ctx.JSON(http.StatusBadRequest, gin.H{"detail": "Provide user id (auth or ?user=)."})

		return 0, false
	}

	if id != authed {
		ctx.JSON(http.StatusForbidden, gin.H{"detail": "You do not have permission to perform this action."})

		return 0, false
	}

	return id, true
}

// getOrCreate must be called with s.mu held.
func (s *Server) getOrCreate(user int) settings.AppSettings {
	if st, ok := s.settings[user]; ok {
		return st
	}

	st := settings.Default(user)
	id := user
	st.ID = &id
	s.settings[user] = st

	return st
}

func (s *Server) getSettings(ctx *gin.Context) {
	user, ok := settingsUser(ctx)
	if !ok {
		return
	}

	s.mu.Lock()
	st := s.getOrCreate(user)
	s.mu.Unlock()

	ctx.JSON(http.StatusOK, st)
}

func validationBody(err error) gin.H {
	body := gin.H{}

	var ve *settings.ValidationError
	for _, e := range unwrapAll(err) {
		if errors.As(e, &ve) {
			body[ve.Field] = []string{ve.Message}
		}
	}

	if len(body) == 0 {
		body["detail"] = err.Error()
	}

	return body
}

func unwrapAll(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}

	return []error{err}
}

func (s *Server) patchSettings(ctx *gin.Context) {
	user, ok := settingsUser(ctx)
	if !ok {
		return
	}

	var patch settings.Patch
	if err := ctx.ShouldBindJSON(&patch); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})

		return
	}

	if err := patch.Validate(); err != nil {
		ctx.JSON(http.StatusBadRequest, validationBody(err))

		return
	}

	s.mu.Lock()
	st := patch.Apply(s.getOrCreate(user))
	s.settings[user] = st
	s.mu.Unlock()

	ctx.JSON(http.StatusOK, st)
}
