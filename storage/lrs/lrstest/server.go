package lrstest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/xiangenhu/polyuhulab-sub000/core/xapi"
	"github.com/xiangenhu/polyuhulab-sub000/storage/lrs/inmem"
)

// maxMatch bounds how many statements a single query materializes.
const maxMatch = 1 << 20

// Server is an in-process Learning Record Store covering the slice of the
// xAPI this application talks: statements (write + filtered read with more
// links), agent profiles, activity states and the about probe. It backs the
// HTTP client tests and the admin devlrs command.
type Server struct {
	// Credentials accepted via basic auth; the Secret verifies bearer
	// tokens. Either scheme unlocks the API.
	Username string
	Password string
	Secret   []byte
	// PageSize forces statement results through more-link paging; 0 serves
	// up to the requested limit in one page.
	PageSize int

	store *inmem.Store
	echo  *echo.Echo

	mu    sync.Mutex
	pages map[string]pendingPage
}

// pendingPage is the unserved tail of a paged statement result.
type pendingPage struct {
	stmts []xapi.Statement
	limit int
}

type statementResult struct {
	Statements []xapi.Statement `json:"statements"`
	More       string           `json:"more,omitempty"`
}

func NewServer(username, password string, secret []byte) *Server {
	s := &Server{
		Username: username,
		Password: password,
		Secret:   secret,
		store:    inmem.NewStore(),
		pages:    make(map[string]pendingPage),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetLevel(log.OFF)
	e.Pre(middleware.RemoveTrailingSlash())

	// about is the discovery endpoint; it needs neither header
	e.GET("/xapi/about", s.about)

	api := e.Group("/xapi", s.requireVersion, s.requireAuth)
	api.PUT("/statements", s.putStatement)
	api.GET("/statements", s.getStatements)
	api.GET("/agents/profile", s.getAgentProfile)
	api.PUT("/agents/profile", s.putAgentProfile)
	api.GET("/activities/state", s.getActivityState)
	api.PUT("/activities/state", s.putActivityState)

	s.echo = e
	return s
}

// ServeHTTP lets the server sit behind httptest.NewServer.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Store exposes the backing store for seeding and assertions.
func (s *Server) Store() *inmem.Store { return s.store }

// Start serves on addr until the process ends. Used by admin devlrs.
func (s *Server) Start(addr string) error {
	s.echo.Logger.SetLevel(log.INFO)
	return s.echo.Start(addr)
}

// Shutdown stops a started server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) requireVersion(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if v := c.Request().Header.Get("X-Experience-API-Version"); !strings.HasPrefix(v, "1.0") {
			return echo.NewHTTPError(http.StatusBadRequest, "missing or unsupported X-Experience-API-Version")
		}
		return next(c)
	}
}

func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		switch {
		case strings.HasPrefix(header, "Basic "):
			username, password, ok := c.Request().BasicAuth()
			if ok && username == s.Username && password == s.Password {
				return next(c)
			}
		case strings.HasPrefix(header, "Bearer "):
			if s.validToken(strings.TrimPrefix(header, "Bearer ")) {
				return next(c)
			}
		}
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}
}

func (s *Server) validToken(raw string) bool {
	token, err := jwt.ParseWithClaims(raw, &jwt.StandardClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, echo.NewHTTPError(http.StatusUnauthorized, "unexpected signing method")
		}
		return s.Secret, nil
	})
	return err == nil && token.Valid
}

func (s *Server) about(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string][]string{"version": {"1.0.3"}})
}

func (s *Server) putStatement(c echo.Context) error {
	var stmt xapi.Statement
	if err := c.Bind(&stmt); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed statement")
	}
	if id := c.QueryParam("statementId"); id != "" {
		if stmt.ID != "" && stmt.ID != id {
			return echo.NewHTTPError(http.StatusBadRequest, "statementId does not match the statement")
		}
		stmt.ID = id
	}
	if _, err := s.store.SaveStatement(c.Request().Context(), &stmt); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) getStatements(c echo.Context) error {
	if token := c.QueryParam("more"); token != "" {
		s.mu.Lock()
		page, ok := s.pages[token]
		delete(s.pages, token)
		s.mu.Unlock()
		if !ok {
			return echo.NewHTTPError(http.StatusNotFound, "unknown more token")
		}
		return s.reply(c, page.stmts, page.limit)
	}

	filter, limit, err := parseFilter(c)
	if err != nil {
		return err
	}
	filter.Limit = maxMatch
	cur, err := s.store.Query(c.Request().Context(), filter)
	if err != nil {
		return err
	}
	stmts, err := xapi.Collect(c.Request().Context(), cur, maxMatch)
	if err != nil {
		return err
	}
	return s.reply(c, stmts, limit)
}

// reply serves one page and parks the rest behind a more token.
func (s *Server) reply(c echo.Context, stmts []xapi.Statement, limit int) error {
	cut := len(stmts)
	if limit > 0 && limit < cut {
		cut = limit
	}
	if s.PageSize > 0 && s.PageSize < cut {
		cut = s.PageSize
	}

	result := statementResult{Statements: stmts[:cut]}
	if rest := stmts[cut:]; len(rest) > 0 {
		token := uuid.New().String()
		s.mu.Lock()
		s.pages[token] = pendingPage{stmts: rest, limit: limit}
		s.mu.Unlock()
		result.More = "/xapi/statements?more=" + token
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) getAgentProfile(c echo.Context) error {
	agent, err := parseAgent(c)
	if err != nil {
		return err
	}
	doc, err := s.store.GetAgentProfile(c.Request().Context(), agent, c.QueryParam("profileId"))
	if err == xapi.ErrNotFound {
		return echo.NewHTTPError(http.StatusNotFound, "no such profile")
	}
	if err != nil {
		return err
	}
	return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, doc)
}

func (s *Server) putAgentProfile(c echo.Context) error {
	agent, err := parseAgent(c)
	if err != nil {
		return err
	}
	doc, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable document")
	}
	if err := s.store.SaveAgentProfile(c.Request().Context(), agent, c.QueryParam("profileId"), doc); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) getActivityState(c echo.Context) error {
	agent, err := parseAgent(c)
	if err != nil {
		return err
	}
	doc, err := s.store.GetActivityState(c.Request().Context(), agent, c.QueryParam("activityId"), c.QueryParam("stateId"))
	if err == xapi.ErrNotFound {
		return echo.NewHTTPError(http.StatusNotFound, "no such state")
	}
	if err != nil {
		return err
	}
	return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, doc)
}

func (s *Server) putActivityState(c echo.Context) error {
	agent, err := parseAgent(c)
	if err != nil {
		return err
	}
	doc, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable document")
	}
	if err := s.store.SaveActivityState(c.Request().Context(), agent, c.QueryParam("activityId"), c.QueryParam("stateId"), doc); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func parseAgent(c echo.Context) (xapi.Agent, error) {
	var agent xapi.Agent
	raw := c.QueryParam("agent")
	if raw == "" {
		return agent, echo.NewHTTPError(http.StatusBadRequest, "agent parameter is required")
	}
	if err := json.Unmarshal([]byte(raw), &agent); err != nil {
		return agent, echo.NewHTTPError(http.StatusBadRequest, "malformed agent parameter")
	}
	return agent, nil
}

func parseFilter(c echo.Context) (xapi.Filter, int, error) {
	var filter xapi.Filter
	if raw := c.QueryParam("agent"); raw != "" {
		var agent xapi.Agent
		if err := json.Unmarshal([]byte(raw), &agent); err != nil {
			return filter, 0, echo.NewHTTPError(http.StatusBadRequest, "malformed agent parameter")
		}
		filter.Agent = &agent
	}
	filter.Verb = c.QueryParam("verb")
	filter.Activity = c.QueryParam("activity")
	if raw := c.QueryParam("since"); raw != "" {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return filter, 0, echo.NewHTTPError(http.StatusBadRequest, "malformed since parameter")
		}
		filter.Since = ts
	}
	if raw := c.QueryParam("until"); raw != "" {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return filter, 0, echo.NewHTTPError(http.StatusBadRequest, "malformed until parameter")
		}
		filter.Until = ts
	}
	filter.Ascending = c.QueryParam("ascending") == "true"

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return filter, 0, echo.NewHTTPError(http.StatusBadRequest, "malformed limit parameter")
		}
		limit = n
	}
	return filter, limit, nil
}
