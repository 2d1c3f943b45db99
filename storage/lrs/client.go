package lrs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/xiangenhu/polyuhulab-sub000/core"
	"github.com/xiangenhu/polyuhulab-sub000/core/xapi"
)

// xAPIVersion is the protocol version announced on every request.
const xAPIVersion = "1.0.3"

const (
	defaultTimeout  = 30 * time.Second
	defaultPageSize = 100
	defaultTokenTTL = 5 * time.Minute
	backoffBase     = 250 * time.Millisecond
)

// Client talks to a Learning Record Store over HTTP. Transient failures
// (network errors, 429, 5xx) are retried with doubled backoff up to the
// configured ceiling; statement ids are assigned before the first attempt so
// a retried append stays idempotent on the LRS side.
type Client struct {
	endpoint   string // base URL up to and including the xAPI root, no trailing slash
	authScheme string
	username   string
	password   string
	secret     []byte
	tokenTTL   time.Duration
	issuer     string
	maxRetries int
	pageSize   int

	http   *http.Client
	logger core.Logger
}

var _ xapi.Client = (*Client)(nil)

func NewClient(conf *core.Config, logger core.Logger) *Client {
	lc := conf.LRS
	timeout := lc.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	pageSize := lc.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	tokenTTL := lc.TokenTTL
	if tokenTTL <= 0 {
		tokenTTL = defaultTokenTTL
	}
	return &Client{
		endpoint:   strings.TrimRight(lc.Endpoint, "/"),
		authScheme: strings.ToLower(lc.AuthScheme),
		username:   lc.Username,
		password:   lc.Password,
		secret:     lc.Secret,
		tokenTTL:   tokenTTL,
		issuer:     conf.AppName,
		maxRetries: lc.MaxRetries,
		pageSize:   pageSize,
		http:       &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// About verifies connectivity and that the store speaks a supported
// protocol version.
func (c *Client) About(ctx context.Context) error {
	resp, err := c.do(ctx, "about", http.MethodGet, c.url("/about", nil), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return respErr("about", resp)
	}

	var about struct {
		Version []string `json:"version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&about); err != nil {
		return errors.Wrap(err, "decoding about")
	}
	for _, version := range about.Version {
		if strings.HasPrefix(version, "1.0") {
			return nil
		}
	}
	return errors.Errorf("record store supports versions %v, need 1.0.x", about.Version)
}

func (c *Client) SaveStatement(ctx context.Context, stmt *xapi.Statement) (string, error) {
	if stmt.ID == "" {
		stmt.ID = uuid.New().String()
	}
	if stmt.Timestamp.IsZero() {
		stmt.Timestamp = time.Now().UTC()
	}
	body, err := json.Marshal(stmt)
	if err != nil {
		return "", errors.Wrap(err, "encoding statement")
	}

	params := url.Values{"statementId": {stmt.ID}}
	resp, err := c.do(ctx, "saving statement", http.MethodPut, c.url("/statements", params), body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return "", respErr("saving statement", resp)
	}
	return stmt.ID, nil
}

func (c *Client) Query(ctx context.Context, filter xapi.Filter) (xapi.Cursor, error) {
	params := url.Values{}
	if filter.Agent != nil {
		agent, err := json.Marshal(filter.Agent)
		if err != nil {
			return nil, errors.Wrap(err, "encoding agent filter")
		}
		params.Set("agent", string(agent))
	}
	if filter.Verb != "" {
		params.Set("verb", filter.Verb)
	}
	if filter.Activity != "" {
		params.Set("activity", filter.Activity)
	}
	if !filter.Since.IsZero() {
		params.Set("since", filter.Since.UTC().Format(time.RFC3339Nano))
	}
	if !filter.Until.IsZero() {
		params.Set("until", filter.Until.UTC().Format(time.RFC3339Nano))
	}
	if filter.Ascending {
		params.Set("ascending", "true")
	}
	remain := filter.EffectiveLimit()
	params.Set("limit", strconv.Itoa(min(remain, c.pageSize)))

	cur := &statementCursor{client: c, next: c.url("/statements", params), remain: remain}
	return cur, nil
}

func (c *Client) GetAgentProfile(ctx context.Context, agent xapi.Agent, profileID string) ([]byte, error) {
	params, err := agentParams(agent)
	if err != nil {
		return nil, err
	}
	params.Set("profileId", profileID)
	return c.getDocument(ctx, "reading agent profile", c.url("/agents/profile", params))
}

func (c *Client) SaveAgentProfile(ctx context.Context, agent xapi.Agent, profileID string, doc []byte) error {
	params, err := agentParams(agent)
	if err != nil {
		return err
	}
	params.Set("profileId", profileID)
	return c.putDocument(ctx, "writing agent profile", c.url("/agents/profile", params), doc)
}

func (c *Client) GetActivityState(ctx context.Context, agent xapi.Agent, activityID, stateID string) ([]byte, error) {
	params, err := agentParams(agent)
	if err != nil {
		return nil, err
	}
	params.Set("activityId", activityID)
	params.Set("stateId", stateID)
	return c.getDocument(ctx, "reading activity state", c.url("/activities/state", params))
}

func (c *Client) SaveActivityState(ctx context.Context, agent xapi.Agent, activityID, stateID string, doc []byte) error {
	params, err := agentParams(agent)
	if err != nil {
		return err
	}
	params.Set("activityId", activityID)
	params.Set("stateId", stateID)
	return c.putDocument(ctx, "writing activity state", c.url("/activities/state", params), doc)
}

func (c *Client) getDocument(ctx context.Context, op, rawurl string) ([]byte, error) {
	resp, err := c.do(ctx, op, http.MethodGet, rawurl, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
		doc, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, errors.Wrap(err, op)
		}
		return doc, nil
	case http.StatusNotFound:
		return nil, xapi.ErrNotFound
	default:
		return nil, respErr(op, resp)
	}
}

func (c *Client) putDocument(ctx context.Context, op, rawurl string, doc []byte) error {
	resp, err := c.do(ctx, op, http.MethodPut, rawurl, doc)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return respErr(op, resp)
	}
	return nil
}

// do sends a request, rebuilding it per attempt and retrying transient
// failures. A context deadline blown anywhere surfaces as ErrTimeout.
func (c *Client) do(ctx context.Context, op, method, rawurl string, body []byte) (*http.Response, error) {
	var (
		lastErr  error
		lastCode int
	)
	backoff := backoffBase
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Warn(fmt.Sprintf("%s: retrying after %v (attempt %d/%d)", op, backoff, attempt, c.maxRetries))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctxErr(op, ctx.Err())
			}
			backoff *= 2
		}

		req, err := c.newRequest(ctx, method, rawurl, body)
		if err != nil {
			return nil, err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			if ctxe := ctx.Err(); ctxe != nil {
				return nil, ctxErr(op, ctxe)
			}
			lastErr, lastCode = err, 0
			continue
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			lastErr, lastCode = errors.New(resp.Status), resp.StatusCode
			resp.Body.Close()
			continue
		}
		return resp, nil
	}
	return nil, xapi.NewUpstreamError(op, lastCode, lastErr)
}

func (c *Client) newRequest(ctx context.Context, method, rawurl string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawurl, reader)
	if err != nil {
		return nil, errors.Wrap(err, "building request")
	}
	req.Header.Set("X-Experience-API-Version", xAPIVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := c.authorize(req); err != nil {
		return nil, err
	}
	return req, nil
}

// authorize attaches credentials: basic auth, or a freshly minted HS256
// bearer token when the store expects JWTs.
func (c *Client) authorize(req *http.Request) error {
	switch c.authScheme {
	case "", "basic":
		req.SetBasicAuth(c.username, c.password)
		return nil
	case "jwt":
		now := time.Now()
		claims := jwt.StandardClaims{
			Issuer:    c.issuer,
			Subject:   c.username,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(c.tokenTTL).Unix(),
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
		if err != nil {
			return errors.Wrap(err, "signing bearer token")
		}
		req.Header.Set("Authorization", "Bearer "+token)
		return nil
	}
	return errors.Errorf("unsupported auth scheme %q", c.authScheme)
}

func (c *Client) url(path string, params url.Values) string {
	rawurl := c.endpoint + path
	if len(params) > 0 {
		rawurl += "?" + params.Encode()
	}
	return rawurl
}

// resolve turns the more-link of a statement result, which is
// server-relative, into an absolute URL on the store's host.
func (c *Client) resolve(more string) (string, error) {
	base, err := url.Parse(c.endpoint)
	if err != nil {
		return "", errors.Wrap(err, "parsing endpoint")
	}
	ref, err := url.Parse(more)
	if err != nil {
		return "", errors.Wrap(err, "parsing more link")
	}
	return base.ResolveReference(ref).String(), nil
}

func agentParams(agent xapi.Agent) (url.Values, error) {
	raw, err := json.Marshal(agent)
	if err != nil {
		return nil, errors.Wrap(err, "encoding agent")
	}
	return url.Values{"agent": {string(raw)}}, nil
}

// respErr drains an unexpected response into an upstream error.
func respErr(op string, resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.TrimSpace(string(snippet))
	if msg == "" {
		msg = resp.Status
	}
	return xapi.NewUpstreamError(op, resp.StatusCode, errors.New(msg))
}

func ctxErr(op string, err error) error {
	if err == context.DeadlineExceeded {
		return xapi.ErrTimeout
	}
	return xapi.NewUpstreamError(op, 0, err)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// statementCursor pages through a statement result by following more links.
// remain enforces the filter limit across pages.
type statementCursor struct {
	client *Client
	stmts  []xapi.Statement
	pos    int
	next   string // URL of the next page; empty once exhausted
	remain int
	err    error
}

var _ xapi.Cursor = (*statementCursor)(nil)

func (c *statementCursor) Next(ctx context.Context) bool {
	if c.err != nil || c.remain <= 0 {
		return false
	}
	for c.pos >= len(c.stmts) {
		if c.next == "" {
			return false
		}
		if err := c.fetchPage(ctx); err != nil {
			c.err = err
			return false
		}
	}
	c.pos++
	c.remain--
	return true
}

func (c *statementCursor) Statement() xapi.Statement {
	return c.stmts[c.pos-1]
}

func (c *statementCursor) Err() error { return c.err }

func (c *statementCursor) fetchPage(ctx context.Context) error {
	resp, err := c.client.do(ctx, "querying statements", http.MethodGet, c.next, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return respErr("querying statements", resp)
	}

	var page struct {
		Statements []xapi.Statement `json:"statements"`
		More       string           `json:"more"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return errors.Wrap(err, "decoding statement result")
	}

	c.stmts = page.Statements
	c.pos = 0
	c.next = ""
	if page.More != "" {
		next, err := c.client.resolve(page.More)
		if err != nil {
			return err
		}
		c.next = next
	}
	return nil
}
