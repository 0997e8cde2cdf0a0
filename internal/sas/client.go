package sas

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Default polling configuration: one state check per second for up to a day.
const (
	DefaultPollInterval = time.Second
	DefaultMaxPollCount = 24 * 60 * 60
)

// errStillRunning keeps the poll loop going while the job has not settled.
var errStillRunning = errors.New("job still running")

// Client talks to a single SAS Viya server.
type Client struct {
	serverURL    string
	httpClient   *http.Client
	pollInterval time.Duration
	maxPollCount int
	logger       *slog.Logger
}

// Config configures a Client.
type Config struct {
	ServerURL    string        // e.g. https://viya.example.com
	HTTPClient   *http.Client  // default: http.Client with 60s timeout
	PollInterval time.Duration // pause between state checks (default: 1s)
	MaxPollCount int           // state checks before giving up (default: 86400)
	Logger       *slog.Logger
}

// NewClient creates a new client.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	maxPollCount := cfg.MaxPollCount
	if maxPollCount <= 0 {
		maxPollCount = DefaultMaxPollCount
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		serverURL:    strings.TrimRight(cfg.ServerURL, "/"),
		httpClient:   httpClient,
		pollInterval: pollInterval,
		maxPollCount: maxPollCount,
		logger:       logger,
	}
}

// StartComputeJob runs the job definition stored at jobPath and waits for it
// to settle.
//
// Steps:
//  1. Find the compute context by name
//  2. Create a compute session in it
//  3. Read the job definition code from the folders service
//  4. Submit the code as a job
//  5. Poll the job state until it leaves pending/running/queued
//  6. Fetch the final job resource (state, links, statistics)
//
// Any failure returns a *JobError. Its Job is set once the job was submitted
// so the caller can still locate the log.
func (c *Client) StartComputeJob(ctx context.Context, jobPath, contextName, accessToken string) (*Job, error) {
	if contextName == "" {
		contextName = DefaultContextName
	}
	logger := c.logger.With("job", jobPath, "context", contextName)

	ctxID, err := c.findContext(ctx, contextName, accessToken)
	if err != nil {
		return nil, &JobError{Message: "failed to find compute context", Err: err}
	}

	sess, err := c.createSession(ctx, ctxID, accessToken)
	if err != nil {
		return nil, &JobError{Message: "failed to create compute session", Err: err}
	}

	code, err := c.jobCode(ctx, jobPath, accessToken)
	if err != nil {
		return nil, &JobError{Message: "failed to read job definition", Err: err}
	}

	submitted, err := c.submit(ctx, sess.ID, path.Base(jobPath), code, accessToken)
	if err != nil {
		return nil, &JobError{Message: "failed to submit job", Err: err}
	}
	logger.Debug("job submitted", "session_id", sess.ID, "job_id", submitted.ID)

	jobURL := fmt.Sprintf("/compute/sessions/%s/jobs/%s", sess.ID, submitted.ID)

	state, err := c.pollState(ctx, jobURL, accessToken)
	if err != nil {
		return nil, &JobError{Job: submitted, Message: "failed to poll job state", Err: err}
	}
	logger.Debug("job settled", "state", state)

	var job Job
	if err := c.doJSON(ctx, http.MethodGet, jobURL, accessToken, nil, &job); err != nil {
		submitted.State = state
		return nil, &JobError{Job: submitted, Message: "failed to fetch job", Err: err}
	}
	if job.State == "" {
		job.State = state
	}

	return &job, nil
}

// FetchLog reads a job log from a "log" link href.
func (c *Client) FetchLog(ctx context.Context, href, accessToken string) (*Log, error) {
	var log Log
	if err := c.doJSON(ctx, http.MethodGet, withLimit(href), accessToken, nil, &log); err != nil {
		return nil, err
	}
	return &log, nil
}

func (c *Client) findContext(ctx context.Context, name, token string) (string, error) {
	var contexts collection[computeContext]
	p := "/compute/contexts?filter=" + url.QueryEscape(fmt.Sprintf("eq(name,%q)", name))
	if err := c.doJSON(ctx, http.MethodGet, p, token, nil, &contexts); err != nil {
		return "", err
	}
	for _, cc := range contexts.Items {
		if cc.Name == name {
			return cc.ID, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrContextNotFound, name)
}

func (c *Client) createSession(ctx context.Context, contextID, token string) (*session, error) {
	var sess session
	p := fmt.Sprintf("/compute/contexts/%s/sessions", contextID)
	if err := c.doJSON(ctx, http.MethodPost, p, token, struct{}{}, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// jobCode resolves a job path to its folder member and returns the code.
func (c *Client) jobCode(ctx context.Context, jobPath, token string) (string, error) {
	dir, name := path.Dir(jobPath), path.Base(jobPath)

	var f folder
	if err := c.doJSON(ctx, http.MethodGet, "/folders/folders/@item?path="+url.QueryEscape(dir), token, nil, &f); err != nil {
		return "", fmt.Errorf("folder %s: %w", dir, err)
	}

	var members collection[folderMember]
	p := fmt.Sprintf("/folders/folders/%s/members?filter=%s", f.ID, url.QueryEscape(fmt.Sprintf("eq(name,%q)", name)))
	if err := c.doJSON(ctx, http.MethodGet, p, token, nil, &members); err != nil {
		return "", err
	}

	var member *folderMember
	for i := range members.Items {
		if members.Items[i].Name == name {
			member = &members.Items[i]
			break
		}
	}
	if member == nil || member.URI == "" {
		return "", fmt.Errorf("%w: %s", ErrJobNotFound, jobPath)
	}

	var def jobDefinition
	if err := c.doJSON(ctx, http.MethodGet, member.URI, token, nil, &def); err != nil {
		return "", err
	}
	return def.Code, nil
}

func (c *Client) submit(ctx context.Context, sessionID, name, code, token string) (*Job, error) {
	req := jobRequest{
		Name: name,
		Code: strings.Split(code, "\n"),
	}

	var job Job
	p := fmt.Sprintf("/compute/sessions/%s/jobs", sessionID)
	if err := c.doJSON(ctx, http.MethodPost, p, token, req, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// pollState checks the job state every pollInterval, at most maxPollCount
// times. Client errors (4xx) stop polling at once; other failures use up a
// poll like a non-terminal state does.
func (c *Client) pollState(ctx context.Context, jobPath, token string) (string, error) {
	var state string

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.pollInterval), uint64(c.maxPollCount-1)),
		ctx,
	)

	err := backoff.Retry(func() error {
		s, err := c.state(ctx, jobPath, token)
		if err != nil {
			var se *StatusError
			if errors.As(err, &se) && se.StatusCode < 500 {
				return backoff.Permanent(err)
			}
			return err
		}

		state = s
		switch s {
		case StatePending, StateRunning, StateQueued, "":
			return errStillRunning
		default:
			return nil
		}
	}, b)
	if err != nil {
		if errors.Is(err, errStillRunning) {
			return state, fmt.Errorf("%w after %d checks (last state %q)", ErrPollExhausted, c.maxPollCount, state)
		}
		return state, err
	}

	return state, nil
}

// state returns the job state; the endpoint answers with plain text.
func (c *Client) state(ctx context.Context, jobPath, token string) (string, error) {
	resp, err := c.do(ctx, http.MethodGet, jobPath+"/state", token, nil, "text/plain")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return "", err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read state: %w", err)
	}
	return strings.Trim(strings.TrimSpace(string(data)), `"`), nil
}

// --- HTTP helpers ---

func (c *Client) doJSON(ctx context.Context, method, p, token string, body, result any) error {
	resp, err := c.do(ctx, method, p, token, body, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	if result == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, p, token string, body any, accept string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.resolve(p), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", accept)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	se := &StatusError{StatusCode: resp.StatusCode}
	if resp.Request != nil {
		se.Method = resp.Request.Method
		se.URL = resp.Request.URL.Path
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err == nil {
		se.Message = er.Message
	}
	return se
}

// resolve turns a server-relative href into an absolute URL.
func (c *Client) resolve(p string) string {
	if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
		return p
	}
	return c.serverURL + p
}

// withLimit asks the log endpoint for all lines in a single page.
func withLimit(href string) string {
	if strings.Contains(href, "limit=") {
		return href
	}
	sep := "?"
	if strings.Contains(href, "?") {
		sep = "&"
	}
	return href + sep + "limit=10000000"
}
