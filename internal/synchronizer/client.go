// Package synchronizer talks to the remote question/test service. It is the
// only component performing network I/O for per-question actions.
package synchronizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-runner/internal/model"
)

// Client is bound to one session credential. A single Client tracks the
// in-flight requests of every question it submits for.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger

	credMu     sync.RWMutex
	credential string

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// New creates a Client. httpClient may be nil; no client-side timeout is
// applied beyond what the transport provides.
func New(baseURL, credential string, httpClient *http.Client, log zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       httpClient,
		log:        log.With().Str("component", "synchronizer").Logger(),
		credential: credential,
		inFlight:   make(map[string]struct{}),
	}
}

// SetCredential replaces the bearer credential after re-authentication.
func (c *Client) SetCredential(credential string) {
	c.credMu.Lock()
	c.credential = credential
	c.credMu.Unlock()
}

func (c *Client) bearer() string {
	c.credMu.RLock()
	defer c.credMu.RUnlock()
	return c.credential
}

// InFlight reports whether a request for the question has not resolved.
func (c *Client) InFlight(sessionID, questionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inFlight[inFlightKey(sessionID, questionID)]
	return ok
}

func (c *Client) acquire(sessionID, questionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := inFlightKey(sessionID, questionID)
	if _, ok := c.inFlight[k]; ok {
		return false
	}
	c.inFlight[k] = struct{}{}
	return true
}

func (c *Client) release(sessionID, questionID string) {
	c.mu.Lock()
	delete(c.inFlight, inFlightKey(sessionID, questionID))
	c.mu.Unlock()
}

func inFlightKey(sessionID, questionID string) string {
	return sessionID + "|" + questionID
}

type interactionRequest struct {
	TestID string `json:"testId"`
	model.InteractionUpdate
}

// clearedRequest shadows the embedded answer so it is sent as null.
type clearedRequest struct {
	interactionRequest
	SelectedAnswer *int `json:"selectedAnswer"`
}

func encodeInteraction(sessionID string, upd model.InteractionUpdate) ([]byte, error) {
	req := interactionRequest{TestID: sessionID, InteractionUpdate: upd}
	if upd.ClearAnswer {
		return json.Marshal(clearedRequest{interactionRequest: req})
	}
	return json.Marshal(req)
}

type interactionResponse struct {
	UserInteractions []model.InteractionResult `json:"userInteractions"`
}

// Submit sends an interaction update for one question. A second call for the
// same question while one is pending fails fast with ErrAlreadyInFlight.
func (c *Client) Submit(ctx context.Context, sessionID, questionID string, upd model.InteractionUpdate) (model.InteractionResult, error) {
	if !c.acquire(sessionID, questionID) {
		return model.InteractionResult{}, model.ErrAlreadyInFlight
	}
	defer c.release(sessionID, questionID)

	const op = "submit interaction"
	body, err := encodeInteraction(sessionID, upd)
	if err != nil {
		return model.InteractionResult{}, &model.SyncError{Op: op, Kind: model.SyncKindDecode, Err: err}
	}

	endpoint := fmt.Sprintf("%s/api/questions/%s/interaction", c.baseURL, url.PathEscape(questionID))
	var out interactionResponse
	if err := c.do(ctx, op, http.MethodPut, endpoint, body, &out); err != nil {
		c.log.Error().Err(err).
			Str("session_id", sessionID).
			Str("question_id", questionID).
			Msg("Interaction sync failed")
		return model.InteractionResult{}, err
	}
	if len(out.UserInteractions) == 0 {
		return model.InteractionResult{}, &model.SyncError{Op: op, Kind: model.SyncKindDecode, Err: errors.New("empty userInteractions")}
	}
	return out.UserInteractions[0], nil
}

// Finalize closes the attempt for scoring. It is not retried automatically.
func (c *Client) Finalize(ctx context.Context, sessionID string) error {
	endpoint := fmt.Sprintf("%s/api/tests/%s/submit", c.baseURL, url.PathEscape(sessionID))
	return c.do(ctx, "finalize session", http.MethodPost, endpoint, []byte("{}"), nil)
}

// Cancel abandons the attempt server-side.
func (c *Client) Cancel(ctx context.Context, sessionID string) error {
	endpoint := fmt.Sprintf("%s/api/tests/%s/cancel", c.baseURL, url.PathEscape(sessionID))
	return c.do(ctx, "cancel session", http.MethodPost, endpoint, []byte("{}"), nil)
}

type resultsResponse struct {
	Analytics struct {
		Correct      int `json:"correct"`
		Incorrect    int `json:"incorrect"`
		NotAttempted int `json:"notAttempted"`
		Flagged      int `json:"flagged"`
	} `json:"analytics"`
	Questions []json.RawMessage `json:"questions"`
}

// Results fetches the analytics summary of a finalized attempt.
func (c *Client) Results(ctx context.Context, sessionID string) (model.TestResults, error) {
	endpoint := fmt.Sprintf("%s/api/tests/%s", c.baseURL, url.PathEscape(sessionID))
	var out resultsResponse
	if err := c.do(ctx, "fetch results", http.MethodGet, endpoint, nil, &out); err != nil {
		return model.TestResults{}, err
	}
	return model.TestResults{
		SessionID:    sessionID,
		Correct:      out.Analytics.Correct,
		Incorrect:    out.Analytics.Incorrect,
		NotAttempted: out.Analytics.NotAttempted,
		Flagged:      out.Analytics.Flagged,
		Total:        len(out.Questions),
	}, nil
}

func (c *Client) do(ctx context.Context, op, method, endpoint string, body []byte, dst any) error {
	token := c.bearer()
	if Expired(token) {
		return &model.SyncError{Op: op, Kind: model.SyncKindUnauthorized, Err: errCredentialExpired}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return &model.SyncError{Op: op, Kind: model.SyncKindNetwork, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return &model.SyncError{Op: op, Kind: model.SyncKindNetwork, Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusUnauthorized {
		return &model.SyncError{Op: op, Kind: model.SyncKindUnauthorized, Status: res.StatusCode}
	}
	if res.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		var detail error
		if s := strings.TrimSpace(string(msg)); s != "" {
			detail = errors.New(s)
		}
		return &model.SyncError{Op: op, Kind: model.SyncKindServer, Status: res.StatusCode, Err: detail}
	}

	if dst == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(dst); err != nil {
		return &model.SyncError{Op: op, Kind: model.SyncKindDecode, Status: res.StatusCode, Err: err}
	}
	return nil
}
