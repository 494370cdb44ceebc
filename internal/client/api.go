package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"retroboard/pkg/types"
)

// RetroList mirrors the GET /api/retros response
type RetroList struct {
	Active     *types.PublicSession   `json:"active"`
	PastRetros []types.ArchiveSummary `json:"pastRetros"`
}

// APIError is a non-2xx response from the JSON API
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// API calls the HTTP endpoints of a retro server
type API struct {
	baseURL string
	http    *http.Client
}

// NewAPI creates an API client. baseURL is the server root, e.g. http://localhost:3001
func NewAPI(baseURL string) *API {
	return &API{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (a *API) CreateRetro(ctx context.Context, sprintName string, timerDuration int) (*types.Credentials, error) {
	body, err := json.Marshal(map[string]interface{}{
		"sprintName":    sprintName,
		"timerDuration": timerDuration,
	})
	if err != nil {
		return nil, err
	}

	var creds types.Credentials
	if err := a.do(ctx, http.MethodPost, "/api/retro", body, &creds); err != nil {
		return nil, err
	}
	return &creds, nil
}

func (a *API) GetRetro(ctx context.Context, id string) (*types.PublicSession, error) {
	var snapshot types.PublicSession
	if err := a.do(ctx, http.MethodGet, "/api/retro/"+id, nil, &snapshot); err != nil {
		return nil, err
	}
	snapshot.Normalize()
	return &snapshot, nil
}

func (a *API) ListRetros(ctx context.Context) (*RetroList, error) {
	var list RetroList
	if err := a.do(ctx, http.MethodGet, "/api/retros", nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// ExportCSV downloads the CSV rendering of a retro
func (a *API) ExportCSV(ctx context.Context, id string) (string, error) {
	resp, err := a.send(ctx, http.MethodGet, "/api/retro/"+id+"/export", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read export: %w", err)
	}
	return string(data), nil
}

func (a *API) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	resp, err := a.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s: %w", method, path, err)
	}
	return nil
}

// send performs the request and turns non-2xx responses into *APIError
func (a *API) send(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode/100 == 2 {
		return resp, nil
	}
	defer resp.Body.Close()

	var payload struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	return nil, &APIError{StatusCode: resp.StatusCode, Message: payload.Error}
}
