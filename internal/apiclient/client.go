package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pershin-daniil/clinicconsole/pkg/models"
)

const maxErrorBody = 1 << 16

var (
	ErrUnauthorized = errors.New("backend rejected the session")
	ErrNoSession    = errors.New("no active session")
)

// APIError is a failed backend call. Status 0 means the backend was not reached.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("backend unreachable: %s", e.Detail)
	}
	if e.Detail == "" {
		return fmt.Sprintf("backend returned %d", e.Status)
	}
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Detail)
}

// Transient reports whether re-triggering the same read may succeed.
func (e *APIError) Transient() bool {
	return e.Status == 0 || e.Status >= http.StatusInternalServerError
}

// Authorizer attaches the caller's credential to an outgoing request.
type Authorizer interface {
	Authorize(req *http.Request) error
}

type Client struct {
	log     *logrus.Entry
	baseURL string
	http    *http.Client
}

func New(log *logrus.Logger, baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		log:     log.WithField("component", "apiclient"),
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) HTTPClient() *http.Client {
	return c.http
}

func (c *Client) Signup(ctx context.Context, req models.StaffRequest) (models.Staff, error) {
	var staff models.Staff
	if err := c.do(ctx, http.MethodPost, "/funcionarios/signup", nil, req, &staff); err != nil {
		return models.Staff{}, err
	}
	return staff, nil
}

func (c *Client) ListStaff(ctx context.Context, auth Authorizer) ([]models.Staff, error) {
	if auth == nil {
		return nil, ErrNoSession
	}
	var staff []models.Staff
	if err := c.do(ctx, http.MethodGet, "/admin/funcionarios", auth, nil, &staff); err != nil {
		return nil, err
	}
	return staff, nil
}

func (c *Client) ApproveStaff(ctx context.Context, auth Authorizer, id int) (models.Staff, error) {
	if auth == nil {
		return models.Staff{}, ErrNoSession
	}
	var staff models.Staff
	if err := c.do(ctx, http.MethodPost, "/admin/aprovar/"+strconv.Itoa(id), auth, nil, &staff); err != nil {
		return models.Staff{}, err
	}
	return staff, nil
}

func (c *Client) RemoveStaff(ctx context.Context, auth Authorizer, id int) error {
	if auth == nil {
		return ErrNoSession
	}
	return c.do(ctx, http.MethodDelete, "/admin/remover/"+strconv.Itoa(id), auth, nil, nil)
}

func (c *Client) ListClinics(ctx context.Context, auth Authorizer) ([]models.Clinic, error) {
	if auth == nil {
		return nil, ErrNoSession
	}
	var clinics []models.Clinic
	if err := c.do(ctx, http.MethodGet, "/clinicas", auth, nil, &clinics); err != nil {
		return nil, err
	}
	return clinics, nil
}

func (c *Client) ListBookings(ctx context.Context, auth Authorizer, clinicID *int) ([]models.Booking, error) {
	if auth == nil {
		return nil, ErrNoSession
	}
	path := "/consultas"
	if clinicID != nil {
		path += "?" + url.Values{"clinica_id": {strconv.Itoa(*clinicID)}}.Encode()
	}
	var bookings []models.Booking
	if err := c.do(ctx, http.MethodGet, path, auth, nil, &bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

// Notify submits exactly one send request. It never retries.
func (c *Client) Notify(ctx context.Context, auth Authorizer, n models.Notification) error {
	if auth == nil {
		return ErrNoSession
	}
	return c.do(ctx, http.MethodPost, "/notificar", auth, n, nil)
}

func (c *Client) do(ctx context.Context, method, path string, auth Authorizer, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("err during encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("err during building request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if auth != nil {
		if err = auth.Authorize(req); err != nil {
			return err
		}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warnf("err during %s %s: %v", method, path, err)
		return &APIError{Detail: err.Error()}
	}
	defer func() {
		if err = resp.Body.Close(); err != nil {
			c.log.Warnf("err during closing body: %v", err)
		}
	}()
	// 401 and 403 both mean the token no longer grants access.
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		if detail := ReadDetail(resp.Body); detail != "" {
			return fmt.Errorf("%w: %s", ErrUnauthorized, detail)
		}
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Detail: ReadDetail(resp.Body)}
	}
	if out == nil {
		return nil
	}
	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &APIError{Status: resp.StatusCode, Detail: fmt.Sprintf("err during decoding response: %v", err)}
	}
	return nil
}

// ReadDetail extracts the "detail" member of an error body. Non-string
// details (validation error lists) are returned as raw JSON.
func ReadDetail(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(data) == 0 {
		return ""
	}
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err = json.Unmarshal(data, &payload); err != nil || len(payload.Detail) == 0 {
		return ""
	}
	var detail string
	if err = json.Unmarshal(payload.Detail, &detail); err == nil {
		return detail
	}
	return string(payload.Detail)
}
