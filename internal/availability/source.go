package availability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"eventcal/internal/dateutil"
	"eventcal/internal/model"
)

// Source looks up seat counts for one instance.
type Source interface {
	Lookup(ctx context.Context, eventID string, date dateutil.Date) (model.Availability, error)
}

// HTTPSource queries GET {base}/events/{id}/availability?instanceDate=YYYY-MM-DD.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// availabilityResponse tolerates both bare and {"availability": {...}} bodies.
type availabilityResponse struct {
	model.Availability
	Wrapped *model.Availability `json:"availability"`
}

func (s *HTTPSource) Lookup(ctx context.Context, eventID string, date dateutil.Date) (model.Availability, error) {
	if eventID == "" {
		return model.Availability{}, errors.New("availability: empty event id")
	}

	u := fmt.Sprintf("%s/events/%s/availability", s.baseURL, url.PathEscape(eventID))
	if !date.IsZero() {
		u += "?" + url.Values{"instanceDate": {date.String()}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return model.Availability{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return model.Availability{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return model.Availability{}, fmt.Errorf("availability: %s", resp.Status)
	}

	var body availabilityResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return model.Availability{}, fmt.Errorf("availability: decode: %w", err)
	}
	if body.Wrapped != nil {
		return *body.Wrapped, nil
	}
	return body.Availability, nil
}
