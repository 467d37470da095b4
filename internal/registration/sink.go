package registration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	appLog "eventcal/internal/log"
)

// Receipt is the registration API's confirmation.
type Receipt struct {
	SubmissionID   string `json:"submission_id"`
	NumberOfPeople int    `json:"number_of_people"`
	Email          string `json:"email"`
}

// Sink accepts a validated submission. Implementations return ErrFull or
// ErrRejected (wrapped) when the backend refuses it.
type Sink interface {
	Submit(ctx context.Context, submissionID string, sub Submission) (Receipt, error)
}

// HTTPSink posts to {base}/registrations.
type HTTPSink struct {
	baseURL string
	client  *http.Client
}

func NewHTTPSink(baseURL string, timeout time.Duration) *HTTPSink {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPSink{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type wireRequest struct {
	SubmissionID           string  `json:"submissionId"`
	EventID                any     `json:"eventId"`
	EventInstanceDate      string  `json:"eventInstanceDate"`
	FirstName              string  `json:"firstName"`
	LastName               string  `json:"lastName"`
	Email                  string  `json:"email"`
	Phone                  string  `json:"phone"`
	NumberOfPeople         int     `json:"numberOfPeople"`
	CompanyName            *string `json:"companyName"`
	ReasonForTraining      string  `json:"reasonForTraining"`
	ReasonOtherExplanation *string `json:"reasonOtherExplanation"`
	Comments               *string `json:"comments"`
}

type wireResponse struct {
	Success      bool   `json:"success"`
	Error        string `json:"error"`
	Message      string `json:"message"`
	Registration *struct {
		NumberOfPeople int    `json:"numberOfPeople"`
		Email          string `json:"email"`
	} `json:"registration"`
}

func (s *HTTPSink) Submit(ctx context.Context, submissionID string, sub Submission) (Receipt, error) {
	body, err := json.Marshal(toWire(submissionID, sub))
	if err != nil {
		return Receipt{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/registrations", bytes.NewReader(body))
	if err != nil {
		return Receipt{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", submissionID)

	resp, err := s.client.Do(req)
	if err != nil {
		return Receipt{}, fmt.Errorf("registration: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Receipt{}, fmt.Errorf("registration: read response: %w", err)
	}
	var wr wireResponse
	if err := json.Unmarshal(raw, &wr); err != nil {
		appLog.Debug("registration response is not JSON", "status", resp.StatusCode)
	}

	msg := wr.Error
	if msg == "" {
		msg = wr.Message
	}
	switch {
	case resp.StatusCode == http.StatusConflict:
		return Receipt{}, fmt.Errorf("%w: %s", ErrFull, orDefault(msg, resp.Status))
	case resp.StatusCode < 200 || resp.StatusCode > 299 || !wr.Success:
		return Receipt{}, fmt.Errorf("%w: %s", ErrRejected, orDefault(msg, resp.Status))
	}

	rc := Receipt{SubmissionID: submissionID, NumberOfPeople: sub.NumberOfPeople, Email: sub.Email}
	if wr.Registration != nil {
		if wr.Registration.NumberOfPeople > 0 {
			rc.NumberOfPeople = wr.Registration.NumberOfPeople
		}
		if wr.Registration.Email != "" {
			rc.Email = wr.Registration.Email
		}
	}
	return rc, nil
}

// toWire keeps the backend's shape: numeric event ids go out as numbers
// and empty optional fields as null.
func toWire(id string, sub Submission) wireRequest {
	var eventID any = sub.EventID
	if n, err := strconv.Atoi(sub.EventID); err == nil {
		eventID = n
	}
	return wireRequest{
		SubmissionID:           id,
		EventID:                eventID,
		EventInstanceDate:      sub.InstanceDate,
		FirstName:              sub.FirstName,
		LastName:               sub.LastName,
		Email:                  sub.Email,
		Phone:                  sub.Phone,
		NumberOfPeople:         sub.NumberOfPeople,
		CompanyName:            nullable(sub.CompanyName),
		ReasonForTraining:      sub.ReasonForTraining,
		ReasonOtherExplanation: nullable(sub.ReasonOtherExplanation),
		Comments:               nullable(sub.Comments),
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
