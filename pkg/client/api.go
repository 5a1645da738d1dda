package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/haivivi/voicegate/pkg/intent"
	"github.com/haivivi/voicegate/pkg/speech"
	"github.com/haivivi/voicegate/pkg/transcript"
)

// API calls the gateway's HTTP endpoints.
type API struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

// NewAPI returns an API client for the server at baseURL.
func NewAPI(baseURL, apiKey string) *API {
	return &API{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 60 * time.Second},
	}
}

// StatusError is a non-2xx response.
type StatusError struct {
	Status int
	Detail string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("client: server returned %d: %s", e.Status, e.Detail)
}

// Recognition is the result of a file recognition request.
type Recognition struct {
	Text string          `json:"text"`
	Raw  json.RawMessage `json:"raw,omitempty"`
}

// Transcript is a stored session transcript.
type Transcript struct {
	Session transcript.Summary  `json:"session"`
	Records []transcript.Record `json:"records"`
	Text    string              `json:"text"`
}

// Recognize uploads a WAV file for one-shot recognition.
func (a *API) Recognize(ctx context.Context, wav []byte, language string) (*Recognition, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("audio", "audio.wav")
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(wav); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	path := "/v1/speech/stt"
	if language != "" {
		path += "?language=" + url.QueryEscape(language)
	}
	var out Recognition
	if _, err := a.do(ctx, http.MethodPost, path, mw.FormDataContentType(), &body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Synthesize returns encoded audio and its media type.
func (a *API) Synthesize(ctx context.Context, req speech.Request) ([]byte, string, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return nil, "", err
	}
	resp, err := a.do(ctx, http.MethodPost, "/v1/speech/tts", "application/json", bytes.NewReader(b), nil)
	if err != nil {
		return nil, "", err
	}
	return resp.body, resp.contentType, nil
}

// Predict classifies text.
func (a *API) Predict(ctx context.Context, req intent.Request) (*intent.Prediction, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	var out intent.Prediction
	if _, err := a.do(ctx, http.MethodPost, "/v1/clu/predict", "application/json", bytes.NewReader(b), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Sessions lists recorded streaming sessions.
func (a *API) Sessions(ctx context.Context) ([]transcript.Summary, error) {
	var out []transcript.Summary
	if _, err := a.do(ctx, http.MethodGet, "/v1/sessions", "", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Transcript fetches the transcript of one session.
func (a *API) Transcript(ctx context.Context, id string) (*Transcript, error) {
	var out Transcript
	path := "/v1/sessions/" + url.PathEscape(id) + "/transcript"
	if _, err := a.do(ctx, http.MethodGet, path, "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type response struct {
	body        []byte
	contentType string
}

func (a *API) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, method, a.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("client: create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if a.APIKey != "" {
		req.Header.Set("X-API-Key", a.APIKey)
	}
	hc := a.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("client: read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		var e struct {
			Detail string `json:"detail"`
		}
		if json.Unmarshal(data, &e) != nil || e.Detail == "" {
			e.Detail = strings.TrimSpace(string(data))
		}
		return nil, &StatusError{Status: resp.StatusCode, Detail: e.Detail}
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return nil, fmt.Errorf("client: decode response: %w", err)
		}
	}
	return &response{body: data, contentType: resp.Header.Get("Content-Type")}, nil
}
