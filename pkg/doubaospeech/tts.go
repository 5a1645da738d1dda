package doubaospeech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
)

// TTSRequest is a synthesis request for the classic TTS API.
type TTSRequest struct {
	Text       string  `json:"text" yaml:"text"`
	VoiceType  string  `json:"voice_type" yaml:"voice_type"`
	Cluster    string  `json:"cluster,omitempty" yaml:"cluster,omitempty"`
	Encoding   string  `json:"encoding,omitempty" yaml:"encoding,omitempty"` // pcm, wav, mp3, ogg_opus
	SampleRate int     `json:"sample_rate,omitempty" yaml:"sample_rate,omitempty"`
	SpeedRatio float64 `json:"speed_ratio,omitempty" yaml:"speed_ratio,omitempty"`
}

// TTSResponse is synthesized audio.
type TTSResponse struct {
	Audio    []byte
	Duration int // milliseconds
	ReqID    string
}

type ttsRequest struct {
	App struct {
		AppID   string `json:"appid"`
		Token   string `json:"token"`
		Cluster string `json:"cluster"`
	} `json:"app"`
	User struct {
		UID string `json:"uid"`
	} `json:"user"`
	Audio struct {
		VoiceType  string  `json:"voice_type"`
		Encoding   string  `json:"encoding,omitempty"`
		Rate       int     `json:"rate,omitempty"`
		SpeedRatio float64 `json:"speed_ratio,omitempty"`
	} `json:"audio"`
	Request struct {
		ReqID     string `json:"reqid"`
		Text      string `json:"text"`
		TextType  string `json:"text_type"`
		Operation string `json:"operation"`
	} `json:"request"`
}

// Synthesize converts text to audio with POST /api/v1/tts.
func (c *Client) Synthesize(ctx context.Context, req *TTSRequest) (*TTSResponse, error) {
	var body ttsRequest
	body.App.AppID = c.appID
	body.App.Token = c.token
	body.App.Cluster = c.cluster
	if req.Cluster != "" {
		body.App.Cluster = req.Cluster
	}
	body.User.UID = c.userID
	body.Audio.VoiceType = req.VoiceType
	body.Audio.Encoding = req.Encoding
	body.Audio.Rate = req.SampleRate
	body.Audio.SpeedRatio = req.SpeedRatio
	body.Request.ReqID = uuid.NewString()
	body.Request.Text = req.Text
	body.Request.TextType = "plain"
	body.Request.Operation = "query"

	var resp struct {
		ReqID    string `json:"reqid"`
		Code     int    `json:"code"`
		Message  string `json:"message"`
		Data     string `json:"data"`
		Addition struct {
			Duration string `json:"duration"`
		} `json:"addition"`
	}
	if err := c.doJSON(ctx, "/api/v1/tts", &body, &resp); err != nil {
		return nil, err
	}
	if resp.Code != CodeSuccess {
		return nil, &Error{Code: resp.Code, Message: resp.Message, ReqID: resp.ReqID}
	}
	audio, err := base64.StdEncoding.DecodeString(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("doubaospeech: decode audio: %w", err)
	}
	duration, _ := strconv.Atoi(resp.Addition.Duration)
	return &TTSResponse{Audio: audio, Duration: duration, ReqID: resp.ReqID}, nil
}

func (c *Client) doJSON(ctx context.Context, path string, in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("doubaospeech: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("doubaospeech: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuthHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("doubaospeech: send request: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("doubaospeech: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return parseAPIError(resp.StatusCode, respBody, resp.Header.Get("X-Tt-Logid"))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("doubaospeech: unmarshal response: %w", err)
	}
	return nil
}
