package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const defaultGoogleBaseURL = "https://texttospeech.googleapis.com"

// GoogleEngine calls the Cloud Text-to-Speech REST API with LINEAR16
// output, which arrives as a complete WAV file.
type GoogleEngine struct {
	logger     zerolog.Logger
	apiKey     string
	baseURL    string
	sampleRate int
	client     *http.Client
}

func NewGoogleEngine(logger zerolog.Logger, apiKey, baseURL string, sampleRate int) *GoogleEngine {
	if baseURL == "" {
		baseURL = defaultGoogleBaseURL
	}
	return &GoogleEngine{
		logger:     logger.With().Str("engine", "google").Logger(),
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		sampleRate: sampleRate,
		client:     &http.Client{Timeout: 2 * time.Minute},
	}
}

func (g *GoogleEngine) Name() string {
	return "google"
}

type googleRequest struct {
	Input struct {
		Text string `json:"text"`
	} `json:"input"`
	Voice struct {
		LanguageCode string `json:"languageCode"`
		Name         string `json:"name"`
	} `json:"voice"`
	AudioConfig struct {
		AudioEncoding   string  `json:"audioEncoding"`
		Pitch           float64 `json:"pitch,omitempty"`
		SpeakingRate    float64 `json:"speakingRate,omitempty"`
		SampleRateHertz int     `json:"sampleRateHertz,omitempty"`
	} `json:"audioConfig"`
}

// semitones converts a pitch multiplier to the API's semitone offset.
func semitones(pitch float64) float64 {
	if pitch <= 0 {
		return 0
	}
	st := 12 * math.Log2(pitch)
	return math.Max(-20, math.Min(20, st))
}

func (g *GoogleEngine) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, ErrEmptyText
	}

	var body googleRequest
	body.Input.Text = text
	body.Voice.Name = req.VoiceID
	body.Voice.LanguageCode = req.Language
	if body.Voice.LanguageCode == "" && len(req.VoiceID) >= 5 {
		body.Voice.LanguageCode = req.VoiceID[:5]
	}
	body.AudioConfig.AudioEncoding = "LINEAR16"
	body.AudioConfig.Pitch = semitones(req.Pitch)
	body.AudioConfig.SpeakingRate = req.Speed
	body.AudioConfig.SampleRateHertz = g.sampleRate

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := g.baseURL + "/v1/text:synthesize?key=" + url.QueryEscape(g.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, classify(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		rb, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		msg := strings.ReplaceAll(string(rb), g.apiKey, "***")
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: google tts status %d: %s", ErrUnreachable, resp.StatusCode, msg)
		}
		return nil, fmt.Errorf("google tts status %d: %s", resp.StatusCode, msg)
	}

	var out struct {
		AudioContent string `json:"audioContent"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode google tts response: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(out.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("decode audio content: %w", err)
	}

	g.logger.Debug().Str("voice", req.VoiceID).Int("bytes", len(data)).Msg("synthesized")
	return data, nil
}
