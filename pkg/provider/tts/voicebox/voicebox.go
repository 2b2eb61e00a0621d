// Package voicebox provides a tts.Provider backed by a local VoiceBox
// synthesis server.
//
// The server exposes a small REST API: POST /generate accepts a JSON body
// with the profile, text, and language, runs synthesis, writes a WAV file to
// a path shared with the client, and responds with that path plus the clip
// duration. GET /profiles lists the available voice profiles. Because the
// audio comes back as a file reference rather than a body, the server and
// this client must share a filesystem — the usual deployment is both on the
// same machine.
//
// Typical usage:
//
//	p, err := voicebox.New("http://localhost:8000",
//	    voicebox.WithTimeout(60*time.Second),
//	)
//	clip, err := p.Synthesize(ctx, tts.Request{Profile: "anna", Text: "Hello."})
package voicebox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/standin-ai/standin/pkg/audio"
	"github.com/standin-ai/standin/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

const (
	defaultTimeout   = 60 * time.Second
	generateEndpoint = "/generate"
	profilesEndpoint = "/profiles"
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithTimeout sets the per-request HTTP timeout. Synthesis of a long
// sentence can take tens of seconds on CPU, so the default is 60 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithDefaultLanguage sets the language sent when a request leaves it empty.
// Default "en".
func WithDefaultLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// Provider implements tts.Provider against a VoiceBox server.
// Safe for concurrent use.
type Provider struct {
	serverURL  string
	language   string
	httpClient *http.Client
}

// New creates a Provider targeting the VoiceBox server at serverURL
// (e.g., "http://localhost:8000").
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("voicebox: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   "en",
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// generateRequest is the JSON body for POST /generate.
type generateRequest struct {
	Profile  string `json:"profile"`
	Text     string `json:"text"`
	Language string `json:"language"`
}

// generateResponse is the JSON body returned by POST /generate.
type generateResponse struct {
	AudioPath string  `json:"audio_path"`
	Duration  float64 `json:"duration"`
}

// profilesResponse is the JSON body returned by GET /profiles.
type profilesResponse struct {
	Profiles []string `json:"profiles"`
}

// Synthesize implements tts.Provider. When req.Profile is empty the first
// profile reported by the server is used.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Clip, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, errors.New("voicebox: text must not be empty")
	}

	profile := req.Profile
	if profile == "" {
		var err error
		if profile, err = p.firstProfile(ctx); err != nil {
			return nil, err
		}
	}
	language := req.Language
	if language == "" {
		language = p.language
	}

	body, err := json.Marshal(generateRequest{
		Profile:  profile,
		Text:     req.Text,
		Language: language,
	})
	if err != nil {
		return nil, fmt.Errorf("voicebox: marshal generate request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+generateEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("voicebox: create generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("voicebox: POST %s: %w", generateEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("voicebox: POST %s returned status %d", generateEndpoint, resp.StatusCode)
	}

	var gen generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gen); err != nil {
		return nil, fmt.Errorf("voicebox: decode generate response: %w", err)
	}
	if gen.AudioPath == "" {
		return nil, errors.New("voicebox: generate response missing audio_path")
	}

	clip, err := loadWAV(gen.AudioPath)
	if err != nil {
		return nil, err
	}
	clip.Duration = time.Duration(gen.Duration * float64(time.Second))
	return clip, nil
}

// ListProfiles implements tts.Provider.
func (p *Provider) ListProfiles(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+profilesEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("voicebox: create profiles request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("voicebox: GET %s: %w", profilesEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("voicebox: GET %s returned status %d", profilesEndpoint, resp.StatusCode)
	}

	var list profilesResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("voicebox: decode profiles response: %w", err)
	}
	return list.Profiles, nil
}

// firstProfile resolves the server's first available profile.
func (p *Provider) firstProfile(ctx context.Context) (string, error) {
	profiles, err := p.ListProfiles(ctx)
	if err != nil {
		return "", err
	}
	if len(profiles) == 0 {
		return "", errors.New("voicebox: server reports no voice profiles")
	}
	return profiles[0], nil
}

// loadWAV reads a WAV file from the shared filesystem and converts it to a
// mono float32 clip at the file's own sample rate.
func loadWAV(path string) (*tts.Clip, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("voicebox: read %s: %w", path, err)
	}

	info, err := parseWAV(data)
	if err != nil {
		return nil, err
	}

	samples := audio.PCM16ToFloat(data[info.DataOffset : info.DataOffset+info.DataSize])
	if info.Channels > 1 {
		samples = audio.DownmixAverage(samples, info.Channels)
	}
	return &tts.Clip{Samples: samples, Rate: info.SampleRate}, nil
}
