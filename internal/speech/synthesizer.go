package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gotham-cipher/internal/config"
)

// Synthesizer converts narration text into MP3 audio
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

var (
	boldMarkup   = regexp.MustCompile(`\*\*(.*?)\*\*`)
	italicMarkup = regexp.MustCompile(`\*(.*?)\*`)
)

// FormatText normalizes game markup into speakable text
func FormatText(text string) string {
	text = boldMarkup.ReplaceAllString(text, `<emphasis level="strong">$1</emphasis>`)
	text = italicMarkup.ReplaceAllString(text, `<emphasis level="moderate">$1</emphasis>`)
	replacer := strings.NewReplacer(
		"→", "to",
		"—", "dash",
		`"`, "",
		"'", "",
	)
	return strings.TrimSpace(replacer.Replace(text))
}

// HTTPSynthesizer calls the managed text-to-speech provider
type HTTPSynthesizer struct {
	baseURL    string
	apiKey     string
	voiceID    string
	engine     string
	sampleRate string
	minGap     time.Duration
	client     *http.Client
	logger     *slog.Logger

	mu       sync.Mutex
	lastCall time.Time
}

// NewHTTPSynthesizer creates a synthesizer against the configured provider
func NewHTTPSynthesizer(cfg *config.SpeechConfig, logger *slog.Logger) *HTTPSynthesizer {
	return &HTTPSynthesizer{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		voiceID:    cfg.VoiceID,
		engine:     cfg.Engine,
		sampleRate: cfg.SampleRate,
		minGap:     cfg.MinGap,
		client:     &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// throttle enforces a minimum gap between provider calls
func (s *HTTPSynthesizer) throttle(ctx context.Context) error {
	s.mu.Lock()
	wait := s.minGap - time.Since(s.lastCall)
	s.lastCall = time.Now().Add(wait)
	s.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Synthesize returns MP3 bytes for the given text
func (s *HTTPSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if err := s.throttle(ctx); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(map[string]string{
		"text":         text,
		"voice_id":     s.voiceID,
		"engine":       s.engine,
		"outputFormat": "mp3",
		"sampleRate":   s.sampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding synthesis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/synthesize", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling speech provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("speech provider: status %d", resp.StatusCode)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading audio stream: %w", err)
	}

	s.logger.Debug("speech synthesized", "bytes", len(audio))
	return audio, nil
}
