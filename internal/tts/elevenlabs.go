// Package tts implements the TTS port against ElevenLabs, narrating
// Nova's replies for borrowers who prefer voice over text. Synthesized
// clips are cached by content hash so repeated replies (a common
// greeting, a repayment reminder) don't re-synthesize audio.
package tts

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/mbd888/saathi/internal/ports"
)

const synthesizeURLFormat = "https://api.elevenlabs.io/v1/text-to-speech/%s"

// Client is the ElevenLabs-backed implementation of ports.TTS, with an
// in-memory cache keyed by the content address of (text, voice, language).
type Client struct {
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
	store      ClipStore

	mu    sync.Mutex
	cache map[string]*ports.Speech
}

var _ ports.TTS = (*Client)(nil)

// ClipStore persists synthesized audio bytes and returns a public URL
// for them; the in-memory map only caches the metadata, not the audio.
type ClipStore interface {
	Put(ctx context.Context, cacheKey string, audio []byte) (url string, err error)
}

func New(apiKey string, store ClipStore, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
		store:      store,
		cache:      make(map[string]*ports.Speech),
	}
}

func cacheKeyFor(text, voiceID, language string) string {
	sum := sha256.Sum256([]byte(voiceID + "|" + language + "|" + text))
	return hex.EncodeToString(sum[:])
}

func (c *Client) Synthesize(ctx context.Context, text, voiceID, language string) (*ports.Speech, error) {
	key := cacheKeyFor(text, voiceID, language)

	c.mu.Lock()
	if cached, ok := c.cache[key]; ok {
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	audio, err := c.synthesizeViaAPI(ctx, text, voiceID)
	if err != nil {
		return nil, err
	}

	audioURL, err := c.store.Put(ctx, key, audio)
	if err != nil {
		return nil, fmt.Errorf("store synthesized clip: %w", err)
	}

	speech := &ports.Speech{AudioURL: audioURL, CacheKey: key}

	c.mu.Lock()
	c.cache[key] = speech
	c.mu.Unlock()

	return speech, nil
}

func (c *Client) synthesizeViaAPI(ctx context.Context, text, voiceID string) ([]byte, error) {
	payload := fmt.Sprintf(`{"text":%q,"model_id":"eleven_multilingual_v2"}`, text)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf(synthesizeURLFormat, voiceID), bytes.NewBufferString(payload))
	if err != nil {
		return nil, fmt.Errorf("build elevenlabs request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("elevenlabs error", "status", resp.StatusCode)
		return nil, fmt.Errorf("elevenlabs error: status %d", resp.StatusCode)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read elevenlabs response: %w", err)
	}
	return audio, nil
}
