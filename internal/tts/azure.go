package tts

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ErrSynthesisFailed covers every non-timeout failure of the speech service
var ErrSynthesisFailed = errors.New("speech synthesis failed")

const (
	DefaultVoice        = "en-US-JennyNeural"
	DefaultLanguage     = "en-US"
	DefaultOutputFormat = "audio-24khz-48kbitrate-mono-mp3"
	DefaultTimeout      = 30 * time.Second

	userAgent = "murmur"
)

// Azure synthesizes speech through the Azure Speech REST endpoint
type Azure struct {
	// Endpoint overrides the regional URL derived from Region
	Endpoint     string
	Region       string
	Key          string
	Voice        string
	Language     string
	OutputFormat string
	Timeout      time.Duration
	Client       *http.Client
}

// NewAzure fills unset fields with defaults
func NewAzure(region, key, endpoint string) *Azure {
	return &Azure{
		Endpoint:     endpoint,
		Region:       region,
		Key:          key,
		Voice:        DefaultVoice,
		Language:     DefaultLanguage,
		OutputFormat: DefaultOutputFormat,
		Timeout:      DefaultTimeout,
		Client:       http.DefaultClient,
	}
}

// URL returns the synthesis endpoint
func (a *Azure) URL() string {
	if a.Endpoint != "" {
		return a.Endpoint
	}
	return fmt.Sprintf("https://%s.tts.speech.microsoft.com/cognitiveservices/v1", a.Region)
}

type ssmlVoice struct {
	Name string `xml:"name,attr"`
	Text string `xml:",chardata"`
}

type ssmlSpeak struct {
	XMLName xml.Name  `xml:"speak"`
	Version string    `xml:"version,attr"`
	Lang    string    `xml:"xml:lang,attr"`
	Voice   ssmlVoice `xml:"voice"`
}

// SSML renders text as a single-voice SSML document with markup escaped
func (a *Azure) SSML(text string) ([]byte, error) {
	lang := a.Language
	if lang == "" {
		lang = DefaultLanguage
	}
	voice := a.Voice
	if voice == "" {
		voice = DefaultVoice
	}
	return xml.Marshal(ssmlSpeak{
		Version: "1.0",
		Lang:    lang,
		Voice:   ssmlVoice{Name: voice, Text: text},
	})
}

// Synthesize returns encoded audio for text in the configured output format.
// A deadline hit wraps context.DeadlineExceeded; other failures wrap ErrSynthesisFailed.
func (a *Azure) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty text", ErrSynthesisFailed)
	}

	timeout := a.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := a.SSML(text)
	if err != nil {
		return nil, fmt.Errorf("%w: render ssml: %v", ErrSynthesisFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.URL(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSynthesisFailed, err)
	}
	format := a.OutputFormat
	if format == "" {
		format = DefaultOutputFormat
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", a.Key)
	req.Header.Set("Content-Type", "application/ssml+xml")
	req.Header.Set("X-Microsoft-OutputFormat", format)
	req.Header.Set("User-Agent", userAgent)

	client := a.Client
	if client == nil {
		client = http.DefaultClient
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, wrapTransport(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %s: %s", ErrSynthesisFailed, resp.Status, strings.TrimSpace(string(msg)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wrapTransport(ctx, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty audio response", ErrSynthesisFailed)
	}

	slog.Debug("synthesized speech",
		"runes", len([]rune(text)),
		"bytes", len(data),
		"duration", time.Since(start))
	return data, nil
}

func wrapTransport(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("speech request: %w", context.DeadlineExceeded)
	}
	return fmt.Errorf("%w: %v", ErrSynthesisFailed, err)
}
