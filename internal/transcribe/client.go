package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DefaultAPIURL is the hosted speech-to-text endpoint.
const DefaultAPIURL = "https://api.deepgram.com/v1/listen"

// DefaultModel is used when no model is configured.
const DefaultModel = "nova-2"

// MaxUploadBytes is the largest file the API accepts.
const MaxUploadBytes int64 = 2 << 30

// ErrMissingAPIKey is returned when no API key is configured.
var ErrMissingAPIKey = errors.New("invalid api key: no API key configured")

// Options are the per-request recognition settings.
type Options struct {
	Language    string
	Diarize     bool
	SmartFormat bool
}

// Word is one recognised word with timing.
type Word struct {
	Text    string  `json:"word"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker *int    `json:"speaker,omitempty"`
}

// Utterance is one speaker turn with timing.
type Utterance struct {
	Text    string  `json:"transcript"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker *int    `json:"speaker,omitempty"`
}

// Paragraph is a block of text attributed to one speaker.
type Paragraph struct {
	Text    string `json:"text"`
	Speaker *int   `json:"speaker,omitempty"`
}

// Transcript is the decoded recognition result.
type Transcript struct {
	Text            string      `json:"text"`
	Words           []Word      `json:"words,omitempty"`
	Utterances      []Utterance `json:"utterances,omitempty"`
	Paragraphs      []Paragraph `json:"paragraphs,omitempty"`
	DurationSeconds float64     `json:"durationSeconds"`
	Language        string      `json:"language,omitempty"`
}

// APIError is a non-2xx response from the speech API.
type APIError struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}

// Error formats the status and server message.
func (e *APIError) Error() string {
	return fmt.Sprintf("transcription API returned %d: %s", e.StatusCode, e.Message)
}

// HTTPStatus returns the response status code.
func (e *APIError) HTTPStatus() int {
	return e.StatusCode
}

// Client calls the hosted speech API.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient creates an API client. Empty baseURL and model fall back to defaults.
func NewClient(baseURL, apiKey, model string, timeout time.Duration) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultAPIURL
	}
	if strings.TrimSpace(model) == "" {
		model = DefaultModel
	}
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(apiKey),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Transcribe uploads audioPath and decodes the recognition result.
func (c *Client) Transcribe(ctx context.Context, audioPath string, opts Options) (Transcript, error) {
	if c.apiKey == "" {
		return Transcript{}, ErrMissingAPIKey
	}

	file, err := os.Open(audioPath)
	if err != nil {
		return Transcript{}, fmt.Errorf("open audio: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return Transcript{}, fmt.Errorf("stat audio: %w", err)
	}
	if info.Size() > MaxUploadBytes {
		return Transcript{}, fmt.Errorf("file too large (max 2GB): %.2f GB", float64(info.Size())/float64(1<<30))
	}

	endpoint, err := c.endpoint(opts)
	if err != nil {
		return Transcript{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, file)
	if err != nil {
		return Transcript{}, fmt.Errorf("build request: %w", err)
	}
	req.ContentLength = info.Size()
	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("Content-Type", contentType(audioPath))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Transcript{}, fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Transcript{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Transcript{}, &APIError{StatusCode: resp.StatusCode, Message: apiErrorMessage(body)}
	}

	return decodeResponse(body)
}

func (c *Client) endpoint(opts Options) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse API url: %w", err)
	}

	q := u.Query()
	q.Set("model", c.model)
	q.Set("smart_format", strconv.FormatBool(opts.SmartFormat))
	q.Set("punctuate", "true")
	q.Set("utterances", "true")
	q.Set("paragraphs", "true")
	if lang := normalizeLanguage(opts.Language); lang == "" {
		q.Set("detect_language", "true")
	} else {
		q.Set("language", lang)
	}
	if opts.Diarize {
		q.Set("diarize", "true")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type listenResponse struct {
	Metadata struct {
		Duration float64 `json:"duration"`
	} `json:"metadata"`
	Results struct {
		Channels []struct {
			DetectedLanguage string `json:"detected_language"`
			Alternatives     []struct {
				Transcript string `json:"transcript"`
				Words      []struct {
					Word           string  `json:"word"`
					PunctuatedWord string  `json:"punctuated_word"`
					Start          float64 `json:"start"`
					End            float64 `json:"end"`
					Speaker        *int    `json:"speaker"`
				} `json:"words"`
				Paragraphs struct {
					Paragraphs []struct {
						Speaker   *int `json:"speaker"`
						Sentences []struct {
							Text string `json:"text"`
						} `json:"sentences"`
					} `json:"paragraphs"`
				} `json:"paragraphs"`
			} `json:"alternatives"`
		} `json:"channels"`
		Utterances []Utterance `json:"utterances"`
	} `json:"results"`
}

func decodeResponse(body []byte) (Transcript, error) {
	var resp listenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Transcript{}, fmt.Errorf("decode transcription response: %w", err)
	}

	out := Transcript{
		DurationSeconds: resp.Metadata.Duration,
		Utterances:      resp.Results.Utterances,
	}
	if len(resp.Results.Channels) == 0 || len(resp.Results.Channels[0].Alternatives) == 0 {
		return out, nil
	}

	channel := resp.Results.Channels[0]
	alt := channel.Alternatives[0]
	out.Text = strings.TrimSpace(alt.Transcript)
	out.Language = channel.DetectedLanguage

	for _, w := range alt.Words {
		text := w.PunctuatedWord
		if text == "" {
			text = w.Word
		}
		out.Words = append(out.Words, Word{Text: text, Start: w.Start, End: w.End, Speaker: w.Speaker})
	}
	for _, p := range alt.Paragraphs.Paragraphs {
		parts := make([]string, 0, len(p.Sentences))
		for _, s := range p.Sentences {
			parts = append(parts, strings.TrimSpace(s.Text))
		}
		out.Paragraphs = append(out.Paragraphs, Paragraph{Text: strings.Join(parts, " "), Speaker: p.Speaker})
	}
	return out, nil
}

func apiErrorMessage(body []byte) string {
	var payload struct {
		ErrMsg  string `json:"err_msg"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.ErrMsg != "" {
			return payload.ErrMsg
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

func contentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".flac":
		return "audio/flac"
	case ".m4a", ".aac":
		return "audio/mp4"
	case ".ogg":
		return "audio/ogg"
	case ".wma":
		return "audio/x-ms-wma"
	default:
		return "application/octet-stream"
	}
}

// normalizeLanguage maps "auto" and empty language to detection.
func normalizeLanguage(raw string) string {
	lang := strings.TrimSpace(raw)
	if lang == "" || strings.EqualFold(lang, "auto") {
		return ""
	}
	return lang
}
