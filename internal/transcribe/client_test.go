package transcribe

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"
)

const listenBody = `{
  "metadata": {"duration": 4.5},
  "results": {
    "channels": [{
      "detected_language": "en",
      "alternatives": [{
        "transcript": "Hello there. General Kenobi.",
        "words": [
          {"word": "hello", "punctuated_word": "Hello", "start": 0.1, "end": 0.4, "speaker": 0},
          {"word": "there", "punctuated_word": "there.", "start": 0.5, "end": 0.9, "speaker": 0}
        ],
        "paragraphs": {"paragraphs": [
          {"speaker": 0, "sentences": [{"text": "Hello there."}]},
          {"speaker": 1, "sentences": [{"text": "General"}, {"text": "Kenobi."}]}
        ]}
      }]
    }],
    "utterances": [
      {"start": 0.1, "end": 0.9, "transcript": "Hello there.", "speaker": 0},
      {"start": 1.0, "end": 2.0, "transcript": "General Kenobi.", "speaker": 1}
    ]
  }
}`

// TestClientTranscribeSuccess checks request shaping and response decoding.
func TestClientTranscribeSuccess(t *testing.T) {
	audio := filepath.Join(t.TempDir(), "a.mp3")
	mustWriteFile(t, audio, "ID3-audio")

	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token secret" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("Content-Type") != "audio/mpeg" {
			t.Errorf("content type = %q", r.Header.Get("Content-Type"))
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "ID3-audio" {
			t.Errorf("body = %q", body)
		}
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		_, _ = w.Write([]byte(listenBody))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/v1/listen", "secret", "nova-3", time.Second)
	got, err := c.Transcribe(context.Background(), audio, Options{Language: "auto", Diarize: true, SmartFormat: true})
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}

	if gotQuery["model"] != "nova-3" || gotQuery["detect_language"] != "true" || gotQuery["diarize"] != "true" {
		t.Fatalf("query = %v", gotQuery)
	}
	if _, ok := gotQuery["language"]; ok {
		t.Fatalf("auto language should not send language, query = %v", gotQuery)
	}
	if got.Text != "Hello there. General Kenobi." || got.DurationSeconds != 4.5 || got.Language != "en" {
		t.Fatalf("transcript = %+v", got)
	}
	if len(got.Words) != 2 || got.Words[1].Text != "there." {
		t.Fatalf("words = %+v", got.Words)
	}
	if len(got.Paragraphs) != 2 || got.Paragraphs[1].Text != "General Kenobi." || *got.Paragraphs[1].Speaker != 1 {
		t.Fatalf("paragraphs = %+v", got.Paragraphs)
	}
	if len(got.Utterances) != 2 {
		t.Fatalf("utterances = %+v", got.Utterances)
	}
}

// TestClientTranscribeAPIError checks non-2xx responses become APIError.
func TestClientTranscribeAPIError(t *testing.T) {
	audio := filepath.Join(t.TempDir(), "a.wav")
	mustWriteFile(t, audio, "RIFF")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("language") != "pl" {
			t.Errorf("language = %q, want pl", r.URL.Query().Get("language"))
		}
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"err_msg":"Invalid credentials."}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "bad", "", time.Second)
	_, err := c.Transcribe(context.Background(), audio, Options{Language: "pl"})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want APIError", err)
	}
	if apiErr.HTTPStatus() != http.StatusUnauthorized || apiErr.Message != "Invalid credentials." {
		t.Fatalf("api error = %+v", apiErr)
	}
}

// TestClientTranscribeRequiresKey checks no request is made without a key.
func TestClientTranscribeRequiresKey(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", " ", "", time.Second)
	if _, err := c.Transcribe(context.Background(), "/none.mp3", Options{}); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("err = %v, want ErrMissingAPIKey", err)
	}
}
