package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/mcq-extractor/internal/domain"
)

func completionBody(content string) string {
	payload, _ := json.Marshal(content)
	return fmt.Sprintf(`{
  "id": "chatcmpl-test",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "test-model",
  "choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": %s}}]
}`, payload)
}

func writeError(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, `{"error":{"message":"status %d","type":"test"}}`, status)
}

func writeCompletion(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, completionBody(content))
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	client, err := NewClient(Options{
		APIKey:  "sk-test",
		BaseURL: url,
		Model:   "test-model",
		Retry: RetryConfig{
			MaxRetries:     2,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     5 * time.Millisecond,
		},
	}, nil)
	require.NoError(t, err)
	return client
}

var pageUnit = domain.ContentUnit{MediaType: domain.MediaTypeJPEG, Label: "page 1", Data: "aGVsbG8="}

const twoQuestions = `{"questions":[
 {"question":"2+2?","choiceA":"3","choiceB":"4","choiceC":"5","choiceD":"6","correctAnswer":"b"},
 {"question":"Capital of France?","choiceA":"Paris","choiceB":"Rome","choiceC":"Madrid","choiceD":"Berlin","passage":"Geography"}
]}`

func TestNewClient(t *testing.T) {
	tests := []struct {
		name      string
		apiKey    string
		model     string
		wantModel string
		wantError bool
	}{
		{name: "default model", apiKey: "sk-or-test-key", wantModel: defaultModel},
		{name: "custom model", apiKey: "sk-or-test-key", model: "google/gemini-2.5-pro", wantModel: "google/gemini-2.5-pro"},
		{name: "empty api key", apiKey: "  ", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			opts.APIKey = tt.apiKey
			if tt.model != "" {
				opts.Model = tt.model
			}
			client, err := NewClient(opts, nil)
			if tt.wantError {
				require.Error(t, err)
				typ, _ := domain.TypeOf(err)
				assert.Equal(t, domain.ErrorTypeConfig, typ)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantModel, client.Model())
			assert.Equal(t, DefaultRetryConfig(), client.retry)
			assert.Equal(t, defaultTimeout, client.timeout)
		})
	}
}

func TestNewClient_ZeroTimeoutAndRetriesKept(t *testing.T) {
	client, err := NewClient(Options{APIKey: "sk-test", RequestTimeout: 0, Retry: RetryConfig{}}, nil)
	require.NoError(t, err)
	assert.Zero(t, client.timeout)
	assert.Equal(t, RetryConfig{}, client.retry)
	assert.Equal(t, defaultModel, client.Model())
}

func TestExtract_NoTimeoutNoRetries(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			writeError(w, http.StatusServiceUnavailable)
			return
		}
		writeCompletion(w, twoQuestions)
	}))
	defer server.Close()

	client, err := NewClient(Options{APIKey: "sk-test", BaseURL: server.URL}, nil)
	require.NoError(t, err)

	_, err = client.Extract(context.Background(), []domain.ContentUnit{pageUnit}, "auto")
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	records, err := client.Extract(context.Background(), []domain.ContentUnit{pageUnit}, "auto")
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestExtract_Success(t *testing.T) {
	bodies := make(chan []byte, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		bodies <- body
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		writeCompletion(w, "```json\n"+twoQuestions+"\n```")
	}))
	defer server.Close()

	htmlUnit := domain.UnitFromChunk(domain.ContentChunk{Index: 0, HTML: "<p>Q1</p>"})
	records, err := newTestClient(t, server.URL).Extract(context.Background(), []domain.ContentUnit{pageUnit, htmlUnit}, "English")
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "2+2?", records[0].Question)
	assert.Equal(t, "B", records[0].CorrectAnswer)
	assert.Equal(t, "", records[1].CorrectAnswer)
	assert.Equal(t, "Geography", records[1].Passage)
	assert.NotEmpty(t, records[0].ID)
	assert.NotEqual(t, records[0].ID, records[1].ID)

	var req struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string          `json:"role"`
			Content json.RawMessage `json:"content"`
		} `json:"messages"`
		ResponseFormat struct {
			JSONSchema struct {
				Name string `json:"name"`
			} `json:"json_schema"`
		} `json:"response_format"`
	}
	require.NoError(t, json.Unmarshal(<-bodies, &req))
	assert.Equal(t, "test-model", req.Model)
	assert.Equal(t, "mcq_extraction", req.ResponseFormat.JSONSchema.Name)
	require.Len(t, req.Messages, 2)

	var system string
	require.NoError(t, json.Unmarshal(req.Messages[0].Content, &system))
	assert.Contains(t, system, "The exam is written in English.")

	var parts []struct {
		Type     string `json:"type"`
		Text     string `json:"text"`
		ImageURL struct {
			URL string `json:"url"`
		} `json:"image_url"`
	}
	require.NoError(t, json.Unmarshal(req.Messages[1].Content, &parts))
	require.Len(t, parts, 4)
	assert.Equal(t, "page 1:", parts[1].Text)
	assert.Equal(t, "image_url", parts[2].Type)
	assert.Equal(t, "data:image/jpeg;base64,aGVsbG8=", parts[2].ImageURL.URL)
	assert.Equal(t, "chunk 1 (HTML):\n<p>Q1</p>", parts[3].Text)
}

func TestExtract_RetriesTransient(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			writeError(w, http.StatusServiceUnavailable)
			return
		}
		writeCompletion(w, twoQuestions)
	}))
	defer server.Close()

	records, err := newTestClient(t, server.URL).Extract(context.Background(), []domain.ContentUnit{pageUnit}, "auto")
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestExtract_TransientExhausted(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeError(w, http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL).Extract(context.Background(), []domain.ContentUnit{pageUnit}, "auto")
	require.Error(t, err)
	assert.False(t, domain.IsFatal(err))
	typ, _ := domain.TypeOf(err)
	assert.Equal(t, domain.ErrorTypeAPI, typ)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestExtract_FatalNotRetried(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			var calls int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				writeError(w, status)
			}))
			defer server.Close()

			_, err := newTestClient(t, server.URL).Extract(context.Background(), []domain.ContentUnit{pageUnit}, "auto")
			require.Error(t, err)
			assert.True(t, domain.IsFatal(err))
			assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
		})
	}
}

func TestExtract_BadRequestIsUnitFailure(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeError(w, http.StatusBadRequest)
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL).Extract(context.Background(), []domain.ContentUnit{pageUnit}, "auto")
	require.Error(t, err)
	assert.False(t, domain.IsFatal(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestExtract_MalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeCompletion(w, "I could not find any questions, sorry.")
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL).Extract(context.Background(), []domain.ContentUnit{pageUnit}, "auto")
	require.Error(t, err)
	typ, _ := domain.TypeOf(err)
	assert.Equal(t, domain.ErrorTypeExtraction, typ)
	assert.False(t, domain.IsFatal(err))
}

func TestExtract_EmptyGroup(t *testing.T) {
	client, err := NewClient(Options{APIKey: "sk-test"}, nil)
	require.NoError(t, err)

	records, err := client.Extract(context.Background(), nil, "auto")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestExtract_CancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeCompletion(w, twoQuestions)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(t, server.URL).Extract(ctx, []domain.ContentUnit{pageUnit}, "auto")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuildRequest_UnsupportedUnit(t *testing.T) {
	client, err := NewClient(Options{APIKey: "sk-test"}, nil)
	require.NoError(t, err)

	_, err = client.buildRequest([]domain.ContentUnit{{MediaType: "application/zip", Label: "x"}}, "auto")
	assert.Error(t, err)
}
