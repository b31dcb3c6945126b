package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"golang.org/x/time/rate"

	"github.com/spherical/mcq-extractor/internal/domain"
	"github.com/spherical/mcq-extractor/internal/observability"
)

const (
	defaultBaseURL     = "https://openrouter.ai/api/v1"
	defaultModel       = "google/gemini-2.5-flash"
	defaultTemperature = 0.1
	defaultTimeout     = 2 * time.Minute
)

// Options configures the model client
type Options struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	// RequestTimeout bounds each attempt; 0 disables it.
	RequestTimeout    time.Duration
	RequestsPerMinute int
	// Retry is used as given; the zero value never retries.
	Retry      RetryConfig
	HTTPClient *http.Client
}

// DefaultOptions returns the default client options without a credential
func DefaultOptions() Options {
	return Options{
		BaseURL:        defaultBaseURL,
		Model:          defaultModel,
		Temperature:    defaultTemperature,
		RequestTimeout: defaultTimeout,
		Retry:          DefaultRetryConfig(),
	}
}

// Client extracts MCQs from content units through an OpenAI-compatible
// chat completions endpoint (OpenRouter by default).
type Client struct {
	api         openai.Client
	model       string
	temperature float64
	maxTokens   int
	timeout     time.Duration
	retry       RetryConfig
	limiter     *rate.Limiter
	logger      *observability.Logger
}

// NewClient creates a new LLM client
func NewClient(opts Options, logger *observability.Logger) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, domain.ConfigError("API key is required", nil)
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Model == "" {
		opts.Model = defaultModel
	}
	if opts.RequestTimeout < 0 {
		opts.RequestTimeout = 0
	}
	if logger == nil {
		logger = observability.Nop()
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithBaseURL(opts.BaseURL),
		// Retries are driven by Decide, not the SDK.
		option.WithMaxRetries(0),
		option.WithHeader("HTTP-Referer", "https://github.com/spherical/mcq-extractor"),
		option.WithHeader("X-Title", "MCQ Extractor"),
	}
	if opts.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.HTTPClient))
	}

	var limiter *rate.Limiter
	if opts.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}

	return &Client{
		api:         openai.NewClient(reqOpts...),
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		timeout:     opts.RequestTimeout,
		retry:       opts.Retry,
		limiter:     limiter,
		logger:      logger.WithOperation("llm"),
	}, nil
}

// Model returns the model identifier requests are sent to
func (c *Client) Model() string {
	return c.model
}

// Extract sends one group of content units in a single request and returns
// the well-formed records found. Transient failures are retried; a rejected
// credential or unknown model comes back as a fatal domain error.
func (c *Client) Extract(ctx context.Context, units []domain.ContentUnit, language string) ([]domain.MCQRecord, error) {
	if len(units) == 0 {
		return []domain.MCQRecord{}, nil
	}

	params, err := c.buildRequest(units, language)
	if err != nil {
		return nil, domain.ExtractionError("Failed to build request", err)
	}

	start := time.Now()
	var content string
	err = retryWithBackoff(ctx, c.retry, c.logger, func(ctx context.Context) error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		reqCtx := ctx
		if c.timeout > 0 {
			var cancel context.CancelFunc
			reqCtx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}

		resp, err := c.api.Chat.Completions.New(reqCtx, params)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			content = ""
			return nil
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if Classify(err) == ClassFatal {
			return nil, domain.FatalError("Model endpoint rejected the request", err)
		}
		return nil, domain.APIError("Model request failed", err)
	}

	records, dropped, err := ParseRecords(content)
	if err != nil {
		return nil, domain.ExtractionError("Failed to parse model response", err)
	}

	c.logger.Debug().
		Int("units", len(units)).
		Int("records", len(records)).
		Int("dropped", dropped).
		Dur("duration", time.Since(start)).
		Msg("Group extracted")

	return records, nil
}

// buildRequest constructs one chat request carrying every unit of the group
func (c *Client) buildRequest(units []domain.ContentUnit, language string) (openai.ChatCompletionNewParams, error) {
	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(fmt.Sprintf("Extract all multiple-choice questions from the following %d part(s), in order.", len(units))),
	}

	for _, u := range units {
		switch u.MediaType {
		case domain.MediaTypeJPEG:
			parts = append(parts,
				openai.TextContentPart(u.Label+":"),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: "data:" + u.MediaType + ";base64," + u.Data,
				}),
			)
		case domain.MediaTypeHTML:
			raw, err := base64.StdEncoding.DecodeString(u.Data)
			if err != nil {
				return openai.ChatCompletionNewParams{}, fmt.Errorf("decode %s: %w", u.Label, err)
			}
			parts = append(parts, openai.TextContentPart(u.Label+" (HTML):\n"+string(raw)))
		default:
			return openai.ChatCompletionNewParams{}, fmt.Errorf("unsupported unit media type %q", u.MediaType)
		}
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(buildSystemPrompt(language)),
			openai.UserMessage(parts),
		},
		Temperature: openai.Float(c.temperature),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        "mcq_extraction",
					Description: openai.String("Multiple-choice questions found in the input"),
					Schema:      responseSchema,
					Strict:      openai.Bool(false),
				},
			},
		},
	}
	if c.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(c.maxTokens))
	}

	return params, nil
}
