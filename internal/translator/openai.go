package translator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"github.com/slavierouse/sound-your-scene/config"
	"github.com/slavierouse/sound-your-scene/internal/filterspec"
)

// retryDelays backs off transient API failures: rate limits and server errors.
var retryDelays = []time.Duration{2 * time.Second, 8 * time.Second, 30 * time.Second}

// OpenAI translates queries with the OpenAI Responses API using strict
// JSON-schema structured output.
type OpenAI struct {
	client      openai.Client
	model       string
	temperature float64
	timeout     time.Duration
	logger      *log.Logger
}

// NewOpenAI builds the adapter from configuration.
func NewOpenAI(cfg config.LLMConfig) (*OpenAI, error) {
	key := cfg.APIKey
	if key == "" {
		key = os.Getenv("OPENAI_API_KEY")
	}
	if key == "" {
		return nil, fmt.Errorf("openai api key not configured")
	}
	opts := []option.RequestOption{option.WithAPIKey(key)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAI{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		logger:      log.New(os.Stdout, "[TRANSLATOR] ", log.LstdFlags),
	}, nil
}

func (o *OpenAI) Translate(ctx context.Context, req Request) (*Response, error) {
	prompt, err := o.buildPrompt(req)
	if err != nil {
		return nil, err
	}

	schema, err := schemaToMap(generateSchema[wireDocument]())
	if err != nil {
		return nil, err
	}
	ensureOpenAICompliance(schema)

	format := responses.ResponseFormatTextConfigUnionParam{
		OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
			Name:   "music_filters",
			Schema: schema,
			Strict: openai.Bool(true),
			Type:   "json_schema",
		},
	}

	items := o.historyItems(req)
	items = append(items, o.messageItem(prompt, req.ImageData))

	params := responses.ResponseNewParams{
		Model:           o.model,
		MaxOutputTokens: openai.Int(2048),
		Temperature:     openai.Float(o.temperature),
		Instructions:    openai.String(systemInstructions),
		Input:           responses.ResponseNewParamsInputUnion{OfInputItemList: items},
		Text:            responses.ResponseTextConfigParam{Format: format},
	}

	callCtx := ctx
	if o.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	raw, err := o.callWithRetry(callCtx, params)
	if err != nil {
		return nil, err
	}

	doc := wireDocument{FilterSpec: filterspec.Default(), ContinueRefinement: true}
	if err := decodeModelJSON(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if err := doc.FilterSpec.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	return &Response{
		Spec:         doc.FilterSpec,
		Rationale:    doc.FilterSpec.Reflection,
		UserMessage:  doc.FilterSpec.UserMessage,
		ContinueHint: doc.ContinueRefinement,
		Model:        o.model,
	}, nil
}

func (o *OpenAI) buildPrompt(req Request) (string, error) {
	if len(req.Steps) == 0 {
		return initialPrompt(req.Query), nil
	}
	last := req.Steps[len(req.Steps)-1]
	if req.Query != "" {
		return userRefinePrompt(req.Query, last.Filters, last.Summary)
	}
	return refinePrompt(last.Filters, last.Summary, req.Seed)
}

// historyItems replays prior passes as alternating user and assistant turns
// so the model sees how its earlier filter choices played out.
func (o *OpenAI) historyItems(req Request) []responses.ResponseInputItemUnionParam {
	items := make([]responses.ResponseInputItemUnionParam, 0, 2*len(req.Steps))
	for _, step := range req.Steps {
		query := step.Query
		if query == "" {
			query = "(automatic refinement pass)"
		}
		items = append(items, responses.ResponseInputItemParamOfMessage(query, responses.EasyInputMessageRoleUser))

		reply, err := json.Marshal(step.Filters)
		if err != nil {
			continue
		}
		items = append(items, responses.ResponseInputItemParamOfMessage(string(reply), responses.EasyInputMessageRoleAssistant))
	}
	return items
}

func (o *OpenAI) messageItem(prompt, imageData string) responses.ResponseInputItemUnionParam {
	if imageData == "" {
		return responses.ResponseInputItemParamOfMessage(prompt, responses.EasyInputMessageRoleUser)
	}
	return responses.ResponseInputItemUnionParam{
		OfMessage: &responses.EasyInputMessageParam{
			Role: responses.EasyInputMessageRoleUser,
			Content: responses.EasyInputMessageContentUnionParam{
				OfInputItemContentList: responses.ResponseInputMessageContentListParam{
					responses.ResponseInputContentParamOfInputText(prompt),
					responses.ResponseInputContentUnionParam{
						OfInputImage: &responses.ResponseInputImageParam{
							ImageURL: openai.String(imageData),
							Detail:   responses.ResponseInputImageDetailAuto,
						},
					},
				},
			},
		},
	}
}

func (o *OpenAI) callWithRetry(ctx context.Context, params responses.ResponseNewParams) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= len(retryDelays); attempt++ {
		resp, err := o.client.Responses.New(ctx, params)
		if err == nil {
			return resp.OutputText(), nil
		}
		lastErr = err
		if !retryable(err) || attempt == len(retryDelays) {
			break
		}
		delay := retryDelays[attempt]
		o.logger.Printf("api call failed (attempt %d): %v, retrying in %s", attempt+1, err, delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", fmt.Errorf("calling model: %w", lastErr)
}

func retryable(err error) bool {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		return apierr.StatusCode == 429 || apierr.StatusCode >= 500
	}
	return false
}
