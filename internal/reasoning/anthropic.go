package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/agentim/internal/config"
	"github.com/teemow/agentim/internal/dispatch"
	"github.com/teemow/agentim/internal/instrumentation"
	"github.com/teemow/agentim/internal/logging"
	"github.com/teemow/agentim/internal/tools"
)

// DefaultSystemPrompt frames the model as the Google tools assistant.
const DefaultSystemPrompt = "You are a helpful assistant with access to the user's Gmail, " +
	"Google Calendar and Google Search. Use the tools when a request needs them and answer " +
	"directly otherwise. Calendar events are all-day events in UTC and dates use the " +
	"YYYY-MM-DD format. Report tool failures to the user as they are."

// emptyReply stands in for agent turns without content, which the API rejects.
const emptyReply = "(no reply)"

// Engine selects actions with a Claude model.
type Engine struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
	system      string
	now         func() time.Time
	logger      *slog.Logger
}

// Option configures an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	model       string
	maxTokens   int64
	temperature float64
	system      string
	now         func() time.Time
	logger      *slog.Logger
	request     []option.RequestOption
}

// WithModel selects the model.
func WithModel(model string) Option {
	return func(o *engineOptions) {
		if model != "" {
			o.model = model
		}
	}
}

// WithMaxTokens bounds the length of each response.
func WithMaxTokens(n int64) Option {
	return func(o *engineOptions) {
		if n > 0 {
			o.maxTokens = n
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(o *engineOptions) { o.temperature = t }
}

// WithSystemPrompt replaces DefaultSystemPrompt.
func WithSystemPrompt(prompt string) Option {
	return func(o *engineOptions) { o.system = prompt }
}

// WithClock sets the clock used for the current date in the system prompt.
func WithClock(now func() time.Time) Option {
	return func(o *engineOptions) { o.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *engineOptions) { o.logger = logger }
}

// WithRequestOptions passes options through to the Anthropic client.
func WithRequestOptions(opts ...option.RequestOption) Option {
	return func(o *engineOptions) { o.request = append(o.request, opts...) }
}

// NewEngine creates an engine that authenticates with apiKey.
func NewEngine(apiKey string, opts ...Option) *Engine {
	o := engineOptions{
		model:     config.DefaultModel,
		maxTokens: config.DefaultMaxTokens,
		system:    DefaultSystemPrompt,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	requestOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, o.request...)
	return &Engine{
		client:      anthropic.NewClient(requestOpts...),
		model:       o.model,
		maxTokens:   o.maxTokens,
		temperature: o.temperature,
		system:      o.system,
		now:         o.now,
		logger:      logging.WithService(o.logger, "anthropic"),
	}
}

// NewEngineFromConfig creates an engine from the persisted configuration.
func NewEngineFromConfig(cfg *config.Config, opts ...Option) *Engine {
	base := []Option{WithModel(cfg.Model), WithMaxTokens(cfg.MaxTokens)}
	return NewEngine(cfg.AnthropicAPIKey, append(base, opts...)...)
}

// Model returns the configured model name.
func (e *Engine) Model() string {
	return e.model
}

// SelectActions implements dispatch.Engine.
func (e *Engine) SelectActions(ctx context.Context, history []dispatch.Turn, catalog []mcp.Tool) (dispatch.Decision, error) {
	ctx, span := instrumentation.StartEngineSpan(ctx, e.model)
	defer span.End()

	params := e.buildParams(history, catalog)
	msg, err := e.client.Messages.New(ctx, params)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return dispatch.Decision{}, fmt.Errorf("anthropic messages: %w", err)
	}
	instrumentation.SetSpanSuccess(span)

	e.logger.Debug("Engine call completed",
		slog.String("stop_reason", string(msg.StopReason)),
		slog.Int64("input_tokens", msg.Usage.InputTokens),
		slog.Int64("output_tokens", msg.Usage.OutputTokens))

	return e.parseResponse(msg), nil
}

func (e *Engine) buildParams(history []dispatch.Turn, catalog []mcp.Tool) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(e.model),
		Messages:    buildMessages(history),
		MaxTokens:   e.maxTokens,
		Temperature: param.NewOpt(e.temperature),
	}

	if e.system != "" {
		system := e.system + fmt.Sprintf("\n\nToday's date is %s (UTC).", e.now().UTC().Format("2006-01-02"))
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	if len(catalog) > 0 {
		params.Tools = buildTools(catalog)
	}
	return params
}

func buildTools(catalog []mcp.Tool) []anthropic.ToolUnionParam {
	result := make([]anthropic.ToolUnionParam, 0, len(catalog))
	for _, t := range catalog {
		properties := t.InputSchema.Properties
		if properties == nil {
			properties = map[string]any{}
		}
		result = append(result, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: param.NewOpt(t.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: properties,
					Required:   t.InputSchema.Required,
				},
			},
		})
	}
	return result
}

// buildMessages maps the history to API messages. Consecutive tool results
// are grouped into one user message.
func buildMessages(history []dispatch.Turn) []anthropic.MessageParam {
	messages := make([]anthropic.MessageParam, 0, len(history))
	var results []anthropic.ContentBlockParamUnion

	flush := func() {
		if len(results) > 0 {
			messages = append(messages, anthropic.NewUserMessage(results...))
			results = nil
		}
	}

	for _, turn := range history {
		switch turn.Role {
		case dispatch.RoleToolResult:
			results = append(results, anthropic.NewToolResultBlock(turn.InvocationID, turn.Content, turn.IsError))
		case dispatch.RoleUser:
			flush()
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(turn.Content)))
		case dispatch.RoleAgent:
			flush()
			messages = append(messages, anthropic.NewAssistantMessage(agentBlocks(turn)...))
		}
	}
	flush()
	return messages
}

func agentBlocks(turn dispatch.Turn) []anthropic.ContentBlockParamUnion {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(turn.Invocations)+1)
	if strings.TrimSpace(turn.Content) != "" {
		blocks = append(blocks, anthropic.NewTextBlock(turn.Content))
	}
	for _, inv := range turn.Invocations {
		input := map[string]any(inv.Arguments)
		if input == nil {
			input = map[string]any{}
		}
		blocks = append(blocks, anthropic.NewToolUseBlock(inv.ID, input, inv.Tool))
	}
	if len(blocks) == 0 {
		blocks = append(blocks, anthropic.NewTextBlock(emptyReply))
	}
	return blocks
}

func (e *Engine) parseResponse(msg *anthropic.Message) dispatch.Decision {
	var decision dispatch.Decision
	var text strings.Builder

	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			args := tools.Arguments{}
			if len(block.Input) > 0 {
				if err := json.Unmarshal(block.Input, &args); err != nil {
					// The loop reports the missing arguments back to the model.
					e.logger.Warn("Failed to decode tool input",
						logging.Tool(block.Name), logging.Invocation(block.ID), logging.Err(err))
					args = tools.Arguments{}
				}
			}
			decision.Invocations = append(decision.Invocations, dispatch.Invocation{
				ID:        block.ID,
				Tool:      block.Name,
				Arguments: args,
			})
		}
	}

	decision.Reply = strings.TrimSpace(text.String())
	return decision
}
