// Package classifier asks a large language model to rank candidate market
// concepts against a limit-up reason, or to propose an alternative keyword
// decomposition when rule-based tokenization found nothing.
package classifier

import (
	"context"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultModel     = "claude-sonnet-4-5-20250929"
	defaultMaxTokens = 1024
	defaultRate      = 2 // requests per second
)

// Ranking is the classifier's verdict on one reason text.
type Ranking struct {
	// Concepts is the relevance-ordered subset of the candidate list the
	// model considers directly related. Empty means no candidate fits.
	Concepts []string
	// Reason is the model's own explanation, kept for logging.
	Reason string
	// Unknown names a term in the reason the model did not recognize, or
	// "" when everything was familiar.
	Unknown string
}

// Client defines the language-model operations used by the resolver.
type Client interface {
	// RankConcepts filters and orders candidates by relevance to reason.
	// background optionally carries web-search context for unknown terms.
	RankConcepts(ctx context.Context, reason string, candidates []string, background string) (*Ranking, error)
	// SuggestKeywords asks for an alternative keyword decomposition of
	// reason, excluding the already-failed tokens.
	SuggestKeywords(ctx context.Context, reason string, failed []string) ([]string, error)
}

// Option configures the client.
type Option func(*sdkClient)

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(c *sdkClient) {
		c.model = model
	}
}

// WithMaxTokens overrides the default response token cap.
func WithMaxTokens(n int64) Option {
	return func(c *sdkClient) {
		c.maxTokens = n
	}
}

// WithRateLimit overrides the default requests-per-second throttle.
func WithRateLimit(rps float64) Option {
	return func(c *sdkClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithBaseURL points the underlying SDK at an alternate endpoint.
func WithBaseURL(u string) Option {
	return func(c *sdkClient) {
		c.requestOpts = append(c.requestOpts, option.WithBaseURL(u))
	}
}

type sdkClient struct {
	client      sdk.Client
	model       string
	maxTokens   int64
	limiter     *rate.Limiter
	requestOpts []option.RequestOption
}

// NewClient creates a classifier backed by the Anthropic SDK.
func NewClient(apiKey string, opts ...Option) Client {
	c := &sdkClient{
		model:     defaultModel,
		maxTokens: defaultMaxTokens,
		limiter:   rate.NewLimiter(rate.Limit(defaultRate), 1),
		requestOpts: []option.RequestOption{
			option.WithAPIKey(apiKey),
		},
	}
	for _, o := range opts {
		o(c)
	}
	c.client = sdk.NewClient(c.requestOpts...)
	return c
}

func (c *sdkClient) RankConcepts(ctx context.Context, reason string, candidates []string, background string) (*Ranking, error) {
	if len(candidates) == 0 {
		return &Ranking{}, nil
	}

	user := fmt.Sprintf("请为我分析下面的数据:\n涨停原因: %s\n板块名称数组: [%s]\n%s",
		reason, strings.Join(candidates, ", "), background)

	text, err := c.complete(ctx, rankSystemPrompt, user)
	if err != nil {
		return nil, err
	}

	ranking, err := parseRanking(text)
	if err != nil {
		return nil, err
	}
	zap.L().Debug("classifier: ranked concepts",
		zap.String("reason", reason),
		zap.Strings("concepts", ranking.Concepts),
		zap.String("unknown", ranking.Unknown),
	)
	return ranking, nil
}

func (c *sdkClient) SuggestKeywords(ctx context.Context, reason string, failed []string) ([]string, error) {
	user := fmt.Sprintf("请为我分析下面的数据:\n涨停原因: %s\n失败关键词: [%s]",
		reason, strings.Join(failed, ", "))

	text, err := c.complete(ctx, keywordSystemPrompt, user)
	if err != nil {
		return nil, err
	}

	words, err := parseList(text)
	if err != nil {
		return nil, err
	}
	zap.L().Debug("classifier: suggested keywords",
		zap.String("reason", reason),
		zap.Strings("keywords", words),
	)
	return words, nil
}

func (c *sdkClient) complete(ctx context.Context, system, user string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", eris.Wrap(err, "classifier: rate limit wait")
	}

	msg, err := c.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: c.maxTokens,
		System: []sdk.TextBlockParam{
			{Text: system},
		},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", eris.Wrap(err, "classifier: create message")
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String(), nil
}
