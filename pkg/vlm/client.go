// Package vlm talks to a remote vision-language model. Every call returns a
// lazy stream of text fragments that ends on completion, error or Close.
package vlm

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"strings"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/ssestream"
)

var ErrEmptyImage = errors.New("profile requires an image")

type Request struct {
	Profile Profile
	Image   image.Image
	// Query is the user's question for the assistant profile.
	Query string
	// Current is the narration accumulated so far in this session.
	Current string
	// History holds recent narration snapshots, oldest first.
	History []string
}

// Stream yields text fragments. Close must be called once the caller is
// done, whether or not the stream was drained.
type Stream interface {
	Next() bool
	Current() string
	Err() error
	Close() error
}

type Analyzer interface {
	Analyze(ctx context.Context, req Request) (Stream, error)
}

type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	// HTTPClient overrides the default transport, e.g. to go through a proxy.
	HTTPClient *http.Client
	// JPEGQuality is used when encoding frames; 0 means 80.
	JPEGQuality int
}

type Client struct {
	api     openai.Client
	model   string
	quality int
}

func NewClient(cfg Config) *Client {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	q := cfg.JPEGQuality
	if q <= 0 {
		q = 80
	}

	return &Client{
		api:     openai.NewClient(opts...),
		model:   cfg.Model,
		quality: q,
	}
}

func (c *Client) Analyze(ctx context.Context, req Request) (Stream, error) {
	params, err := c.params(req)
	if err != nil {
		return nil, err
	}

	s := c.api.Chat.Completions.NewStreaming(ctx, params)
	if err := s.Err(); err != nil {
		s.Close()
		return nil, fmt.Errorf("%s stream: %w", req.Profile, err)
	}
	return &chunkStream{s: s}, nil
}

func (c *Client) params(req Request) (openai.ChatCompletionNewParams, error) {
	p, ok := profiles[req.Profile]
	if !ok {
		return openai.ChatCompletionNewParams{}, fmt.Errorf("unknown profile %d", req.Profile)
	}
	if p.needsImage && req.Image == nil {
		return openai.ChatCompletionNewParams{}, ErrEmptyImage
	}

	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(UserText(req)),
	}
	if req.Image != nil {
		url, err := c.dataURL(req.Image)
		if err != nil {
			return openai.ChatCompletionNewParams{}, err
		}
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: url,
		}))
	}

	return openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(p.system),
			openai.UserMessage(parts),
		},
		Temperature:         openai.Float(p.temperature),
		MaxCompletionTokens: openai.Int(p.maxTokens),
	}, nil
}

// UserText builds the user turn for req. Only the assistant profile
// carries context.
func UserText(req Request) string {
	p := profiles[req.Profile]
	if req.Profile != Assistant {
		return p.instruction
	}

	var b strings.Builder
	if len(req.History) > 0 {
		b.WriteString("Recent environment data:\n")
		for i, h := range req.History {
			fmt.Fprintf(&b, "Frame %d: %s\n", i+1, h)
		}
	}
	if cur := strings.TrimSpace(req.Current); cur != "" {
		fmt.Fprintf(&b, "\nCurrent environment data: %s\n", cur)
	}
	fmt.Fprintf(&b, "\nUser question: %s\n", req.Query)
	b.WriteString(p.instruction)
	return b.String()
}

func (c *Client) dataURL(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: c.quality}); err != nil {
		return "", fmt.Errorf("encode frame: %w", err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// chunkStream flattens completion chunks into non-empty text deltas.
type chunkStream struct {
	s   *ssestream.Stream[openai.ChatCompletionChunk]
	cur string
}

func (cs *chunkStream) Next() bool {
	for cs.s.Next() {
		chunk := cs.s.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if d := chunk.Choices[0].Delta.Content; d != "" {
			cs.cur = d
			return true
		}
	}
	return false
}

func (cs *chunkStream) Current() string { return cs.cur }
func (cs *chunkStream) Err() error      { return cs.s.Err() }
func (cs *chunkStream) Close() error    { return cs.s.Close() }

// Collect drains s and returns the concatenated text.
func Collect(s Stream) (string, error) {
	defer s.Close()

	var b strings.Builder
	for s.Next() {
		b.WriteString(s.Current())
	}
	return b.String(), s.Err()
}
