package embedding

import (
	"fmt"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Client wraps the OpenAI client shared by the embedding and generation providers.
type Client struct {
	client *openai.Client
}

// NewClient creates an OpenAI client. The API key comes from the argument
// or falls back to OPENAI_API_KEY; baseURL (if non-empty) points the client
// at a compatible endpoint, which the tests use.
func NewClient(apiKey, baseURL string) (*Client, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key not configured (set OPENAI_API_KEY)")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(opts...)
	return &Client{client: &client}, nil
}

// Client returns the underlying OpenAI client for the generation provider.
func (c *Client) Client() *openai.Client {
	return c.client
}
