package platforms

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"
)

type OllamaPlatform struct {
	client *api.Client
	model  string
}

// NewOllamaPlatform connects to host, or to OLLAMA_HOST when host is empty.
func NewOllamaPlatform(model, host string, timeout time.Duration) (*OllamaPlatform, error) {
	if model == "" {
		return nil, fmt.Errorf("ollama platform: model cannot be empty")
	}

	var client *api.Client
	if host == "" {
		c, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("ollama platform: failed to create client: %w", err)
		}
		client = c
	} else {
		base, err := url.Parse(host)
		if err != nil {
			return nil, fmt.Errorf("ollama platform: invalid host %q: %w", host, err)
		}
		client = api.NewClient(base, &http.Client{Timeout: timeout})
	}

	return &OllamaPlatform{
		client: client,
		model:  model,
	}, nil
}

func (o *OllamaPlatform) Client() *api.Client { return o.client }

func (o *OllamaPlatform) Model() string { return o.model }

func (o *OllamaPlatform) Generate(ctx context.Context, request *api.GenerateRequest, respFunc api.GenerateResponseFunc) error {
	request.Model = o.model
	return o.Client().Generate(ctx, request, respFunc)
}
