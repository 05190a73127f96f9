// Package upstream holds the clients for the unofficial web-chat backends
// the bridge fronts. Each client turns one prompt into one completed reply;
// streaming back to the caller is synthesized elsewhere.
package upstream

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/codemist/webai-bridge/internal/adapter"
)

// Client is the contract for a web backend. Generate blocks until the
// upstream reply is complete.
type Client interface {
	Name() string
	Generate(ctx context.Context, prompt, model string) (adapter.CompletionResult, error)
}

// Registry manages the configured backend clients.
type Registry struct {
	clients map[string]Client
}

func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]Client),
	}
}

// Register adds a client to the registry.
func (r *Registry) Register(client Client) {
	r.clients[client.Name()] = client
}

// Get retrieves a client by backend name.
func (r *Registry) Get(name string) (Client, bool) {
	client, exists := r.clients[name]
	return client, exists
}

// List returns all registered backend names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}

	return names
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 5 * time.Minute,
	}
}

// decompressReader unwraps gzip- and brotli-encoded response bodies. The web
// frontends compress aggressively and Go only transparently handles gzip it
// negotiated itself.
func decompressReader(resp *http.Response) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}

		return gzipReader, nil
	case "br":
		return brotli.NewReader(resp.Body), nil
	default:
		return resp.Body, nil
	}
}
