package modules

import (
	"context"
	"fmt"
	"net/http"
	"path"

	"github.com/muurk/esp32ctl/internal/transport"
)

// DefaultAssetRoot is where the device serves module assets
const DefaultAssetRoot = "/tabs"

// HTTPAssetHost fetches module assets from the device's web server:
// <root>/<name>.html and <root>/<name>.js. Pre-compressed assets are
// decoded by the transport.
type HTTPAssetHost struct {
	client *transport.Client
	root   string
}

// NewHTTPAssetHost creates an asset host. Pass an unobserved client so
// asset traffic does not count as a connectivity signal.
func NewHTTPAssetHost(client *transport.Client, root string) *HTTPAssetHost {
	if root == "" {
		root = DefaultAssetRoot
	}
	return &HTTPAssetHost{client: client, root: root}
}

// FetchMarkup fetches the module's markup fragment
func (h *HTTPAssetHost) FetchMarkup(ctx context.Context, name Name) ([]byte, error) {
	return h.fetch(ctx, name, ".html")
}

// FetchCode fetches the module's code unit
func (h *HTTPAssetHost) FetchCode(ctx context.Context, name Name) ([]byte, error) {
	return h.fetch(ctx, name, ".js")
}

func (h *HTTPAssetHost) fetch(ctx context.Context, name Name, ext string) ([]byte, error) {
	if !name.Valid() {
		return nil, fmt.Errorf("invalid module %s", name)
	}
	p := path.Join(h.root, name.String()+ext)
	resp, err := h.client.Perform(ctx, http.MethodGet, p, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}
