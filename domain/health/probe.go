package health

import (
	"context"
	"fmt"
	"net/http"
)

// HTTPProbe checks that an HTTP service answers. Any status below 500 counts
// as up, since the auxiliary services do not share a health path.
type HTTPProbe struct {
	URL    string
	Client *http.Client
}

// Ping issues a GET against the probe URL.
func (p HTTPProbe) Ping(ctx context.Context) error {
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return fmt.Errorf("build probe request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%s answered %d", p.URL, resp.StatusCode)
	}
	return nil
}
