package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/emandor/medai_service/internal/textutil"
)

// maxResponseBytes caps what is read from a provider answer.
const maxResponseBytes = 4 << 20

// HTTPError is a non-2xx provider answer.
type HTTPError struct {
	Provider SourceName
	Status   int
	Body     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s http %d", e.Provider, e.Status)
}

// Retryable reports throttling and server-side failures.
func (e *HTTPError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

func postJSON(ctx context.Context, hc *http.Client, provider SourceName, url string, header http.Header, body any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{Provider: provider, Status: resp.StatusCode, Body: textutil.Truncate(string(raw), 512)}
	}
	return raw, nil
}
