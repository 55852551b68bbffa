package ocr

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadRetriesThrottledRequests(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"Loop of Henle"}}]}`))
	}))
	defer srv.Close()

	v := NewOpenAIVision("k", "m", 100, 100, 2)
	v.BaseURL = srv.URL
	res, err := v.Read(context.Background(), []byte{0xFF, 0xD8}, "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "Loop of Henle", res.Text)
	assert.Equal(t, int32(2), hits.Load())
}

func TestReadDoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	v := NewOpenAIVision("k", "m", 100, 100, 3)
	v.BaseURL = srv.URL
	_, err := v.Read(context.Background(), nil, "image/jpeg")
	assert.ErrorContains(t, err, "400")
	assert.Equal(t, int32(1), hits.Load())
}

func TestReadWithoutKey(t *testing.T) {
	_, err := NewOpenAIVision("", "m", 1, 1, 0).Read(context.Background(), nil, "image/jpeg")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestReadGivesUpAfterMaxRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	v := NewOpenAIVision("k", "m", 100, 100, 1)
	v.BaseURL = srv.URL
	_, err := v.Read(context.Background(), nil, "image/png")

	var se StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.Code)
	assert.Equal(t, int32(2), hits.Load())
}

func TestBackoffIsCapped(t *testing.T) {
	assert.Equal(t, baseBackoff, backoff(0))
	assert.Equal(t, 2*baseBackoff, backoff(1))
	assert.Equal(t, maxBackoff, backoff(10))
	assert.Equal(t, maxBackoff, backoff(70))
}
