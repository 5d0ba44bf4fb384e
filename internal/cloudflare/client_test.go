package cloudflare_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanpl/grasser/internal/cloudflare"
	"github.com/yanpl/grasser/internal/config"
)

const testModel = "@cf/openai/gpt-oss-20b"

// captureLogs redirects the global zerolog logger into a buffer for the
// duration of the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf).Level(zerolog.InfoLevel)
	t.Cleanup(func() { log.Logger = prev })
	return &buf
}

func logLines(buf *bytes.Buffer) []string {
	trimmed := strings.TrimSpace(buf.String())
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "\n")
}

func outputTextBody(text string) string {
	return `{"result":{"output":[` +
		`{"type":"reasoning","content":[{"type":"reasoning_text","text":"thinking"}]},` +
		`{"type":"message","content":[{"type":"output_text","text":` + mustJSON(text) + `}]}` +
		`]},"success":true}`
}

func mustJSON(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func wait(t *testing.T, p *cloudflare.Pending) cloudflare.Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r, err := p.Wait(ctx)
	require.NoError(t, err)
	return r
}

// =============================================================================
// ACCOUNT DISCOVERY TESTS
// =============================================================================

func TestDiscover(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		expectID    string
		expectError error
	}{
		{
			name:     "first account wins",
			status:   http.StatusOK,
			body:     `{"result":[{"id":"acc-1","name":"first"},{"id":"acc-2"}],"success":true}`,
			expectID: "acc-1",
		},
		{
			name:        "empty account list",
			status:      http.StatusOK,
			body:        `{"result":[],"success":true}`,
			expectError: cloudflare.ErrNoAccounts,
		},
		{
			name:        "missing result",
			status:      http.StatusOK,
			body:        `{"success":true}`,
			expectError: cloudflare.ErrMissingResult,
		},
		{
			name:        "not json",
			status:      http.StatusOK,
			body:        `<html>`,
			expectError: cloudflare.ErrInvalidJSON,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, "/accounts", r.URL.Path)
				assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := cloudflare.NewClient("secret", testModel, cloudflare.WithBaseURL(server.URL))
			id, err := client.Discover(context.Background())

			if tt.expectError != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.expectError)
				_, ok := client.AccountID()
				assert.False(t, ok)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectID, id)
			got, ok := client.AccountID()
			assert.True(t, ok)
			assert.Equal(t, tt.expectID, got)
		})
	}
}

func TestDiscover_ProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"errors":[{"code":9109,"message":"Invalid access token"}]}`))
	}))
	defer server.Close()

	client := cloudflare.NewClient("bad", testModel, cloudflare.WithBaseURL(server.URL))
	_, err := client.Discover(context.Background())

	var pe *cloudflare.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusForbidden, pe.StatusCode)
	assert.Contains(t, pe.Body, "Invalid access token")
}

func TestDiscoverAsync_DoesNotBlock(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = w.Write([]byte(`{"result":[{"id":"late"}]}`))
	}))
	defer server.Close()

	client := cloudflare.NewClient("k", testModel, cloudflare.WithBaseURL(server.URL))
	errCh := client.DiscoverAsync(context.Background())

	_, ok := client.AccountID()
	assert.False(t, ok, "account must be unresolved while discovery is in flight")

	close(release)
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("discovery did not complete")
	}

	id, ok := client.AccountID()
	assert.True(t, ok)
	assert.Equal(t, "late", id)
}

func TestDiscover_SkippedWhenAccountPreset(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	client := cloudflare.NewClientFromConfig(config.CloudflareConfig{
		APIKey:    "k",
		ModelID:   testModel,
		AccountID: "preset",
		BaseURL:   server.URL,
	})
	id, err := client.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "preset", id)
	assert.Zero(t, calls.Load())
}

// =============================================================================
// REWRITE TESTS
// =============================================================================

func TestRewrite_AccountUnavailable(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	client := cloudflare.NewClient("k", testModel, cloudflare.WithBaseURL(server.URL))
	p := client.Rewrite(context.Background(), cloudflare.RewriteRequest{RawMessage: "hi"})

	r, ok := p.Result()
	require.True(t, ok, "result must be available immediately")
	assert.ErrorIs(t, r.Err, cloudflare.ErrAccountUnavailable)
	assert.Equal(t, "account not available", r.Err.Error())
	assert.Zero(t, calls.Load(), "no network call may be attempted")
}

func TestRewrite_RequestShape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/accounts/acc-1/ai/run/"+testModel, r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		raw, err := io.ReadAll(r.Body)
		assert.NoError(t, err)

		var body struct {
			Model string `json:"model"`
			Input []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"input"`
		}
		assert.NoError(t, json.Unmarshal(raw, &body))
		assert.Equal(t, testModel, body.Model)
		if assert.Len(t, body.Input, 1) {
			assert.Equal(t, "user", body.Input[0].Role)
			assert.Equal(t, "<<hi>>"+cloudflare.SafetyInstruction, body.Input[0].Content)
		}

		_, _ = w.Write([]byte(outputTextBody("HI THERE")))
	}))
	defer server.Close()

	client := cloudflare.NewClient("secret", testModel,
		cloudflare.WithBaseURL(server.URL), cloudflare.WithAccountID("acc-1"))
	r := wait(t, client.Rewrite(context.Background(), cloudflare.RewriteRequest{
		RawMessage:   "hi",
		PromptPrefix: "<<",
		PromptSuffix: ">>",
	}))

	require.NoError(t, r.Err)
	assert.True(t, r.OK())
	assert.Equal(t, "HI THERE", r.Text)
}

func TestRewrite_ResponseParsing(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		expectText  string
		expectError error
	}{
		{
			name:       "single message with output_text",
			body:       `{"result":{"output":[{"type":"message","content":[{"type":"output_text","text":"hello"}]}]}}`,
			expectText: "hello",
		},
		{
			name: "first match wins",
			body: `{"result":{"output":[` +
				`{"type":"message","content":[{"type":"input_text","text":"no"},{"type":"output_text","text":"first"},{"type":"output_text","text":"second"}]},` +
				`{"type":"message","content":[{"type":"output_text","text":"third"}]}]}}`,
			expectText: "first",
		},
		{
			name:       "reasoning entries are skipped",
			body:       outputTextBody("after reasoning"),
			expectText: "after reasoning",
		},
		{
			name:       "legacy response shape",
			body:       `{"result":{"response":"legacy text"},"success":true}`,
			expectText: "legacy text",
		},
		{
			name:        "missing result",
			body:        `{"success":true}`,
			expectError: cloudflare.ErrMissingResult,
		},
		{
			name:        "missing output",
			body:        `{"result":{"usage":{}}}`,
			expectError: cloudflare.ErrMissingOutput,
		},
		{
			name:        "no message entry",
			body:        `{"result":{"output":[{"type":"reasoning","content":[{"type":"output_text","text":"x"}]}]}}`,
			expectError: cloudflare.ErrMissingOutputText,
		},
		{
			name:        "message without output_text",
			body:        `{"result":{"output":[{"type":"message","content":[{"type":"refusal","text":"x"}]}]}}`,
			expectError: cloudflare.ErrMissingOutputText,
		},
		{
			name:        "invalid json",
			body:        `{"result":`,
			expectError: cloudflare.ErrInvalidJSON,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := cloudflare.NewClient("k", testModel,
				cloudflare.WithBaseURL(server.URL), cloudflare.WithAccountID("acc"))
			r := wait(t, client.Rewrite(context.Background(), cloudflare.RewriteRequest{RawMessage: "m"}))

			if tt.expectError != nil {
				require.Error(t, r.Err)
				assert.ErrorIs(t, r.Err, tt.expectError)
				var pe *cloudflare.ProtocolError
				assert.ErrorAs(t, r.Err, &pe)
				return
			}
			require.NoError(t, r.Err)
			assert.Equal(t, tt.expectText, r.Text)
		})
	}
}

func TestRewrite_ServerErrorNoRetry(t *testing.T) {
	logs := captureLogs(t)

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("server error"))
	}))
	defer server.Close()

	client := cloudflare.NewClient("k", testModel,
		cloudflare.WithBaseURL(server.URL), cloudflare.WithAccountID("acc"))
	r := wait(t, client.Rewrite(context.Background(), cloudflare.RewriteRequest{RawMessage: "m"}))

	var pe *cloudflare.ProviderError
	require.ErrorAs(t, r.Err, &pe)
	assert.Equal(t, 500, pe.StatusCode)
	assert.Equal(t, "server error", pe.Body)
	assert.Equal(t, int32(1), calls.Load(), "no retry")

	lines := logLines(logs)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"status":500`)
	assert.Contains(t, lines[0], "server error")
}

func TestRewrite_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := cloudflare.NewClient("k", testModel,
		cloudflare.WithBaseURL(url), cloudflare.WithAccountID("acc"))
	r := wait(t, client.Rewrite(context.Background(), cloudflare.RewriteRequest{RawMessage: "m"}))

	var te *cloudflare.TransportError
	require.ErrorAs(t, r.Err, &te)
	assert.NotNil(t, errors.Unwrap(r.Err))
}

func TestRewrite_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := cloudflare.NewClient("k", testModel,
		cloudflare.WithBaseURL(server.URL),
		cloudflare.WithAccountID("acc"),
		cloudflare.WithTimeout(50*time.Millisecond))
	r := wait(t, client.Rewrite(context.Background(), cloudflare.RewriteRequest{RawMessage: "m"}))

	var te *cloudflare.TransportError
	assert.ErrorAs(t, r.Err, &te)
}

func TestRewrite_DoesNotBlockCaller(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = w.Write([]byte(outputTextBody("done")))
	}))
	defer server.Close()

	client := cloudflare.NewClient("k", testModel,
		cloudflare.WithBaseURL(server.URL), cloudflare.WithAccountID("acc"))
	p := client.Rewrite(context.Background(), cloudflare.RewriteRequest{RawMessage: "m"})

	_, ok := p.Result()
	assert.False(t, ok, "result must not be available before the server answers")

	close(release)
	r := wait(t, p)
	assert.Equal(t, "done", r.Text)
}
