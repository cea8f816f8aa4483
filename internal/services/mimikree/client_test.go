package mimikree

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/petitor/internal/common"
)

func TestEnabled(t *testing.T) {
	logger := common.GetLogger()
	assert.False(t, NewClient(&common.MimikreeConfig{}, logger).Enabled())
	assert.False(t, NewClient(&common.MimikreeConfig{BaseURL: "   "}, logger).Enabled())
	assert.True(t, NewClient(&common.MimikreeConfig{BaseURL: "https://mimikree.example.com"}, logger).Enabled())
}

func TestAsk(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/ask", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req askRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "maya", req.Username)
		assert.Contains(t, req.Query, "projects")

		json.NewEncoder(w).Encode(askResponse{Answer: "A Kubernetes operator and a chat app."})
	}))
	defer server.Close()

	client := NewClient(&common.MimikreeConfig{BaseURL: server.URL + "/", APIKey: "secret"}, common.GetLogger())
	answer, err := client.Ask(context.Background(), "maya", "List your projects")
	require.NoError(t, err)
	assert.Equal(t, "A Kubernetes operator and a chat app.", answer)
}

func TestAsk_ServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(askResponse{Error: "unknown user"})
	}))
	defer server.Close()

	client := NewClient(&common.MimikreeConfig{BaseURL: server.URL}, common.GetLogger())
	_, err := client.Ask(context.Background(), "nobody", "List your projects")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown user")
}

func TestAsk_NotConfigured(t *testing.T) {
	client := NewClient(&common.MimikreeConfig{}, common.GetLogger())
	_, err := client.Ask(context.Background(), "maya", "q")
	assert.Error(t, err)
}
