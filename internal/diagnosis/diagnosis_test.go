package diagnosis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req["model"])

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func TestDiagnoseParsesToolCallAndClamps(t *testing.T) {
	args := `{"plant_species":"Tomato","disease_name":"Early blight","confidence":1.4,"severity":-0.2,"treatments":["Remove infected leaves"],"prevention_steps":["Rotate crops"]}`
	body, err := json.Marshal(map[string]any{
		"choices": []any{map[string]any{"message": map[string]any{"tool_calls": []any{
			map[string]any{"function": map[string]any{"name": toolName, "arguments": args}},
		}}}},
	})
	require.NoError(t, err)

	srv := chatServer(t, http.StatusOK, string(body))
	defer srv.Close()

	d, err := NewClient(srv.URL, "test-key", "test-model").Diagnose(context.Background(), "https://img.example/leaf.jpg")
	require.NoError(t, err)
	assert.Equal(t, "Tomato", d.PlantSpecies)
	assert.Equal(t, "Early blight", d.DiseaseName)
	assert.Equal(t, 1.0, d.Confidence)
	assert.Equal(t, 0.0, d.Severity)
	assert.Equal(t, []string{"Rotate crops"}, d.PreventionSteps)
}

func TestDiagnoseMissingListsBecomeEmpty(t *testing.T) {
	args := `{"plant_species":"Rice","disease_name":"Healthy","confidence":0.8,"severity":0,"treatments":null}`
	body, err := json.Marshal(map[string]any{
		"choices": []any{map[string]any{"message": map[string]any{"tool_calls": []any{
			map[string]any{"function": map[string]any{"name": toolName, "arguments": args}},
		}}}},
	})
	require.NoError(t, err)

	srv := chatServer(t, http.StatusOK, string(body))
	defer srv.Close()

	d, err := NewClient(srv.URL, "test-key", "test-model").Diagnose(context.Background(), "https://img.example/leaf.jpg")
	require.NoError(t, err)
	assert.NotNil(t, d.Treatments)
	assert.Empty(t, d.Treatments)
	assert.NotNil(t, d.PreventionSteps)
	assert.Empty(t, d.PreventionSteps)

	out, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"treatments":[]`)
	assert.Contains(t, string(out), `"prevention_steps":[]`)
}

func TestDiagnoseFallsBackWithoutToolCall(t *testing.T) {
	srv := chatServer(t, http.StatusOK, `{"choices":[{"message":{"content":"I think it is a leaf."}}]}`)
	defer srv.Close()

	d, err := NewClient(srv.URL, "test-key", "test-model").Diagnose(context.Background(), "https://img.example/leaf.jpg")
	require.NoError(t, err)
	assert.Equal(t, Fallback(), *d)
}

func TestDiagnoseMapsUpstreamStatus(t *testing.T) {
	cases := map[int]error{
		http.StatusTooManyRequests: ErrRateLimited,
		http.StatusPaymentRequired: ErrCreditsExhausted,
	}
	for status, want := range cases {
		srv := chatServer(t, status, `{}`)
		_, err := NewClient(srv.URL, "test-key", "test-model").Diagnose(context.Background(), "https://img.example/leaf.jpg")
		srv.Close()
		assert.ErrorIs(t, err, want)
	}
}

func TestDiagnoseRequiresKey(t *testing.T) {
	_, err := NewClient("http://127.0.0.1:0", "", "m").Diagnose(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, clamp01(-1))
	assert.Equal(t, 0.5, clamp01(0.5))
	assert.Equal(t, 1.0, clamp01(3))
}
