package vision

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fro-server/internal/domain/image"
	"fro-server/internal/platform/errors"
	fixtures "fro-server/internal/platform/testing"
)

type recordedCall struct {
	Path string
	Body map[string]any
}

type fakeServer struct {
	mu      sync.Mutex
	calls   []recordedCall
	replies []string
	status  int
	delay   time.Duration
}

func (f *fakeServer) handler(ollama bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)

		f.mu.Lock()
		f.calls = append(f.calls, recordedCall{Path: r.URL.Path, Body: body})
		content := ""
		if len(f.replies) > 0 {
			content = f.replies[0]
			f.replies = f.replies[1:]
		}
		status, delay := f.status, f.delay
		f.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		if status != 0 && status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
			return
		}
		if ollama {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"message": map[string]any{"role": "assistant", "content": content},
				"done":    true,
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "gemini-2.0-flash",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		})
	}
}

func (f *fakeServer) lastCall(t *testing.T) recordedCall {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.calls)
	return f.calls[len(f.calls)-1]
}

func newTestProvider(t *testing.T, typ string, fake *fakeServer) *Provider {
	t.Helper()
	srv := httptest.NewServer(fake.handler(typ == TypeOllama))
	t.Cleanup(srv.Close)

	p, err := NewProvider(Config{
		Type:        typ,
		ModelName:   "gemini-2.0-flash",
		BaseURL:     srv.URL + "/",
		APIKey:      "test-key",
		Temperature: 0.2,
		MaxTokens:   512,
	}, fixtures.SetupTestLogger(t))
	require.NoError(t, err)
	return p
}

func testPayload(t *testing.T) *image.Payload {
	return &image.Payload{Data: fixtures.JPEGBytes(t, 8, 8), MIMEType: "image/jpeg", Width: 8, Height: 8}
}

func TestNewProviderValidation(t *testing.T) {
	logger := fixtures.SetupTestLogger(t)

	_, err := NewProvider(Config{Type: TypeGemini, ModelName: "m"}, logger)
	assert.True(t, errors.IsKind(err, errors.KindConfig))

	_, err = NewProvider(Config{Type: "bard", ModelName: "m", APIKey: "k"}, logger)
	assert.True(t, errors.IsKind(err, errors.KindConfig))

	_, err = NewProvider(Config{Type: TypeOpenAI, APIKey: "k"}, logger)
	assert.True(t, errors.IsKind(err, errors.KindConfig))

	p, err := NewProvider(Config{Type: " Ollama ", ModelName: "llava"}, logger)
	require.NoError(t, err)
	typ, model := p.Describe()
	assert.Equal(t, TypeOllama, typ)
	assert.Equal(t, "llava", model)
	assert.Equal(t, defaultOllamaURL, p.cfg.BaseURL)
}

func TestIdentifyPlantSendsImageAndSchema(t *testing.T) {
	fake := &fakeServer{replies: []string{
		`{"commonName":"Samambaia","latinName":"Nephrolepis exaltata","confidence":0.92,"description":"Planta de folhagem."}`,
	}}
	p := newTestProvider(t, TypeGemini, fake)
	payload := testPayload(t)

	id, err := p.IdentifyPlant(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, "Samambaia", id.CommonName)
	assert.Equal(t, "Nephrolepis exaltata", id.LatinName)
	assert.InDelta(t, 0.92, id.Confidence, 1e-9)

	call := fake.lastCall(t)
	assert.Equal(t, "/chat/completions", call.Path)
	assert.Equal(t, "gemini-2.0-flash", call.Body["model"])

	format := call.Body["response_format"].(map[string]any)
	assert.Equal(t, "json_schema", format["type"])
	schema := format["json_schema"].(map[string]any)
	assert.Equal(t, "plant_identification", schema["name"])
	assert.Equal(t, true, schema["strict"])

	messages := call.Body["messages"].([]any)
	require.Len(t, messages, 1)
	parts := messages[0].(map[string]any)["content"].([]any)
	require.Len(t, parts, 2)
	assert.Contains(t, parts[0].(map[string]any)["text"], "Frô")
	imageURL := parts[1].(map[string]any)["image_url"].(map[string]any)["url"].(string)
	assert.Equal(t, payload.DataURI(), imageURL)
}

func TestAnalyzeHealthIncludesDescription(t *testing.T) {
	fake := &fakeServer{replies: []string{
		"```json\n{\"isHealthy\":false,\"diagnosis\":\"Folhas amareladas.\",\"careTips\":\"Reduza a rega.\"}\n```",
	}}
	p := newTestProvider(t, TypeOpenAI, fake)

	h, err := p.AnalyzePlantHealth(context.Background(), testPayload(t), "Samambaia - Planta de folhagem.")
	require.NoError(t, err)
	assert.False(t, h.IsHealthy)
	assert.Equal(t, "Folhas amareladas.", h.Diagnosis)

	parts := fake.lastCall(t).Body["messages"].([]any)[0].(map[string]any)["content"].([]any)
	assert.Contains(t, parts[0].(map[string]any)["text"], "Descrição: Samambaia - Planta de folhagem.")
}

func TestCareTipsIsTextOnly(t *testing.T) {
	fake := &fakeServer{replies: []string{`{"careTips":"Rega: duas vezes por semana."}`}}
	p := newTestProvider(t, TypeGemini, fake)

	guide, err := p.GenerateCareTips(context.Background(), "Samambaia", "Saudável")
	require.NoError(t, err)
	assert.Equal(t, "Rega: duas vezes por semana.", guide.CareTips)

	parts := fake.lastCall(t).Body["messages"].([]any)[0].(map[string]any)["content"].([]any)
	require.Len(t, parts, 1)
	assert.Contains(t, parts[0].(map[string]any)["text"], "Nome da planta: Samambaia")
}

func TestMalformedOutputIsRemoteError(t *testing.T) {
	fake := &fakeServer{replies: []string{`{"commonName":"Samambaia"}`}}
	p := newTestProvider(t, TypeGemini, fake)

	_, err := p.IdentifyPlant(context.Background(), testPayload(t))
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindRemote))
}

func TestConfidenceOutOfRangeIsRemoteError(t *testing.T) {
	fake := &fakeServer{replies: []string{
		`{"commonName":"Samambaia","latinName":"Nephrolepis exaltata","confidence":92,"description":"Folhas verdes."}`,
	}}
	p := newTestProvider(t, TypeGemini, fake)

	ident, err := p.IdentifyPlant(context.Background(), testPayload(t))
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindRemote))
	assert.Empty(t, ident.CommonName)
}

func TestServerErrorIsRemoteError(t *testing.T) {
	fake := &fakeServer{status: http.StatusInternalServerError}
	p := newTestProvider(t, TypeGemini, fake)

	_, err := p.IdentifyPlant(context.Background(), testPayload(t))
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindRemote))
}

func TestCallHonoursContextDeadline(t *testing.T) {
	fake := &fakeServer{delay: 2 * time.Second, replies: []string{`{}`}}
	p := newTestProvider(t, TypeGemini, fake)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := p.IdentifyPlant(ctx, testPayload(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOllamaNativeChat(t *testing.T) {
	fake := &fakeServer{replies: []string{
		`{"commonName":"Jiboia","latinName":"Epipremnum aureum","confidence":0.8,"description":"Trepadeira."}`,
	}}
	p := newTestProvider(t, TypeOllama, fake)
	payload := testPayload(t)

	id, err := p.IdentifyPlant(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, "Jiboia", id.CommonName)

	call := fake.lastCall(t)
	assert.Equal(t, "/api/chat", call.Path)
	assert.Equal(t, false, call.Body["stream"])
	assert.NotNil(t, call.Body["format"])
	msg := call.Body["messages"].([]any)[0].(map[string]any)
	images := msg["images"].([]any)
	require.Len(t, images, 1)
	assert.Equal(t, payload.Base64(), images[0])
	assert.False(t, strings.HasPrefix(images[0].(string), "data:"))
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence("  {\"a\":1} "))
}
