package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/propdoc/analyzer/internal/common"
)

func newTestClient(baseURL string) *Client {
	return NewClient(Config{APIKey: "test-key", BaseURL: baseURL, Model: "gpt-4o"}, nil)
}

func chatResponse(content string) map[string]any {
	return map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	}
}

func legacyResponse(text string) map[string]any {
	return map[string]any{
		"choices": []map[string]any{
			{"text": text},
		},
	}
}

func TestCompletePrimaryPath(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth header = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		_ = json.NewEncoder(w).Encode(chatResponse(`{"ok": true}`))
	}))
	defer srv.Close()

	out, err := newTestClient(srv.URL).Complete(context.Background(), "gpt-4o", "analyze this", "")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if out != `{"ok": true}` {
		t.Errorf("content = %q", out)
	}
	if gotBody["model"] != "gpt-4o" {
		t.Errorf("model = %v", gotBody["model"])
	}
	// Text-only calls send the prompt as a plain string.
	msgs := gotBody["messages"].([]any)
	content := msgs[0].(map[string]any)["content"]
	if _, isString := content.(string); !isString {
		t.Errorf("content should be a plain string, got %T", content)
	}
}

func TestCompleteAttachesImageByReference(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		_ = json.NewEncoder(w).Encode(chatResponse("{}"))
	}))
	defer srv.Close()

	imageRef := "https://stage.example/img.png?sig=abc"
	if _, err := newTestClient(srv.URL).Complete(context.Background(), "gpt-4o", "analyze", imageRef); err != nil {
		t.Fatal(err)
	}

	msgs := gotBody["messages"].([]any)
	parts, ok := msgs[0].(map[string]any)["content"].([]any)
	if !ok || len(parts) != 2 {
		t.Fatalf("content = %v, want text + image_url parts", msgs[0])
	}
	img := parts[1].(map[string]any)
	if img["type"] != "image_url" {
		t.Errorf("second part type = %v", img["type"])
	}
	if url := img["image_url"].(map[string]any)["url"]; url != imageRef {
		t.Errorf("image url = %v, want the reference untouched", url)
	}
}

func TestCompleteFallsBackToLegacyEndpoint(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		switch r.URL.Path {
		case "/chat/completions":
			w.WriteHeader(http.StatusInternalServerError)
		case "/completions":
			var body map[string]any
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, &body)
			if body["prompt"] != "same prompt" {
				t.Errorf("fallback prompt = %v, want identical content", body["prompt"])
			}
			_ = json.NewEncoder(w).Encode(legacyResponse("fallback text"))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	out, err := newTestClient(srv.URL).Complete(context.Background(), "gpt-4o", "same prompt", "")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if out != "fallback text" {
		t.Errorf("content = %q", out)
	}
	if len(paths) != 2 || paths[0] != "/chat/completions" || paths[1] != "/completions" {
		t.Errorf("call order = %v", paths)
	}
}

func TestCompleteDualFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Complete(context.Background(), "gpt-4o", "prompt", "")
	if !errors.Is(err, common.ErrInference) {
		t.Fatalf("err = %v, want ErrInference", err)
	}
}

func TestCompleteEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/chat/completions" {
			_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
			return
		}
		_ = json.NewEncoder(w).Encode(legacyResponse("recovered"))
	}))
	defer srv.Close()

	// No choices on the primary path counts as a failure and triggers the
	// fallback.
	out, err := newTestClient(srv.URL).Complete(context.Background(), "gpt-4o", "prompt", "")
	if err != nil {
		t.Fatal(err)
	}
	if out != "recovered" {
		t.Errorf("content = %q", out)
	}
}
