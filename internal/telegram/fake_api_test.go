package telegram

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

const testToken = "123:abc"

type apiCall struct {
	Method string
	Body   map[string]any
}

// fakeAPI is a Bot API stand-in that records every call.
type fakeAPI struct {
	mu      sync.Mutex
	calls   []apiCall
	updates [][]Update
	// failures maps a method to the descriptions returned, one per call
	failures map[string][]string
}

func newFakeAPI(t *testing.T) (*fakeAPI, *Client) {
	t.Helper()
	f := &fakeAPI{failures: map[string][]string{}}
	ts := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(ts.Close)
	c := NewClient(testToken)
	c.BaseURL = ts.URL
	return f, c
}

func (f *fakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	prefix := "/bot" + testToken + "/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":404,"description":"Not Found"}`))
		return
	}
	method := strings.TrimPrefix(r.URL.Path, prefix)
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	f.calls = append(f.calls, apiCall{Method: method, Body: body})
	var fail string
	if q := f.failures[method]; len(q) > 0 {
		fail, f.failures[method] = q[0], q[1:]
	}
	var result any = true
	if method == "getUpdates" {
		result = []Update{}
		if len(f.updates) > 0 {
			result, f.updates = f.updates[0], f.updates[1:]
		}
	}
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if fail != "" {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error_code": 400, "description": fail})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": result})
}

func (f *fakeAPI) callsTo(method string) []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []apiCall
	for _, c := range f.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}
