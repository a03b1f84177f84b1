package commands_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/CliForge/percy/internal/commands"
	"github.com/CliForge/percy/internal/runtime"
	"github.com/CliForge/percy/pkg/percy"
	"github.com/adrg/xdg"
	"github.com/stretchr/testify/require"
)

// fakePercy is a Percy process served over HTTP.
type fakePercy struct {
	server *httptest.Server

	mu        sync.Mutex
	requests  []string
	startOpts map[string]any
	jobs      map[string][]map[string]any
	stopped   bool

	// blockSnapshots makes snapshot requests hang until the client gives up.
	blockSnapshots bool
	snapshotSeen   chan struct{}
}

func newFakePercy(t *testing.T) *fakePercy {
	t.Helper()
	f := &fakePercy{
		jobs:         make(map[string][]map[string]any),
		snapshotSeen: make(chan struct{}, 1),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /percy/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		f.mu.Lock()
		stopped := f.stopped
		f.mu.Unlock()
		if stopped {
			http.Error(w, `{"error":"stopped"}`, http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("X-Percy-Core-Version", "1.0.0")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"build":   map[string]any{"id": 123, "number": 1, "url": "https://percy.io/test/123"},
		})
	})
	mux.HandleFunc("POST /percy/start", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		var opts map[string]any
		_ = json.NewDecoder(r.Body).Decode(&opts)
		f.mu.Lock()
		f.startOpts = opts
		f.mu.Unlock()
		writeOK(w)
	})
	mux.HandleFunc("POST /percy/snapshot", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		f.mu.Lock()
		block := f.blockSnapshots
		f.mu.Unlock()
		if block {
			select {
			case f.snapshotSeen <- struct{}{}:
			default:
			}
			<-r.Context().Done()
			return
		}
		f.addJob("snapshot", r)
		writeOK(w)
	})
	mux.HandleFunc("POST /percy/upload", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		f.addJob("upload", r)
		writeOK(w)
	})
	mux.HandleFunc("POST /percy/stop", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		f.mu.Lock()
		f.stopped = true
		f.mu.Unlock()
		writeOK(w)
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func writeOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"success":true}`))
}

func (f *fakePercy) record(r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
}

func (f *fakePercy) addJob(kind string, r *http.Request) {
	var payload map[string]any
	_ = json.NewDecoder(r.Body).Decode(&payload)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[kind] = append(f.jobs[kind], payload)
}

func (f *fakePercy) Requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func (f *fakePercy) Jobs(kind string) []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.jobs[kind]...)
}

func (f *fakePercy) Env() map[string]string {
	return map[string]string{"PERCY_SERVER_ADDRESS": f.server.URL}
}

// unreachableAddress returns the address of a closed server.
func unreachableAddress(t *testing.T) string {
	t.Helper()
	s := httptest.NewServer(http.NotFoundHandler())
	addr := s.URL
	s.Close()
	return addr
}

// countingCollaborator counts job submissions.
type countingCollaborator struct {
	percy.Collaborator
	submits atomic.Int32
}

func (c *countingCollaborator) SubmitJob(ctx context.Context, job percy.Job) error {
	c.submits.Add(1)
	return c.Collaborator.SubmitJob(ctx, job)
}

type result struct {
	code   int
	stdout string
	stderr string
}

type invocation struct {
	env     map[string]string
	workDir string
	collab  *countingCollaborator
	ctx     context.Context
}

func run(t *testing.T, inv invocation, args ...string) result {
	t.Helper()

	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	xdg.Reload()

	registry, err := runtime.NewRegistry(commands.All()...)
	require.NoError(t, err)

	if inv.workDir == "" {
		inv.workDir = t.TempDir()
	}
	if inv.env == nil {
		inv.env = map[string]string{}
	}
	if inv.ctx == nil {
		inv.ctx = context.Background()
	}

	var stdout, stderr bytes.Buffer
	opts := runtime.Options{
		Version:      "test",
		Stdout:       &stdout,
		Stderr:       &stderr,
		Environ:      inv.env,
		WorkDir:      inv.workDir,
		StartTimeout: 300 * time.Millisecond,
	}
	if inv.collab != nil {
		opts.NewCollaborator = func(baseURL string) percy.Collaborator {
			inv.collab.Collaborator = percy.NewClient(baseURL, nil)
			return inv.collab
		}
	}

	code := runtime.New(registry, opts).Execute(inv.ctx, args)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}
