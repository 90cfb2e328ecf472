package e2e

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const (
	startupTimeout = 10 * time.Second
	pollInterval   = 100 * time.Millisecond
)

const (
	fakeEngine = `#!/bin/sh
for i in 0 1 2; do echo "$i.0E+03 time" > fort.t000$i; done
echo "done"
`
	fakePlotter = `#!/bin/sh
for i in 0 1 2; do touch "$1/frame000${i}fig0.png"; done
`
)

// lockedBuffer is a thread-safe wrapper around bytes.Buffer.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (lb *lockedBuffer) Write(p []byte) (int, error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.buf.Write(p)
}

func (lb *lockedBuffer) String() string {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.buf.String()
}

// serverProc holds the running server subprocess and its output.
type serverProc struct {
	cmd       *exec.Cmd
	stdout    *lockedBuffer
	url       string
	root      string
	erddapHit *atomic.Int32
}

var (
	builtBinary string
	buildOnce   sync.Once
	buildErr    error
)

func getBinary(t *testing.T) string {
	t.Helper()
	buildOnce.Do(func() {
		dir, err := os.MkdirTemp("", "tsunamid-e2e-*")
		if err != nil {
			buildErr = err
			return
		}
		binary := filepath.Join(dir, "tsunamid")
		cmd := exec.Command("go", "build", "-o", binary, "./cmd/tsunamid")
		cmd.Dir = findRepoRoot(t)
		out, err := cmd.CombinedOutput()
		if err != nil {
			buildErr = fmt.Errorf("go build failed: %w\n%s", err, out)
			return
		}
		builtBinary = binary
	})
	if buildErr != nil {
		t.Fatal(buildErr)
	}
	return builtBinary
}

func findRepoRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find repo root")
		}
		dir = parent
	}
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

// newFakeERDDAP serves a 4x3 elevation grid covering the chile2010 test extent.
func newFakeERDDAP(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		var b strings.Builder
		b.WriteString("latitude,longitude,altitude\ndegrees_north,degrees_east,m\n")
		for _, lat := range []float64{-45, -35, -25} {
			for i, lon := range []float64{-85, -80, -75, -70} {
				fmt.Fprintf(&b, "%g,%g,%d\n", lat, lon, -4000+i*1400)
			}
		}
		io.WriteString(w, b.String())
	}))
	t.Cleanup(srv.Close)
	return srv
}

func startServer(t *testing.T, binary string) *serverProc {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	tmp := t.TempDir()
	root := filepath.Join(tmp, "web_runs")
	hits := &atomic.Int32{}
	erddap := newFakeERDDAP(t, hits)

	stdout := &lockedBuffer{}
	cmd := exec.Command(binary, "serve")
	cmd.Env = append(os.Environ(),
		"TSUNAMI_LISTEN_ADDR="+addr,
		"TSUNAMI_DB_PATH="+filepath.Join(tmp, "test.db"),
		"TSUNAMI_LOG_LEVEL=info",
		"TSUNAMI_WORKSPACE_ROOT="+root,
		"TSUNAMI_TOPO_CACHE_DIR="+filepath.Join(tmp, "topo_cache"),
		"TSUNAMI_ERDDAP_URL="+erddap.URL+"/erddap",
		"TSUNAMI_GEOCLAW_BIN="+writeScript(t, tmp, "xgeoclaw", fakeEngine),
		"TSUNAMI_PLOT_CMD="+writeScript(t, tmp, "plot.sh", fakePlotter)+" {plotdir}",
		"TSUNAMI_MINIO_ENDPOINT=",
	)
	cmd.Stdout = stdout
	cmd.Stderr = stdout

	if err := cmd.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}

	sp := &serverProc{
		cmd:       cmd,
		stdout:    stdout,
		url:       "http://" + addr,
		root:      root,
		erddapHit: hits,
	}

	t.Cleanup(func() {
		cmd.Process.Kill()
		cmd.Wait()
	})

	deadline := time.Now().Add(startupTimeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(sp.url + "/healthz")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == 200 {
				return sp
			}
		}
		time.Sleep(pollInterval)
	}
	t.Fatalf("server did not become ready within %v\nstdout:\n%s", startupTimeout, stdout.String())
	return nil
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestServeHealthAndMetrics(t *testing.T) {
	sp := startServer(t, getBinary(t))

	resp, err := http.Get(sp.url + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	var health map[string]any
	decode(t, resp, &health)
	if health["status"] != "ok" {
		t.Errorf("status = %v, want ok", health["status"])
	}

	resp, err = http.Get(sp.url + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	for _, name := range []string{"tsunami_http_requests_total", "tsunami_runs_in_flight"} {
		if !bytes.Contains(body, []byte(name)) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}

func TestSimulateThenBrowse(t *testing.T) {
	sp := startServer(t, getBinary(t))

	payload := `{"lon":-72.7,"lat":-35.8,"extent":{"west":-85,"east":-70,"south":-45,"north":-25},"template":"chile2010"}`
	var runIDs []string
	for i := 0; i < 2; i++ {
		resp, err := http.Post(sp.url+"/api/simulate", "application/json", strings.NewReader(payload))
		if err != nil {
			t.Fatalf("POST /api/simulate: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			t.Fatalf("status = %d\nbody: %s\nlogs:\n%s", resp.StatusCode, body, sp.stdout.String())
		}
		var res struct {
			RunID  string `json:"run_id"`
			Frames []struct {
				Frame int      `json:"frame"`
				T     *float64 `json:"t"`
			} `json:"frames"`
		}
		decode(t, resp, &res)
		if len(res.Frames) != 3 || res.Frames[2].T == nil || *res.Frames[2].T != 2000 {
			t.Fatalf("frames = %+v", res.Frames)
		}
		runIDs = append(runIDs, res.RunID)
	}

	if runIDs[0] == runIDs[1] {
		t.Errorf("both runs got id %q", runIDs[0])
	}
	if n := sp.erddapHit.Load(); n != 1 {
		t.Errorf("ERDDAP fetched %d times, want 1", n)
	}

	resp, err := http.Get(sp.url + "/api/runs")
	if err != nil {
		t.Fatalf("GET /api/runs: %v", err)
	}
	var listing struct {
		Runs []struct {
			RunID   string `json:"run_id"`
			NFrames int    `json:"n_frames"`
			Meta    struct {
				State string `json:"state"`
			} `json:"meta"`
		} `json:"runs"`
	}
	decode(t, resp, &listing)
	if len(listing.Runs) != 2 {
		t.Fatalf("runs = %+v, want 2", listing.Runs)
	}
	for _, r := range listing.Runs {
		if r.NFrames != 3 || r.Meta.State != "indexed" {
			t.Errorf("run %+v, want 3 indexed frames", r)
		}
	}

	resp, err = http.Get(sp.url + "/run/" + runIDs[0] + "/plots/frame0001fig0.png")
	if err != nil {
		t.Fatalf("GET plot: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("plot status = %d, want 200", resp.StatusCode)
	}

	entries, err := os.ReadDir(sp.root)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("workspace root holds %d entries, want only the 2 run dirs", len(entries))
	}
}

func TestStructuredJSONLogs(t *testing.T) {
	sp := startServer(t, getBinary(t))

	resp, err := http.Get(sp.url + "/api/templates")
	if err != nil {
		t.Fatalf("GET /api/templates: %v", err)
	}
	resp.Body.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(sp.stdout.String(), `"msg":"request"`) {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	scanner := bufio.NewScanner(strings.NewReader(sp.stdout.String()))
	found := false
	for scanner.Scan() {
		var entry map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		if entry["msg"] == "request" {
			found = true
			for _, key := range []string{"method", "path", "status", "duration_ms", "request_id"} {
				if _, ok := entry[key]; !ok {
					t.Errorf("request log missing field %q", key)
				}
			}
		}
	}
	if !found {
		t.Errorf("no structured request log found\noutput:\n%s", sp.stdout.String())
	}
}
