//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloo-solutions/autoreply/internal/storage"
	"github.com/cloo-solutions/autoreply/internal/testutil"
)

const (
	e2eAPIKey      = "e2e-secret-key"
	seedBucket     = "e2e-policies"
	seedKey        = "seed/policies.yaml"
	embeddingDims  = 1536
	cannedReplyFmt = "Thank you for contacting us. %s"
)

const seedYAML = `policies:
  - id: refund_policy
    title: Refund Policy
    category: billing
    keywords: [refund, money back]
    content: Customers may request a refund within 30 days of purchase.
  - id: gizmo_warranty
    title: Gizmo Warranty
    category: support
    keywords: [gizmo, warranty, repair]
    content: Every gizmo carries a two year warranty covering repair or replacement.
`

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T          *testing.T
	Ctx        context.Context
	PostgresC  *testutil.PostgresContainer
	RedisC     *testutil.RedisContainer
	RustFSC    *testutil.RustFSContainer
	OpenAI     *fakeOpenAI
	BinaryDir  string
	ServerURL  string
	server     *exec.Cmd
	serverLog  *bytes.Buffer
	HTTPClient *http.Client
}

// SetupE2EEnv starts the containers, the fake OpenAI endpoint and a built
// autoreplyd process.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	env := &E2ETestEnv{
		T:          t,
		Ctx:        ctx,
		PostgresC:  testutil.NewPostgresContainer(ctx, t),
		RedisC:     testutil.NewRedisContainer(ctx, t),
		RustFSC:    testutil.NewRustFSContainer(ctx, t),
		OpenAI:     newFakeOpenAI(),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}

	env.uploadSeed()
	env.BuildBinaries()
	env.startServer()
	return env
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.server != nil && e.server.Process != nil {
		_ = e.server.Process.Signal(os.Interrupt)
		done := make(chan struct{})
		go func() {
			_ = e.server.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			_ = e.server.Process.Kill()
		}
	}
	if e.OpenAI != nil {
		e.OpenAI.Close()
	}
	if e.RustFSC != nil {
		e.RustFSC.Terminate(e.Ctx)
	}
	if e.RedisC != nil {
		e.RedisC.Terminate(e.Ctx)
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
	if e.BinaryDir != "" {
		os.RemoveAll(e.BinaryDir)
	}
	if e.T.Failed() && e.serverLog != nil {
		e.T.Logf("autoreplyd output:\n%s", e.serverLog.String())
	}
}

func (e *E2ETestEnv) uploadSeed() {
	s3Client, err := storage.NewS3Client(e.Ctx, storage.S3ClientConfig{
		Endpoint:        e.RustFSC.URL(),
		Region:          "us-east-1",
		AccessKeyID:     "rustfsadmin",
		SecretAccessKey: "rustfsadmin",
		Bucket:          seedBucket,
		UsePathStyle:    true,
	})
	if err != nil {
		e.T.Fatalf("failed to create S3 client: %v", err)
	}
	if err := s3Client.EnsureBucket(e.Ctx); err != nil {
		e.T.Fatalf("failed to create bucket: %v", err)
	}
	if err := s3Client.PutObject(e.Ctx, seedKey, "application/yaml", []byte(seedYAML)); err != nil {
		e.T.Fatalf("failed to upload seed: %v", err)
	}
}

// BuildBinaries builds the autoreply and autoreplyd binaries
func (e *E2ETestEnv) BuildBinaries() {
	tmpDir, err := os.MkdirTemp("", "autoreply-e2e-*")
	if err != nil {
		e.T.Fatalf("failed to create temp dir: %v", err)
	}
	e.BinaryDir = tmpDir

	for _, name := range []string{"autoreplyd", "autoreply"} {
		cmd := exec.Command("go", "build", "-o", filepath.Join(tmpDir, name), "./cmd/"+name)
		cmd.Dir = "../.."
		if out, err := cmd.CombinedOutput(); err != nil {
			e.T.Fatalf("failed to build %s: %v\n%s", name, err, out)
		}
	}
}

func (e *E2ETestEnv) startServer() {
	port, err := getFreePort()
	if err != nil {
		e.T.Fatalf("failed to get free port: %v", err)
	}
	migrations, err := filepath.Abs("../../migrations")
	if err != nil {
		e.T.Fatalf("failed to resolve migrations: %v", err)
	}

	cmd := exec.Command(filepath.Join(e.BinaryDir, "autoreplyd"), "serve", "--port", fmt.Sprint(port))
	cmd.Dir = e.BinaryDir
	cmd.Env = append(os.Environ(),
		"AUTOREPLY_API_KEY="+e2eAPIKey,
		"AUTOREPLY_OPENAI_API_KEY=sk-e2e",
		"AUTOREPLY_OPENAI_BASE_URL="+e.OpenAI.URL()+"/v1",
		"AUTOREPLY_DATABASE_URL="+e.PostgresC.ConnectionString(),
		"AUTOREPLY_MIGRATIONS_PATH="+migrations,
		"AUTOREPLY_REDIS_URL="+e.RedisC.URL(),
		"AUTOREPLY_S3_ENDPOINT="+e.RustFSC.URL(),
		"AUTOREPLY_S3_ACCESS_KEY_ID=rustfsadmin",
		"AUTOREPLY_S3_SECRET_ACCESS_KEY=rustfsadmin",
		"AUTOREPLY_S3_BUCKET="+seedBucket,
		"AUTOREPLY_POLICY_SEED=s3://"+seedBucket+"/"+seedKey,
		"AUTOREPLY_GMAIL_CREDENTIALS_PATH="+filepath.Join(e.BinaryDir, "missing-credentials.json"),
	)
	e.serverLog = &bytes.Buffer{}
	cmd.Stdout = e.serverLog
	cmd.Stderr = e.serverLog
	if err := cmd.Start(); err != nil {
		e.T.Fatalf("failed to start autoreplyd: %v", err)
	}
	e.server = cmd
	e.ServerURL = fmt.Sprintf("http://localhost:%d", port)
	e.waitForServer(30 * time.Second)
}

// RunCLI runs the autoreply CLI against the test server.
func (e *E2ETestEnv) RunCLI(args ...string) (string, error) {
	return e.RunCLIWithInput("", args...)
}

// RunCLIWithInput runs the autoreply CLI with stdin input
func (e *E2ETestEnv) RunCLIWithInput(input string, args ...string) (string, error) {
	cmd := exec.Command(filepath.Join(e.BinaryDir, "autoreply"), args...)
	cmd.Dir = e.BinaryDir
	cmd.Stdin = strings.NewReader(input)
	cmd.Env = append(os.Environ(),
		"AUTOREPLY_API_KEY="+e2eAPIKey,
		"AUTOREPLY_API_URL="+e.ServerURL,
		"XDG_CONFIG_HOME="+e.BinaryDir,
		"HOME="+e.BinaryDir,
	)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// Do performs a request and decodes a JSON response into out when non-nil.
func (e *E2ETestEnv) Do(method, path string, body, out interface{}, authToken string) (int, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, e.ServerURL+path, reqBody)
	if err != nil {
		return 0, err
	}
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func (e *E2ETestEnv) waitForServer(timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(e.ServerURL + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	e.T.Fatalf("server did not start within %v\n%s", timeout, e.serverLog.String())
}

func getFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// fakeOpenAI serves the embeddings and chat completions endpoints. Embeddings
// are hashed bags of words so that texts sharing words are close.
type fakeOpenAI struct {
	srv *httptest.Server

	mu    sync.Mutex
	chats int
}

func newFakeOpenAI() *fakeOpenAI {
	f := &fakeOpenAI{}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	return f
}

func (f *fakeOpenAI) URL() string {
	return f.srv.URL
}

func (f *fakeOpenAI) Close() {
	f.srv.Close()
}

func (f *fakeOpenAI) chatCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chats
}

func (f *fakeOpenAI) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/embeddings"):
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data := make([]map[string]interface{}, len(req.Input))
		for i, text := range req.Input {
			data[i] = map[string]interface{}{
				"object":    "embedding",
				"index":     i,
				"embedding": bagOfWords(text),
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"model":  req.Model,
			"data":   data,
		})
	case strings.HasSuffix(r.URL.Path, "/chat/completions"):
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.chats++
		f.mu.Unlock()

		reply := fmt.Sprintf(cannedReplyFmt, "We have reviewed your message.")
		if n := len(req.Messages); n > 0 && strings.Contains(req.Messages[n-1].Content, "Gizmo Warranty") {
			reply = fmt.Sprintf(cannedReplyFmt, "Your gizmo is covered for two years.")
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":      "chatcmpl-e2e",
			"object":  "chat.completion",
			"created": time.Now().Unix(),
			"model":   req.Model,
			"choices": []map[string]interface{}{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": reply},
				"finish_reason": "stop",
			}},
		})
	default:
		http.NotFound(w, r)
	}
}

func bagOfWords(text string) []float32 {
	vec := make([]float32, embeddingDims)
	for _, word := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		vec[h.Sum32()%embeddingDims]++
	}
	vec[0] += 0.01
	return vec
}
