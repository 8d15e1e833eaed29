//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

// TestConfig holds configuration for integration tests
type TestConfig struct {
	KclientPath string
	NATSURL     string
	Verbose     bool
}

// LoadTestConfig loads configuration from environment variables
func LoadTestConfig() *TestConfig {
	return &TestConfig{
		KclientPath: getKclientPath(),
		NATSURL:     os.Getenv("NATS_URL"),
		Verbose:     os.Getenv("KCLIENT_VERBOSE") == "true",
	}
}

// getKclientPath determines the path to the kclient binary
func getKclientPath() string {
	if path := os.Getenv("KCLIENT_BINARY_PATH"); path != "" {
		return path
	}

	// Try common locations
	candidates := []string{
		"../../kclient",
		"./kclient",
		"../kclient",
	}

	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	return "kclient" // Fallback to PATH
}

// SkipIfNoBinary skips test if the kclient binary is missing
func (config *TestConfig) SkipIfNoBinary(t *testing.T) {
	t.Helper()

	if _, err := exec.LookPath(config.KclientPath); err != nil {
		t.Skipf("kclient binary not found at %s, skipping CLI test", config.KclientPath)
	}
}

// SkipIfNoNATS skips test if no NATS server is configured
func (config *TestConfig) SkipIfNoNATS(t *testing.T) {
	t.Helper()

	if config.NATSURL == "" {
		t.Skip("NATS_URL not set, skipping NATS cache test")
	}
}

// CommandRunner provides utilities for running kclient commands
type CommandRunner struct {
	config *TestConfig
	t      *testing.T
	env    []string
}

// NewCommandRunner creates a new command runner. HOME points at a temporary
// directory so the user's config file is never read or written.
func NewCommandRunner(config *TestConfig, t *testing.T) *CommandRunner {
	return &CommandRunner{
		config: config,
		t:      t,
		env:    append(os.Environ(), "HOME="+t.TempDir()),
	}
}

// Run executes a kclient command and returns output
func (runner *CommandRunner) Run(args ...string) (stdout, stderr string, err error) {
	cmd := exec.Command(runner.config.KclientPath, args...)
	cmd.Env = runner.env

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	if runner.config.Verbose {
		runner.t.Logf("Running: %s %s", runner.config.KclientPath, strings.Join(args, " "))
	}

	err = cmd.Run()
	stdout = stdoutBuf.String()
	stderr = stderrBuf.String()

	if runner.config.Verbose && err != nil {
		runner.t.Logf("Command failed: %v\nStdout: %s\nStderr: %s", err, stdout, stderr)
	}

	return stdout, stderr, err
}

// AssertJSONOutput validates that output is valid JSON
func AssertJSONOutput(t *testing.T, output string) any {
	t.Helper()

	var decoded any
	if err := json.Unmarshal([]byte(output), &decoded); err != nil {
		t.Fatalf("Output is not valid JSON: %v\nOutput: %s", err, output)
	}

	return decoded
}

// FakeAPI is an in-memory stand-in for the REST API. It serves every
// resource under /v1, requires the auth headers, and keeps records per
// resource.
type FakeAPI struct {
	*httptest.Server

	Token  string
	Domain string

	mu      sync.Mutex
	nextID  int
	records map[string]map[string]map[string]any
	hits    map[string]*atomic.Int64
}

// NewFakeAPI starts a fake API that accepts token and domain.
func NewFakeAPI(t *testing.T, token, domain string) *FakeAPI {
	t.Helper()

	api := &FakeAPI{
		Token:   token,
		Domain:  domain,
		records: map[string]map[string]map[string]any{},
		hits:    map[string]*atomic.Int64{},
	}

	api.Server = httptest.NewServer(http.HandlerFunc(api.serve))
	t.Cleanup(api.Close)

	return api
}

// URL returns the API root.
func (api *FakeAPI) URL() string {
	return api.Server.URL + "/v1"
}

// Hits returns how many requests reached "METHOD /path".
func (api *FakeAPI) Hits(key string) int64 {
	api.mu.Lock()
	defer api.mu.Unlock()

	counter, ok := api.hits[key]
	if !ok {
		return 0
	}

	return counter.Load()
}

func (api *FakeAPI) count(key string) {
	api.mu.Lock()
	counter, ok := api.hits[key]
	if !ok {
		counter = &atomic.Int64{}
		api.hits[key] = counter
	}
	api.mu.Unlock()

	counter.Add(1)
}

func (api *FakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	api.count(r.Method + " " + r.URL.Path)

	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1"), "/")
	segments := strings.Split(path, "/")

	if segments[0] == "auth" {
		api.authenticate(w, r)

		return
	}

	if r.Header.Get("X-Auth-Token") != api.Token || r.Header.Get("X-Auth-Domain") != api.Domain {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "unauthorized"})

		return
	}

	resource := segments[0]

	switch {
	case len(segments) == 1 && r.Method == http.MethodGet:
		api.list(w, r, resource)
	case len(segments) == 1 && r.Method == http.MethodPost:
		api.store(w, r, resource)
	case len(segments) == 2 && segments[1] == "_bulk" && r.Method == http.MethodPost:
		api.bulk(w, r, resource)
	case len(segments) == 2 && r.Method == http.MethodGet:
		api.show(w, resource, segments[1])
	case len(segments) == 2 && (r.Method == http.MethodPut || r.Method == http.MethodPatch):
		api.update(w, r, resource, segments[1])
	case len(segments) == 2 && r.Method == http.MethodDelete:
		api.destroy(w, resource, segments[1])
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"code": 405, "message": "method not allowed"})
	}
}

func (api *FakeAPI) authenticate(w http.ResponseWriter, r *http.Request) {
	var credentials map[string]string
	_ = json.NewDecoder(r.Body).Decode(&credentials)

	if credentials["username"] != "admin" || credentials["password"] != "secret" {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "bad credentials"})

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"token": api.Token})
}

func (api *FakeAPI) list(w http.ResponseWriter, r *http.Request, resource string) {
	api.mu.Lock()
	defer api.mu.Unlock()

	query := r.URL.Query()
	if query.Get("fail") == "validation" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"message": "invalid filter", "errors": map[string]any{"fail": []string{"unknown"}}})

		return
	}

	if query.Get("fail") == "server" {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"code": 500, "message": "boom", "description": "fake failure"})

		return
	}

	ids := make([]int, 0, len(api.records[resource]))
	for id := range api.records[resource] {
		n, _ := strconv.Atoi(id)
		ids = append(ids, n)
	}

	sort.Ints(ids)

	out := []map[string]any{}

	for _, id := range ids {
		record := api.records[resource][strconv.Itoa(id)]
		if matches(record, query) {
			out = append(out, record)
		}
	}

	writeJSON(w, http.StatusOK, out)
}

func matches(record map[string]any, query map[string][]string) bool {
	for key, values := range query {
		if fmt.Sprint(record[key]) != values[0] {
			return false
		}
	}

	return true
}

func (api *FakeAPI) show(w http.ResponseWriter, resource, id string) {
	api.mu.Lock()
	defer api.mu.Unlock()

	record, ok := api.records[resource][id]
	if !ok {
		// The API also reports missing records in-body on a 200.
		writeJSON(w, http.StatusOK, map[string]any{"code": 404, "message": "record not found"})

		return
	}

	writeJSON(w, http.StatusOK, record)
}

func (api *FakeAPI) decode(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	var body map[string]any

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": err.Error()})

		return nil, false
	}

	return body, true
}

func (api *FakeAPI) insert(resource string, body map[string]any) map[string]any {
	api.nextID++

	id := strconv.Itoa(api.nextID)
	record := map[string]any{"id": id}

	for key, value := range body {
		record[key] = value
	}

	if api.records[resource] == nil {
		api.records[resource] = map[string]map[string]any{}
	}

	api.records[resource][id] = record

	return record
}

func (api *FakeAPI) store(w http.ResponseWriter, r *http.Request, resource string) {
	body, ok := api.decode(w, r)
	if !ok {
		return
	}

	if body["name"] == nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"message": "The name field is required", "errors": map[string]any{"name": []string{"required"}}})

		return
	}

	api.mu.Lock()
	defer api.mu.Unlock()

	writeJSON(w, http.StatusOK, api.insert(resource, body))
}

func (api *FakeAPI) bulk(w http.ResponseWriter, r *http.Request, resource string) {
	body, ok := api.decode(w, r)
	if !ok {
		return
	}

	items, _ := body["bulk"].([]any)

	api.mu.Lock()
	defer api.mu.Unlock()

	created := make([]map[string]any, 0, len(items))

	for _, item := range items {
		fields, _ := item.(map[string]any)
		created = append(created, api.insert(resource, fields))
	}

	writeJSON(w, http.StatusOK, created)
}

func (api *FakeAPI) update(w http.ResponseWriter, r *http.Request, resource, id string) {
	body, ok := api.decode(w, r)
	if !ok {
		return
	}

	api.mu.Lock()
	defer api.mu.Unlock()

	record, exists := api.records[resource][id]
	if !exists {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "record not found"})

		return
	}

	for key, value := range body {
		record[key] = value
	}

	record["id"] = id

	writeJSON(w, http.StatusOK, record)
}

func (api *FakeAPI) destroy(w http.ResponseWriter, resource, id string) {
	api.mu.Lock()
	defer api.mu.Unlock()

	if _, exists := api.records[resource][id]; !exists {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "record not found"})

		return
	}

	delete(api.records[resource], id)

	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
