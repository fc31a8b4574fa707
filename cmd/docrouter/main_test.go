package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/docrouter/core"
)

const testInvoice = `{
  "type": "invoice",
  "timestamp": "2024-01-15T10:00:00Z",
  "source": "billing",
  "data": {"invoice_number": "INV-001", "amount": 1500.5, "items": []}
}`

const testEmail = "From: Jane Doe <jane@example.com>\r\n" +
	"Subject: Complaint about order\r\n" +
	"Date: Mon, 15 Jan 2024 10:00:00 +0000\r\n" +
	"\r\n" +
	"I am unhappy with the damaged delivery. Please fix this urgently.\r\n"

type classifyOutput struct {
	Classification struct {
		Format string `json:"format"`
		Intent string `json:"intent"`
	} `json:"classification"`
	ProcessingResult map[string]interface{} `json:"processing_result"`
}

func runCommand(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("DOCROUTER_DEV_MODE", "false")
	t.Setenv("DOCROUTER_LOG_LEVEL", "error")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestClassifyCommand(t *testing.T) {
	tests := []struct {
		name       string
		args       func(t *testing.T) []string
		stdin      string
		wantFormat string
		wantIntent string
	}{
		{
			name: "json file",
			args: func(t *testing.T) []string {
				return []string{"classify", writeFile(t, "invoice.json", testInvoice)}
			},
			wantFormat: "json",
			wantIntent: "invoice",
		},
		{
			name: "email from stdin",
			args: func(t *testing.T) []string {
				return []string{"classify", "-"}
			},
			stdin:      testEmail,
			wantFormat: "email",
			wantIntent: "complaint",
		},
		{
			name: "sqlite memory",
			args: func(t *testing.T) []string {
				return []string{
					"classify",
					"--memory", "sqlite",
					"--sqlite-path", filepath.Join(t.TempDir(), "memory.db"),
					"--thread-id", "thread-1",
					writeFile(t, "invoice.json", testInvoice),
				}
			},
			wantFormat: "json",
			wantIntent: "invoice",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runCommand(t, tt.stdin, tt.args(t)...)
			require.NoError(t, err, out)

			var got classifyOutput
			require.NoError(t, json.Unmarshal([]byte(out), &got), out)
			assert.Equal(t, tt.wantFormat, got.Classification.Format)
			assert.Equal(t, tt.wantIntent, got.Classification.Intent)
			assert.NotEmpty(t, got.ProcessingResult)
		})
	}
}

func TestClassifyCommand_Metadata(t *testing.T) {
	path := writeFile(t, "doc.json", `{"type": "rfq", "data": {}}`)

	out, err := runCommand(t, "", "classify", "--compact", "--metadata", `{"intent": "rfq", "source": "portal"}`, path)
	require.NoError(t, err, out)
	assert.Equal(t, 1, strings.Count(strings.TrimSpace(out), "\n")+1, "compact output is one line")

	var got classifyOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "rfq", got.Classification.Intent)
}

func TestClassifyCommand_Errors(t *testing.T) {
	path := writeFile(t, "invoice.json", testInvoice)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"missing file", []string{"classify", filepath.Join(t.TempDir(), "nope.json")}, "no such file"},
		{"bad metadata", []string{"classify", "--metadata", "[1]", path}, "--metadata must be a JSON object"},
		{"unknown memory provider", []string{"classify", "--memory", "bogus", path}, "unknown memory provider"},
		{"sqlite without path", []string{"classify", "--memory", "sqlite", "--sqlite-path", "", path}, "sqlite path is required"},
		{"no argument", []string{"classify"}, "accepts 1 arg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCommand(t, "", tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestClassifyCommand_UnsupportedDocument(t *testing.T) {
	path := writeFile(t, "notes.txt", "just some plain words")

	_, err := runCommand(t, "", "classify", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unsupported format")
}

func TestVersionCommand(t *testing.T) {
	out, err := runCommand(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "docrouter development")
	assert.Contains(t, out, "api:    v1")
	assert.Contains(t, out, "commit: unknown")
}

func TestServe_GracefulShutdown(t *testing.T) {
	t.Setenv("DOCROUTER_DEV_MODE", "false")
	cfg, err := core.NewConfig(core.WithName("docrouter-test"), core.WithLogLevel("error"))
	require.NoError(t, err)
	logger, err := core.NewProductionLogger(cfg.Logging, cfg.Development, cfg.Name)
	require.NoError(t, err)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cmd := &cobra.Command{}
	cmd.SetContext(ctx)

	done := make(chan error, 1)
	go func() { done <- serve(ctx, cmd, cfg, logger, l) }()

	base := fmt.Sprintf("http://%s", l.Addr())
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	resp, err := http.Post(base+"/process", "application/json",
		strings.NewReader(fmt.Sprintf(`{"content": %q}`, testInvoice)))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}
}
