package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/dl-alexandre/ecmdocs/internal/types"
	"github.com/dl-alexandre/ecmdocs/internal/utils"
	"gopkg.in/yaml.v3"
)

func newTestWriter(format types.OutputFormat) (*OutputWriter, *bytes.Buffer) {
	var buf bytes.Buffer
	w := NewOutputWriter(format, true, false)
	w.out = &buf
	w.errOut = &bytes.Buffer{}
	return w, &buf
}

func sampleRows() types.RowList {
	size := int64(5)
	return types.RowList{
		{DocumentID: "f1", DisplayName: "Projects", MimeType: types.MimeTypeDirectory},
		{DocumentID: "d1", DisplayName: "notes.txt", MimeType: "text/plain", Size: &size},
	}
}

func TestWriteSuccess_JSON(t *testing.T) {
	w, buf := newTestWriter(types.OutputFormatJSON)
	if err := w.WriteSuccess("ls", sampleRows()); err != nil {
		t.Fatalf("WriteSuccess() error = %v", err)
	}

	var got struct {
		SchemaVersion string                   `json:"schemaVersion"`
		Command       string                   `json:"command"`
		TraceID       string                   `json:"traceId"`
		Data          []map[string]interface{} `json:"data"`
		Errors        []types.CLIError         `json:"errors"`
	}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if got.SchemaVersion != utils.SchemaVersion {
		t.Errorf("schemaVersion = %q, want %q", got.SchemaVersion, utils.SchemaVersion)
	}
	if got.Command != "ls" {
		t.Errorf("command = %q, want ls", got.Command)
	}
	if got.TraceID == "" {
		t.Error("traceId is empty")
	}
	if len(got.Data) != 2 {
		t.Errorf("len(data) = %d, want 2", len(got.Data))
	}
	if len(got.Errors) != 0 {
		t.Errorf("errors = %v, want none", got.Errors)
	}
}

func TestWriteSuccess_YAML(t *testing.T) {
	w, buf := newTestWriter(types.OutputFormatYAML)
	if err := w.WriteSuccess("version", map[string]string{"version": "dev"}); err != nil {
		t.Fatalf("WriteSuccess() error = %v", err)
	}

	var got map[string]interface{}
	if err := yaml.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not YAML: %v\n%s", err, buf.String())
	}
	if got["schemaVersion"] != utils.SchemaVersion {
		t.Errorf("schemaVersion = %v, want %q", got["schemaVersion"], utils.SchemaVersion)
	}
	if got["command"] != "version" {
		t.Errorf("command = %v, want version", got["command"])
	}
}

func TestWriteSuccess_Table(t *testing.T) {
	tests := []struct {
		name     string
		data     interface{}
		contains []string
	}{
		{
			name:     "renderer",
			data:     sampleRows(),
			contains: []string{"Projects", "notes.txt", "folder"},
		},
		{
			name:     "empty renderer",
			data:     types.RowList{},
			contains: []string{"No entries"},
		},
		{
			name:     "accounts",
			data:     AccountList{{Name: "alice", Kind: types.AccountKindDirect, ServerURL: "https://ecm.example.com"}},
			contains: []string{"alice", "direct", "https://ecm.example.com"},
		},
		{
			name:     "no table form falls back to JSON",
			data:     map[string]string{"key": "value"},
			contains: []string{`"key": "value"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			w := NewOutputWriter(types.OutputFormatTable, false, false)
			w.out = &buf
			if err := w.WriteSuccess("test", tt.data); err != nil {
				t.Fatalf("WriteSuccess() error = %v", err)
			}
			for _, want := range tt.contains {
				if !strings.Contains(buf.String(), want) {
					t.Errorf("output missing %q:\n%s", want, buf.String())
				}
			}
		})
	}
}

func TestWriteErr_CarriesExitCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
		wantExit int
	}{
		{
			name:     "session unavailable",
			err:      utils.SessionUnavailable("alice"),
			wantCode: utils.ErrCodeSessionUnavailable,
			wantExit: utils.ExitSessionUnavailable,
		},
		{
			name:     "not found",
			err:      utils.NotFound("d1", "no content"),
			wantCode: utils.ErrCodeNotFound,
			wantExit: utils.ExitNotFound,
		},
		{
			name:     "plain error",
			err:      errors.New("boom"),
			wantCode: utils.ErrCodeUnknown,
			wantExit: utils.ExitUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, buf := newTestWriter(types.OutputFormatJSON)
			err := w.WriteErr("ls", tt.err)

			var cmdErr *commandError
			if !errors.As(err, &cmdErr) {
				t.Fatalf("WriteErr() = %v, want *commandError", err)
			}
			if cmdErr.cliErr.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", cmdErr.cliErr.Code, tt.wantCode)
			}
			if got := utils.GetExitCode(cmdErr.cliErr.Code); got != tt.wantExit {
				t.Errorf("exit code = %d, want %d", got, tt.wantExit)
			}

			var out types.CLIOutput
			if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
				t.Fatalf("output is not JSON: %v", err)
			}
			if len(out.Errors) != 1 || out.Errors[0].Code != tt.wantCode {
				t.Errorf("errors = %+v, want one %s", out.Errors, tt.wantCode)
			}
		})
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := formatSize(tt.in); got != tt.want {
				t.Errorf("formatSize(%d) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate() = %q, want short", got)
	}
	if got := truncate("0123456789abcdef", 10); got != "0123456..." {
		t.Errorf("truncate() = %q, want 0123456...", got)
	}
}
