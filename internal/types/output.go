package types

// OutputFormat selects how command results are printed
type OutputFormat string

const (
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatTable OutputFormat = "table"
	OutputFormatYAML  OutputFormat = "yaml"
)

// CLIOutput is the envelope written for every command
type CLIOutput struct {
	SchemaVersion string       `json:"schemaVersion" yaml:"schemaVersion"`
	TraceID       string       `json:"traceId" yaml:"traceId"`
	Command       string       `json:"command" yaml:"command"`
	Data          interface{}  `json:"data" yaml:"data"`
	Warnings      []CLIWarning `json:"warnings" yaml:"warnings"`
	Errors        []CLIError   `json:"errors" yaml:"errors"`
}

// CLIError is the machine-readable error shape
type CLIError struct {
	Code       string                 `json:"code" yaml:"code"`
	Message    string                 `json:"message" yaml:"message"`
	HTTPStatus int                    `json:"httpStatus,omitempty" yaml:"httpStatus,omitempty"`
	Retryable  bool                   `json:"retryable" yaml:"retryable"`
	Context    map[string]interface{} `json:"context,omitempty" yaml:"context,omitempty"`
}

type CLIWarning struct {
	Code     string `json:"code" yaml:"code"`
	Message  string `json:"message" yaml:"message"`
	Severity string `json:"severity" yaml:"severity"`
}

// GlobalFlags holds the persistent command line flags
type GlobalFlags struct {
	Account      string
	OutputFormat OutputFormat
	Quiet        bool
	Verbose      bool
	Debug        bool
	Config       string
	LogFile      string
	MetricsFile  string
	JSON         bool
}

type TableRenderer interface {
	Headers() []string
	Rows() [][]string
	EmptyMessage() string
}

type TableRenderable interface {
	AsTableRenderer() TableRenderer
}
