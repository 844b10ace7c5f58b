// Package config loads the gateway settings snapshot from environment
// variables. A local .env file, when present, is folded into the process
// environment before parsing.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/subosito/gotenv"
)

// PII action modes.
const (
	PIIActionRedact  = "redact"
	PIIActionBlock   = "block"
	PIIActionLogOnly = "log_only"
)

// Client store backends.
const (
	BackendJSON     = "json"
	BackendDynamoDB = "dynamodb"
)

// Settings is an immutable snapshot of the gateway's runtime configuration.
// It is loaded once at startup and passed down; tests construct their own.
type Settings struct {
	// Gateway authentication: comma-separated legacy API keys accepted when
	// the client directory has no match.
	GatewayAPIKeys []string

	// Upstream OpenAI-compatible provider.
	UpstreamBaseURL string
	UpstreamAPIKey  string

	// Security pipeline.
	InjectionThreshold float64 // risk score at which to block
	PIIAction          string  // redact | block | log_only
	ResponsePIIAction  string  // redact | block | log_only
	RateLimitRPM       int     // legacy-fallback clients only

	// Client directory.
	ClientStoreBackend string // json | dynamodb
	ClientConfigPath   string
	DynamoDBTableName  string
	AWSRegion          string

	// Logging.
	LogLevel     string
	AuditLogFile string // empty = stdout only

	// HTTP server.
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Tracing. Empty endpoint disables the exporter.
	OTLPEndpoint    string
	TraceSampleRate float64

	// Set when running under AWS Lambda; SSE connections cannot be held
	// open there, so streaming requests are refused.
	LambdaFunctionName string
}

// Serverless reports whether the process runs in an environment that cannot
// hold SSE connections open.
func (s *Settings) Serverless() bool { return s.LambdaFunctionName != "" }

// Load reads settings from the environment, applying defaults.
// A .env file in the working directory is merged first (existing environment
// variables win).
func Load() (*Settings, error) {
	gotenv.Load() //nolint:errcheck // absent .env is the normal case

	s := &Settings{
		GatewayAPIKeys:     splitKeys(getEnv("GATEWAY_API_KEYS", "")),
		UpstreamBaseURL:    getEnv("UPSTREAM_BASE_URL", "https://api.openai.com"),
		UpstreamAPIKey:     getEnv("UPSTREAM_API_KEY", ""),
		PIIAction:          strings.ToLower(getEnv("PII_ACTION", PIIActionRedact)),
		ResponsePIIAction:  strings.ToLower(getEnv("RESPONSE_PII_ACTION", PIIActionLogOnly)),
		ClientStoreBackend: strings.ToLower(getEnv("CLIENT_STORE_BACKEND", BackendJSON)),
		ClientConfigPath:   getEnv("CLIENT_CONFIG_PATH", "clients.json"),
		DynamoDBTableName:  getEnv("DYNAMODB_TABLE_NAME", "llm-gateway-clients"),
		AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
		LogLevel:           getEnv("LOG_LEVEL", "INFO"),
		AuditLogFile:       getEnv("AUDIT_LOG_FILE", ""),
		Addr:               getEnv("BASTION_ADDR", ":8080"),
		ReadTimeout:        30 * time.Second,
		WriteTimeout:       120 * time.Second,
		OTLPEndpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		LambdaFunctionName: os.Getenv("AWS_LAMBDA_FUNCTION_NAME"),
	}

	var err error
	if s.InjectionThreshold, err = floatEnv("INJECTION_THRESHOLD", 0.7); err != nil {
		return nil, err
	}
	if s.RateLimitRPM, err = intEnv("RATE_LIMIT_RPM", 60); err != nil {
		return nil, err
	}
	if s.TraceSampleRate, err = floatEnv("OTEL_TRACE_SAMPLE_RATE", 1.0); err != nil {
		return nil, err
	}

	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) validate() error {
	if !validAction(s.PIIAction) {
		return fmt.Errorf("config: PII_ACTION %q must be one of redact, block, log_only", s.PIIAction)
	}
	if !validAction(s.ResponsePIIAction) {
		return fmt.Errorf("config: RESPONSE_PII_ACTION %q must be one of redact, block, log_only", s.ResponsePIIAction)
	}
	switch s.ClientStoreBackend {
	case BackendJSON, BackendDynamoDB:
	default:
		return fmt.Errorf("config: CLIENT_STORE_BACKEND %q must be json or dynamodb", s.ClientStoreBackend)
	}
	if s.RateLimitRPM <= 0 {
		return fmt.Errorf("config: RATE_LIMIT_RPM must be positive, got %d", s.RateLimitRPM)
	}
	return nil
}

func validAction(a string) bool {
	switch a {
	case PIIActionRedact, PIIActionBlock, PIIActionLogOnly:
		return true
	}
	return false
}

// splitKeys parses a comma-separated key list, dropping empty entries.
func splitKeys(csv string) []string {
	var keys []string
	for k := range strings.SplitSeq(csv, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func floatEnv(key string, def float64) (float64, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("config: parse %s: %w", key, err)
	}
	return f, nil
}

func intEnv(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: parse %s: %w", key, err)
	}
	return n, nil
}
