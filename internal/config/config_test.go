package config

import (
	"slices"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	// Not parallel: manipulates process environment.
	clearGatewayEnv(t)

	s, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if s.UpstreamBaseURL != "https://api.openai.com" {
		t.Errorf("UpstreamBaseURL = %q", s.UpstreamBaseURL)
	}
	if s.InjectionThreshold != 0.7 {
		t.Errorf("InjectionThreshold = %v, want 0.7", s.InjectionThreshold)
	}
	if s.PIIAction != PIIActionRedact {
		t.Errorf("PIIAction = %q, want redact", s.PIIAction)
	}
	if s.ResponsePIIAction != PIIActionLogOnly {
		t.Errorf("ResponsePIIAction = %q, want log_only", s.ResponsePIIAction)
	}
	if s.RateLimitRPM != 60 {
		t.Errorf("RateLimitRPM = %d, want 60", s.RateLimitRPM)
	}
	if s.ClientStoreBackend != BackendJSON {
		t.Errorf("ClientStoreBackend = %q, want json", s.ClientStoreBackend)
	}
	if s.Addr != ":8080" {
		t.Errorf("Addr = %q, want :8080", s.Addr)
	}
	if s.Serverless() {
		t.Error("Serverless() = true without AWS_LAMBDA_FUNCTION_NAME")
	}
	if len(s.GatewayAPIKeys) != 0 {
		t.Errorf("GatewayAPIKeys = %v, want empty", s.GatewayAPIKeys)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	clearGatewayEnv(t)
	t.Setenv("GATEWAY_API_KEYS", "key-a, key-b,,key-c")
	t.Setenv("INJECTION_THRESHOLD", "0.5")
	t.Setenv("PII_ACTION", "block")
	t.Setenv("CLIENT_STORE_BACKEND", "dynamodb")
	t.Setenv("DYNAMODB_TABLE_NAME", "clients-prod")
	t.Setenv("AWS_REGION", "eu-west-1")
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "bastion-fn")

	s, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if !slices.Equal(s.GatewayAPIKeys, []string{"key-a", "key-b", "key-c"}) {
		t.Errorf("GatewayAPIKeys = %v", s.GatewayAPIKeys)
	}
	if s.InjectionThreshold != 0.5 {
		t.Errorf("InjectionThreshold = %v", s.InjectionThreshold)
	}
	if s.PIIAction != PIIActionBlock {
		t.Errorf("PIIAction = %q", s.PIIAction)
	}
	if s.ClientStoreBackend != BackendDynamoDB {
		t.Errorf("ClientStoreBackend = %q", s.ClientStoreBackend)
	}
	if s.DynamoDBTableName != "clients-prod" {
		t.Errorf("DynamoDBTableName = %q", s.DynamoDBTableName)
	}
	if s.AWSRegion != "eu-west-1" {
		t.Errorf("AWSRegion = %q", s.AWSRegion)
	}
	if !s.Serverless() {
		t.Error("Serverless() = false with AWS_LAMBDA_FUNCTION_NAME set")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "bad pii action", key: "PII_ACTION", val: "reject"},
		{name: "bad response pii action", key: "RESPONSE_PII_ACTION", val: "drop"},
		{name: "bad backend", key: "CLIENT_STORE_BACKEND", val: "redis"},
		{name: "bad threshold", key: "INJECTION_THRESHOLD", val: "high"},
		{name: "bad rpm", key: "RATE_LIMIT_RPM", val: "-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearGatewayEnv(t)
			t.Setenv(tt.key, tt.val)
			if _, err := Load(); err == nil {
				t.Errorf("Load with %s=%s succeeded, want error", tt.key, tt.val)
			}
		})
	}
}

// clearGatewayEnv unsets every variable Load consults so host environment
// does not leak into tests.
func clearGatewayEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"GATEWAY_API_KEYS", "UPSTREAM_BASE_URL", "UPSTREAM_API_KEY",
		"INJECTION_THRESHOLD", "PII_ACTION", "RESPONSE_PII_ACTION",
		"RATE_LIMIT_RPM", "CLIENT_STORE_BACKEND", "CLIENT_CONFIG_PATH",
		"DYNAMODB_TABLE_NAME", "AWS_REGION", "LOG_LEVEL", "AUDIT_LOG_FILE",
		"BASTION_ADDR", "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_TRACE_SAMPLE_RATE",
		"AWS_LAMBDA_FUNCTION_NAME",
	} {
		t.Setenv(key, "")
	}
}
