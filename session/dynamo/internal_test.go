package dynamo

import (
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/davparache/auditory-updated/session"
)

var _ session.Store = (*Store)(nil)

// --- TTL Handling ---

func TestIsExpired_NoAttribute(t *testing.T) {
	item := map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberS{Value: "DAY1"},
	}
	if isExpired(item) {
		t.Error("expected item without expires to be active")
	}
}

func TestIsExpired_FutureTTL(t *testing.T) {
	future := strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10)
	item := map[string]types.AttributeValue{
		"expires": &types.AttributeValueMemberN{Value: future},
	}
	if isExpired(item) {
		t.Error("expected item with future expires to be active")
	}
}

func TestIsExpired_PastTTL(t *testing.T) {
	past := strconv.FormatInt(time.Now().Add(-time.Hour).Unix(), 10)
	item := map[string]types.AttributeValue{
		"expires": &types.AttributeValueMemberN{Value: past},
	}
	if !isExpired(item) {
		t.Error("expected item with past expires to be expired")
	}
}

func TestIsExpired_MalformedAttribute(t *testing.T) {
	tests := []struct {
		name string
		attr types.AttributeValue
	}{
		{"wrong type", &types.AttributeValueMemberS{Value: "soon"}},
		{"not a number", &types.AttributeValueMemberN{Value: "not-a-number"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := map[string]types.AttributeValue{"expires": tt.attr}
			if isExpired(item) {
				t.Error("expected malformed expires to count as active")
			}
		})
	}
}

// --- Error Mapping ---

func TestMapErr(t *testing.T) {
	tests := []struct {
		code     string
		expected error
	}{
		{"AccessDeniedException", session.ErrPermissionDenied},
		{"UnrecognizedClientException", session.ErrPermissionDenied},
		{"ResourceNotFoundException", session.ErrUnavailable},
		{"ProvisionedThroughputExceededException", session.ErrUnavailable},
		{"ThrottlingException", session.ErrUnavailable},
		{"RequestLimitExceeded", session.ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			in := &smithy.GenericAPIError{Code: tt.code, Message: "nope"}
			got := mapErr(in)
			if !errors.Is(got, tt.expected) {
				t.Errorf("mapErr(%s) = %v, want %v", tt.code, got, tt.expected)
			}
		})
	}
}

func TestMapErr_PassesThroughUnknown(t *testing.T) {
	in := errors.New("socket closed")
	if got := mapErr(in); got != in {
		t.Errorf("expected unknown error unchanged, got %v", got)
	}

	api := &smithy.GenericAPIError{Code: "ValidationException", Message: "bad input"}
	var apiErr error = api
	if got := mapErr(apiErr); got != apiErr {
		t.Errorf("expected unmapped API error unchanged, got %v", got)
	}
}

// --- Config ---

func TestConfig_ValidateDefaults(t *testing.T) {
	var cfg Config
	cfg.validate()

	if cfg.Table != "auditory_sessions" {
		t.Errorf("expected default table, got %q", cfg.Table)
	}
	if cfg.PollInterval != 2500*time.Millisecond {
		t.Errorf("expected default poll interval, got %v", cfg.PollInterval)
	}
	if cfg.Logger == nil {
		t.Error("expected default logger")
	}
}

func TestConfig_ValidateKeepsValues(t *testing.T) {
	cfg := Config{Table: "custom", PollInterval: time.Second}
	cfg.validate()

	if cfg.Table != "custom" {
		t.Errorf("expected custom table to survive, got %q", cfg.Table)
	}
	if cfg.PollInterval != time.Second {
		t.Errorf("expected custom poll interval to survive, got %v", cfg.PollInterval)
	}
}

// --- Change Detection ---

func TestFingerprint_DetectsEachField(t *testing.T) {
	base := fingerprint{updated: "t1", adminPin: "1234", json: "{}"}

	tests := []struct {
		name  string
		other fingerprint
		same  bool
	}{
		{"identical", fingerprint{"t1", "1234", "{}"}, true},
		{"updated moved", fingerprint{"t2", "1234", "{}"}, false},
		{"pin changed", fingerprint{"t1", "9999", "{}"}, false},
		{"payload changed", fingerprint{"t1", "1234", `{"X":{}}`}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := base == tt.other; got != tt.same {
				t.Errorf("expected same=%v, got %v", tt.same, got)
			}
		})
	}
}
