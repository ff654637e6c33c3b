package edge

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestCommandEnvelope_Encode(t *testing.T) {
	env := CommandEnvelope{
		TraceID: "abc-123",
		Code:    "205",
		Payload: json.RawMessage(`{"relay":1}`),
	}

	data, err := env.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Encode() produced invalid JSON: %v", err)
	}
	if string(decoded["trace_id"]) != `"abc-123"` {
		t.Errorf("trace_id = %s", decoded["trace_id"])
	}
	if string(decoded["code"]) != `"205"` {
		t.Errorf("code = %s", decoded["code"])
	}
	if string(decoded["payload"]) != `{"relay":1}` {
		t.Errorf("payload = %s", decoded["payload"])
	}
}

func TestCommandEnvelope_EncodeOmitsEmptyPayload(t *testing.T) {
	env := CommandEnvelope{TraceID: "abc-123", Code: CodePing}

	data, err := env.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if strings.Contains(string(data), "payload") {
		t.Errorf("Encode() = %s, want payload omitted", data)
	}
}

func TestExtractTraceID(t *testing.T) {
	tests := []struct {
		name      string
		message   string
		wantID    string
		wantBody  string
		wantFound bool
	}{
		{
			name:      "top level trace_id",
			message:   `{"trace_id":"t1","status":"ok"}`,
			wantID:    "t1",
			wantBody:  `{"trace_id":"t1","status":"ok"}`,
			wantFound: true,
		},
		{
			name:      "top level traceId",
			message:   `{"traceId":"t2","status":"ok"}`,
			wantID:    "t2",
			wantBody:  `{"traceId":"t2","status":"ok"}`,
			wantFound: true,
		},
		{
			name:      "nested in payload",
			message:   `{"payload":{"trace_id":"t3","value":42}}`,
			wantID:    "t3",
			wantBody:  `{"trace_id":"t3","value":42}`,
			wantFound: true,
		},
		{
			name:      "nested traceId in payload",
			message:   `{"payload":{"traceId":"t4"}}`,
			wantID:    "t4",
			wantBody:  `{"traceId":"t4"}`,
			wantFound: true,
		},
		{
			name:      "top level wins over nested",
			message:   `{"trace_id":"outer","payload":{"trace_id":"inner"}}`,
			wantID:    "outer",
			wantBody:  `{"trace_id":"inner"}`,
			wantFound: true,
		},
		{
			name:      "no trace id",
			message:   `{"temperature":21.5}`,
			wantFound: false,
		},
		{
			name:      "empty trace id",
			message:   `{"trace_id":""}`,
			wantFound: false,
		},
		{
			name:      "non-string trace id",
			message:   `{"trace_id":42}`,
			wantFound: false,
		},
		{
			name:      "not json",
			message:   `alive`,
			wantFound: false,
		},
		{
			name:      "json array",
			message:   `[1,2,3]`,
			wantFound: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, body, found := ExtractTraceID([]byte(tt.message))
			if found != tt.wantFound {
				t.Fatalf("found = %v, want %v", found, tt.wantFound)
			}
			if !found {
				return
			}
			if id != tt.wantID {
				t.Errorf("id = %q, want %q", id, tt.wantID)
			}
			if string(body) != tt.wantBody {
				t.Errorf("body = %s, want %s", body, tt.wantBody)
			}
		})
	}
}
