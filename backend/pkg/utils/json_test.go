package utils

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

type fanRequest struct {
	On bool `json:"on"`
}

func TestFromJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    fanRequest
		wantErr bool
	}{
		{name: "valid", input: `{"on":true}`, want: fanRequest{On: true}},
		{name: "empty input", input: "", want: fanRequest{}},
		{name: "unknown field", input: `{"on":true,"speed":3}`, wantErr: true},
		{name: "wrong type", input: `{"on":"yes"}`, wantErr: true},
		{name: "trailing object", input: `{"on":true}{"on":false}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := FromJSON[fanRequest]([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("FromJSON() error = %v, wantErr %v", err, tt.wantErr)
			}

			if !tt.wantErr && got != tt.want {
				t.Errorf("FromJSON() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFromJSONStream_ExtraData(t *testing.T) {
	t.Parallel()

	_, err := FromJSONStream[fanRequest](strings.NewReader(`{"on":false} 1`))

	var extra *ExtraDataAfterJSONError
	if !errors.As(err, &extra) {
		t.Fatalf("FromJSONStream() error = %v, want *ExtraDataAfterJSONError", err)
	}

	if extra.Error() != "extra data after JSON object" {
		t.Errorf("Error() = %v", extra.Error())
	}
}

func TestToJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input any
		want  string
	}{
		{name: "struct", input: fanRequest{On: true}, want: `{"on":true}`},
		{name: "nil", input: nil, want: "null"},
		{name: "no html escaping", input: map[string]string{"status": "<KIKEN>"}, want: `{"status":"<KIKEN>"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ToJSON(tt.input)
			if err != nil {
				t.Fatalf("ToJSON() error = %v", err)
			}

			if string(got) != tt.want {
				t.Errorf("ToJSON() = %v, want %v", string(got), tt.want)
			}
		})
	}
}

func TestToJSONStream(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := ToJSONStream(&buf, map[string]int{"limit": 20}); err != nil {
		t.Fatalf("ToJSONStream() error = %v", err)
	}

	if got := strings.TrimSpace(buf.String()); got != `{"limit":20}` {
		t.Errorf("ToJSONStream() = %v, want %v", got, `{"limit":20}`)
	}
}
