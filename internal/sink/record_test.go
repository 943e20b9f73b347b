package sink

import (
	"testing"
	"time"
)

func TestRecordLine(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 7, 0, time.Local)

	tests := []struct {
		name    string
		topic   string
		payload []byte
		want    string
	}{
		{
			name:    "plain text",
			topic:   "rye/test",
			payload: []byte("hello"),
			want:    "2024-05-01 12:00:07 | Topic: rye/test | Message: hello\n",
		},
		{
			name:    "empty payload",
			topic:   "rye/test",
			payload: nil,
			want:    "2024-05-01 12:00:07 | Topic: rye/test | Message: \n",
		},
		{
			name:    "multi-line payload",
			topic:   "rye/test",
			payload: []byte("line1\nline2\r\n"),
			want:    "2024-05-01 12:00:07 | Topic: rye/test | Message: line1\\nline2\\r\\n\n",
		},
		{
			name:    "literal backslash sequence",
			topic:   "rye/test",
			payload: []byte(`x\ny`),
			want:    "2024-05-01 12:00:07 | Topic: rye/test | Message: x\\\\ny\n",
		},
		{
			name:    "windows path",
			topic:   "rye/test",
			payload: []byte(`C:\temp`),
			want:    "2024-05-01 12:00:07 | Topic: rye/test | Message: C:\\\\temp\n",
		},
		{
			name:    "invalid utf-8",
			topic:   "rye/bin",
			payload: []byte{'o', 'k', 0xff, 0xfe, '!'},
			want:    "2024-05-01 12:00:07 | Topic: rye/bin | Message: ok�!\n",
		},
		{
			name:    "unicode",
			topic:   "rye/ünï",
			payload: []byte("héllo ✓"),
			want:    "2024-05-01 12:00:07 | Topic: rye/ünï | Message: héllo ✓\n",
		},
		{
			name:    "json",
			topic:   "sensors/kitchen",
			payload: []byte(`{"temp":21.5}`),
			want:    "2024-05-01 12:00:07 | Topic: sensors/kitchen | Message: {\"temp\":21.5}\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Record{Time: ts, Topic: tt.topic, Payload: tt.payload}.Line()
			if got != tt.want {
				t.Errorf("Line() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecodePayload(t *testing.T) {
	if got := DecodePayload([]byte("a\nb")); got != `a\nb` {
		t.Errorf("DecodePayload() = %q, want %q", got, `a\nb`)
	}
	if got := DecodePayload([]byte{0xc3}); got != "�" {
		t.Errorf("DecodePayload(truncated rune) = %q, want U+FFFD", got)
	}
}

func TestDecodePayload_Unambiguous(t *testing.T) {
	payloads := [][]byte{
		[]byte("x\ny"),
		[]byte(`x\ny`),
		[]byte(`x\\ny`),
		[]byte("x\\\ny"),
		[]byte("x\ry"),
		[]byte(`x\ry`),
	}

	seen := make(map[string][]byte, len(payloads))
	for _, p := range payloads {
		got := DecodePayload(p)
		if prev, dup := seen[got]; dup {
			t.Errorf("DecodePayload(%q) and DecodePayload(%q) both = %q", prev, p, got)
		}
		seen[got] = p
	}
}
