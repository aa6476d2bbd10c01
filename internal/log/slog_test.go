package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func newTestLogger(t *testing.T, buf *bytes.Buffer, opts Options) *slogLogger {
	t.Helper()
	opts.Writer = buf
	opts.JSON = true
	l, err := newSlog(opts)
	if err != nil {
		t.Fatalf("newSlog: %v", err)
	}
	return l.(*slogLogger)
}

// lastRecord decodes the final JSON line written to buf.
func lastRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var m map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &m); err != nil {
		t.Fatalf("decode log line: %v\n%s", err, buf.String())
	}
	return m
}

type tagged struct {
	err  error
	kind error
}

func (e tagged) Error() string   { return e.err.Error() }
func (e tagged) Unwrap() []error { return []error{e.err, e.kind} }

func TestSlog_BaseAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "billard", Version: "1.2.3"})

	l.Info(context.Background(), "started", "port", 8080)

	m := lastRecord(t, &buf)
	if m["msg"] != "started" || m["app"] != "billard" || m["version"] != "1.2.3" {
		t.Fatalf("record = %v", m)
	}
	if m["port"] != float64(8080) {
		t.Fatalf("port = %v", m["port"])
	}
	if _, ok := m["source"]; !ok {
		t.Fatal("missing source")
	}
}

func TestSlog_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	l, err := newSlog(Options{App: "billard", Writer: &buf})
	if err != nil {
		t.Fatalf("newSlog: %v", err)
	}
	l.Info(context.Background(), "plain")
	if !strings.Contains(buf.String(), "msg=plain") {
		t.Fatalf("expected text output, got %s", buf.String())
	}
}

func TestSlog_Defaults(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "billard"})
	if l.maxErrorLinks != 8 {
		t.Fatalf("maxErrorLinks = %d, want 8", l.maxErrorLinks)
	}
}

func TestSlog_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "billard", Level: slog.LevelWarn})
	ctx := context.Background()

	l.Debug(ctx, "d")
	l.Info(ctx, "i")
	if buf.Len() != 0 {
		t.Fatalf("debug and info should be filtered: %s", buf.String())
	}
	l.Warn(ctx, "w")
	if lastRecord(t, &buf)["msg"] != "w" {
		t.Fatalf("warn missing: %s", buf.String())
	}
}

func TestSlog_WithIsCopyOnWrite(t *testing.T) {
	var buf bytes.Buffer
	parent := newTestLogger(t, &buf, Options{App: "billard"})
	child := parent.With("component", "mutation", 7, "ignored", "orphan")
	ctx := context.Background()

	child.Info(ctx, "child")
	m := lastRecord(t, &buf)
	if m["component"] != "mutation" {
		t.Fatalf("component = %v", m["component"])
	}
	if _, ok := m["orphan"]; ok {
		t.Fatal("odd trailing key should be dropped")
	}

	buf.Reset()
	parent.Info(ctx, "parent")
	if _, ok := lastRecord(t, &buf)["component"]; ok {
		t.Fatal("parent picked up child attrs")
	}
}

func TestSlog_RedactsSensitiveKeys(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "billard"})

	l.With("hawk_key", "s3cret").Warn(context.Background(), "auth failed",
		"Authorization", `Hawk id="admin", mac="abc"`,
		"req", slog.GroupValue(slog.String("MAC", "d34dbeef"), slog.String("path", "/admin/upload")),
		"reason", "bad_mac",
	)

	raw := buf.String()
	if strings.Contains(raw, "s3cret") || strings.Contains(raw, "d34dbeef") {
		t.Fatalf("secret material leaked: %s", raw)
	}
	m := lastRecord(t, &buf)
	if m["Authorization"] != redacted || m["hawk_key"] != redacted {
		t.Fatalf("record = %v", m)
	}
	req, _ := m["req"].(map[string]any)
	if req["MAC"] != redacted || req["path"] != "/admin/upload" {
		t.Fatalf("req = %v", req)
	}
	if m["reason"] != "bad_mac" {
		t.Fatalf("reason = %v", m["reason"])
	}
}

func TestSlog_CustomRedactKeys(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "billard", RedactKeys: []string{"token"}})

	l.Info(context.Background(), "x", "token", "t", "mac", "visible")

	m := lastRecord(t, &buf)
	if m["token"] != redacted || m["mac"] != "visible" {
		t.Fatalf("record = %v", m)
	}
}

func TestSlog_ErrorEnrichment(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "billard", IncludeErrorLinks: true})

	base := &customError{msg: "disk full"}
	l.Error(context.Background(), fmt.Errorf("commit: %w", base), "write failed", "file", "a_1-1.json")

	m := lastRecord(t, &buf)
	if m["err"] != "commit: disk full" {
		t.Fatalf("err = %v", m["err"])
	}
	if m["error_type"] != "*log.customError" || m["cause_type"] != "*log.customError" {
		t.Fatalf("types = %v / %v", m["error_type"], m["cause_type"])
	}
	chain, _ := m["error_chain"].([]any)
	if len(chain) != 2 || chain[1] != "disk full" {
		t.Fatalf("error_chain = %v", m["error_chain"])
	}
	if _, ok := m["error_links"]; !ok {
		t.Fatal("error_links missing")
	}
	if m["file"] != "a_1-1.json" {
		t.Fatalf("file = %v", m["file"])
	}
	if s, _ := m["stack"].(string); s == "" {
		t.Fatal("error level record should carry a stack")
	}
}

func TestSlog_NoStackBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "billard"})
	l.Warn(context.Background(), "w")
	if _, ok := lastRecord(t, &buf)["stack"]; ok {
		t.Fatal("warn should not carry a stack")
	}
}

func TestSlog_TraceIDs(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "billard"})

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x0a, 0x0b},
		SpanID:     trace.SpanID{0x01},
		TraceFlags: trace.FlagsSampled,
	})
	l.Info(trace.ContextWithSpanContext(context.Background(), sc), "traced")

	m := lastRecord(t, &buf)
	if m["trace_id"] != sc.TraceID().String() || m["span_id"] != sc.SpanID().String() {
		t.Fatalf("record = %v", m)
	}

	buf.Reset()
	l.Info(context.Background(), "untraced")
	if _, ok := lastRecord(t, &buf)["trace_id"]; ok {
		t.Fatal("trace_id without a span")
	}
}

type customError struct{ msg string }

func (e *customError) Error() string { return e.msg }

func TestErrorChain(t *testing.T) {
	base := errors.New("root")
	tests := []struct {
		name string
		err  error
		want []string
	}{
		{"single", base, []string{"root"}},
		{"wrapped", fmt.Errorf("outer: %w", base), []string{"outer: root", "root"}},
		{"joined", errors.Join(errors.New("a"), errors.New("b")), []string{"a\nb", "a", "b"}},
		{"multi unwrap", tagged{err: fmt.Errorf("outer: %w", base), kind: errors.New("validation")},
			[]string{"outer: root", "root", "validation"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errorChain(tt.err)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Fatalf("errorChain = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassifyTypes_FollowsMultiUnwrap(t *testing.T) {
	err := tagged{err: fmt.Errorf("x: %w", &customError{"c"}), kind: errors.New("k")}
	surface, root := classifyTypes(err)
	if surface != "log.tagged" || root != "*log.customError" {
		t.Fatalf("classifyTypes = %q, %q", surface, root)
	}
	if s, r := classifyTypes(nil); s != "" || r != "" {
		t.Fatalf("nil = %q, %q", s, r)
	}
}

func TestChainLinks_Max(t *testing.T) {
	err := fmt.Errorf("a: %w", fmt.Errorf("b: %w", errors.New("c")))
	links := chainLinks(err, 1)
	if len(links) != 1 || links[0]["msg"] != "a: b: c" {
		t.Fatalf("links = %v", links)
	}
	if links := chainLinks(nil, 4); len(links) != 0 {
		t.Fatalf("nil links = %v", links)
	}
}

func TestFrameHelpers_Empty(t *testing.T) {
	if _, _, _, ok := frameFromPC(0); ok {
		t.Fatal("frameFromPC(0) ok")
	}
	if _, _, _, ok := firstExtFrame(nil); ok {
		t.Fatal("firstExtFrame(nil) ok")
	}
}
