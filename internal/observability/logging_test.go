package observability

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func contains(s, substr string) bool { return strings.Contains(s, substr) }

func TestWithJobCode(t *testing.T) {
	ctx := WithJobCode(context.Background(), "A1")
	lc := GetContext(ctx)
	if lc.JobCode != "A1" {
		t.Errorf("expected A1, got %s", lc.JobCode)
	}
}

func TestWithService(t *testing.T) {
	ctx := WithService(context.Background(), "builder")
	lc := GetContext(ctx)
	if lc.Service != "builder" {
		t.Errorf("expected builder, got %s", lc.Service)
	}
}

func TestWithStage(t *testing.T) {
	ctx := WithStage(context.Background(), "prepare")
	lc := GetContext(ctx)
	if lc.Stage != "prepare" {
		t.Errorf("expected prepare, got %s", lc.Stage)
	}
}

func TestWithPlatform(t *testing.T) {
	ctx := WithPlatform(context.Background(), "android")
	lc := GetContext(ctx)
	if lc.Platform != "android" {
		t.Errorf("expected android, got %s", lc.Platform)
	}
}

func TestContextChaining(t *testing.T) {
	ctx := context.Background()
	ctx = WithJobCode(ctx, "A1")
	ctx = WithService(ctx, "builder")
	ctx = WithStage(ctx, "build")
	ctx = WithPlatform(ctx, "android")

	lc := GetContext(ctx)
	if lc.JobCode != "A1" || lc.Service != "builder" || lc.Stage != "build" || lc.Platform != "android" {
		t.Errorf("context fields lost in chaining: %+v", lc)
	}
}

func TestOverwriteContextValue(t *testing.T) {
	ctx := context.Background()
	ctx = WithJobCode(ctx, "A1")
	ctx = WithJobCode(ctx, "A2")

	if lc := GetContext(ctx); lc.JobCode != "A2" {
		t.Errorf("expected A2, got %s", lc.JobCode)
	}
}

func TestEmptyContext(t *testing.T) {
	lc := GetContext(context.Background())
	if lc.JobCode != "" || lc.Service != "" || lc.Stage != "" || lc.Platform != "" {
		t.Error("expected empty context")
	}
}

func TestContextIsolation(t *testing.T) {
	ctx1 := WithJobCode(context.Background(), "A1")
	ctx2 := WithJobCode(context.Background(), "A2")

	if GetContext(ctx1).JobCode != "A1" {
		t.Error("ctx1 modified")
	}
	if GetContext(ctx2).JobCode != "A2" {
		t.Error("ctx2 modified")
	}
}

func TestInfoContext(t *testing.T) {
	var buf bytes.Buffer
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))

	ctx := WithJobCode(context.Background(), "A1")
	ctx = WithService(ctx, "builder")

	InfoContext(ctx, "job started", slog.String("extra", "value"))

	output := buf.String()
	if !contains(output, "A1") || !contains(output, "builder") || !contains(output, "job started") {
		t.Errorf("missing expected fields in log output: %s", output)
	}
}

func TestWarnContext(t *testing.T) {
	var buf bytes.Buffer
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))

	ctx := WithStage(context.Background(), "prepare")
	WarnContext(ctx, "plugin install slow", slog.String("reason", "timeout"))

	output := buf.String()
	if !contains(output, "prepare") || !contains(output, "plugin install slow") {
		t.Errorf("missing expected fields in log output: %s", output)
	}
}

func TestErrorContext(t *testing.T) {
	var buf bytes.Buffer
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))

	ctx := WithJobCode(context.Background(), "A1")
	ctx = WithPlatform(ctx, "windows")

	ErrorContext(ctx, "build failed", slog.String("error", "native tool exited 1"))

	output := buf.String()
	if !contains(output, "A1") || !contains(output, "windows") {
		t.Errorf("missing expected fields in log output: %s", output)
	}
}

func TestDebugContext(t *testing.T) {
	var buf bytes.Buffer
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	ctx := WithService(context.Background(), "notifier")
	DebugContext(ctx, "dequeued message", slog.Int("tries", 1))

	output := buf.String()
	if !contains(output, "notifier") {
		t.Errorf("expected service field in log output: %s", output)
	}
}

func TestLogBuilder(t *testing.T) {
	var buf bytes.Buffer
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))

	ctx := WithJobCode(context.Background(), "A1")
	lb := NewLogBuilder(ctx)
	lb.With("stage", "pack").With("duration_ms", 150).Info("stage completed")

	output := buf.String()
	if !contains(output, "A1") || !contains(output, "pack") || !contains(output, "150") {
		t.Errorf("missing expected fields in log output: %s", output)
	}
}

func TestLogBuilderWithVariousTypes(t *testing.T) {
	var buf bytes.Buffer
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))

	lb := NewLogBuilder(context.Background()).
		With("string_val", "test").
		With("int_val", 42).
		With("int64_val", int64(9999)).
		With("float_val", 3.14).
		With("bool_val", true)

	lb.Info("type test")

	if !contains(buf.String(), "test") {
		t.Error("expected string value in log output")
	}
}

func TestGetLogAttrsOmitsUnsetFields(t *testing.T) {
	ctx := WithJobCode(context.Background(), "A1")
	attrs := getLogAttrs(ctx)

	if len(attrs) != 1 {
		t.Errorf("expected exactly 1 attribute, got %d", len(attrs))
	}
	if attrs[0].Key != "job_code" {
		t.Errorf("expected job_code attribute, got %s", attrs[0].Key)
	}
}
