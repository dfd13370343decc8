package observability

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/rs/zerolog/log"

	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
)

// OTelWriter implements io.Writer and bridges zerolog output to
// OpenTelemetry logs, grounded on internal/observability/otelwriter.go. It
// parses each zerolog JSON line and emits it as a log record via the global
// OpenTelemetry LoggerProvider. InitOTel does not install a LoggerProvider,
// so records go to the global default (a no-op) unless the process sets one.
type OTelWriter struct {
	logger otellog.Logger
}

// NewOTelWriter creates a new OTelWriter that sends logs to the global OTLP
// log provider under the given instrumentation name.
func NewOTelWriter(name string) *OTelWriter {
	return &OTelWriter{
		logger: global.GetLoggerProvider().Logger(name),
	}
}

// EnableOTelLogBridge re-points the global zerolog logger at a writer that
// tees every log line to both the sink InitLogger chose (baseWriter) and an
// OTelWriter, without touching call sites. The OTelWriter side reaches an
// exporter only if a global LoggerProvider has been set; InitOTel sets
// tracer and meter providers only.
func EnableOTelLogBridge(serviceName string) {
	bridge := NewOTelWriter(serviceName)
	log.Logger = log.Logger.Output(io.MultiWriter(baseWriter, bridge))
}

func (w *OTelWriter) Write(p []byte) (n int, err error) {
	n = len(p)

	var entry map[string]any
	if err := json.Unmarshal(p, &entry); err != nil {
		w.emitRaw(string(p))
		return n, nil
	}

	w.emitStructured(entry)
	return n, nil
}

func (w *OTelWriter) emitRaw(msg string) {
	ctx := context.Background()
	var rec otellog.Record
	rec.SetTimestamp(time.Now())
	rec.SetBody(otellog.StringValue(msg))
	rec.SetSeverity(otellog.SeverityInfo)
	w.logger.Emit(ctx, rec)
}

func (w *OTelWriter) emitStructured(entry map[string]any) {
	ctx := context.Background()
	var rec otellog.Record

	if ts, ok := entry["time"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			rec.SetTimestamp(t)
		} else {
			rec.SetTimestamp(time.Now())
		}
		delete(entry, "time")
	} else {
		rec.SetTimestamp(time.Now())
	}

	if lvl, ok := entry["level"].(string); ok {
		rec.SetSeverity(zerologLevelToSeverity(lvl))
		rec.SetSeverityText(lvl)
		delete(entry, "level")
	} else {
		rec.SetSeverity(otellog.SeverityInfo)
		rec.SetSeverityText("info")
	}

	if msg, ok := entry["message"].(string); ok {
		rec.SetBody(otellog.StringValue(msg))
		delete(entry, "message")
	} else if msg, ok := entry["msg"].(string); ok {
		rec.SetBody(otellog.StringValue(msg))
		delete(entry, "msg")
	}

	attrs := make([]otellog.KeyValue, 0, len(entry))
	for k, v := range entry {
		attrs = append(attrs, otellog.KeyValue{Key: k, Value: anyToLogValue(v)})
	}
	rec.AddAttributes(attrs...)

	w.logger.Emit(ctx, rec)
}

func zerologLevelToSeverity(level string) otellog.Severity {
	switch level {
	case "trace":
		return otellog.SeverityTrace
	case "debug":
		return otellog.SeverityDebug
	case "info":
		return otellog.SeverityInfo
	case "warn", "warning":
		return otellog.SeverityWarn
	case "error":
		return otellog.SeverityError
	case "fatal":
		return otellog.SeverityFatal
	case "panic":
		return otellog.SeverityFatal4
	default:
		return otellog.SeverityInfo
	}
}

func anyToLogValue(v any) otellog.Value {
	switch val := v.(type) {
	case string:
		return otellog.StringValue(val)
	case int:
		return otellog.IntValue(val)
	case int64:
		return otellog.Int64Value(val)
	case float64:
		return otellog.Float64Value(val)
	case bool:
		return otellog.BoolValue(val)
	case nil:
		return otellog.StringValue("")
	default:
		if b, err := json.Marshal(val); err == nil {
			return otellog.StringValue(string(b))
		}
		return otellog.StringValue("")
	}
}
