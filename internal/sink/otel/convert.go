package otel

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/umhmon/umh/internal/sink"
)

// convertToLogRecord converts a record to an OTEL log Record for
// Logger.Emit().
func convertToLogRecord(rec sink.Record) otellog.Record {
	var out otellog.Record

	out.SetTimestamp(rec.Time)
	out.SetBody(otellog.StringValue(recordBody(rec)))
	sev := recordSeverity(rec)
	out.SetSeverity(sev)
	out.SetSeverityText(sev.String())
	out.AddAttributes(recordAttributes(rec)...)

	return out
}

// recordBody returns a one-line summary: the API and its first value.
func recordBody(rec sink.Record) string {
	if len(rec.Args) == 0 || rec.Args[0].Value == nil {
		return rec.API
	}
	return fmt.Sprintf("%s: %v", rec.API, rec.Args[0].Value)
}

func recordSeverity(rec sink.Record) otellog.Severity {
	if !rec.Success {
		return otellog.SeverityWarn
	}
	return otellog.SeverityInfo
}

func recordAttributes(rec sink.Record) []otellog.KeyValue {
	attrs := make([]otellog.KeyValue, 0, len(rec.Args)+6)

	if rec.PID != 0 {
		attrs = append(attrs, otellog.Int("process.pid", int(rec.PID)))
	}
	attrs = append(attrs,
		otellog.Int("thread.id", int(rec.ThreadID)),
		otellog.String("umh.api", rec.API),
		otellog.String("umh.category", rec.Category),
		otellog.String("umh.signature", rec.Signature),
		otellog.Bool("umh.success", rec.Success),
		otellog.String("umh.return", sink.Hex(rec.Return)),
	)
	for i, a := range rec.Args {
		var c byte
		if i < len(rec.Signature) {
			c = rec.Signature[i]
		}
		attrs = append(attrs, argAttribute("umh.arg."+a.Name, c, a.Value))
	}
	return attrs
}

// argAttribute maps a value to an OTEL attribute. Hex and pointer kinds are
// rendered as hex strings so they survive backends without uint64 support.
func argAttribute(key string, sig byte, v any) otellog.KeyValue {
	switch val := v.(type) {
	case nil:
		return otellog.Empty(key)
	case string:
		return otellog.String(key, val)
	case []byte:
		return otellog.Bytes(key, val)
	case bool:
		return otellog.Bool(key, val)
	case fmt.Stringer:
		return otellog.String(key, val.String())
	}
	n, ok := toUint64(v)
	if !ok {
		return otellog.String(key, fmt.Sprint(v))
	}
	if strings.IndexByte("hHpPxX", sig) >= 0 {
		return otellog.String(key, sink.Hex(n))
	}
	switch val := v.(type) {
	case int:
		return otellog.Int(key, val)
	case int64:
		return otellog.Int64(key, val)
	case int32:
		return otellog.Int64(key, int64(val))
	case int16:
		return otellog.Int64(key, int64(val))
	case int8:
		return otellog.Int64(key, int64(val))
	}
	return otellog.Int64(key, int64(n))
}

func toUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case int:
		return uint64(n), true
	case int8:
		return uint64(n), true
	case int16:
		return uint64(n), true
	case int32:
		return uint64(n), true
	case int64:
		return uint64(n), true
	case uint:
		return uint64(n), true
	case uint8:
		return uint64(n), true
	case uint16:
		return uint64(n), true
	case uint32:
		return uint64(n), true
	case uint64:
		return n, true
	case uintptr:
		return uint64(n), true
	}
	return 0, false
}

// BuildResource creates an OTEL Resource naming the monitored process.
func BuildResource(serviceName string, pid uint32, imagePath string) *resource.Resource {
	kvs := []attribute.KeyValue{
		semconv.ServiceName(serviceName),
		semconv.ProcessPID(int(pid)),
	}
	if imagePath != "" {
		kvs = append(kvs, attribute.String("process.executable.path", imagePath))
	}
	res, _ := resource.New(
		context.Background(),
		resource.WithAttributes(kvs...),
	)
	return res
}
