package otlp

import (
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"

	"dash0.com/otlp-json-emitter/internal/jsonout"
	"dash0.com/otlp-json-emitter/internal/sink"
)

// ToRecord normalizes a log record together with its scope and resource attributes.
func ToRecord(rec *logspb.LogRecord, scope *commonpb.InstrumentationScope, resourceAttrs []*commonpb.KeyValue) sink.Record {
	return sink.Record{
		TimeUnixNano:         rec.GetTimeUnixNano(),
		ObservedTimeUnixNano: rec.GetObservedTimeUnixNano(),
		SeverityNumber:       int32(rec.GetSeverityNumber()),
		SeverityText:         rec.GetSeverityText(),
		Body:                 ToValue(rec.GetBody()),
		Attributes:           MergeAttrs(rec.GetAttributes(), scope.GetAttributes(), resourceAttrs),
		TraceID:              rec.GetTraceId(),
		SpanID:               rec.GetSpanId(),
		Scope:                scope.GetName(),
	}
}

// MergeAttrs merges attributes by precedence: logAttrs > scopeAttrs > resourceAttrs.
// A key keeps the position where it first appeared, resource attributes first.
// Attributes without a value are skipped so lower levels can supply one.
func MergeAttrs(logAttrs, scopeAttrs, resourceAttrs []*commonpb.KeyValue) jsonout.Fields {
	n := len(logAttrs) + len(scopeAttrs) + len(resourceAttrs)
	if n == 0 {
		return nil
	}

	out := make(jsonout.Fields, 0, n)
	index := make(map[string]int, n)

	for _, kvs := range [...][]*commonpb.KeyValue{resourceAttrs, scopeAttrs, logAttrs} {
		for _, kv := range kvs {
			if kv.GetValue() == nil {
				continue
			}

			v := ToValue(kv.GetValue())
			if i, ok := index[kv.GetKey()]; ok {
				out[i].Value = v
				continue
			}

			index[kv.GetKey()] = len(out)
			out = append(out, jsonout.Field{Key: kv.GetKey(), Value: v})
		}
	}

	return out
}

// ToValue converts an AnyValue to the value model understood by jsonout.Emitter.
// Key-value lists keep their order. An unset value maps to nil.
func ToValue(v *commonpb.AnyValue) any {
	switch x := v.GetValue().(type) {
	case *commonpb.AnyValue_StringValue:
		return x.StringValue
	case *commonpb.AnyValue_BoolValue:
		return x.BoolValue
	case *commonpb.AnyValue_IntValue:
		return x.IntValue
	case *commonpb.AnyValue_DoubleValue:
		return x.DoubleValue
	case *commonpb.AnyValue_BytesValue:
		return x.BytesValue
	case *commonpb.AnyValue_ArrayValue:
		vals := x.ArrayValue.GetValues()
		out := make([]any, 0, len(vals))

		for _, el := range vals {
			out = append(out, ToValue(el))
		}

		return out
	case *commonpb.AnyValue_KvlistValue:
		kvs := x.KvlistValue.GetValues()
		out := make(jsonout.Fields, 0, len(kvs))

		for _, kv := range kvs {
			out = append(out, jsonout.Field{Key: kv.GetKey(), Value: ToValue(kv.GetValue())})
		}

		return out
	default:
		return nil
	}
}
