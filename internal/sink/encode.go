package sink

import "dash0.com/otlp-json-emitter/internal/jsonout"

// writeBatch emits b as a single JSON object. Empty optional record fields are omitted.
func writeBatch[C jsonout.CharSink](e *jsonout.Emitter[C], b Batch) {
	e.BeginObject()
	e.Key("batch_id")
	e.String(b.ID)
	e.Key("window_start")
	e.Int(b.WindowStart)
	e.Key("window_end")
	e.Int(b.WindowEnd)
	e.Key("dropped")
	e.Uint(b.Dropped)
	e.Key("records")
	e.BeginArray()

	for i := range b.Records {
		writeRecord(e, &b.Records[i])
	}

	e.EndArray()
	e.EndObject()
}

func writeRecord[C jsonout.CharSink](e *jsonout.Emitter[C], r *Record) {
	e.BeginObject()
	e.Key("time_unix_nano")
	e.Uint(r.TimeUnixNano)
	e.Key("observed_time_unix_nano")
	e.Uint(r.ObservedTimeUnixNano)
	e.Key("severity_number")
	e.Int(int64(r.SeverityNumber))

	if r.SeverityText != "" {
		e.Key("severity_text")
		e.String(r.SeverityText)
	}

	if r.Scope != "" {
		e.Key("scope")
		e.String(r.Scope)
	}

	if len(r.TraceID) > 0 {
		e.Key("trace_id")
		e.Hex(r.TraceID)
	}

	if len(r.SpanID) > 0 {
		e.Key("span_id")
		e.Hex(r.SpanID)
	}

	e.Key("body")
	e.Value(r.Body)
	e.Key("attributes")
	e.Value(r.Attributes)
	e.EndObject()
}
