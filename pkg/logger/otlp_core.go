package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap/zapcore"
)

// OTLPCore is a zapcore.Core that batches entries and posts them to an
// OTel Collector's OTLP/HTTP logs endpoint as JSON.
type OTLPCore struct {
	zapcore.LevelEnabler
	shared *otlpExporter
	fields []zapcore.Field
}

type otlpExporter struct {
	endpoint    string
	serviceName string
	client      *http.Client
	batchSize   int
	interval    time.Duration

	mu     sync.Mutex
	buffer []otlpRecord

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type otlpRecord struct {
	TimeUnixNano         string         `json:"timeUnixNano"`
	ObservedTimeUnixNano string         `json:"observedTimeUnixNano"`
	SeverityNumber       int32          `json:"severityNumber"`
	SeverityText         string         `json:"severityText"`
	Body                 otlpValue      `json:"body"`
	Attributes           []otlpKeyValue `json:"attributes,omitempty"`
	TraceID              string         `json:"traceId,omitempty"`
	SpanID               string         `json:"spanId,omitempty"`
}

type otlpKeyValue struct {
	Key   string    `json:"key"`
	Value otlpValue `json:"value"`
}

type otlpValue struct {
	StringValue *string  `json:"stringValue,omitempty"`
	IntValue    *string  `json:"intValue,omitempty"`
	DoubleValue *float64 `json:"doubleValue,omitempty"`
	BoolValue   *bool    `json:"boolValue,omitempty"`
}

type otlpPayload struct {
	ResourceLogs []otlpResourceLogs `json:"resourceLogs"`
}

type otlpResourceLogs struct {
	Resource  otlpResource    `json:"resource"`
	ScopeLogs []otlpScopeLogs `json:"scopeLogs"`
}

type otlpResource struct {
	Attributes []otlpKeyValue `json:"attributes"`
}

type otlpScopeLogs struct {
	Scope      otlpScope    `json:"scope"`
	LogRecords []otlpRecord `json:"logRecords"`
}

type otlpScope struct {
	Name string `json:"name"`
}

// LogsEndpoint turns a collector address into its OTLP/HTTP logs URL.
// The conventional gRPC port 4317 is swapped for the HTTP port 4318.
func LogsEndpoint(collectorAddr string) string {
	if collectorAddr == "" {
		return ""
	}
	if strings.HasPrefix(collectorAddr, "http://") || strings.HasPrefix(collectorAddr, "https://") {
		return strings.TrimSuffix(collectorAddr, "/") + "/v1/logs"
	}
	if strings.HasSuffix(collectorAddr, ":4317") {
		collectorAddr = strings.TrimSuffix(collectorAddr, "4317") + "4318"
	}
	return "http://" + collectorAddr + "/v1/logs"
}

// NewOTLPCore starts the background flusher. Returns nil when cfg has no endpoint.
func NewOTLPCore(cfg *Config, level zapcore.LevelEnabler) *OTLPCore {
	if cfg == nil || cfg.OTLPEndpoint == "" {
		return nil
	}

	batchSize := cfg.OTLPBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	interval := cfg.OTLPBatchInterval
	if interval <= 0 {
		interval = time.Second
	}
	timeout := cfg.OTLPTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	exp := &otlpExporter{
		endpoint:    cfg.OTLPEndpoint,
		serviceName: cfg.ServiceName,
		client:      &http.Client{Timeout: timeout},
		batchSize:   batchSize,
		interval:    interval,
		buffer:      make([]otlpRecord, 0, batchSize),
		stop:        make(chan struct{}),
	}
	exp.wg.Add(1)
	go exp.loop()

	return &OTLPCore{LevelEnabler: level, shared: exp}
}

// With returns a core that attaches fields to every entry
func (c *OTLPCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &OTLPCore{LevelEnabler: c.LevelEnabler, shared: c.shared, fields: merged}
}

// Check adds this core when the level is enabled
func (c *OTLPCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

// Write buffers one entry
func (c *OTLPCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	rec := otlpRecord{
		TimeUnixNano:         fmt.Sprint(ent.Time.UnixNano()),
		ObservedTimeUnixNano: fmt.Sprint(time.Now().UnixNano()),
		SeverityNumber:       severityOf(ent.Level),
		SeverityText:         strings.ToUpper(ent.Level.String()),
		Body:                 stringValue(ent.Message),
	}

	all := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	all = append(all, c.fields...)
	all = append(all, fields...)

	if ent.Caller.Defined {
		rec.Attributes = append(rec.Attributes, otlpKeyValue{Key: "caller", Value: stringValue(ent.Caller.TrimmedPath())})
	}
	for _, f := range all {
		switch f.Key {
		case "trace_id":
			rec.TraceID = f.String
			continue
		case "span_id":
			rec.SpanID = f.String
			continue
		}
		if kv, ok := keyValueOf(f); ok {
			rec.Attributes = append(rec.Attributes, kv)
		}
	}

	c.shared.add(rec)
	return nil
}

// Sync exports whatever is buffered
func (c *OTLPCore) Sync() error {
	return c.shared.flush()
}

// Close stops the flusher and exports the remaining entries
func (c *OTLPCore) Close() error {
	c.shared.stopOnce.Do(func() {
		close(c.shared.stop)
		c.shared.wg.Wait()
	})
	return c.shared.flush()
}

func (e *otlpExporter) add(rec otlpRecord) {
	e.mu.Lock()
	e.buffer = append(e.buffer, rec)
	full := len(e.buffer) >= e.batchSize
	e.mu.Unlock()

	if full {
		go func() { _ = e.flush() }()
	}
}

func (e *otlpExporter) loop() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = e.flush()
		case <-e.stop:
			return
		}
	}
}

func (e *otlpExporter) flush() error {
	e.mu.Lock()
	if len(e.buffer) == 0 {
		e.mu.Unlock()
		return nil
	}
	records := e.buffer
	e.buffer = make([]otlpRecord, 0, e.batchSize)
	e.mu.Unlock()

	payload := otlpPayload{ResourceLogs: []otlpResourceLogs{{
		Resource: otlpResource{Attributes: []otlpKeyValue{
			{Key: "service.name", Value: stringValue(e.serviceName)},
			{Key: "service.namespace", Value: stringValue("eventgate")},
		}},
		ScopeLogs: []otlpScopeLogs{{
			Scope:      otlpScope{Name: "go.uber.org/zap"},
			LogRecords: records,
		}},
	}}}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal otlp logs: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.client.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build otlp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		// the collector being down must never block or fail the caller
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		fmt.Fprintf(os.Stderr, "logger: otlp export failed with status %d\n", resp.StatusCode)
		return fmt.Errorf("otlp export failed with status %d", resp.StatusCode)
	}
	return nil
}

func severityOf(level zapcore.Level) int32 {
	switch level {
	case zapcore.DebugLevel:
		return 5
	case zapcore.InfoLevel:
		return 9
	case zapcore.WarnLevel:
		return 13
	case zapcore.ErrorLevel:
		return 17
	case zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		return 21
	default:
		return 0
	}
}

func stringValue(s string) otlpValue {
	return otlpValue{StringValue: &s}
}

func keyValueOf(f zapcore.Field) (otlpKeyValue, bool) {
	var v otlpValue
	switch f.Type {
	case zapcore.StringType:
		v = stringValue(f.String)
	case zapcore.Int64Type, zapcore.Int32Type, zapcore.Int16Type, zapcore.Int8Type,
		zapcore.Uint64Type, zapcore.Uint32Type, zapcore.Uint16Type, zapcore.Uint8Type:
		s := fmt.Sprint(f.Integer)
		v = otlpValue{IntValue: &s}
	case zapcore.Float64Type:
		d := math.Float64frombits(uint64(f.Integer))
		v = otlpValue{DoubleValue: &d}
	case zapcore.Float32Type:
		d := float64(math.Float32frombits(uint32(f.Integer)))
		v = otlpValue{DoubleValue: &d}
	case zapcore.BoolType:
		b := f.Integer == 1
		v = otlpValue{BoolValue: &b}
	case zapcore.DurationType:
		v = stringValue(time.Duration(f.Integer).String())
	case zapcore.ErrorType:
		err, ok := f.Interface.(error)
		if !ok || err == nil {
			return otlpKeyValue{}, false
		}
		v = stringValue(err.Error())
	case zapcore.StringerType:
		s, ok := f.Interface.(fmt.Stringer)
		if !ok {
			return otlpKeyValue{}, false
		}
		v = stringValue(s.String())
	default:
		if f.Interface == nil {
			return otlpKeyValue{}, false
		}
		data, err := json.Marshal(f.Interface)
		if err != nil {
			return otlpKeyValue{}, false
		}
		v = stringValue(string(data))
	}
	return otlpKeyValue{Key: f.Key, Value: v}, true
}
