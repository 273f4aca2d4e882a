package log

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/statspub/publisher/pkg/requestid"
)

// StructuredLogger produces operation tracers: one Build per operation, then
// Step/Error/Success entries that all carry the operation name, the request
// id and the fields given to the builder.
type StructuredLogger struct {
	name string
}

func NewDebugLogger(name string) *StructuredLogger {
	return &StructuredLogger{name: name}
}

func (l *StructuredLogger) WithContext(ctx context.Context) *ContextLogger {
	var fields []zap.Field
	if id := requestid.FromContext(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	return &ContextLogger{name: l.name, fields: fields}
}

type ContextLogger struct {
	name   string
	fields []zap.Field
}

func (c *ContextLogger) Operation(op string) *OperationBuilder {
	fields := make([]zap.Field, 0, len(c.fields)+4)
	fields = append(fields, c.fields...)
	fields = append(fields, zap.String("operation", op))
	return &OperationBuilder{name: c.name, op: op, fields: fields}
}

type OperationBuilder struct {
	name   string
	op     string
	fields []zap.Field
}

func (b *OperationBuilder) WithString(key, value string) *OperationBuilder {
	b.fields = append(b.fields, zap.String(key, value))
	return b
}

func (b *OperationBuilder) WithInt(key string, value int) *OperationBuilder {
	b.fields = append(b.fields, zap.Int(key, value))
	return b
}

func (b *OperationBuilder) WithBool(key string, value bool) *OperationBuilder {
	b.fields = append(b.fields, zap.Bool(key, value))
	return b
}

func (b *OperationBuilder) WithUUID(key string, value uuid.UUID) *OperationBuilder {
	b.fields = append(b.fields, zap.String(key, value.String()))
	return b
}

func (b *OperationBuilder) WithParam(key string, value any) *OperationBuilder {
	b.fields = append(b.fields, zap.Any(key, value))
	return b
}

func (b *OperationBuilder) Build() *OperationTracer {
	return &OperationTracer{
		logger: zap.L().Named(b.name).WithOptions(zap.AddCallerSkip(1)).With(b.fields...),
		start:  time.Now(),
	}
}

type OperationTracer struct {
	logger *zap.Logger
	start  time.Time
}

func (t *OperationTracer) Step(name string) *Entry {
	return &Entry{write: t.logger.Debug, msg: "step", fields: []zap.Field{zap.String("step", name)}}
}

func (t *OperationTracer) Error(err error) *Entry {
	return &Entry{write: t.logger.Error, msg: "operation failed", fields: []zap.Field{zap.Error(err), zap.Duration("elapsed", time.Since(t.start))}}
}

func (t *OperationTracer) Success() *Entry {
	return &Entry{write: t.logger.Info, msg: "operation completed", fields: []zap.Field{zap.Duration("elapsed", time.Since(t.start))}}
}

// Entry is a single log line waiting for Log.
type Entry struct {
	write  func(msg string, fields ...zap.Field)
	msg    string
	fields []zap.Field
}

func (e *Entry) WithString(key, value string) *Entry {
	e.fields = append(e.fields, zap.String(key, value))
	return e
}

func (e *Entry) WithInt(key string, value int) *Entry {
	e.fields = append(e.fields, zap.Int(key, value))
	return e
}

func (e *Entry) WithBool(key string, value bool) *Entry {
	e.fields = append(e.fields, zap.Bool(key, value))
	return e
}

func (e *Entry) WithUUID(key string, value uuid.UUID) *Entry {
	e.fields = append(e.fields, zap.String(key, value.String()))
	return e
}

func (e *Entry) WithParam(key string, value any) *Entry {
	e.fields = append(e.fields, zap.Any(key, value))
	return e
}

func (e *Entry) Log() {
	e.write(e.msg, e.fields...)
}
