// Package structured wraps schema-constrained generation calls. The model's
// answer is parsed strictly and checked against the request schema; any
// failure yields the caller's default value together with a descriptive
// error, so callers that must not fail can simply log and carry on.
package structured

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/dost/internal/observe"
	"github.com/MrWong99/dost/pkg/provider/generate"
)

var (
	// ErrMalformedResponse is returned when the answer is not valid JSON or
	// does not match the schema.
	ErrMalformedResponse = errors.New("structured: malformed response")

	// ErrEmptyResponse is returned alongside ErrMalformedResponse when the
	// model produced no text at all.
	ErrEmptyResponse = errors.New("structured: empty response")

	// ErrNoSchema is returned when the request carries no schema.
	ErrNoSchema = errors.New("structured: request has no schema")
)

// Option configures a single [Call].
type Option func(*callOptions)

type callOptions struct {
	operation string
	metrics   *observe.Metrics
}

// WithOperation names the call in metrics, spans and logs.
func WithOperation(name string) Option {
	return func(o *callOptions) { o.operation = name }
}

// WithMetrics sets the metrics sink. The default is [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *callOptions) { o.metrics = m }
}

// Call submits req to p and decodes the answer into T. On any failure it
// returns fallback and an error; the error wraps [ErrMalformedResponse] when
// the answer arrived but could not be used, or the provider error otherwise.
func Call[T any](ctx context.Context, p generate.Provider, req generate.Request, fallback T, opts ...Option) (T, error) {
	o := callOptions{operation: "generate"}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	if req.Schema == nil {
		return fallback, ErrNoSchema
	}

	ctx, span := observe.StartSpan(ctx, "structured."+o.operation)
	var err error
	defer func() { observe.EndSpan(span, err) }()

	start := time.Now()
	resp, err := p.Generate(ctx, req)
	o.metrics.GenerateDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("operation", o.operation)))
	if err != nil {
		o.metrics.RecordProviderError(ctx, "generate", o.operation)
		o.metrics.RecordProviderRequest(ctx, "generate", o.operation, "error")
		err = fmt.Errorf("structured: %s: %w", o.operation, err)
		return fallback, err
	}
	o.metrics.RecordProviderRequest(ctx, "generate", o.operation, "ok")

	v, err := Decode[T](resp.Text, req.Schema)
	if err != nil {
		o.metrics.RecordMalformed(ctx, o.operation)
		observe.Logger(ctx).Warn("structured: using default", "operation", o.operation, "err", err)
		err = fmt.Errorf("structured: %s: %w", o.operation, err)
		return fallback, err
	}
	return v, nil
}

// Decode parses text as exactly one JSON value, validates it against schema
// and unmarshals it into T. Errors wrap [ErrMalformedResponse].
func Decode[T any](text string, schema *generate.Schema) (T, error) {
	var zero T
	text = strings.TrimSpace(text)
	if text == "" {
		return zero, fmt.Errorf("%w: %w", ErrMalformedResponse, ErrEmptyResponse)
	}

	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return zero, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return zero, fmt.Errorf("%w: trailing data after JSON value", ErrMalformedResponse)
	}

	if schema != nil {
		if err := validate(raw, schema, "$"); err != nil {
			return zero, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
		}
	}

	var out T
	if err := json.NewDecoder(bytes.NewReader([]byte(text))).Decode(&out); err != nil {
		return zero, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return out, nil
}

// validate checks v against s. Optional properties may be null or absent;
// required ones must be present and non-null.
func validate(v any, s *generate.Schema, path string) error {
	if v == nil {
		return nil
	}
	switch s.Type {
	case generate.TypeObject:
		obj, ok := v.(map[string]any)
		if !ok {
			return typeError(path, s.Type, v)
		}
		var errs []error
		for _, name := range s.Required {
			if val, present := obj[name]; !present || val == nil {
				errs = append(errs, fmt.Errorf("%s.%s: required field missing", path, name))
			}
		}
		for name, prop := range s.Properties {
			if val, present := obj[name]; present && prop != nil {
				if err := validate(val, prop, path+"."+name); err != nil {
					errs = append(errs, err)
				}
			}
		}
		return errors.Join(errs...)

	case generate.TypeArray:
		arr, ok := v.([]any)
		if !ok {
			return typeError(path, s.Type, v)
		}
		if s.Items == nil {
			return nil
		}
		for i, item := range arr {
			if item == nil {
				return fmt.Errorf("%s[%d]: null array item", path, i)
			}
			if err := validate(item, s.Items, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
		return nil

	case generate.TypeString:
		if _, ok := v.(string); !ok {
			return typeError(path, s.Type, v)
		}
	case generate.TypeBoolean:
		if _, ok := v.(bool); !ok {
			return typeError(path, s.Type, v)
		}
	case generate.TypeNumber:
		if _, ok := v.(json.Number); !ok {
			return typeError(path, s.Type, v)
		}
	case generate.TypeInteger:
		n, ok := v.(json.Number)
		if !ok {
			return typeError(path, s.Type, v)
		}
		if _, err := n.Int64(); err != nil {
			return fmt.Errorf("%s: %s is not an integer", path, n)
		}
	}
	return nil
}

func typeError(path string, want generate.Type, got any) error {
	return fmt.Errorf("%s: want %s, got %T", path, strings.ToLower(string(want)), got)
}
