package resources

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Gate remembers which resources were already served in a session.
type Gate struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

// NewGate builds a Redis-backed gate. A zero ttl keeps entries until removed
// externally.
func NewGate(client *redis.Client, ttl time.Duration) *Gate {
	if client == nil {
		panic("resources: redis client cannot be nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Gate{
		redis:  client,
		ttl:    ttl,
		tracer: otel.Tracer("ersim.internal.resources.gate"),
	}
}

// gateKey length-prefixes the session id so ids containing ':' cannot collide
// with a different session/resource split.
func gateKey(sessionID, resource string) string {
	return fmt.Sprintf("ersim:resource_served:%d:%s:%s", len(sessionID), sessionID, resource)
}

// HasBeenServed reports whether MarkServed ran for this session and resource.
func (g *Gate) HasBeenServed(ctx context.Context, sessionID, resource string) (bool, error) {
	ctx, span := g.tracer.Start(ctx, "resources.gate_check")
	defer span.End()
	span.SetAttributes(attribute.String("ersim.resource", resource))

	n, err := g.redis.Exists(ctx, gateKey(sessionID, resource)).Result()
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("resources: gate check: %w", err)
	}
	return n > 0, nil
}

// MarkServed records the resource as served for the session. Marking twice is
// harmless.
func (g *Gate) MarkServed(ctx context.Context, sessionID, resource string) error {
	ctx, span := g.tracer.Start(ctx, "resources.gate_mark")
	defer span.End()
	span.SetAttributes(attribute.String("ersim.resource", resource))

	if err := g.redis.Set(ctx, gateKey(sessionID, resource), "1", g.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("resources: gate mark: %w", err)
	}
	return nil
}
