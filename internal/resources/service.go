package resources

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/ersim-ai-platform/internal/cases"
	"github.com/wolfman30/ersim-ai-platform/internal/observability/metrics"
	"github.com/wolfman30/ersim-ai-platform/pkg/logging"
)

var (
	// ErrInvalidRequest marks unlock requests missing session_id or resource.
	ErrInvalidRequest = errors.New("resources: session_id and resource are required")
	// ErrUnknownResource marks resources that are not part of any imported case.
	ErrUnknownResource = errors.New("resources: unknown resource")
	// ErrBucketNotConfigured means the media bucket is not set.
	ErrBucketNotConfigured = errors.New("resources: assets bucket not configured")
	// ErrResourceUnavailable means the resource exists but has no mirrored object yet.
	ErrResourceUnavailable = errors.New("resources: resource media not synced")
)

// Unlock outcomes recorded on the unlock metric.
const (
	outcomeIssued        = "issued"
	outcomeAlreadyServed = "already_served"
	outcomeRejected      = "rejected"
	outcomeFailed        = "failed"
)

// ResourceFinder resolves a resource id, optionally within a case.
type ResourceFinder interface {
	FindResource(ctx context.Context, caseID, resourceID string) (*cases.Resource, error)
}

// ServedGate is the per-session served ledger.
type ServedGate interface {
	HasBeenServed(ctx context.Context, sessionID, resource string) (bool, error)
	MarkServed(ctx context.Context, sessionID, resource string) error
}

// URLSigner issues time-limited read URLs.
type URLSigner interface {
	PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}

// UnlockRequest asks for a resource to be materialized for a session.
type UnlockRequest struct {
	SessionID string `json:"session_id"`
	Resource  string `json:"resource"`
	CaseID    string `json:"case_id,omitempty"`
}

// UnlockResult is either an issued URL or an already-served marker.
type UnlockResult struct {
	Resource      string `json:"resource"`
	AlreadyServed bool   `json:"already_served,omitempty"`
	S3URL         string `json:"s3_url,omitempty"`
	ResourceType  string `json:"resource_type,omitempty"`
}

// ServiceConfig holds materialization settings.
type ServiceConfig struct {
	Bucket string
	URLTTL time.Duration
}

// Service materializes case resources behind the per-session gate.
type Service struct {
	finder  ResourceFinder
	gate    ServedGate
	signer  URLSigner
	cfg     ServiceConfig
	logger  *logging.Logger
	metrics *metrics.ResourceMetrics
}

func NewService(finder ResourceFinder, gate ServedGate, signer URLSigner, cfg ServiceConfig, logger *logging.Logger, m *metrics.ResourceMetrics) *Service {
	if finder == nil || gate == nil || signer == nil {
		panic("resources: service dependencies cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.URLTTL <= 0 {
		cfg.URLTTL = defaultSignedURLTTL
	}
	return &Service{finder: finder, gate: gate, signer: signer, cfg: cfg, logger: logger, metrics: m}
}

// Materialize returns a signed URL the first time a session unlocks a
// resource and an already-served marker afterwards. The resource is marked
// only after the URL was issued, so a signing failure can be retried.
// Concurrent first requests may both receive URLs.
func (s *Service) Materialize(ctx context.Context, req UnlockRequest) (UnlockResult, error) {
	sessionID := strings.TrimSpace(req.SessionID)
	resourceID := strings.TrimSpace(req.Resource)
	if sessionID == "" || resourceID == "" {
		s.metrics.ObserveUnlock(outcomeRejected)
		return UnlockResult{}, ErrInvalidRequest
	}

	res, err := s.finder.FindResource(ctx, strings.TrimSpace(req.CaseID), resourceID)
	if err != nil {
		if errors.Is(err, cases.ErrResourceNotFound) {
			s.metrics.ObserveUnlock(outcomeRejected)
			return UnlockResult{}, fmt.Errorf("%w: %s", ErrUnknownResource, resourceID)
		}
		s.metrics.ObserveUnlock(outcomeFailed)
		return UnlockResult{}, err
	}
	if strings.TrimSpace(s.cfg.Bucket) == "" {
		s.metrics.ObserveUnlock(outcomeFailed)
		return UnlockResult{}, ErrBucketNotConfigured
	}

	served, err := s.gate.HasBeenServed(ctx, sessionID, resourceID)
	if err != nil {
		s.metrics.ObserveUnlock(outcomeFailed)
		return UnlockResult{}, err
	}
	if served {
		s.metrics.ObserveUnlock(outcomeAlreadyServed)
		return UnlockResult{Resource: resourceID, AlreadyServed: true}, nil
	}

	if !res.IsSynced || strings.TrimSpace(res.S3Key) == "" {
		s.metrics.ObserveUnlock(outcomeFailed)
		return UnlockResult{}, fmt.Errorf("%w: %s", ErrResourceUnavailable, resourceID)
	}

	url, err := s.signer.PresignGet(ctx, s.cfg.Bucket, res.S3Key, s.cfg.URLTTL)
	if err != nil {
		s.metrics.ObserveUnlock(outcomeFailed)
		return UnlockResult{}, err
	}
	if err := s.gate.MarkServed(ctx, sessionID, resourceID); err != nil {
		s.metrics.ObserveUnlock(outcomeFailed)
		return UnlockResult{}, err
	}

	s.metrics.ObserveUnlock(outcomeIssued)
	s.logger.Info("resource unlocked", "session_id", sessionID, "resource", resourceID, "case_id", res.CaseID)
	return UnlockResult{Resource: resourceID, S3URL: url, ResourceType: res.ResourceType}, nil
}
