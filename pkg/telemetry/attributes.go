package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Span attribute keys.
const (
	AttrRatingKey   = "rating.key"
	AttrRatingFound = "rating.found"

	AttrEngineOutcome = "engine.outcome"
	AttrEngineStatus  = "engine.http_status"
	AttrEngineForce   = "engine.force"

	AttrSearchAttempts = "force_search.attempts"

	AttrComponentKey     = "component.key"
	AttrComponentNbPhase = "component.nbphase"
	AttrRowsWritten      = "configuration.rows"

	AttrUserID = "user.id"

	AttrServiceEngine      = "busbar.engine.url"
	AttrServiceStore       = "busbar.store.driver"
	AttrServiceForceSearch = "busbar.force_search.enabled"
	AttrServiceQuota       = "busbar.quota.enforced"
)

// ServiceAttributes describes how a rating service instance is wired.
func ServiceAttributes(engineURL, storeDriver string, forceSearch, quotaEnforced bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrServiceEngine, engineURL),
		attribute.String(AttrServiceStore, storeDriver),
		attribute.Bool(AttrServiceForceSearch, forceSearch),
		attribute.Bool(AttrServiceQuota, quotaEnforced),
	}
}

// RatingAttributes describes a rating lookup.
func RatingAttributes(key string, found bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrRatingKey, key),
		attribute.Bool(AttrRatingFound, found),
	}
}

// EngineAttributes describes one engine call.
func EngineAttributes(outcome string, status, force int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrEngineOutcome, outcome),
		attribute.Int(AttrEngineStatus, status),
		attribute.Int(AttrEngineForce, force),
	}
}

// ComponentAttributes identifies a catalog component.
func ComponentAttributes(key string, nbPhase int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrComponentKey, key),
		attribute.Int(AttrComponentNbPhase, nbPhase),
	}
}
