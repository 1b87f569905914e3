// SPDX-License-Identifier: MIT

package telemetry

import (
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys.
const (
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"

	VideoIDKey        = "coursecast.video_id"
	AssetKindKey      = "coursecast.asset_kind"
	DecisionKey       = "coursecast.entitlement.decision"
	TokenTTLKey       = "coursecast.token.ttl_seconds"
	TokenRemainingKey = "coursecast.token.remaining_seconds"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// TokenAttributes describes a token issue decision. The user id is not
// recorded.
func TokenAttributes(videoID, decision string, ttlSeconds int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(VideoIDKey, videoID),
		attribute.String(DecisionKey, decision),
	}
	if ttlSeconds > 0 {
		attrs = append(attrs, attribute.Int(TokenTTLKey, ttlSeconds))
	}
	return attrs
}

// AssetAttributes describes an authorized gateway request.
func AssetAttributes(videoID, kind string, remaining time.Duration) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(VideoIDKey, videoID),
		attribute.String(AssetKindKey, kind),
		attribute.Int(TokenRemainingKey, int(remaining/time.Second)),
	}
}
