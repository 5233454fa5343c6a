// Package observability provides OpenTelemetry metrics and tracing for the insights API.
package observability

// Metric names (Prometheus / OpenTelemetry).
const (
	MetricNameHTTPRequests          = "insights_http_requests_total"
	MetricNameHTTPRequestDuration   = "insights_http_request_duration_seconds"
	MetricNameRequestBodyTooLarge   = "insights_request_body_too_large_total"
	MetricNameUploadsRejected       = "insights_uploads_rejected_total"
	MetricNameUploadBytes           = "insights_upload_bytes"
	MetricNameCacheLookups          = "insights_cache_lookups_total"
	MetricNameCacheLoadErrors       = "insights_cache_load_errors_total"
	MetricNamePipelineStageDuration = "insights_pipeline_stage_duration_seconds"
	MetricNamePipelineRuns          = "insights_pipeline_runs_total"
	MetricNamePostsGenerated        = "insights_posts_generated_total"
	MetricNameTopicsFound           = "insights_topics_found"
	MetricNameTranscriptionPolls    = "insights_transcription_polls"
	MetricNameVendorCalls           = "insights_vendor_calls_total"
	MetricNameVendorCallDuration    = "insights_vendor_call_duration_seconds"
	MetricNameChunksIndexed         = "insights_chunks_indexed_total"
	MetricNameJobOutcomes           = "insights_job_outcomes_total"
	MetricNameRiverQueueDepth       = "insights_river_queue_depth"
)

// Attribute keys.
const (
	AttrStage  = "stage"
	AttrStatus = "status"
	AttrVendor = "vendor"
	AttrOp     = "op"
	AttrKind   = "kind"
	AttrCache  = "cache"
	AttrResult = "result"
	AttrBody   = "body"
	AttrReason = "reason"
)

// AllowedStages are the topic pipeline stages reported on stage metrics.
var AllowedStages = map[string]bool{
	"transcribe": true,
	"embed":      true,
	"reduce":     true,
	"cluster":    true,
	"keywords":   true,
	"summarize":  true,
	"write_post": true,
	"image":      true,
	"persist":    true,
}

// AllowedVendors bounds the vendor attribute.
var AllowedVendors = map[string]bool{
	"gladia": true,
	"openai": true,
	"google": true,
	"minio":  true,
}

// AllowedStatuses for stage, vendor and job outcomes.
var AllowedStatuses = map[string]bool{
	"success":      true,
	"error":        true,
	"degraded":     true,
	"retry":        true,
	"failed_final": true,
}

// AllowedCacheNames bounds the cache attribute.
var AllowedCacheNames = map[string]bool{
	"rag_query_embedding": true,
}

// AllowedUploadRejections bounds the reason attribute on rejected audio uploads.
var AllowedUploadRejections = map[string]bool{
	"no_audio_part":   true,
	"unsupported_ext": true,
	"unreadable":      true,
}

// NormalizeReason returns value if in allowed, otherwise "other".
func NormalizeReason(value string, allowed map[string]bool) string {
	if allowed[value] {
		return value
	}

	return "other"
}

// NormalizeCacheName returns name if known, otherwise "other".
func NormalizeCacheName(name string) string {
	return NormalizeReason(name, AllowedCacheNames)
}
