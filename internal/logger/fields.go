package logger

import (
	"fmt"
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements for log aggregation and querying.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Component & Operation
	// ========================================================================
	KeyComponent = "component" // Worker/component name: store, cache, collector, upload, proxy, ts_proxy, status_hub
	KeyOperation = "operation" // Sub-operation name within a component

	// ========================================================================
	// Cache / Timeseries
	// ========================================================================
	KeyPackageID = "package_id" // Platform package identifier
	KeyChannelID = "channel_id" // Timeseries channel identifier
	KeyPageID    = "page_id"    // Cache page identifier (package_id/channel_id/page_size/index)
	KeyPageSize  = "page_size"  // Samples per cache page
	KeyHit       = "hit"        // Cache hit/miss boolean
	KeyEvicted   = "evicted"    // Eviction boolean/count

	// ========================================================================
	// Upload
	// ========================================================================
	KeyUploadID    = "upload_id"    // upload_record row id
	KeyDatasetID   = "dataset_id"   // Platform dataset identifier
	KeyImportID    = "import_id"    // Import group identifier
	KeyFilePath    = "file_path"    // Local file path being uploaded
	KeyChunkSize   = "chunk_size"   // Multipart chunk size in bytes
	KeyUploadState = "upload_state" // Upload record status

	// ========================================================================
	// I/O
	// ========================================================================
	KeyOffset       = "offset"        // Byte/sample offset
	KeyCount        = "count"         // Item/byte count requested
	KeyBytesRead    = "bytes_read"    // Actual bytes read
	KeyBytesWritten = "bytes_written" // Actual bytes written
	KeySize         = "size"          // Size in bytes

	// ========================================================================
	// Network
	// ========================================================================
	KeyClientIP   = "client_ip"   // Remote client address
	KeyRemoteAddr = "remote_addr" // Upstream platform address
	KeyPort       = "port"        // Local listen port

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyErrorCode  = "error_code"  // Typed error code
	KeyRetries    = "retries"     // Retry attempt count
)

// Err formats an error as a slog-compatible key/value pair. A nil error
// yields the empty attr, which handlers skip.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, fmt.Sprintf("%v", err))
}
