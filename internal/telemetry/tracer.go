package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for agent operations.
// These follow OpenTelemetry semantic conventions where applicable.
const (
	// ========================================================================
	// Cache / timeseries attributes
	// ========================================================================
	AttrPackageID = "cache.package_id"
	AttrChannelID = "cache.channel_id"
	AttrPageID    = "cache.page_id"
	AttrPageSize  = "cache.page_size"
	AttrCacheHit  = "cache.hit"
	AttrCacheSize = "cache.size"

	// ========================================================================
	// Store attributes
	// ========================================================================
	AttrStoreTable = "store.table"
	AttrStoreOp    = "store.operation"

	// ========================================================================
	// Upload attributes
	// ========================================================================
	AttrUploadID   = "upload.id"
	AttrDatasetID  = "upload.dataset_id"
	AttrImportID   = "upload.import_id"
	AttrFilePath   = "upload.file_path"
	AttrChunkIndex = "upload.chunk_index"
	AttrChunkSize  = "upload.chunk_size"

	// ========================================================================
	// Storage backend attributes
	// ========================================================================
	AttrBucket = "storage.bucket"
	AttrKey    = "storage.key"
	AttrRegion = "storage.region"

	// ========================================================================
	// Proxy attributes
	// ========================================================================
	AttrClientAddr = "client.address"
	AttrUpstream   = "proxy.upstream"
)

// Span names for operations.
// Format: <component>.<operation>
const (
	SpanStoreQuery     = "store.query"
	SpanStoreExec      = "store.exec"
	SpanStoreMigrate   = "store.migrate"
	SpanCacheLookup    = "cache.lookup"
	SpanCacheWrite     = "cache.write"
	SpanCacheEvict     = "cache.evict"
	SpanCollectorSweep = "collector.sweep"
	SpanUploadBegin    = "upload.begin"
	SpanUploadPart     = "upload.part"
	SpanUploadComplete = "upload.complete"
	SpanProxyRequest   = "proxy.request"
	SpanTSProxyStream  = "tsproxy.stream"
)

// PackageID returns an attribute for the platform package identifier.
func PackageID(id string) attribute.KeyValue {
	return attribute.String(AttrPackageID, id)
}

// ChannelID returns an attribute for the timeseries channel identifier.
func ChannelID(id string) attribute.KeyValue {
	return attribute.String(AttrChannelID, id)
}

// PageID returns an attribute for a cache page identifier.
func PageID(id string) attribute.KeyValue {
	return attribute.String(AttrPageID, id)
}

// CacheHit returns an attribute for cache hit indicator.
func CacheHit(hit bool) attribute.KeyValue {
	return attribute.Bool(AttrCacheHit, hit)
}

// CacheSize returns an attribute for the current cache size in bytes.
func CacheSize(size uint64) attribute.KeyValue {
	return attribute.Int64(AttrCacheSize, int64(size))
}

// StoreTable returns an attribute for the table being queried.
func StoreTable(name string) attribute.KeyValue {
	return attribute.String(AttrStoreTable, name)
}

// UploadID returns an attribute for an upload_record id.
func UploadID(id int64) attribute.KeyValue {
	return attribute.Int64(AttrUploadID, id)
}

// DatasetID returns an attribute for a platform dataset id.
func DatasetID(id string) attribute.KeyValue {
	return attribute.String(AttrDatasetID, id)
}

// ImportID returns an attribute for an import group identifier.
func ImportID(id string) attribute.KeyValue {
	return attribute.String(AttrImportID, id)
}

// FilePath returns an attribute for the local file path being uploaded.
func FilePath(path string) attribute.KeyValue {
	return attribute.String(AttrFilePath, path)
}

// ChunkIndex returns an attribute for a multipart chunk's sequence index.
func ChunkIndex(i int) attribute.KeyValue {
	return attribute.Int(AttrChunkIndex, i)
}

// Bucket returns an attribute for the S3 bucket name.
func Bucket(name string) attribute.KeyValue {
	return attribute.String(AttrBucket, name)
}

// StorageKey returns an attribute for the S3 object key.
func StorageKey(key string) attribute.KeyValue {
	return attribute.String(AttrKey, key)
}

// ClientAddr returns an attribute for a proxy client's remote address.
func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

// StartCacheSpan starts a span for a cache operation.
func StartCacheSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, "cache."+operation, trace.WithAttributes(attrs...))
}

// StartStoreSpan starts a span for a Store operation.
func StartStoreSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, "store."+operation, trace.WithAttributes(attrs...))
}

// StartUploadSpan starts a span for an upload engine operation.
func StartUploadSpan(ctx context.Context, operation string, uploadID int64, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{UploadID(uploadID)}, attrs...)
	return StartSpan(ctx, "upload."+operation, trace.WithAttributes(allAttrs...))
}
