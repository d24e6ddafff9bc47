package statushub

// Event is anything the hub can marshal to a tagged-union JSON frame
// for its connected clients. Every concrete event type below carries
// its "message" discriminator in an exported Message field, which its
// New* constructor sets to the type's fixed tag.
type Event interface {
	isEvent()
}

// ErrorEvent reports a generic, worker-attributed error.
type ErrorEvent struct {
	Message string `json:"message"` // always "error"
	Detail  string `json:"detail"`
}

func (ErrorEvent) isEvent() {}

// NewErrorEvent builds the generic error frame.
func NewErrorEvent(detail string) ErrorEvent {
	return ErrorEvent{Message: "error", Detail: detail}
}

// UploadErrorEvent reports an upload-specific failure.
type UploadErrorEvent struct {
	Message  string `json:"message"` // always "upload_error"
	ImportID string `json:"import_id"`
	Detail   string `json:"detail"`
}

func (UploadErrorEvent) isEvent() {}

// NewUploadErrorEvent builds the upload_error frame.
func NewUploadErrorEvent(importID, detail string) UploadErrorEvent {
	return UploadErrorEvent{Message: "upload_error", ImportID: importID, Detail: detail}
}

// IncomingProxyRequestEvent reports an HTTP proxy request as it is
// forwarded.
type IncomingProxyRequestEvent struct {
	Message string `json:"message"` // always "incoming_proxy_request"
	Method  string `json:"method"`
	Path    string `json:"path"`
}

func (IncomingProxyRequestEvent) isEvent() {}

// NewIncomingProxyRequestEvent builds the incoming_proxy_request frame.
func NewIncomingProxyRequestEvent(method, path string) IncomingProxyRequestEvent {
	return IncomingProxyRequestEvent{Message: "incoming_proxy_request", Method: method, Path: path}
}

// FileQueuedForUploadEvent reports that a file was accepted into the
// upload queue.
type FileQueuedForUploadEvent struct {
	Message  string `json:"message"` // always "file_queued_for_upload"
	ImportID string `json:"import_id"`
	Path     string `json:"path"`
}

func (FileQueuedForUploadEvent) isEvent() {}

// NewFileQueuedForUploadEvent builds the file_queued_for_upload frame.
func NewFileQueuedForUploadEvent(importID, path string) FileQueuedForUploadEvent {
	return FileQueuedForUploadEvent{Message: "file_queued_for_upload", ImportID: importID, Path: path}
}

// UploadProgressEvent reports incremental progress on a single file
// within an import group.
type UploadProgressEvent struct {
	Message       string `json:"message"` // always "upload_progress"
	ImportID      string `json:"import_id"`
	Path          string `json:"path"`
	PartNumber    int    `json:"part_number"`
	BytesSent     int64  `json:"bytes_sent"`
	Size          int64  `json:"size"`
	PercentDone   int    `json:"percent_done"`
	Done          bool   `json:"done"`
}

func (UploadProgressEvent) isEvent() {}

// NewUploadProgressEvent builds the upload_progress frame.
func NewUploadProgressEvent(importID, path string, partNumber int, bytesSent, size int64) UploadProgressEvent {
	percent := 0
	if size > 0 {
		percent = int(bytesSent * 100 / size)
	}
	return UploadProgressEvent{
		Message: "upload_progress", ImportID: importID, Path: path, PartNumber: partNumber,
		BytesSent: bytesSent, Size: size, PercentDone: percent, Done: bytesSent >= size,
	}
}

// SystemShutdownEvent tells every connected client the agent process
// is about to exit.
type SystemShutdownEvent struct {
	Message string `json:"message"` // always "system_shutdown"
	Reason  string `json:"reason"`
}

func (SystemShutdownEvent) isEvent() {}

// NewSystemShutdownEvent builds the system_shutdown frame.
func NewSystemShutdownEvent(reason string) SystemShutdownEvent {
	return SystemShutdownEvent{Message: "system_shutdown", Reason: reason}
}

// UploadFileProgress is one file's status within a per-file
// UploadWatchEvent.
type UploadFileProgress struct {
	ImportID string `json:"import_id"`
	Path     string `json:"path"`
	Status   string `json:"status"`
	Progress int64  `json:"progress"`
}

// UploadWatchEvent reports UploadWatcher's per-tick render, either as
// a per-file list (few-files mode) or a single aggregate (many-files
// mode).
type UploadWatchEvent struct {
	Message         string               `json:"message"` // always "upload_watch"
	Mode            string               `json:"mode"`    // "per_file" or "aggregate"
	Files           []UploadFileProgress `json:"files,omitempty"`
	Total           int                  `json:"total,omitempty"`
	Completed       int                  `json:"completed,omitempty"`
	Failed          int                  `json:"failed,omitempty"`
	AveragePercent  int64                `json:"average_percent,omitempty"`
}

func (UploadWatchEvent) isEvent() {}

// NewUploadWatchEvent builds the few-files (per-file) render.
func NewUploadWatchEvent(files []UploadFileProgress) UploadWatchEvent {
	return UploadWatchEvent{Message: "upload_watch", Mode: "per_file", Files: files}
}

// NewAggregateUploadWatchEvent builds the many-files (aggregate) render.
func NewAggregateUploadWatchEvent(total, completed, failed int, averagePercent int64) UploadWatchEvent {
	return UploadWatchEvent{
		Message: "upload_watch", Mode: "aggregate",
		Total: total, Completed: completed, Failed: failed, AveragePercent: averagePercent,
	}
}

// UploadCompleteEvent reports that an entire import group finished.
type UploadCompleteEvent struct {
	Message  string `json:"message"` // always "upload_complete"
	ImportID string `json:"import_id"`
}

func (UploadCompleteEvent) isEvent() {}

// NewUploadCompleteEvent builds the upload_complete frame.
func NewUploadCompleteEvent(importID string) UploadCompleteEvent {
	return UploadCompleteEvent{Message: "upload_complete", ImportID: importID}
}
