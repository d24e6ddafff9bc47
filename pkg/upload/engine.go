package upload

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dustin/go-humanize"

	"github.com/pennsieve/agent/internal/agenterrors"
	"github.com/pennsieve/agent/internal/logger"
	"github.com/pennsieve/agent/internal/metrics"
	"github.com/pennsieve/agent/pkg/platform"
	"github.com/pennsieve/agent/pkg/registry"
	"github.com/pennsieve/agent/pkg/statushub"
	"github.com/pennsieve/agent/pkg/store"
)

const (
	sessionValidity    = 90 * time.Minute
	stallRetryAfter    = 1 * time.Hour
	agedFailAfter      = 8 * time.Hour
	maxGroupRetries    = 10
	unauthorizedDelay  = 2 * time.Second
	defaultChunkSize   = 8 << 20 // 8MiB
	defaultParallelism = 4
)

// FileReader opens a local file's chunk for reading, abstracted so
// tests can substitute an in-memory source.
type FileReader interface {
	ReadChunk(path string, chunkIndex int, chunkSize int64) ([]byte, error)
	Size(path string) (int64, error)
}

// Engine drives UploadRecord rows to completion, one step at a time.
type Engine struct {
	store       *store.Store
	objects     ObjectStore
	platform    platform.Client
	files       FileReader
	bucket      string
	parallelism int

	sender  registry.EventSender
	metrics *metrics.UploadMetrics

	// stallRetry/agedFail mirror the package-level stallRetryAfter/
	// agedFailAfter constants; they are fields (not consts) so tests
	// can shrink them instead of sleeping for a real hour.
	stallRetry time.Duration
	agedFail   time.Duration

	mu        sync.Mutex
	session   *platform.Session
	sessionAt time.Time
	profile   string
}

// New constructs an Engine. sender/m may be nil.
func New(st *store.Store, objects ObjectStore, plat platform.Client, files FileReader, bucket string, parallelism int, sender registry.EventSender, m *metrics.UploadMetrics) *Engine {
	if parallelism <= 0 {
		parallelism = defaultParallelism
	}
	return &Engine{
		store: st, objects: objects, platform: plat, files: files,
		bucket: bucket, parallelism: parallelism, sender: sender, metrics: m,
		stallRetry: stallRetryAfter, agedFail: agedFailAfter,
		profile: "default",
	}
}

// Start resets any InProgress rows left over from a crashed previous
// run back to Queued, per spec.md §4.5.
func (e *Engine) Start(ctx context.Context) error {
	n, err := e.store.ResetStalledUploads(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		logger.Info("reset stalled uploads on startup", "count", n)
	}
	return nil
}

// importGroup is the derived ImportGroup: every UploadRecord sharing
// one import_id.
type importGroup struct {
	importID string
	files    []store.UploadRecord
}

func groupByImport(records []store.UploadRecord) []importGroup {
	byID := make(map[string][]store.UploadRecord)
	var order []string
	for _, r := range records {
		if _, ok := byID[r.ImportID]; !ok {
			order = append(order, r.ImportID)
		}
		byID[r.ImportID] = append(byID[r.ImportID], r)
	}
	groups := make([]importGroup, 0, len(order))
	for _, id := range order {
		groups = append(groups, importGroup{importID: id, files: byID[id]})
	}
	return groups
}

// oldestTimestamp returns the earliest created_at (or updated_at)
// among a group's rows, used to evaluate should_fail/should_retry
// against the group as a whole.
func oldestTimestamp(files []store.UploadRecord, field func(store.UploadRecord) string) time.Time {
	var oldest time.Time
	for i, f := range files {
		t, err := time.Parse(time.RFC3339Nano, field(f))
		if err != nil {
			continue
		}
		if i == 0 || t.Before(oldest) {
			oldest = t
		}
	}
	return oldest
}

func shouldFail(g importGroup, now time.Time, agedFail time.Duration) bool {
	created := oldestTimestamp(g.files, func(r store.UploadRecord) string { return r.CreatedAt })
	return created.Add(agedFail).Before(now)
}

func shouldRetry(g importGroup, now time.Time, stallRetry time.Duration) bool {
	updated := oldestTimestamp(g.files, func(r store.UploadRecord) string { return r.UpdatedAt })
	return updated.Add(stallRetry).Before(now)
}

// Step runs one pass of the engine: snapshot Queued and InProgress
// rows, partition stalled groups into fail/retry, and upload every
// group that is ready to proceed.
func (e *Engine) Step(ctx context.Context) error {
	queued, err := e.store.ListQueuedUploads(ctx)
	if err != nil {
		return err
	}
	inProgress, err := e.store.ListInProgressUploads(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	var toFail, toRetry []importGroup
	for _, g := range groupByImport(inProgress) {
		switch {
		case shouldFail(g, now, e.agedFail):
			toFail = append(toFail, g)
		case shouldRetry(g, now, e.stallRetry):
			toRetry = append(toRetry, g)
		}
	}

	for _, g := range toFail {
		logger.Warn("import group aged out, marking failed", "import_id", g.importID)
		if err := e.store.UpdateImportStatusAndProgress(ctx, g.importID, store.StatusFailed, 0); err != nil {
			logger.Error("failed to mark aged import group failed", "import_id", g.importID, "error", err)
			continue
		}
		e.sendEvent(statushub.NewUploadErrorEvent(g.importID, "upload aged out after 8 hours without progress"))
	}

	queuedGroups := groupByImport(queued)
	groupsToUpload := append(queuedGroups, toRetry...)
	if len(groupsToUpload) == 0 {
		return nil
	}

	if err := e.refreshSessionIfNeeded(ctx); err != nil {
		logger.Error("failed to refresh platform session", "error", err)
		return err
	}

	for _, g := range groupsToUpload {
		e.upload(ctx, g)
	}
	return nil
}

func (e *Engine) sendEvent(event any) {
	if e.sender != nil {
		e.sender.SendEvent(event)
	}
}

// refreshSessionIfNeeded logs in again if there is no cached session
// or the cached one is older than 90 minutes, per spec.md §4.1's
// UserRecord.SessionValid rule.
func (e *Engine) refreshSessionIfNeeded(ctx context.Context) error {
	e.mu.Lock()
	valid := e.session != nil && time.Since(e.sessionAt) < sessionValidity
	e.mu.Unlock()
	if valid {
		return nil
	}
	return e.refreshSession(ctx)
}

func (e *Engine) refreshSession(ctx context.Context) error {
	sess, err := e.platform.Login(ctx, e.profile)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.session = sess
	e.sessionAt = time.Now()
	e.mu.Unlock()
	return nil
}

func (e *Engine) currentSession() *platform.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

// Session returns a currently-valid platform session, logging in
// again first if the cached one is missing or stale. Used by the
// direct QueueUpload path, which needs a session to call the
// platform's preview endpoint outside of a Step.
func (e *Engine) Session(ctx context.Context) (*platform.Session, error) {
	if err := e.refreshSessionIfNeeded(ctx); err != nil {
		return nil, err
	}
	return e.currentSession(), nil
}

// upload drives one import group's files through multipart upload and
// the platform's complete-upload call, retrying up to maxGroupRetries
// times on a 401 from either object storage or the platform.
func (e *Engine) upload(ctx context.Context, g importGroup) {
	append_, mixed := deriveAppend(g.files)
	if mixed {
		logger.Warn("import group mixes append values, using false", "import_id", g.importID)
	}

	if err := e.store.UpdateImportStatusAndProgress(ctx, g.importID, store.StatusInProgress, 0); err != nil {
		logger.Error("failed to transition group to in-progress", "import_id", g.importID, "error", err)
		return
	}
	if e.metrics != nil {
		e.metrics.RecordGroupStarted()
	}

	var lastErr error
	for attempt := 0; attempt <= maxGroupRetries; attempt++ {
		lastErr = e.uploadAllFiles(ctx, g)
		if lastErr == nil || !agenterrors.Is(lastErr, agenterrors.CodeAuthRequired) {
			break
		}

		logger.Warn("upload group got 401, refreshing session and retrying", "import_id", g.importID, "attempt", attempt+1)
		if e.metrics != nil {
			e.metrics.RecordRetry()
		}

		timer := time.NewTimer(unauthorizedDelay)
		cancelled := false
		select {
		case <-ctx.Done():
			timer.Stop()
			lastErr = ctx.Err()
			cancelled = true
		case <-timer.C:
		}
		if cancelled {
			break
		}

		e.mu.Lock()
		e.session = nil
		e.mu.Unlock()
		if err := e.refreshSession(ctx); err != nil {
			lastErr = err
			break
		}
	}

	if lastErr != nil {
		e.failGroup(ctx, g, lastErr)
		return
	}

	sess := e.currentSession()
	dataset, pkg := groupDataset(g.files)
	err := e.platform.CompleteUpload(ctx, sess, platform.CompleteUploadRequest{
		OrganizationID: g.files[0].OrganizationID,
		ImportID:       g.importID,
		Dataset:        dataset,
		Package:        pkg,
		Append:         append_,
	})
	if err != nil {
		e.failGroup(ctx, g, err)
		return
	}

	if err := e.store.UpdateImportStatusAndProgress(ctx, g.importID, store.StatusCompleted, 100); err != nil {
		logger.Error("failed to mark group completed", "import_id", g.importID, "error", err)
		return
	}
	if e.metrics != nil {
		e.metrics.RecordGroupCompleted()
	}
	e.sendEvent(statushub.NewUploadCompleteEvent(g.importID))
}

func (e *Engine) failGroup(ctx context.Context, g importGroup, cause error) {
	logger.Error("upload group failed", "import_id", g.importID, "error", cause)
	if err := e.store.UpdateImportStatus(ctx, g.importID, store.StatusFailed); err != nil {
		logger.Error("failed to mark group failed", "import_id", g.importID, "error", err)
	}
	if e.metrics != nil {
		e.metrics.RecordGroupFailed()
	}
	e.sendEvent(statushub.NewUploadErrorEvent(g.importID, cause.Error()))
}

// uploadAllFiles streams every file in the group in parallel, up to
// e.parallelism concurrent files.
func (e *Engine) uploadAllFiles(ctx context.Context, g importGroup) error {
	sem := make(chan struct{}, e.parallelism)
	var wg sync.WaitGroup
	errs := make([]error, len(g.files))

	for i, f := range g.files {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, f store.UploadRecord) {
			defer wg.Done()
			defer func() { <-sem }()
			errs[i] = e.uploadFile(ctx, g.importID, f)
		}(i, f)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// uploadFile streams one record's file in chunk_size parts to object
// storage, resuming an existing multipart_upload_id when present.
func (e *Engine) uploadFile(ctx context.Context, importID string, f store.UploadRecord) error {
	size, err := e.files.Size(f.FilePath)
	if err != nil {
		return agenterrors.Wrap(agenterrors.CodeIO, "statting upload file", err)
	}

	chunkSize := defaultChunkSize
	if f.ChunkSize.Valid && f.ChunkSize.Int64 > 0 {
		chunkSize = int(f.ChunkSize.Int64)
	}

	key := objectKey(f)
	uploadID := f.MultipartUploadID.String
	if uploadID == "" {
		uploadID, err = e.objects.CreateMultipartUpload(ctx, e.bucket, key)
		if err != nil {
			return err
		}
	}

	numChunks := int((size + int64(chunkSize) - 1) / int64(chunkSize))
	if numChunks == 0 {
		numChunks = 1
	}

	parts := make([]types.CompletedPart, 0, numChunks)
	var sent int64
	for i := 0; i < numChunks; i++ {
		data, err := e.files.ReadChunk(f.FilePath, i, int64(chunkSize))
		if err != nil {
			_ = e.objects.AbortMultipartUpload(ctx, e.bucket, key, uploadID)
			return agenterrors.Wrap(agenterrors.CodeIO, "reading upload chunk", err)
		}
		partNumber := int32(i + 1)
		etag, err := e.objects.UploadPart(ctx, e.bucket, key, uploadID, partNumber, data)
		if err != nil {
			return err
		}
		parts = append(parts, types.CompletedPart{ETag: &etag, PartNumber: &partNumber})
		sent += int64(len(data))

		if e.metrics != nil {
			e.metrics.RecordPart(int64(len(data)))
		}
		e.sendEvent(statushub.NewUploadProgressEvent(importID, f.FilePath, i+1, sent, size))
		if err := e.store.UpdateFileProgress(ctx, f.ID, percentOf(sent, size)); err != nil && agenterrors.CodeOf(err) != agenterrors.CodeInvalidArgument {
			return err
		}
	}

	if err := e.objects.CompleteMultipartUpload(ctx, e.bucket, key, uploadID, parts); err != nil {
		return err
	}

	logger.Info("upload file completed", "path", f.FilePath, "size", humanize.Bytes(uint64(size)))
	return nil
}

func percentOf(sent, size int64) int64 {
	if size <= 0 {
		return 100
	}
	p := sent * 100 / size
	if p > 100 {
		p = 100
	}
	return p
}

func objectKey(f store.UploadRecord) string {
	return fmt.Sprintf("%s/%s/%d", f.ImportID, f.DatasetID, f.ID)
}

// deriveAppend returns all(files.append); mixed is true if the group
// does not unanimously agree.
func deriveAppend(files []store.UploadRecord) (value bool, mixed bool) {
	if len(files) == 0 {
		return false, false
	}
	first := files[0].Append
	for _, f := range files[1:] {
		if f.Append != first {
			return false, true
		}
	}
	return first, false
}

func majorityAppend(files []store.UploadRecord) bool {
	trueCount := 0
	for _, f := range files {
		if f.Append {
			trueCount++
		}
	}
	return trueCount*2 > len(files)
}

func groupDataset(files []store.UploadRecord) (dataset, pkg string) {
	if len(files) == 0 {
		return "", ""
	}
	dataset = files[0].DatasetID
	if files[0].PackageID.Valid {
		pkg = files[0].PackageID.String
	}
	return dataset, pkg
}
