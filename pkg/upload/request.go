package upload

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pennsieve/agent/internal/agenterrors"
	"github.com/pennsieve/agent/internal/logger"
	"github.com/pennsieve/agent/pkg/platform"
	"github.com/pennsieve/agent/pkg/registry"
	"github.com/pennsieve/agent/pkg/statushub"
	"github.com/pennsieve/agent/pkg/store"
)

// reservedPrefixes are platform-internal identifier prefixes a direct
// QueueUpload request must not name directly: a human types a dataset
// or package name, never its resolved platform id.
var reservedPrefixes = []string{"N:dataset:", "N:package:"}

// FileExpander turns a user-supplied path into the concrete file list
// to upload, optionally walking directories when recursive is set.
type FileExpander interface {
	Expand(path string, recursive bool) ([]string, error)
}

// sessionProvider is the subset of Engine the QueueUpload handler
// needs: a valid platform session, refreshed on demand.
type sessionProvider interface {
	Session(ctx context.Context) (*platform.Session, error)
}

// Handler implements statushub.UploadRequester: it validates and
// previews a direct "queue_upload" WebSocket request, then inserts
// the resulting upload_record rows for the engine's next Step to
// pick up.
type Handler struct {
	store    *store.Store
	platform platform.Client
	sessions sessionProvider
	expander FileExpander
	sender   registry.EventSender
}

// NewHandler constructs a Handler. sessions is ordinarily the Engine
// that will go on to process the inserted rows.
func NewHandler(st *store.Store, plat platform.Client, sessions sessionProvider, expander FileExpander, sender registry.EventSender) *Handler {
	return &Handler{store: st, platform: plat, sessions: sessions, expander: expander, sender: sender}
}

// QueueUpload validates req, expands its files, previews the upload
// group with the platform, and inserts one Queued upload_record per
// file.
func (h *Handler) QueueUpload(ctx context.Context, req statushub.QueueUploadRequest) error {
	if err := validateQueueUploadRequest(req); err != nil {
		return err
	}

	sess, err := h.sessions.Session(ctx)
	if err != nil {
		return err
	}

	recursive := req.Recursive != nil && *req.Recursive
	append_ := req.Append != nil && *req.Append

	var files []string
	for _, f := range req.Files {
		expanded, err := h.expander.Expand(f, recursive)
		if err != nil {
			return agenterrors.Wrap(agenterrors.CodeIO, "expanding upload path "+f, err)
		}
		files = append(files, expanded...)
	}
	if len(files) == 0 {
		return agenterrors.New(agenterrors.CodeInvalidArgument, "no files resolved from request")
	}

	pkg := ""
	if req.Package != nil {
		pkg = *req.Package
	}

	previewed, err := h.platform.PreviewUpload(ctx, sess, platform.PreviewRequest{
		Dataset:   req.Dataset,
		Package:   pkg,
		Files:     files,
		Recursive: recursive,
		Append:    append_,
	})
	if err != nil {
		return err
	}

	for _, pf := range previewed {
		var packageID sql.NullString
		if req.Package != nil {
			packageID = sql.NullString{String: *req.Package, Valid: true}
		}
		var chunkSize sql.NullInt64
		if pf.ChunkSize > 0 {
			chunkSize = sql.NullInt64{Int64: pf.ChunkSize, Valid: true}
		}
		var multipartID sql.NullString
		if pf.MultipartUploadID != "" {
			multipartID = sql.NullString{String: pf.MultipartUploadID, Valid: true}
		}

		_, err := h.store.InsertUpload(ctx, store.UploadRecord{
			FilePath:          pf.Path,
			DatasetID:         req.Dataset,
			PackageID:         packageID,
			ImportID:          pf.ImportID,
			Append:            append_,
			UploadService:     pf.UploadService,
			OrganizationID:    sess.OrganizationID,
			ChunkSize:         chunkSize,
			MultipartUploadID: multipartID,
		})
		if err != nil {
			logger.Error("failed to insert upload record", "path", pf.Path, "error", err)
			continue
		}
		if h.sender != nil {
			h.sender.SendEvent(statushub.NewFileQueuedForUploadEvent(pf.ImportID, pf.Path))
		}
	}
	return nil
}

func validateQueueUploadRequest(req statushub.QueueUploadRequest) error {
	if req.Dataset == "" {
		return agenterrors.New(agenterrors.CodeInvalidArgument, "dataset is required")
	}
	if isReservedIdentifier(req.Dataset) {
		return agenterrors.New(agenterrors.CodeInvalidArgument, "dataset must be a name, not a platform id")
	}
	if req.Package != nil && isReservedIdentifier(*req.Package) {
		return agenterrors.New(agenterrors.CodeInvalidArgument, "package must be a name, not a platform id")
	}
	if len(req.Files) == 0 {
		return agenterrors.New(agenterrors.CodeInvalidArgument, "at least one file is required")
	}
	return nil
}

func isReservedIdentifier(s string) bool {
	for _, prefix := range reservedPrefixes {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}
