package upload

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/pennsieve/agent/internal/agenterrors"
	"github.com/pennsieve/agent/pkg/platform"
)

// fakeObjectStore is an in-memory ObjectStore test double. unauthorizedFor
// counts how many UploadPart calls across the whole store should return a
// 401-shaped error before succeeding, simulating an expired credential.
type fakeObjectStore struct {
	mu               sync.Mutex
	unauthorizedFor  int
	uploadCalls      int
	completedUploads []string
	abortedUploads   []string
	parts            map[string][][]byte
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{parts: make(map[string][][]byte)}
}

func (f *fakeObjectStore) CreateMultipartUpload(ctx context.Context, bucket, key string) (string, error) {
	return "upload-" + key, nil
}

func (f *fakeObjectStore) UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int32, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploadCalls++
	if f.unauthorizedFor > 0 {
		f.unauthorizedFor--
		return "", agenterrors.New(agenterrors.CodeAuthRequired, "expired credentials")
	}
	f.parts[key] = append(f.parts[key], data)
	return "etag", nil
}

func (f *fakeObjectStore) CompleteMultipartUpload(ctx context.Context, bucket, key, uploadID string, parts []types.CompletedPart) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completedUploads = append(f.completedUploads, key)
	return nil
}

func (f *fakeObjectStore) AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.abortedUploads = append(f.abortedUploads, key)
	return nil
}

// fakePlatform is an in-memory platform.Client test double.
type fakePlatform struct {
	mu             sync.Mutex
	logins         int
	loginErr       error
	completeErr    error
	completedGroup *platform.CompleteUploadRequest
	previewFiles   []platform.PreviewedFile
	previewErr     error
}

func (f *fakePlatform) Login(ctx context.Context, profile string) (*platform.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins++
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &platform.Session{Token: "tok", OrganizationID: "N:organization:1"}, nil
}

func (f *fakePlatform) PreviewUpload(ctx context.Context, session *platform.Session, req platform.PreviewRequest) ([]platform.PreviewedFile, error) {
	if f.previewErr != nil {
		return nil, f.previewErr
	}
	return f.previewFiles, nil
}

func (f *fakePlatform) CompleteUpload(ctx context.Context, session *platform.Session, req platform.CompleteUploadRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completedGroup = &req
	return f.completeErr
}

// fakeFiles is an in-memory FileReader/FileExpander test double.
type fakeFiles struct {
	sizes map[string]int64
	dirs  map[string][]string
}

func newFakeFiles() *fakeFiles {
	return &fakeFiles{sizes: make(map[string]int64), dirs: make(map[string][]string)}
}

func (f *fakeFiles) Size(path string) (int64, error) {
	return f.sizes[path], nil
}

func (f *fakeFiles) ReadChunk(path string, chunkIndex int, chunkSize int64) ([]byte, error) {
	size := f.sizes[path]
	start := int64(chunkIndex) * chunkSize
	if start >= size {
		return nil, nil
	}
	end := start + chunkSize
	if end > size {
		end = size
	}
	return make([]byte, end-start), nil
}

func (f *fakeFiles) Expand(path string, recursive bool) ([]string, error) {
	if children, ok := f.dirs[path]; ok {
		if !recursive {
			return nil, nil
		}
		return children, nil
	}
	return []string{path}, nil
}
