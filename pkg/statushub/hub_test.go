package statushub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeUploadRequester struct {
	lastReq QueueUploadRequest
	err     error
}

func (f *fakeUploadRequester) QueueUpload(ctx context.Context, req QueueUploadRequest) error {
	f.lastReq = req
	return f.err
}

func TestHubSendEventWithNoClientsDoesNotBlock(t *testing.T) {
	h := New(nil)
	assert.NotPanics(t, func() {
		h.SendEvent(NewErrorEvent("boom"))
	})
}

func TestHubConnectedAddrsEmptyInitially(t *testing.T) {
	h := New(nil)
	assert.Empty(t, h.ConnectedAddrs())
}

func TestHandleClientMessageUnknownTypeRepliesWithError(t *testing.T) {
	h := New(nil)
	c := &client{addr: "test", send: make(chan []byte, 4), done: make(chan struct{})}
	h.handleClientMessage(context.Background(), c, []byte(`{"message":"bogus","body":{}}`))

	select {
	case msg := <-c.send:
		assert.Contains(t, string(msg), "unknown message type")
	default:
		t.Fatal("expected an error frame to be queued")
	}
}

func TestHandleClientMessageQueueUploadForwardsToRequester(t *testing.T) {
	req := &fakeUploadRequester{}
	h := New(req)
	c := &client{addr: "test", send: make(chan []byte, 4), done: make(chan struct{})}

	body := `{"message":"queue_upload","body":{"dataset":"N:dataset:1","files":["/tmp/a"]}}`
	h.handleClientMessage(context.Background(), c, []byte(body))

	assert.Equal(t, "N:dataset:1", req.lastReq.Dataset)
	assert.Equal(t, []string{"/tmp/a"}, req.lastReq.Files)
}
