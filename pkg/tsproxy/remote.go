package tsproxy

import (
	"context"
	"encoding/json"

	"github.com/gorilla/websocket"
)

// RemoteStream is one open connection to the remote streaming service
// for the lifetime of a single AgentRequest fulfillment.
type RemoteStream interface {
	Send(req ApiRequest) error
	Recv() (*TimeSeriesMessage, error)
	Close() error
}

// Dialer opens a RemoteStream to the remote streaming service.
// Abstracted so tests can substitute a fake remote.
type Dialer interface {
	Dial(ctx context.Context, remoteURL, session string) (RemoteStream, error)
}

// WSDialer dials the remote streaming service over a real WebSocket,
// authenticating with session as a query parameter.
type WSDialer struct{}

func (WSDialer) Dial(ctx context.Context, remoteURL, session string) (RemoteStream, error) {
	header := map[string][]string{}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, remoteURL+"?session="+session, header)
	if err != nil {
		return nil, err
	}
	return &wsRemoteStream{conn: conn}, nil
}

type wsRemoteStream struct {
	conn *websocket.Conn
}

func (s *wsRemoteStream) Send(req ApiRequest) error {
	return s.conn.WriteJSON(req)
}

func (s *wsRemoteStream) Recv() (*TimeSeriesMessage, error) {
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	var msg TimeSeriesMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *wsRemoteStream) Close() error {
	return s.conn.Close()
}
