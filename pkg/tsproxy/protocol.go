package tsproxy

// RequestChannel names one channel and its sample rate within an
// AgentRequest.
type RequestChannel struct {
	ID   string  `json:"id"`
	Rate float64 `json:"rate"`
}

// AgentRequest is the client-facing, cache-aware request shape:
// {session, packageId, channels:[{id, rate}], startTime, endTime,
// chunkSize, useCache?} per spec.md §4.8.
type AgentRequest struct {
	Session   string           `json:"session"`
	PackageID string           `json:"packageId"`
	Channels  []RequestChannel `json:"channels"`
	StartTime int64            `json:"startTime"`
	EndTime   int64            `json:"endTime"`
	ChunkSize int64            `json:"chunkSize"`
	UseCache  bool             `json:"useCache,omitempty"`
}

// ApiRequest is the generic single-channel request shape TSProxy sends
// to the remote streaming service per uncached page, and that a client
// may also send directly for an uncached passthrough fetch.
type ApiRequest struct {
	Session   string `json:"session"`
	PackageID string `json:"packageId"`
	Channel   string `json:"channel"`
	StartTime int64  `json:"startTime"`
	EndTime   int64  `json:"endTime"`
}

// clientMessage is the union of AgentRequest and ApiRequest as they
// arrive over the wire: a non-empty Channels field means AgentRequest,
// a non-empty Channel field (and no Channels) means a direct
// ApiRequest passthrough.
type clientMessage struct {
	Session   string           `json:"session"`
	PackageID string           `json:"packageId"`
	Channels  []RequestChannel `json:"channels,omitempty"`
	Channel   string           `json:"channel,omitempty"`
	StartTime int64            `json:"startTime"`
	EndTime   int64            `json:"endTime"`
	ChunkSize int64            `json:"chunkSize"`
	UseCache  bool             `json:"useCache,omitempty"`
}

func (m clientMessage) isAgentRequest() bool {
	return len(m.Channels) > 0
}

func (m clientMessage) toAgentRequest() AgentRequest {
	return AgentRequest{
		Session: m.Session, PackageID: m.PackageID, Channels: m.Channels,
		StartTime: m.StartTime, EndTime: m.EndTime, ChunkSize: m.ChunkSize, UseCache: m.UseCache,
	}
}

func (m clientMessage) toAPIRequest() ApiRequest {
	return ApiRequest{
		Session: m.Session, PackageID: m.PackageID, Channel: m.Channel,
		StartTime: m.StartTime, EndTime: m.EndTime,
	}
}

// TimeSeriesMessage is one unit of the remote streaming service's
// response. Real wire format is protobuf (TimeSeriesMessage in the
// original's src/ps/proto/timeseries.rs); here it is a JSON-tagged Go
// struct sent over a binary WebSocket frame, a deliberate
// simplification documented in DESIGN.md.
type TimeSeriesMessage struct {
	Source             string    `json:"source"`
	PageStart          int64     `json:"pageStart"`
	PageEnd            int64     `json:"pageEnd"`
	StartTs            int64     `json:"startTs"`
	SamplePeriod       int64     `json:"samplePeriod"`
	Data               []float64 `json:"data"`
	TotalResponses     int       `json:"totalResponses"`
	ResponseSequenceID int       `json:"responseSequenceId"`
}

// stateCode is one of the four state values TSProxy reports to the
// client while fulfilling an AgentRequest.
type stateCode string

const (
	stateNotReady stateCode = "NOT_READY"
	stateReady    stateCode = "READY"
	stateError    stateCode = "ERROR"
	stateDone     stateCode = "DONE"
)

// agentResponse is the envelope sent back to the client: either a
// state transition or one chunk of data. Real wire format is a
// protobuf AgentTimeSeriesResponse{state|chunk} oneof (spec.md §6);
// here both are JSON, chunks distinguished from state frames by
// WebSocket opcode (binary for chunks, text for state).
type agentResponse struct {
	Code        stateCode `json:"code"`
	Description string    `json:"description,omitempty"`
}

// chunkFrame is the binary payload for one drained CacheEngine chunk.
type chunkFrame struct {
	Points map[string][]chunkPoint `json:"points"`
}

type chunkPoint struct {
	TimeUs int64   `json:"timeUs"`
	Value  float64 `json:"value"`
}
