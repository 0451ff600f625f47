package protocol

import "strconv"

// MsgType identifies the typed payload carried in a message body.
type MsgType uint16

// Message types. Numbering is grouped by subsystem: 1xxx node control,
// 5xxx job-step traffic, 8xxx generic responses, 9xxx synthetic types
// that never leave the local process.
const (
	TypeInvalid MsgType = 0

	RequestNodeRegistration MsgType = 1001
	RequestPing             MsgType = 1008
	RequestShutdown         MsgType = 1009

	RequestJobStepCreate MsgType = 5001
	ResponseJobStepCreate MsgType = 5002
	RequestCancelJobStep  MsgType = 5005
	RequestForwardData    MsgType = 5026

	ResponseReturnCode MsgType = 8001
	ResponseReroute    MsgType = 8002

	// ResponseForwardFailed marks a synthetic response entry for a node
	// whose branch never answered.
	ResponseForwardFailed MsgType = 9001
)

var msgTypeNames = map[MsgType]string{
	TypeInvalid:             "INVALID",
	RequestNodeRegistration: "REQUEST_NODE_REGISTRATION",
	RequestPing:             "REQUEST_PING",
	RequestShutdown:         "REQUEST_SHUTDOWN",
	RequestJobStepCreate:    "REQUEST_JOB_STEP_CREATE",
	ResponseJobStepCreate:   "RESPONSE_JOB_STEP_CREATE",
	RequestCancelJobStep:    "REQUEST_CANCEL_JOB_STEP",
	RequestForwardData:      "REQUEST_FORWARD_DATA",
	ResponseReturnCode:      "RESPONSE_RETURN_CODE",
	ResponseReroute:         "RESPONSE_REROUTE",
	ResponseForwardFailed:   "RESPONSE_FORWARD_FAILED",
}

// String returns the symbolic name of the message type, or the numeric
// value for unknown types.
func (t MsgType) String() string {
	if s, ok := msgTypeNames[t]; ok {
		return s
	}
	return "MSG_TYPE_" + strconv.Itoa(int(t))
}
