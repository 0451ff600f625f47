package protocol

// Typed message bodies. The transport treats bodies as opaque bytes;
// these codecs exist for the payloads the communication core itself
// must understand (return codes, reroutes, raw data forwarding) and for
// the job-step collaborator's request/response pair, which rides this
// layer without contributing any transport logic.

// Well-known return codes carried in ReturnCodeBody.
const (
	// RCSuccess is the zero success code.
	RCSuccess int32 = 0

	// RCInStandby signals the answering controller replica is not yet
	// in control. Callers with a backup configured should retry within
	// the failover window instead of surfacing an error.
	RCInStandby int32 = 2200
)

// ReturnCodeBody is the generic RPC result payload.
type ReturnCodeBody struct {
	RC int32
}

// EncodeReturnCode packs a return-code body.
func EncodeReturnCode(rc int32) []byte {
	p := &packer{}
	p.putU32(uint32(rc))
	return p.buf
}

// DecodeReturnCode unpacks a return-code body.
func DecodeReturnCode(body []byte) (*ReturnCodeBody, error) {
	r := &reader{buf: body}
	v, err := r.u32()
	if err != nil {
		return nil, err
	}
	return &ReturnCodeBody{RC: int32(v)}, nil
}

// ClusterRoute describes the working cluster a response redirects the
// caller to. The caller must re-resolve controller endpoints against it
// before retrying the original request.
type ClusterRoute struct {
	// Name is the target cluster name.
	Name string

	// Host is the target cluster's controller host.
	Host string

	// Port is the target cluster's controller port.
	Port uint16
}

// RerouteBody is the payload of a ResponseReroute message.
type RerouteBody struct {
	Cluster ClusterRoute
}

// EncodeReroute packs a reroute body.
func EncodeReroute(c ClusterRoute) []byte {
	p := &packer{}
	p.putString(c.Name)
	p.putString(c.Host)
	p.putU16(c.Port)
	return p.buf
}

// DecodeReroute unpacks a reroute body.
func DecodeReroute(body []byte) (*RerouteBody, error) {
	r := &reader{buf: body}
	var b RerouteBody
	var err error
	if b.Cluster.Name, err = r.str(); err != nil {
		return nil, err
	}
	if b.Cluster.Host, err = r.str(); err != nil {
		return nil, err
	}
	if b.Cluster.Port, err = r.u16(); err != nil {
		return nil, err
	}
	return &b, nil
}

// ForwardDataBody is the payload of a RequestForwardData message: an
// opaque blob fanned out to a node-local socket address on every target
// node.
type ForwardDataBody struct {
	// Address is the node-local socket path or address to deliver to.
	Address string

	// Data is the opaque payload.
	Data []byte
}

// EncodeForwardData packs a forward-data body.
func EncodeForwardData(address string, data []byte) []byte {
	p := &packer{}
	p.putString(address)
	p.putBytes(data)
	return p.buf
}

// DecodeForwardData unpacks a forward-data body.
func DecodeForwardData(body []byte) (*ForwardDataBody, error) {
	r := &reader{buf: body}
	var b ForwardDataBody
	var err error
	if b.Address, err = r.str(); err != nil {
		return nil, err
	}
	data, err := r.bytes()
	if err != nil {
		return nil, err
	}
	b.Data = append([]byte(nil), data...)
	return &b, nil
}

// StepCreateRequestBody is the job-step collaborator's create request.
// Allocation business logic lives outside this layer; only the wire
// shape is defined here.
type StepCreateRequestBody struct {
	JobID     uint32
	Name      string
	NodeCount uint32
	TaskCount uint32
	Nodelist  string
}

// EncodeStepCreateRequest packs a step-create request body.
func EncodeStepCreateRequest(b *StepCreateRequestBody) []byte {
	p := &packer{}
	p.putU32(b.JobID)
	p.putString(b.Name)
	p.putU32(b.NodeCount)
	p.putU32(b.TaskCount)
	p.putString(b.Nodelist)
	return p.buf
}

// DecodeStepCreateRequest unpacks a step-create request body.
func DecodeStepCreateRequest(body []byte) (*StepCreateRequestBody, error) {
	r := &reader{buf: body}
	var b StepCreateRequestBody
	var err error
	if b.JobID, err = r.u32(); err != nil {
		return nil, err
	}
	if b.Name, err = r.str(); err != nil {
		return nil, err
	}
	if b.NodeCount, err = r.u32(); err != nil {
		return nil, err
	}
	if b.TaskCount, err = r.u32(); err != nil {
		return nil, err
	}
	if b.Nodelist, err = r.str(); err != nil {
		return nil, err
	}
	return &b, nil
}

// StepCreateResponseBody is the job-step collaborator's create
// response.
type StepCreateResponseBody struct {
	JobID    uint32
	StepID   uint32
	Nodelist string
}

// EncodeStepCreateResponse packs a step-create response body.
func EncodeStepCreateResponse(b *StepCreateResponseBody) []byte {
	p := &packer{}
	p.putU32(b.JobID)
	p.putU32(b.StepID)
	p.putString(b.Nodelist)
	return p.buf
}

// DecodeStepCreateResponse unpacks a step-create response body.
func DecodeStepCreateResponse(body []byte) (*StepCreateResponseBody, error) {
	r := &reader{buf: body}
	var b StepCreateResponseBody
	var err error
	if b.JobID, err = r.u32(); err != nil {
		return nil, err
	}
	if b.StepID, err = r.u32(); err != nil {
		return nil, err
	}
	if b.Nodelist, err = r.str(); err != nil {
		return nil, err
	}
	return &b, nil
}
