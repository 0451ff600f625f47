// Package protocol implements the GridMesh binary wire format.
//
// Every control message travels as a single length-framed buffer laid
// out as:
//
//   - Header: version, flags, message type, body length, forward
//     descriptor, origin address, nested response list
//   - Credential: backend name plus packed credential bytes
//   - Body: the typed message payload
//
// Encoding is two-pass: the header is packed first with a zero body
// length, the credential and body follow, and the header's body length
// field is back-patched once the body size is known.
//
// Version checks fail closed. A version mismatch is reported as a
// distinct error class from a short or corrupt buffer because the
// receiver still attempts to recover the sender identity from the
// credential bytes for audit logging.
package protocol
