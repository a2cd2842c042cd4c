package rpu

import "errors"

var (
	// ErrOutOfData indicates the payload ended before a declared field
	// was fully read. Fatal for the NAL unit being parsed.
	ErrOutOfData = errors.New("rpu: out of data")

	// ErrMalformedCode indicates an Exp-Golomb or count field decoded to
	// an implausible value.
	ErrMalformedCode = errors.New("rpu: malformed code")

	// ErrCRCMismatch indicates the trailer checksum disagrees with the
	// computed value. Parse still returns the decoded record; callers may
	// proceed with a warning unless running in strict mode.
	ErrCRCMismatch = errors.New("rpu: CRC32 mismatch")

	// ErrTruncatedPayload indicates the payload is too short to contain
	// the CRC32 trailer and final rbsp byte.
	ErrTruncatedPayload = errors.New("rpu: truncated payload")

	// ErrUnsupportedProfile indicates a conversion does not apply to the
	// record's detected profile.
	ErrUnsupportedProfile = errors.New("rpu: unsupported profile")
)
