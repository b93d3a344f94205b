package cryptocore

import "errors"

var (
	ErrDecrypt         = errors.New("cryptocore: message authentication failed")
	ErrUnwrap          = errors.New("cryptocore: room key unwrap failed")
	ErrInvalidKeyPair  = errors.New("cryptocore: invalid device key pair")
	ErrInvalidEncoding = errors.New("cryptocore: invalid base64 input")
)
