package errno

import "errors"

// Errno defines the error code logic
type Errno struct {
	Code    int
	Message string
}

func (e Errno) Error() string {
	return e.Message
}

// Decode tries to convert an error to Errno. Wrapped errors are searched, so
// fmt.Errorf("...: %w", errno.ErrStaleNonce) still decodes to its code; the
// message returned is always the full error text.
func Decode(err error) (int, string) {
	if err == nil {
		return OK.Code, OK.Message
	}

	var typed Errno
	if errors.As(err, &typed) {
		return typed.Code, err.Error()
	}
	var ptr *Errno
	if errors.As(err, &ptr) && ptr != nil {
		return ptr.Code, err.Error()
	}
	return InternalError.Code, err.Error()
}

// Common Errors
var (
	OK            = Errno{Code: 0, Message: "Success"}
	InternalError = Errno{Code: 10001, Message: "Internal error"}
	ErrConfig     = Errno{Code: 10002, Message: "Invalid configuration"}
	ErrKeypair    = Errno{Code: 10003, Message: "Keypair unavailable"}
	ErrInput      = Errno{Code: 10004, Message: "Invalid input"}
)

// Store Errors (201xx)
var (
	ErrStoreNotFound = Errno{Code: 20101, Message: "key not found"}
	ErrStoreCorrupt  = Errno{Code: 20102, Message: "store file is corrupt"}
	ErrStoreIO       = Errno{Code: 20103, Message: "store unavailable"}
)

// Ledger Query Errors (202xx)
var (
	ErrAccountNotFound  = Errno{Code: 20201, Message: "account not found"}
	ErrMalformedAccount = Errno{Code: 20202, Message: "account is not a nonce account"}
	ErrTransport        = Errno{Code: 20203, Message: "ledger transport failure"}
)

// Provisioning Errors (203xx)
var (
	ErrProvisionSubmission = Errno{Code: 20301, Message: "nonce account creation failed"}
	ErrRegistryWrite       = Errno{Code: 20302, Message: "nonce account created but not registered"}
	ErrProvisionBusy       = Errno{Code: 20303, Message: "nonce account is being created by another process"}
	ErrNotAdoptable        = Errno{Code: 20304, Message: "account cannot be adopted as nonce account"}
)

// Durable Transaction Errors (204xx)
var (
	ErrNonceAccountMissing = Errno{Code: 20401, Message: "no nonce account registered for identity"}
	ErrQuery               = Errno{Code: 20402, Message: "nonce query failed"}
	ErrStaleNonce          = Errno{Code: 20403, Message: "durable nonce is stale"}
	ErrTxSubmission        = Errno{Code: 20404, Message: "transaction submission failed"}
)
