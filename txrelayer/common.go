package txrelayer

import (
	"strings"
	"time"
)

const (
	// destination node messages for a nonce that does not match the account
	NonceTooLowErrorMessage  = "nonce too low"
	NonceTooHighErrorMessage = "nonce too high"
	InvalidNonceErrorMessage = "invalid transaction nonce"

	connectErrWaitInterval       = time.Second
	defaultBookkeepingRetryDelay = 200 * time.Millisecond
)

type ITxRelayer interface {
	Start()
	Stop()
	WaitForShutdown()
	Name() string
}

func isNonceError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, NonceTooLowErrorMessage) ||
		strings.Contains(msg, NonceTooHighErrorMessage) ||
		strings.Contains(msg, InvalidNonceErrorMessage)
}
