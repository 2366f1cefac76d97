package auth

import (
	"errors"
	"fmt"

	"github.com/ovaphlow/yatrik-auth/internal/account/entity"
)

var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrUnknownRole        = errors.New("unknown role")
	// ErrInvalidCredentials covers both "no such account" and "wrong password".
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountNotActive   = errors.New("account not active")
	ErrAccountSuspended   = errors.New("account suspended")
	ErrAccountLocked      = errors.New("account locked")

	// errChainHalted is returned by a probe that ends the chain without a match.
	errChainHalted = errors.New("probe chain halted")
)

// AccountNotActiveError carries the status that blocked the login.
type AccountNotActiveError struct {
	Status entity.Status
}

func (e *AccountNotActiveError) Error() string {
	return fmt.Sprintf("account is %s", e.Status)
}

func (e *AccountNotActiveError) Is(target error) bool {
	return target == ErrAccountNotActive
}
