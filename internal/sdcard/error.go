package sdcard

import (
	"errors"
	"fmt"
)

var (
	// ErrBlockRange occurs when a read would cross the end of a block.
	ErrBlockRange = errors.New("read exceeds block")

	// ErrNotIdle occurs when the card never reports the idle state after
	// the go-idle command.
	ErrNotIdle = errors.New("card did not enter idle state")

	// ErrCmd8 occurs when the interface condition command gets neither an
	// idle nor an illegal-command response.
	ErrCmd8 = errors.New("unexpected interface condition response")

	// ErrBadEcho occurs when the interface condition echo pattern does not
	// come back unchanged.
	ErrBadEcho = errors.New("interface condition echo mismatch")

	// ErrInitTimeout occurs when the card does not leave the idle state
	// within the initialization timeout.
	ErrInitTimeout = errors.New("card initialization timed out")

	// ErrOCRReadFailed occurs when the operation conditions register cannot
	// be read.
	ErrOCRReadFailed = errors.New("reading OCR failed")

	// ErrReadCommand occurs when the card rejects a single block read.
	ErrReadCommand = errors.New("read command rejected")

	// ErrReadTimeout occurs when no start token arrives in time.
	ErrReadTimeout = errors.New("read timed out")

	// ErrReadToken occurs when the card answers a read with an error token.
	ErrReadToken = errors.New("card returned error token")

	// ErrReadRegister occurs when the card rejects a register read.
	ErrReadRegister = errors.New("register read rejected")

	// ErrBadCSD occurs when the CSD register has an unknown structure
	// version.
	ErrBadCSD = errors.New("unknown CSD version")
)

// ErrorCode is the numeric error code latched by a [Card].
type ErrorCode uint8

const (
	ErrorNone         ErrorCode = 0x00
	ErrorCmd0         ErrorCode = 0x01
	ErrorCmd8         ErrorCode = 0x02
	ErrorCmd17        ErrorCode = 0x03
	ErrorCmd58        ErrorCode = 0x05
	ErrorACMD41       ErrorCode = 0x06
	ErrorBadCSD       ErrorCode = 0x07
	ErrorReadRegister ErrorCode = 0x08
	ErrorCmd8Echo     ErrorCode = 0x09
	ErrorReadTimeout  ErrorCode = 0x0D
	ErrorRead         ErrorCode = 0x10
)

var codeErrors = map[ErrorCode]error{
	ErrorCmd0:         ErrNotIdle,
	ErrorCmd8:         ErrCmd8,
	ErrorCmd17:        ErrReadCommand,
	ErrorCmd58:        ErrOCRReadFailed,
	ErrorACMD41:       ErrInitTimeout,
	ErrorBadCSD:       ErrBadCSD,
	ErrorReadRegister: ErrReadRegister,
	ErrorCmd8Echo:     ErrBadEcho,
	ErrorReadTimeout:  ErrReadTimeout,
	ErrorRead:         ErrReadToken,
}

func (c ErrorCode) String() string {
	if err, ok := codeErrors[c]; ok {
		return err.Error()
	}
	if c == ErrorNone {
		return "no error"
	}

	return fmt.Sprintf("error 0x%02X", uint8(c))
}

// CardError is a failed card operation together with the auxiliary byte
// the card returned, if any.
type CardError struct {
	Code ErrorCode
	Data byte
}

func (e *CardError) Error() string {
	return fmt.Sprintf("sd card: %s (code 0x%02X, data 0x%02X)", e.Code, uint8(e.Code), e.Data)
}

func (e *CardError) Unwrap() error {
	return codeErrors[e.Code]
}
