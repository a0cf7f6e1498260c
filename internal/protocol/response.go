package protocol

import (
	"fmt"

	"github.com/example/bankd/internal/bank"
)

// Code is a wire response code. The numeric values are part of the protocol
// and must not be renumbered.
type Code int

const (
	CodeOK                  Code = 0
	CodeInvalidRegistration Code = 1
	CodeInvalidLogin        Code = 2
	CodeSessionConflict     Code = 3
	CodeInsufficientFunds   Code = 4
	// CodeInsufficientStock is reserved; no core operation emits it.
	CodeInsufficientStock Code = 5
	CodeUnauthorized      Code = 251
	CodeNotFound          Code = 252
	CodeBadArguments      Code = 253
	CodeUnknownCommand    Code = 254
	CodeUnknownError      Code = 255
)

// okLine renders a success reply. Successes without an operation payload
// carry "0", matching the historical wire behavior.
func okLine(payload string) string {
	if payload == "" {
		payload = "0"
	}
	return "OK " + payload + "\r\n"
}

// errLine renders a failure reply.
func errLine(c Code) string {
	return fmt.Sprintf("ERR %d\r\n", c)
}

// codeFor maps a ledger outcome to its wire code.
func codeFor(o bank.Outcome) Code {
	switch o {
	case bank.OutcomeOK:
		return CodeOK
	case bank.OutcomeInvalidRegistration:
		return CodeInvalidRegistration
	case bank.OutcomeInvalidLogin:
		return CodeInvalidLogin
	case bank.OutcomeSessionConflict:
		return CodeSessionConflict
	case bank.OutcomeInsufficientFunds:
		return CodeInsufficientFunds
	case bank.OutcomeNotFound:
		return CodeNotFound
	case bank.OutcomeBadArguments:
		return CodeBadArguments
	default:
		return CodeUnknownError
	}
}
