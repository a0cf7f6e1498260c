// Package protocol implements the line protocol: command parsing, the
// pre-auth/post-auth state machine, and the mapping from ledger outcomes to
// wire response codes.
package protocol

import (
	"context"

	"github.com/example/bankd/internal/bank"
)

// Conn is the dispatcher's per-connection state. Account is empty until a
// successful LOGIN and owned exclusively by the connection's handler.
type Conn struct {
	ID      string
	Account string
}

// Authenticated reports whether the connection has a bound account.
func (c *Conn) Authenticated() bool { return c.Account != "" }

// Reply is the dispatch result for one request line.
type Reply struct {
	Line    string
	Code    Code
	Command Command
	// Close is set when the handler should terminate the connection after
	// writing the reply (successful LOGOUT).
	Close bool
}

// Dispatcher validates parsed commands and routes them to the ledger.
type Dispatcher struct {
	bank *bank.Bank
}

// NewDispatcher creates a dispatcher over the given ledger.
func NewDispatcher(b *bank.Bank) *Dispatcher {
	return &Dispatcher{bank: b}
}

// Dispatch handles one request line for the connection. Checks run in a
// fixed order: unknown name, bound-id substitution, arity, account-id
// authorization, then the ledger call. Argument and authorization failures
// never reach the ledger.
func (d *Dispatcher) Dispatch(ctx context.Context, conn *Conn, line string) Reply {
	cmd, known := Parse(line)
	if !known {
		return Reply{Line: errLine(CodeUnknownCommand), Code: CodeUnknownCommand, Command: cmd}
	}

	want := arity[cmd.Name]

	// An authenticated connection may omit its own account id; the bound id
	// is substituted before the arity check.
	if ownsAccountID[cmd.Name] && conn.Authenticated() && len(cmd.Args) == want-1 {
		cmd.Args = append([]string{conn.Account}, cmd.Args...)
	}

	if len(cmd.Args) != want {
		return d.failure(cmd, CodeBadArguments)
	}

	// Any explicit account id must be the connection's own.
	if ownsAccountID[cmd.Name] && cmd.Args[0] != conn.Account {
		return d.failure(cmd, CodeUnauthorized)
	}

	switch cmd.Name {
	case CmdHi:
		return Reply{Line: okLine(ServiceName), Code: CodeOK, Command: cmd}

	case CmdRegister:
		return d.result(cmd, d.bank.Register(ctx, cmd.Args[0], cmd.Args[1]))

	case CmdLogin:
		if conn.Authenticated() {
			return d.failure(cmd, CodeSessionConflict)
		}
		res := d.bank.Login(ctx, conn.ID, cmd.Args[0], cmd.Args[1])
		if res.Outcome == bank.OutcomeOK {
			conn.Account = res.Payload
		}
		return d.result(cmd, res)

	case CmdLogout:
		res := d.bank.Logout(ctx, cmd.Args[0])
		reply := d.result(cmd, res)
		if res.Outcome == bank.OutcomeOK {
			conn.Account = ""
			reply.Close = true
		}
		return reply

	case CmdChangePassword:
		return d.result(cmd, d.bank.ChangePassword(ctx, cmd.Args[0], cmd.Args[1], cmd.Args[2]))

	case CmdBalance:
		return d.result(cmd, d.bank.Balance(ctx, cmd.Args[0]))

	case CmdDeposit:
		return d.result(cmd, d.bank.Deposit(ctx, cmd.Args[0], cmd.Args[1]))

	case CmdWithdraw:
		return d.result(cmd, d.bank.Withdraw(ctx, cmd.Args[0], cmd.Args[1]))

	case CmdTransfer:
		return d.result(cmd, d.bank.Transfer(ctx, cmd.Args[0], cmd.Args[1], cmd.Args[2]))
	}

	return d.failure(cmd, CodeUnknownCommand)
}

func (d *Dispatcher) result(cmd Command, res bank.Result) Reply {
	code := codeFor(res.Outcome)
	if code != CodeOK {
		return d.failure(cmd, code)
	}
	return Reply{Line: okLine(res.Payload), Code: CodeOK, Command: cmd}
}

func (d *Dispatcher) failure(cmd Command, code Code) Reply {
	return Reply{Line: errLine(code), Code: code, Command: cmd}
}
