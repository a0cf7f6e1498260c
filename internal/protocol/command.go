package protocol

import "strings"

// ServiceName is the fixed identifier returned by the HI handshake.
const ServiceName = "bank"

// Name is a wire command name.
type Name string

const (
	CmdHi             Name = "HI"
	CmdLogin          Name = "LOGIN"
	CmdRegister       Name = "REGISTER"
	CmdChangePassword Name = "CHPASSWD"
	CmdBalance        Name = "BALANCE"
	CmdDeposit        Name = "DEPOSIT"
	CmdWithdraw       Name = "WITHDRAW"
	CmdTransfer       Name = "TRANSFER"
	CmdLogout         Name = "LOGOUT"
)

// arity maps each command to its required argument count.
var arity = map[Name]int{
	CmdHi:             0,
	CmdLogin:          2,
	CmdRegister:       2,
	CmdChangePassword: 3,
	CmdBalance:        1,
	CmdDeposit:        2,
	CmdWithdraw:       2,
	CmdTransfer:       3,
	CmdLogout:         1,
}

// ownsAccountID marks commands whose first argument is the caller's own
// account id. For these the dispatcher substitutes the bound id when the
// argument is omitted and rejects mismatching explicit ids.
var ownsAccountID = map[Name]bool{
	CmdChangePassword: true,
	CmdBalance:        true,
	CmdDeposit:        true,
	CmdWithdraw:       true,
	CmdTransfer:       true,
	CmdLogout:         true,
}

// Command is one parsed request line.
type Command struct {
	Name Name
	Args []string
}

// Parse splits a request line into a command and its arguments. The second
// return value is false when the line is empty or the name is not part of
// the command set.
func Parse(line string) (Command, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, false
	}

	name := Name(fields[0])
	if _, known := arity[name]; !known {
		return Command{}, false
	}
	return Command{Name: name, Args: fields[1:]}, true
}

// Mutating reports whether the command changes durable ledger state.
func (c Command) Mutating() bool {
	switch c.Name {
	case CmdRegister, CmdChangePassword, CmdDeposit, CmdWithdraw, CmdTransfer:
		return true
	}
	return false
}
