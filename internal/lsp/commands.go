package lsp

import (
	"context"

	"github.com/tidwall/gjson"
)

// Remote command identifiers exposed by the analysis process.
const (
	CommandCreateAccount       = "cadence.server.flow.createAccount"
	CommandSwitchActiveAccount = "cadence.server.flow.switchActiveAccount"
	CommandGetAccounts         = "cadence.server.flow.getAccounts"
	CommandRestart             = "cadence.server.flow.restart"
	CommandReloadConfiguration = "cadence.server.flow.reloadConfiguration"
)

// Account is an emulator account as reported by the analysis process.
type Account struct {
	Name    string
	Address string
	Active  bool
}

// CreateAccount asks the process to create a new emulator account.
// Failures are surfaced to the user through the Notifier and returned
// as a *RemoteCommandError.
func (c *Client) CreateAccount(ctx context.Context) (*Account, error) {
	res, err := c.ExecuteCommand(ctx, CommandCreateAccount)
	if err != nil {
		rerr := &RemoteCommandError{Command: CommandCreateAccount, Err: err}
		if c.notifier != nil {
			c.notifier.Error("Failed to create account: " + err.Error())
		}
		return nil, rerr
	}

	account, ok := decodeAccount(res)
	if !ok {
		rerr := &RemoteCommandError{Command: CommandCreateAccount, Reason: "malformed account in response"}
		if c.notifier != nil {
			c.notifier.Error(rerr.Error())
		}
		return nil, rerr
	}
	return account, nil
}

// SwitchAccount makes the named account active. The command is
// fire-and-forget: failures are logged, never surfaced.
func (c *Client) SwitchAccount(ctx context.Context, name string) {
	if _, err := c.ExecuteCommand(ctx, CommandSwitchActiveAccount, name); err != nil {
		c.log.Warn("switch active account failed", "account", name, "err", err)
	}
}

// Accounts returns the emulator account list. A response that does not
// match the expected shape fails with a *RemoteCommandError.
func (c *Client) Accounts(ctx context.Context) ([]Account, error) {
	res, err := c.ExecuteCommand(ctx, CommandGetAccounts)
	if err != nil {
		return nil, &RemoteCommandError{Command: CommandGetAccounts, Err: err}
	}
	if !res.IsArray() {
		return nil, &RemoteCommandError{Command: CommandGetAccounts, Reason: "response is not a list"}
	}

	var accounts []Account
	malformed := false
	res.ForEach(func(_, item gjson.Result) bool {
		account, ok := decodeAccount(item)
		if !ok {
			malformed = true
			return false
		}
		accounts = append(accounts, *account)
		return true
	})
	if malformed {
		return nil, &RemoteCommandError{Command: CommandGetAccounts, Reason: "malformed account in response"}
	}
	return accounts, nil
}

// Reset sends the remote restart signal to the analysis process.
func (c *Client) Reset(ctx context.Context) error {
	if _, err := c.ExecuteCommand(ctx, CommandRestart); err != nil {
		return &RemoteCommandError{Command: CommandRestart, Err: err}
	}
	return nil
}

// ReloadConfiguration tells the process to re-read the workspace
// configuration. It is driven by the flow.json watcher, not by the
// user; failures are logged only.
func (c *Client) ReloadConfiguration(ctx context.Context) {
	if _, err := c.ExecuteCommand(ctx, CommandReloadConfiguration); err != nil {
		c.log.Warn("reload configuration failed", "err", err)
	}
}

// decodeAccount validates and converts one account object.
func decodeAccount(res gjson.Result) (*Account, bool) {
	name := res.Get("name")
	address := res.Get("address")
	if !name.Exists() || !address.Exists() {
		return nil, false
	}
	return &Account{
		Name:    name.String(),
		Address: address.String(),
		Active:  res.Get("active").Bool(),
	}, true
}
