// Package posix wraps the operating-system account tooling the POSIX
// providers call. Everything goes through the Commands interface so
// tests can fake the OS.
package posix

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Commands runs account-management programs.
type Commands interface {
	Run(ctx context.Context, name string, args ...string) error
	Output(ctx context.Context, name string, args ...string) (string, error)
}

// ExecCommands is the production implementation over os/exec.
type ExecCommands struct{}

func (ExecCommands) Run(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %s: %w (%s)", name, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (ExecCommands) Output(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return "", fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// GroupExists probes for a POSIX group via getent.
func GroupExists(ctx context.Context, c Commands, name string) bool {
	_, err := c.Output(ctx, "getent", "group", name)
	return err == nil
}

// UserExists probes for a POSIX account via getent.
func UserExists(ctx context.Context, c Commands, login string) bool {
	_, err := c.Output(ctx, "getent", "passwd", login)
	return err == nil
}

// AddGroup creates a POSIX group.
func AddGroup(ctx context.Context, c Commands, name string) error {
	return c.Run(ctx, "groupadd", name)
}

// DeleteGroup removes a POSIX group.
func DeleteGroup(ctx context.Context, c Commands, name string) error {
	return c.Run(ctx, "groupdel", name)
}

// AddUser creates a POSIX account with its own primary group.
func AddUser(ctx context.Context, c Commands, login, homeDir string) error {
	return c.Run(ctx, "useradd", "-U", "-d", homeDir, "-M", login)
}

// RenameUser changes an account's login and primary group name.
func RenameUser(ctx context.Context, c Commands, oldLogin, newLogin string) error {
	if err := c.Run(ctx, "usermod", "-l", newLogin, oldLogin); err != nil {
		return err
	}
	return c.Run(ctx, "groupmod", "-n", newLogin, oldLogin)
}

// DeleteUser removes a POSIX account.
func DeleteUser(ctx context.Context, c Commands, login string) error {
	return c.Run(ctx, "userdel", login)
}

// LockUser disables password authentication for an account.
func LockUser(ctx context.Context, c Commands, login string) error {
	return c.Run(ctx, "usermod", "-L", login)
}

// UnlockUser re-enables password authentication for an account.
func UnlockUser(ctx context.Context, c Commands, login string) error {
	return c.Run(ctx, "usermod", "-U", login)
}

// Chown hands a path to login:login.
func Chown(ctx context.Context, c Commands, path, login string) error {
	return c.Run(ctx, "chown", login+":"+login, path)
}

// Chgrp hands a path to the named group.
func Chgrp(ctx context.Context, c Commands, path, group string) error {
	return c.Run(ctx, "chgrp", group, path)
}
