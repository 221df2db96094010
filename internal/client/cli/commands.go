package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/trolleysystems/callsync/internal/client/models"
	"github.com/trolleysystems/callsync/internal/client/services"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

func (a *App) prompt() string {
	return fmt.Sprintf("callsync (%s)", a.watcher.Mode())
}

// dispatch runs one command line and reports whether the loop should exit.
// Handler errors are printed, not returned; the loop keeps going.
func (a *App) dispatch(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}

	var err error
	switch cmd := parts[0]; cmd {
	case "help":
		a.printHelp()
	case "login":
		err = a.login(ctx)
	case "logout":
		err = a.logout(ctx)
	case "whoami":
		err = a.whoami(ctx)
	case "u", "users":
		err = a.users(ctx)
	case "sync":
		err = a.runSync(ctx)
	case "status":
		err = a.status(ctx)
	case "reset":
		err = a.reset(ctx)
	case "exit", "quit":
		fmt.Fprintln(a.out, "Bye!")
		return true
	default:
		fmt.Fprintln(a.out, "Unknown command:", cmd)
	}
	if err != nil {
		fmt.Fprintln(a.out, "Error:", err)
	}
	return false
}

func (a *App) printHelp() {
	fmt.Fprintln(a.out, "Available commands: login, logout, whoami, (u)sers, sync, status, reset, help, exit")
}

// login prompts for an identifier and password and authenticates, online when
// possible and against the local cache otherwise.
func (a *App) login(ctx context.Context) error {
	identifier, err := getSimpleText(a.reader, "Enter username or email", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.reader, a.out)
	if err != nil {
		return err
	}

	result, err := a.auth.Login(ctx, models.Credentials{Identifier: identifier, Password: password})
	if err != nil {
		if errors.Is(err, services.ErrLoginFailed) {
			fmt.Fprintln(a.out, "Login failed: invalid credentials")
			return nil
		}
		return err
	}

	if result.Source == models.LoginSourceOffline {
		fmt.Fprintf(a.out, "Logged in as %s (offline, using cached credentials)\n", result.User.Username)
	} else {
		fmt.Fprintf(a.out, "Logged in as %s\n", result.User.Username)
	}
	return nil
}

func (a *App) logout(ctx context.Context) error {
	if err := a.auth.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Logged out")
	return nil
}

func (a *App) whoami(ctx context.Context) error {
	u, err := a.auth.CurrentUser(ctx)
	if err != nil {
		return err
	}
	if u == nil {
		fmt.Fprintln(a.out, "Not logged in")
		return nil
	}
	fmt.Fprintf(a.out, "%s <%s>\n", u.Username, u.Email)
	return nil
}

// users lists the locally cached directory.
func (a *App) users(ctx context.Context) error {
	list, err := a.sync.CachedUsers(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(a.out, "Directory cache is empty, run 'sync' first")
		return nil
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSERNAME\tNAME\tEMAIL")
	for _, u := range list {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", u.ID, u.Username, u.DisplayName(), u.Email)
	}
	return w.Flush()
}

func (a *App) runSync(ctx context.Context) error {
	result, err := a.sync.RefreshAll(ctx)
	if err != nil {
		return err
	}
	if result.Skipped {
		fmt.Fprintln(a.out, "A sync is already running")
		return nil
	}
	fmt.Fprintf(a.out, "Synced %d users\n", result.Count)
	return nil
}

func (a *App) status(ctx context.Context) error {
	fmt.Fprintln(a.out, "Connectivity:", a.watcher.Mode())

	ts, err := a.sync.LastSyncedAt(ctx)
	if err != nil {
		return err
	}
	if ts.IsZero() {
		fmt.Fprintln(a.out, "Last sync: never")
		return nil
	}
	fmt.Fprintln(a.out, "Last sync:", ts.Local().Format(time.RFC822))
	return nil
}

// reset wipes the local cache, including cached offline credentials.
func (a *App) reset(ctx context.Context) error {
	confirm, err := getSimpleText(a.reader, "Erase all cached data? Type 'yes' to confirm", a.out)
	if err != nil {
		return err
	}
	if confirm != "yes" {
		fmt.Fprintln(a.out, "Cancelled")
		return nil
	}
	if err := a.auth.ClearOfflineData(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Local cache erased")
	return nil
}
