package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/davparache/auditory-updated/inventory"
)

var connectCmd = &cobra.Command{
	Use:   "connect SESSION [PIN]",
	Short: "Join a count session and remember it for later commands",
	Long: `Joins the named session, claiming it with PIN when it is new or
unclaimed. The id and pin are remembered in the local cache so the
other commands sync through the same session.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runConnect,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the saved session and its connection state",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream remote snapshot updates until interrupted",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func runConnect(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	pin := ""
	if len(args) == 2 {
		pin = args[1]
	}

	if err := a.connect(cmd.Context(), args[0], pin); err != nil {
		return err
	}

	st := a.engine.Status()
	if err := a.saveSession(st.SessionID, pin); err != nil {
		return fmt.Errorf("remember session: %w", err)
	}

	fmt.Printf("%s: %s, %d parts\n", st.SessionID, st.State, a.tracker.Len())
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	id, pin := a.savedSession()
	if id == "" {
		fmt.Println(`no saved session; run "auditory connect" first`)
		return nil
	}

	if err := a.connect(cmd.Context(), id, pin); err != nil {
		fmt.Printf("%s: unreachable (%v)\n", id, err)
		return nil
	}

	st := a.engine.Status()
	fmt.Printf("session:  %s\n", st.SessionID)
	fmt.Printf("state:    %s\n", st.State)
	fmt.Printf("parts:    %d\n", a.tracker.Len())
	if st.Err != nil {
		fmt.Printf("error:    %v\n", st.Err)
	}
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	id, pin := a.savedSession()
	if id == "" {
		return errors.New(`no saved session; run "auditory connect" first`)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.onSnapshot = func(m inventory.Map, readOnly bool) {
		mode := "admin"
		if readOnly {
			mode = "read-only"
		}
		fmt.Printf("%s  %d parts (%s)\n", time.Now().Format(time.TimeOnly), len(m), mode)
	}

	if err := a.connect(ctx, id, pin); err != nil {
		return err
	}

	fmt.Printf("watching %s, ctrl-c to stop\n", id)
	<-ctx.Done()
	return nil
}
