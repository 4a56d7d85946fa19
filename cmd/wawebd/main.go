package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"

	"github.com/ovidiomatos/waweb/internal/daemon"
	"github.com/ovidiomatos/waweb/internal/session"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	addrFlag := flag.String("addr", "", "listen address (overrides config default)")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{
			SessionName: sessionName,
			ListenAddr:  session.ResolveAddr(*addrFlag),
		}),
	)

	app.Run()
}
