package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/lox/tournamentd/cmd/tournamentd/shared"
	"github.com/lox/tournamentd/internal/client"
	"github.com/lox/tournamentd/internal/config"
	"github.com/lox/tournamentd/internal/tournament"
)

var (
	okStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	errStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("204"))
)

// SendCmd issues one command and prints the reply as indented JSON.
type SendCmd struct {
	Host    string        `default:"127.0.0.1" help:"Daemon host"`
	Port    int           `short:"p" default:"${default_port}" help:"Daemon TCP port"`
	Socket  string        `help:"Unix socket path, overrides host and port"`
	URL     string        `help:"Websocket URL, overrides host and port"`
	Auth    *int          `short:"a" help:"Administrator code"`
	Timeout time.Duration `default:"5s" help:"How long to wait for the reply"`
	NoColor bool          `name:"no-color" help:"Disable colored output"`

	Command string `arg:"" help:"Command name, e.g. get_state"`
	Args    string `arg:"" optional:"" default:"{}" help:"Arguments as a JSON object"`
}

func (c *SendCmd) Run() error {
	logger, err := shared.SetupLogger("warn", !c.NoColor)
	if err != nil {
		return err
	}

	if !json.Valid([]byte(c.Args)) {
		return fmt.Errorf("arguments are not valid JSON: %s", c.Args)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()

	svc := client.Service{Name: "tournamentd", Host: c.Host, Port: c.Port, Path: c.Socket, URL: c.URL}
	if svc.Port == 0 {
		svc.Port = config.DefaultPort
	}
	conn, err := client.Dial(ctx, svc, client.Options{Logger: logger, AuthCode: c.Auth})
	if err != nil {
		return err
	}
	defer conn.Close()

	body, sendErr := conn.Send(ctx, c.Command, json.RawMessage(c.Args))
	if body == nil {
		return sendErr
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		pretty.Write(body)
	}

	if sendErr != nil {
		fmt.Fprintln(os.Stderr, errStyle.Render(fmt.Sprintf("%s failed (%s)", c.Command, tournament.KindOf(sendErr))))
	} else {
		fmt.Fprintln(os.Stderr, okStyle.Render(c.Command))
	}
	fmt.Println(pretty.String())
	return sendErr
}
