// Command thalictl is an interactive admin shell for a running Manager,
// for manual exercise of the discovery/notification pipeline during
// development. It is not part of the library surface.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/abiosoft/ishell/v2"

	"github.com/thaligo/thali/internal/config"
	"github.com/thaligo/thali/internal/key"
	"github.com/thaligo/thali/internal/manager"
	"github.com/thaligo/thali/internal/registry"
)

var (
	programLevel = new(slog.LevelVar) // Info by default

	privKey *key.Private

	mgr *manager.Manager
)

func main() {
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: programLevel})
	slog.SetDefault(slog.New(h))
	programLevel.Set(slog.LevelInfo)

	mgr = manager.New(config.Default(), manager.Deps{Router: nopRouter{}, PSKServer: nopPSKServer{}})

	shell := ishell.New()
	shell.SetHomeHistoryPath(".thalictl_history")
	shell.Println("thali control shell")

	shell.AddCmd(&ishell.Cmd{
		Name: "trace",
		Help: "set log level to trace",
		Func: func(c *ishell.Context) { programLevel.Set(-8) },
	})
	shell.AddCmd(&ishell.Cmd{
		Name: "debug",
		Help: "set log level to debug",
		Func: func(c *ishell.Context) { programLevel.Set(slog.LevelDebug) },
	})
	shell.AddCmd(&ishell.Cmd{
		Name: "info",
		Help: "set log level to info",
		Func: func(c *ishell.Context) { programLevel.Set(slog.LevelInfo) },
	})

	shell.AddCmd(keyCmd())
	shell.AddCmd(managerCmd())
	shell.AddCmd(peersCmd())

	shell.Run()
}

func keyCmd() *ishell.Cmd {
	c := &ishell.Cmd{
		Name: "key",
		Help: "private key generation and inspection",
		Func: func(c *ishell.Context) {
			if privKey == nil {
				c.Println("key: nil")
				return
			}
			c.Println("pub:", mustText(privKey.Public()))
		},
	}

	c.AddCmd(&ishell.Cmd{
		Name: "gen",
		Help: "generate a new key",
		Func: func(c *ishell.Context) {
			privKey = new(key.Private)
			*privKey = key.New()
			c.Println("key generated, pub:", mustText(privKey.Public()))
		},
	})

	return c
}

func managerCmd() *ishell.Cmd {
	c := &ishell.Cmd{
		Name: "manager",
		Help: "start/stop the notification manager",
		Func: func(c *ishell.Context) {
			c.Println("state:", mgr.State())
		},
	}

	c.AddCmd(&ishell.Cmd{
		Name: "start",
		Help: "manager start <peerIdentifier> <bluetooth|mpcf>",
		Func: func(c *ishell.Context) {
			if privKey == nil {
				c.Err(errors.New("generate a key first: key gen"))
				return
			}
			if len(c.Args) < 2 {
				c.Err(errors.New("usage: manager start <peerIdentifier> <bluetooth|mpcf>"))
				return
			}

			radio, err := parseRadio(c.Args[1])
			if err != nil {
				c.Err(err)
				return
			}

			args := manager.StartArgs{
				Local:          *privKey,
				PeerIdentifier: c.Args[0],
				RemoteKeys:     []key.Public{},
				NonTCPRadio:    radio,
			}
			if err := mgr.Start(context.Background(), args); err != nil {
				c.Err(err)
				return
			}
			c.Println("manager started")
		},
	})

	c.AddCmd(&ishell.Cmd{
		Name: "stop",
		Help: "stop the manager",
		Func: func(c *ishell.Context) {
			if err := mgr.Stop(); err != nil {
				c.Err(err)
				return
			}
			c.Println("manager stopped")
		},
	})

	return c
}

func peersCmd() *ishell.Cmd {
	return &ishell.Cmd{
		Name: "peers",
		Help: "list currently cached peers",
		Func: func(c *ishell.Context) {
			peers := mgr.Peers()
			if len(peers) == 0 {
				c.Println("(none)")
				return
			}
			for _, p := range peers {
				c.Printf("%s\t%s\tgen=%d\n", p.ConnectionType, p.PeerID, p.Generation)
			}
		},
	}
}

func parseRadio(s string) (registry.ConnectionType, error) {
	switch s {
	case "bluetooth":
		return registry.Bluetooth, nil
	case "mpcf":
		return registry.MultiPeerConnectivity, nil
	default:
		return 0, errors.New("radio must be 'bluetooth' or 'mpcf'")
	}
}

func mustText(p key.Public) string {
	b, err := p.MarshalText()
	if err != nil {
		return "<error>"
	}
	return string(b)
}

// nopRouter discards every handler registration; useful when thalictl is
// driving the Manager without a real HTTP server behind it.
type nopRouter struct{}

func (nopRouter) Use(func(http.Handler) http.Handler)          {}
func (nopRouter) Handle(string, string, http.HandlerFunc)      {}
func (nopRouter) ServeHTTP(http.ResponseWriter, *http.Request) {}

// nopPSKServer never authorizes a request; fine for a shell that never
// actually serves NotificationBeacons over a real listener.
type nopPSKServer struct{}

func (nopPSKServer) SetPSKTable(map[string][]byte)            {}
func (nopPSKServer) IdentityHint(*http.Request) (string, bool) { return "", false }
