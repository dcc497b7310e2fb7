package main

import (
	"github.com/spf13/pflag"

	"github.com/iamyashm/pyRace/internal/config"
	"github.com/iamyashm/pyRace/internal/relay"
)

func runRelay(args []string) error {
	fs := pflag.NewFlagSet("relay", pflag.ContinueOnError)
	configDir := commonFlags(fs)
	fs.String("listen", "", "address to listen on, e.g. :8765")
	fs.String("path", "", "websocket endpoint path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := setup("relay", fs, *configDir, map[string]string{
		"listen": "relay.listen",
		"path":   "relay.path",
	})
	if err != nil {
		return err
	}
	defer a.close()

	rc := config.GetRelayConfig()
	srv, err := relay.New(relay.Config{
		Listen:       rc.Listen,
		Path:         rc.Path,
		HelloTimeout: rc.HelloTimeout,
	}, a.logger)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	return srv.Run(ctx)
}
