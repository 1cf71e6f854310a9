package plugin

import (
	"fmt"
	"os/exec"

	"github.com/hashicorp/go-hclog"
	goplugin "github.com/hashicorp/go-plugin"
)

type PluginConfig struct {
	Plugin Notifier
	Logger hclog.Logger
}

// Serve is called by plugin binaries from their main function.
func Serve(config *PluginConfig) {
	goplugin.Serve(&goplugin.ServeConfig{
		HandshakeConfig: Handshake,

		Plugins: goplugin.PluginSet{
			PLUGIN_NAME: &NotifierPlugin{Impl: config.Plugin},
		},

		Logger: config.Logger,
	})
}

// Client is a launched plugin process.
type Client struct {
	Notifier

	process *goplugin.Client
}

// Launch starts the plugin binary at path with the given environment.
func Launch(path string, env []string, logger hclog.Logger) (*Client, error) {
	cmd := exec.Command(path)
	cmd.Env = env

	process := goplugin.NewClient(&goplugin.ClientConfig{
		HandshakeConfig:  Handshake,
		Plugins:          PluginMap,
		Cmd:              cmd,
		Logger:           logger,
		AllowedProtocols: []goplugin.Protocol{goplugin.ProtocolNetRPC},
	})

	rpcClient, err := process.Client()
	if err != nil {
		process.Kill()
		return nil, fmt.Errorf("error starting plugin %s - %s", path, err)
	}

	raw, err := rpcClient.Dispense(PLUGIN_NAME)
	if err != nil {
		process.Kill()
		return nil, fmt.Errorf("error dispensing plugin %s - %s", path, err)
	}

	notifier, ok := raw.(Notifier)
	if !ok {
		process.Kill()
		return nil, fmt.Errorf("plugin %s does not implement a notifier", path)
	}

	return &Client{Notifier: notifier, process: process}, nil
}

func (c *Client) Close() {
	c.process.Kill()
}
