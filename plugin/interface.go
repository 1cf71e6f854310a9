package plugin

import (
	goplugin "github.com/hashicorp/go-plugin"
	"github.com/reeveci/reeve-matrix/schema"
)

// Notifier is implemented by external notification plugins.
type Notifier interface {
	Name() (string, error)
	Notify(notification schema.Notification) error
}

var Handshake = goplugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "REEVE_MATRIX_PLUGIN",
	MagicCookieValue: "reeve-matrix",
}

const PLUGIN_NAME = "notifier"

// PluginMap is the map of plugins we can dispense.
var PluginMap = map[string]goplugin.Plugin{
	PLUGIN_NAME: &NotifierPlugin{},
}
