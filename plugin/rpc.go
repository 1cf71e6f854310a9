package plugin

import (
	"net/rpc"

	goplugin "github.com/hashicorp/go-plugin"
	"github.com/reeveci/reeve-matrix/schema"
)

type NotifierClient struct {
	client *rpc.Client
}

func (n *NotifierClient) Name() (resp string, err error) {
	err = n.client.Call("Plugin.Name", new(interface{}), &resp)
	return
}

func (n *NotifierClient) Notify(notification schema.Notification) error {
	// log providers are process local
	runs := make([]schema.RunReport, len(notification.Report.Runs))
	copy(runs, notification.Report.Runs)
	for i := range runs {
		runs[i].Logs = nil
	}
	notification.Report.Runs = runs

	return n.client.Call("Plugin.Notify", notification, new(interface{}))
}

type NotifierServer struct {
	impl Notifier
}

func (n *NotifierServer) Name(args *interface{}, resp *string) (err error) {
	*resp, err = n.impl.Name()
	return
}

func (n *NotifierServer) Notify(args schema.Notification, resp *interface{}) error {
	return n.impl.Notify(args)
}

type NotifierPlugin struct {
	Impl Notifier
}

func (p *NotifierPlugin) Server(*goplugin.MuxBroker) (interface{}, error) {
	return &NotifierServer{impl: p.Impl}, nil
}

func (NotifierPlugin) Client(b *goplugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &NotifierClient{client: c}, nil
}

var _ Notifier = (*NotifierClient)(nil)
