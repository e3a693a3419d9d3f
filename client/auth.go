package client

import (
	"github.com/omgpp-project/omgpp"
	"github.com/omgpp-project/omgpp/command"
)

// registerBuiltins installs the AUTH reply handler.
func (c *Client) registerBuiltins() {
	c.disp.Register("AUTH", false, c.handleAuthReply)
}

func (c *Client) handleAuthReply(req command.Request) {
	if len(req.Args) == 0 || req.Args[0] != "ok" {
		return
	}
	c.state = omgpp.Connected
	c.emitStateChange(omgpp.Connected)
}
