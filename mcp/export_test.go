package mcp

var (
	ConvertToolToSpec   = convertToolToSpec
	ConvertContentToMap = convertContentToMap
)

type Session = session

// NewWithSession creates a client on an already initialized session.
func NewWithSession(s session, options ...Option) *Client {
	c := newClient(options...)
	c.session = s
	return c
}
