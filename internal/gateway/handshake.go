package gateway

import (
	"context"
	"encoding/json"
	"log"

	"exec-guard/internal/auth"
	"exec-guard/internal/protocol"
)

func (c *Client) connectParams(cn *conn, signedAtMs int64) protocol.ConnectParams {
	payload := auth.BuildDeviceAuthPayload(auth.DeviceAuthParams{
		DeviceID:   cn.device.ID,
		ClientID:   c.opts.ClientID,
		ClientMode: c.opts.ClientMode,
		Role:       c.opts.Role,
		Scopes:     c.opts.Scopes,
		SignedAtMs: signedAtMs,
		Token:      cn.token,
	})

	return protocol.ConnectParams{
		MinProtocol: protocol.ProtocolVersion,
		MaxProtocol: protocol.ProtocolVersion,
		Client: protocol.ClientInfo{
			ID:          c.opts.ClientID,
			DisplayName: c.opts.DisplayName,
			Version:     c.opts.ClientVersion,
			Platform:    c.platform(),
			Mode:        c.opts.ClientMode,
		},
		Role:   c.opts.Role,
		Scopes: c.opts.Scopes,
		Device: protocol.DeviceProof{
			ID:        cn.device.ID,
			PublicKey: cn.device.PublicKeyRaw(),
			Signature: cn.device.Sign(payload),
			SignedAt:  signedAtMs,
		},
		Auth: protocol.ConnectAuth{Token: cn.token},
	}
}

// handshake answers connect.challenge. Any failure closes the socket and
// leaves retrying to the reconnect loop.
func (c *Client) handshake(cn *conn, _ json.RawMessage) {
	params := c.connectParams(cn, c.opts.Now().UnixMilli())

	raw, err := c.request(context.Background(), cn, protocol.MethodConnect, params)
	if err != nil {
		log.Printf("gateway: handshake failed: %v", err)
		cn.close()
		return
	}

	var hello protocol.HelloPayload
	if err := json.Unmarshal(raw, &hello); err != nil || hello.Type != protocol.HelloOK {
		log.Printf("gateway: handshake failed: unexpected connect payload %s", string(raw))
		cn.close()
		return
	}

	if c.markConnected(cn) {
		log.Printf("gateway: connected to %s (protocol %d)", c.opts.URL, hello.Protocol)
	}
}
