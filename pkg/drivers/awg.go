package drivers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/keenbot/keenbot/pkg/config"
)

// Awg is a client for the local AmneziaWG manager API (awg-manager). The
// manager answers JSON envelopes: {"success":true,"data":...} on success and
// {"error":"...","message":"..."} on failure.
type Awg struct {
	base   string
	client *http.Client
}

// AwgTunnel is one tunnel entry from /api/tunnels.
type AwgTunnel struct {
	Name      string `json:"name"`
	Active    bool   `json:"active"`
	Endpoint  string `json:"endpoint,omitempty"`
	Handshake string `json:"last_handshake,omitempty"`
	RxBytes   int64  `json:"rx_bytes,omitempty"`
	TxBytes   int64  `json:"tx_bytes,omitempty"`
}

func NewAwg(cfg config.AwgConfig) *Awg {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Awg{
		base:   fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port),
		client: &http.Client{Timeout: timeout},
	}
}

type awgEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

// decodeEnvelope unwraps the manager's response envelope into data.
func decodeEnvelope(body []byte, out interface{}) error {
	var env awgEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("awg: bad response: %w", err)
	}
	if env.Error != "" || (!env.Success && env.Message != "") {
		msg := env.Message
		if msg == "" {
			msg = env.Error
		}
		return fmt.Errorf("awg: %s", msg)
	}
	if !env.Success {
		return fmt.Errorf("awg: request failed")
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("awg: decode data: %w", err)
	}
	return nil
}

func (a *Awg) do(ctx context.Context, method, path string, body, out interface{}) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.base+path, rd)
	if err != nil {
		return err
	}
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("awg: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("awg: read response: %w", err)
	}
	return decodeEnvelope(raw, out)
}

// Available reports whether the manager answers at all. Used to hide the
// AWG menu entirely when the manager is not installed.
func (a *Awg) Available(ctx context.Context) bool {
	return a.do(ctx, http.MethodGet, "/api/health", nil, nil) == nil
}

func (a *Awg) Tunnels(ctx context.Context) ([]AwgTunnel, error) {
	var tunnels []AwgTunnel
	err := a.do(ctx, http.MethodGet, "/api/tunnels", nil, &tunnels)
	return tunnels, err
}

func (a *Awg) TunnelUp(ctx context.Context, name string) error {
	return a.do(ctx, http.MethodPost, "/api/tunnels/"+name+"/up", nil, nil)
}

func (a *Awg) TunnelDown(ctx context.Context, name string) error {
	return a.do(ctx, http.MethodPost, "/api/tunnels/"+name+"/down", nil, nil)
}

func (a *Awg) RestartTunnel(ctx context.Context, name string) error {
	if err := a.TunnelDown(ctx, name); err != nil {
		return err
	}
	return a.TunnelUp(ctx, name)
}

// PublicIP asks the manager what the egress address through the active
// tunnel looks like.
func (a *Awg) PublicIP(ctx context.Context) (string, error) {
	var data struct {
		IP      string `json:"ip"`
		Country string `json:"country,omitempty"`
	}
	if err := a.do(ctx, http.MethodGet, "/api/public-ip", nil, &data); err != nil {
		return "", err
	}
	if data.Country != "" {
		return data.IP + " (" + data.Country + ")", nil
	}
	return data.IP, nil
}
