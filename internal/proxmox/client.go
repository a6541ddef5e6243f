// Package proxmox is a read-only client for the Proxmox VE management API.
// It covers the two list operations the bot needs and nothing else; callers
// own all retry policy (the poller retries by waiting for its next cycle).
package proxmox

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"pvebot/internal/models"
)

// Options configures a Client.
type Options struct {
	Host        string
	Port        int
	TokenID     string
	TokenSecret string

	// CABundle, when set, is a PEM file the server certificate is verified
	// against instead of the system pool. InsecureSkipVerify disables
	// verification entirely; the two are mutually exclusive.
	CABundle           string
	InsecureSkipVerify bool

	Timeout time.Duration

	// BaseURL overrides the derived https://host:port/api2/json base.
	// Used when the API sits behind a reverse proxy, and by tests.
	BaseURL string
}

// Client issues authenticated requests to one Proxmox VE cluster.
type Client struct {
	http    *http.Client
	baseURL string
	auth    string
}

// New builds a Client from Options. The TLS trust policy is fixed at
// construction: system pool by default, the supplied CA bundle when
// configured, or no verification when explicitly requested.
func New(opts Options) (*Client, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("proxmox: host is required")
	}
	if opts.TokenID == "" || opts.TokenSecret == "" {
		return nil, fmt.Errorf("proxmox: API token id and secret are required")
	}
	port := opts.Port
	if port == 0 {
		port = 8006
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	tlsCfg := &tls.Config{}
	switch {
	case opts.CABundle != "" && opts.InsecureSkipVerify:
		return nil, fmt.Errorf("proxmox: CA bundle and insecure-skip-verify are mutually exclusive")
	case opts.CABundle != "":
		pem, err := os.ReadFile(opts.CABundle)
		if err != nil {
			return nil, fmt.Errorf("proxmox: read CA bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("proxmox: no certificates found in %s", opts.CABundle)
		}
		tlsCfg.RootCAs = pool
	case opts.InsecureSkipVerify:
		tlsCfg.InsecureSkipVerify = true
	}

	base := opts.BaseURL
	if base == "" {
		base = fmt.Sprintf("https://%s:%d/api2/json", opts.Host, port)
	}
	return &Client{
		http: &http.Client{
			Timeout:   timeout,
			Transport: &http.Transport{TLSClientConfig: tlsCfg},
		},
		baseURL: base,
		auth:    fmt.Sprintf("PVEAPIToken=%s=%s", opts.TokenID, opts.TokenSecret),
	}, nil
}

// nodeRecord matches one element of GET /nodes.
type nodeRecord struct {
	Node   string  `json:"node"`
	Status string  `json:"status"`
	CPU    float64 `json:"cpu"`
	Mem    uint64  `json:"mem"`
	MaxMem uint64  `json:"maxmem"`
	Uptime int64   `json:"uptime"`
}

// resourceRecord matches one element of GET /cluster/resources?type=vm.
type resourceRecord struct {
	VMID   int     `json:"vmid"`
	Name   string  `json:"name"`
	Type   string  `json:"type"`
	Node   string  `json:"node"`
	Status string  `json:"status"`
	CPU    float64 `json:"cpu"`
	Mem    uint64  `json:"mem"`
	MaxMem uint64  `json:"maxmem"`
	Uptime int64   `json:"uptime"`
}

// Nodes lists every cluster host with its current status and load.
func (c *Client) Nodes(ctx context.Context) ([]models.NodeStatus, error) {
	var records []nodeRecord
	if err := c.get(ctx, "/nodes", nil, &records); err != nil {
		return nil, err
	}
	nodes := make([]models.NodeStatus, 0, len(records))
	for _, r := range records {
		nodes = append(nodes, models.NodeStatus{
			Name:     r.Node,
			Status:   models.ParseStatus(r.Status),
			CPU:      r.CPU,
			MemUsed:  r.Mem,
			MemTotal: r.MaxMem,
			Uptime:   r.Uptime,
		})
	}
	return nodes, nil
}

// Guests lists every VM and container in the cluster.
func (c *Client) Guests(ctx context.Context) ([]models.GuestStatus, error) {
	var records []resourceRecord
	if err := c.get(ctx, "/cluster/resources", url.Values{"type": {"vm"}}, &records); err != nil {
		return nil, err
	}
	guests := make([]models.GuestStatus, 0, len(records))
	for _, r := range records {
		guests = append(guests, models.GuestStatus{
			VMID:    r.VMID,
			Name:    r.Name,
			Type:    r.Type,
			Node:    r.Node,
			Status:  models.ParseStatus(r.Status),
			CPU:     r.CPU,
			MemUsed: r.Mem,
			MemMax:  r.MaxMem,
			Uptime:  r.Uptime,
		})
	}
	return guests, nil
}

// get fetches path, unwraps the {"data": ...} envelope, and decodes the
// payload into out.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("proxmox: build request: %w", err)
	}
	req.Header.Set("Authorization", c.auth)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("proxmox: %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("proxmox: %s: unexpected status %s", path, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("proxmox: %s: read body: %w", path, err)
	}
	envelope := struct {
		Data json.RawMessage `json:"data"`
	}{}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("proxmox: %s: decode envelope: %w", path, err)
	}
	if len(envelope.Data) == 0 {
		return fmt.Errorf("proxmox: %s: response has no data field", path)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("proxmox: %s: decode data: %w", path, err)
	}
	return nil
}
