// Package httpclient provides the upstream HTTP clients used for page
// fetches and media relaying.
package httpclient

import (
	"bufio"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tokgrab/pkg/config"
	"tokgrab/pkg/logging"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
	"golang.org/x/net/proxy"
)

// Client routes upstream requests across two transports:
//
//   - pageClient: HTTP/1.1 only with a relaxed TLS floor. Video pages are
//     served fine over HTTP/1.1 and a plain Go h2 handshake is a stronger
//     fingerprint signal than an old-fashioned one.
//   - utlsClient: browser-like TLS ClientHello for CDN hosts that gate
//     on the TLS fingerprint itself.
type Client struct {
	pageClient *http.Client
	utlsClient *http.Client
	log        *logging.Logger
}

// Domains that require browser-like TLS fingerprinting.
var utlsDomains = []string{
	"tiktokcdn",
	"tiktokv.com",
	"ibytedtos",
}

// ipv4DialContext forces IPv4-only connections.
// Avoids stalls in environments where IPv6 routes exist but do not work.
func ipv4DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	if network == "tcp" {
		network = "tcp4"
	}
	d := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 60 * time.Second,
	}
	return d.DialContext(ctx, network, addr)
}

// New creates a new HTTP client pair from the given configuration.
func New(cfg *config.Config, log *logging.Logger) *Client {
	c := &Client{
		log: log.WithComponent("httpclient"),
	}

	transport := &http.Transport{
		DialContext:           ipv4DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		// Accept legacy negotiation; some regional edges still offer old suites.
		TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS10},
		// Stay on HTTP/1.1. An empty TLSNextProto map disables h2 upgrade.
		ForceAttemptHTTP2: false,
		TLSNextProto:      map[string]func(string, *tls.Conn) http.RoundTripper{},
	}

	if cfg.GlobalProxy != "" {
		c.configureProxy(transport, cfg.GlobalProxy)
	}

	c.pageClient = &http.Client{
		Transport: transport,
		Timeout:   cfg.FetchTimeout,
	}

	c.utlsClient = &http.Client{
		Transport: newUTLSRoundTripper(),
		Timeout:   cfg.FetchTimeout,
	}

	return c
}

// configureProxy wires a global SOCKS5 or HTTP proxy into the transport.
func (c *Client) configureProxy(transport *http.Transport, proxyURL string) {
	parsedURL, err := url.Parse(proxyURL)
	if err != nil {
		c.log.Error("failed to parse proxy URL", "url", proxyURL, "error", err)
		return
	}

	switch parsedURL.Scheme {
	case "socks5", "socks5h":
		dialer, err := proxy.FromURL(parsedURL, proxy.Direct)
		if err != nil {
			c.log.Error("failed to create SOCKS5 dialer", "error", err)
			return
		}
		if contextDialer, ok := dialer.(proxy.ContextDialer); ok {
			transport.DialContext = contextDialer.DialContext
		} else {
			transport.Dial = dialer.Dial
		}
	case "http", "https":
		transport.Proxy = http.ProxyURL(parsedURL)
	default:
		c.log.Warn("unsupported proxy scheme", "scheme", parsedURL.Scheme)
		return
	}
	c.log.Info("global proxy enabled", "proxy", proxyURL)
}

// needsUTLS returns true if the URL requires browser-like TLS fingerprinting.
func needsUTLS(targetURL string) bool {
	lower := strings.ToLower(targetURL)
	for _, domain := range utlsDomains {
		if strings.Contains(lower, domain) {
			return true
		}
	}
	return false
}

// Do executes an HTTP request on the transport appropriate for its host.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if needsUTLS(req.URL.String()) {
		c.log.Debug("using utls client", "url", req.URL.String())
		return c.utlsClient.Do(req)
	}
	return c.pageClient.Do(req)
}

// DoWithContext executes an HTTP request with context.
func (c *Client) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	return c.Do(req.WithContext(ctx))
}

// utlsRoundTripper implements http.RoundTripper with utls and HTTP/2 support.
type utlsRoundTripper struct {
	dialer      *net.Dialer
	h2Transport *http2.Transport
}

func newUTLSRoundTripper() *utlsRoundTripper {
	return &utlsRoundTripper{
		dialer: &net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 60 * time.Second,
		},
		h2Transport: &http2.Transport{
			DisableCompression: false,
			AllowHTTP:          false,
		},
	}
}

func (t *utlsRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	// Only handle HTTPS
	if req.URL.Scheme != "https" {
		return http.DefaultTransport.RoundTrip(req)
	}

	addr := req.URL.Host
	if !strings.Contains(addr, ":") {
		addr = addr + ":443"
	}

	// Force IPv4
	conn, err := t.dialer.DialContext(req.Context(), "tcp4", addr)
	if err != nil {
		return nil, err
	}

	// Extract hostname for SNI
	host := req.URL.Hostname()

	tlsConfig := &utls.Config{
		ServerName: host,
	}

	// Safari fingerprint, matching the mobile Safari user agent we send
	utlsConn := utls.UClient(conn, tlsConfig, utls.HelloSafari_16_0)

	if err := utlsConn.Handshake(); err != nil {
		conn.Close()
		return nil, err
	}

	// Check negotiated protocol
	alpn := utlsConn.ConnectionState().NegotiatedProtocol

	if alpn == "h2" {
		h2Conn, err := t.h2Transport.NewClientConn(utlsConn)
		if err != nil {
			conn.Close()
			return nil, err
		}
		return h2Conn.RoundTrip(req)
	}

	// Fallback to HTTP/1.1
	return t.doHTTP1Request(utlsConn, req)
}

func (t *utlsRoundTripper) doHTTP1Request(conn net.Conn, req *http.Request) (*http.Response, error) {
	if err := req.Write(conn); err != nil {
		conn.Close()
		return nil, err
	}

	resp, err := http.ReadResponse(bufio.NewReader(conn), req)
	if err != nil {
		conn.Close()
		return nil, err
	}

	// Wrap body to close connection when done
	resp.Body = &connCloser{resp.Body, conn}
	return resp, nil
}

type connCloser struct {
	io.ReadCloser
	conn net.Conn
}

func (c *connCloser) Close() error {
	c.ReadCloser.Close()
	return c.conn.Close()
}
