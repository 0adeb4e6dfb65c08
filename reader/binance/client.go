package binance

import (
	"net"
	"net/http"
	"strings"

	futures "github.com/adshao/go-binance/v2/futures"

	"moverscan/config"
	"moverscan/logger"
)

// NewClient builds the shared futures client. Public market data needs no
// API key; the client carries the pooled HTTP transport and base URL used by
// every request of a run.
func NewClient(cfg config.BinanceSourceConfig) *futures.Client {
	log := logger.GetLogger()

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.ConnectionPool.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.ConnectionPool.MaxIdleConns,
		MaxConnsPerHost:     cfg.ConnectionPool.MaxConnsPerHost,
		IdleConnTimeout:     cfg.ConnectionPool.IdleConnTimeout,
	}

	if cfg.LocalIP != "" {
		if ip := net.ParseIP(cfg.LocalIP); ip != nil {
			dialer := &net.Dialer{LocalAddr: &net.TCPAddr{IP: ip}}
			transport.DialContext = dialer.DialContext
		} else {
			log.WithComponent("binance_reader").WithFields(logger.Fields{"local_ip": cfg.LocalIP}).Warn("ignoring unparsable local ip")
		}
	}

	client := futures.NewClient("", "")
	client.HTTPClient = &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}
	if cfg.BaseURL != "" {
		client.SetApiEndpoint(strings.TrimRight(cfg.BaseURL, "/"))
	}

	log.WithComponent("binance_reader").WithFields(logger.Fields{
		"base_url":           client.BaseURL,
		"max_idle_conns":     cfg.ConnectionPool.MaxIdleConns,
		"max_conns_per_host": cfg.ConnectionPool.MaxConnsPerHost,
		"timeout":            cfg.Timeout,
	}).Info("binance client initialized")

	return client
}
