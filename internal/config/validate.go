package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/mr-tron/base58"

	"github.com/hellomoon/svlm/internal/svlmerr"
)

var allowedNetworks = map[string]bool{
	"mainnet-beta": true,
	"testnet":      true,
	"devnet":       true,
}

// Validate checks every section of cfg, returning the first violation as
// a svlmerr.KindConfig error. Sections are checked in declaration order so
// error messages are deterministic.
func (cfg *Config) Validate() error {
	if cfg.App.Name == "" {
		return configErr("app.name must not be empty")
	}

	if err := validateURL(cfg.Solana.RPCEndpoint, []string{"http", "https"}, false); err != nil {
		return configErr(fmt.Sprintf("solana.rpc_endpoint: %v", err))
	}
	if !allowedNetworks[cfg.Solana.Network] {
		return configErr(fmt.Sprintf("solana.network: %q is not one of mainnet-beta, testnet, devnet", cfg.Solana.Network))
	}

	if cfg.Grpc.Endpoint != "" {
		if err := validateURL(cfg.Grpc.Endpoint, []string{"http", "https"}, false); err != nil {
			return configErr(fmt.Sprintf("grpc.endpoint: %v", err))
		}
	}
	if cfg.Grpc.BufferSize <= 0 {
		return configErr("grpc.buffer_size must be > 0")
	}

	if err := validateURL(cfg.Store.URL, []string{"http", "https"}, true); err != nil {
		return configErr(fmt.Sprintf("store.url: %v", err))
	}
	if cfg.Store.Token == "" {
		return configErr("store.token must not be empty")
	}

	for _, pk := range cfg.Discovery.Whitelist {
		if err := ValidatePubkey(pk); err != nil {
			return configErr(fmt.Sprintf("discovery.whitelist: %v", err))
		}
	}
	for _, pk := range cfg.Discovery.Blacklist {
		if err := ValidatePubkey(pk); err != nil {
			return configErr(fmt.Sprintf("discovery.blacklist: %v", err))
		}
	}

	if cfg.Latency.WindowSize <= 0 {
		return configErr("latency.window_size must be > 0")
	}

	return nil
}

func configErr(msg string) error {
	return svlmerr.New(svlmerr.KindConfig, "config.Validate", fmt.Errorf("%s", msg))
}

// ValidatePubkey reports whether s decodes as base58-of-32-bytes, the
// shape every Solana pubkey must have.
func ValidatePubkey(s string) error {
	decoded, err := base58.Decode(s)
	if err != nil {
		return fmt.Errorf("invalid base58 pubkey %q: %w", s, err)
	}
	if len(decoded) != 32 {
		return fmt.Errorf("pubkey %q decodes to %d bytes, want 32", s, len(decoded))
	}
	return nil
}

// validateURL checks that rawURL has a scheme in allowedSchemes and that
// its host is not localhost or a private, link-local or loopback IP
// literal (loopback is accepted when allowLocalhost is set). Host names
// are not looked up in DNS.
// The store URL is the one caller that permits localhost, since local
// development commonly points it at a local time-series database.
func validateURL(rawURL string, allowedSchemes []string, allowLocalhost bool) error {
	if rawURL == "" {
		return fmt.Errorf("must not be empty")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	schemeOK := false
	for _, s := range allowedSchemes {
		if u.Scheme == s {
			schemeOK = true
			break
		}
	}
	if !schemeOK {
		return fmt.Errorf("scheme %q not in allowed set %v", u.Scheme, allowedSchemes)
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("missing host")
	}

	if isPrivateHost(host) && !(allowLocalhost && isLoopbackHost(host)) {
		return fmt.Errorf("host %q resolves to a private or loopback address", host)
	}

	return nil
}

func isLoopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// isPrivateHost rejects localhost and RFC 1918 / loopback address ranges,
// the same set the original pipeline's security checks reject by default.
func isPrivateHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsPrivate() {
		return true
	}
	return false
}
