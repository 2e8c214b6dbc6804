// Package security はIdPへの送信保護とIdP由来の表示名の無害化を提供する。
package security

import (
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// SSRFGuardService はIdPなど外部エンドポイントへの送信を保護するインターフェース。
// OAuthのトークン交換とユーザー情報取得で使用される。
type SSRFGuardService interface {
	// NewSafeClient はSSRF防止機能付きのHTTPクライアントを生成する。
	// プライベートIP、ループバック、リンクローカル、メタデータIPへの接続はDialerで拒否される。
	NewSafeClient(timeout time.Duration) *http.Client

	// ValidateURL は設定されたエンドポイントURLを起動時に静的検証する。
	ValidateURL(rawURL string) error
}

// idpPort はIdPエンドポイントに許可する唯一のポート。
const idpPort = 443

// blockedPrefixes はValidateURLでブロックするアドレス範囲。
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"), // CGNAT
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"), // メタデータIPを含む
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
}

// blockedHostSuffixes はクラスタ内部やメタデータサーバーを指すホスト名。
var blockedHostSuffixes = []string{"localhost", "internal", "local"}

// SSRFGuard はSSRFGuardServiceの実装。
// 許可ホストを指定した場合、それ以外のホストへの送信を拒否する。
type SSRFGuard struct {
	allowedHosts map[string]struct{}
}

// NewSSRFGuard はSSRFGuardを生成する。
// allowedHostsが空の場合はホスト名による制限を行わない。
func NewSSRFGuard(allowedHosts ...string) *SSRFGuard {
	g := &SSRFGuard{}
	if len(allowedHosts) > 0 {
		g.allowedHosts = make(map[string]struct{}, len(allowedHosts))
		for _, h := range allowedHosts {
			g.allowedHosts[strings.ToLower(h)] = struct{}{}
		}
	}
	return g
}

// NewSafeClient はsafeurlによるHTTPクライアントを生成する。
// httpsの443番ポートのみ許可し、DNS解決後のIPアドレスも検証する。
func (g *SSRFGuard) NewSafeClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("https").
		SetAllowedPorts(idpPort).
		Build()

	client := safeurl.Client(config).Client
	if g.allowedHosts != nil {
		client.Transport = &hostAllowlistTransport{base: client.Transport, hosts: g.allowedHosts}
	}
	return client
}

// ValidateURL はURLの安全性をDNS解決なしで検証する。
func (g *SSRFGuard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if !strings.EqualFold(parsed.Scheme, "https") {
		return fmt.Errorf("disallowed scheme: %q (allowed: https)", parsed.Scheme)
	}
	if parsed.User != nil {
		return fmt.Errorf("credentials in URL are not allowed")
	}
	if port := parsed.Port(); port != "" && port != fmt.Sprint(idpPort) {
		return fmt.Errorf("disallowed port: %s", port)
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if isBlockedAddr(addr) {
			return fmt.Errorf("blocked IP address: %s", addr)
		}
	} else if isBlockedHostname(host) {
		return fmt.Errorf("blocked host: %s", host)
	}

	if !g.hostAllowed(host) {
		return fmt.Errorf("host is not an allowed IdP endpoint: %s", host)
	}
	return nil
}

func (g *SSRFGuard) hostAllowed(host string) bool {
	if g.allowedHosts == nil {
		return true
	}
	_, ok := g.allowedHosts[strings.ToLower(host)]
	return ok
}

func isBlockedAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, prefix := range blockedPrefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func isBlockedHostname(host string) bool {
	for _, suffix := range blockedHostSuffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

// hostAllowlistTransport は許可ホスト以外へのリクエストをダイヤル前に拒否する。
// IdPからのリダイレクト先も同じ制限を受ける。
type hostAllowlistTransport struct {
	base  http.RoundTripper
	hosts map[string]struct{}
}

func (t *hostAllowlistTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	host := strings.ToLower(req.URL.Hostname())
	if _, ok := t.hosts[host]; !ok {
		return nil, fmt.Errorf("request to %s is not allowed", host)
	}
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}
