// Package security は外部URLへのアクセス制御と取り込みテキストの無害化を提供する。
package security

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// ErrBlockedURL は内部ネットワーク宛てなど、アクセスを許可しないURLを表す。
var ErrBlockedURL = errors.New("blocked URL")

// URLGuard はフィードURLの事前検証とSSRF対策済みHTTPクライアントの生成を行う。
// ソース登録時とワーカーのフェッチ時の両方で使用する。
type URLGuard interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration) *http.Client
}

var allowedSchemes = []string{"http", "https"}

// blockedNetworks はIPアドレスで指定されたURLを拒否する範囲。
// ホスト名の場合はDNS解決後に safeurl のダイアラーが同等の検証を行う。
var blockedNetworks = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16", // クラウドのメタデータIPを含む
	"100.64.0.0/10",
	"0.0.0.0/8",
	"::1/128",
	"fe80::/10",
	"fc00::/7",
)

var blockedHostnames = []string{"localhost", "metadata.google.internal"}

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, n, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR %q: %v", cidr, err))
		}
		nets = append(nets, n)
	}
	return nets
}

// Guard はURLGuardの実装。
type Guard struct {
	ports []int
}

// NewGuard はGuardを生成する。ports を省略した場合は 80 と 443 のみ許可する。
func NewGuard(ports ...int) *Guard {
	if len(ports) == 0 {
		ports = []int{80, 443}
	}
	return &Guard{ports: ports}
}

// NewSafeClient はプライベート・ループバック・リンクローカル宛ての接続を拒否するHTTPクライアントを返す。
// 接続先の検証はDNS解決後に行われるため、DNSリバインディングも防げる。
func (g *Guard) NewSafeClient(timeout time.Duration) *http.Client {
	cfg := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(g.ports...).
		Build()
	return safeurl.Client(cfg).Client
}

// ValidateURL はDNS解決を伴わない静的な検証を行う。
func (g *Guard) ValidateURL(rawURL string) error {
	if strings.TrimSpace(rawURL) == "" {
		return fmt.Errorf("%w: empty URL", ErrBlockedURL)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBlockedURL, err)
	}
	if !slices.Contains(allowedSchemes, strings.ToLower(u.Scheme)) {
		return fmt.Errorf("%w: scheme %q is not allowed", ErrBlockedURL, u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("%w: missing host", ErrBlockedURL)
	}
	if u.User != nil {
		return fmt.Errorf("%w: credentials in URL", ErrBlockedURL)
	}

	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return fmt.Errorf("%w: address %s", ErrBlockedURL, ip)
		}
		return nil
	}
	if slices.Contains(blockedHostnames, strings.TrimSuffix(host, ".")) || strings.HasSuffix(host, ".localhost") {
		return fmt.Errorf("%w: host %s", ErrBlockedURL, host)
	}
	return nil
}

func isBlockedIP(ip net.IP) bool {
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	for _, n := range blockedNetworks {
		if n.Contains(ip) {
			return true
		}
	}
	return ip.IsUnspecified() || ip.IsMulticast()
}

var _ URLGuard = (*Guard)(nil)
