// Package security は外部リクエストの安全性検証を提供する。
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

// SSRFGuardService はワークフロー実行時の外部エンドポイント呼び出しを
// SSRF攻撃から保護するためのインターフェース。
type SSRFGuardService interface {
	// NewSafeClient は宛先IPを接続直前に検証するHTTPクライアントを生成する。
	NewSafeClient(timeout time.Duration) *http.Client

	// ValidateURL はディスパッチ先URLを静的に検証し、
	// 内部ネットワークを指すURLを拒否する。
	ValidateURL(rawURL string) error
}

// 許可するスキームとポート。カタログのエンドポイントはHTTPSのみだが、
// ローカル開発用モックのためにhttpも受け付ける。
var (
	allowedSchemes = []string{"http", "https"}
	allowedPorts   = []int{80, 443}
)

// deniedPrefixes は接続を拒否するアドレス帯。
// RFC 1918のプライベート帯、ループバック、リンクローカル
// （クラウドメタデータの169.254.169.254を含む）、およびIPv6の相当帯。
var deniedPrefixes = func() []netip.Prefix {
	raw := []string{
		"0.0.0.0/8",
		"10.0.0.0/8",
		"127.0.0.0/8",
		"169.254.0.0/16",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"::1/128",
		"fc00::/7",
		"fe80::/10",
	}
	prefixes := make([]netip.Prefix, 0, len(raw))
	for _, s := range raw {
		prefixes = append(prefixes, netip.MustParsePrefix(s))
	}
	return prefixes
}()

type ssrfGuard struct{}

// NewSSRFGuard はSSRFGuardServiceの実装を生成する。
func NewSSRFGuard() *ssrfGuard {
	return &ssrfGuard{}
}

var _ SSRFGuardService = (*ssrfGuard)(nil)

// NewSafeClient は宛先検証付きHTTPクライアントを生成する。
// safeurlはDialerのControlフックで解決済みIPを検証するため、
// ValidateURL通過後にDNSレコードを差し替えるリバインディング攻撃も防げる。
func (g *ssrfGuard) NewSafeClient(timeout time.Duration) *http.Client {
	cfg := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(allowedPorts...).
		Build()

	return safeurl.Client(cfg).Client
}

// ValidateURL はURLを解決せずに検証する。ホストが生IPの場合は
// 拒否帯との照合まで行い、ホスト名の場合はlocalhost類のみ弾く。
// 解決後のIP検証はNewSafeClientのクライアント側が担う。
func (g *ssrfGuard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if !schemeAllowed(parsed.Scheme) {
		return fmt.Errorf("disallowed scheme %q (allowed: %v)", parsed.Scheme, allowedSchemes)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("missing host in URL: %s", rawURL)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if addrDenied(addr) {
			return fmt.Errorf("destination address %s is not routable from this service", addr)
		}
		return nil
	}

	if hostnameDenied(host) {
		return fmt.Errorf("destination host %q is not allowed", host)
	}

	return nil
}

func schemeAllowed(scheme string) bool {
	for _, s := range allowedSchemes {
		if strings.EqualFold(scheme, s) {
			return true
		}
	}
	return false
}

func addrDenied(addr netip.Addr) bool {
	// 4-in-6表記 (::ffff:10.0.0.1) でIPv4帯をすり抜けられないよう正規化する
	addr = addr.Unmap()
	for _, p := range deniedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func hostnameDenied(host string) bool {
	return strings.EqualFold(strings.TrimSuffix(host, "."), "localhost")
}
