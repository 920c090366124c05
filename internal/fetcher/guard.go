package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"syscall"
)

// ErrBlockedAddress 目标解析到回环、内网、链路本地或未指定地址
var ErrBlockedAddress = errors.New("destination address is not allowed")

// blockedIP 不允许抓取的地址段
func blockedIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast()
}

// guardDial 作为 net.Dialer.Control，在 DNS 解析之后、建立连接之前检查地址，
// 重定向后的每一次拨号同样经过这里
func guardDial(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, host)
	}
	if blockedIP(ip) {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, ip)
	}
	return nil
}

// checkHost 解析 URL 的主机并检查所有地址。CycleTLS 不暴露拨号钩子，只能在请求前检查
func checkHost(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("%w: empty host", ErrBlockedAddress)
	}
	if ip := net.ParseIP(host); ip != nil {
		if blockedIP(ip) {
			return fmt.Errorf("%w: %s", ErrBlockedAddress, ip)
		}
		return nil
	}

	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return err
	}
	for _, addr := range addrs {
		if blockedIP(addr.IP) {
			return fmt.Errorf("%w: %s resolves to %s", ErrBlockedAddress, host, addr.IP)
		}
	}
	return nil
}
