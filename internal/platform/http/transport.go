package http

import (
	"net"
	"net/http"
	"time"
)

// NewTransport はオブジェクトストレージ等への外向き通信用に設定されたTransportを作成します。
//
// 設定:
//   - Proxy: 環境変数（HTTP_PROXYなど）が設定されている場合に使用
//   - Dialer.Timeout: TCP接続タイムアウト（デフォルトより短い）
//   - MaxIdleConnsPerHost: 同一ホストへの画像アップロードが並ぶため既定の2より多く保持
//   - ResponseHeaderTimeout: 応答が返らないストレージで書き込みが止まらないように制限
//
// 注意:
//   - http.DefaultTransportを書き換えず、常に新しいTransportを返すこと
func NewTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
	}
}
