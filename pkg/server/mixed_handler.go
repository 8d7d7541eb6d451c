package server

import (
	"net/http"
	"strings"
)

// NewMixedHandler 在 TLS 模式下按请求分流：gRPC 调用交给 grpcHandler，其余交给 httpHandler。
// 明文模式不经过这里，由 cmux 在连接层分流。
func NewMixedHandler(grpcHandler, httpHandler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isGRPCRequest(r) {
			grpcHandler.ServeHTTP(w, r)
			return
		}
		httpHandler.ServeHTTP(w, r)
	})
}

// isGRPCRequest gRPC 只跑在 HTTP/2 上，content-type 可带 +proto 等后缀
func isGRPCRequest(r *http.Request) bool {
	if r.ProtoMajor != 2 {
		return false
	}
	contentType := r.Header.Get("Content-Type")
	return contentType == "application/grpc" || strings.HasPrefix(contentType, "application/grpc+")
}
