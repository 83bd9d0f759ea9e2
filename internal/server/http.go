package server

import (
	nethttp "net/http"

	"gamification/internal/biz"
	"gamification/internal/conf"
	"gamification/internal/pkg/hub"
	tracingpkg "gamification/internal/pkg/tracing"
	"gamification/internal/service"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/middleware/tracing"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// NewHTTPServer new an HTTP server.
func NewHTTPServer(c *conf.Server, svc *service.GamificationService, h *hub.Hub, logger log.Logger) *http.Server {
	var opts = []http.ServerOption{
		http.Middleware(
			recovery.Recovery(),
			tracing.Server(),
			tracingpkg.ErrorEnhancer(),
		),
		http.ErrorEncoder(errorEncoder),
	}
	if c.Http != nil {
		if c.Http.Network != "" {
			opts = append(opts, http.Network(c.Http.Network))
		}
		if c.Http.Addr != "" {
			opts = append(opts, http.Address(c.Http.Addr))
		}
		opts = append(opts, http.Timeout(c.Http.Timeout()))
	}
	srv := http.NewServer(opts...)
	registerGamificationHTTPServer(srv, svc)
	srv.HandleFunc("/v1/ws", websocketHandler(svc, h, logger))
	return srv
}

// errorEncoder 输出 StandardErrorResponse，限流错误额外带上 Retry-After 头
func errorEncoder(w nethttp.ResponseWriter, r *nethttp.Request, err error) {
	resp := service.NewStandardErrorResponse(err)
	codec, _ := http.CodecForRequest(r, "Accept")
	body, mErr := codec.Marshal(resp)
	if mErr != nil {
		w.WriteHeader(nethttp.StatusInternalServerError)
		return
	}
	if retryAfter := resp.Metadata[biz.MetadataRetryAfter]; retryAfter != "" {
		w.Header().Set("Retry-After", retryAfter)
	}
	w.Header().Set("Content-Type", "application/"+codec.Name())
	w.WriteHeader(resp.Code)
	_, _ = w.Write(body)
}

// websocketHandler 握手时校验令牌，浏览器无法设置头时允许 ?token= 传入
func websocketHandler(svc *service.GamificationService, h *hub.Hub, logger log.Logger) nethttp.HandlerFunc {
	helper := log.NewHelper(logger)
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		token := service.BearerToken(r.Header.Get("Authorization"))
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		p, err := svc.Authenticate(r.Context(), token)
		if err != nil {
			errorEncoder(w, r, err)
			return
		}
		helper.WithContext(r.Context()).Debugf("Websocket handshake, userID: %d", p.UserID)
		// 升级失败时 hub 已记录日志并写回错误
		_ = h.Serve(w, r, p.UserID)
	}
}
