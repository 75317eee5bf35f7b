package demo

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/GoCodeAlone/webmod"
)

// accessLog logs each request as it enters the chain.
func accessLog(logger webmod.Logger) webmod.Middleware {
	return func(req *webmod.Request, res *webmod.Response, next webmod.Next) *webmod.Response {
		logger.Info("Request",
			"method", req.Method,
			"path", req.Path,
			"route", req.Meta.RoutePath,
			"client", req.Meta.ClientIP,
			"requestID", req.Meta.RequestID,
			"at", time.Now().Format(time.RFC3339),
		)
		return next(req, res)
	}
}

func poweredBy(req *webmod.Request, res *webmod.Response, next webmod.Next) *webmod.Response {
	res.SetHeader("X-Powered-By", "webmod")
	return next(req, res)
}

// requireAdmin rejects requests without the configured token. An empty
// configured token locks the area entirely.
func requireAdmin(req *webmod.Request, res *webmod.Response, next webmod.Next) *webmod.Response {
	settings, ok := webmod.GetProvider[*AdminSettings](req)
	token := req.Header(HeaderAdminToken)
	if !ok || settings.Token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(settings.Token)) != 1 {
		return webmod.NewResponse().Text(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
	}
	return next(req, res)
}
