package handler

import (
	"strings"

	"github.com/labstack/echo/v4"

	"cors-devproxy/internal/model"
	"cors-devproxy/internal/service"
)

// Dispatcher makes the per-request routing decision between static serving
// and upstream forwarding.
type Dispatcher struct {
	service *service.ForwardService
	proxy   *ProxyHandler
	static  *StaticHandler
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(svc *service.ForwardService, proxy *ProxyHandler, static *StaticHandler) *Dispatcher {
	return &Dispatcher{service: svc, proxy: proxy, static: static}
}

// Serve classifies the request once and hands it to the matching handler.
func (d *Dispatcher) Serve(c echo.Context) error {
	route := d.service.Classify(requestTarget(c))
	if route.Kind == model.RouteAPI {
		return d.proxy.Forward(c, route.Remainder)
	}
	return d.static.Serve(c)
}

// requestTarget returns the path and query exactly as sent by the client.
func requestTarget(c echo.Context) string {
	req := c.Request()
	if strings.HasPrefix(req.RequestURI, "/") {
		return req.RequestURI
	}
	// Absolute-form targets and requests built without RequestURI.
	return req.URL.RequestURI()
}
