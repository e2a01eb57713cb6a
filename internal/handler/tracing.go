package handler

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// routeSpan renames the enclosing server span after the matched gin route
// and labels its request metrics with the same route template. Requests
// that match no route keep the method-only name.
func routeSpan() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		attr := attribute.String("http.route", route)

		span := trace.SpanFromContext(ctx)
		span.SetName(c.Request.Method + " " + route)
		span.SetAttributes(attr)
		if labeler, ok := otelhttp.LabelerFromContext(ctx); ok {
			labeler.Add(attr)
		}
		c.Next()
	}
}
