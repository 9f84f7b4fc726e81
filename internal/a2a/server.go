package a2a

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/volcengine/veadk-go/apps"
	"github.com/volcengine/veadk-go/apps/a2a_app"
	"google.golang.org/adk/agent"

	"github.com/zhengjr9/admin-chat/internal/auth"
	"github.com/zhengjr9/admin-chat/internal/httputil"
)

// Serve runs the A2A server for ag on port until ctx is cancelled.
func Serve(ctx context.Context, port int, ag agent.Agent) error {
	inner := a2a_app.NewAgentkitA2AServerApp(
		apps.DefaultApiConfig().SetPort(port),
	)
	app := &authMiddlewareApp{BasicApp: inner}
	return app.Run(ctx, &apps.RunConfig{
		AgentLoader: agent.NewSingleLoader(ag),
	})
}

// authMiddlewareApp wraps a BasicApp and installs a middleware on its mux
// router that moves the caller's bearer token into the request context,
// where the session facade prefers it over the configured token.
type authMiddlewareApp struct {
	apps.BasicApp
}

// Run passes w itself to apps.Run; the embedded Run would hand over the
// inner app and our SetupRouters would never be called.
func (w *authMiddlewareApp) Run(ctx context.Context, config *apps.RunConfig) error {
	return apps.Run(ctx, config, w)
}

func (w *authMiddlewareApp) SetupRouters(router *mux.Router, config *apps.RunConfig) error {
	if err := w.BasicApp.SetupRouters(router, config); err != nil {
		return err
	}
	router.Use(bearerTokenMiddleware)
	return nil
}

func bearerTokenMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token := httputil.BearerToken(r); token != "" {
			r = r.WithContext(auth.ContextWithToken(r.Context(), token))
		}
		next.ServeHTTP(w, r)
	})
}
