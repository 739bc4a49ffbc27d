// Package httpserver — служебный HTTP: /healthz и корень для проверки живости.
package httpserver

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Check — проверка одной зависимости; nil — в порядке.
type Check func(ctx context.Context) error

type NamedCheck struct {
	Name  string
	Check Check
}

const checkTimeout = 2 * time.Second

// Register вешает /healthz и / на mux. Webhook tgbotapi регистрируется на
// DefaultServeMux, поэтому в main сюда передаётся именно он.
func Register(mux *http.ServeMux, checks ...NamedCheck) {
	mux.HandleFunc("/healthz", Health(checks...))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("document scanner bot"))
	})
}

// Health отвечает 200 "ok", если все проверки прошли, иначе 503 со списком проблем.
func Health(checks ...NamedCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		defer cancel()

		var failed []string
		for _, c := range checks {
			if err := c.Check(ctx); err != nil {
				failed = append(failed, c.Name+": not ok\n"+err.Error())
			}
		}
		if len(failed) > 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(strings.Join(failed, "\n")))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

// Start слушает addr до ошибки.
func Start(addr string, h http.Handler, log *zap.SugaredLogger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Infow("http server listening", "addr", addr)
	return srv.ListenAndServe()
}
