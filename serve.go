package main

import (
	"net/http"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// serveSite serves the generated gallery over HTTP for local preview.
func serveSite(siteDir, addr string, logger *zap.SugaredLogger) error {
	if _, err := os.Stat(siteDir); err != nil {
		return errors.Wrapf(err, "site directory %s not found (run the pipeline or `build` first)", siteDir)
	}

	handler := http.FileServer(http.Dir(siteDir))
	mux := http.NewServeMux()
	mux.Handle("/", loggingHandler(handler, logger))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Infof("Serving %s/ at http://%s", siteDir, addr)
	return server.ListenAndServe()
}

func loggingHandler(next http.Handler, logger *zap.SugaredLogger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Debugf("%s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}
