package api

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/ignite/campaign-dispatch/internal/pkg/httputil"
	"github.com/ignite/campaign-dispatch/internal/scheduler"
)

// CronSecretHeader carries the shared secret of the external cron.
const CronSecretHeader = "X-Cron-Secret"

// HandleProcessScheduled runs one tick on behalf of an external cron.
//
//	POST /process-scheduled
func (s *Server) HandleProcessScheduled(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r.Header.Get(CronSecretHeader)) {
		httputil.Unauthorized(w)
		return
	}

	res, err := s.ticker.Tick(r.Context())
	switch {
	case errors.Is(err, scheduler.ErrTickInProgress):
		res.Skipped = true
	case err != nil:
		httputil.InternalError(w, "failed to process scheduled campaigns", err)
		return
	}
	httputil.OK(w, res)
}

func (s *Server) authorized(got string) bool {
	if s.secret == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.secret)) == 1
}
