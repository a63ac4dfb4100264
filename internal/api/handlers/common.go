package handlers

import (
	"net/http"
	"strconv"

	"github.com/herderhub/herderhub-api/internal/middleware"
	"github.com/herderhub/herderhub-api/internal/services"
)

func actor(r *http.Request) services.Actor {
	u := middleware.FromCtx(r.Context())
	return services.Actor{UserID: u.UserID, Role: u.Role}
}

// pagination reads limit/offset; bad values fall back to zero and the
// service applies its defaults.
func pagination(r *http.Request) (limit, offset int) {
	q := r.URL.Query()
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		limit = n
	}
	if n, err := strconv.Atoi(q.Get("offset")); err == nil && n >= 0 {
		offset = n
	}
	return limit, offset
}
