package middleware

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/deskforge/deskforge/pkg/access"
	"github.com/deskforge/deskforge/pkg/contextkeys"
	"github.com/gorilla/mux"
)

// RequirePermission creates middleware that denies the request unless the
// authenticated identity holds a grant for the action on the resource.
// When the route carries a {team_id} or {identity_id} variable, it is
// passed as the check target so team and own tier grants evaluate against
// the addressed resource.
func RequirePermission(engine *access.Engine, action access.Action, resource access.Resource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identityID, ok := contextkeys.GetIdentity(r.Context())
			if !ok {
				unauthorizedResponse(w, "authentication required")
				return
			}

			check := access.Check{
				IdentityID: identityID,
				Action:     action,
				Resource:   resource,
			}

			vars := mux.Vars(r)
			if raw, ok := vars["team_id"]; ok {
				teamID, err := strconv.ParseInt(raw, 10, 64)
				if err != nil {
					http.Error(w, "invalid team ID", http.StatusBadRequest)
					return
				}
				check.TargetTeamID = &teamID
			}
			if raw, ok := vars["identity_id"]; ok {
				targetID, err := strconv.ParseInt(raw, 10, 64)
				if err != nil {
					http.Error(w, "invalid identity ID", http.StatusBadRequest)
					return
				}
				check.TargetIdentityID = &targetID
			}

			if err := engine.RequirePermission(r.Context(), check); err != nil {
				var denied *access.InsufficientPermissionsError
				switch {
				case errors.As(err, &denied):
					forbiddenResponse(w, denied.Error())
				case errors.Is(err, access.ErrIdentityNotFound):
					unauthorizedResponse(w, "unknown identity")
				default:
					http.Error(w, "internal error", http.StatusInternalServerError)
				}
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
