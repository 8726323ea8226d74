package endpoints

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/audit"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/authenticator"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/authenticator/authn"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/authenticator/authn_jwt"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server"
)

const invalidLoginMsg = "Unable to log in with provided credentials."

// TokenResponse is returned by /api/api-token-auth/
type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterAuthenticateEndpoint registers the public token exchange
func RegisterAuthenticateEndpoint(s *server.Server) {
	s.Router.HandleFunc("/api/api-token-auth/", handleTokenAuth(s.Authenticators, s.Tokens, s.Logger)).Methods("POST")
}

func handleTokenAuth(registry *authenticator.Registry, tokens *authn_jwt.Authenticator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") ||
			strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			req.Username = r.FormValue("username")
			req.Password = r.FormValue("password")
		} else if err := decodeJSON(w, r, &req); err != nil {
			respondWithErr(w, logger, err)
			return
		}
		if req.Username == "" || req.Password == "" {
			respondWithError(w, http.StatusBadRequest, map[string]string{"message": "username and password are required"})
			return
		}

		clientIP := requestIP(r)
		event := audit.AuthenticateEvent{
			Username:          req.Username,
			ClientIP:          clientIP,
			AuthenticatorName: authn.Name,
		}

		if !registry.IsEnabled(authn.Name) {
			respondWithError(w, http.StatusUnauthorized, map[string]string{"message": "password authentication is disabled"})
			return
		}
		auth, _ := registry.Get(authn.Name)
		user, err := auth.Authenticate(r.Context(), authenticator.AuthenticatorInput{
			Login:       req.Username,
			Credentials: []byte(req.Password),
			ClientIP:    clientIP,
		})
		if err != nil {
			event.ErrorMessage = err.Error()
			audit.Log(event)
			if errors.Is(err, authenticator.ErrInvalidCredentials) {
				respondWithError(w, http.StatusBadRequest, map[string]string{"message": invalidLoginMsg})
				return
			}
			respondWithErr(w, logger, err)
			return
		}

		token, claims, err := tokens.Issue(user)
		if err != nil {
			respondWithErr(w, logger, err)
			return
		}
		event.Success = true
		audit.Log(event)

		respondWithJSON(w, http.StatusOK, TokenResponse{Token: token, ExpiresAt: claims.ExpiresAt.Unix()})
	}
}
