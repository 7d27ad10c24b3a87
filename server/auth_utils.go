package server

import (
	"encoding/json"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	contentTypeJSON = "application/json; charset=utf-8"

	// maxBodyBytes bounds every request body this server reads.
	maxBodyBytes = 1 << 20
)

// SetSessionCookie issues the SSO session cookie. Its lifetime follows the session's remember-me choice.
func (s *Server) SetSessionCookie(w http.ResponseWriter, sessionToken string, rememberMe bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.config.GetSessionCookieName(),
		Value:    sessionToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.config.GetSecureCookies(),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.sessions.TTL(rememberMe) / time.Second),
	})
}

func (s *Server) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.config.GetSessionCookieName(),
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   s.config.GetSecureCookies(),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// sessionToken reads the SSO session cookie, or "" when there is none.
func (s *Server) sessionToken(r *http.Request) string {
	cookie, err := r.Cookie(s.config.GetSessionCookieName())
	if err != nil {
		return ""
	}
	return cookie.Value
}

// bearerToken extracts the token of an "Authorization: Bearer" header.
func bearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// basicClientCredentials reads RFC 6749 client_secret_basic credentials. Both parts are
// form-urlencoded before being base64 encoded.
func basicClientCredentials(r *http.Request) (clientID, clientSecret string, ok bool) {
	user, pass, ok := r.BasicAuth()
	if !ok {
		return "", "", false
	}
	if id, err := url.QueryUnescape(user); err == nil {
		user = id
	}
	if secret, err := url.QueryUnescape(pass); err == nil {
		pass = secret
	}
	return user, pass, true
}

func isJSONRequest(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}

// decodeBody reads a JSON body into v, or the form values into form for any other content type.
// Exactly one of the two is filled.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) (form url.Values, err error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if isJSONRequest(r) {
		if err := json.NewDecoder(r.Body).Decode(v); err != nil {
			return nil, err
		}
		return nil, nil
	}
	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	return r.PostForm, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
