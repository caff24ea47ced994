package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type userData struct {
	Name              string `json:"name"`
	IsAccountVerified bool   `json:"isAccountVerified"`
}

type userDataResponse struct {
	Success  bool     `json:"success"`
	UserData userData `json:"userData"`
}

// UserRouter registers the signed-in user's routes.
func UserRouter(r chi.Router, h *AuthHandler) {
	r.With(h.RequireAuth).Get("/data", h.UserData)
}

// UserData returns the signed-in user's public profile.
func (h *AuthHandler) UserData(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	user, err := h.auth.UserData(r.Context(), userID)
	if err != nil {
		h.fail(w, r, "user_data", http.StatusOK, err)
		return
	}
	h.metrics.AuthOperation("user_data", "success")
	writeJSON(w, http.StatusOK, userDataResponse{
		Success:  true,
		UserData: userData{Name: user.Name, IsAccountVerified: user.IsVerified},
	})
}
