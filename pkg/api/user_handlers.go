package api

import (
	"net/http"

	"github.com/bridgehq/bridge-accounts/pkg/account"
	"github.com/bridgehq/bridge-accounts/pkg/httputil"
)

type updateProfileRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type usersResponse struct {
	Success bool                  `json:"success"`
	Count   int                   `json:"count"`
	Users   []*account.PublicUser `json:"users"`
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	httputil.WriteSuccess(w, authResponse{Success: true, User: user.PublicView()})
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	user := userFromContext(r.Context())
	updated, err := s.service.UpdateProfile(r.Context(), user.ID, req.Name, req.Email)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, authResponse{
		Success: true,
		Message: "profile updated",
		User:    updated,
	})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	user := userFromContext(r.Context())
	if err := s.service.ChangePassword(r.Context(), user.ID, req.CurrentPassword, req.NewPassword); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, messageResponse{Success: true, Message: "password changed"})
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	if err := s.service.DeleteAccount(r.Context(), user.ID, sessionFromContext(r.Context())); err != nil {
		writeServiceError(w, err)
		return
	}
	s.clearSessionCookie(w)
	httputil.WriteSuccess(w, messageResponse{Success: true, Message: "account deleted"})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.service.ListUsers(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, usersResponse{Success: true, Count: len(users), Users: users})
}
