package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/valyala/fastjson"

	"messager/internal/storage"
)

// The handlers below back the /admin surface; requireAdmin runs before each.

// listUsers handles HTTP requests on "GET /admin/users"
func (h *handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.Users(r.Context())
	if err != nil {
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if users == nil {
		users = []storage.User{}
	}

	h.respondJSON(w, http.StatusOK, users)
}

// createUser handles HTTP requests on "POST /admin/users". The store
// reconciles the new user into the default channel as part of creation.
func (h *handler) createUser(w http.ResponseWriter, r *http.Request) {
	actor, _ := userFromContext(r.Context())
	body, _ := io.ReadAll(r.Body)

	parser := h.parsers.createUserPool.Get()
	defer h.parsers.createUserPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	if !v.Exists("username") {
		http.Error(w, "Missing Field \"username\"", http.StatusBadRequest)
		return
	}

	username := string(v.GetStringBytes("username"))
	if len(username) == 0 {
		http.Error(w, "Field \"username\" must be a string and have non-zero length", http.StatusBadRequest)
		return
	}

	email := string(v.GetStringBytes("email"))

	user, err := h.store.CreateUser(r.Context(), username, email, false)
	if err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			http.Error(w, "User already exists", http.StatusBadRequest)
			return
		}
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.store.AppendAudit(r.Context(), actor.ID, "CREATE_USER", "Created user "+username)

	h.respondJSON(w, http.StatusCreated, user)
}

// updateUser handles HTTP requests on "PATCH /admin/users/{id}"
func (h *handler) updateUser(w http.ResponseWriter, r *http.Request) {
	actor, _ := userFromContext(r.Context())

	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "User id must be a positive integer", http.StatusBadRequest)
		return
	}

	body, _ := io.ReadAll(r.Body)

	parser := h.parsers.updateUserPool.Get()
	defer h.parsers.updateUserPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	var upd storage.UserUpdate

	if v.Exists("email") {
		emailValue := v.Get("email")
		if emailValue.Type() != fastjson.TypeString {
			http.Error(w, "Field \"email\" must be a string", http.StatusBadRequest)
			return
		}
		email := string(emailValue.GetStringBytes())
		upd.Email = &email
	}

	if v.Exists("is_admin") {
		adminValue := v.Get("is_admin")
		isAdmin, err := adminValue.Bool()
		if err != nil {
			http.Error(w, "Field \"is_admin\" must be a boolean", http.StatusBadRequest)
			return
		}
		if id == actor.ID && !isAdmin {
			http.Error(w, "You cannot revoke your own administrator rights", http.StatusBadRequest)
			return
		}
		upd.IsAdmin = &isAdmin
	}

	user, err := h.store.UpdateUser(r.Context(), id, upd)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrUserNotExist):
			http.Error(w, "User not found", http.StatusNotFound)
		case errors.Is(err, storage.ErrUserExists):
			http.Error(w, "Email already in use", http.StatusBadRequest)
		default:
			h.logger.Error(err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	h.store.AppendAudit(r.Context(), actor.ID, "UPDATE_USER", "Updated user "+user.Username)

	h.respondJSON(w, http.StatusOK, user)
}

// deleteUser handles HTTP requests on "DELETE /admin/users/{id}"
func (h *handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	actor, _ := userFromContext(r.Context())

	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "User id must be a positive integer", http.StatusBadRequest)
		return
	}

	if id == actor.ID {
		http.Error(w, "You cannot delete yourself", http.StatusBadRequest)
		return
	}

	if err := h.store.DeleteUser(r.Context(), id, actor.ID); err != nil {
		if errors.Is(err, storage.ErrUserNotExist) {
			http.Error(w, "User not found", http.StatusNotFound)
			return
		}
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.store.AppendAudit(r.Context(), actor.ID, "DELETE_USER", "Deleted user id "+strconv.FormatInt(id, 10))

	h.respondDetail(w, http.StatusOK, "User deleted")
}
