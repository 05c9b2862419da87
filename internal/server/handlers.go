package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/valyala/fastjson"
	"go.uber.org/zap"

	"messager/internal/access"
	"messager/internal/broadcast"
	"messager/internal/sanitize"
	"messager/internal/storage"
)

type parsers struct {
	createChannelPool fastjson.ParserPool
	createMessagePool fastjson.ParserPool
	addMemberPool     fastjson.ParserPool
	createUserPool    fastjson.ParserPool
	updateUserPool    fastjson.ParserPool
}

type handler struct {
	logger   *zap.SugaredLogger
	store    *storage.Store
	hub      *broadcast.Hub
	notifier Notifier
	images   ImagePipeline
	parsers  parsers
}

func (h *handler) respondJSON(w http.ResponseWriter, status int, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(payload); err != nil {
		h.logger.Errorf("writing marshaled data to ResponseWriter: %v", err)
	}
}

func (h *handler) respondDetail(w http.ResponseWriter, status int, detail string) {
	h.respondJSON(w, status, map[string]string{"detail": detail})
}

// pathID parses the named wildcard of the matched route as an id
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	return id, err == nil && id > 0
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// listChannels handles HTTP requests on "GET /channels"
func (h *handler) listChannels(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())

	channels, err := h.store.ChannelsVisibleTo(r.Context(), user)
	if err != nil {
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if channels == nil {
		channels = []storage.Channel{}
	}

	h.respondJSON(w, http.StatusOK, channels)
}

// createChannel handles HTTP requests on "POST /channels"
func (h *handler) createChannel(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	body, _ := io.ReadAll(r.Body)

	parser := h.parsers.createChannelPool.Get()
	defer h.parsers.createChannelPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	if !v.Exists("name") {
		http.Error(w, "Missing Field \"name\"", http.StatusBadRequest)
		return
	}

	nameValue := v.Get("name")
	if nameValue.Type() != fastjson.TypeString {
		http.Error(w, "Field \"name\" must be a string", http.StatusBadRequest)
		return
	}

	name := strings.TrimSpace(string(nameValue.GetStringBytes()))
	if len(name) == 0 {
		http.Error(w, "Field \"name\" must have non-zero length", http.StatusBadRequest)
		return
	}

	channel, err := h.store.CreateChannel(r.Context(), name, user.ID)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrChannelExists):
			http.Error(w, "Channel with this name already exists", http.StatusBadRequest)
		case errors.Is(err, storage.ErrEmptyName):
			http.Error(w, "Field \"name\" must have non-zero length", http.StatusBadRequest)
		default:
			h.logger.Error(err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	h.respondJSON(w, http.StatusCreated, channel)
}

// deleteChannel handles HTTP requests on "DELETE /channels/{id}" and its
// admin alias. The fan-out event is enqueued only after the store committed.
func (h *handler) deleteChannel(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())

	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "Channel id must be a positive integer", http.StatusBadRequest)
		return
	}

	channel, err := h.store.ChannelByID(r.Context(), id)
	if err != nil {
		h.channelLookupError(w, err)
		return
	}

	if channel.Name == h.store.DefaultChannelName() {
		http.Error(w, "The default channel cannot be deleted", http.StatusBadRequest)
		return
	}
	if !access.CanDeleteChannel(user, channel, h.store.DefaultChannelName()) {
		http.Error(w, "Only the channel creator may delete it", http.StatusForbidden)
		return
	}

	if err := h.store.DeleteChannel(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, storage.ErrChannelNotExist):
			http.Error(w, "Channel not found", http.StatusNotFound)
		case errors.Is(err, storage.ErrCannotDeleteDefault):
			http.Error(w, "The default channel cannot be deleted", http.StatusBadRequest)
		default:
			h.logger.Error(err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	h.hub.Broadcast(broadcast.ChannelDeleted(id))
	if user.IsAdmin {
		h.store.AppendAudit(r.Context(), user.ID, "DELETE_CHANNEL", "Deleted channel "+channel.Name)
	}

	h.respondDetail(w, http.StatusOK, "Channel deleted")
}

// addMember handles HTTP requests on "POST /channels/{id}/members"
func (h *handler) addMember(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())

	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "Channel id must be a positive integer", http.StatusBadRequest)
		return
	}

	body, _ := io.ReadAll(r.Body)

	parser := h.parsers.addMemberPool.Get()
	defer h.parsers.addMemberPool.Put(parser)
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

	channel, err := h.store.ChannelByID(r.Context(), id)
	if err != nil {
		h.channelLookupError(w, err)
		return
	}

	if !access.CanManageMembers(user, channel) {
		http.Error(w, "Only the channel creator may manage members", http.StatusForbidden)
		return
	}

	target, err := h.store.UserByUsername(r.Context(), username)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotExist) {
			http.Error(w, "User not found", http.StatusNotFound)
			return
		}
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	added, err := h.store.AddMember(r.Context(), channel.ID, target.ID)
	if err != nil {
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if !added {
		h.respondDetail(w, http.StatusOK, "User is already a member")
		return
	}
	h.respondDetail(w, http.StatusOK, "User "+target.Username+" added")
}

// removeMember handles HTTP requests on "DELETE /channels/{id}/members/{userID}"
func (h *handler) removeMember(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())

	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "Channel id must be a positive integer", http.StatusBadRequest)
		return
	}
	targetID, ok := pathID(r, "userID")
	if !ok {
		http.Error(w, "User id must be a positive integer", http.StatusBadRequest)
		return
	}

	channel, err := h.store.ChannelByID(r.Context(), id)
	if err != nil {
		h.channelLookupError(w, err)
		return
	}

	target, err := h.store.UserByID(r.Context(), targetID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotExist) {
			http.Error(w, "User not found", http.StatusNotFound)
			return
		}
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if !access.CanManageMembers(user, channel) {
		http.Error(w, "Only the channel creator may manage members", http.StatusForbidden)
		return
	}
	if !access.CanRemoveMember(user, channel, target) {
		http.Error(w, "The channel creator cannot be removed", http.StatusBadRequest)
		return
	}

	if err := h.store.RemoveMember(r.Context(), channel.ID, target.ID); err != nil {
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.respondDetail(w, http.StatusOK, "Member removed")
}

// listMessages handles HTTP requests on "GET /channels/{id}/messages"
func (h *handler) listMessages(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())

	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "Channel id must be a positive integer", http.StatusBadRequest)
		return
	}

	channel, err := h.store.ChannelByID(r.Context(), id)
	if err != nil {
		h.channelLookupError(w, err)
		return
	}

	if !access.CanRead(user, channel) {
		http.Error(w, "You do not have access to this channel", http.StatusForbidden)
		return
	}

	messages, err := h.store.MessagesByChannelID(r.Context(), channel.ID)
	if err != nil {
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if messages == nil {
		messages = []storage.Message{}
	}

	h.respondJSON(w, http.StatusOK, messages)
}

// createMessage handles HTTP requests on "POST /channels/{id}/messages".
// Content passes the sanitization contract before storage; the new_message
// event is enqueued strictly after the insert commits.
func (h *handler) createMessage(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())

	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "Channel id must be a positive integer", http.StatusBadRequest)
		return
	}

	body, _ := io.ReadAll(r.Body)

	parser := h.parsers.createMessagePool.Get()
	defer h.parsers.createMessagePool.Put(parser)
	v, _ := parser.ParseBytes(body)

	if !v.Exists("content") {
		http.Error(w, "Missing Field \"content\"", http.StatusBadRequest)
		return
	}

	contentValue := v.Get("content")
	if contentValue.Type() != fastjson.TypeString {
		http.Error(w, "Field \"content\" must be a string", http.StatusBadRequest)
		return
	}

	content := sanitize.Content(string(contentValue.GetStringBytes()))
	imageURL := string(v.GetStringBytes("image_url"))
	thumbnailURL := string(v.GetStringBytes("thumbnail_url"))

	if content == "" && imageURL == "" {
		http.Error(w, "Message must carry text or an image", http.StatusBadRequest)
		return
	}

	channel, err := h.store.ChannelByID(r.Context(), id)
	if err != nil {
		h.channelLookupError(w, err)
		return
	}

	if !access.CanWrite(user, channel) {
		http.Error(w, "You do not have access to this channel", http.StatusForbidden)
		return
	}

	message, err := h.store.CreateMessage(r.Context(), channel.ID, user.ID, content, imageURL, thumbnailURL)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrChannelNotExist):
			http.Error(w, "Channel not found", http.StatusNotFound)
		case errors.Is(err, storage.ErrUserNotExist):
			http.Error(w, "User not found", http.StatusNotFound)
		default:
			h.logger.Error(err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	h.hub.Broadcast(broadcast.NewMessage(message))
	h.notify(r.Context(), "new_message", "message "+strconv.FormatInt(message.ID, 10)+" in channel "+channel.Name)

	h.respondJSON(w, http.StatusCreated, message)
}

// deleteMessage handles HTTP requests on "DELETE /messages/{id}"
func (h *handler) deleteMessage(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())

	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "Message id must be a positive integer", http.StatusBadRequest)
		return
	}

	message, err := h.store.MessageByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrMessageNotExist) {
			http.Error(w, "Message not found", http.StatusNotFound)
			return
		}
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if !access.CanDeleteMessage(user, message) {
		http.Error(w, "You may delete only your own messages", http.StatusForbidden)
		return
	}

	if err := h.store.DeleteMessage(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrMessageNotExist) {
			http.Error(w, "Message not found", http.StatusNotFound)
			return
		}
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.hub.Broadcast(broadcast.MessageDeleted(message.ID, message.ChannelID))

	h.respondDetail(w, http.StatusOK, "Message deleted")
}

func (h *handler) channelLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrChannelNotExist) {
		http.Error(w, "Channel not found", http.StatusNotFound)
		return
	}
	h.logger.Error(err)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}
