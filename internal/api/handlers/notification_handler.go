package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"tradecore/internal/models"
	"tradecore/internal/repository"
)

// NotificationHandler - чтение журнала событий движка
type NotificationHandler struct {
	repo *repository.NotificationRepository
}

// NewNotificationHandler создает новый NotificationHandler
func NewNotificationHandler(repo *repository.NotificationRepository) *NotificationHandler {
	return &NotificationHandler{repo: repo}
}

// GetNotificationsResponse - ответ со списком уведомлений
type GetNotificationsResponse struct {
	Notifications []*models.Notification `json:"notifications"`
	Total         int                    `json:"total"`
}

// GetNotifications возвращает последние уведомления
// GET /api/v1/notifications?limit=50&types=OPEN,CLOSE
func (h *NotificationHandler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > 500 {
			respondError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be in [1, 500]")
			return
		}
		limit = v
	}

	var types []string
	if raw := r.URL.Query().Get("types"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, t)
			}
		}
	}

	notifications, err := h.repo.ListRecent(r.Context(), limit, types)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STORAGE", "failed to load notifications")
		return
	}
	if notifications == nil {
		notifications = []*models.Notification{}
	}

	respondJSON(w, http.StatusOK, GetNotificationsResponse{
		Notifications: notifications,
		Total:         len(notifications),
	})
}
