package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/trackvault-backend/pkg/db/models"
	"github.com/angelmondragon/trackvault-backend/pkg/enums"
)

type Notification struct {
	ID            uuid.UUID              `json:"id"`
	Type          enums.NotificationType `json:"type"`
	Title         string                 `json:"title"`
	Message       string                 `json:"message"`
	ReferenceID   *uuid.UUID             `json:"reference_id,omitempty"`
	ReferenceType *enums.ReferenceType   `json:"reference_type,omitempty"`
	IsRead        bool                   `json:"is_read"`
	ReadAt        *time.Time             `json:"read_at,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}

type NotificationPage struct {
	Items  []Notification `json:"items"`
	Cursor string         `json:"cursor"`
}

func NewNotificationPage(items []models.Notification, cursor string) NotificationPage {
	page := NotificationPage{Items: make([]Notification, 0, len(items)), Cursor: cursor}
	for _, n := range items {
		page.Items = append(page.Items, Notification{
			ID:            n.ID,
			Type:          n.Type,
			Title:         n.Title,
			Message:       n.Message,
			ReferenceID:   n.ReferenceID,
			ReferenceType: n.ReferenceType,
			IsRead:        n.IsRead,
			ReadAt:        n.ReadAt,
			CreatedAt:     n.CreatedAt,
		})
	}
	return page
}

type UnreadCount struct {
	Unread int64 `json:"unread"`
}
