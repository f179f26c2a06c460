package model

import (
	"fmt"
	"time"
)

type NotificationType string

const (
	NotificationProductionOrderPending  NotificationType = "PRODUCTION_ORDER_PENDING"
	NotificationProductionOrderApproved NotificationType = "PRODUCTION_ORDER_APPROVED"
	NotificationProductionOrderRejected NotificationType = "PRODUCTION_ORDER_REJECTED"
	NotificationPendingMovement         NotificationType = "PENDING_MOVEMENT"
	NotificationLowStockAlert           NotificationType = "LOW_STOCK_ALERT"
	NotificationSystemReminder          NotificationType = "SYSTEM_REMINDER"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// TypeInfo is the presentation metadata attached to a notification type.
type TypeInfo struct {
	Label    string
	Icon     string
	Color    string
	Priority Priority
	// Route is the dashboard path the notification links to; %d is replaced
	// by the related entity id when one is present.
	Route string
}

var typeInfo = map[NotificationType]TypeInfo{
	NotificationProductionOrderPending: {
		Label: "Production order pending", Icon: "clock", Color: "amber",
		Priority: PriorityHigh, Route: "/production-orders/%d",
	},
	NotificationProductionOrderApproved: {
		Label: "Production order approved", Icon: "check-circle", Color: "green",
		Priority: PriorityMedium, Route: "/production-orders/%d",
	},
	NotificationProductionOrderRejected: {
		Label: "Production order rejected", Icon: "x-circle", Color: "red",
		Priority: PriorityHigh, Route: "/production-orders/%d",
	},
	NotificationPendingMovement: {
		Label: "Pending stock movement", Icon: "truck", Color: "blue",
		Priority: PriorityMedium, Route: "/movements/%d",
	},
	NotificationLowStockAlert: {
		Label: "Low stock", Icon: "alert-triangle", Color: "orange",
		Priority: PriorityHigh, Route: "/materials/%d",
	},
	NotificationSystemReminder: {
		Label: "Reminder", Icon: "bell", Color: "gray",
		Priority: PriorityLow, Route: "/notifications",
	},
}

var unknownTypeInfo = TypeInfo{
	Label: "Notification", Icon: "bell", Color: "gray",
	Priority: PriorityLow, Route: "/notifications",
}

func (t NotificationType) Valid() bool {
	_, ok := typeInfo[t]
	return ok
}

// Info returns the metadata for t. Types the backend adds later fall back to
// a generic low-priority entry instead of failing.
func (t NotificationType) Info() TypeInfo {
	if info, ok := typeInfo[t]; ok {
		return info
	}
	return unknownTypeInfo
}

func (t NotificationType) Priority() Priority {
	return t.Info().Priority
}

// NotificationTypes lists the known types in a stable order.
func NotificationTypes() []NotificationType {
	return []NotificationType{
		NotificationProductionOrderPending,
		NotificationProductionOrderApproved,
		NotificationProductionOrderRejected,
		NotificationPendingMovement,
		NotificationLowStockAlert,
		NotificationSystemReminder,
	}
}

type Notification struct {
	ID              int64            `json:"id"`
	Type            NotificationType `json:"type"`
	Message         string           `json:"message"`
	IsRead          bool             `json:"isRead"`
	CreatedAt       time.Time        `json:"createdAt"`
	ReadAt          *time.Time       `json:"readAt"`
	RelatedEntityID *int64           `json:"relatedEntityId,omitempty"`
}

// Link builds the dashboard deep link for the notification.
func (n Notification) Link() string {
	route := n.Type.Info().Route
	if n.RelatedEntityID == nil {
		if i := len(route) - len("/%d"); i > 0 && route[i:] == "/%d" {
			return route[:i]
		}
		return route
	}
	if i := len(route) - len("%d"); i >= 0 && route[i:] == "%d" {
		return fmt.Sprintf(route, *n.RelatedEntityID)
	}
	return route
}

// MarkRead flips the notification to read. It is a no-op on an already read
// notification, so readAt is only ever set once.
func (n *Notification) MarkRead(at time.Time) bool {
	if n.IsRead {
		return false
	}
	n.IsRead = true
	at = at.UTC()
	n.ReadAt = &at
	return true
}

type NotificationStats struct {
	UnreadCount int `json:"unreadCount"`
	TotalCount  int `json:"totalCount"`
}

// NotificationPage is the backend's paged list envelope.
type NotificationPage struct {
	Content       []Notification `json:"content"`
	TotalElements int            `json:"totalElements"`
	TotalPages    int            `json:"totalPages"`
	Number        int            `json:"number"`
	Size          int            `json:"size"`
}

type ConnectionState string

const (
	ConnectionDisconnected ConnectionState = "disconnected"
	ConnectionConnecting   ConnectionState = "connecting"
	ConnectionConnected    ConnectionState = "connected"
	ConnectionFailed       ConnectionState = "failed"
)

// Stream event names emitted by the backend notification stream.
const (
	EventConnected            = "connected"
	EventInitialNotifications = "initial-notifications"
	EventNotification         = "notification"
	EventStatsUpdate          = "stats-update"
)

// NotificationFilter selects a page of the backend list, newest first.
type NotificationFilter struct {
	Page       int  `form:"page" validate:"gte=0"`
	Size       int  `form:"size" validate:"gte=1,lte=100"`
	UnreadOnly bool `form:"unreadOnly"`
}

// CreateNotificationRequest is the body accepted when raising a notification
// by hand or through the broker channel.
type CreateNotificationRequest struct {
	Type            NotificationType `json:"type" validate:"required"`
	Message         string           `json:"message" validate:"required,max=500"`
	RelatedEntityID *int64           `json:"relatedEntityId,omitempty" validate:"omitempty,gt=0"`
}
