package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotification_Link(t *testing.T) {
	id := int64(42)
	tests := []struct {
		name string
		n    Notification
		want string
	}{
		{"order with entity", Notification{Type: NotificationProductionOrderPending, RelatedEntityID: &id}, "/production-orders/42"},
		{"order without entity", Notification{Type: NotificationProductionOrderApproved}, "/production-orders"},
		{"low stock", Notification{Type: NotificationLowStockAlert, RelatedEntityID: &id}, "/materials/42"},
		{"reminder ignores entity", Notification{Type: NotificationSystemReminder, RelatedEntityID: &id}, "/notifications"},
		{"unknown type", Notification{Type: "NEW_KIND"}, "/notifications"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.n.Link())
		})
	}
}

func TestNotificationType_Priority(t *testing.T) {
	assert.Equal(t, PriorityHigh, NotificationLowStockAlert.Priority())
	assert.Equal(t, PriorityLow, NotificationSystemReminder.Priority())
	assert.False(t, NotificationType("NEW_KIND").Valid())
	for _, typ := range NotificationTypes() {
		assert.True(t, typ.Valid(), typ)
	}
}

func TestNotification_MarkReadIsMonotonic(t *testing.T) {
	n := Notification{ID: 1}
	first := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	assert.True(t, n.MarkRead(first))
	assert.False(t, n.MarkRead(first.Add(time.Hour)))
	require.NotNil(t, n.ReadAt)
	assert.Equal(t, first, *n.ReadAt)
}

func TestNotification_DecodesBackendPayload(t *testing.T) {
	raw := `{"id":7,"type":"LOW_STOCK_ALERT","message":"Malt below minimum","isRead":false,
		"createdAt":"2026-03-01T10:00:00Z","readAt":null,"relatedEntityId":3}`

	var n Notification
	require.NoError(t, json.Unmarshal([]byte(raw), &n))
	assert.Equal(t, int64(7), n.ID)
	assert.Equal(t, NotificationLowStockAlert, n.Type)
	assert.Nil(t, n.ReadAt)
	require.NotNil(t, n.RelatedEntityID)
	assert.Equal(t, int64(3), *n.RelatedEntityID)
}
