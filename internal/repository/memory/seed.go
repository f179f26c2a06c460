package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/brewery-notify/internal/model"
	"github.com/jwalitptl/brewery-notify/internal/repository"
)

var seedMessages = map[model.NotificationType]string{
	model.NotificationProductionOrderPending:  "Production order #%d is waiting for approval",
	model.NotificationProductionOrderApproved: "Production order #%d was approved",
	model.NotificationProductionOrderRejected: "Production order #%d was rejected",
	model.NotificationPendingMovement:         "Stock movement #%d needs confirmation",
	model.NotificationLowStockAlert:           "Material #%d is below its reorder point",
	model.NotificationSystemReminder:          "Reminder: weekly inventory count (%d)",
}

// Seed fills repo with count notifications spread over the hours before now,
// cycling through every type. Roughly a third are already read.
func Seed(ctx context.Context, repo repository.NotificationRepository, count int, now time.Time) error {
	types := model.NotificationTypes()
	for i := 0; i < count; i++ {
		typ := types[i%len(types)]
		entity := int64(100 + i)
		n := &model.Notification{
			Type:      typ,
			Message:   fmt.Sprintf(seedMessages[typ], entity),
			CreatedAt: now.Add(-time.Duration(count-i) * time.Hour).UTC(),
		}
		if typ != model.NotificationSystemReminder {
			n.RelatedEntityID = &entity
		}
		if i%3 == 0 {
			n.MarkRead(n.CreatedAt.Add(30 * time.Minute))
		}
		if err := repo.Create(ctx, n); err != nil {
			return fmt.Errorf("seed notification %d: %w", i, err)
		}
	}
	return nil
}
