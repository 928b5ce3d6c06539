package deliveries

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/riceup-labs/riceup-backend/pkg/db/models"
	"github.com/riceup-labs/riceup-backend/pkg/enums"
	"github.com/riceup-labs/riceup-backend/pkg/pagination"
)

// Repository exposes persistence helpers for deliveries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateDelivery(ctx context.Context, delivery *models.Delivery) error
	FindDelivery(ctx context.Context, id uuid.UUID) (*models.Delivery, error)
	SaveDelivery(ctx context.Context, delivery *models.Delivery) error
	ListDeliveries(ctx context.Context, params listDeliveriesParams) ([]models.Delivery, *pagination.Cursor, error)
	AppendTrackingUpdate(ctx context.Context, update *models.DeliveryTrackingUpdate) error
	AppendAttempt(ctx context.Context, attempt *models.DeliveryAttempt) error
	CountAttempts(ctx context.Context, deliveryID uuid.UUID) (int64, error)
	FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a deliveries repository bound to the provided database.
func NewRepository(gdb *gorm.DB) Repository {
	return &repositoryImpl{db: gdb}
}

type listDeliveriesParams struct {
	CustomerID uuid.UUID
	AgentID    uuid.UUID
	Status     *enums.DeliveryStatus
	Limit      int
	Cursor     *pagination.Cursor
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) CreateDelivery(ctx context.Context, delivery *models.Delivery) error {
	if delivery.ID == uuid.Nil {
		delivery.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(delivery).Error
}

func (r *repositoryImpl) FindDelivery(ctx context.Context, id uuid.UUID) (*models.Delivery, error) {
	var delivery models.Delivery
	err := r.db.WithContext(ctx).
		Preload("TrackingUpdates", func(q *gorm.DB) *gorm.DB {
			return q.Order("created_at ASC, id ASC")
		}).
		Preload("Attempts", func(q *gorm.DB) *gorm.DB {
			return q.Order("created_at ASC, id ASC")
		}).
		First(&delivery, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &delivery, nil
}

func (r *repositoryImpl) SaveDelivery(ctx context.Context, delivery *models.Delivery) error {
	return r.db.WithContext(ctx).
		Omit("TrackingUpdates", "Attempts").
		Save(delivery).Error
}

func (r *repositoryImpl) ListDeliveries(ctx context.Context, params listDeliveriesParams) ([]models.Delivery, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)
	query := r.db.WithContext(ctx).Model(&models.Delivery{})
	if params.CustomerID != uuid.Nil {
		query = query.Where("customer_id = ?", params.CustomerID)
	}
	if params.AgentID != uuid.Nil {
		query = query.Where("agent_id = ?", params.AgentID)
	}
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var deliveries []models.Delivery
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&deliveries).Error; err != nil {
		return nil, nil, err
	}

	if len(deliveries) > normalized {
		next := deliveries[normalized]
		deliveries = deliveries[:normalized]
		return deliveries, &pagination.Cursor{CreatedAt: next.CreatedAt, ID: next.ID}, nil
	}
	return deliveries, nil, nil
}

func (r *repositoryImpl) AppendTrackingUpdate(ctx context.Context, update *models.DeliveryTrackingUpdate) error {
	if update.ID == uuid.Nil {
		update.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(update).Error
}

func (r *repositoryImpl) AppendAttempt(ctx context.Context, attempt *models.DeliveryAttempt) error {
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(attempt).Error
}

func (r *repositoryImpl) CountAttempts(ctx context.Context, deliveryID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.DeliveryAttempt{}).
		Where("delivery_id = ?", deliveryID).
		Count(&count).Error
	return count, err
}

func (r *repositoryImpl) FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}
