package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"renovation-service/internal/clients"
	"renovation-service/internal/models"
	natsclient "renovation-service/internal/nats"
	"renovation-service/internal/notify"
	"renovation-service/internal/repository"
)

const maxRefundReasonLen = 100

// OrderService owns the order lifecycle and the pending → paid transition
// that grants entitlements exactly once
type OrderService struct {
	db          *gorm.DB
	orders      *repository.OrderRepository
	artifacts   *repository.ArtifactRepository
	messages    *repository.MessageRepository
	entitlement *EntitlementService
	gateway     clients.PaymentGateway
	notifier    notify.Notifier
	events      *natsclient.Client
	prices      map[string]int64
	logger      *logrus.Entry
	now         func() time.Time
}

// NewOrderService creates a new order service. events may be nil.
func NewOrderService(db *gorm.DB, orders *repository.OrderRepository, artifacts *repository.ArtifactRepository, messages *repository.MessageRepository, entitlement *EntitlementService, gateway clients.PaymentGateway, notifier notify.Notifier, events *natsclient.Client, prices map[string]int64, logger *logrus.Logger) *OrderService {
	if logger == nil {
		logger = logrus.New()
	}
	if notifier == nil {
		notifier = notify.NoopNotifier{}
	}
	return &OrderService{
		db:          db,
		orders:      orders,
		artifacts:   artifacts,
		messages:    messages,
		entitlement: entitlement,
		gateway:     gateway,
		notifier:    notifier,
		events:      events,
		prices:      prices,
		logger:      logger.WithField("component", "order"),
		now:         time.Now,
	}
}

// newOrderNo generates a sortable, collision-resistant order number
func newOrderNo(now time.Time) string {
	return fmt.Sprintf("RN%s%06d", now.Format("20060102150405"), rand.Intn(1000000))
}

// CreateOrder creates a pending order priced by order type. When the buyer
// is an active member and the order targets a report artifact, the artifact
// unlocks immediately and the order completes at amount zero.
func (s *OrderService) CreateOrder(ctx context.Context, userID uuid.UUID, orderType, resourceType string, resourceID *uuid.UUID) (*models.Order, error) {
	price, ok := s.prices[orderType]
	if !ok {
		return nil, NewValidationError("order_type", fmt.Sprintf("未知的订单类型: %s", orderType))
	}

	isReport := orderType == models.OrderTypeReportSingle || orderType == models.OrderTypeReportPackage
	if isReport {
		if resourceID == nil {
			return nil, NewValidationError("resource_id", "报告解锁订单需要指定报告")
		}
		if _, err := s.artifacts.GetByID(ctx, *resourceID, userID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, NewNotFoundError("报告")
			}
			return nil, err
		}
	}

	order := &models.Order{
		OrderNo:      newOrderNo(s.now()),
		UserID:       userID,
		OrderType:    orderType,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Amount:       price,
		Status:       models.OrderStatusPending,
	}

	if isReport {
		member, err := s.entitlement.ActiveMember(ctx, userID)
		if err != nil {
			return nil, err
		}
		if member {
			order.Amount = 0
			order.Status = models.OrderStatusCompleted
			paidAt := s.now()
			order.PaidAt = &paidAt
			if err := s.orders.Create(ctx, order); err != nil {
				return nil, err
			}
			if err := s.entitlement.UnlockArtifactForMember(ctx, *resourceID); err != nil {
				return nil, err
			}
			return order, nil
		}
	}

	if err := s.orders.Create(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// PaymentParams returns the signed parameter set the client passes to the
// payment gateway
func (s *OrderService) PaymentParams(ctx context.Context, userID, orderID uuid.UUID) (map[string]string, error) {
	order, err := s.getOwned(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderStatusPending {
		return nil, NewConflictError("order", "订单不在待支付状态")
	}

	params := map[string]string{
		"order_no":  order.OrderNo,
		"amount":    fmt.Sprintf("%d", order.Amount),
		"timestamp": fmt.Sprintf("%d", s.now().Unix()),
		"nonce":     uuid.NewString(),
	}
	params["signature"] = s.gateway.Sign(params)
	return params, nil
}

// ConfirmPaid performs the guarded pending → paid transition. The first
// caller wins and grants entitlements; later callers observe paid and return
// the order unchanged.
func (s *OrderService) ConfirmPaid(ctx context.Context, userID, orderID uuid.UUID, transactionID string) (*models.Order, error) {
	order, err := s.getOwned(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	return s.settle(ctx, order, transactionID)
}

// PaymentNotify handles the gateway callback. Unknown orders and non-success
// trade states are acknowledged without effect.
func (s *OrderService) PaymentNotify(ctx context.Context, payload []byte) error {
	notification, err := s.gateway.DecryptNotify(payload)
	if err != nil {
		return NewValidationError("payload", "支付回调校验失败")
	}
	if notification.TradeState != "" && notification.TradeState != "SUCCESS" {
		s.logger.WithFields(logrus.Fields{
			"order_no":    notification.OrderNo,
			"trade_state": notification.TradeState,
		}).Info("Ignoring non-success payment notification")
		return nil
	}

	order, err := s.orders.GetByOrderNo(ctx, notification.OrderNo)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.WithField("order_no", notification.OrderNo).Warn("Payment notification for unknown order")
			return nil
		}
		return err
	}

	_, err = s.settle(ctx, order, notification.TransactionID)
	return err
}

// settle runs the paid transition and entitlement grant in one transaction
func (s *OrderService) settle(ctx context.Context, order *models.Order, transactionID string) (*models.Order, error) {
	switch order.Status {
	case models.OrderStatusPending:
	case models.OrderStatusPaid, models.OrderStatusCompleted:
		return order, nil
	default:
		return nil, NewConflictError("order", "订单不在待支付状态")
	}

	paidAt := s.now()
	won := false
	var settled *models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		won, err = s.orders.MarkPaidIfPending(ctx, tx, order.ID, transactionID, paidAt)
		if err != nil {
			return err
		}
		if !won {
			// Lost the race; return the committed state
			settled, err = s.orders.GetTx(ctx, tx, order.ID)
			return err
		}

		order.Status = models.OrderStatusPaid
		order.PaidAt = &paidAt
		order.TransactionID = transactionID
		return s.entitlement.GrantForOrder(ctx, tx, order)
	})
	if err != nil {
		return nil, err
	}

	if !won {
		return settled, nil
	}

	s.postPaidMessage(ctx, order)
	if s.events != nil && s.events.Connected() {
		s.events.PublishOrderPaid(natsclient.OrderPaidEvent{
			OrderID:   order.ID.String(),
			OrderNo:   order.OrderNo,
			UserID:    order.UserID.String(),
			OrderType: order.OrderType,
			Amount:    order.Amount,
		})
	}
	return order, nil
}

func (s *OrderService) postPaidMessage(ctx context.Context, order *models.Order) {
	msg := &models.Message{
		UserID:   order.UserID,
		Category: models.MessageCategoryPayment,
		Title:    "支付成功",
		Content:  fmt.Sprintf("订单%s支付成功，金额%.2f元", order.OrderNo, float64(order.Amount)/100),
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		s.logger.WithError(err).Warn("Failed to create payment message")
	}
	if err := s.notifier.Push(ctx, order.UserID.String(), notify.TemplatePaymentDone, map[string]string{
		"arg0": order.OrderNo,
	}); err != nil {
		s.logger.WithError(err).Debug("Payment push failed")
	}
}

// ApplyRefund records one refund application for a paid order
func (s *OrderService) ApplyRefund(ctx context.Context, userID, orderID uuid.UUID, reason, note string) (*models.Refund, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, NewValidationError("reason", "请填写退款原因")
	}
	if len([]rune(reason)) > maxRefundReasonLen {
		return nil, NewValidationError("reason", "退款原因不能超过100字")
	}

	order, err := s.getOwned(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderStatusPaid && order.Status != models.OrderStatusCompleted {
		return nil, NewConflictError("order", "仅已支付订单可以申请退款")
	}

	if _, err := s.orders.GetRefundByOrderID(ctx, orderID); err == nil {
		return nil, NewConflictError("refund", "该订单已提交过退款申请")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	refund := &models.Refund{
		OrderID: orderID,
		UserID:  userID,
		Reason:  reason,
		Note:    note,
		Status:  models.RefundStatusPending,
	}
	if err := s.orders.CreateRefund(ctx, refund); err != nil {
		// Unique order_id index rejects a concurrent duplicate
		return nil, NewConflictError("refund", "该订单已提交过退款申请")
	}
	return refund, nil
}

// GetOrder returns an order owned by the caller
func (s *OrderService) GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	return s.getOwned(ctx, userID, orderID)
}

// ListOrders returns the caller's orders, newest first
func (s *OrderService) ListOrders(ctx context.Context, userID uuid.UUID) ([]models.Order, error) {
	return s.orders.ListByUser(ctx, userID)
}

func (s *OrderService) getOwned(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewNotFoundError("订单")
		}
		return nil, err
	}
	return order, nil
}
