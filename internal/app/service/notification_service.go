package service

import (
	"fmt"
	"strings"

	"github.com/mkobayashi/kaitori-backend/internal/app/model"
	"github.com/mkobayashi/kaitori-backend/internal/app/repository"
	"github.com/mkobayashi/kaitori-backend/pkg/logger"
	"github.com/mkobayashi/kaitori-backend/pkg/util"
)

// NotificationService 状態変化に応じた利用者通知。送信は申込受付と入金完了の
// 2箇所でのみ発火する。送信失敗は記録するだけで、呼び出し元の処理を
// 失敗させることはない (戻り値を持たないのはそのため)。
type NotificationService interface {
	NotifyStatusChange(request *model.BuybackRequest, previous, next model.RequestStatus)
}

type notificationService struct {
	userRepo repository.UserRepository
	mailer   util.Mailer
}

func NewNotificationService(userRepo repository.UserRepository, mailer util.Mailer) NotificationService {
	return &notificationService{
		userRepo: userRepo,
		mailer:   mailer,
	}
}

func (s *notificationService) NotifyStatusChange(request *model.BuybackRequest, previous, next model.RequestStatus) {
	var subject string
	switch next {
	case model.StatusReceived:
		subject = fmt.Sprintf("【買取申込受付】予約番号 %s", request.ReservationNumber)
	case model.StatusPaymentDone:
		subject = fmt.Sprintf("【入金完了のお知らせ】予約番号 %s", request.ReservationNumber)
	default:
		// 中間状態では通知しない
		return
	}

	user, err := s.userRepo.FindByID(request.UserID)
	if err != nil {
		logger.Error("Failed to resolve notification recipient", err, map[string]interface{}{
			"request_id": request.ID,
			"user_id":    request.UserID,
		})
		return
	}

	body := s.buildBody(user, request, next)
	if err := s.mailer.Send(user.Email, subject, body); err != nil {
		logger.Error("Failed to send status notification", err, map[string]interface{}{
			"request_id": request.ID,
			"user_id":    user.ID,
			"status":     next,
		})
		return
	}

	logger.Info("Status notification sent", map[string]interface{}{
		"request_id": request.ID,
		"user_id":    user.ID,
		"status":     next,
	})
}

// buildBody 申込時点のスナップショット明細から本文を組み立てる。
// カタログの現在値は参照しない。
func (s *notificationService) buildBody(user *model.User, request *model.BuybackRequest, status model.RequestStatus) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s 様\n\n", user.Name)
	switch status {
	case model.StatusReceived:
		b.WriteString("買取のお申込みを受け付けました。\n")
	case model.StatusPaymentDone:
		b.WriteString("お申込み分の入金が完了しました。\n")
	}
	fmt.Fprintf(&b, "\n予約番号: %s\n", request.ReservationNumber)

	if len(request.Items) > 0 {
		b.WriteString("\n--- お申込み内容 ---\n")
		for _, item := range request.Items {
			line := fmt.Sprintf("%s (%s", item.Variant.ModelName, item.Color)
			if item.Variant.ModelName == "" {
				line = fmt.Sprintf("機種ID %d (%s", item.VariantID, item.Color)
			}
			if item.Capacity != nil {
				line += fmt.Sprintf(" / %s", *item.Capacity)
			}
			line += fmt.Sprintf(") x%d  %d円\n", item.Quantity, item.UnitPrice*int64(item.Quantity))
			b.WriteString(line)
		}
	}
	fmt.Fprintf(&b, "\n合計金額: %d円\n", request.TotalPrice)

	return b.String()
}
