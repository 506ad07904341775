package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"renovation-service/internal/models"
	"renovation-service/internal/notify"
	"renovation-service/internal/repository"
)

// Reminder event types
const (
	ReminderStageStart      = "stage_start"
	ReminderStageAcceptance = "stage_acceptance"
)

// Reminder is one derived reminder for a user on a query date
type Reminder struct {
	Stage       string `json:"stage"`
	StageName   string `json:"stage_name"`
	EventType   string `json:"event_type"`
	PlannedDate string `json:"planned_date"`
	DaysAhead   int    `json:"days_ahead"`
}

// ReminderService derives stage reminders from stored schedule state. The
// derivation is a pure query; delivery happens in DeliverDueReminders.
type ReminderService struct {
	constructions *repository.ConstructionRepository
	settings      *repository.SettingRepository
	messages      *repository.MessageRepository
	notifier      notify.Notifier
	defaultDays   int
	logger        *logrus.Entry
}

// NewReminderService creates a new reminder service
func NewReminderService(constructions *repository.ConstructionRepository, settings *repository.SettingRepository, messages *repository.MessageRepository, notifier notify.Notifier, defaultDays int, logger *logrus.Logger) *ReminderService {
	if defaultDays <= 0 {
		defaultDays = 3
	}
	if notifier == nil {
		notifier = notify.NoopNotifier{}
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &ReminderService{
		constructions: constructions,
		settings:      settings,
		messages:      messages,
		notifier:      notifier,
		defaultDays:   defaultDays,
		logger:        logger.WithField("component", "reminder"),
	}
}

// RemindersOn derives which reminders should fire for a user on queryDate
func (s *ReminderService) RemindersOn(ctx context.Context, userID uuid.UUID, queryDate time.Time) ([]Reminder, error) {
	construction, err := s.constructions.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return []Reminder{}, nil
		}
		return nil, err
	}

	setting, err := s.settings.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	return s.derive(construction, setting, queryDate), nil
}

// derive is the pure core: stored state plus query date in, reminders out
func (s *ReminderService) derive(construction *models.Construction, setting *models.UserSetting, queryDate time.Time) []Reminder {
	days := setting.ReminderDaysBefore
	if days <= 0 {
		days = s.defaultDays
	}
	target := time.Date(queryDate.Year(), queryDate.Month(), queryDate.Day(), 0, 0, 0, 0, time.UTC).
		AddDate(0, 0, days).Format(dateLayout)

	stages := models.DecodeStageMap(construction.Stages)
	var out []Reminder
	for _, key := range models.StageOrder {
		entry := stages[key]
		if entry == nil {
			continue
		}
		if setting.NotifyProgress && entry.StartDate == target {
			out = append(out, Reminder{
				Stage:       key,
				StageName:   models.StageNames[key],
				EventType:   ReminderStageStart,
				PlannedDate: entry.StartDate,
				DaysAhead:   days,
			})
		}
		if setting.NotifyAcceptance && entry.EndDate == target {
			out = append(out, Reminder{
				Stage:       key,
				StageName:   models.StageNames[key],
				EventType:   ReminderStageAcceptance,
				PlannedDate: entry.EndDate,
				DaysAhead:   days,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PlannedDate != out[j].PlannedDate {
			return out[i].PlannedDate < out[j].PlannedDate
		}
		return out[i].Stage < out[j].Stage
	})
	if out == nil {
		out = []Reminder{}
	}
	return out
}

// DeliverDueReminders derives reminders for every active construction and
// delivers them as messages plus best-effort push. Returns how many were
// sent. Implements the background runner's deliverer port.
func (s *ReminderService) DeliverDueReminders(ctx context.Context, date time.Time) (int, error) {
	constructions, err := s.constructions.ListActive(ctx)
	if err != nil {
		return 0, err
	}

	sent := 0
	for i := range constructions {
		construction := &constructions[i]
		setting, err := s.settings.GetByUserID(ctx, construction.UserID)
		if err != nil {
			s.logger.WithError(err).WithField("user_id", construction.UserID).Warn("Failed to load settings for reminders")
			continue
		}

		for _, reminder := range s.derive(construction, setting, date) {
			s.deliver(ctx, construction.UserID, reminder)
			sent++
		}
	}
	return sent, nil
}

func (s *ReminderService) deliver(ctx context.Context, userID uuid.UUID, reminder Reminder) {
	var title, content, template string
	if reminder.EventType == ReminderStageStart {
		template = notify.TemplateStageStart
		title = fmt.Sprintf("%s即将开始", reminder.StageName)
		content = fmt.Sprintf("%s计划于%s开始，请提前做好准备", reminder.StageName, reminder.PlannedDate)
	} else {
		template = notify.TemplateStageAcceptance
		title = fmt.Sprintf("%s即将验收", reminder.StageName)
		content = fmt.Sprintf("%s计划于%s验收，请及时拍照提交", reminder.StageName, reminder.PlannedDate)
	}

	msg := &models.Message{
		UserID:   userID,
		Category: models.MessageCategoryProgress,
		Title:    title,
		Content:  content,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		s.logger.WithError(err).Warn("Failed to create reminder message")
	}

	if err := s.notifier.Push(ctx, userID.String(), template, map[string]string{
		"arg0": reminder.StageName,
		"arg1": reminder.PlannedDate,
	}); err != nil {
		s.logger.WithError(err).Debug("Reminder push failed")
	}
}
