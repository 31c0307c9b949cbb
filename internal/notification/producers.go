package notification

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Category names a kind of notification. Each category maps to exactly one
// class, priority and TTL.
type Category string

const (
	CategoryTaskAssigned Category = "task_assigned"
	CategoryTaskDue      Category = "task_due"
	CategoryTaskOverdue  Category = "task_overdue"
	CategoryMeetingAlert Category = "meeting_alert"
	CategoryStatusUpdate Category = "status_update"
	CategorySystem       Category = "system"
)

type categoryDef struct {
	class    Class
	priority int
	ttl      time.Duration // zero takes the class default
}

var categories = map[Category]categoryDef{
	CategoryTaskAssigned: {class: ClassPersistent, priority: PriorityHigh},
	CategoryTaskDue:      {class: ClassPersistent, priority: PriorityHigh, ttl: 24 * time.Hour},
	CategoryTaskOverdue:  {class: ClassPersistent, priority: PriorityUrgent},
	CategoryMeetingAlert: {class: ClassEphemeral, priority: PriorityUrgent, ttl: 10 * time.Minute},
	CategoryStatusUpdate: {class: ClassEphemeral, priority: PriorityLow, ttl: 5 * time.Minute},
	CategorySystem:       {class: ClassPersistent, priority: PriorityMedium},
}

// SmartRequest is a category-driven notification.
type SmartRequest struct {
	Category  Category
	UserID    string
	Title     string
	Message   string
	ActionURL string
	Data      map[string]any
	// Priority overrides the category priority when set.
	Priority int
	// Class, when set, must match the category's class.
	Class  Class
	SendAt time.Time
}

// SendSmart classifies r by its category and enqueues it.
func (e *Engine) SendSmart(ctx context.Context, r SmartRequest) (string, error) {
	def, ok := categories[r.Category]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, r.Category)
	}
	if r.Class != "" && r.Class != def.class {
		return "", fmt.Errorf("%w: %s notifications are %s", ErrInvalidClass, r.Category, def.class)
	}
	priority := def.priority
	if r.Priority != 0 {
		priority = r.Priority
	}
	return e.Enqueue(ctx, Request{
		UserID:    r.UserID,
		Title:     r.Title,
		Message:   r.Message,
		ActionURL: r.ActionURL,
		Category:  string(r.Category),
		Data:      r.Data,
		Priority:  priority,
		Class:     def.class,
		TTL:       def.ttl,
		SendAt:    r.SendAt,
	})
}

func taskURL(taskID string) string {
	return "/tasks/" + taskID
}

// TaskDueReminder tells userID that a task is due soon.
func (e *Engine) TaskDueReminder(ctx context.Context, userID, taskID, taskTitle string, due time.Time) (string, error) {
	return e.SendSmart(ctx, SmartRequest{
		Category:  CategoryTaskDue,
		UserID:    userID,
		Title:     "Task due soon",
		Message:   fmt.Sprintf("%q is due %s", taskTitle, due.UTC().Format(time.RFC1123)),
		ActionURL: taskURL(taskID),
		Data:      map[string]any{"taskId": taskID, "dueDate": due.UTC().Format(time.RFC3339)},
	})
}

// SmartTaskAssigned tells userID that a task was assigned to them.
func (e *Engine) SmartTaskAssigned(ctx context.Context, userID, taskID, taskTitle, assignedBy string) (string, error) {
	msg := fmt.Sprintf("You have been assigned %q", taskTitle)
	if assignedBy != "" {
		msg = fmt.Sprintf("%s assigned you %q", assignedBy, taskTitle)
	}
	return e.SendSmart(ctx, SmartRequest{
		Category:  CategoryTaskAssigned,
		UserID:    userID,
		Title:     "New task assigned",
		Message:   msg,
		ActionURL: taskURL(taskID),
		Data:      map[string]any{"taskId": taskID, "assignedBy": assignedBy},
	})
}

// MeetingAlert pushes a short-lived alert. The alert is worthless once the
// meeting has started, so its TTL never extends past startsAt.
func (e *Engine) MeetingAlert(ctx context.Context, userID, title string, startsAt time.Time, joinURL string) (string, error) {
	until := startsAt.Sub(e.now())
	if until <= 0 {
		return "", fmt.Errorf("%w: meeting has already started", ErrInvalidRequest)
	}
	ttl := categories[CategoryMeetingAlert].ttl
	if until < ttl {
		ttl = until
	}
	mins := int(until.Round(time.Minute) / time.Minute)
	msg := fmt.Sprintf("%s starts in %d minutes", title, mins)
	if mins <= 0 {
		msg = fmt.Sprintf("%s is starting now", title)
	}
	return e.Enqueue(ctx, Request{
		UserID:    userID,
		Title:     "Meeting alert",
		Message:   msg,
		ActionURL: joinURL,
		Category:  string(CategoryMeetingAlert),
		Data:      map[string]any{"startsAt": startsAt.UTC().Format(time.RFC3339)},
		Priority:  categories[CategoryMeetingAlert].priority,
		Class:     ClassEphemeral,
		TTL:       ttl,
	})
}

// OverdueReport summarises SendOverdueReminders.
type OverdueReport struct {
	Tasks   int `json:"tasks"`
	Sent    int `json:"sent"`
	Skipped int `json:"skipped"`
}

// SendOverdueReminders enqueues one reminder per open task past its due date.
// Tasks whose assignee no longer exists are skipped.
func (e *Engine) SendOverdueReminders(ctx context.Context) (OverdueReport, error) {
	tasks, err := e.store.OverdueTasks(ctx, e.now())
	if err != nil {
		return OverdueReport{}, err
	}

	r := OverdueReport{Tasks: len(tasks)}
	for _, t := range tasks {
		if err := ctx.Err(); err != nil {
			return r, err
		}
		_, err := e.SendSmart(ctx, SmartRequest{
			Category:  CategoryTaskOverdue,
			UserID:    t.AssigneeID,
			Title:     "Task overdue",
			Message:   fmt.Sprintf("%q was due %s", t.Title, t.DueDate.UTC().Format(time.RFC1123)),
			ActionURL: taskURL(t.ID),
			Data:      map[string]any{"taskId": t.ID},
		})
		switch {
		case err == nil:
			r.Sent++
		case errors.Is(err, ErrUnknownUser):
			r.Skipped++
			e.log.Warn().Str("task_id", t.ID).Str("user_id", t.AssigneeID).Msg("overdue task assignee not found")
		default:
			return r, err
		}
	}
	e.log.Info().Int("tasks", r.Tasks).Int("sent", r.Sent).Int("skipped", r.Skipped).Msg("overdue reminders sent")
	return r, nil
}
