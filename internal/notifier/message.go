package notifier

import (
	"fmt"

	"civicease/civicfeed/internal/models"
)

// Message is one outbound reminder email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// FormatMessage renders the reminder email for user about post.
func FormatMessage(user *models.User, post *models.Announcement, r *models.Reminder) Message {
	return Message{
		To:      user.Email,
		Subject: fmt.Sprintf("CivicEase Reminder: %s", post.Title),
		Body: fmt.Sprintf("Hello %s,\n\n"+
			"This is your reminder for the post: %s\n\n"+
			"Your comment: %s\n\n"+
			"Visit CivicEase for more details.\n\n"+
			"-- CivicEase Team", user.Username, post.Title, r.Content),
	}
}
