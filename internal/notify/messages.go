package notify

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EmailJob is the message consumed by the delivery worker.
type EmailJob struct {
	ID         string         `json:"id"`
	From       string         `json:"from"`
	To         string         `json:"to"`
	Subject    string         `json:"subject"`
	Template   string         `json:"template"`
	Data       map[string]any `json:"data,omitempty"`
	Attachment *JobAttachment `json:"attachment,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// JobAttachment carries the file inline; Content is base64 encoded by encoding/json.
type JobAttachment struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"content"`
}

func NewEmailJob(from string, email Email, now time.Time) *EmailJob {
	job := &EmailJob{
		ID:        uuid.New().String(),
		From:      from,
		To:        email.To,
		Subject:   email.Subject,
		Template:  email.Template,
		Data:      email.Data,
		Timestamp: now.UTC(),
	}
	if email.Attachment != nil {
		job.Attachment = &JobAttachment{
			FileName:    email.Attachment.FileName,
			ContentType: email.Attachment.ContentType,
			Content:     email.Attachment.Content,
		}
	}
	return job
}

func (j *EmailJob) ToJSON() ([]byte, error) {
	return json.Marshal(j)
}

func EmailJobFromJSON(data []byte) (*EmailJob, error) {
	var job EmailJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &job, nil
}
