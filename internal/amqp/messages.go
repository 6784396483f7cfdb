package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BudgetAlertMessage announces that an owner's month-to-date spend in a
// category crossed the warning or limit threshold.
type BudgetAlertMessage struct {
	ID        string          `json:"id"`
	Owner     string          `json:"owner"`
	Category  string          `json:"category"`
	Month     string          `json:"month"`
	Limit     decimal.Decimal `json:"limit"`
	Spent     decimal.Decimal `json:"spent"`
	Level     string          `json:"level"`
	Timestamp time.Time       `json:"timestamp"`
}

func NewBudgetAlertMessage(owner, category, month string, limit, spent decimal.Decimal, level string) *BudgetAlertMessage {
	return &BudgetAlertMessage{
		ID:        uuid.NewString(),
		Owner:     owner,
		Category:  category,
		Month:     month,
		Limit:     limit,
		Spent:     spent,
		Level:     level,
		Timestamp: time.Now().UTC(),
	}
}

// ReportRequestMessage asks the report worker to build one owner's report.
type ReportRequestMessage struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Month     string    `json:"month"`
	Timestamp time.Time `json:"timestamp"`
}

func NewReportRequestMessage(username, month string) *ReportRequestMessage {
	return &ReportRequestMessage{
		ID:        uuid.NewString(),
		Username:  username,
		Month:     month,
		Timestamp: time.Now().UTC(),
	}
}

// ReportReadyMessage is published once a monthly report has been assembled
// and handed to every configured sink.
type ReportReadyMessage struct {
	ID           string          `json:"id"`
	Username     string          `json:"username"`
	Month        string          `json:"month"`
	Total        decimal.Decimal `json:"total"`
	Narrative    string          `json:"narrative"`
	Destinations []string        `json:"destinations,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}

func NewReportReadyMessage(username, month string, total decimal.Decimal, narrative string, destinations []string) *ReportReadyMessage {
	return &ReportReadyMessage{
		ID:           uuid.NewString(),
		Username:     username,
		Month:        month,
		Total:        total,
		Narrative:    narrative,
		Destinations: destinations,
		Timestamp:    time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ReportRequestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ReportRequestMessageFromJSON decodes a request and checks its required fields.
func ReportRequestMessageFromJSON(data []byte) (*ReportRequestMessage, error) {
	var msg ReportRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Username == "" || msg.Month == "" {
		return nil, fmt.Errorf("report request %q: username and month are required", msg.ID)
	}
	return &msg, nil
}

// BudgetAlertMessageFromJSON decodes an alert.
func BudgetAlertMessageFromJSON(data []byte) (*BudgetAlertMessage, error) {
	var msg BudgetAlertMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ReportReadyMessageFromJSON decodes a ready notification.
func ReportReadyMessageFromJSON(data []byte) (*ReportReadyMessage, error) {
	var msg ReportReadyMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
