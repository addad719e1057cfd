// Package catalog はプリセットワークフローの静的カタログを提供する。
// カタログはプロセス起動時に固定され、実行中に変化しない。
package catalog

import (
	"fmt"
	"strconv"

	"github.com/hitoshi/workflowhub/internal/model"
)

// FieldType はトリガーフォームの入力フィールド種別を表す。
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldTextarea FieldType = "textarea"
	FieldSelect   FieldType = "select"
	FieldEmail    FieldType = "email"
	FieldNumber   FieldType = "number"
)

// InputField はトリガーフォームの1入力フィールドのスキーマを表す。
type InputField struct {
	Name         string    `json:"name"`
	Label        string    `json:"label"`
	Type         FieldType `json:"type"`
	Placeholder  string    `json:"placeholder,omitempty"`
	DefaultValue string    `json:"default_value,omitempty"`
	Options      []string  `json:"options,omitempty"`
}

// Service はカタログの1エントリ（自動化ワークフロー）を表す。
type Service struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	WebhookURL  string       `json:"webhook_url"`
	InputFields []InputField `json:"input_fields"`
}

// Catalog は固定のサービスカタログを保持する。
type Catalog struct {
	services []Service
	byTitle  map[string]*Service
}

// New は8エントリの固定カタログを生成する。
// webhookBaseはWebhook URLのベース（例: "https://api.workflowhub.com/hooks/v1"）。
func New(webhookBase string) *Catalog {
	services := defaultServices(webhookBase)

	byTitle := make(map[string]*Service, len(services))
	for i := range services {
		byTitle[services[i].Title] = &services[i]
	}

	return &Catalog{
		services: services,
		byTitle:  byTitle,
	}
}

// List は全サービスを定義順で返す。
func (c *Catalog) List() []Service {
	return c.services
}

// FindByTitle はタイトルでサービスを検索する。見つからない場合はnilを返す。
func (c *Catalog) FindByTitle(title string) *Service {
	return c.byTitle[title]
}

// Defaults はサービスのフォーム初期値（フィールド名→デフォルト値）を返す。
// デフォルト値のないフィールドは空文字列で初期化する。
func (s *Service) Defaults() map[string]string {
	values := make(map[string]string, len(s.InputFields))
	for _, f := range s.InputFields {
		values[f.Name] = f.DefaultValue
	}
	return values
}

// ValidateParams は送信されたフォーム値をスキーマに対して検証する。
// スキーマにないフィールド、selectの選択肢外の値、数値でないnumber値を拒否する。
func (s *Service) ValidateParams(params map[string]string) error {
	fields := make(map[string]*InputField, len(s.InputFields))
	for i := range s.InputFields {
		fields[s.InputFields[i].Name] = &s.InputFields[i]
	}

	for name, value := range params {
		field, ok := fields[name]
		if !ok {
			return model.NewInvalidFieldError(name, "スキーマに定義されていないフィールドです")
		}

		switch field.Type {
		case FieldSelect:
			if value != "" && !contains(field.Options, value) {
				return model.NewInvalidFieldError(name, fmt.Sprintf("選択肢にない値です: %s", value))
			}
		case FieldNumber:
			if value != "" {
				if _, err := strconv.ParseFloat(value, 64); err != nil {
					return model.NewInvalidFieldError(name, "数値を入力してください")
				}
			}
		}
	}

	return nil
}

func contains(options []string, v string) bool {
	for _, o := range options {
		if o == v {
			return true
		}
	}
	return false
}

// defaultServices は8種のプリセットワークフローを定義する。
func defaultServices(webhookBase string) []Service {
	hook := func(id string) string {
		return fmt.Sprintf("%s/%s", webhookBase, id)
	}

	return []Service{
		{
			Title:       "Customer Communication",
			Description: "Automate emails, SMS, and support ticket responses.",
			WebhookURL:  hook("whk_3f28ac91d0b54e7c8a16f2d4"),
			InputFields: []InputField{
				{Name: "email", Label: "Recipient Email", Type: FieldEmail, Placeholder: "customer@example.com", DefaultValue: "lead@example.com"},
				{Name: "subject", Label: "Email Subject", Type: FieldText, Placeholder: "Following up on your inquiry", DefaultValue: "Quick Question"},
				{Name: "message", Label: "Message", Type: FieldTextarea, Placeholder: "Enter your personalized message here...", DefaultValue: "Hi there, just wanted to follow up on our recent conversation."},
			},
		},
		{
			Title:       "Social Media Management",
			Description: "Schedule posts, monitor mentions, and analyze engagement.",
			WebhookURL:  hook("whk_91b4e07c3da2f865c1d09e3b"),
			InputFields: []InputField{
				{Name: "platform", Label: "Platform", Type: FieldSelect, Options: []string{"X", "LinkedIn", "Instagram"}, DefaultValue: "LinkedIn"},
				{Name: "content", Label: "Post Content", Type: FieldTextarea, Placeholder: "What's on your mind?", DefaultValue: "Excited to share our latest blog post on automation trends!"},
			},
		},
		{
			Title:       "Lead Generation & CRM Sync",
			Description: "Capture leads from forms and sync with your CRM.",
			WebhookURL:  hook("whk_7cd5120fb8a34e96d2c81f5a"),
			InputFields: []InputField{
				{Name: "fullName", Label: "Full Name", Type: FieldText, Placeholder: "Jane Doe"},
				{Name: "email", Label: "Email Address", Type: FieldEmail, Placeholder: "jane.doe@company.com"},
				{Name: "company", Label: "Company Name", Type: FieldText, Placeholder: "Innovate Inc."},
			},
		},
		{
			Title:       "E-Commerce Automation",
			Description: "Manage abandoned carts, orders, and inventory.",
			WebhookURL:  hook("whk_e6a90d3c57f14b82a4d7c028"),
			InputFields: []InputField{
				{Name: "action", Label: "Automation Type", Type: FieldSelect, Options: []string{"Abandoned Cart Recovery", "Order Confirmation"}, DefaultValue: "Abandoned Cart Recovery"},
				{Name: "customerEmail", Label: "Customer Email", Type: FieldEmail, Placeholder: "shopper@example.com"},
				{Name: "orderId", Label: "Order ID", Type: FieldText, Placeholder: "ORD-12345"},
			},
		},
		{
			Title:       "Financial Automation",
			Description: "Generate invoices, track payments, and manage expenses.",
			WebhookURL:  hook("whk_48c2fae609d15b73e8a3d9c1"),
			InputFields: []InputField{
				{Name: "clientEmail", Label: "Client Email", Type: FieldEmail, Placeholder: "client@business.com"},
				{Name: "invoiceNumber", Label: "Invoice Number", Type: FieldText, Placeholder: "INV-2025-001"},
				{Name: "amount", Label: "Amount (USD)", Type: FieldNumber, Placeholder: "1500.00"},
			},
		},
		{
			Title:       "Team Coordination",
			Description: "Assign tasks, send project updates, and streamline comms.",
			WebhookURL:  hook("whk_b0d7931ce5f246a8c1e94f06"),
			InputFields: []InputField{
				{Name: "projectName", Label: "Project Name", Type: FieldText, Placeholder: "Q3 Marketing Campaign"},
				{Name: "taskName", Label: "Task Description", Type: FieldText, Placeholder: "Draft initial ad copy"},
				{Name: "assigneeEmail", Label: "Assignee Email", Type: FieldEmail, Placeholder: "team-member@workflowhub.com"},
			},
		},
		{
			Title:       "Content Creation",
			Description: "Automate content drafting, formatting, and distribution.",
			WebhookURL:  hook("whk_52e8c6b1a9f04d37b2c50e8d"),
			InputFields: []InputField{
				{Name: "topic", Label: "Blog Post Topic", Type: FieldText, Placeholder: "The Future of AI in Business"},
				{Name: "keywords", Label: "SEO Keywords", Type: FieldText, Placeholder: "AI, business, automation, future"},
			},
		},
		{
			Title:       "Feedback Analysis",
			Description: "Collect and analyze customer feedback automatically.",
			WebhookURL:  hook("whk_dc914f07a2e85b63f0a12c74"),
			InputFields: []InputField{
				{Name: "feedbackText", Label: "Customer Feedback", Type: FieldTextarea, Placeholder: "Enter customer review or survey response here..."},
			},
		},
	}
}
