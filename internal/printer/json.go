package printer

import (
	"encoding/json"
	"io"
	"time"

	"github.com/slok/cartpool/internal/model"
)

// JSONPrinter prints cartpool information in JSON format.
type JSONPrinter struct {
	writer io.Writer
}

// NewJSONPrinter creates a new JSON printer.
func NewJSONPrinter(w io.Writer) *JSONPrinter {
	return &JSONPrinter{writer: w}
}

type taskOutput struct {
	ID                       string    `json:"id"`
	SiteName                 string    `json:"site_name"`
	URL                      string    `json:"url"`
	ProductCode              string    `json:"product_code,omitempty"`
	Size                     string    `json:"size,omitempty"`
	StyleIndex               int       `json:"style_index"`
	ShippingAddressID        string    `json:"shipping_address_id"`
	BillingAddressID         string    `json:"billing_address_id"`
	ShippingSpeedIndex       int       `json:"shipping_speed_index"`
	AutoSolveCaptchas        bool      `json:"auto_solve_captchas"`
	NotificationEmailAddress string    `json:"notification_email_address,omitempty"`
	CreatedAt                time.Time `json:"created_at"`
}

// proxyOutput never carries the proxy password.
type proxyOutput struct {
	ID          string    `json:"id"`
	Scheme      string    `json:"scheme"`
	Host        string    `json:"host"`
	Port        int       `json:"port"`
	Username    string    `json:"username,omitempty"`
	HasBeenUsed bool      `json:"has_been_used"`
	CreatedAt   time.Time `json:"created_at"`
}

type sessionOutput struct {
	TaskID    string     `json:"task_id"`
	SlotID    string     `json:"slot_id"`
	SessionID string     `json:"session_id"`
	Backend   string     `json:"backend"`
	DebugURL  string     `json:"debug_url,omitempty"`
	ProxyID   string     `json:"proxy_id,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	HoldUntil *time.Time `json:"hold_until,omitempty"`
}

type messageOutput struct {
	Message string `json:"message"`
}

// PrintTasks prints tasks in JSON format.
func (j *JSONPrinter) PrintTasks(tasks []model.Task) error {
	items := make([]taskOutput, 0, len(tasks))
	for _, t := range tasks {
		items = append(items, taskOutput{
			ID:                       t.ID,
			SiteName:                 t.SiteName,
			URL:                      t.URL,
			ProductCode:              t.ProductCode,
			Size:                     t.Size,
			StyleIndex:               t.StyleIndex,
			ShippingAddressID:        t.ShippingAddressID,
			BillingAddressID:         t.BillingAddressID,
			ShippingSpeedIndex:       t.ShippingSpeedIndex,
			AutoSolveCaptchas:        t.AutoSolveCaptchas,
			NotificationEmailAddress: t.NotificationEmailAddress,
			CreatedAt:                t.CreatedAt.UTC(),
		})
	}
	return j.encode(items)
}

// PrintProxies prints proxies in JSON format.
func (j *JSONPrinter) PrintProxies(proxies []model.Proxy) error {
	items := make([]proxyOutput, 0, len(proxies))
	for _, p := range proxies {
		scheme := p.Scheme
		if scheme == "" {
			scheme = model.ProxySchemeHTTP
		}
		items = append(items, proxyOutput{
			ID:          p.ID,
			Scheme:      string(scheme),
			Host:        p.Host,
			Port:        p.Port,
			Username:    p.Username,
			HasBeenUsed: p.HasBeenUsed,
			CreatedAt:   p.CreatedAt.UTC(),
		})
	}
	return j.encode(items)
}

// PrintSessions prints the active browser sessions in JSON format.
func (j *JSONPrinter) PrintSessions(sessions []model.ActiveSession) error {
	items := make([]sessionOutput, 0, len(sessions))
	for _, s := range sessions {
		out := sessionOutput{
			TaskID:    s.TaskID,
			SlotID:    s.SlotID,
			SessionID: s.SessionID,
			Backend:   s.Backend,
			DebugURL:  s.DebugURL,
			ProxyID:   s.ProxyID,
			StartedAt: s.StartedAt.UTC(),
		}
		if s.HoldUntil != nil {
			utcTime := s.HoldUntil.UTC()
			out.HoldUntil = &utcTime
		}
		items = append(items, out)
	}
	return j.encode(items)
}

// PrintMessage prints a simple message in JSON format.
func (j *JSONPrinter) PrintMessage(msg string) error {
	return j.encode(messageOutput{Message: msg})
}

func (j *JSONPrinter) encode(v any) error {
	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
