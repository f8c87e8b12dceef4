package printer

import "github.com/slok/cartpool/internal/model"

// Printer knows how to print cartpool information in different formats.
type Printer interface {
	PrintTasks(tasks []model.Task) error
	PrintProxies(proxies []model.Proxy) error
	PrintSessions(sessions []model.ActiveSession) error
	PrintMessage(msg string) error
}
