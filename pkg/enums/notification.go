package enums

// NotificationLevel is the severity of a user-facing notification.
type NotificationLevel string

const (
	NotificationLevelInfo    NotificationLevel = "info"
	NotificationLevelSuccess NotificationLevel = "success"
	NotificationLevelWarning NotificationLevel = "warning"
	NotificationLevelError   NotificationLevel = "error"
)

// String implements fmt.Stringer.
func (n NotificationLevel) String() string {
	return string(n)
}
