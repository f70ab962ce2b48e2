package domain

// Role identifies which class of connection a peer belongs to.
// Each role has its own registry, addressing scheme and token authority.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
	RoleDriver   Role = "driver"
	RoleDevice   Role = "device"
	RoleSupport  Role = "support"
)

// ParticipantType distinguishes the two sides of a support conversation.
type ParticipantType string

const (
	ParticipantSupport ParticipantType = "support"
	ParticipantUser    ParticipantType = "user"
)

// CustomerIdentity addresses a customer tracking a single order. The same
// user tracking two orders holds two independent connections.
type CustomerIdentity struct {
	UserID  string `json:"userId"`
	OrderID string `json:"orderId"`
}

// AdminIdentity addresses an admin dashboard connection.
type AdminIdentity struct {
	AdminID string `json:"adminId"`
}

// DriverIdentity addresses a driver's push-notification connection.
type DriverIdentity struct {
	DriverID string `json:"driverId"`
}

// DeviceIdentity addresses a kitchen/POS device stream. Name and Type are
// informational; DeviceID is the registry key.
type DeviceIdentity struct {
	DeviceID   string `json:"deviceId"`
	DeviceName string `json:"deviceName"`
	DeviceType string `json:"deviceType"`
}

// SupportIdentity addresses one participant in a support conversation.
// Unlike the other roles, a ticket may have several live participants.
type SupportIdentity struct {
	TicketID        string          `json:"ticketId"`
	ParticipantID   string          `json:"participantId"`
	ParticipantType ParticipantType `json:"participantType"`
}
