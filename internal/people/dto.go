package people

import "time"

type RegisterRequest struct {
	EnrollmentCode string `json:"enrollment_code" binding:"required"`
	DisplayName    string `json:"display_name" binding:"required"`
	PhotoRef       string `json:"photo_ref"`
	Phone          string `json:"phone,omitempty"`
}

// UpdateRequest: enrollment_code は変更不可
type UpdateRequest struct {
	DisplayName *string `json:"display_name,omitempty"`
	PhotoRef    *string `json:"photo_ref,omitempty"`
	Phone       *string `json:"phone,omitempty"`
}

// LookupRequest: 学生ポータルのログイン（学籍番号 + 電話番号）
type LookupRequest struct {
	EnrollmentCode string `json:"enrollment_code" binding:"required"`
	Phone          string `json:"phone" binding:"required"`
}

type ListQuery struct {
	EnrollmentCode string
	Phone          string
	Limit          int
	Offset         int
}

type PersonResponse struct {
	PersonID       string    `json:"person_id"`
	EnrollmentCode string    `json:"enrollment_code"`
	DisplayName    string    `json:"display_name"`
	PhotoRef       string    `json:"photo_ref"`
	Phone          string    `json:"phone,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type ListResponse struct {
	Items []PersonResponse `json:"items"`
	Total int64            `json:"total"`
}

type DeleteResponse struct {
	PersonID          string `json:"person_id"`
	PurgedRecordCount int64  `json:"purged_record_count"`
}

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 200
)
