package people

import "time"

// Person: 学生証の持ち主。EnrollmentCode は登録後に変更しない
type Person struct {
	PersonID       string
	EnrollmentCode string
	DisplayName    string
	PhotoRef       string
	Phone          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type personRow struct {
	PersonID       string
	EnrollmentCode string
	DisplayName    string
	PhotoRef       string
	Phone          string
	CreatedAtMs    int64
	UpdatedAtMs    int64
}

func (r personRow) toModel() Person {
	return Person{
		PersonID:       r.PersonID,
		EnrollmentCode: r.EnrollmentCode,
		DisplayName:    r.DisplayName,
		PhotoRef:       r.PhotoRef,
		Phone:          r.Phone,
		CreatedAt:      time.UnixMilli(r.CreatedAtMs).UTC(),
		UpdatedAt:      time.UnixMilli(r.UpdatedAtMs).UTC(),
	}
}

func (p Person) toDTO() PersonResponse {
	return PersonResponse{
		PersonID:       p.PersonID,
		EnrollmentCode: p.EnrollmentCode,
		DisplayName:    p.DisplayName,
		PhotoRef:       p.PhotoRef,
		Phone:          p.Phone,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}
